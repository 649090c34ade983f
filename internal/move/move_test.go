package move

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kagsteiner/GreatestBGHits/internal/board"
)

func TestParseTranscriptTokens(t *testing.T) {
	parts := ParseTranscriptTokens("24/18 13/11*")
	assert.Equal(t, []board.Part{
		{From: 24, To: 18},
		{From: 13, To: 11, Hit: true},
	}, parts)
}

func TestParseTranscriptTokensBarAndOff(t *testing.T) {
	parts := ParseTranscriptTokens("bar/22 6/off*")
	assert.Equal(t, []board.Part{
		{From: board.Bar, To: 22},
		{From: 6, To: board.Bearoff, Hit: true},
	}, parts)
}

func TestParseTranscriptTokensDropsUnknown(t *testing.T) {
	parts := ParseTranscriptTokens("24/18 garbage 13/off")
	assert.Equal(t, []board.Part{
		{From: 24, To: 18},
		{From: 13, To: board.Bearoff},
	}, parts)
}

func TestExpandEngineTokenShorthand(t *testing.T) {
	parts := ExpandEngineToken("24/18*(2)")
	assert.Equal(t, []board.Part{
		{From: 24, To: 18, Hit: true},
		{From: 24, To: 18, Hit: false},
	}, parts)
}

func TestExpandEngineTokenBarOff(t *testing.T) {
	parts := ExpandEngineToken("BAR/18")
	assert.Equal(t, []board.Part{{From: board.Bar, To: 18}}, parts)

	parts = ExpandEngineToken("6/OFF")
	assert.Equal(t, []board.Part{{From: 6, To: board.Bearoff}}, parts)
}

func TestExpandEngineMoveText(t *testing.T) {
	parts := ExpandEngineMoveText("24/18 13/11*(2)")
	assert.Equal(t, []board.Part{
		{From: 24, To: 18},
		{From: 13, To: 11, Hit: true},
		{From: 13, To: 11, Hit: false},
	}, parts)
}

func TestEqualShorthandVsSpelledOut(t *testing.T) {
	shorthand := ExpandEngineToken("24/18*(2)")
	spelledOut := []board.Part{
		{From: 24, To: 18, Hit: true},
		{From: 24, To: 18, Hit: true},
	}
	assert.True(t, Equal(shorthand, spelledOut), "shorthand expansion must equal the fully spelled-out move")
}

func TestEqualIgnoresOrder(t *testing.T) {
	a := []board.Part{{From: 24, To: 18}, {From: 13, To: 11, Hit: true}}
	b := []board.Part{{From: 13, To: 11, Hit: true}, {From: 24, To: 18}}
	assert.True(t, Equal(a, b))
}

func TestEqualDetectsDifference(t *testing.T) {
	a := []board.Part{{From: 24, To: 18}}
	b := []board.Part{{From: 24, To: 18, Hit: true}}
	assert.False(t, Equal(a, b))
}

func TestCanonicalTokensRendersBarOff(t *testing.T) {
	toks := CanonicalTokens([]board.Part{
		{From: board.Bar, To: 22},
		{From: 6, To: board.Bearoff, Hit: true},
	})
	assert.Equal(t, []string{"6/off*", "bar/22"}, toks)
}
