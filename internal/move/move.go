// Package move implements backgammon move-token parsing, engine-candidate
// shorthand expansion, and canonical move equivalence.
package move

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/kagsteiner/GreatestBGHits/internal/board"
)

// transcriptTokenRe matches one transcript move token: source is "bar" or a
// point number, destination is "off" or a point number, with an optional
// trailing hit marker.
var transcriptTokenRe = regexp.MustCompile(`(?i)^(bar|\d+)/(off|\d+)(\*)?$`)

// ParseTranscriptTokens parses a half-ply's move text into parts, per the
// transcript grammar. Tokens that don't match the grammar are silently
// dropped rather than aborting the ply.
func ParseTranscriptTokens(text string) []board.Part {
	var parts []board.Part
	for _, tok := range strings.Fields(text) {
		m := transcriptTokenRe.FindStringSubmatch(tok)
		if m == nil {
			continue
		}
		parts = append(parts, board.Part{
			From: transcriptFrom(m[1]),
			To:   transcriptTo(m[2]),
			Hit:  m[3] == "*",
		})
	}
	return parts
}

func transcriptFrom(s string) int {
	if strings.EqualFold(s, "bar") {
		return board.Bar
	}
	n, _ := strconv.Atoi(s)
	return n
}

func transcriptTo(s string) int {
	if strings.EqualFold(s, "off") {
		return board.Bearoff
	}
	n, _ := strconv.Atoi(s)
	return n
}

// engineTokenRe matches one engine-output move token: either side may be
// "bar", "off", or a point number, with an optional hit marker and an
// optional "(n)" repeat count for shorthand like "24/18*(2)".
var engineTokenRe = regexp.MustCompile(`(?i)^(bar|off|\d+)/(bar|off|\d+)(\*)?(?:\((\d+)\))?$`)

func endpointValue(s string) int {
	switch strings.ToLower(s) {
	case "bar":
		return board.Bar
	case "off":
		return board.Bearoff
	default:
		n, _ := strconv.Atoi(s)
		return n
	}
}

// ExpandEngineToken expands one engine move token, lowercasing bar/off and
// expanding an "(n)" repeat count into n parts with the hit marker
// preserved only on the first copy.
func ExpandEngineToken(token string) []board.Part {
	m := engineTokenRe.FindStringSubmatch(token)
	if m == nil {
		return nil
	}
	from := endpointValue(m[1])
	to := endpointValue(m[2])
	hit := m[3] == "*"
	count := 1
	if m[4] != "" {
		if n, err := strconv.Atoi(m[4]); err == nil && n > 0 {
			count = n
		}
	}
	parts := make([]board.Part, count)
	for i := range parts {
		parts[i] = board.Part{From: from, To: to, Hit: hit && i == 0}
	}
	return parts
}

// ExpandEngineMoveText expands a full whitespace-separated engine move
// string into parts, in order.
func ExpandEngineMoveText(text string) []board.Part {
	var parts []board.Part
	for _, tok := range strings.Fields(text) {
		parts = append(parts, ExpandEngineToken(tok)...)
	}
	return parts
}

type canonEntry struct {
	from, to int
	hit      bool
}

// CanonicalTokens returns the sorted multiset of normalized token strings
// for parts: "from/to" or "from/to*", with 25 rendered as "bar" and 0 as
// "off". Among repeated from/to pairs, the hit marker is kept on only one
// instance (mirroring the shorthand-expansion rule), so a move typed out in
// full and the same move expressed as engine shorthand compare equal.
func CanonicalTokens(parts []board.Part) []string {
	entries := make([]canonEntry, len(parts))
	for i, p := range parts {
		entries[i] = canonEntry{p.From, p.To, p.Hit}
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].from != entries[j].from {
			return entries[i].from < entries[j].from
		}
		if entries[i].to != entries[j].to {
			return entries[i].to < entries[j].to
		}
		return entries[i].hit && !entries[j].hit
	})

	toks := make([]string, len(entries))
	for i, e := range entries {
		hit := e.hit
		if hit && i > 0 && entries[i-1].from == e.from && entries[i-1].to == e.to {
			hit = false
		}
		toks[i] = tokenString(e.from, e.to, hit)
	}
	sort.Strings(toks)
	return toks
}

func tokenString(from, to int, hit bool) string {
	fromStr := strconv.Itoa(from)
	if from == board.Bar {
		fromStr = "bar"
	}
	toStr := strconv.Itoa(to)
	if to == board.Bearoff {
		toStr = "off"
	}
	if hit {
		return fromStr + "/" + toStr + "*"
	}
	return fromStr + "/" + toStr
}

// Equal reports whether a and b are the same move under canonical form.
func Equal(a, b []board.Part) bool {
	ca, cb := CanonicalTokens(a), CanonicalTokens(b)
	if len(ca) != len(cb) {
		return false
	}
	for i := range ca {
		if ca[i] != cb[i] {
			return false
		}
	}
	return true
}
