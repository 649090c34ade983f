// Package gnubg drives the external gnubg-style analysis engine: it spawns
// the configured executable once per position, hands it a JSON request file,
// and reads back a JSON response of ranked candidate moves. The engine is
// single-instance and stateful per invocation, so the driver serializes
// every call globally.
package gnubg

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/kagsteiner/GreatestBGHits/internal/board"
	"github.com/kagsteiner/GreatestBGHits/internal/move"
)

// Request is the analysis query sent to the engine for one ply.
type Request struct {
	MatchID       string   `json:"matchId"`
	PositionID    string   `json:"positionId,omitempty"`
	PositionIndex *int     `json:"positionIndex,omitempty"`
	Dice          *[2]int  `json:"dice,omitempty"`
}

// Candidate is one ranked move in the engine's response, normalized into
// parts and, when the engine supplied mwc instead of equity, a scaled
// match-winning-chance value alongside the raw text.
type Candidate struct {
	MoveText string
	Parts    []board.Part
	Equity   *float64
	MWC      *float64
}

// Response is the engine's (possibly unavailable) analysis of a position.
// EngineAvailable is false whenever the executable is unconfigured or
// fails to launch; callers treat that as "skip this ply".
type Response struct {
	EngineAvailable bool
	Candidates      []Candidate
	Raw             string
}

// Driver launches the configured engine executable per request.
type Driver struct {
	mu         sync.Mutex
	enginePath string
	modeFlag   string
	tempDir    string
	log        *slog.Logger
}

// New returns a Driver. enginePath == "" makes every Analyze call report
// EngineAvailable: false.
func New(enginePath, modeFlag string, log *slog.Logger) *Driver {
	if log == nil {
		log = slog.Default()
	}
	return &Driver{enginePath: enginePath, modeFlag: modeFlag, log: log}
}

type wireCandidate struct {
	Move   string   `json:"move"`
	Moves  string   `json:"moves,omitempty"`
	Equity *float64 `json:"equity,omitempty"`
	MWC    *float64 `json:"mwc,omitempty"`
}

type wireResponse struct {
	EngineAvailable bool            `json:"engineAvailable"`
	Moves           []wireCandidate `json:"moves"`
	Raw             string          `json:"raw,omitempty"`
}

// Analyze invokes the engine for a single position/dice pair and returns
// its ranked candidates, best-first. It never returns a non-nil error for
// an unreachable or unconfigured engine — that is reported through
// Response.EngineAvailable instead.
func (d *Driver) Analyze(ctx context.Context, req Request) (Response, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.enginePath == "" {
		return Response{EngineAvailable: false}, nil
	}

	reqPath, respPath, cleanup, err := d.tempPaths()
	if err != nil {
		return Response{}, fmt.Errorf("gnubg: allocate temp files: %w", err)
	}
	defer cleanup()

	reqBytes, err := json.Marshal(req)
	if err != nil {
		return Response{}, fmt.Errorf("gnubg: marshal request: %w", err)
	}
	if err := os.WriteFile(reqPath, reqBytes, 0o600); err != nil {
		return Response{}, fmt.Errorf("gnubg: write request file: %w", err)
	}

	cmd := exec.CommandContext(ctx, d.enginePath, d.modeFlag)
	cmd.Env = append(os.Environ(),
		"BG_REQUEST_FILE="+reqPath,
		"BG_RESPONSE_FILE="+respPath,
	)
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stdout

	if err := cmd.Run(); err != nil {
		d.log.Warn("engine launch failed", "path", d.enginePath, "err", err)
		return Response{EngineAvailable: false}, nil
	}

	if resp, ok := readWireResponse(respPath); ok {
		return normalize(resp), nil
	}

	if cands := parseFallback(stdout.String()); len(cands) > 0 {
		return Response{EngineAvailable: true, Candidates: cands, Raw: stdout.String()}, nil
	}

	d.log.Warn("engine produced no usable output", "path", d.enginePath)
	return Response{EngineAvailable: false, Raw: stdout.String()}, nil
}

func (d *Driver) tempPaths() (reqPath, respPath string, cleanup func(), err error) {
	dir, err := os.MkdirTemp("", "gnubg-*")
	if err != nil {
		return "", "", nil, err
	}
	cleanup = func() { os.RemoveAll(dir) }
	return filepath.Join(dir, "request.json"), filepath.Join(dir, "response.json"), cleanup, nil
}

func readWireResponse(path string) (wireResponse, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return wireResponse{}, false
	}
	var resp wireResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return wireResponse{}, false
	}
	return resp, true
}

func normalize(w wireResponse) Response {
	cands := make([]Candidate, 0, len(w.Moves))
	for _, wc := range w.Moves {
		text := wc.Move
		if text == "" {
			text = wc.Moves
		}
		c := Candidate{
			MoveText: text,
			Parts:    move.ExpandEngineMoveText(text),
			Equity:   wc.Equity,
		}
		if wc.MWC != nil {
			scaled := scaleMWC(*wc.MWC)
			c.MWC = &scaled
		}
		cands = append(cands, c)
	}
	return Response{EngineAvailable: w.EngineAvailable, Candidates: cands, Raw: w.Raw}
}

// scaleMWC brings a match-winning-chance value into 0..1 range; engines
// sometimes report it as a 0..100 percentage.
func scaleMWC(mwc float64) float64 {
	if mwc > 1 {
		return mwc / 100
	}
	return mwc
}

var (
	rankLineRe = regexp.MustCompile(`^\s*\d+[.)]\s*(.+)$`)
	eqRe       = regexp.MustCompile(`Eq\.?:\s*([+-]?\d+(?:\.\d+)?)`)
	mwcRe      = regexp.MustCompile(`MWC:\s*(\d+(?:\.\d+)?)\s*%`)
	prefixRe   = regexp.MustCompile(`(?i)^(Cubeful|Cubeless|Rollout)\s+`)
)

// parseFallback extracts ranked candidates from unstructured engine stdout:
// lines starting with a rank prefix "N." or "N)" carry an "Eq.: <float>" or
// "MWC: <pct>%" marker, with the move text to its left.
func parseFallback(stdout string) []Candidate {
	var cands []Candidate
	for _, line := range strings.Split(stdout, "\n") {
		rm := rankLineRe.FindStringSubmatch(line)
		if rm == nil {
			continue
		}
		rest := rm[1]

		var moveText string
		var equity, mwc *float64
		if loc := eqRe.FindStringSubmatchIndex(rest); loc != nil {
			moveText = rest[:loc[0]]
			if v, err := strconv.ParseFloat(rest[loc[2]:loc[3]], 64); err == nil {
				equity = &v
			}
		} else if loc := mwcRe.FindStringSubmatchIndex(rest); loc != nil {
			moveText = rest[:loc[0]]
			if v, err := strconv.ParseFloat(rest[loc[2]:loc[3]], 64); err == nil {
				scaled := scaleMWC(v)
				mwc = &scaled
			}
		} else {
			continue
		}

		moveText = strings.TrimSpace(prefixRe.ReplaceAllString(strings.TrimSpace(moveText), ""))
		if moveText == "" {
			continue
		}
		cands = append(cands, Candidate{
			MoveText: moveText,
			Parts:    move.ExpandEngineMoveText(moveText),
			Equity:   equity,
			MWC:      mwc,
		})
	}
	return cands
}
