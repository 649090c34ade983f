// Package httpapi is the thin HTTP transport over the quiz store, crawl
// queue, and engine driver: per-user Basic Auth, the quiz
// next/by-id/update/stats endpoints, and the crawl-and-analyze SSE
// stream.
package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/kagsteiner/GreatestBGHits/internal/analyzer"
	"github.com/kagsteiner/GreatestBGHits/internal/gnubg"
	"github.com/kagsteiner/GreatestBGHits/internal/queue"
	"github.com/kagsteiner/GreatestBGHits/internal/quizstore"
)

// Server holds the handlers' dependencies.
type Server struct {
	Store  *quizstore.Store
	Queue  *queue.Queue
	Engine *gnubg.Driver
	Log    *slog.Logger

	// DefaultDays is used by /addLastMatchesAndSave when the request body
	// omits "days".
	DefaultDays int
}

// New returns a Server. DefaultDays defaults to 7 if zero.
func New(store *quizstore.Store, q *queue.Queue, engine *gnubg.Driver, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{Store: store, Queue: q, Engine: engine, Log: log, DefaultDays: 7}
}

// Router builds the chi router serving the HTTP surface: public health and
// position-analysis endpoints, plus a Basic-Auth-protected group for the
// quiz and crawl-job endpoints.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Post("/analyzePositionFromMatch", s.handleAnalyzePosition)

	r.Group(func(r chi.Router) {
		r.Use(s.basicAuth)
		r.Get("/getQuiz", s.handleGetQuiz)
		r.Get("/getQuiz/{id}", s.handleGetQuizByID)
		r.Post("/updateQuiz", s.handleUpdateQuiz)
		r.Get("/getPlayers", s.handleGetPlayers)
		r.Get("/getStatistics", s.handleGetStatistics)
		r.Post("/addLastMatchesAndSave", s.handleAddLastMatches)
		r.Get("/addLastMatchesAndSave/stream", s.handleStream)
	})

	return r
}

type usernameKey struct{}

// basicAuth requires HTTP Basic credentials, normalizes the username into
// the per-request context as the storage key, and stores the raw password
// for forwarding to the source site during a crawl.
func (s *Server) basicAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user == "" {
			w.Header().Set("WWW-Authenticate", `Basic realm="quiz"`)
			writeError(w, http.StatusUnauthorized, "missing or invalid credentials")
			return
		}
		ctx := context.WithValue(r.Context(), usernameKey{}, credentials{
			username: quizstore.NormalizeUsername(user),
			rawUser:  user,
			password: pass,
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type credentials struct {
	username string
	rawUser  string
	password string
}

func credsFrom(r *http.Request) credentials {
	c, _ := r.Context().Value(usernameKey{}).(credentials)
	return c
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type analyzeRequest struct {
	MatchID       string  `json:"matchId"`
	PositionID    string  `json:"positionId,omitempty"`
	PositionIndex *int    `json:"positionIndex,omitempty"`
	Dice          *[2]int `json:"dice,omitempty"`
}

type wireCandidate struct {
	Move   string   `json:"move"`
	Equity *float64 `json:"equity,omitempty"`
	MWC    *float64 `json:"mwc,omitempty"`
}

type analyzeResponse struct {
	EngineAvailable bool            `json:"engineAvailable"`
	Moves           []wireCandidate `json:"moves"`
	Raw             string          `json:"raw,omitempty"`
}

func (s *Server) handleAnalyzePosition(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.MatchID == "" {
		writeError(w, http.StatusBadRequest, "matchId is required")
		return
	}

	resp, err := s.Engine.Analyze(r.Context(), gnubg.Request{
		MatchID:       req.MatchID,
		PositionID:    req.PositionID,
		PositionIndex: req.PositionIndex,
		Dice:          req.Dice,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	out := analyzeResponse{EngineAvailable: resp.EngineAvailable, Raw: resp.Raw}
	for _, c := range resp.Candidates {
		out.Moves = append(out.Moves, wireCandidate{Move: c.MoveText, Equity: c.Equity, MWC: c.MWC})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetQuiz(w http.ResponseWriter, r *http.Request) {
	creds := credsFrom(r)
	player := r.URL.Query().Get("player")

	rec, err := s.Store.NextQuiz(r.Context(), creds.username, player)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if rec == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleGetQuizByID(w http.ResponseWriter, r *http.Request) {
	creds := credsFrom(r)
	id := chi.URLParam(r, "id")

	rec, err := s.Store.GetByID(r.Context(), creds.username, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if rec == nil {
		writeError(w, http.StatusNotFound, "quiz not found")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

type updateQuizRequest struct {
	ID         string `json:"id"`
	WasCorrect bool   `json:"wasCorrect"`
}

func (s *Server) handleUpdateQuiz(w http.ResponseWriter, r *http.Request) {
	creds := credsFrom(r)
	var req updateQuizRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ID == "" {
		writeError(w, http.StatusBadRequest, "id is required")
		return
	}

	rec, err := s.Store.RecordResult(r.Context(), creds.username, req.ID, req.WasCorrect)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if rec == nil {
		writeError(w, http.StatusNotFound, "quiz not found")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleGetPlayers(w http.ResponseWriter, r *http.Request) {
	creds := credsFrom(r)
	names, err := s.Store.Players(r.Context(), creds.username)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	sort.Strings(names)
	writeJSON(w, http.StatusOK, names)
}

type statisticsResponse struct {
	TotalQuizzes  int               `json:"totalQuizzes"`
	TotalAttempts int               `json:"totalAttempts"`
	TotalCorrect  int               `json:"totalCorrect"`
	WorstQuizzes  []analyzer.Record `json:"worstQuizzes"`
}

func (s *Server) handleGetStatistics(w http.ResponseWriter, r *http.Request) {
	creds := credsFrom(r)
	stats, err := s.Store.Statistics(r.Context(), creds.username)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, statisticsResponse{
		TotalQuizzes:  stats.TotalQuizzes,
		TotalAttempts: stats.TotalAttempts,
		TotalCorrect:  stats.TotalCorrect,
		WorstQuizzes:  stats.Worst,
	})
}

type addMatchesRequest struct {
	Days   int    `json:"days"`
	UserID string `json:"userId"`
}

type addMatchesResponse struct {
	JobID      string `json:"jobId"`
	AheadCount int    `json:"aheadCount"`
}

func (s *Server) handleAddLastMatches(w http.ResponseWriter, r *http.Request) {
	creds := credsFrom(r)
	var req addMatchesRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	days := req.Days
	if days <= 0 {
		days = s.DefaultDays
	}
	sourceUser := req.UserID
	if sourceUser == "" {
		sourceUser = creds.rawUser
	}

	job, ahead := s.Queue.Enqueue(queue.Payload{
		StorageKey:  creds.username,
		Credentials: queue.Credentials{Username: sourceUser, Password: creds.password},
		Days:        days,
	})
	writeJSON(w, http.StatusOK, addMatchesResponse{JobID: job.ID, AheadCount: ahead})
}

// handleStream serves the SSE stream of queue/progress/done/error events
// for a job, replaying its backlog before forwarding live events.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	jobID := r.URL.Query().Get("jobId")
	job := s.Queue.Get(jobID)
	if job == nil {
		writeError(w, http.StatusNotFound, "unknown job id")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := job.Attach()
	defer job.Detach(ch)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, open := <-ch:
			if !open {
				return
			}
			writeSSE(w, ev)
			flusher.Flush()
			if ev.Kind == "done" || ev.Kind == "error" {
				return
			}
		}
	}
}

func writeSSE(w http.ResponseWriter, ev queue.Event) {
	var payload interface{}
	switch ev.Kind {
	case "queue":
		payload = ev.Queue
	case "progress":
		payload = ev.Progress
	case "done":
		payload = ev.Done
	case "error":
		payload = ev.Error
	default:
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Kind, data)
}

