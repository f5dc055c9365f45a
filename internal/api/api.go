// Package api serves the trade-in brain over HTTP.
//
// Routes (all JSON):
//
//	POST   /v1/turns             process one user turn
//	GET    /v1/turns/ws          websocket stream of turns for one session
//	GET    /v1/sessions/{id}     checklist snapshot
//	DELETE /v1/sessions/{id}     evict a session
//	POST   /v1/quotes            top-up quote or clarification
//	GET    /v1/prices            price lookup by model, or search by q
//	POST   /v1/speech/normalize  currency normalization for speech output
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/MrWong99/tradein/internal/autosave"
	"github.com/MrWong99/tradein/internal/checklist"
	"github.com/MrWong99/tradein/internal/observe"
	"github.com/MrWong99/tradein/internal/quote"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 64 << 10

// Option is a functional option for configuring a [Server].
type Option func(*Server)

// WithMetrics sets the metrics sink. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithIDGenerator overrides how new session ids are minted. Default:
// random UUIDs.
func WithIDGenerator(fn func() string) Option {
	return func(s *Server) {
		s.newID = fn
	}
}

// Server holds the HTTP handlers. It is safe for concurrent use; turns of the
// same session are serialised.
type Server struct {
	sessions *checklist.Registry
	orch     *autosave.Orchestrator
	calc     *quote.Calculator
	metrics  *observe.Metrics
	newID    func() string
}

// New returns a [Server].
func New(sessions *checklist.Registry, orch *autosave.Orchestrator, calc *quote.Calculator, opts ...Option) *Server {
	s := &Server{
		sessions: sessions,
		orch:     orch,
		calc:     calc,
		newID:    uuid.NewString,
	}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	return s
}

// Routes registers the /v1 routes on r.
func (s *Server) Routes(r chi.Router) {
	r.Route("/v1", func(r chi.Router) {
		r.Post("/turns", s.handleTurn)
		r.Get("/turns/ws", s.handleTurnStream)
		r.Get("/sessions/{id}", s.handleGetSession)
		r.Delete("/sessions/{id}", s.handleDeleteSession)
		r.Post("/quotes", s.handleQuote)
		r.Get("/prices", s.handlePrices)
		r.Post("/speech/normalize", s.handleNormalize)
	})
}

// Handler returns a standalone router serving only the API routes.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	s.Routes(r)
	return r
}

// session returns the state for id, creating it when needed.
func (s *Server) session(ctx context.Context, id string) *checklist.State {
	st, created := s.sessions.GetOrCreate(id)
	if created {
		s.metrics.ActiveSessions.Add(ctx, 1)
		observe.Logger(observe.WithSessionID(ctx, id)).Info("session created")
	}
	return st
}

// runTurn processes one turn with the session's turn lock held.
func (s *Server) runTurn(ctx context.Context, req turnRequest) turnResponse {
	ctx = observe.WithSessionID(ctx, req.SessionID)
	defer s.sessions.Lock(req.SessionID)()

	st := s.session(ctx, req.SessionID)
	out := s.orch.ProcessTurn(ctx, st, autosave.Turn{User: req.User, Assistant: req.Assistant})
	return turnResponse{Outcome: out, Checklist: st.Snapshot()}
}

func (s *Server) handleTurn(w http.ResponseWriter, r *http.Request) {
	var req turnRequest
	if !decode(w, r, &req) {
		return
	}
	if req.SessionID == "" {
		req.SessionID = s.newID()
	}
	writeJSON(w, http.StatusOK, s.runTurn(r.Context(), req))
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	st, ok := s.sessions.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, st.Snapshot())
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !s.sessions.Evict(id) {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	s.metrics.ActiveSessions.Add(r.Context(), -1)
	observe.Logger(observe.WithSessionID(r.Context(), id)).Info("session evicted")
	w.WriteHeader(http.StatusNoContent)
}

// Sweep evicts sessions idle for longer than maxIdle and returns how many
// were evicted.
func (s *Server) Sweep(ctx context.Context, maxIdle time.Duration) int {
	n := s.sessions.EvictIdle(maxIdle)
	if n == 0 {
		return 0
	}
	s.metrics.ActiveSessions.Add(ctx, int64(-n))
	observe.Logger(ctx).Info("idle sessions evicted", "count", n, "max_idle", maxIdle)
	return n
}

// decode reads and validates a JSON body. It writes the error response and
// returns false on failure.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	if err := validate.Struct(v); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return false
	}
	return true
}

type errorBody struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

// writeJSON encodes v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error":"encode response"}`, http.StatusInternalServerError)
	}
}
