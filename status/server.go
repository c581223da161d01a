// Package status serves a read-only HTTP view of the running sessions.
package status

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/dylanconnolly/segon-client/client"
	"github.com/dylanconnolly/segon-client/redis"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const defaultLeaderboardSize = 10

type SessionSource interface {
	Sessions(ctx context.Context) ([]client.Snapshot, error)
	Session(ctx context.Context, id uuid.UUID) (client.Snapshot, bool, error)
}

type LeaderboardSource interface {
	Leaderboard(ctx context.Context, n int64) ([]redis.Standing, error)
}

// Check reports the health of one dependency; nil means healthy.
type Check func(ctx context.Context) error

type errorResp struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

type StatusServer struct {
	sessions    SessionSource
	leaderboard LeaderboardSource
	checks      map[string]Check
	started     time.Time
	log         zerolog.Logger
}

type Option func(*StatusServer)

func WithLeaderboard(src LeaderboardSource) Option {
	return func(s *StatusServer) { s.leaderboard = src }
}

func WithCheck(name string, check Check) Option {
	return func(s *StatusServer) { s.checks[name] = check }
}

func NewStatusServer(sessions SessionSource, log zerolog.Logger, opts ...Option) *StatusServer {
	s := &StatusServer{
		sessions: sessions,
		checks:   make(map[string]Check),
		started:  time.Now(),
		log:      log,
	}
	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Healthz reports uptime and the state of every registered check.
func (s *StatusServer) Healthz(w http.ResponseWriter, r *http.Request) {
	deps := make(map[string]string, len(s.checks))
	for name, check := range s.checks {
		if err := check(r.Context()); err != nil {
			deps[name] = err.Error()
			continue
		}
		deps[name] = "ok"
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":       "ok",
		"uptime":       time.Since(s.started).Round(time.Second).String(),
		"dependencies": deps,
	})
}

// Sessions writes a snapshot of every session.
func (s *StatusServer) Sessions(w http.ResponseWriter, r *http.Request) {
	snaps, err := s.sessions.Sessions(r.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("could not list sessions")
		writeJSON(w, http.StatusServiceUnavailable, errorResp{Status: "ERROR", Message: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, snaps)
}

func (s *StatusServer) Session(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp{Status: "ERROR", Message: "invalid session id"})
		return
	}

	snap, ok, err := s.sessions.Session(r.Context(), id)
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResp{Status: "ERROR", Message: err.Error()})
		return
	}
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResp{Status: "ERROR", Message: "session not found"})
		return
	}

	writeJSON(w, http.StatusOK, snap)
}

// Leaderboard writes the best final scores. The size is taken from ?n=.
func (s *StatusServer) Leaderboard(w http.ResponseWriter, r *http.Request) {
	if s.leaderboard == nil {
		writeJSON(w, http.StatusNotFound, errorResp{Status: "ERROR", Message: "no result store configured"})
		return
	}

	n := int64(defaultLeaderboardSize)
	if v := r.URL.Query().Get("n"); v != "" {
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil || parsed < 1 {
			writeJSON(w, http.StatusBadRequest, errorResp{Status: "ERROR", Message: "n must be a positive integer"})
			return
		}
		n = parsed
	}

	standings, err := s.leaderboard.Leaderboard(r.Context(), n)
	if err != nil {
		s.log.Error().Err(err).Msg("could not read leaderboard")
		writeJSON(w, http.StatusServiceUnavailable, errorResp{Status: "ERROR", Message: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, standings)
}

func writeJSON(w http.ResponseWriter, statusCode int, obj any) error {
	b, err := json.Marshal(obj)
	if err != nil {
		return err
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_, err = w.Write(b)
	return err
}
