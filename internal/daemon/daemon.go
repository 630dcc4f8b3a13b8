// Package daemon exposes the loopback HTTP control surface for the tracker.
package daemon

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/groblegark/tempo/internal/model"
	"github.com/groblegark/tempo/internal/state"
	"github.com/groblegark/tempo/internal/store"
	"github.com/groblegark/tempo/internal/tracker"
)

// Controller is the slice of the tracker the control surface drives.
type Controller interface {
	Start(ctx context.Context) (state.Snapshot, error)
	Pause(ctx context.Context) (state.Snapshot, error)
	Resume(ctx context.Context) (state.Snapshot, error)
	Stop(ctx context.Context) (state.Snapshot, error)
	Status(ctx context.Context) *tracker.Status
	SetIssueOverride(key string) (string, error)
}

// Server handles the control API.
type Server struct {
	ctrl    Controller
	store   store.Store
	logger  *slog.Logger
	version string
}

// NewServer returns a Server. The store is used read-only for dumps.
func NewServer(ctrl Controller, st store.Store, logger *slog.Logger, version string) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{ctrl: ctrl, store: st, logger: logger, version: version}
}

// NewHTTPHandler returns an http.Handler with all routes registered.
func (s *Server) NewHTTPHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/status", s.handleStatus)
	mux.HandleFunc("GET /v1/health", s.handleHealth)
	mux.HandleFunc("POST /v1/start", s.handleStart)
	mux.HandleFunc("POST /v1/pause", s.handlePause)
	mux.HandleFunc("POST /v1/resume", s.handleResume)
	mux.HandleFunc("POST /v1/stop", s.handleStop)
	mux.HandleFunc("POST /v1/issue", s.handleSetIssue)
	mux.HandleFunc("GET /v1/sessions", s.handleListSessions)
	mux.HandleFunc("GET /v1/export", s.handleExport)
	return mux
}

// ControlResponse is the envelope for every control mutation.
type ControlResponse struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Status  *tracker.Status `json:"status,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": s.version})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st := s.ctrl.Status(r.Context())
	writeJSON(w, http.StatusOK, struct {
		*tracker.Status
		Version string `json:"version"`
	}{Status: st, Version: s.version})
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, "tracking started", s.ctrl.Start)
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, "tracking paused", s.ctrl.Pause)
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, "tracking resumed", s.ctrl.Resume)
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, "tracking stopped", s.ctrl.Stop)
}

func (s *Server) transition(w http.ResponseWriter, r *http.Request, msg string, op func(context.Context) (state.Snapshot, error)) {
	if _, err := op(r.Context()); err != nil {
		status := http.StatusInternalServerError
		var stateErr state.Error
		if errors.As(err, &stateErr) {
			status = http.StatusConflict
		}
		s.logger.Warn("transition rejected", "msg", msg, "err", err)
		writeJSON(w, status, ControlResponse{Success: false, Message: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, ControlResponse{
		Success: true,
		Message: msg,
		Status:  s.ctrl.Status(r.Context()),
	})
}

type setIssueRequest struct {
	IssueKey string `json:"issue_key"`
}

func (s *Server) handleSetIssue(w http.ResponseWriter, r *http.Request) {
	var req setIssueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	key, err := s.ctrl.SetIssueOverride(req.IssueKey)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	msg := "issue override cleared"
	if key != "" {
		msg = "issue override set to " + key
	}
	writeJSON(w, http.StatusOK, ControlResponse{
		Success: true,
		Message: msg,
		Status:  s.ctrl.Status(r.Context()),
	})
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	format := strings.ToLower(r.URL.Query().Get("format"))
	if format == "" {
		format = "csv"
	}
	if format != "csv" && format != "json" {
		writeError(w, http.StatusBadRequest, "unsupported format: "+format)
		return
	}

	var (
		session *model.Session
		err     error
		missing string
	)
	if id := r.URL.Query().Get("session"); id != "" {
		session, err = s.store.GetSession(r.Context(), id)
		missing = "session " + id + " not found"
	} else {
		session, err = s.store.GetActiveSession(r.Context())
		missing = "no active session found"
	}
	if errors.Is(err, sql.ErrNoRows) || (err == nil && session == nil) {
		writeError(w, http.StatusNotFound, missing)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeDump(w, r, session.ID, format)
}

// SessionList is the payload of GET /v1/sessions.
type SessionList struct {
	Sessions []*model.Session `json:"sessions"`
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "invalid limit: "+v)
			return
		}
		limit = n
	}
	sessions, err := s.store.ListSessions(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if sessions == nil {
		sessions = []*model.Session{}
	}
	writeJSON(w, http.StatusOK, SessionList{Sessions: sessions})
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
