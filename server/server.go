// Package server exposes the tutor over a small JSON HTTP API:
//
//	GET  /healthz
//	POST /v1/sessions                 {"user_id": "..."}
//	POST /v1/sessions/{id}/messages   {"text": "..."}
//	GET  /v1/sessions/{id}/state
//
// Errors are written as {"error": "..."}.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/hupe1980/edumesh/core"
	"github.com/hupe1980/edumesh/logging"
	"github.com/hupe1980/edumesh/statesync"
	"github.com/hupe1980/edumesh/tutor"
)

// Tutor is the subset of *tutor.Tutor served by the API.
type Tutor interface {
	CreateSession(ctx context.Context, userID string) (string, error)
	Ask(ctx context.Context, sessionID, text string) (*tutor.Reply, error)
	State(ctx context.Context, sessionID string) (statesync.SessionState, error)
}

// Options configures a Server.
type Options struct {
	Logger        logging.Logger
	DefaultUserID string
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
}

// Server routes HTTP requests to a Tutor.
type Server struct {
	tutor  Tutor
	router *mux.Router
	opts   Options
	logger logging.Logger
}

// New creates a Server with all routes registered.
func New(t Tutor, optFns ...func(o *Options)) *Server {
	opts := Options{
		Logger:        logging.NoOpLogger{},
		DefaultUserID: "anonymous",
		ReadTimeout:   30 * time.Second,
		WriteTimeout:  2 * time.Minute,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	s := &Server{tutor: t, router: mux.NewRouter(), opts: opts, logger: opts.Logger}
	s.router.Use(s.logMiddleware)
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.router.HandleFunc("/healthz", s.health).Methods(http.MethodGet)

	v1 := s.router.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/sessions", s.createSession).Methods(http.MethodPost)
	v1.HandleFunc("/sessions/{id}/messages", s.postMessage).Methods(http.MethodPost)
	v1.HandleFunc("/sessions/{id}/state", s.getState).Methods(http.MethodGet)
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.router }

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server.start", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	s.logger.Info("server.shutdown", "addr", addr)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type createSessionRequest struct {
	UserID string `json:"user_id"`
}

type createSessionResponse struct {
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
}

type messageRequest struct {
	Text string `json:"text"`
}

type messageResponse struct {
	SessionID string         `json:"session_id"`
	RunID     string         `json:"run_id"`
	Reply     string         `json:"reply"`
	State     map[string]any `json:"state"`
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON payload")
			return
		}
	}
	if req.UserID == "" {
		req.UserID = s.opts.DefaultUserID
	}

	id, err := s.tutor.CreateSession(r.Context(), req.UserID)
	if err != nil {
		s.logger.Error("server.create_session.failed", "user_id", req.UserID, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, createSessionResponse{SessionID: id, UserID: req.UserID})
}

func (s *Server) postMessage(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var req messageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}

	if _, err := s.tutor.State(r.Context(), id); err != nil {
		s.writeStoreError(w, id, err)
		return
	}

	reply, err := s.tutor.Ask(r.Context(), id, req.Text)
	if errors.Is(err, tutor.ErrEmptyMessage) {
		writeError(w, http.StatusBadRequest, "text must not be empty")
		return
	}
	if err != nil {
		s.logger.Error("server.ask.failed", "session_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{
		SessionID: reply.SessionID,
		RunID:     reply.RunID,
		Reply:     reply.Text,
		State:     reply.State.AsMap(),
	})
}

func (s *Server) getState(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	st, err := s.tutor.State(r.Context(), id)
	if err != nil {
		s.writeStoreError(w, id, err)
		return
	}

	writeJSON(w, http.StatusOK, st.AsMap())
}

func (s *Server) writeStoreError(w http.ResponseWriter, id string, err error) {
	if errors.Is(err, core.ErrSessionNotFound) {
		writeError(w, http.StatusNotFound, "session not found: "+id)
		return
	}
	s.logger.Error("server.load_session.failed", "session_id", id, "error", err)
	writeError(w, http.StatusInternalServerError, err.Error())
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug("server.request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
