// Package api serves the Groundwork operations over HTTP, with a websocket
// endpoint for streamed chat turns.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/raphaelgruber/groundwork/internal/app"
	"github.com/raphaelgruber/groundwork/internal/llm"
	"github.com/raphaelgruber/groundwork/internal/models"
	"github.com/raphaelgruber/groundwork/internal/service"
	"github.com/raphaelgruber/groundwork/internal/store"
)

// Principal headers. Missing headers fall back to the configured owner and project.
const (
	HeaderOwner   = "X-Owner-ID"
	HeaderProject = "X-Project-ID"
)

const maxRequestBytes = 1 << 20

var errBadRequest = errors.New("bad request")

// Server routes HTTP requests to the services of an App.
type Server struct {
	app      *app.App
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

// New creates a Server for a.
func New(a *app.App) *Server {
	return &Server{
		app:    a,
		logger: a.Logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// Handler returns the routed handler wrapped in request logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})
	mux.Handle("GET /metrics", s.app.Metrics.Prometheus().Handler())
	mux.HandleFunc("GET /api/stats", s.handleStats)

	mux.HandleFunc("POST /api/conversations", s.handleCreateConversation)
	mux.HandleFunc("GET /api/conversations/{id}/messages", s.handleHistory)
	mux.HandleFunc("POST /api/conversations/{id}/turns", s.handleTurn)
	mux.HandleFunc("GET /ws/chat", s.handleChatSocket)
	mux.HandleFunc("POST /api/search", s.handleSearch)

	mux.HandleFunc("POST /api/sources", s.handleRegisterSource)
	mux.HandleFunc("GET /api/sources", s.handleListSources)
	mux.HandleFunc("GET /api/sources/{id}", s.handleGetSource)
	mux.HandleFunc("POST /api/sources/{id}/ingest", s.handleIngest)
	mux.HandleFunc("POST /api/backfill", s.handleBackfill)

	mux.HandleFunc("POST /api/memories", s.handleCreateMemory)
	mux.HandleFunc("GET /api/memories/{id}", s.handleGetMemory)
	mux.HandleFunc("PATCH /api/memories/{id}", s.handleUpdateMemory)
	mux.HandleFunc("POST /api/memories/{id}/review", s.handleReviewMemory)
	mux.HandleFunc("POST /api/memories/{id}/active", s.handleSetMemoryActive)

	mux.HandleFunc("GET /api/jobs", s.handleListJobs)
	mux.HandleFunc("GET /api/jobs/dead-letter", s.handleDeadLetters)
	mux.HandleFunc("GET /api/jobs/{id}", s.handleGetJob)
	mux.HandleFunc("POST /api/jobs/{id}/requeue", s.handleRequeue)

	return LoggingMiddleware(s.logger, mux)
}

// scope reads the principal from the request headers.
func (s *Server) scope(r *http.Request) models.Scope {
	scope := s.app.Config.Scope()
	if owner := strings.TrimSpace(r.Header.Get(HeaderOwner)); owner != "" {
		scope.OwnerID = owner
		// A caller naming an owner also names the project, possibly none.
		scope.ProjectID = ""
	}
	if project := strings.TrimSpace(r.Header.Get(HeaderProject)); project != "" {
		scope.ProjectID = project
	}
	return scope
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	writeJSON(w, status, ErrorResponse{Error: err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, service.ErrJobNotFound):
		return http.StatusNotFound
	case errors.Is(err, errBadRequest),
		errors.Is(err, models.ErrNoOwner),
		errors.Is(err, models.ErrInvalidType),
		errors.Is(err, service.ErrEmptyMessage),
		errors.Is(err, service.ErrEmptyQuery),
		errors.Is(err, service.ErrEmptyContent),
		errors.Is(err, service.ErrEmptyLocator):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrNotDeadLettered):
		return http.StatusConflict
	case errors.Is(err, llm.ErrGenerationFailed), errors.Is(err, llm.ErrStreamInterrupted):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// decode reads a JSON body into v. An empty body leaves v untouched.
func decode(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBytes)
	err := json.NewDecoder(r.Body).Decode(v)
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: %w", errBadRequest, err)
	}
	return nil
}
