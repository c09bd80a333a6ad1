package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rpggio/tallyroom/internal/domain/activity"
	"github.com/rpggio/tallyroom/internal/domain/counter"
)

// maxDocumentBytes bounds imported documents and request bodies.
const maxDocumentBytes = 1 << 20

// CounterService defines the room operations served over HTTP.
type CounterService interface {
	Get(ctx context.Context, roomKey string) (*counter.RoomState, error)
	ButtonState(ctx context.Context, roomKey string) (counter.ButtonState, error)
	Increment(ctx context.Context, roomKey, actor string) (*counter.RoomState, error)
	DeleteEntry(ctx context.Context, roomKey, entryID string) (*counter.RoomState, error)
	Export(ctx context.Context, roomKey string) (*counter.RoomState, error)
	Import(ctx context.Context, roomKey string, raw []byte) (*counter.RoomState, error)
	Subscribe(ctx context.Context, roomKey string, sub counter.PushSubscription) (*counter.RoomState, error)
}

// ActivityService defines the journal reads served over HTTP.
type ActivityService interface {
	GetRecentActivity(ctx context.Context, roomKey string, opts activity.ListActivityOptions) ([]activity.ActivityEntry, error)
}

// Config wires the HTTP server.
type Config struct {
	Counter     CounterService
	Activity    ActivityService
	DefaultRoom string
	// Metrics and MCP are mounted when set.
	Metrics http.Handler
	MCP     http.Handler
	Logger  *slog.Logger
}

// Server wires HTTP handlers.
type Server struct {
	counter  CounterService
	activity ActivityService
	logger   *slog.Logger
}

type incrementRequest struct {
	Username string `json:"username"`
}

type subscribeRequest struct {
	Endpoint string            `json:"endpoint"`
	Keys     map[string]string `json:"keys"`
}

// NewServer creates an HTTP server router with middleware.
func NewServer(cfg Config) *chi.Mux {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	srv := &Server{counter: cfg.Counter, activity: cfg.Activity, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", srv.handleHealth)
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics)
	}
	if cfg.MCP != nil {
		r.Handle("/mcp", cfg.MCP)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(RoomMiddleware(cfg.DefaultRoom))

		r.Get("/counter", srv.handleCounter)
		r.Get("/button-state", srv.handleButtonState)
		r.Post("/increment", srv.handleIncrement)
		r.Delete("/log/{id}", srv.handleDeleteEntry)
		r.Get("/export-data", srv.handleExport)
		r.Post("/import-data", srv.handleImport)
		r.Post("/subscribe", srv.handleSubscribe)
		if srv.activity != nil {
			r.Get("/activity", srv.handleActivity)
		}
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleCounter(w http.ResponseWriter, r *http.Request) {
	state, err := s.counter.Get(r.Context(), roomOf(r))
	if err != nil {
		writeServiceError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) handleButtonState(w http.ResponseWriter, r *http.Request) {
	bs, err := s.counter.ButtonState(r.Context(), roomOf(r))
	if err != nil {
		writeServiceError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, bs)
}

func (s *Server) handleIncrement(w http.ResponseWriter, r *http.Request) {
	var req incrementRequest
	if err := decodeOptionalBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	state, err := s.counter.Increment(r.Context(), roomOf(r), req.Username)
	if err != nil {
		writeServiceError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) handleDeleteEntry(w http.ResponseWriter, r *http.Request) {
	state, err := s.counter.DeleteEntry(r.Context(), roomOf(r), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	key := roomOf(r)
	state, err := s.counter.Export(r.Context(), key)
	if err != nil {
		writeServiceError(w, r, s.logger, err)
		return
	}
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		writeServiceError(w, r, s.logger, fmt.Errorf("encoding export: %w", err))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "room-"+key+".json"))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxDocumentBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "document too large")
			return
		}
		writeError(w, http.StatusBadRequest, "reading request body failed")
		return
	}

	state, err := s.counter.Import(r.Context(), roomOf(r), raw)
	if err != nil {
		writeServiceError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	var req subscribeRequest
	if err := decodeOptionalBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Endpoint) == "" {
		writeError(w, http.StatusBadRequest, "endpoint is required")
		return
	}

	state, err := s.counter.Subscribe(r.Context(), roomOf(r), counter.PushSubscription{
		Endpoint: req.Endpoint,
		Keys:     req.Keys,
	})
	if err != nil {
		writeServiceError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, state)
}

func (s *Server) handleActivity(w http.ResponseWriter, r *http.Request) {
	var opts activity.ListActivityOptions
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		opts.Limit = limit
	}
	if v := r.URL.Query().Get("type"); v != "" {
		typ := activity.ActivityType(v)
		opts.ActivityType = &typ
	}

	entries, err := s.activity.GetRecentActivity(r.Context(), roomOf(r), opts)
	if err != nil {
		writeServiceError(w, r, s.logger, err)
		return
	}
	if entries == nil {
		entries = []activity.ActivityEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// decodeOptionalBody decodes a JSON body into dst. An empty body is allowed.
func decodeOptionalBody(r *http.Request, dst any) error {
	if r.Body == nil {
		return nil
	}
	dec := json.NewDecoder(io.LimitReader(r.Body, maxDocumentBytes))
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func roomOf(r *http.Request) string {
	key, _ := RoomFromContext(r.Context())
	return key
}
