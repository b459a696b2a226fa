// Package api serves the OpenAI-Assistants-compatible HTTP surface:
// assistant, thread, message and run CRUD under /v1, run submission with
// optional SSE streaming, and the operational endpoints.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/haasonsaas/assistantd/internal/llm"
	"github.com/haasonsaas/assistantd/internal/observability"
	"github.com/haasonsaas/assistantd/internal/scheduler"
	"github.com/haasonsaas/assistantd/internal/storage"
	"github.com/haasonsaas/assistantd/internal/tools"
	"github.com/haasonsaas/assistantd/internal/vectorstore"
)

// Options wires the server's collaborators.
type Options struct {
	Stores    storage.StoreSet
	Scheduler *scheduler.Scheduler
	Backends  *llm.Registry
	Tools     *tools.Registry

	// Vectors backs the document ingest endpoints; nil disables them.
	Vectors vectorstore.Store

	// DeleteMode applies to all DELETE endpoints.
	DeleteMode storage.DeleteMode

	Logger  *slog.Logger
	Metrics *observability.Metrics
}

type Server struct {
	stores     storage.StoreSet
	scheduler  *scheduler.Scheduler
	backends   *llm.Registry
	tools      *tools.Registry
	vectors    vectorstore.Store
	deleteMode storage.DeleteMode
	logger     *slog.Logger
	metrics    *observability.Metrics
}

func NewServer(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.DeleteMode == "" {
		opts.DeleteMode = storage.SoftDelete
	}
	return &Server{
		stores:     opts.Stores,
		scheduler:  opts.Scheduler,
		backends:   opts.Backends,
		tools:      opts.Tools,
		vectors:    opts.Vectors,
		deleteMode: opts.DeleteMode,
		logger:     opts.Logger,
		metrics:    opts.Metrics,
	}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/assistants", s.createAssistant)
	mux.HandleFunc("GET /v1/assistants", s.listAssistants)
	mux.HandleFunc("GET /v1/assistants/{assistant_id}", s.retrieveAssistant)
	mux.HandleFunc("POST /v1/assistants/{assistant_id}", s.modifyAssistant)
	mux.HandleFunc("DELETE /v1/assistants/{assistant_id}", s.deleteAssistant)

	mux.HandleFunc("POST /v1/threads", s.createThread)
	mux.HandleFunc("GET /v1/threads", s.listThreads)
	mux.HandleFunc("GET /v1/threads/{thread_id}", s.retrieveThread)
	mux.HandleFunc("POST /v1/threads/{thread_id}", s.modifyThread)
	mux.HandleFunc("DELETE /v1/threads/{thread_id}", s.deleteThread)

	mux.HandleFunc("POST /v1/threads/{thread_id}/messages", s.createMessage)
	mux.HandleFunc("GET /v1/threads/{thread_id}/messages", s.listMessages)
	mux.HandleFunc("GET /v1/threads/{thread_id}/messages/{message_id}", s.retrieveMessage)
	mux.HandleFunc("POST /v1/threads/{thread_id}/messages/{message_id}", s.modifyMessage)
	mux.HandleFunc("DELETE /v1/threads/{thread_id}/messages/{message_id}", s.deleteMessage)

	mux.HandleFunc("POST /v1/threads/runs", s.createThreadAndRun)
	mux.HandleFunc("POST /v1/threads/{thread_id}/runs", s.createRun)
	mux.HandleFunc("GET /v1/threads/{thread_id}/runs", s.listRuns)
	mux.HandleFunc("GET /v1/threads/{thread_id}/runs/{run_id}", s.retrieveRun)
	mux.HandleFunc("POST /v1/threads/{thread_id}/runs/{run_id}", s.modifyRun)
	mux.HandleFunc("DELETE /v1/threads/{thread_id}/runs/{run_id}", s.deleteRun)
	mux.HandleFunc("POST /v1/threads/{thread_id}/runs/{run_id}/cancel", s.cancelRun)
	mux.HandleFunc("GET /v1/threads/{thread_id}/runs/{run_id}/steps", s.listRunSteps)
	mux.HandleFunc("GET /v1/threads/{thread_id}/runs/{run_id}/steps/{step_id}", s.retrieveRunStep)

	mux.HandleFunc("POST /v1/collections/{collection}/documents", s.indexDocuments)
	mux.HandleFunc("GET /v1/collections", s.listCollections)
	mux.HandleFunc("DELETE /v1/collections/{collection}", s.deleteCollection)

	mux.HandleFunc("GET /v1/models", s.listModels)
	mux.HandleFunc("GET /v1/tools", s.listTools)

	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /healthz", s.healthz)

	return mux
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func (s *Server) listModels(w http.ResponseWriter, _ *http.Request) {
	type modelEntry struct {
		ID      string `json:"id"`
		Object  string `json:"object"`
		OwnedBy string `json:"owned_by"`
	}
	entries := []modelEntry{}
	for _, name := range s.backends.Backends() {
		entries = append(entries, modelEntry{ID: name, Object: "model", OwnedBy: name})
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"object": "list", "data": entries})
}

func (s *Server) listTools(w http.ResponseWriter, _ *http.Request) {
	names := s.tools.Names()
	if names == nil {
		names = []string{}
	}
	s.writeJSON(w, http.StatusOK, names)
}

// apiError is the OpenAI-style error envelope.
type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("encoding response failed", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	kind := "invalid_request_error"
	if status >= 500 {
		kind = "server_error"
	}
	s.writeJSON(w, status, map[string]any{"error": apiError{Message: message, Type: kind}})
}

// storeError maps storage failures onto HTTP statuses.
func (s *Server) storeError(w http.ResponseWriter, err error, what string) {
	if errors.Is(err, storage.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, what+" not found")
		return
	}
	s.logger.Error("store operation failed", "error", err)
	s.writeError(w, http.StatusInternalServerError, "internal error")
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

func listOptions(r *http.Request) storage.ListOptions {
	q := r.URL.Query()
	opts := storage.ListOptions{
		Order:  q.Get("order"),
		After:  q.Get("after"),
		Before: q.Get("before"),
	}
	if limit := q.Get("limit"); limit != "" {
		if n, err := strconv.Atoi(limit); err == nil && n > 0 {
			opts.Limit = n
		}
	}
	return opts
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}
