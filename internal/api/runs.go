package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/haasonsaas/assistantd/internal/scheduler"
	"github.com/haasonsaas/assistantd/pkg/models"
)

type runCreateRequest struct {
	AssistantID  string                  `json:"assistant_id"`
	Model        string                  `json:"model"`
	Instructions string                  `json:"instructions"`
	Tools        []models.ToolDescriptor `json:"tools"`
	Metadata     map[string]any          `json:"metadata"`
}

type runModifyRequest struct {
	Metadata map[string]any `json:"metadata"`
}

type threadAndRunRequest struct {
	AssistantID  string                  `json:"assistant_id"`
	Thread       threadCreateRequest     `json:"thread"`
	Model        string                  `json:"model"`
	Instructions string                  `json:"instructions"`
	Tools        []models.ToolDescriptor `json:"tools"`
	Metadata     map[string]any          `json:"metadata"`
}

const defaultStreamTimeout = 30 * time.Second

func (s *Server) createRun(w http.ResponseWriter, r *http.Request) {
	threadID := r.PathValue("thread_id")
	if _, err := s.stores.Threads.Get(r.Context(), threadID); err != nil {
		s.storeError(w, err, "thread")
		return
	}

	var req runCreateRequest
	if !s.decode(w, r, &req) {
		return
	}

	streaming := r.URL.Query().Get("stream") == "true"
	if streaming {
		if req.Metadata == nil {
			req.Metadata = map[string]any{}
		}
		req.Metadata["stream"] = true
	}

	run, err := s.submitRun(r, threadID, &req)
	if err != nil {
		s.storeError(w, err, "run")
		return
	}

	if streaming {
		s.streamRun(w, r, run.ID, streamTimeout(r))
		return
	}
	s.writeJSON(w, http.StatusOK, run)
}

// submitRun persists a queued run and hands it to the scheduler.
func (s *Server) submitRun(r *http.Request, threadID string, req *runCreateRequest) (*models.Run, error) {
	run := &models.Run{
		ID:           models.NewID(models.ObjectRun),
		Object:       models.ObjectRun,
		CreatedAt:    nowMillis(),
		ThreadID:     threadID,
		AssistantID:  req.AssistantID,
		Model:        req.Model,
		Instructions: req.Instructions,
		Tools:        req.Tools,
		Status:       models.RunStatusQueued,
		Metadata:     req.Metadata,
	}
	if err := s.stores.Runs.Create(r.Context(), run); err != nil {
		return nil, err
	}
	s.scheduler.Submit(run)
	return run, nil
}

func (s *Server) createThreadAndRun(w http.ResponseWriter, r *http.Request) {
	var req threadAndRunRequest
	if !s.decode(w, r, &req) {
		return
	}

	thread, err := s.newThread(r, &req.Thread)
	if err != nil {
		s.storeError(w, err, "thread")
		return
	}

	run, err := s.submitRun(r, thread.ID, &runCreateRequest{
		AssistantID:  req.AssistantID,
		Model:        req.Model,
		Instructions: req.Instructions,
		Tools:        req.Tools,
		Metadata:     req.Metadata,
	})
	if err != nil {
		s.storeError(w, err, "run")
		return
	}
	s.writeJSON(w, http.StatusOK, run)
}

func (s *Server) retrieveRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.stores.Runs.Get(r.Context(), r.PathValue("run_id"))
	if err != nil || run.ThreadID != r.PathValue("thread_id") {
		s.writeError(w, http.StatusNotFound, "run not found")
		return
	}
	s.writeJSON(w, http.StatusOK, run)
}

func (s *Server) modifyRun(w http.ResponseWriter, r *http.Request) {
	var req runModifyRequest
	if !s.decode(w, r, &req) {
		return
	}
	run, err := s.stores.Runs.Get(r.Context(), r.PathValue("run_id"))
	if err != nil || run.ThreadID != r.PathValue("thread_id") {
		s.writeError(w, http.StatusNotFound, "run not found")
		return
	}
	if req.Metadata != nil {
		run.Metadata = req.Metadata
	}
	if err := s.stores.Runs.Update(r.Context(), run); err != nil {
		s.storeError(w, err, "run")
		return
	}
	s.writeJSON(w, http.StatusOK, run)
}

func (s *Server) deleteRun(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("run_id")
	run, err := s.stores.Runs.Get(r.Context(), id)
	if err != nil || run.ThreadID != r.PathValue("thread_id") {
		s.writeError(w, http.StatusNotFound, "run not found")
		return
	}
	if err := s.stores.Runs.Delete(r.Context(), id, s.deleteMode); err != nil {
		s.storeError(w, err, "run")
		return
	}
	s.writeJSON(w, http.StatusOK, models.DeletionStatus{
		ID:      id,
		Object:  models.ObjectRun + ".deleted",
		Deleted: true,
	})
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	items, hasMore, err := s.stores.Runs.List(r.Context(), r.PathValue("thread_id"), listOptions(r))
	if err != nil {
		s.storeError(w, err, "runs")
		return
	}
	if items == nil {
		items = []*models.Run{}
	}
	s.writeJSON(w, http.StatusOK, models.NewList(items,
		func(run *models.Run) string { return run.ID }, hasMore))
}

// cancelRun acknowledges the cancel request. In-flight executions are not
// interrupted; the run is returned in its current state.
func (s *Server) cancelRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.stores.Runs.Get(r.Context(), r.PathValue("run_id"))
	if err != nil || run.ThreadID != r.PathValue("thread_id") {
		s.writeError(w, http.StatusNotFound, "run not found")
		return
	}
	s.writeJSON(w, http.StatusOK, run)
}

// Run steps are an accepted surface but execution does not record any.
func (s *Server) listRunSteps(w http.ResponseWriter, r *http.Request) {
	if run, err := s.stores.Runs.Get(r.Context(), r.PathValue("run_id")); err != nil || run.ThreadID != r.PathValue("thread_id") {
		s.writeError(w, http.StatusNotFound, "run not found")
		return
	}
	s.writeJSON(w, http.StatusOK, models.NewList([]*models.RunStep{},
		func(step *models.RunStep) string { return step.ID }, false))
}

func (s *Server) retrieveRunStep(w http.ResponseWriter, _ *http.Request) {
	s.writeError(w, http.StatusNotFound, "run step not found")
}

func streamTimeout(r *http.Request) time.Duration {
	if raw := r.URL.Query().Get("timeout"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			return time.Duration(n) * time.Second
		}
	}
	return defaultStreamTimeout
}

// streamRun replays a run's output stream as server-sent events. Tokens are
// framed as `event: message` with a {"c": token} payload, failures as
// `event: error` with {"e": message}. If the stream is not registered within
// the timeout, a single Timeout error event is sent.
func (s *Server) streamRun(w http.ResponseWriter, r *http.Request, runID string, timeout time.Duration) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	stream, ok := s.waitForStream(r, runID, timeout)
	if !ok {
		s.logger.Debug("stream registration timed out", "run_id", runID)
		writeSSE(w, "error", map[string]string{"e": "Timeout."})
		flusher.Flush()
		return
	}
	defer s.scheduler.Release(runID)

	for {
		ev, ok := stream.Next(r.Context())
		if ev.Err != nil {
			writeSSE(w, "error", map[string]string{"e": ev.Err.Error()})
			flusher.Flush()
		} else if ev.Token != "" {
			writeSSE(w, "message", map[string]string{"c": ev.Token})
			flusher.Flush()
		}
		if !ok {
			return
		}
	}
}

// waitForStream polls the scheduler's registry once per second until the
// run's stream appears or the timeout elapses.
func (s *Server) waitForStream(r *http.Request, runID string, timeout time.Duration) (*scheduler.OutputStream, bool) {
	deadline := time.Now().Add(timeout)
	for {
		if stream, ok := s.scheduler.Stream(runID); ok {
			return stream, true
		}
		if time.Now().After(deadline) {
			return nil, false
		}
		select {
		case <-r.Context().Done():
			return nil, false
		case <-time.After(time.Second):
		}
	}
}

func writeSSE(w http.ResponseWriter, event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
}
