package api

import (
	"net/http"

	"github.com/haasonsaas/assistantd/pkg/models"
)

type threadCreateRequest struct {
	Messages []messageCreateRequest `json:"messages"`
	Metadata map[string]any         `json:"metadata"`
}

type threadModifyRequest struct {
	Metadata map[string]any `json:"metadata"`
}

func (s *Server) createThread(w http.ResponseWriter, r *http.Request) {
	var req threadCreateRequest
	if !s.decode(w, r, &req) {
		return
	}

	thread, err := s.newThread(r, &req)
	if err != nil {
		s.storeError(w, err, "thread")
		return
	}
	s.writeJSON(w, http.StatusOK, thread)
}

// newThread persists a thread and any initial messages.
func (s *Server) newThread(r *http.Request, req *threadCreateRequest) (*models.Thread, error) {
	thread := &models.Thread{
		ID:        models.NewID(models.ObjectThread),
		Object:    models.ObjectThread,
		CreatedAt: nowMillis(),
		Metadata:  req.Metadata,
		Tag:       r.URL.Query().Get("tag"),
	}
	if err := s.stores.Threads.Create(r.Context(), thread); err != nil {
		return nil, err
	}
	for _, mr := range req.Messages {
		msg := newMessage(thread.ID, &mr)
		if err := s.stores.Messages.Create(r.Context(), msg); err != nil {
			return nil, err
		}
	}
	return thread, nil
}

func (s *Server) retrieveThread(w http.ResponseWriter, r *http.Request) {
	thread, err := s.stores.Threads.Get(r.Context(), r.PathValue("thread_id"))
	if err != nil {
		s.storeError(w, err, "thread")
		return
	}
	s.writeJSON(w, http.StatusOK, thread)
}

func (s *Server) modifyThread(w http.ResponseWriter, r *http.Request) {
	var req threadModifyRequest
	if !s.decode(w, r, &req) {
		return
	}
	thread, err := s.stores.Threads.Get(r.Context(), r.PathValue("thread_id"))
	if err != nil {
		s.storeError(w, err, "thread")
		return
	}
	if req.Metadata != nil {
		thread.Metadata = req.Metadata
	}
	if err := s.stores.Threads.Update(r.Context(), thread); err != nil {
		s.storeError(w, err, "thread")
		return
	}
	s.writeJSON(w, http.StatusOK, thread)
}

func (s *Server) deleteThread(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("thread_id")
	if err := s.stores.Threads.Delete(r.Context(), id, s.deleteMode); err != nil {
		s.storeError(w, err, "thread")
		return
	}
	s.writeJSON(w, http.StatusOK, models.DeletionStatus{
		ID:      id,
		Object:  models.ObjectThread + ".deleted",
		Deleted: true,
	})
}

func (s *Server) listThreads(w http.ResponseWriter, r *http.Request) {
	opts := listOptions(r)
	opts.Tag = r.URL.Query().Get("tag")
	items, hasMore, err := s.stores.Threads.List(r.Context(), opts)
	if err != nil {
		s.storeError(w, err, "threads")
		return
	}
	if items == nil {
		items = []*models.Thread{}
	}
	s.writeJSON(w, http.StatusOK, models.NewList(items,
		func(t *models.Thread) string { return t.ID }, hasMore))
}
