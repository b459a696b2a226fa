package api

import (
	"net/http"

	"github.com/haasonsaas/assistantd/pkg/models"
)

type messageCreateRequest struct {
	Role     string         `json:"role"`
	Content  string         `json:"content"`
	FileIDs  []string       `json:"file_ids"`
	Metadata map[string]any `json:"metadata"`
}

type messageModifyRequest struct {
	Metadata map[string]any `json:"metadata"`
}

func newMessage(threadID string, req *messageCreateRequest) *models.Message {
	role := req.Role
	if role == "" {
		role = models.RoleUser
	}
	return &models.Message{
		ID:        models.NewID(models.ObjectMessage),
		Object:    models.ObjectMessage,
		CreatedAt: nowMillis(),
		ThreadID:  threadID,
		Role:      role,
		Content:   models.TextContent(req.Content),
		FileIDs:   req.FileIDs,
		Metadata:  req.Metadata,
	}
}

func (s *Server) createMessage(w http.ResponseWriter, r *http.Request) {
	threadID := r.PathValue("thread_id")
	if _, err := s.stores.Threads.Get(r.Context(), threadID); err != nil {
		s.storeError(w, err, "thread")
		return
	}

	var req messageCreateRequest
	if !s.decode(w, r, &req) {
		return
	}

	msg := newMessage(threadID, &req)
	msg.Tag = r.URL.Query().Get("tag")
	if err := s.stores.Messages.Create(r.Context(), msg); err != nil {
		s.storeError(w, err, "message")
		return
	}
	s.writeJSON(w, http.StatusOK, msg)
}

func (s *Server) retrieveMessage(w http.ResponseWriter, r *http.Request) {
	msg, err := s.stores.Messages.Get(r.Context(), r.PathValue("message_id"))
	if err != nil || msg.ThreadID != r.PathValue("thread_id") {
		s.writeError(w, http.StatusNotFound, "message not found")
		return
	}
	s.writeJSON(w, http.StatusOK, msg)
}

func (s *Server) modifyMessage(w http.ResponseWriter, r *http.Request) {
	var req messageModifyRequest
	if !s.decode(w, r, &req) {
		return
	}
	msg, err := s.stores.Messages.Get(r.Context(), r.PathValue("message_id"))
	if err != nil || msg.ThreadID != r.PathValue("thread_id") {
		s.writeError(w, http.StatusNotFound, "message not found")
		return
	}
	if req.Metadata != nil {
		msg.Metadata = req.Metadata
	}
	if err := s.stores.Messages.Update(r.Context(), msg); err != nil {
		s.storeError(w, err, "message")
		return
	}
	s.writeJSON(w, http.StatusOK, msg)
}

func (s *Server) deleteMessage(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("message_id")
	msg, err := s.stores.Messages.Get(r.Context(), id)
	if err != nil || msg.ThreadID != r.PathValue("thread_id") {
		s.writeError(w, http.StatusNotFound, "message not found")
		return
	}
	if err := s.stores.Messages.Delete(r.Context(), id, s.deleteMode); err != nil {
		s.storeError(w, err, "message")
		return
	}
	s.writeJSON(w, http.StatusOK, models.DeletionStatus{
		ID:      id,
		Object:  models.ObjectMessage + ".deleted",
		Deleted: true,
	})
}

func (s *Server) listMessages(w http.ResponseWriter, r *http.Request) {
	threadID := r.PathValue("thread_id")
	items, hasMore, err := s.stores.Messages.List(r.Context(), threadID, listOptions(r))
	if err != nil {
		s.storeError(w, err, "messages")
		return
	}
	if items == nil {
		items = []*models.Message{}
	}
	s.writeJSON(w, http.StatusOK, models.NewList(items,
		func(m *models.Message) string { return m.ID }, hasMore))
}
