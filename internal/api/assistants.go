package api

import (
	"net/http"

	"github.com/haasonsaas/assistantd/pkg/models"
)

type assistantCreateRequest struct {
	Model        string                  `json:"model"`
	Name         string                  `json:"name"`
	Description  string                  `json:"description"`
	Instructions string                  `json:"instructions"`
	Tools        []models.ToolDescriptor `json:"tools"`
	FileIDs      []string                `json:"file_ids"`
	Metadata     map[string]any          `json:"metadata"`
}

type assistantModifyRequest struct {
	Model        *string                  `json:"model"`
	Name         *string                  `json:"name"`
	Description  *string                  `json:"description"`
	Instructions *string                  `json:"instructions"`
	Tools        *[]models.ToolDescriptor `json:"tools"`
	FileIDs      *[]string                `json:"file_ids"`
	Metadata     map[string]any           `json:"metadata"`
}

func (s *Server) createAssistant(w http.ResponseWriter, r *http.Request) {
	var req assistantCreateRequest
	if !s.decode(w, r, &req) {
		return
	}

	assistant := &models.Assistant{
		ID:           models.NewID(models.ObjectAssistant),
		Object:       models.ObjectAssistant,
		CreatedAt:    nowMillis(),
		Name:         req.Name,
		Description:  req.Description,
		Model:        req.Model,
		Instructions: req.Instructions,
		Tools:        req.Tools,
		FileIDs:      req.FileIDs,
		Metadata:     req.Metadata,
		Tag:          r.URL.Query().Get("tag"),
	}
	if err := s.stores.Assistants.Create(r.Context(), assistant); err != nil {
		s.storeError(w, err, "assistant")
		return
	}
	s.writeJSON(w, http.StatusOK, assistant)
}

func (s *Server) retrieveAssistant(w http.ResponseWriter, r *http.Request) {
	assistant, err := s.stores.Assistants.Get(r.Context(), r.PathValue("assistant_id"))
	if err != nil {
		s.storeError(w, err, "assistant")
		return
	}
	s.writeJSON(w, http.StatusOK, assistant)
}

func (s *Server) modifyAssistant(w http.ResponseWriter, r *http.Request) {
	var req assistantModifyRequest
	if !s.decode(w, r, &req) {
		return
	}

	assistant, err := s.stores.Assistants.Get(r.Context(), r.PathValue("assistant_id"))
	if err != nil {
		s.storeError(w, err, "assistant")
		return
	}
	if req.Model != nil {
		assistant.Model = *req.Model
	}
	if req.Name != nil {
		assistant.Name = *req.Name
	}
	if req.Description != nil {
		assistant.Description = *req.Description
	}
	if req.Instructions != nil {
		assistant.Instructions = *req.Instructions
	}
	if req.Tools != nil {
		assistant.Tools = *req.Tools
	}
	if req.FileIDs != nil {
		assistant.FileIDs = *req.FileIDs
	}
	if req.Metadata != nil {
		assistant.Metadata = req.Metadata
	}
	if err := s.stores.Assistants.Update(r.Context(), assistant); err != nil {
		s.storeError(w, err, "assistant")
		return
	}
	s.writeJSON(w, http.StatusOK, assistant)
}

func (s *Server) deleteAssistant(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("assistant_id")
	if err := s.stores.Assistants.Delete(r.Context(), id, s.deleteMode); err != nil {
		s.storeError(w, err, "assistant")
		return
	}
	s.writeJSON(w, http.StatusOK, models.DeletionStatus{
		ID:      id,
		Object:  models.ObjectAssistant + ".deleted",
		Deleted: true,
	})
}

func (s *Server) listAssistants(w http.ResponseWriter, r *http.Request) {
	items, hasMore, err := s.stores.Assistants.List(r.Context(), listOptions(r))
	if err != nil {
		s.storeError(w, err, "assistants")
		return
	}
	if items == nil {
		items = []*models.Assistant{}
	}
	s.writeJSON(w, http.StatusOK, models.NewList(items,
		func(a *models.Assistant) string { return a.ID }, hasMore))
}
