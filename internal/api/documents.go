package api

import (
	"errors"
	"net/http"

	"github.com/haasonsaas/assistantd/internal/vectorstore"
)

type documentIngestRequest struct {
	Documents []struct {
		ID       string         `json:"id"`
		Text     string         `json:"text"`
		Metadata map[string]any `json:"metadata"`
	} `json:"documents"`
}

// indexDocuments ingests text chunks into a retrieval collection. Runs
// reference the collection through their file_ids or the
// retrieval_collection metadata key.
func (s *Server) indexDocuments(w http.ResponseWriter, r *http.Request) {
	if s.vectors == nil {
		s.writeError(w, http.StatusNotImplemented, "document storage not configured")
		return
	}
	var req documentIngestRequest
	if !s.decode(w, r, &req) {
		return
	}
	if len(req.Documents) == 0 {
		s.writeError(w, http.StatusBadRequest, "documents is required")
		return
	}

	docs := make([]vectorstore.Document, len(req.Documents))
	for i, d := range req.Documents {
		if d.Text == "" {
			s.writeError(w, http.StatusBadRequest, "document text is required")
			return
		}
		docs[i] = vectorstore.Document{ID: d.ID, Text: d.Text, Metadata: d.Metadata}
	}

	collection := r.PathValue("collection")
	if err := s.vectors.Index(r.Context(), collection, docs); err != nil {
		s.logger.Error("indexing documents failed", "collection", collection, "error", err)
		s.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"object":     "collection",
		"collection": collection,
		"indexed":    len(docs),
	})
}

func (s *Server) listCollections(w http.ResponseWriter, r *http.Request) {
	if s.vectors == nil {
		s.writeError(w, http.StatusNotImplemented, "document storage not configured")
		return
	}
	names, err := s.vectors.Collections(r.Context())
	if err != nil {
		s.logger.Error("listing collections failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if names == nil {
		names = []string{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"object": "list", "data": names})
}

func (s *Server) deleteCollection(w http.ResponseWriter, r *http.Request) {
	if s.vectors == nil {
		s.writeError(w, http.StatusNotImplemented, "document storage not configured")
		return
	}
	collection := r.PathValue("collection")
	if err := s.vectors.DeleteCollection(r.Context(), collection); err != nil {
		if errors.Is(err, vectorstore.ErrCollectionNotFound) {
			s.writeError(w, http.StatusNotFound, "collection not found")
			return
		}
		s.logger.Error("deleting collection failed", "collection", collection, "error", err)
		s.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"id":      collection,
		"object":  "collection.deleted",
		"deleted": true,
	})
}
