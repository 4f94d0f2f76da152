package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/ragforge/ragcore/internal/domain"
	"github.com/ragforge/ragcore/internal/ingestworker"
)

const chunkKind = "chunk"

type createResourceRequest struct {
	CollectionID string                            `json:"collectionId"`
	OwnerID      string                            `json:"ownerId,omitempty"`
	Title        string                             `json:"title,omitempty"`
	URL          string                             `json:"url,omitempty"`
	Content      string                             `json:"content,omitempty"`
	Description  string                             `json:"description,omitempty"`
	Metadata     map[string]any                     `json:"metadata,omitempty"`
	Chunking     *domain.ResourceChunkingOverride   `json:"chunking,omitempty"`
}

func (s *Server) handleCreateResource(w http.ResponseWriter, r *http.Request) {
	var req createResourceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, domain.NewValidationError("body", nil, domain.ErrInvalidResource))
		return
	}
	if req.CollectionID == "" {
		writeError(w, domain.NewValidationError("collectionId", req.CollectionID, domain.ErrInvalidResource))
		return
	}
	if _, err := s.resources.GetCollection(r.Context(), req.CollectionID); err != nil {
		writeError(w, err)
		return
	}

	now := time.Now().UTC()
	res := domain.Resource{
		ID:           uuid.NewString(),
		CollectionID: req.CollectionID,
		OwnerID:      domain.OwnerOrDefault(req.OwnerID),
		Title:        req.Title,
		URL:          req.URL,
		Content:      req.Content,
		Description:  req.Description,
		Metadata:     req.Metadata,
		Chunking:     req.Chunking,
		RefreshedAt:  now,
		CreatedAt:    now,
	}
	if err := s.resources.PutResource(r.Context(), res); err != nil {
		writeError(w, err)
		return
	}

	s.publishIngestEvent(r.Context(), ingestworker.EventLoad, ingestworker.LoadData{ResourceID: res.ID})

	writeJSON(w, http.StatusCreated, res)
}

func (s *Server) handleGetResource(w http.ResponseWriter, r *http.Request) {
	res, err := s.resources.GetResource(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleResourceChunks(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.resources.GetResource(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}

	raws, err := s.chunks.List(r.Context(), chunkKind, map[string]string{"resourceId": id})
	if err != nil {
		writeError(w, err)
		return
	}
	chunks := make([]domain.Chunk, 0, len(raws))
	for _, raw := range raws {
		var c domain.Chunk
		if err := json.Unmarshal(raw, &c); err != nil {
			continue
		}
		chunks = append(chunks, c)
	}
	writeJSON(w, http.StatusOK, map[string]any{"chunks": chunks})
}

type updateResourceRequest struct {
	Title       *string                          `json:"title,omitempty"`
	URL         *string                          `json:"url,omitempty"`
	Description *string                          `json:"description,omitempty"`
	Metadata    map[string]any                   `json:"metadata,omitempty"`
	Chunking    *domain.ResourceChunkingOverride `json:"chunking,omitempty"`
}

func (s *Server) handleUpdateResource(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	res, err := s.resources.GetResource(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	var req updateResourceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, domain.NewValidationError("body", nil, domain.ErrInvalidResource))
		return
	}
	if req.Title != nil {
		res.Title = *req.Title
	}
	changedURL := false
	if req.URL != nil && *req.URL != res.URL {
		res.URL = *req.URL
		changedURL = true
	}
	if req.Description != nil {
		res.Description = *req.Description
	}
	if req.Metadata != nil {
		res.Metadata = req.Metadata
	}
	if req.Chunking != nil {
		res.Chunking = req.Chunking
	}

	if err := s.resources.PutResource(r.Context(), res); err != nil {
		writeError(w, err)
		return
	}

	if changedURL {
		s.publishIngestEvent(r.Context(), ingestworker.EventLoad, ingestworker.LoadData{ResourceID: res.ID})
	} else {
		s.publishIngestEvent(r.Context(), ingestworker.EventUpdate, ingestworker.UpdateData{ResourceID: res.ID})
	}

	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleDeleteResource(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	res, err := s.resources.GetResource(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	res.IsDeleted = true
	res.Status = domain.StatusDeleted
	if err := s.resources.PutResource(r.Context(), res); err != nil {
		writeError(w, err)
		return
	}

	s.publishIngestEvent(r.Context(), ingestworker.EventDelete, ingestworker.DeleteData{ResourceID: id})

	writeJSON(w, http.StatusOK, res)
}
