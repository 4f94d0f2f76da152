package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/ragforge/ragcore/internal/domain"
)

type createCollectionRequest struct {
	Name        string                    `json:"name"`
	Description string                    `json:"description,omitempty"`
	Metadata    map[string]any            `json:"metadata,omitempty"`
	Settings    domain.CollectionSettings `json:"settings"`
}

func (s *Server) handleCreateCollection(w http.ResponseWriter, r *http.Request) {
	var req createCollectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, domain.NewValidationError("body", nil, domain.ErrInvalidCollection))
		return
	}

	col := domain.Collection{
		ID:          uuid.NewString(),
		Name:        req.Name,
		Description: req.Description,
		Metadata:    req.Metadata,
		Settings:    req.Settings,
		CreatedAt:   time.Now().UTC(),
		UpdatedAt:   time.Now().UTC(),
	}
	if err := s.resources.PutCollection(r.Context(), col); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, col)
}

func (s *Server) handleGetCollection(w http.ResponseWriter, r *http.Request) {
	col, err := s.resources.GetCollection(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, col)
}

func (s *Server) handleListResources(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.resources.GetCollection(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}

	resources, err := s.resources.ListResourcesByCollection(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	ownerID := r.URL.Query().Get("ownerId")
	includeContent := r.URL.Query().Get("content") == "true"
	filtered := make([]domain.Resource, 0, len(resources))
	for _, res := range resources {
		if ownerID != "" && res.OwnerID != ownerID {
			continue
		}
		if !includeContent {
			res.Content = ""
		}
		filtered = append(filtered, res)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"resources": filtered,
		"metadata":  map[string]any{"total": len(filtered)},
	})
}

type updateCollectionRequest struct {
	ChunkSize     *int                     `json:"chunkSize,omitempty"`
	ChunkOverlap  *int                     `json:"chunkOverlap,omitempty"`
	Strategy      *domain.ChunkingStrategy `json:"strategy,omitempty"`
	ChunkingURL   *string                  `json:"chunkingUrl,omitempty"`
	KeepDuplicate *bool                    `json:"keepDuplicate,omitempty"`
}

// handleUpdateCollection applies chunking-only setting changes; the dense
// encoder is immutable once a collection has documents, per the collection
// settings invariant.
func (s *Server) handleUpdateCollection(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	col, err := s.resources.GetCollection(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	var req updateCollectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, domain.NewValidationError("body", nil, domain.ErrInvalidCollection))
		return
	}
	if req.ChunkSize != nil {
		col.Settings.ChunkSize = *req.ChunkSize
	}
	if req.ChunkOverlap != nil {
		col.Settings.ChunkOverlap = *req.ChunkOverlap
	}
	if req.Strategy != nil {
		col.Settings.Strategy = *req.Strategy
	}
	if req.ChunkingURL != nil {
		col.Settings.ChunkingURL = *req.ChunkingURL
	}
	if req.KeepDuplicate != nil {
		col.Settings.KeepDuplicate = *req.KeepDuplicate
	}
	col.UpdatedAt = time.Now().UTC()

	if err := s.resources.PutCollection(r.Context(), col); err != nil {
		writeError(w, err)
		return
	}
	s.settings.Invalidate(id)
	writeJSON(w, http.StatusOK, col)
}
