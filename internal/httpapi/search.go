package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/ragforge/ragcore/internal/query"
)

type searchRequest struct {
	Query        string  `json:"query"`
	CollectionID string  `json:"collectionId"`
	OwnerID      string  `json:"ownerId,omitempty"`
	ResourceID   string  `json:"resourceId,omitempty"`
	IsReview     bool    `json:"isReview,omitempty"`
	Limit        int     `json:"limit,omitempty"`
	MinScore     float64 `json:"minScore,omitempty"`
}

type searchResultFeedback struct {
	UpvoteURL   string `json:"upvoteUrl"`
	DownvoteURL string `json:"downvoteUrl"`
}

type searchResult struct {
	ID       string                `json:"id"`
	Score    float64               `json:"score"`
	Payload  map[string]any        `json:"payload"`
	Feedback *searchResultFeedback `json:"feedback,omitempty"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, fmt.Errorf("decode search request: %w", err))
		return
	}

	results, err := s.engine.Query(r.Context(), query.Request{
		CollectionID: req.CollectionID,
		OwnerID:      req.OwnerID,
		ResourceID:   req.ResourceID,
		Query:        req.Query,
		TopK:         req.Limit,
		UseFeedback:  true,
		Analytics:    true,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	ownerID := req.OwnerID
	out := make([]searchResult, 0, len(results))
	for _, res := range results {
		if req.MinScore > 0 && res.Score < req.MinScore {
			continue
		}
		sr := searchResult{
			ID:    res.ID,
			Score: res.Score,
			Payload: map[string]any{
				"content":  res.Content,
				"metadata": res.Metadata,
			},
		}
		if req.IsReview {
			refID := uuid.NewString()
			s.links.put(refID, voteLink{
				Query:        req.Query,
				CollectionID: req.CollectionID,
				ChunkID:      res.ID,
				ResourceID:   res.ResourceID,
				OwnerID:      ownerID,
			})
			sr.Feedback = &searchResultFeedback{
				UpvoteURL:   "/feedback/vote/" + refID + "/upvote",
				DownvoteURL: "/feedback/vote/" + refID + "/downvote",
			}
		}
		out = append(out, sr)
	}

	writeJSON(w, http.StatusOK, map[string]any{"result": out})
}
