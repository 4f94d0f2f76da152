package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/ragforge/ragcore/internal/broker"
	"github.com/ragforge/ragcore/internal/domain"
	"github.com/ragforge/ragcore/internal/feedback"
)

type feedbackVoteRequest struct {
	CollectionID string `json:"collectionId"`
	Query        string `json:"query"`
	ChunkID      string `json:"chunkId"`
	ResourceID   string `json:"resourceId"`
	Action       string `json:"action"`
	OwnerID      string `json:"ownerId,omitempty"`
}

// handleFeedbackVote publishes a feedback event to the broker; the
// feedback worker processes it asynchronously, same as every other
// consumer-driven side effect in the pipeline.
func (s *Server) handleFeedbackVote(w http.ResponseWriter, r *http.Request) {
	var req feedbackVoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, domain.NewValidationError("body", nil, domain.ErrInvalidQuery))
		return
	}
	if req.Action != feedback.ActionUpvote && req.Action != feedback.ActionDownvote {
		writeError(w, domain.NewValidationError("action", req.Action, domain.ErrInvalidQuery))
		return
	}

	ev := feedback.Event{
		CollectionID: req.CollectionID,
		OwnerID:      domain.OwnerOrDefault(req.OwnerID),
		Query:        req.Query,
		ChunkID:      req.ChunkID,
		ResourceID:   req.ResourceID,
		Action:       req.Action,
	}
	if err := broker.Publish(r.Context(), s.nc, broker.FeedbackSubject, ev); err != nil {
		writeError(w, fmt.Errorf("publish feedback event: %w", err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "feedback recorded"})
}

// handleFeedbackVoteLink resolves an opaque review-link referenceId and
// records the vote it encodes, replying with a small HTML acknowledgement
// since the link is typically opened directly in a browser/email client.
func (s *Server) handleFeedbackVoteLink(w http.ResponseWriter, r *http.Request) {
	refID := r.PathValue("refId")
	action := r.PathValue("action")

	link, ok := s.links.get(refID)
	if !ok {
		http.Error(w, "this feedback link has expired", http.StatusNotFound)
		return
	}
	if action != feedback.ActionUpvote && action != feedback.ActionDownvote {
		http.Error(w, "unknown feedback action", http.StatusBadRequest)
		return
	}

	ev := feedback.Event{
		CollectionID: link.CollectionID,
		OwnerID:      domain.OwnerOrDefault(link.OwnerID),
		Query:        link.Query,
		ChunkID:      link.ChunkID,
		ResourceID:   link.ResourceID,
		Action:       action,
	}
	if err := broker.Publish(r.Context(), s.nc, broker.FeedbackSubject, ev); err != nil {
		http.Error(w, "could not record feedback", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, "<html><body>Thanks — your %s has been recorded.</body></html>", action)
}
