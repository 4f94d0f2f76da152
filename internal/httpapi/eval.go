package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ragforge/ragcore/internal/domain"
	"github.com/ragforge/ragcore/internal/eval"
)

type createEvalCaseRequest struct {
	CollectionID     string   `json:"collectionId"`
	OwnerID          string   `json:"ownerId"`
	Query            string   `json:"query"`
	ExpectedChunkIDs []string `json:"expectedChunkIds"`
}

func (s *Server) handleCreateEvalCase(w http.ResponseWriter, r *http.Request) {
	var req createEvalCaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, domain.NewValidationError("body", nil, domain.ErrInvalidQuery))
		return
	}

	tc, err := s.evalCases.CreateTestCase(r.Context(), domain.EvalTestCase{
		CollectionID:     req.CollectionID,
		OwnerID:          req.OwnerID,
		Query:            req.Query,
		ExpectedChunkIDs: req.ExpectedChunkIDs,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, tc)
}

func (s *Server) handleListEvalCases(w http.ResponseWriter, r *http.Request) {
	cases, err := s.evalCases.ListTestCases(r.Context(), r.PathValue("collectionId"), r.PathValue("ownerId"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"testCases": cases,
		"metadata":  map[string]any{"total": len(cases)},
	})
}

func (s *Server) handleRunEval(w http.ResponseWriter, r *http.Request) {
	run, err := s.evaluator.Run(r.Context(), r.PathValue("datasetId"), r.PathValue("ownerId"))
	if errors.Is(err, eval.ErrNoTestCases) {
		writeError(w, domain.NewValidationError("datasetId", r.PathValue("datasetId"), domain.ErrInvalidQuery))
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}
