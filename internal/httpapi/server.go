// Package httpapi exposes the collection/resource/search/feedback/eval
// routes as thin net/http handlers that call straight into the component
// packages; there's no framework, matching the teacher's plain
// http.ServeMux + Go 1.22 method-pattern routes.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/nats-io/nats.go"

	"github.com/ragforge/ragcore/internal/broker"
	"github.com/ragforge/ragcore/internal/collections"
	"github.com/ragforge/ragcore/internal/docstore"
	"github.com/ragforge/ragcore/internal/embedclient"
	"github.com/ragforge/ragcore/internal/eval"
	"github.com/ragforge/ragcore/internal/ingestworker"
	"github.com/ragforge/ragcore/internal/query"
)

// Server holds every dependency the routes need.
type Server struct {
	resources *collections.Repo
	settings  *collections.SettingsCache
	chunks    docstore.Store
	engine    *query.Engine
	evalCases *eval.Repo
	evaluator *eval.Evaluator
	embed     *embedclient.Client
	nc        *nats.Conn
	links     *linkCache
	log       *slog.Logger
}

func New(
	resources *collections.Repo,
	settings *collections.SettingsCache,
	chunks docstore.Store,
	engine *query.Engine,
	evalCases *eval.Repo,
	evaluator *eval.Evaluator,
	embed *embedclient.Client,
	nc *nats.Conn,
	log *slog.Logger,
) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		resources: resources,
		settings:  settings,
		chunks:    chunks,
		engine:    engine,
		evalCases: evalCases,
		evaluator: evaluator,
		embed:     embed,
		nc:        nc,
		links:     newLinkCache(),
		log:       log,
	}
}

// Routes builds the full route table.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)

	mux.HandleFunc("POST /collection", s.handleCreateCollection)
	mux.HandleFunc("GET /collection/{id}", s.handleGetCollection)
	mux.HandleFunc("GET /collection/{id}/resources", s.handleListResources)
	mux.HandleFunc("PUT /collection/{id}", s.handleUpdateCollection)

	mux.HandleFunc("POST /resource", s.handleCreateResource)
	mux.HandleFunc("GET /resource/{id}", s.handleGetResource)
	mux.HandleFunc("GET /resource/{id}/chunks", s.handleResourceChunks)
	mux.HandleFunc("PUT /resource/{id}", s.handleUpdateResource)
	mux.HandleFunc("DELETE /resource/{id}", s.handleDeleteResource)

	mux.HandleFunc("POST /search", s.handleSearch)

	mux.HandleFunc("POST /feedback/vote", s.handleFeedbackVote)
	mux.HandleFunc("GET /feedback/vote/{refId}/{action}", s.handleFeedbackVoteLink)

	mux.HandleFunc("GET /utility/encoding-models", s.handleEncodingModels)

	mux.HandleFunc("POST /eval/cases", s.handleCreateEvalCase)
	mux.HandleFunc("GET /eval/cases/{collectionId}/{ownerId}", s.handleListEvalCases)
	mux.HandleFunc("POST /eval/run/{datasetId}/{ownerId}", s.handleRunEval)

	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// publishIngestEvent marshals and publishes an ingest envelope; failures are
// logged but don't fail the API call, since ingestion proceeds async anyway.
func (s *Server) publishIngestEvent(ctx context.Context, event string, data any) {
	env, err := ingestworker.NewEnvelope(event, data)
	if err != nil {
		s.log.Error("httpapi: build ingest envelope failed", "event", event, "error", err)
		return
	}
	if err := broker.Publish(ctx, s.nc, broker.IngestSubject, env); err != nil {
		s.log.Error("httpapi: publish ingest event failed", "event", event, "error", err)
	}
}
