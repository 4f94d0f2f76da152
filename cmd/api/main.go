// Package main implements the RAG backend's HTTP API server.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/ragforge/ragcore/internal/adapter"
	"github.com/ragforge/ragcore/internal/broker"
	"github.com/ragforge/ragcore/internal/collections"
	"github.com/ragforge/ragcore/internal/docstore/neo4jstore"
	"github.com/ragforge/ragcore/internal/embedclient"
	"github.com/ragforge/ragcore/internal/eval"
	"github.com/ragforge/ragcore/internal/feedback"
	"github.com/ragforge/ragcore/internal/httpapi"
	"github.com/ragforge/ragcore/internal/metrics"
	"github.com/ragforge/ragcore/internal/mid"
	"github.com/ragforge/ragcore/internal/query"
	"github.com/ragforge/ragcore/internal/vectorstore"
)

// Config holds all environment-based configuration.
type Config struct {
	Port             string
	Neo4jURL         string
	Neo4jUser        string
	Neo4jPass        string
	QdrantURL        string
	NATSURL          string
	EmbedServerURL   string
	AdapterStoragePath string
	CORSOrigin       string
}

func loadConfig() Config {
	return Config{
		Port:               envOr("PORT", "8080"),
		Neo4jURL:            envOr("NEO4J_URL", "neo4j://localhost:7687"),
		Neo4jUser:           envOr("NEO4J_USER", "neo4j"),
		Neo4jPass:           envOr("NEO4J_PASS", "password"),
		QdrantURL:           envOr("QDRANT_URL", "localhost:6334"),
		NATSURL:             envOr("NATS_URL", nats.DefaultURL),
		EmbedServerURL:      envOr("EMBED_SERVER_URL", "http://localhost:9000"),
		AdapterStoragePath:  envOr("ADAPTER_STORAGE_PATH", "/tmp/ragcore-adapters"),
		CORSOrigin:          envOr("CORS_ORIGIN", "*"),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg := loadConfig()

	if err := run(cfg, logger); err != nil {
		logger.Error("api server exited with error", "err", err)
		os.Exit(1)
	}
}

func run(cfg Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	neo4jDriver, err := neo4j.NewDriverWithContext(cfg.Neo4jURL, neo4j.BasicAuth(cfg.Neo4jUser, cfg.Neo4jPass, ""))
	if err != nil {
		return fmt.Errorf("neo4j driver: %w", err)
	}
	defer neo4jDriver.Close(ctx)
	docs := neo4jstore.New(neo4jDriver)

	vectors, err := vectorstore.New(cfg.QdrantURL, logger)
	if err != nil {
		return fmt.Errorf("qdrant connect: %w", err)
	}
	defer vectors.Close()

	nc, err := nats.Connect(cfg.NATSURL)
	if err != nil {
		return fmt.Errorf("nats connect: %w", err)
	}
	defer nc.Close()

	embed := embedclient.New(cfg.EmbedServerURL)
	resources := collections.New(docs)
	settings := collections.NewSettingsCache(resources, 30*time.Second)
	adapters := adapter.NewService(adapter.NewFileStore(cfg.AdapterStoragePath), logger)
	feedbackStore := feedback.NewStore(docs, vectors)

	analytics := func(ctx context.Context, ev query.AnalyticsEvent) {
		if err := broker.Publish(ctx, nc, broker.AnalyticsSubject, ev); err != nil {
			logger.Warn("publish analytics event failed", "error", err)
		}
	}
	engine := query.New(settings, embed, vectors, adapters, feedbackStore, analytics, logger)

	evalCases := eval.NewRepo(docs)
	evaluator := eval.New(evalCases, engine)

	server := httpapi.New(resources, settings, docs, engine, evalCases, evaluator, embed, nc, logger)

	reg := metrics.New()
	rootMux := http.NewServeMux()
	rootMux.Handle("/", server.Routes())
	rootMux.Handle("/metrics", reg.Handler())

	handler := mid.Chain(rootMux,
		mid.Recover(logger),
		mid.Logger(logger),
		mid.Metrics(reg),
		mid.CORS(cfg.CORSOrigin),
	)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server starting", "port", cfg.Port)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutCtx)
}
