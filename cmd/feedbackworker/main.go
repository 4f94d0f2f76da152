// Package main runs the feedback worker: it consumes upvote/downvote events,
// updates FeedbackDoc hit counts, and triggers best-effort adapter training.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
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
	"github.com/ragforge/ragcore/internal/feedback"
	"github.com/ragforge/ragcore/internal/vectorstore"
)

const maxRetries = 5

type Config struct {
	Neo4jURL           string
	Neo4jUser          string
	Neo4jPass          string
	QdrantURL          string
	NATSURL            string
	EmbedServerURL     string
	AdapterStoragePath string
}

func loadConfig() Config {
	return Config{
		Neo4jURL:           envOr("NEO4J_URL", "neo4j://localhost:7687"),
		Neo4jUser:          envOr("NEO4J_USER", "neo4j"),
		Neo4jPass:          envOr("NEO4J_PASS", "password"),
		QdrantURL:          envOr("QDRANT_URL", "localhost:6334"),
		NATSURL:            envOr("NATS_URL", nats.DefaultURL),
		EmbedServerURL:     envOr("EMBED_SERVER_URL", "http://localhost:9000"),
		AdapterStoragePath: envOr("ADAPTER_STORAGE_PATH", "/tmp/ragcore-adapters"),
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

	if err := run(loadConfig(), logger); err != nil {
		logger.Error("feedback worker exited with error", "err", err)
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

	resources := collections.New(docs)
	settings := collections.NewSettingsCache(resources, 30*time.Second)
	embed := embedclient.New(cfg.EmbedServerURL)
	adapters := adapter.NewService(adapter.NewFileStore(cfg.AdapterStoragePath), logger)
	feedbackStore := feedback.NewStore(docs, vectors)
	worker := feedback.NewWorker(feedbackStore, settings, embed, vectors, adapters, logger)

	handler := func(ctx context.Context, payload json.RawMessage) error {
		var ev feedback.Event
		if err := json.Unmarshal(payload, &ev); err != nil {
			return fmt.Errorf("decode feedback event: %w", err)
		}
		return worker.Process(ctx, ev)
	}

	sub, err := broker.Consume(nc, broker.FeedbackSubject, maxRetries, logger, handler)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", broker.FeedbackSubject, err)
	}
	defer sub.Unsubscribe()

	logger.Info("feedback worker started")
	<-ctx.Done()
	logger.Info("shutdown signal received")
	return nil
}
