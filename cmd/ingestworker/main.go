// Package main runs the ingestion worker: it drives resources through
// load/chunk/update/delete and publishes persist events for the persist
// consumers to pick up.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/ragforge/ragcore/internal/chunker"
	"github.com/ragforge/ragcore/internal/collections"
	"github.com/ragforge/ragcore/internal/docprocessor"
	"github.com/ragforge/ragcore/internal/docstore/neo4jstore"
	"github.com/ragforge/ragcore/internal/embedclient"
	"github.com/ragforge/ragcore/internal/ingestworker"
	"github.com/ragforge/ragcore/internal/loader"
)

type Config struct {
	Neo4jURL       string
	Neo4jUser      string
	Neo4jPass      string
	NATSURL        string
	EmbedServerURL string
}

func loadConfig() Config {
	return Config{
		Neo4jURL:       envOr("NEO4J_URL", "neo4j://localhost:7687"),
		Neo4jUser:      envOr("NEO4J_USER", "neo4j"),
		Neo4jPass:      envOr("NEO4J_PASS", "password"),
		NATSURL:        envOr("NATS_URL", nats.DefaultURL),
		EmbedServerURL: envOr("EMBED_SERVER_URL", "http://localhost:9000"),
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
		logger.Error("ingest worker exited with error", "err", err)
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

	nc, err := nats.Connect(cfg.NATSURL)
	if err != nil {
		return fmt.Errorf("nats connect: %w", err)
	}
	defer nc.Close()

	resources := collections.New(docs)
	settings := collections.NewSettingsCache(resources, 30*time.Second)
	embed := embedclient.New(cfg.EmbedServerURL)

	processor := docprocessor.Deps{
		Chunker: chunker.New(embed),
		Embed:   embed,
	}

	w := ingestworker.NewWorker(resources, settings, loader.New(unsupportedTranscripts{}), processor, nc, logger)
	sub, err := w.Subscribe()
	if err != nil {
		return fmt.Errorf("subscribe ingest worker: %w", err)
	}
	defer sub.Unsubscribe()

	logger.Info("ingest worker started")
	<-ctx.Done()
	logger.Info("shutdown signal received")
	return nil
}

// unsupportedTranscripts is the default YouTube transcript fetcher until a
// captions backend is configured; it fails loudly rather than silently
// skipping transcript ingestion.
type unsupportedTranscripts struct{}

func (unsupportedTranscripts) FetchTranscript(_ context.Context, videoID string) (string, error) {
	return "", fmt.Errorf("no transcript backend configured for video %s", videoID)
}
