// Package main runs a persist consumer: one backend role per process,
// selected with -backend, matching the three independent subjects a chunk
// batch fans out to.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/nats-io/nats.go"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/ragforge/ragcore/internal/broker"
	"github.com/ragforge/ragcore/internal/docstore/neo4jstore"
	"github.com/ragforge/ragcore/internal/persistworker"
	"github.com/ragforge/ragcore/internal/vectorstore"
)

const maxRetries = 5

type Config struct {
	Backend   string
	NATSURL   string
	Neo4jURL  string
	Neo4jUser string
	Neo4jPass string
	QdrantURL string
}

func loadConfig() Config {
	return Config{
		NATSURL:   envOr("NATS_URL", nats.DefaultURL),
		Neo4jURL:  envOr("NEO4J_URL", "neo4j://localhost:7687"),
		Neo4jUser: envOr("NEO4J_USER", "neo4j"),
		Neo4jPass: envOr("NEO4J_PASS", "password"),
		QdrantURL: envOr("QDRANT_URL", "localhost:6334"),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	backend := flag.String("backend", "", "persist backend role: docstore, qdrant-usa, or qdrant-india")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg := loadConfig()
	cfg.Backend = *backend

	if err := run(cfg, logger); err != nil {
		logger.Error("persist worker exited with error", "err", err, "backend", cfg.Backend)
		os.Exit(1)
	}
}

func subjectForBackend(backend string) (string, error) {
	switch backend {
	case "docstore":
		return broker.PersistDocStore, nil
	case "qdrant-usa":
		return broker.PersistVectorUS, nil
	case "qdrant-india":
		return broker.PersistVectorIN, nil
	default:
		return "", fmt.Errorf("unknown -backend %q: want docstore, qdrant-usa, or qdrant-india", backend)
	}
}

func run(cfg Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	subject, err := subjectForBackend(cfg.Backend)
	if err != nil {
		return err
	}

	nc, err := nats.Connect(cfg.NATSURL)
	if err != nil {
		return fmt.Errorf("nats connect: %w", err)
	}
	defer nc.Close()

	var handler broker.Handler
	if cfg.Backend == "docstore" {
		neo4jDriver, err := neo4j.NewDriverWithContext(cfg.Neo4jURL, neo4j.BasicAuth(cfg.Neo4jUser, cfg.Neo4jPass, ""))
		if err != nil {
			return fmt.Errorf("neo4j driver: %w", err)
		}
		defer neo4jDriver.Close(ctx)
		consumer := persistworker.NewDocStoreConsumer(neo4jstore.New(neo4jDriver))
		handler = consumer.Handle
	} else {
		vectors, err := vectorstore.New(cfg.QdrantURL, logger)
		if err != nil {
			return fmt.Errorf("qdrant connect: %w", err)
		}
		defer vectors.Close()
		consumer := persistworker.NewVectorConsumer(vectors)
		handler = consumer.Handle
	}

	sub, err := broker.Consume(nc, subject, maxRetries, logger, handler)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", subject, err)
	}
	defer sub.Unsubscribe()

	logger.Info("persist worker started", "backend", cfg.Backend, "subject", subject)
	<-ctx.Done()
	logger.Info("shutdown signal received")
	return nil
}
