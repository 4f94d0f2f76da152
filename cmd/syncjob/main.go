// Package main is the cron-invoked RAG sync job: it walks every resource
// whose source may have changed and re-emits a load event for each, letting
// the ingestion worker's content-hash check decide whether anything
// actually needs re-chunking.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/ragforge/ragcore/internal/broker"
	"github.com/ragforge/ragcore/internal/collections"
	"github.com/ragforge/ragcore/internal/docstore/neo4jstore"
	"github.com/ragforge/ragcore/internal/ingestworker"
)

type Config struct {
	Neo4jURL      string
	Neo4jUser     string
	Neo4jPass     string
	NATSURL       string
	MinAgeMinutes int
}

func loadConfig() Config {
	minAge := 60
	if v := os.Getenv("SYNC_MIN_AGE_MINUTES"); v != "" {
		fmt.Sscanf(v, "%d", &minAge)
	}
	return Config{
		Neo4jURL:      envOr("NEO4J_URL", "neo4j://localhost:7687"),
		Neo4jUser:     envOr("NEO4J_USER", "neo4j"),
		Neo4jPass:     envOr("NEO4J_PASS", "password"),
		NATSURL:       envOr("NATS_URL", nats.DefaultURL),
		MinAgeMinutes: minAge,
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
		logger.Error("sync job exited with error", "err", err)
		os.Exit(1)
	}
}

func run(cfg Config, logger *slog.Logger) error {
	ctx := context.Background()

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
	cols, err := resources.ListCollections(ctx)
	if err != nil {
		return fmt.Errorf("list collections: %w", err)
	}

	cutoff := time.Now().Add(-time.Duration(cfg.MinAgeMinutes) * time.Minute)
	requeued := 0
	for _, col := range cols {
		rs, err := resources.ListResourcesByCollection(ctx, col.ID)
		if err != nil {
			logger.Error("list resources failed", "collection", col.ID, "error", err)
			continue
		}
		for _, res := range rs {
			if res.IsDeleted || res.URL == "" {
				continue
			}
			if res.RefreshedAt.After(cutoff) {
				continue
			}
			env, err := ingestworker.NewEnvelope(ingestworker.EventLoad, ingestworker.LoadData{ResourceID: res.ID})
			if err != nil {
				logger.Error("build load envelope failed", "resource", res.ID, "error", err)
				continue
			}
			if err := broker.Publish(ctx, nc, broker.IngestSubject, env); err != nil {
				logger.Error("publish load event failed", "resource", res.ID, "error", err)
				continue
			}
			requeued++
		}
	}

	logger.Info("sync job complete", "collections", len(cols), "resources_requeued", requeued)
	return nil
}
