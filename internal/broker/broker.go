// Package broker wires NATS subjects and the poison-message / dead-letter
// policy shared by every consumer role (ingestion, persist, feedback).
package broker

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"

	"github.com/nats-io/nats.go"

	"github.com/ragforge/ragcore/internal/natsutil"
)

// Subjects, matching the external-interfaces table: ingest events, the
// persist fan-out exchange (one subject per storage-backend consumer),
// feedback, and analytics, each with a "_FAILED" dead-letter sibling.
const (
	IngestSubject   = "rag"
	PersistDocStore = "chunk_exchange.mongo-sync"
	PersistVectorUS = "chunk_exchange.qdrant-usa-sync"
	PersistVectorIN = "chunk_exchange.qdrant-india-sync"
	FeedbackSubject = "search-feedback"
	AnalyticsSubject = "analytics"

	ResourceChannel = "resource" // realtime status broadcast
)

// FailedSubject returns the dead-letter sibling of a subject.
func FailedSubject(subject string) string { return subject + "_FAILED" }

const retryHeader = "X-Retry-Count"

// FailedMessage is the envelope published to a dead-letter subject.
type FailedMessage struct {
	Subject string `json:"subject"`
	Payload json.RawMessage `json:"payload"`
	Error   string `json:"error"`
	Retries int    `json:"retries"`
}

// Handler processes one decoded event. Returning an error marks the attempt
// failed; the consumer decides whether to retry or dead-letter based on
// maxRetries.
type Handler func(ctx context.Context, payload json.RawMessage) error

// Consume subscribes to subject with bounded-retry, always-ack semantics: on
// handler error, the message is republished to the same subject with its
// retry-count header incremented; once maxRetries is exhausted it is
// published to subject's "_FAILED" sibling instead. The original delivery is
// always considered handled either way (core NATS has no redelivery, so
// simply not re-raising is the ack), which is what keeps poison messages
// from blocking the subject.
func Consume(nc *nats.Conn, subject string, maxRetries int, log *slog.Logger, handler Handler) (*nats.Subscription, error) {
	if log == nil {
		log = slog.Default()
	}
	return natsutil.SubscribeRaw(nc, subject, func(ctx context.Context, msg *nats.Msg) {
		retries := 0
		if msg.Header != nil {
			if v := msg.Header.Get(retryHeader); v != "" {
				if n, err := strconv.Atoi(v); err == nil {
					retries = n
				}
			}
		}

		err := handler(ctx, msg.Data)
		if err == nil {
			return
		}
		log.Warn("consumer handler failed", "subject", subject, "retry", retries, "error", err)

		if retries >= maxRetries {
			dead := FailedMessage{Subject: subject, Payload: msg.Data, Error: err.Error(), Retries: retries}
			if pubErr := natsutil.Publish(ctx, nc, FailedSubject(subject), dead); pubErr != nil {
				log.Error("failed to publish to dead-letter subject", "subject", FailedSubject(subject), "error", pubErr)
			}
			return
		}

		retryMsg := nats.NewMsg(subject)
		retryMsg.Data = msg.Data
		retryMsg.Header = nats.Header{}
		retryMsg.Header.Set(retryHeader, strconv.Itoa(retries+1))
		if pubErr := nc.PublishMsg(retryMsg); pubErr != nil {
			log.Error("retry publish failed", "subject", subject, "error", pubErr)
		}
	})
}

// Publish JSON-encodes v and publishes it to subject.
func Publish[T any](ctx context.Context, nc *nats.Conn, subject string, v T) error {
	return natsutil.Publish(ctx, nc, subject, v)
}

// ResourceStatusEvent is broadcast on ResourceChannel after every ingestion
// step.
type ResourceStatusEvent struct {
	ResourceID string `json:"resourceId"`
	Status     string `json:"status"`
	Message    string `json:"message,omitempty"`
}

// PublishResourceStatus is a thin convenience wrapper, named so call sites
// read like the status-update step they implement.
func PublishResourceStatus(ctx context.Context, nc *nats.Conn, ev ResourceStatusEvent) error {
	return Publish(ctx, nc, ResourceChannel, ev)
}
