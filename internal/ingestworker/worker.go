package ingestworker

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"

	"github.com/ragforge/ragcore/internal/broker"
	"github.com/ragforge/ragcore/internal/collections"
	"github.com/ragforge/ragcore/internal/docprocessor"
	"github.com/ragforge/ragcore/internal/domain"
	"github.com/ragforge/ragcore/internal/natsutil"
)

// Loader fetches a resource's current content from its source (URL, video
// transcript, etc). It is an external collaborator; callers provide the
// concrete implementation (internal/loader).
type Loader interface {
	Load(ctx context.Context, resource domain.Resource) (content string, err error)
}

// Worker drives one resource through load/chunk/update/delete.
type Worker struct {
	resources  *collections.Repo
	settings   *collections.SettingsCache
	loader     Loader
	processor  docprocessor.Deps
	nc         *nats.Conn
	log        *slog.Logger
}

func NewWorker(resources *collections.Repo, settings *collections.SettingsCache, loader Loader, processor docprocessor.Deps, nc *nats.Conn, log *slog.Logger) *Worker {
	if log == nil {
		log = slog.Default()
	}
	return &Worker{resources: resources, settings: settings, loader: loader, processor: processor, nc: nc, log: log}
}

// Handle processes one raw ingest message. It never returns an error to a
// retrying caller: every failure is terminal (status=error, published to the
// dead-letter subject, original always considered acked), matching the
// no-poison-replay policy.
func (w *Worker) Handle(ctx context.Context, payload []byte) {
	var env Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		w.log.Error("ingest: malformed envelope", "error", err)
		w.deadLetter(ctx, payload, err)
		return
	}

	var err error
	var resourceID string
	switch env.Event {
	case EventLoad:
		var data LoadData
		if err = json.Unmarshal(env.Data, &data); err == nil {
			resourceID = data.ResourceID
			err = w.handleLoad(ctx, data)
		}
	case EventChunk:
		var data ChunkData
		if err = json.Unmarshal(env.Data, &data); err == nil {
			resourceID = data.ResourceID
			err = w.handleChunk(ctx, data)
		}
	case EventUpdate:
		var data UpdateData
		if err = json.Unmarshal(env.Data, &data); err == nil {
			resourceID = data.ResourceID
			err = w.handleUpdate(ctx, data)
		}
	case EventDelete:
		var data DeleteData
		if err = json.Unmarshal(env.Data, &data); err == nil {
			resourceID = data.ResourceID
			err = w.handleDelete(ctx, data)
		}
	default:
		err = fmt.Errorf("unknown ingest event %q", env.Event)
	}

	if err != nil {
		w.log.Error("ingest: step failed", "event", env.Event, "resource", resourceID, "error", err)
		if resourceID != "" {
			w.markError(ctx, resourceID, err)
		}
		w.deadLetter(ctx, payload, err)
	}
}

func (w *Worker) deadLetter(ctx context.Context, payload []byte, cause error) {
	dead := broker.FailedMessage{Subject: broker.IngestSubject, Payload: payload, Error: cause.Error()}
	if err := broker.Publish(ctx, w.nc, broker.FailedSubject(broker.IngestSubject), dead); err != nil {
		w.log.Error("ingest: dead-letter publish failed", "error", err)
	}
}

func (w *Worker) markError(ctx context.Context, resourceID string, cause error) {
	res, err := w.resources.GetResource(ctx, resourceID)
	if err != nil {
		return
	}
	res.Status = domain.StatusError
	res.StatusMsg = cause.Error()
	_ = w.resources.PutResource(ctx, res)
	w.publishStatus(ctx, resourceID, res.Status, res.StatusMsg)
}

func (w *Worker) publishStatus(ctx context.Context, resourceID string, status domain.ResourceStatus, message string) {
	if err := broker.PublishResourceStatus(ctx, w.nc, broker.ResourceStatusEvent{ResourceID: resourceID, Status: string(status), Message: message}); err != nil {
		w.log.Warn("ingest: resource status publish failed", "resource", resourceID, "error", err)
	}
}

func contentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// handleLoad fetches the resource's content; if the hash is unchanged, the
// resource jumps straight to "chunked" without a new chunk pass.
func (w *Worker) handleLoad(ctx context.Context, data LoadData) error {
	res, err := w.resources.GetResource(ctx, data.ResourceID)
	if err != nil {
		return fmt.Errorf("load: get resource %s: %w", data.ResourceID, err)
	}

	content, err := w.loader.Load(ctx, res)
	if err != nil {
		return fmt.Errorf("load: fetch content: %w", err)
	}
	newHash := contentHash(content)

	if newHash == res.ContentHash && res.ContentHash != "" {
		res.Status = domain.StatusChunked
		if err := w.resources.PutResource(ctx, res); err != nil {
			return fmt.Errorf("load: persist unchanged resource: %w", err)
		}
		w.publishStatus(ctx, res.ID, res.Status, "content unchanged, skipping re-chunk")
		return nil
	}

	res.Content = content
	res.ContentHash = newHash
	res.Status = domain.StatusLoaded
	if err := w.resources.PutResource(ctx, res); err != nil {
		return fmt.Errorf("load: persist resource: %w", err)
	}
	w.publishStatus(ctx, res.ID, res.Status, "")

	return w.publishChunkEvent(ctx, res.ID)
}

func (w *Worker) publishChunkEvent(ctx context.Context, resourceID string) error {
	env, err := NewEnvelope(EventChunk, ChunkData{ResourceID: resourceID})
	if err != nil {
		return err
	}
	return broker.Publish(ctx, w.nc, broker.IngestSubject, env)
}

// handleChunk builds chunks from the resource's content, encodes them, and
// publishes one PersistEvent per batch (one chunk per message when a
// reranker vector is configured).
func (w *Worker) handleChunk(ctx context.Context, data ChunkData) error {
	res, err := w.resources.GetResource(ctx, data.ResourceID)
	if err != nil {
		return fmt.Errorf("chunk: get resource %s: %w", data.ResourceID, err)
	}
	settings, err := w.settings.Get(ctx, res.CollectionID)
	if err != nil {
		return fmt.Errorf("chunk: load collection settings: %w", err)
	}

	pipeline := docprocessor.New(w.processor, res, settings)
	pipeline.Chunk(ctx).Encode(ctx, docprocessor.ModelSet{
		DenseModel:    settings.DenseModel,
		SparseModel:   settings.SparseModel,
		RerankerModel: settings.RerankerModel,
	})
	if err := pipeline.Err(); err != nil {
		return fmt.Errorf("chunk: %w", err)
	}

	batches := pipeline.Store(settings.KeepDuplicate || data.KeepDuplicate)
	for _, batch := range batches {
		ev := PersistEvent{Kind: PersistUpsert, CollectionID: batch.CollectionID, ResourceID: res.ID, Chunks: batch.Chunks}
		for _, subject := range []string{broker.PersistDocStore, broker.PersistVectorUS, broker.PersistVectorIN} {
			if err := broker.Publish(ctx, w.nc, subject, ev); err != nil {
				return fmt.Errorf("chunk: publish persist event to %s: %w", subject, err)
			}
		}
	}

	res.Status = domain.StatusChunked
	if err := w.resources.PutResource(ctx, res); err != nil {
		return fmt.Errorf("chunk: persist resource: %w", err)
	}
	w.publishStatus(ctx, res.ID, res.Status, "")
	return nil
}

// handleUpdate is currently a no-op placeholder for visibility changes.
func (w *Worker) handleUpdate(ctx context.Context, data UpdateData) error {
	res, err := w.resources.GetResource(ctx, data.ResourceID)
	if err != nil {
		return fmt.Errorf("update: get resource %s: %w", data.ResourceID, err)
	}
	w.publishStatus(ctx, res.ID, res.Status, "")
	return nil
}

// handleDelete emits a delete persist event to every backend and marks the
// resource deleted; it does not purge storage itself.
func (w *Worker) handleDelete(ctx context.Context, data DeleteData) error {
	res, err := w.resources.GetResource(ctx, data.ResourceID)
	if err != nil {
		return fmt.Errorf("delete: get resource %s: %w", data.ResourceID, err)
	}

	ev := PersistEvent{Kind: PersistDelete, CollectionID: res.CollectionID, ResourceID: res.ID}
	for _, subject := range []string{broker.PersistDocStore, broker.PersistVectorUS, broker.PersistVectorIN} {
		if err := broker.Publish(ctx, w.nc, subject, ev); err != nil {
			return fmt.Errorf("delete: publish persist event to %s: %w", subject, err)
		}
	}

	res.IsDeleted = true
	res.Status = domain.StatusDeleted
	if err := w.resources.PutResource(ctx, res); err != nil {
		return fmt.Errorf("delete: persist resource: %w", err)
	}
	w.publishStatus(ctx, res.ID, res.Status, "")
	return nil
}

// Subscribe registers Handle against the ingest subject. Unlike the persist
// and feedback consumers, the ingest worker deliberately does not use
// broker.Consume's retry wrapper: a failed ingest step is terminal
// immediately (see Handle), matching the "always ack, never replay" policy.
func (w *Worker) Subscribe() (*nats.Subscription, error) {
	return natsutil.SubscribeRaw(w.nc, broker.IngestSubject, func(ctx context.Context, msg *nats.Msg) {
		w.Handle(ctx, msg.Data)
	})
}
