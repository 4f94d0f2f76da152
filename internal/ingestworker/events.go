// Package ingestworker drives the load→chunk→delete lifecycle of a resource
// from ingest events, publishing per-chunk persist events rather than
// writing storage itself — that's the persist consumers' job, one per
// backend, so a resource's chunks fan out to the document store and every
// vector store region independently.
package ingestworker

import (
	"encoding/json"

	"github.com/ragforge/ragcore/internal/domain"
)

// Envelope is the {version, event, data} shape every ingest message carries.
type Envelope struct {
	Version int             `json:"version"`
	Event   string          `json:"event"`
	Data    json.RawMessage `json:"data"`
}

const (
	EventLoad   = "load"
	EventChunk  = "chunk"
	EventUpdate = "update"
	EventDelete = "delete"
)

// LoadData is the payload for a "load" event.
type LoadData struct {
	ResourceID string `json:"resourceId"`
}

// ChunkData is the payload for a "chunk" event.
type ChunkData struct {
	ResourceID    string `json:"resourceId"`
	KeepDuplicate bool   `json:"keepDuplicate"`
}

// UpdateData is the payload for an "update" event.
type UpdateData struct {
	ResourceID string `json:"resourceId"`
}

// DeleteData is the payload for a "delete" event.
type DeleteData struct {
	ResourceID string `json:"resourceId"`
}

// PersistEvent is published once per chunk batch to the chunk_exchange
// subjects; persist consumers each handle it against their own backend.
type PersistEvent struct {
	Kind         string         `json:"kind"` // "upsert" | "delete"
	CollectionID string         `json:"collectionId"`
	ResourceID   string         `json:"resourceId,omitempty"`
	Chunks       []domain.Chunk `json:"chunks,omitempty"`
}

const (
	PersistUpsert = "upsert"
	PersistDelete = "delete"
)

// NewEnvelope marshals data and wraps it in an Envelope for the given event
// name, the shape every ingest-subject publisher needs.
func NewEnvelope(event string, data any) (Envelope, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Version: 1, Event: event, Data: raw}, nil
}
