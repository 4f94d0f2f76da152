package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ragforge/ragcore/internal/docstore"
	"github.com/ragforge/ragcore/internal/domain"
)

const adapterKind = "adapter"

// DocStoreBackend persists adapter records through the document store
// instead of a local file. The cmd binaries always construct the FileStore
// backend; no configuration value switches them to this one.
type DocStoreBackend struct {
	store docstore.Store
}

func NewDocStoreBackend(store docstore.Store) *DocStoreBackend {
	return &DocStoreBackend{store: store}
}

func (d *DocStoreBackend) Load(ctx context.Context, collectionID string) (domain.AdapterRecord, error) {
	raw, err := d.store.Get(ctx, adapterKind, collectionID)
	if errors.Is(err, docstore.ErrNotFound) {
		return domain.AdapterRecord{}, ErrNoRecord
	}
	if err != nil {
		return domain.AdapterRecord{}, fmt.Errorf("load adapter record: %w", err)
	}
	var rec domain.AdapterRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return domain.AdapterRecord{}, fmt.Errorf("decode adapter record: %w", err)
	}
	return rec, nil
}

func (d *DocStoreBackend) Save(ctx context.Context, rec domain.AdapterRecord) error {
	return d.store.Put(ctx, adapterKind, rec.CollectionID, rec, map[string]string{"collectionId": rec.CollectionID})
}
