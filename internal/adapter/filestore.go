package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ragforge/ragcore/internal/domain"
)

// FileStore persists adapter records as <storagePath>/<collectionId>.json.
type FileStore struct {
	storagePath string
}

func NewFileStore(storagePath string) *FileStore {
	return &FileStore{storagePath: storagePath}
}

func (f *FileStore) path(collectionID string) string {
	return filepath.Join(f.storagePath, collectionID+".json")
}

func (f *FileStore) Load(_ context.Context, collectionID string) (domain.AdapterRecord, error) {
	data, err := os.ReadFile(f.path(collectionID))
	if errors.Is(err, os.ErrNotExist) {
		return domain.AdapterRecord{}, ErrNoRecord
	}
	if err != nil {
		return domain.AdapterRecord{}, fmt.Errorf("read adapter file: %w", err)
	}
	var rec domain.AdapterRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return domain.AdapterRecord{}, fmt.Errorf("decode adapter file: %w", err)
	}
	return rec, nil
}

func (f *FileStore) Save(_ context.Context, rec domain.AdapterRecord) error {
	if err := os.MkdirAll(f.storagePath, 0o755); err != nil {
		return fmt.Errorf("create adapter storage dir: %w", err)
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode adapter record: %w", err)
	}
	return os.WriteFile(f.path(rec.CollectionID), data, 0o644)
}
