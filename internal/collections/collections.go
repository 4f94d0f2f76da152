// Package collections is the document-store-backed repository for
// Collections and Resources, plus the short-TTL settings cache the query
// engine and ingestion worker both read on every request.
package collections

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ragforge/ragcore/internal/docstore"
	"github.com/ragforge/ragcore/internal/domain"
)

const (
	collectionKind = "collection"
	resourceKind   = "resource"
)

// Repo is the document-store-backed repository for both Collections and
// Resources; they share a backend so ownership/collection lookups stay
// transactionally simple (both are just documents).
type Repo struct {
	store docstore.Store
}

func New(store docstore.Store) *Repo {
	return &Repo{store: store}
}

func (r *Repo) GetCollection(ctx context.Context, id string) (domain.Collection, error) {
	raw, err := r.store.Get(ctx, collectionKind, id)
	if errors.Is(err, docstore.ErrNotFound) {
		return domain.Collection{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Collection{}, fmt.Errorf("get collection %s: %w", id, err)
	}
	var c domain.Collection
	if err := json.Unmarshal(raw, &c); err != nil {
		return domain.Collection{}, fmt.Errorf("decode collection %s: %w", id, err)
	}
	return c, nil
}

func (r *Repo) PutCollection(ctx context.Context, c domain.Collection) error {
	if err := domain.ValidateCollectionSettings(c.Settings); err != nil {
		return err
	}
	return r.store.Put(ctx, collectionKind, c.ID, c, map[string]string{"id": c.ID})
}

// ListCollections returns every registered collection, used by the cron
// sync job to walk all resources without a separate collection index.
func (r *Repo) ListCollections(ctx context.Context) ([]domain.Collection, error) {
	raws, err := r.store.List(ctx, collectionKind, nil)
	if err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}
	out := make([]domain.Collection, 0, len(raws))
	for _, raw := range raws {
		var c domain.Collection
		if err := json.Unmarshal(raw, &c); err != nil {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

func (r *Repo) GetResource(ctx context.Context, id string) (domain.Resource, error) {
	raw, err := r.store.Get(ctx, resourceKind, id)
	if errors.Is(err, docstore.ErrNotFound) {
		return domain.Resource{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Resource{}, fmt.Errorf("get resource %s: %w", id, err)
	}
	var res domain.Resource
	if err := json.Unmarshal(raw, &res); err != nil {
		return domain.Resource{}, fmt.Errorf("decode resource %s: %w", id, err)
	}
	return res, nil
}

func (r *Repo) PutResource(ctx context.Context, res domain.Resource) error {
	return r.store.Put(ctx, resourceKind, res.ID, res, map[string]string{
		"collectionId": res.CollectionID,
		"ownerId":      res.OwnerID,
	})
}

func (r *Repo) DeleteResource(ctx context.Context, id string) error {
	return r.store.Delete(ctx, resourceKind, id)
}

func (r *Repo) ListResourcesByCollection(ctx context.Context, collectionID string) ([]domain.Resource, error) {
	raws, err := r.store.List(ctx, resourceKind, map[string]string{"collectionId": collectionID})
	if err != nil {
		return nil, fmt.Errorf("list resources for %s: %w", collectionID, err)
	}
	out := make([]domain.Resource, 0, len(raws))
	for _, raw := range raws {
		var res domain.Resource
		if err := json.Unmarshal(raw, &res); err != nil {
			continue
		}
		out = append(out, res)
	}
	return out, nil
}

// SettingsCache memoizes CollectionSettings for a short TTL so the query
// engine and ingestion worker don't round-trip the document store on every
// message; Invalidate (del(key)) drops an entry immediately on update.
type SettingsCache struct {
	repo *Repo
	ttl  time.Duration

	mu      sync.Mutex
	entries map[string]cachedSettings
}

type cachedSettings struct {
	settings domain.CollectionSettings
	expires  time.Time
}

func NewSettingsCache(repo *Repo, ttl time.Duration) *SettingsCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &SettingsCache{repo: repo, ttl: ttl, entries: make(map[string]cachedSettings)}
}

// Get returns collectionID's settings, serving from cache when fresh.
func (c *SettingsCache) Get(ctx context.Context, collectionID string) (domain.CollectionSettings, error) {
	c.mu.Lock()
	if e, ok := c.entries[collectionID]; ok && time.Now().Before(e.expires) {
		c.mu.Unlock()
		return e.settings, nil
	}
	c.mu.Unlock()

	col, err := c.repo.GetCollection(ctx, collectionID)
	if err != nil {
		return domain.CollectionSettings{}, err
	}

	c.mu.Lock()
	c.entries[collectionID] = cachedSettings{settings: col.Settings, expires: time.Now().Add(c.ttl)}
	c.mu.Unlock()
	return col.Settings, nil
}

// Invalidate drops collectionID's cached settings, forcing the next Get to
// reload from the document store.
func (c *SettingsCache) Invalidate(collectionID string) {
	c.mu.Lock()
	delete(c.entries, collectionID)
	c.mu.Unlock()
}
