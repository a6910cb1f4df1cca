package core

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/target/mmk-docpipe/internal/domain/model"
)

// CacheRepository defines the interface for caching operations.
type CacheRepository interface {
	// Set stores a value with the given TTL. A zero TTL never expires.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// SetNX stores a value only when key is absent and reports whether it did.
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)

	// Get returns nil, nil for a missing or expired key.
	Get(ctx context.Context, key string) ([]byte, error)

	// Delete reports whether the key existed.
	Delete(ctx context.Context, key string) (bool, error)

	Health(ctx context.Context) error
}

// DefaultDocumentCacheTTL is used when DocumentCacheOptions.TTL is zero.
const DefaultDocumentCacheTTL = 10 * time.Minute

// ErrDocumentDeleted is returned by DocumentCache.Get for a document marked deleted.
var ErrDocumentDeleted = errors.New("document deleted")

var tombstone = []byte("\x00deleted")

// DocumentCacheOptions bundles dependencies for NewDocumentCache.
type DocumentCacheOptions struct {
	Cache CacheRepository
	TTL   time.Duration
}

// DocumentCache keeps document rows keyed by id. A nil *DocumentCache or a nil
// backing repository turns every call into a miss.
//
// Only rows with a terminal scan status are cached. Those rows change again
// only by soft deletion, which overwrites the entry with a tombstone that
// cache fills cannot replace.
type DocumentCache struct {
	cache CacheRepository
	ttl   time.Duration
}

// NewDocumentCache creates a DocumentCache.
func NewDocumentCache(opts DocumentCacheOptions) *DocumentCache {
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = DefaultDocumentCacheTTL
	}
	return &DocumentCache{cache: opts.Cache, ttl: ttl}
}

func (c *DocumentCache) enabled() bool {
	return c != nil && c.cache != nil
}

// Get returns the cached document or nil on a miss. A tombstoned id yields
// ErrDocumentDeleted.
func (c *DocumentCache) Get(ctx context.Context, id string) (*model.Document, error) {
	if !c.enabled() || id == "" {
		return nil, nil
	}
	b, err := c.cache.Get(ctx, documentKey(id))
	if err != nil || len(b) == 0 {
		return nil, err
	}
	if bytes.Equal(b, tombstone) {
		return nil, ErrDocumentDeleted
	}
	var doc model.Document
	if err := json.Unmarshal(b, &doc); err != nil {
		// Undecodable entries are dropped and treated as a miss.
		_, _ = c.cache.Delete(ctx, documentKey(id))
		return nil, nil //nolint:nilerr // corrupt cache entries are a miss
	}
	return &doc, nil
}

// Put fills the entry for doc unless one exists. Pending and deleted
// documents are skipped.
func (c *DocumentCache) Put(ctx context.Context, doc *model.Document) error {
	if !c.enabled() || doc == nil || doc.ID == "" {
		return nil
	}
	if !doc.ScanStatus.Terminal() || doc.DeletedAt != nil {
		return nil
	}
	b, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	_, err = c.cache.SetNX(ctx, documentKey(doc.ID), b, c.ttl)
	return err
}

// MarkDeleted replaces the entry with a tombstone for one TTL.
func (c *DocumentCache) MarkDeleted(ctx context.Context, id string) error {
	if !c.enabled() || id == "" {
		return nil
	}
	return c.cache.Set(ctx, documentKey(id), tombstone, c.ttl)
}

// Invalidate removes the cached document.
func (c *DocumentCache) Invalidate(ctx context.Context, id string) error {
	if !c.enabled() || id == "" {
		return nil
	}
	_, err := c.cache.Delete(ctx, documentKey(id))
	return err
}

func documentKey(id string) string {
	return "document:row:" + id
}
