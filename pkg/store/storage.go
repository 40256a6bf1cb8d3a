package store

import (
	"context"
	"errors"
)

// Collection names used by the cache and graph subsystems. The document
// store treats them as opaque namespaces.
const (
	CollectionCacheEntries  = "cache_entries"
	CollectionGraphTexts    = "graph_texts"
	CollectionGraphEntities = "graph_entities"
)

// ErrNotFound is returned by DocumentStore.Get and BlobStore.Download when
// no document or blob exists for the given key.
var ErrNotFound = errors.New("store: not found")

// Document is one stored record: an opaque JSON payload under a
// (collection, id) key.
type Document struct {
	ID      string
	Payload []byte
}

// DocumentStore is a durable key-value document store. It is the source of
// truth for cache entries and graph records; the in-memory index and graph
// are derived, rebuildable views over it.
type DocumentStore interface {
	Get(ctx context.Context, collection, id string) (*Document, error)
	Set(ctx context.Context, collection, id string, payload []byte) error
	Delete(ctx context.Context, collection, id string) error

	// Scan returns up to limit documents from a collection in unspecified
	// order. A limit <= 0 means no bound.
	Scan(ctx context.Context, collection string, limit int) ([]Document, error)
}

// BlobStore holds binary snapshots by path.
type BlobStore interface {
	Upload(ctx context.Context, key string, data []byte) error
	Download(ctx context.Context, key string) ([]byte, error)
	Exists(ctx context.Context, key string) (bool, error)
}

// EmbeddingStore is an optional capability of a DocumentStore: persisting
// the embedding vector alongside a document so an index rebuild can reuse it
// instead of re-embedding. Discovered by type assertion; absence is not an
// error.
type EmbeddingStore interface {
	SetEmbedding(ctx context.Context, collection, id string, embedding []float32) error
	GetEmbedding(ctx context.Context, collection, id string) ([]float32, error)
}

// ChunkRange invokes fn over [start, end) windows of at most chunkSize.
func ChunkRange(total, chunkSize int, fn func(start, end int) error) error {
	if total <= 0 {
		return nil
	}
	if chunkSize <= 0 {
		chunkSize = total
	}
	for start := 0; start < total; start += chunkSize {
		end := min(start+chunkSize, total)
		if err := fn(start, end); err != nil {
			return err
		}
	}
	return nil
}
