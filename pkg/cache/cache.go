package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/finsight/pulse/internal/util"
	"github.com/finsight/pulse/pkg/ai"
	"github.com/finsight/pulse/pkg/common"
	"github.com/finsight/pulse/pkg/logger"
	"github.com/finsight/pulse/pkg/store"
	"github.com/finsight/pulse/pkg/vector"
)

const (
	defaultThreshold     = 0.85
	defaultSnapshotEvery = 100
	defaultMaxEntries    = 10000
	defaultPreviewRunes  = 500

	searchK = 3
)

// ErrNotInitialized is returned when the cache is used before Initialize
// completed successfully.
var ErrNotInitialized = errors.New("cache: not initialized")

// SemanticCache avoids re-invoking the paid scoring model for texts that are
// meaning-equivalent to something already scored. It composes an embedding
// client, a flat in-memory vector index, a durable document store (source of
// truth) and an optional blob store for index snapshots.
//
// Writers (StoreResult, Remove, Compact) serialize through an internal
// mutex; lookups run unguarded and may at worst miss an in-flight insert.
type SemanticCache struct {
	embedder  ai.EmbeddingClient
	documents store.DocumentStore
	blobs     store.BlobStore

	threshold     float64
	snapshotEvery int
	maxEntries    int
	previewRunes  int
	snapshotKey   string

	mu       sync.Mutex
	index    *vector.Index
	docToPos map[string]int
	posToDoc map[int]string

	insertsSinceSnapshot int
	initialized          bool

	persistWG sync.WaitGroup
}

// NewSemanticCacheParams defines the configuration for creating a
// SemanticCache.
//
// Embedder and Documents are required. Blobs is optional: without it the
// cache always rebuilds from the document store on startup and never
// persists snapshots. SnapshotKeyPrefix namespaces the snapshot blobs.
type NewSemanticCacheParams struct {
	Embedder  ai.EmbeddingClient
	Documents store.DocumentStore
	Blobs     store.BlobStore

	Threshold         float64
	SnapshotEvery     int
	MaxEntries        int
	PreviewRunes      int
	SnapshotKeyPrefix string
}

// NewSemanticCache creates an uninitialized cache. Initialize must be called
// before GetSimilar or StoreResult; a missing embedder or document store is
// a configuration error surfaced immediately.
func NewSemanticCache(params NewSemanticCacheParams) (*SemanticCache, error) {
	if params.Embedder == nil {
		return nil, fmt.Errorf("semantic cache: %w", ai.ErrNotConfigured)
	}
	if params.Documents == nil {
		return nil, fmt.Errorf("semantic cache: document store is required")
	}

	threshold := params.Threshold
	if threshold <= 0 || threshold > 1 {
		threshold = defaultThreshold
	}
	snapshotEvery := params.SnapshotEvery
	if snapshotEvery <= 0 {
		snapshotEvery = defaultSnapshotEvery
	}
	maxEntries := params.MaxEntries
	if maxEntries <= 0 {
		maxEntries = defaultMaxEntries
	}
	previewRunes := params.PreviewRunes
	if previewRunes <= 0 {
		previewRunes = defaultPreviewRunes
	}
	prefix := params.SnapshotKeyPrefix
	if prefix == "" {
		prefix = "snapshots/semantic-cache"
	}

	return &SemanticCache{
		embedder:  params.Embedder,
		documents: params.Documents,
		blobs:     params.Blobs,

		threshold:     threshold,
		snapshotEvery: snapshotEvery,
		maxEntries:    maxEntries,
		previewRunes:  previewRunes,
		snapshotKey:   prefix,

		docToPos: make(map[string]int),
		posToDoc: make(map[int]string),
	}, nil
}

// GetSimilar returns the cached result for the nearest stored text if its
// cosine similarity reaches the threshold, or nil on a miss. Expired entries
// are unlinked on the way out instead of being served stale.
func (c *SemanticCache) GetSimilar(ctx context.Context, text string) (json.RawMessage, error) {
	if !c.initialized {
		return nil, ErrNotInitialized
	}
	if c.entryCount() == 0 {
		// Nothing cached: skip the embedding call entirely.
		return nil, nil
	}

	embedding, err := c.embedder.GenerateEmbedding(ctx, []byte(text))
	if err != nil {
		logger.Error("[Cache] Embedding failed during lookup", "err", err)
		return nil, nil
	}
	ai.NormalizeL2(embedding)

	k := util.Min(searchK, c.index.Len())
	hits, err := c.index.Search(embedding, k)
	if err != nil || len(hits) == 0 {
		return nil, nil
	}

	// Only the single best neighbor decides; the runners-up are reserved for
	// future result diversification.
	best := hits[0]
	if best.Score < c.threshold {
		return nil, nil
	}

	docID, ok := c.lookupDoc(best.Position)
	if !ok {
		// Tombstoned position: the entry behind it was removed.
		return nil, nil
	}

	doc, err := c.documents.Get(ctx, store.CollectionCacheEntries, docID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			logger.Error("[Cache] Failed to fetch entry", "doc_id", docID, "err", err)
		}
		c.unlink(docID, best.Position)
		return nil, nil
	}

	var entry common.CacheEntry
	if err := json.Unmarshal(doc.Payload, &entry); err != nil {
		logger.Warn("[Cache] Skipping malformed entry", "doc_id", docID, "err", err)
		c.unlink(docID, best.Position)
		return nil, nil
	}

	if entry.Expired(time.Now()) {
		logger.Debug("[Cache] Entry expired, unlinking", "doc_id", docID)
		c.unlink(docID, best.Position)
		c.deleteEntry(ctx, docID)
		return nil, nil
	}

	return entry.Result, nil
}

// StoreResult caches the scoring result for a text. It returns false on any
// failure; callers must treat false as "not cached" and carry on.
func (c *SemanticCache) StoreResult(ctx context.Context, text string, result json.RawMessage, ttl time.Duration) bool {
	if !c.initialized {
		logger.Error("[Cache] StoreResult called before initialization")
		return false
	}

	docID, err := gonanoid.New()
	if err != nil {
		logger.Error("[Cache] Failed to generate doc id", "err", err)
		return false
	}

	embedding, err := c.embedder.GenerateEmbedding(ctx, []byte(text))
	if err != nil {
		logger.Error("[Cache] Embedding failed during store", "err", err)
		return false
	}
	ai.NormalizeL2(embedding)

	c.mu.Lock()
	pos, err := c.index.Add(embedding)
	if err != nil {
		c.mu.Unlock()
		logger.Error("[Cache] Index append failed", "err", err)
		return false
	}
	c.docToPos[docID] = pos
	c.posToDoc[pos] = docID
	c.mu.Unlock()

	entry := common.CacheEntry{
		DocID:       docID,
		TextHash:    util.HashText(text),
		TextPreview: util.Preview(text, c.previewRunes),
		IndexPos:    pos,
		Result:      result,
		CreatedAt:   time.Now().UTC(),
		TTLSeconds:  int64(ttl / time.Second),
	}

	payload, err := json.Marshal(entry)
	if err != nil {
		logger.Error("[Cache] Failed to marshal entry", "doc_id", docID, "err", err)
		c.unlink(docID, pos)
		return false
	}

	if err := c.documents.Set(ctx, store.CollectionCacheEntries, docID, payload); err != nil {
		logger.Error("[Cache] Failed to persist entry", "doc_id", docID, "err", err)
		c.unlink(docID, pos)
		return false
	}

	if es, ok := c.documents.(store.EmbeddingStore); ok {
		if err := es.SetEmbedding(ctx, store.CollectionCacheEntries, docID, embedding); err != nil {
			logger.Warn("[Cache] Failed to persist embedding", "doc_id", docID, "err", err)
		}
	}

	c.mu.Lock()
	c.insertsSinceSnapshot++
	shouldSnapshot := c.blobs != nil && c.insertsSinceSnapshot >= c.snapshotEvery
	if shouldSnapshot {
		c.insertsSinceSnapshot = 0
	}
	c.mu.Unlock()

	if shouldSnapshot {
		c.persistWG.Add(1)
		go func() {
			defer c.persistWG.Done()
			pCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()
			if err := c.Persist(pCtx); err != nil {
				logger.Error("[Cache] Background snapshot failed", "err", err)
			}
		}()
	}

	return true
}

// Remove unlinks an entry from the index map and deletes its document. The
// vector stays in the index as a tombstone until the next Compact.
func (c *SemanticCache) Remove(ctx context.Context, docID string) {
	c.mu.Lock()
	pos, ok := c.docToPos[docID]
	if ok {
		delete(c.docToPos, docID)
		delete(c.posToDoc, pos)
	}
	c.mu.Unlock()

	if ok {
		c.deleteEntry(ctx, docID)
	}
}

// Compact rebuilds the index without tombstoned positions and remaps the
// doc-id map accordingly. Prior embedding references are invalidated.
func (c *SemanticCache) Compact(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	before := c.index.Len()
	compacted, remap := c.index.Compact(func(pos int) bool {
		_, linked := c.posToDoc[pos]
		return linked
	})

	docToPos := make(map[string]int, len(c.docToPos))
	posToDoc := make(map[int]string, len(c.posToDoc))
	for docID, pos := range c.docToPos {
		newPos, ok := remap[pos]
		if !ok {
			continue
		}
		docToPos[docID] = newPos
		posToDoc[newPos] = docID
	}

	c.index = compacted
	c.docToPos = docToPos
	c.posToDoc = posToDoc

	logger.Info("[Cache] Compacted index", "before", before, "after", compacted.Len())
}

// CacheStats summarizes the cache state for monitoring.
type CacheStats struct {
	EntryCount  int     `json:"entry_count"`
	Threshold   float64 `json:"threshold"`
	Model       string  `json:"model_id"`
	Initialized bool    `json:"initialized"`
}

// Stats returns the current cache statistics.
func (c *SemanticCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CacheStats{
		EntryCount:  len(c.docToPos),
		Threshold:   c.threshold,
		Model:       c.embedder.ModelID(),
		Initialized: c.initialized,
	}
}

// Close waits for in-flight background snapshots and persists a final one.
func (c *SemanticCache) Close(ctx context.Context) error {
	c.persistWG.Wait()
	if c.blobs == nil || !c.initialized {
		return nil
	}
	return c.Persist(ctx)
}

func (c *SemanticCache) entryCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.docToPos)
}

func (c *SemanticCache) lookupDoc(pos int) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	docID, ok := c.posToDoc[pos]
	return docID, ok
}

func (c *SemanticCache) unlink(docID string, pos int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.docToPos, docID)
	delete(c.posToDoc, pos)
}

func (c *SemanticCache) deleteEntry(ctx context.Context, docID string) {
	if err := c.documents.Delete(ctx, store.CollectionCacheEntries, docID); err != nil {
		logger.Warn("[Cache] Failed to delete entry", "doc_id", docID, "err", err)
	}
}
