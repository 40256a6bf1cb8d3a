package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/finsight/pulse/pkg/ai"
	"github.com/finsight/pulse/pkg/common"
	"github.com/finsight/pulse/pkg/logger"
	"github.com/finsight/pulse/pkg/store"
	"github.com/finsight/pulse/pkg/vector"
)

// Initialize transitions the cache from uninitialized to ready, exactly
// once, via one of two paths: recover from a blob snapshot when one exists,
// otherwise rebuild from the document store. Both paths verify that the
// index and the doc-id map are mutually consistent before the cache starts
// serving; an inconsistent state is an initialization error, never a
// silently empty cache.
func (c *SemanticCache) Initialize(ctx context.Context) error {
	if c.initialized {
		return nil
	}

	if c.blobs != nil {
		recovered, err := c.recoverFromSnapshot(ctx)
		if err != nil {
			return fmt.Errorf("cache: snapshot recovery failed: %w", err)
		}
		if recovered {
			c.initialized = true
			logger.Info("[Cache] Recovered from snapshot", "entries", len(c.docToPos))
			return nil
		}
	}

	if err := c.rebuildFromDocuments(ctx); err != nil {
		return fmt.Errorf("cache: rebuild failed: %w", err)
	}

	c.initialized = true
	logger.Info("[Cache] Rebuilt from document store", "entries", len(c.docToPos))
	return nil
}

// recoverFromSnapshot attempts the fast path. It returns false (and no
// error) when no usable snapshot exists, including a snapshot written by a
// different embedding model.
func (c *SemanticCache) recoverFromSnapshot(ctx context.Context) (bool, error) {
	exists, err := c.blobs.Exists(ctx, c.sidecarKey())
	if err != nil {
		logger.Warn("[Cache] Snapshot existence check failed, falling back to rebuild", "err", err)
		return false, nil
	}
	if !exists {
		return false, nil
	}

	sidecarBlob, err := c.blobs.Download(ctx, c.sidecarKey())
	if err != nil {
		logger.Warn("[Cache] Sidecar download failed, falling back to rebuild", "err", err)
		return false, nil
	}

	var sidecar snapshotSidecar
	if err := json.Unmarshal(sidecarBlob, &sidecar); err != nil {
		logger.Warn("[Cache] Malformed sidecar, falling back to rebuild", "err", err)
		return false, nil
	}

	if sidecar.Model != c.embedder.ModelID() {
		logger.Warn("[Cache] Snapshot was built by a different model, rebuilding",
			"snapshot_model", sidecar.Model, "model", c.embedder.ModelID())
		return false, nil
	}

	indexBlob, err := c.blobs.Download(ctx, c.indexKey())
	if err != nil {
		logger.Warn("[Cache] Index blob download failed, falling back to rebuild", "err", err)
		return false, nil
	}

	index, err := vector.Deserialize(indexBlob)
	if err != nil {
		logger.Warn("[Cache] Corrupt index snapshot, falling back to rebuild", "err", err)
		return false, nil
	}

	if sidecar.EntryCount != len(sidecar.DocIDToIndex) {
		return false, fmt.Errorf("sidecar entry_count %d does not match map size %d",
			sidecar.EntryCount, len(sidecar.DocIDToIndex))
	}

	docToPos := make(map[string]int, len(sidecar.DocIDToIndex))
	posToDoc := make(map[int]string, len(sidecar.DocIDToIndex))
	for docID, pos := range sidecar.DocIDToIndex {
		if pos < 0 || pos >= index.Len() {
			return false, fmt.Errorf("sidecar maps %s to position %d outside index of %d entries",
				docID, pos, index.Len())
		}
		docToPos[docID] = pos
		posToDoc[pos] = docID
	}

	c.index = index
	c.docToPos = docToPos
	c.posToDoc = posToDoc
	return true, nil
}

// rebuildFromDocuments is the slow path after total snapshot loss: scan the
// durable entries (bounded), obtain an embedding for each, and rebuild the
// index and map from scratch. Stored embeddings are reused when the document
// store supports them; otherwise the text preview is re-embedded.
func (c *SemanticCache) rebuildFromDocuments(ctx context.Context) error {
	index, err := vector.NewIndex(c.embedder.Dimensions())
	if err != nil {
		return err
	}

	docs, err := c.documents.Scan(ctx, store.CollectionCacheEntries, c.maxEntries)
	if err != nil {
		return fmt.Errorf("failed to scan cache entries: %w", err)
	}

	es, hasEmbeddings := c.documents.(store.EmbeddingStore)

	docToPos := make(map[string]int, len(docs))
	posToDoc := make(map[int]string, len(docs))

	for _, doc := range docs {
		var entry common.CacheEntry
		if err := json.Unmarshal(doc.Payload, &entry); err != nil {
			logger.Warn("[Cache] Skipping malformed entry during rebuild", "doc_id", doc.ID, "err", err)
			continue
		}

		var embedding []float32
		if hasEmbeddings {
			embedding, err = es.GetEmbedding(ctx, store.CollectionCacheEntries, doc.ID)
			if err != nil && !errors.Is(err, store.ErrNotFound) {
				logger.Warn("[Cache] Failed to load stored embedding", "doc_id", doc.ID, "err", err)
			}
		}
		if len(embedding) != c.embedder.Dimensions() {
			embedding, err = c.embedder.GenerateEmbedding(ctx, []byte(entry.TextPreview))
			if err != nil {
				return fmt.Errorf("failed to re-embed entry %s: %w", doc.ID, err)
			}
		}
		ai.NormalizeL2(embedding)

		pos, err := index.Add(embedding)
		if err != nil {
			return fmt.Errorf("failed to re-insert entry %s: %w", doc.ID, err)
		}
		docToPos[doc.ID] = pos
		posToDoc[pos] = doc.ID
	}

	if index.Len() != len(docToPos) {
		return fmt.Errorf("rebuilt index has %d entries but map has %d", index.Len(), len(docToPos))
	}

	c.index = index
	c.docToPos = docToPos
	c.posToDoc = posToDoc
	return nil
}
