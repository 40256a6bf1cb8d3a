package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/finsight/pulse/internal/util"
	"github.com/finsight/pulse/pkg/logger"
)

// snapshotSidecar is the JSON companion of the binary index blob. It carries
// everything needed to validate the blob against the live configuration
// before trusting it.
type snapshotSidecar struct {
	EntryCount   int            `json:"entry_count"`
	LastUpdated  time.Time      `json:"last_updated"`
	Model        string         `json:"model"`
	Threshold    float64        `json:"threshold"`
	DocIDToIndex map[string]int `json:"doc_id_to_index"`
}

func (c *SemanticCache) indexKey() string {
	return c.snapshotKey + "/index.bin"
}

func (c *SemanticCache) sidecarKey() string {
	return c.snapshotKey + "/sidecar.json"
}

// Persist uploads a point-in-time snapshot of the index and its doc-id map
// to the blob store. The snapshot is advisory: losing it only costs a
// rebuild on the next startup, so upload failures are retried a few times
// and then surfaced without touching the in-memory state.
func (c *SemanticCache) Persist(ctx context.Context) error {
	if c.blobs == nil {
		return nil
	}

	c.mu.Lock()
	indexBlob, err := c.index.Serialize()
	docToPos := make(map[string]int, len(c.docToPos))
	for docID, pos := range c.docToPos {
		docToPos[docID] = pos
	}
	c.mu.Unlock()
	if err != nil {
		return fmt.Errorf("cache: failed to serialize index: %w", err)
	}

	sidecar := snapshotSidecar{
		EntryCount:   len(docToPos),
		LastUpdated:  time.Now().UTC(),
		Model:        c.embedder.ModelID(),
		Threshold:    c.threshold,
		DocIDToIndex: docToPos,
	}
	sidecarBlob, err := json.Marshal(sidecar)
	if err != nil {
		return fmt.Errorf("cache: failed to marshal sidecar: %w", err)
	}

	err = util.RetryErr(3, func() error {
		return c.blobs.Upload(ctx, c.indexKey(), indexBlob)
	})
	if err != nil {
		return fmt.Errorf("cache: failed to upload index snapshot: %w", err)
	}

	err = util.RetryErr(3, func() error {
		return c.blobs.Upload(ctx, c.sidecarKey(), sidecarBlob)
	})
	if err != nil {
		return fmt.Errorf("cache: failed to upload sidecar: %w", err)
	}

	logger.Debug("[Cache] Snapshot persisted", "entries", sidecar.EntryCount)
	return nil
}
