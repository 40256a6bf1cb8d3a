package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"testing"
	"time"

	"github.com/finsight/pulse/pkg/common"
	"github.com/finsight/pulse/pkg/store"
	"github.com/finsight/pulse/pkg/store/memory"
)

// fakeEmbedder returns fixed vectors for pinned texts and a deterministic
// hash-derived vector for everything else, so tests control similarity
// exactly without a model in the loop.
type fakeEmbedder struct {
	dim    int
	pinned map[string][]float32
}

func newFakeEmbedder(dim int) *fakeEmbedder {
	return &fakeEmbedder{dim: dim, pinned: make(map[string][]float32)}
}

func (f *fakeEmbedder) pin(text string, v []float32) {
	f.pinned[text] = v
}

func (f *fakeEmbedder) GenerateEmbedding(_ context.Context, input []byte) ([]float32, error) {
	if v, ok := f.pinned[string(input)]; ok {
		out := make([]float32, len(v))
		copy(out, v)
		return out, nil
	}
	sum := sha256.Sum256(input)
	out := make([]float32, f.dim)
	for i := range out {
		out[i] = float32(sum[i%len(sum)]) + 1
	}
	return out, nil
}

func (f *fakeEmbedder) GenerateEmbeddings(ctx context.Context, inputs [][]byte) ([][]float32, error) {
	out := make([][]float32, len(inputs))
	for i, input := range inputs {
		v, err := f.GenerateEmbedding(ctx, input)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (f *fakeEmbedder) ModelID() string { return "fake-embedder" }
func (f *fakeEmbedder) Dimensions() int { return f.dim }

func newTestCache(t *testing.T, embedder *fakeEmbedder, blobs store.BlobStore) (*SemanticCache, *memory.DocumentStore) {
	t.Helper()
	docs := memory.NewDocumentStore()
	c, err := NewSemanticCache(NewSemanticCacheParams{
		Embedder:  embedder,
		Documents: docs,
		Blobs:     blobs,
		Threshold: 0.85,
	})
	if err != nil {
		t.Fatalf("NewSemanticCache() error = %v", err)
	}
	if err := c.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	return c, docs
}

func TestNewSemanticCacheRequiresEmbedder(t *testing.T) {
	_, err := NewSemanticCache(NewSemanticCacheParams{Documents: memory.NewDocumentStore()})
	if err == nil {
		t.Fatal("NewSemanticCache() without embedder should fail")
	}
}

func TestUninitializedCacheRejectsLookups(t *testing.T) {
	c, err := NewSemanticCache(NewSemanticCacheParams{
		Embedder:  newFakeEmbedder(4),
		Documents: memory.NewDocumentStore(),
	})
	if err != nil {
		t.Fatalf("NewSemanticCache() error = %v", err)
	}
	if _, err := c.GetSimilar(context.Background(), "anything"); err != ErrNotInitialized {
		t.Fatalf("GetSimilar() error = %v, want ErrNotInitialized", err)
	}
}

func TestStoreAndGetSimilarRoundTrip(t *testing.T) {
	ctx := context.Background()
	embedder := newFakeEmbedder(4)
	c, _ := newTestCache(t, embedder, nil)

	result := json.RawMessage(`{"sentiment":"bullish","score":0.91}`)
	if ok := c.StoreResult(ctx, "Fed raises interest rates by 25bps", result, 0); !ok {
		t.Fatal("StoreResult() = false, want true")
	}

	got, err := c.GetSimilar(ctx, "Fed raises interest rates by 25bps")
	if err != nil {
		t.Fatalf("GetSimilar() error = %v", err)
	}
	if string(got) != string(result) {
		t.Fatalf("GetSimilar() = %s, want %s", got, result)
	}
}

func TestGetSimilarThreshold(t *testing.T) {
	ctx := context.Background()
	embedder := newFakeEmbedder(2)
	// cos(stored, near) ≈ 0.995, cos(stored, far) ≈ 0.707.
	embedder.pin("stored", []float32{1, 0})
	embedder.pin("near", []float32{1, 0.1})
	embedder.pin("far", []float32{1, 1})

	c, _ := newTestCache(t, embedder, nil)
	if ok := c.StoreResult(ctx, "stored", json.RawMessage(`{"hit":true}`), 0); !ok {
		t.Fatal("StoreResult() = false, want true")
	}

	got, err := c.GetSimilar(ctx, "near")
	if err != nil {
		t.Fatalf("GetSimilar(near) error = %v", err)
	}
	if got == nil {
		t.Fatal("GetSimilar(near) = nil, want cached result above threshold")
	}

	got, err = c.GetSimilar(ctx, "far")
	if err != nil {
		t.Fatalf("GetSimilar(far) error = %v", err)
	}
	if got != nil {
		t.Fatalf("GetSimilar(far) = %s, want miss below threshold", got)
	}
}

func TestGetSimilarEmptyCache(t *testing.T) {
	c, _ := newTestCache(t, newFakeEmbedder(4), nil)
	got, err := c.GetSimilar(context.Background(), "anything")
	if err != nil {
		t.Fatalf("GetSimilar() error = %v", err)
	}
	if got != nil {
		t.Fatalf("GetSimilar() on empty cache = %s, want nil", got)
	}
}

func TestExpiredEntryIsEvicted(t *testing.T) {
	ctx := context.Background()
	embedder := newFakeEmbedder(4)
	c, docs := newTestCache(t, embedder, nil)

	if ok := c.StoreResult(ctx, "short lived", json.RawMessage(`{"v":1}`), time.Minute); !ok {
		t.Fatal("StoreResult() = false, want true")
	}

	// Backdate the stored entry past its TTL.
	stored, err := docs.Scan(ctx, store.CollectionCacheEntries, 0)
	if err != nil || len(stored) != 1 {
		t.Fatalf("Scan() = %d docs, err %v, want exactly 1", len(stored), err)
	}
	var entry common.CacheEntry
	if err := json.Unmarshal(stored[0].Payload, &entry); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	entry.CreatedAt = time.Now().Add(-2 * time.Minute)
	payload, _ := json.Marshal(entry)
	if err := docs.Set(ctx, store.CollectionCacheEntries, stored[0].ID, payload); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	got, err := c.GetSimilar(ctx, "short lived")
	if err != nil {
		t.Fatalf("GetSimilar() error = %v", err)
	}
	if got != nil {
		t.Fatalf("GetSimilar() = %s, want nil for expired entry", got)
	}
	if _, err := docs.Get(ctx, store.CollectionCacheEntries, stored[0].ID); err != store.ErrNotFound {
		t.Fatalf("entry should be deleted after expiry, got err %v", err)
	}
	if c.Stats().EntryCount != 0 {
		t.Fatalf("EntryCount = %d after eviction, want 0", c.Stats().EntryCount)
	}
}

func TestRemoveLeavesTombstone(t *testing.T) {
	ctx := context.Background()
	embedder := newFakeEmbedder(2)
	embedder.pin("only", []float32{0, 1})
	c, docs := newTestCache(t, embedder, nil)

	if ok := c.StoreResult(ctx, "only", json.RawMessage(`{}`), 0); !ok {
		t.Fatal("StoreResult() = false, want true")
	}
	stored, _ := docs.Scan(ctx, store.CollectionCacheEntries, 0)
	c.Remove(ctx, stored[0].ID)

	// Vector stays behind as a tombstone; the lookup must not serve it.
	if c.index.Len() != 1 {
		t.Fatalf("index.Len() = %d after Remove, want 1 (tombstone)", c.index.Len())
	}
	got, err := c.GetSimilar(ctx, "only")
	if err != nil {
		t.Fatalf("GetSimilar() error = %v", err)
	}
	if got != nil {
		t.Fatalf("GetSimilar() = %s, want nil for tombstoned entry", got)
	}

	c.Compact(ctx)
	if c.index.Len() != 0 {
		t.Fatalf("index.Len() = %d after Compact, want 0", c.index.Len())
	}
}

func TestCompactRemapsSurvivors(t *testing.T) {
	ctx := context.Background()
	embedder := newFakeEmbedder(2)
	embedder.pin("first", []float32{1, 0})
	embedder.pin("second", []float32{0, 1})
	c, docs := newTestCache(t, embedder, nil)

	c.StoreResult(ctx, "first", json.RawMessage(`{"n":1}`), 0)
	c.StoreResult(ctx, "second", json.RawMessage(`{"n":2}`), 0)

	stored, _ := docs.Scan(ctx, store.CollectionCacheEntries, 0)
	for _, doc := range stored {
		var entry common.CacheEntry
		json.Unmarshal(doc.Payload, &entry)
		if entry.TextHash == "" {
			t.Fatalf("entry %s has no text hash", doc.ID)
		}
		if entry.IndexPos == 0 {
			c.Remove(ctx, doc.ID)
		}
	}
	c.Compact(ctx)

	if c.index.Len() != 1 {
		t.Fatalf("index.Len() = %d after Compact, want 1", c.index.Len())
	}
	got, err := c.GetSimilar(ctx, "second")
	if err != nil {
		t.Fatalf("GetSimilar() error = %v", err)
	}
	if string(got) != `{"n":2}` {
		t.Fatalf("GetSimilar(second) = %s, want {\"n\":2}", got)
	}
}

func TestSnapshotRecovery(t *testing.T) {
	ctx := context.Background()
	embedder := newFakeEmbedder(3)
	embedder.pin("persisted text", []float32{0.2, 0.4, 0.8})
	blobs := memory.NewBlobStore()

	c, docs := newTestCache(t, embedder, blobs)
	if ok := c.StoreResult(ctx, "persisted text", json.RawMessage(`{"saved":true}`), 0); !ok {
		t.Fatal("StoreResult() = false, want true")
	}
	if err := c.Close(ctx); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	// A fresh cache over the same stores must recover without re-embedding.
	recovered, err := NewSemanticCache(NewSemanticCacheParams{
		Embedder:  embedder,
		Documents: docs,
		Blobs:     blobs,
	})
	if err != nil {
		t.Fatalf("NewSemanticCache() error = %v", err)
	}
	if err := recovered.Initialize(ctx); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	if recovered.Stats().EntryCount != 1 {
		t.Fatalf("EntryCount = %d after recovery, want 1", recovered.Stats().EntryCount)
	}

	got, err := recovered.GetSimilar(ctx, "persisted text")
	if err != nil {
		t.Fatalf("GetSimilar() error = %v", err)
	}
	if string(got) != `{"saved":true}` {
		t.Fatalf("GetSimilar() = %s, want {\"saved\":true}", got)
	}
}

func TestSnapshotModelMismatchFallsBackToRebuild(t *testing.T) {
	ctx := context.Background()
	embedder := newFakeEmbedder(3)
	embedder.pin("mismatch text", []float32{1, 2, 3})
	blobs := memory.NewBlobStore()

	c, docs := newTestCache(t, embedder, blobs)
	c.StoreResult(ctx, "mismatch text", json.RawMessage(`{"m":1}`), 0)
	if err := c.Close(ctx); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	// Poison the sidecar with a different model id; the cache must ignore
	// the snapshot and rebuild from the document store.
	sidecarBlob, err := blobs.Download(ctx, "snapshots/semantic-cache/sidecar.json")
	if err != nil {
		t.Fatalf("Download() error = %v", err)
	}
	var sidecar snapshotSidecar
	json.Unmarshal(sidecarBlob, &sidecar)
	sidecar.Model = "some-other-model"
	poisoned, _ := json.Marshal(sidecar)
	blobs.Upload(ctx, "snapshots/semantic-cache/sidecar.json", poisoned)

	recovered, err := NewSemanticCache(NewSemanticCacheParams{
		Embedder:  embedder,
		Documents: docs,
		Blobs:     blobs,
	})
	if err != nil {
		t.Fatalf("NewSemanticCache() error = %v", err)
	}
	if err := recovered.Initialize(ctx); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	if recovered.Stats().EntryCount != 1 {
		t.Fatalf("EntryCount = %d after rebuild, want 1", recovered.Stats().EntryCount)
	}
}

func TestRebuildWithoutBlobStore(t *testing.T) {
	ctx := context.Background()
	embedder := newFakeEmbedder(3)
	embedder.pin("rebuild me", []float32{3, 2, 1})

	c, docs := newTestCache(t, embedder, nil)
	c.StoreResult(ctx, "rebuild me", json.RawMessage(`{"r":1}`), 0)

	fresh, err := NewSemanticCache(NewSemanticCacheParams{
		Embedder:  embedder,
		Documents: docs,
	})
	if err != nil {
		t.Fatalf("NewSemanticCache() error = %v", err)
	}
	if err := fresh.Initialize(ctx); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}

	got, err := fresh.GetSimilar(ctx, "rebuild me")
	if err != nil {
		t.Fatalf("GetSimilar() error = %v", err)
	}
	if string(got) != `{"r":1}` {
		t.Fatalf("GetSimilar() = %s, want {\"r\":1}", got)
	}
}

func TestStats(t *testing.T) {
	c, _ := newTestCache(t, newFakeEmbedder(4), nil)
	stats := c.Stats()
	if stats.EntryCount != 0 || !stats.Initialized {
		t.Fatalf("Stats() = %+v, want empty initialized cache", stats)
	}
	if stats.Threshold != 0.85 {
		t.Fatalf("Threshold = %v, want 0.85", stats.Threshold)
	}
	if stats.Model != "fake-embedder" {
		t.Fatalf("Model = %q, want fake-embedder", stats.Model)
	}
}
