package queue

import (
	"context"
	"crypto/sha256"
	"testing"

	"github.com/finsight/pulse/pkg/ai"
	"github.com/finsight/pulse/pkg/cache"
	"github.com/finsight/pulse/pkg/graph"
	"github.com/finsight/pulse/pkg/store/memory"
)

type stubEmbedder struct{}

func (stubEmbedder) GenerateEmbedding(_ context.Context, input []byte) ([]float32, error) {
	sum := sha256.Sum256(input)
	out := make([]float32, 8)
	for i := range out {
		out[i] = float32(sum[i]) + 1
	}
	return out, nil
}

func (s stubEmbedder) GenerateEmbeddings(ctx context.Context, inputs [][]byte) ([][]float32, error) {
	out := make([][]float32, len(inputs))
	for i, input := range inputs {
		v, _ := s.GenerateEmbedding(ctx, input)
		out[i] = v
	}
	return out, nil
}

func (stubEmbedder) ModelID() string { return "stub" }
func (stubEmbedder) Dimensions() int { return 8 }

var _ ai.EmbeddingClient = stubEmbedder{}

type stubNER struct{}

func (stubNER) Annotate(string) ([]graph.Span, error) { return nil, nil }

func newPipeline(t *testing.T) (*cache.SemanticCache, *graph.KnowledgeGraphBuilder) {
	t.Helper()
	semCache, err := cache.NewSemanticCache(cache.NewSemanticCacheParams{
		Embedder:  stubEmbedder{},
		Documents: memory.NewDocumentStore(),
	})
	if err != nil {
		t.Fatalf("NewSemanticCache() error = %v", err)
	}
	if err := semCache.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	builder, err := graph.NewKnowledgeGraphBuilder(graph.NewKnowledgeGraphBuilderParams{NER: stubNER{}})
	if err != nil {
		t.Fatalf("NewKnowledgeGraphBuilder() error = %v", err)
	}
	return semCache, builder
}

func TestProcessScoreMessageStoresAndEnriches(t *testing.T) {
	ctx := context.Background()
	semCache, builder := newPipeline(t)

	msg := `{"text":"Gold rose due to inflation","result":{"score":0.8},"sentiment":0.8,"ttl_seconds":0}`
	if err := ProcessScoreMessage(ctx, semCache, builder, msg); err != nil {
		t.Fatalf("ProcessScoreMessage() error = %v", err)
	}

	if semCache.Stats().EntryCount != 1 {
		t.Fatalf("cache entries = %d, want 1", semCache.Stats().EntryCount)
	}
	stats := builder.Stats()
	if stats.NodeCount != 2 || stats.EdgeCount != 1 {
		t.Fatalf("graph stats = %+v, want 2 nodes 1 edge", stats)
	}

	// Reprocessing hits the cache; no second entry appears.
	if err := ProcessScoreMessage(ctx, semCache, builder, msg); err != nil {
		t.Fatalf("ProcessScoreMessage() second run error = %v", err)
	}
	if semCache.Stats().EntryCount != 1 {
		t.Fatalf("cache entries after rerun = %d, want 1", semCache.Stats().EntryCount)
	}
}

func TestProcessScoreMessageRejectsMalformed(t *testing.T) {
	semCache, builder := newPipeline(t)

	if err := ProcessScoreMessage(context.Background(), semCache, builder, "not json"); err == nil {
		t.Fatal("ProcessScoreMessage(not json) should fail")
	}
	if err := ProcessScoreMessage(context.Background(), semCache, builder, `{"sentiment":1}`); err == nil {
		t.Fatal("ProcessScoreMessage(no text) should fail")
	}
}
