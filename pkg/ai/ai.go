package ai

import (
	"context"
	"errors"
	"math"
)

// ErrNotConfigured is returned by client constructors when a required model
// or endpoint is missing. Callers must treat this as a configuration error
// and fail startup rather than run with a silently empty cache or graph.
var ErrNotConfigured = errors.New("ai: embedding client not configured")

// EmbeddingClient is the contract for sentence-embedding backends. Vectors
// have a fixed dimension per model; callers normalize before indexing.
type EmbeddingClient interface {
	GenerateEmbedding(ctx context.Context, input []byte) ([]float32, error)
	GenerateEmbeddings(ctx context.Context, inputs [][]byte) ([][]float32, error)

	// ModelID identifies the embedding model, recorded in index snapshots so
	// a recovered index is never served against a different model's vectors.
	ModelID() string
	Dimensions() int
}

// ModelMetrics contains cumulative usage metrics from embedding operations.
type ModelMetrics struct {
	InputTokens  int   `json:"input_tokens"`
	OutputTokens int   `json:"output_tokens"`
	TotalTokens  int   `json:"total_tokens"`
	DurationMs   int64 `json:"duration_ms"`
}

// NormalizeL2 scales v to unit length in place and returns it. A zero vector
// is returned unchanged. Unit-normalized vectors let inner product stand in
// for cosine similarity.
func NormalizeL2(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	norm := float32(math.Sqrt(sum))
	for i := range v {
		v[i] /= norm
	}
	return v
}

// Dot returns the inner product of two equal-length vectors.
func Dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
