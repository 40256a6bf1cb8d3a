package openai

import (
	"sync"

	"github.com/finsight/pulse/pkg/ai"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"golang.org/x/sync/semaphore"
)

// EmbeddingOpenAIClient implements ai.EmbeddingClient against any
// OpenAI-compatible embedding endpoint.
//
// An EmbeddingOpenAIClient should be created using NewEmbeddingOpenAIClient.
type EmbeddingOpenAIClient struct {
	embeddingModel string
	dimensions     int
	maxTokens      int
	timeoutMin     int

	embeddingURL string
	embeddingKey string

	embeddingLock *semaphore.Weighted

	metricsLock sync.Mutex
	metrics     ai.ModelMetrics

	EmbeddingClient *openai.Client
}

// NewEmbeddingOpenAIClientParams defines the configuration parameters for
// creating a new EmbeddingOpenAIClient.
//
// EmbeddingModel specifies the model used for embeddings.
// EmbeddingURL and EmbeddingKey configure the embedding API endpoint.
// MaxInputTokens bounds single inputs; longer texts are truncated at the
// token boundary before the request is sent.
type NewEmbeddingOpenAIClientParams struct {
	EmbeddingModel string
	Dimensions     int

	EmbeddingURL string
	EmbeddingKey string

	MaxConcurrentRequests int64
	MaxInputTokens        int
	TimeoutMin            int
}

// NewEmbeddingOpenAIClient creates and returns a new EmbeddingOpenAIClient
// configured with the provided parameters. It returns ai.ErrNotConfigured
// when the model or API key is missing.
//
// Example:
//
//	client, err := openai.NewEmbeddingOpenAIClient(openai.NewEmbeddingOpenAIClientParams{
//		EmbeddingModel: "text-embedding-3-small",
//		Dimensions:     1536,
//		EmbeddingURL:   "https://api.openai.com/v1",
//		EmbeddingKey:   os.Getenv("OPENAI_API_KEY"),
//	})
func NewEmbeddingOpenAIClient(
	params NewEmbeddingOpenAIClientParams,
) (*EmbeddingOpenAIClient, error) {
	if params.EmbeddingModel == "" || params.EmbeddingKey == "" {
		return nil, ai.ErrNotConfigured
	}

	options := []option.RequestOption{
		option.WithAPIKey(params.EmbeddingKey),
	}
	if params.EmbeddingURL != "" {
		options = append(options, option.WithBaseURL(params.EmbeddingURL))
	}
	client := openai.NewClient(options...)

	maxConcurrent := params.MaxConcurrentRequests
	if maxConcurrent <= 0 {
		maxConcurrent = 8
	}
	maxTokens := params.MaxInputTokens
	if maxTokens <= 0 {
		maxTokens = 8192
	}
	timeoutMin := params.TimeoutMin
	if timeoutMin <= 0 {
		timeoutMin = 2
	}
	dim := params.Dimensions
	if dim <= 0 {
		dim = defaultDimensions
	}

	return &EmbeddingOpenAIClient{
		embeddingModel: params.EmbeddingModel,
		dimensions:     dim,
		maxTokens:      maxTokens,
		timeoutMin:     timeoutMin,

		embeddingURL: params.EmbeddingURL,
		embeddingKey: params.EmbeddingKey,

		embeddingLock: semaphore.NewWeighted(maxConcurrent),

		metricsLock: sync.Mutex{},
		metrics:     ai.ModelMetrics{},

		EmbeddingClient: &client,
	}, nil
}

// ModelID returns the configured embedding model name.
func (c *EmbeddingOpenAIClient) ModelID() string {
	return c.embeddingModel
}

// Dimensions returns the fixed output dimension of the embedding model.
func (c *EmbeddingOpenAIClient) Dimensions() int {
	return c.dimensions
}

// Metrics returns a copy of the accumulated usage metrics.
func (c *EmbeddingOpenAIClient) Metrics() ai.ModelMetrics {
	c.metricsLock.Lock()
	defer c.metricsLock.Unlock()
	return c.metrics
}

func (c *EmbeddingOpenAIClient) modifyMetrics(delta ai.ModelMetrics) {
	c.metricsLock.Lock()
	defer c.metricsLock.Unlock()
	c.metrics.InputTokens += delta.InputTokens
	c.metrics.TotalTokens += delta.TotalTokens
	c.metrics.DurationMs += delta.DurationMs
}
