package ollama

import (
	"net/http"
	"net/url"
	"sync"

	"github.com/finsight/pulse/pkg/ai"

	"github.com/ollama/ollama/api"
	"golang.org/x/sync/semaphore"
)

// EmbeddingOllamaClient implements ai.EmbeddingClient against a locally
// hosted Ollama server.
type EmbeddingOllamaClient struct {
	embeddingModel string
	dimensions     int
	timeoutMin     int

	reqLock *semaphore.Weighted

	metricsLock sync.Mutex
	metrics     ai.ModelMetrics

	baseURL    *url.URL
	apiKey     string
	httpClient *http.Client

	Client *api.Client
}

// NewEmbeddingOllamaClientParams contains configuration for creating a new
// EmbeddingOllamaClient.
type NewEmbeddingOllamaClientParams struct {
	EmbeddingModel string
	Dimensions     int

	BaseURL string
	ApiKey  string

	MaxConcurrentRequests int64
	TimeoutMin            int
}

type headerTransport struct {
	headers map[string]string
	rt      http.RoundTripper
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// clone so original request isn't modified
	r := req.Clone(req.Context())
	for k, v := range t.headers {
		if r.Header.Get(k) == "" {
			r.Header.Set(k, v)
		}
	}
	return t.rt.RoundTrip(r)
}

// NewEmbeddingOllamaClient creates an Ollama-backed embedding client. It
// connects to the server at BaseURL (or the Ollama default if empty) and
// returns ai.ErrNotConfigured if no embedding model is set.
func NewEmbeddingOllamaClient(
	params NewEmbeddingOllamaClientParams,
) (*EmbeddingOllamaClient, error) {
	if params.EmbeddingModel == "" {
		return nil, ai.ErrNotConfigured
	}

	var (
		u   *url.URL
		err error
	)

	if params.BaseURL != "" {
		u, err = url.Parse(params.BaseURL)
		if err != nil {
			return nil, err
		}
	}

	httpClient := &http.Client{
		Transport: &headerTransport{
			headers: map[string]string{
				"Authorization": "Bearer " + params.ApiKey,
			},
			rt: http.DefaultTransport,
		},
	}

	cli := api.NewClient(u, httpClient)

	maxConcurrent := params.MaxConcurrentRequests
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}
	timeoutMin := params.TimeoutMin
	if timeoutMin <= 0 {
		timeoutMin = 2
	}
	dim := params.Dimensions
	if dim <= 0 {
		dim = defaultDimensions
	}

	return &EmbeddingOllamaClient{
		embeddingModel: params.EmbeddingModel,
		dimensions:     dim,
		timeoutMin:     timeoutMin,

		reqLock: semaphore.NewWeighted(maxConcurrent),

		metricsLock: sync.Mutex{},
		metrics:     ai.ModelMetrics{},

		baseURL:    u,
		apiKey:     params.ApiKey,
		httpClient: httpClient,

		Client: cli,
	}, nil
}

// ModelID returns the configured embedding model name.
func (c *EmbeddingOllamaClient) ModelID() string {
	return c.embeddingModel
}

// Dimensions returns the fixed output dimension of the embedding model.
func (c *EmbeddingOllamaClient) Dimensions() int {
	return c.dimensions
}

// Metrics returns a copy of the accumulated usage metrics.
func (c *EmbeddingOllamaClient) Metrics() ai.ModelMetrics {
	c.metricsLock.Lock()
	defer c.metricsLock.Unlock()
	return c.metrics
}

func (c *EmbeddingOllamaClient) modifyMetrics(delta ai.ModelMetrics) {
	c.metricsLock.Lock()
	defer c.metricsLock.Unlock()
	c.metrics.InputTokens += delta.InputTokens
	c.metrics.TotalTokens += delta.TotalTokens
	c.metrics.DurationMs += delta.DurationMs
}
