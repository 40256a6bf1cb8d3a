package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/finsight/pulse/pkg/cache"
	"github.com/finsight/pulse/pkg/graph"
	"github.com/finsight/pulse/pkg/logger"
)

// ScoreJobMsg is one scoring job. Result is the paid model's output for the
// text when the producer already obtained it; jobs without a result only
// consult the cache and enrich the graph.
type ScoreJobMsg struct {
	Text       string          `json:"text"`
	Result     json.RawMessage `json:"result,omitempty"`
	Sentiment  float64         `json:"sentiment"`
	TTLSeconds int64           `json:"ttl_seconds"`
}

// ProcessScoreMessage runs one job through the cost-reduction pipeline:
// cache lookup first, then cache fill when the job carries a fresh result,
// then knowledge-graph enrichment. Cache failures degrade to a miss; only
// malformed messages and extraction failures bounce the message.
func ProcessScoreMessage(
	ctx context.Context,
	semCache *cache.SemanticCache,
	builder *graph.KnowledgeGraphBuilder,
	msg string,
) error {
	data := new(ScoreJobMsg)
	if err := json.Unmarshal([]byte(msg), data); err != nil {
		return fmt.Errorf("malformed score job: %w", err)
	}
	if data.Text == "" {
		return fmt.Errorf("score job carries no text")
	}

	cached, err := semCache.GetSimilar(ctx, data.Text)
	if err != nil {
		return err
	}

	switch {
	case cached != nil:
		logger.Info("[Queue] Cache hit, paid model call avoided")
	case data.Result != nil:
		if ok := semCache.StoreResult(ctx, data.Text, data.Result, time.Duration(data.TTLSeconds)*time.Second); !ok {
			logger.Warn("[Queue] Result not cached, continuing")
		}
	default:
		logger.Debug("[Queue] Cache miss and no result supplied, skipping store")
	}

	extracted, err := builder.ProcessText(ctx, data.Text, data.Sentiment)
	if err != nil {
		return err
	}
	logger.Info("[Queue] Graph enriched",
		"entities", len(extracted.Entities),
		"relations", len(extracted.Relations),
	)

	return nil
}
