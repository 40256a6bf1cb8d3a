package graph

import (
	"context"
	"fmt"
	"sort"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/finsight/pulse/internal/util"
	"github.com/finsight/pulse/pkg/common"
	"github.com/finsight/pulse/pkg/logger"
	"github.com/finsight/pulse/pkg/store"
)

const (
	defaultMaxLoadEntities = 50000
	defaultPreviewLen      = 500
)

// KnowledgeGraphBuilder incrementally grows a financial knowledge graph from
// scored texts and answers analytics queries over it. Like the cache, the
// graph is an optimization: persistence failures degrade, extraction
// failures surface.
type KnowledgeGraphBuilder struct {
	extractor *EntityExtractor
	relations *RelationExtractor
	graph     *GraphStore

	previewRunes int
}

// NewKnowledgeGraphBuilderParams defines the configuration for creating a
// KnowledgeGraphBuilder. NER is required; Documents is optional and enables
// persistence across restarts.
type NewKnowledgeGraphBuilderParams struct {
	NER             NERPipeline
	Documents       store.DocumentStore
	MaxLoadEntities int
	PreviewRunes    int
}

func NewKnowledgeGraphBuilder(params NewKnowledgeGraphBuilderParams) (*KnowledgeGraphBuilder, error) {
	extractor, err := NewEntityExtractor(params.NER)
	if err != nil {
		return nil, err
	}
	previewRunes := params.PreviewRunes
	if previewRunes <= 0 {
		previewRunes = defaultPreviewLen
	}
	return &KnowledgeGraphBuilder{
		extractor:    extractor,
		relations:    NewRelationExtractor(),
		graph:        NewGraphStore(params.Documents),
		previewRunes: previewRunes,
	}, nil
}

// Initialize restores persisted graph state.
func (b *KnowledgeGraphBuilder) Initialize(ctx context.Context) {
	b.graph.Load(ctx, defaultMaxLoadEntities)
}

// ExtractionResult reports what one processed text contributed.
type ExtractionResult struct {
	TextID    string                   `json:"text_id"`
	Entities  []common.FinancialEntity `json:"entities"`
	Relations []common.EntityRelation  `json:"relations"`
}

// ProcessText extracts entities and relations from one scored text, merges
// them into the graph and persists the provenance record plus the touched
// entities. Store failures are logged and skipped; only extraction failure
// is an error.
func (b *KnowledgeGraphBuilder) ProcessText(ctx context.Context, text string, sentiment float64) (*ExtractionResult, error) {
	entities, err := b.extractor.Extract(text)
	if err != nil {
		return nil, fmt.Errorf("graph: entity extraction failed: %w", err)
	}

	relations := b.relations.Extract(text, entities, sentiment)

	for _, entity := range entities {
		b.graph.MergeEntity(entity)
	}
	for _, rel := range relations {
		b.graph.MergeRelation(rel)
	}

	textID, err := gonanoid.New()
	if err != nil {
		return nil, fmt.Errorf("graph: failed to generate text id: %w", err)
	}

	entityIDs := make([]string, len(entities))
	for i, entity := range entities {
		entityIDs[i] = entity.ID
	}
	b.graph.PersistText(ctx, common.TextRecord{
		ID:          textID,
		TextPreview: util.Preview(text, b.previewRunes),
		EntityIDs:   entityIDs,
		Relations:   relations,
		Sentiment:   sentiment,
		ProcessedAt: time.Now().UTC(),
	})
	b.graph.FlushDirty(ctx)

	logger.Debug("[Graph] Processed text", "entities", len(entities), "relations", len(relations))
	return &ExtractionResult{TextID: textID, Entities: entities, Relations: relations}, nil
}

// EntityScore pairs an entity id with an analytics score.
type EntityScore struct {
	EntityID string  `json:"entity_id"`
	Name     string  `json:"name"`
	Score    float64 `json:"score"`
}

// EntityCentrality returns the topN entities by weighted PageRank,
// descending. An empty graph yields an empty slice.
func (b *KnowledgeGraphBuilder) EntityCentrality(topN int) []EntityScore {
	nodes, edges := b.graph.snapshot()
	adj := buildAdjacency(nodes, edges)
	rank := pageRank(adj, nil)

	scores := make([]EntityScore, 0, len(rank))
	for i, score := range rank {
		name := ""
		if entity, ok := b.graph.Entity(adj.ids[i]); ok {
			name = entity.Name
		}
		scores = append(scores, EntityScore{EntityID: adj.ids[i], Name: name, Score: score})
	}
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].Score > scores[j].Score })
	if topN > 0 && topN < len(scores) {
		scores = scores[:topN]
	}
	return scores
}

// DetectCommunities assigns every entity a dense non-negative community id,
// computed over the undirected view of the graph. Disconnected singletons
// each get their own id.
func (b *KnowledgeGraphBuilder) DetectCommunities() map[string]int {
	nodes, edges := b.graph.snapshot()
	adj := buildAdjacency(nodes, edges)
	comm := communities(adj)

	out := make(map[string]int, len(comm))
	for i, c := range comm {
		out[adj.ids[i]] = c
	}
	return out
}

// FindShortestPath resolves both references (name, alias or id) and returns
// the entity-id sequence of the shortest directed path between them, or nil
// when either reference is unknown or no path exists.
func (b *KnowledgeGraphBuilder) FindShortestPath(from, to string) []string {
	srcID, ok := b.graph.Resolve(from)
	if !ok {
		return nil
	}
	dstID, ok := b.graph.Resolve(to)
	if !ok {
		return nil
	}

	nodes, edges := b.graph.snapshot()
	adj := buildAdjacency(nodes, edges)
	path := shortestPath(adj, adj.index[srcID], adj.index[dstID])
	if path == nil {
		return nil
	}

	ids := make([]string, len(path))
	for i, n := range path {
		ids[i] = adj.ids[n]
	}
	return ids
}

// PropagateSentiment diffuses a sentiment reading observed about one entity
// to the entities it links to, via personalized PageRank with all restart
// mass on the seed. Scores are scaled by the input sentiment, so magnitude
// decays with graph distance from the seed. Returns nil when the seed does
// not resolve.
func (b *KnowledgeGraphBuilder) PropagateSentiment(seed string, sentiment float64) map[string]float64 {
	seedID, ok := b.graph.Resolve(seed)
	if !ok {
		return nil
	}

	nodes, edges := b.graph.snapshot()
	adj := buildAdjacency(nodes, edges)

	teleport := make([]float64, len(adj.ids))
	teleport[adj.index[seedID]] = 1
	rank := pageRank(adj, teleport)

	out := make(map[string]float64, len(rank))
	for i, score := range rank {
		out[adj.ids[i]] = score * sentiment
	}
	return out
}

// GraphStats summarizes the graph for monitoring and exports.
type GraphStats struct {
	NodeCount int `json:"node_count"`
	EdgeCount int `json:"edge_count"`
}

// Stats returns the current node and edge counts.
func (b *KnowledgeGraphBuilder) Stats() GraphStats {
	nodes, edges := b.graph.Counts()
	return GraphStats{NodeCount: nodes, EdgeCount: edges}
}

// Close flushes any unpersisted entity records.
func (b *KnowledgeGraphBuilder) Close(ctx context.Context) error {
	b.graph.FlushDirty(ctx)
	return nil
}
