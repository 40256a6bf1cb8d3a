package graph

import (
	"context"
	"testing"

	"github.com/finsight/pulse/pkg/common"
	"github.com/finsight/pulse/pkg/store/memory"
)

// fakeNER returns pinned spans per text, nothing otherwise, so tests control
// extraction exactly without loading an NLP model.
type fakeNER struct {
	spans map[string][]Span
}

func newFakeNER() *fakeNER {
	return &fakeNER{spans: make(map[string][]Span)}
}

func (f *fakeNER) Annotate(text string) ([]Span, error) {
	return f.spans[text], nil
}

func newTestBuilder(t *testing.T) *KnowledgeGraphBuilder {
	t.Helper()
	b, err := NewKnowledgeGraphBuilder(NewKnowledgeGraphBuilderParams{NER: newFakeNER()})
	if err != nil {
		t.Fatalf("NewKnowledgeGraphBuilder() error = %v", err)
	}
	return b
}

func TestNewBuilderRequiresNER(t *testing.T) {
	_, err := NewKnowledgeGraphBuilder(NewKnowledgeGraphBuilderParams{})
	if err == nil {
		t.Fatal("NewKnowledgeGraphBuilder() without NER should fail")
	}
}

func TestEntityIdentityStability(t *testing.T) {
	ctx := context.Background()
	b := newTestBuilder(t)

	texts := []string{
		"The Fed raised rates",
		"Fed raised interest rates",
	}
	for _, text := range texts {
		for i := 0; i < 2; i++ {
			if _, err := b.ProcessText(ctx, text, 0.1); err != nil {
				t.Fatalf("ProcessText(%q) error = %v", text, err)
			}
		}
	}

	fedID, ok := b.graph.Resolve("Federal Reserve")
	if !ok {
		t.Fatal("Federal Reserve entity not found")
	}
	fed, _ := b.graph.Entity(fedID)
	if fed.Type != common.EntityOrganization {
		t.Fatalf("Fed type = %s, want organization", fed.Type)
	}
	if fed.MentionCount != 4 {
		t.Fatalf("Fed mention_count = %d, want 4 (one per processing)", fed.MentionCount)
	}

	// "Fed" shorthand must resolve to the same canonical node, not a second one.
	aliasID, ok := b.graph.Resolve("fed")
	if !ok || aliasID != fedID {
		t.Fatalf("Resolve(fed) = (%s, %v), want (%s, true)", aliasID, ok, fedID)
	}
}

func TestRelationMergeAccumulatesWeight(t *testing.T) {
	ctx := context.Background()
	b := newTestBuilder(t)

	// Both texts carry a causal trigger between the same entity pair.
	texts := []string{
		"Gold rose due to inflation",
		"Gold climbed again due to inflation worries",
	}
	for _, text := range texts {
		if _, err := b.ProcessText(ctx, text, 0.5); err != nil {
			t.Fatalf("ProcessText(%q) error = %v", text, err)
		}
	}

	_, edgeCount := b.graph.Counts()
	if edgeCount != 1 {
		t.Fatalf("edge count = %d, want 1 merged edge", edgeCount)
	}

	goldID := common.EntityID("Gold", common.EntityCommodity)
	inflationID := common.EntityID("Inflation", common.EntityIndicator)
	edge, ok := b.graph.edges[edgeKey{goldID, inflationID, common.RelationCausedBy}]
	if !ok {
		t.Fatalf("caused-by edge %s -> %s not found", goldID, inflationID)
	}
	if edge.Weight != 2 {
		t.Fatalf("edge weight = %v, want 2", edge.Weight)
	}
}

func TestRelationClassification(t *testing.T) {
	tests := []struct {
		name string
		text string
		want common.RelationType
	}{
		{"causal", "oil fell due to opec output", common.RelationCausedBy},
		{"regulatory", "the sec opened an investigation into equities trading", common.RelationRegulates},
		{"positive impact", "strong earnings boosted equities higher", common.RelationPositivelyImpacts},
		{"negative impact", "inflation weighed on equities as stocks fell", common.RelationNegativelyImpacts},
		{"inverse correlation", "gold and the dollar moved in opposite direction", common.RelationInverselyCorrelated},
		{"correlation", "silver tracks gold closely", common.RelationCorrelatedWith},
		{"fallback mentions", "gold and silver were quiet", common.RelationMentions},
	}

	re := NewRelationExtractor()
	entities := []common.FinancialEntity{
		{ID: "a", Name: "A"},
		{ID: "b", Name: "B"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rels := re.Extract(tt.text, entities, 0)
			if len(rels) != 1 {
				t.Fatalf("Extract() = %d relations, want 1", len(rels))
			}
			if rels[0].Type != tt.want {
				t.Fatalf("relation type = %s, want %s", rels[0].Type, tt.want)
			}
		})
	}
}

func TestExtractDictionaryPhrases(t *testing.T) {
	extractor, err := NewEntityExtractor(newFakeNER())
	if err != nil {
		t.Fatalf("NewEntityExtractor() error = %v", err)
	}

	entities, err := extractor.Extract("Crude oil slipped as natural gas surged")
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}

	byName := make(map[string]common.FinancialEntity)
	for _, e := range entities {
		byName[e.Name] = e
	}
	if _, ok := byName["Crude Oil"]; !ok {
		t.Fatalf("Crude Oil not extracted, got %v", entities)
	}
	if _, ok := byName["Natural Gas"]; !ok {
		t.Fatalf("Natural Gas not extracted, got %v", entities)
	}
	// The longer phrase consumes its words: no duplicate node from bare "oil".
	if len(byName) != 2 {
		t.Fatalf("extracted %d entities, want 2", len(byName))
	}
}

func TestCentralityEmptyGraph(t *testing.T) {
	b := newTestBuilder(t)
	scores := b.EntityCentrality(10)
	if len(scores) != 0 {
		t.Fatalf("EntityCentrality() on empty graph = %v, want empty", scores)
	}
}

func TestCentralityRanksLinkTarget(t *testing.T) {
	ctx := context.Background()
	b := newTestBuilder(t)

	// Two sources both point at inflation; it should rank first.
	for _, text := range []string{
		"Gold fell due to inflation",
		"Equities dropped due to inflation",
	} {
		if _, err := b.ProcessText(ctx, text, -0.4); err != nil {
			t.Fatalf("ProcessText() error = %v", err)
		}
	}

	scores := b.EntityCentrality(0)
	if len(scores) != 3 {
		t.Fatalf("EntityCentrality() = %d entries, want 3", len(scores))
	}
	inflationID := common.EntityID("Inflation", common.EntityIndicator)
	if scores[0].EntityID != inflationID {
		t.Fatalf("top entity = %s (%s), want inflation", scores[0].Name, scores[0].EntityID)
	}
}

func TestCommunitiesDisconnectedPairs(t *testing.T) {
	ctx := context.Background()
	b := newTestBuilder(t)

	// Two texts with disjoint entity pairs form two components.
	for _, text := range []string{
		"Gold rose due to inflation",
		"Equities tracks the nasdaq",
	} {
		if _, err := b.ProcessText(ctx, text, 0); err != nil {
			t.Fatalf("ProcessText() error = %v", err)
		}
	}

	comm := b.DetectCommunities()
	if len(comm) != 4 {
		t.Fatalf("DetectCommunities() = %d entries, want 4", len(comm))
	}

	distinct := make(map[int]bool)
	for _, c := range comm {
		if c < 0 {
			t.Fatalf("community id %d is negative", c)
		}
		distinct[c] = true
	}
	if len(distinct) != 2 {
		t.Fatalf("found %d communities, want 2", len(distinct))
	}

	goldID := common.EntityID("Gold", common.EntityCommodity)
	inflationID := common.EntityID("Inflation", common.EntityIndicator)
	if comm[goldID] != comm[inflationID] {
		t.Fatal("gold and inflation should share a community")
	}
}

func TestFindShortestPath(t *testing.T) {
	ctx := context.Background()
	b := newTestBuilder(t)

	// Chain: dollar -> gold (text 1), gold -> inflation (text 2). Entity
	// extraction order fixes edge direction.
	for _, text := range []string{
		"The dollar weighed on gold as prices fell",
		"Gold rallied due to inflation",
	} {
		if _, err := b.ProcessText(ctx, text, 0); err != nil {
			t.Fatalf("ProcessText() error = %v", err)
		}
	}

	path := b.FindShortestPath("US Dollar", "Inflation")
	if len(path) != 3 {
		t.Fatalf("FindShortestPath() = %v, want 3 hops", path)
	}
	if path[0] != common.EntityID("US Dollar", common.EntityCurrency) ||
		path[2] != common.EntityID("Inflation", common.EntityIndicator) {
		t.Fatalf("FindShortestPath() endpoints wrong: %v", path)
	}

	if got := b.FindShortestPath("Inflation", "US Dollar"); got != nil {
		t.Fatalf("reverse path = %v, want nil (directed graph)", got)
	}
	if got := b.FindShortestPath("unknown thing", "Gold"); got != nil {
		t.Fatalf("path from unresolved entity = %v, want nil", got)
	}
}

func TestPropagateSentimentDecays(t *testing.T) {
	ctx := context.Background()
	b := newTestBuilder(t)

	if _, err := b.ProcessText(ctx, "Gold rallied due to inflation", 0.8); err != nil {
		t.Fatalf("ProcessText() error = %v", err)
	}

	scores := b.PropagateSentiment("Gold", 1)
	if scores == nil {
		t.Fatal("PropagateSentiment() = nil, want scores")
	}

	goldID := common.EntityID("Gold", common.EntityCommodity)
	inflationID := common.EntityID("Inflation", common.EntityIndicator)
	seed, neighbor := scores[goldID], scores[inflationID]
	if seed <= 0 || neighbor <= 0 {
		t.Fatalf("scores = %v, want positive seed and neighbor", scores)
	}
	if neighbor >= seed {
		t.Fatalf("neighbor score %v >= seed score %v, want decay with distance", neighbor, seed)
	}

	if got := b.PropagateSentiment("nobody", 1); got != nil {
		t.Fatalf("PropagateSentiment(unresolved) = %v, want nil", got)
	}
}

func TestExportGraphFormats(t *testing.T) {
	ctx := context.Background()
	b := newTestBuilder(t)
	if _, err := b.ProcessText(ctx, "Gold rose due to inflation", 0.2); err != nil {
		t.Fatalf("ProcessText() error = %v", err)
	}

	out, err := b.ExportGraph("")
	if err != nil {
		t.Fatalf("ExportGraph() error = %v", err)
	}
	export, ok := out.(*GraphExport)
	if !ok {
		t.Fatalf("ExportGraph() = %T, want *GraphExport", out)
	}
	if len(export.Nodes) != 2 || len(export.Edges) != 1 {
		t.Fatalf("export = %d nodes %d edges, want 2/1", len(export.Nodes), len(export.Edges))
	}

	out, err = b.ExportGraph("cytoscape")
	if err != nil {
		t.Fatalf("ExportGraph(cytoscape) error = %v", err)
	}
	cyto, ok := out.(*CytoscapeExport)
	if !ok {
		t.Fatalf("ExportGraph(cytoscape) = %T, want *CytoscapeExport", out)
	}
	if len(cyto.Elements.Nodes) != 2 || len(cyto.Elements.Edges) != 1 {
		t.Fatalf("cytoscape export = %d nodes %d edges, want 2/1",
			len(cyto.Elements.Nodes), len(cyto.Elements.Edges))
	}

	if _, err := b.ExportGraph("graphml"); err == nil {
		t.Fatal("ExportGraph(graphml) should fail")
	}
}

func TestGraphPersistenceAcrossRestart(t *testing.T) {
	ctx := context.Background()
	docs := memory.NewDocumentStore()

	b, err := NewKnowledgeGraphBuilder(NewKnowledgeGraphBuilderParams{NER: newFakeNER(), Documents: docs})
	if err != nil {
		t.Fatalf("NewKnowledgeGraphBuilder() error = %v", err)
	}
	if _, err := b.ProcessText(ctx, "Gold rose due to inflation", 0.3); err != nil {
		t.Fatalf("ProcessText() error = %v", err)
	}
	if err := b.Close(ctx); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	restarted, err := NewKnowledgeGraphBuilder(NewKnowledgeGraphBuilderParams{NER: newFakeNER(), Documents: docs})
	if err != nil {
		t.Fatalf("NewKnowledgeGraphBuilder() error = %v", err)
	}
	restarted.Initialize(ctx)

	stats := restarted.Stats()
	if stats.NodeCount != 2 || stats.EdgeCount != 1 {
		t.Fatalf("restarted stats = %+v, want 2 nodes 1 edge", stats)
	}

	// Reinforcing the same pair after restart keeps merging, not duplicating.
	if _, err := restarted.ProcessText(ctx, "Gold jumped due to inflation", 0.3); err != nil {
		t.Fatalf("ProcessText() error = %v", err)
	}
	stats = restarted.Stats()
	if stats.NodeCount != 2 || stats.EdgeCount != 1 {
		t.Fatalf("stats after reinforcement = %+v, want 2 nodes 1 edge", stats)
	}
}
