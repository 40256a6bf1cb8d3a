package graph

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/finsight/pulse/pkg/common"
	"github.com/finsight/pulse/pkg/logger"
	"github.com/finsight/pulse/pkg/store"
)

// maxEvidencePerEdge bounds how many trigger phrases an edge accumulates
// across reinforcing texts.
const maxEvidencePerEdge = 10

type edgeKey struct {
	source string
	target string
	rel    common.RelationType
}

// entityRecord is the persisted envelope for one node: the entity itself
// plus its outgoing edges, so a restart restores accumulated edge weights
// without replaying every text record.
type entityRecord struct {
	Entity   common.FinancialEntity  `json:"entity"`
	Outgoing []common.EntityRelation `json:"outgoing"`
}

// GraphStore is the in-memory directed multigraph plus its durable mirror.
// It is append/merge-only: entities and edges are never deleted, repeated
// observations fold into counters. All mutation goes through the mutex;
// analytics take point-in-time copies via snapshot().
type GraphStore struct {
	documents store.DocumentStore

	mu       sync.Mutex
	entities map[string]*common.FinancialEntity
	edges    map[edgeKey]*common.EntityRelation
	outgoing map[string][]edgeKey
	dirty    map[string]bool
}

// NewGraphStore creates an empty graph. The document store is optional;
// without it the graph is memory-only and restarts start from scratch.
func NewGraphStore(documents store.DocumentStore) *GraphStore {
	return &GraphStore{
		documents: documents,
		entities:  make(map[string]*common.FinancialEntity),
		edges:     make(map[edgeKey]*common.EntityRelation),
		outgoing:  make(map[string][]edgeKey),
		dirty:     make(map[string]bool),
	}
}

// Load restores previously persisted entity records. Malformed records are
// skipped with a log line; a failed scan leaves the graph empty rather than
// failing startup, since the graph is an optimization over live traffic.
func (g *GraphStore) Load(ctx context.Context, limit int) {
	if g.documents == nil {
		return
	}
	docs, err := g.documents.Scan(ctx, store.CollectionGraphEntities, limit)
	if err != nil {
		logger.Warn("[Graph] Failed to load persisted entities", "err", err)
		return
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	for _, doc := range docs {
		var rec entityRecord
		if err := json.Unmarshal(doc.Payload, &rec); err != nil {
			logger.Warn("[Graph] Skipping malformed entity record", "doc_id", doc.ID, "err", err)
			continue
		}
		entity := rec.Entity
		g.entities[entity.ID] = &entity
		for _, rel := range rec.Outgoing {
			rel := rel
			key := edgeKey{rel.SourceID, rel.TargetID, rel.Type}
			if _, exists := g.edges[key]; exists {
				continue
			}
			g.edges[key] = &rel
			g.outgoing[rel.SourceID] = append(g.outgoing[rel.SourceID], key)
		}
	}
	logger.Info("[Graph] Loaded persisted graph", "entities", len(g.entities), "edges", len(g.edges))
}

// MergeEntity folds one extraction of an entity into the graph: a new id is
// inserted as-is, a known id increments the mention counter, unions aliases
// and bumps last_seen. The merged node is marked dirty for the next flush.
func (g *GraphStore) MergeEntity(entity common.FinancialEntity) {
	g.mu.Lock()
	defer g.mu.Unlock()

	existing, ok := g.entities[entity.ID]
	if !ok {
		stored := entity
		g.entities[entity.ID] = &stored
		g.dirty[entity.ID] = true
		return
	}

	existing.MentionCount += entity.MentionCount
	if entity.LastSeen.After(existing.LastSeen) {
		existing.LastSeen = entity.LastSeen
	}
	for _, alias := range entity.Aliases {
		found := false
		for _, have := range existing.Aliases {
			if have == alias {
				found = true
				break
			}
		}
		if !found {
			existing.Aliases = append(existing.Aliases, alias)
		}
	}
	g.dirty[entity.ID] = true
}

// MergeRelation folds one observed edge into the graph. At most one edge
// exists per (source, target, type); reinforcement accumulates weight,
// appends new evidence and takes the latest sentiment reading.
func (g *GraphStore) MergeRelation(rel common.EntityRelation) {
	g.mu.Lock()
	defer g.mu.Unlock()

	key := edgeKey{rel.SourceID, rel.TargetID, rel.Type}
	existing, ok := g.edges[key]
	if !ok {
		stored := rel
		g.edges[key] = &stored
		g.outgoing[rel.SourceID] = append(g.outgoing[rel.SourceID], key)
		g.dirty[rel.SourceID] = true
		return
	}

	existing.Weight += rel.Weight
	existing.Sentiment = rel.Sentiment
	if rel.Confidence > existing.Confidence {
		existing.Confidence = rel.Confidence
	}
	if rel.LastSeen.After(existing.LastSeen) {
		existing.LastSeen = rel.LastSeen
	}
	for _, ev := range rel.Evidence {
		if len(existing.Evidence) >= maxEvidencePerEdge {
			break
		}
		found := false
		for _, have := range existing.Evidence {
			if have == ev {
				found = true
				break
			}
		}
		if !found {
			existing.Evidence = append(existing.Evidence, ev)
		}
	}
	g.dirty[rel.SourceID] = true
}

// Resolve maps a name, alias or canonical id to an entity id.
func (g *GraphStore) Resolve(ref string) (string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.entities[ref]; ok {
		return ref, true
	}
	normalized := common.NormalizeEntityName(ref)
	for id, entity := range g.entities {
		if common.NormalizeEntityName(entity.Name) == normalized {
			return id, true
		}
		for _, alias := range entity.Aliases {
			if common.NormalizeEntityName(alias) == normalized {
				return id, true
			}
		}
	}
	return "", false
}

// Entity returns a copy of the node with the given id.
func (g *GraphStore) Entity(id string) (common.FinancialEntity, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	entity, ok := g.entities[id]
	if !ok {
		return common.FinancialEntity{}, false
	}
	return *entity, true
}

// Counts returns the number of nodes and edges.
func (g *GraphStore) Counts() (nodes, edges int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.entities), len(g.edges)
}

// snapshot copies the graph into plain slices for lock-free analytics.
func (g *GraphStore) snapshot() ([]common.FinancialEntity, []common.EntityRelation) {
	g.mu.Lock()
	defer g.mu.Unlock()

	nodes := make([]common.FinancialEntity, 0, len(g.entities))
	for _, entity := range g.entities {
		nodes = append(nodes, *entity)
	}
	edges := make([]common.EntityRelation, 0, len(g.edges))
	for _, rel := range g.edges {
		edges = append(edges, *rel)
	}
	return nodes, edges
}

// PersistText writes one per-text provenance record. Failures are logged
// and swallowed; losing provenance never fails text processing.
func (g *GraphStore) PersistText(ctx context.Context, rec common.TextRecord) {
	if g.documents == nil {
		return
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		logger.Error("[Graph] Failed to marshal text record", "id", rec.ID, "err", err)
		return
	}
	if err := g.documents.Set(ctx, store.CollectionGraphTexts, rec.ID, payload); err != nil {
		logger.Warn("[Graph] Failed to persist text record", "id", rec.ID, "err", err)
	}
}

// FlushDirty persists every entity touched since the last flush, with its
// outgoing edges. Per-record failures are logged and the record stays dirty
// for the next attempt.
func (g *GraphStore) FlushDirty(ctx context.Context) {
	if g.documents == nil {
		return
	}

	g.mu.Lock()
	records := make([]entityRecord, 0, len(g.dirty))
	ids := make([]string, 0, len(g.dirty))
	for id := range g.dirty {
		entity, ok := g.entities[id]
		if !ok {
			continue
		}
		rec := entityRecord{Entity: *entity}
		for _, key := range g.outgoing[id] {
			rec.Outgoing = append(rec.Outgoing, *g.edges[key])
		}
		records = append(records, rec)
		ids = append(ids, id)
	}
	g.mu.Unlock()

	for i, rec := range records {
		payload, err := json.Marshal(rec)
		if err != nil {
			logger.Error("[Graph] Failed to marshal entity record", "id", ids[i], "err", err)
			continue
		}
		if err := g.documents.Set(ctx, store.CollectionGraphEntities, ids[i], payload); err != nil {
			logger.Warn("[Graph] Failed to persist entity record", "id", ids[i], "err", err)
			continue
		}
		g.mu.Lock()
		delete(g.dirty, ids[i])
		g.mu.Unlock()
	}
}
