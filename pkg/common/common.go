package common

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"
)

// EntityType classifies a node in the financial knowledge graph.
type EntityType string

const (
	EntityOrganization EntityType = "organization"
	EntityPerson       EntityType = "person"
	EntityCommodity    EntityType = "commodity"
	EntityCurrency     EntityType = "currency"
	EntityIndicator    EntityType = "economic-indicator"
	EntityInstrument   EntityType = "financial-instrument"
	EntityEvent        EntityType = "event"
	EntityLocation     EntityType = "location"
	EntityUnknown      EntityType = "unknown"
)

// RelationType classifies a directed edge between two entities.
type RelationType string

const (
	RelationCausedBy            RelationType = "caused-by"
	RelationNegativelyImpacts   RelationType = "negatively-impacts"
	RelationPositivelyImpacts   RelationType = "positively-impacts"
	RelationCorrelatedWith      RelationType = "correlated-with"
	RelationInverselyCorrelated RelationType = "inversely-correlated"
	RelationMentions            RelationType = "mentions"
	RelationPartOf              RelationType = "part-of"
	RelationOperatesIn          RelationType = "operates-in"
	RelationRegulates           RelationType = "regulates"
)

// CacheEntry is one cached model result for one text. Entries are created by
// the semantic cache on store, read-only afterward, and logically deleted on
// TTL expiry (the vector index never physically removes positions, the entry
// is only unlinked from the position map).
type CacheEntry struct {
	DocID       string          `json:"doc_id"`
	TextHash    string          `json:"text_hash"`
	TextPreview string          `json:"text_preview"`
	IndexPos    int             `json:"embedding_reference"`
	Result      json.RawMessage `json:"result"`
	CreatedAt   time.Time       `json:"created_at"`
	TTLSeconds  int64           `json:"ttl_seconds"`
}

// ExpiresAt derives the expiry instant. A zero or negative TTL means the
// entry never expires.
func (e CacheEntry) ExpiresAt() time.Time {
	if e.TTLSeconds <= 0 {
		return time.Time{}
	}
	return e.CreatedAt.Add(time.Duration(e.TTLSeconds) * time.Second)
}

// Expired reports whether the entry's TTL has passed at the given instant.
func (e CacheEntry) Expired(now time.Time) bool {
	exp := e.ExpiresAt()
	return !exp.IsZero() && now.After(exp)
}

// FinancialEntity is a node the graph tracks. Identity is a pure function of
// (normalized name, type): re-extraction of the same entity always collapses
// to the same node. Entities are never deleted; the graph is append/merge-only.
type FinancialEntity struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Type         EntityType `json:"entity_type"`
	Aliases      []string   `json:"aliases"`
	FirstSeen    time.Time  `json:"first_seen"`
	LastSeen     time.Time  `json:"last_seen"`
	MentionCount int64      `json:"mention_count"`
}

// EntityRelation is a directed, typed edge between two entities. At most one
// edge is stored per (source, target, relation type); repeated extraction
// increments Weight instead of duplicating the edge.
type EntityRelation struct {
	SourceID   string       `json:"source_id"`
	TargetID   string       `json:"target_id"`
	Type       RelationType `json:"relation_type"`
	Confidence float64      `json:"confidence"`
	Evidence   []string     `json:"evidence"`
	Weight     float64      `json:"weight"`
	Sentiment  float64      `json:"sentiment"`
	FirstSeen  time.Time    `json:"first_seen"`
	LastSeen   time.Time    `json:"last_seen"`
}

// TextRecord is the per-text provenance record the graph persists alongside
// entity records: which entities and relations one source text contributed,
// and the overall sentiment observed for it.
type TextRecord struct {
	ID          string           `json:"id"`
	TextPreview string           `json:"text_preview"`
	EntityIDs   []string         `json:"entity_ids"`
	Relations   []EntityRelation `json:"relations"`
	Sentiment   float64          `json:"sentiment"`
	ProcessedAt time.Time        `json:"processed_at"`
}

// EntityID derives the deterministic id for an entity from its normalized
// name and type.
func EntityID(name string, entityType EntityType) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(name)), " ")
	sum := sha256.Sum256([]byte(normalized + "|" + string(entityType)))
	return hex.EncodeToString(sum[:8])
}

// NormalizeEntityName canonicalizes an entity surface form for comparison:
// lowercase, collapsed whitespace.
func NormalizeEntityName(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), " ")
}
