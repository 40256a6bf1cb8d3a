package graph

import (
	"strings"
	"time"

	"github.com/finsight/pulse/pkg/common"
)

// indicatorClass is one ordered rule: the first class whose keywords appear
// in the text decides the relation type for every entity pair in that text.
type indicatorClass struct {
	keywords   []string
	relation   common.RelationType
	confidence float64
	// directional classes resolve to one of two relation types based on the
	// text's overall direction keywords.
	directional bool
	negative    common.RelationType
}

var indicatorClasses = []indicatorClass{
	{
		keywords:   []string{"caused by", "because of", "due to", "driven by", "led to", "triggered", "sparked", "on the back of", "following"},
		relation:   common.RelationCausedBy,
		confidence: 0.7,
	},
	{
		keywords:   []string{"regulates", "regulated", "oversees", "sanctioned", "fined", "probe", "investigation", "crackdown"},
		relation:   common.RelationRegulates,
		confidence: 0.6,
	},
	{
		keywords:   []string{"part of", "subsidiary", "unit of", "division of", "owned by"},
		relation:   common.RelationPartOf,
		confidence: 0.6,
	},
	{
		keywords:   []string{"operates in", "based in", "headquartered", "expands into"},
		relation:   common.RelationOperatesIn,
		confidence: 0.6,
	},
	{
		keywords:   []string{"inverse", "inversely", "opposite direction", "diverged", "decoupled"},
		relation:   common.RelationInverselyCorrelated,
		confidence: 0.6,
	},
	{
		keywords:   []string{"correlated", "tracks", "moves with", "in line with", "in tandem"},
		relation:   common.RelationCorrelatedWith,
		confidence: 0.6,
	},
	{
		keywords:    []string{"impact", "impacts", "impacted", "affects", "affected", "weighs on", "weighed on", "boosts", "boosted", "hurts", "hurt", "pressures", "pressured", "lifted", "dragged"},
		relation:    common.RelationPositivelyImpacts,
		confidence:  0.5,
		directional: true,
		negative:    common.RelationNegativelyImpacts,
	},
}

var positiveDirectionWords = []string{
	"gain", "gains", "rise", "rises", "rose", "rally", "rallied", "soar",
	"soared", "soaring", "surge", "surged", "jump", "jumped", "climb",
	"climbed", "higher", "boost", "boosted", "strong", "strengthened",
	"growth", "record", "bullish", "recover", "recovered",
}

var negativeDirectionWords = []string{
	"fall", "falls", "fell", "drop", "dropped", "decline", "declined",
	"plunge", "plunged", "slump", "slumped", "tumble", "tumbled", "lower",
	"weak", "weakened", "loss", "losses", "crash", "crashed", "bearish",
	"cut", "slashed", "sank", "sink",
}

// RelationExtractor derives typed edges between the entities found in one
// text using layered keyword heuristics.
type RelationExtractor struct{}

func NewRelationExtractor() *RelationExtractor {
	return &RelationExtractor{}
}

// Extract produces one directed edge per ordered entity pair (extraction
// order, first to second). The relation type comes from the first indicator
// class whose trigger appears anywhere in the text; with no trigger at all
// the pair still gets a low-confidence mentions edge so co-occurrence is
// never lost.
//
// Impact direction is decided by counting positive vs negative movement
// words over the whole text, not scoped to the pair. This mis-attributes
// direction when one text discusses several unrelated moves; it is kept
// as-is because downstream consumers calibrate against exactly this
// behavior.
func (r *RelationExtractor) Extract(text string, entities []common.FinancialEntity, sentiment float64) []common.EntityRelation {
	if len(entities) < 2 {
		return nil
	}

	lowered := strings.ToLower(text)
	relType, confidence, evidence := classify(lowered)
	now := time.Now().UTC()

	var relations []common.EntityRelation
	for i := 0; i < len(entities); i++ {
		for j := i + 1; j < len(entities); j++ {
			relations = append(relations, common.EntityRelation{
				SourceID:   entities[i].ID,
				TargetID:   entities[j].ID,
				Type:       relType,
				Confidence: confidence,
				Evidence:   evidence,
				Weight:     1,
				Sentiment:  sentiment,
				FirstSeen:  now,
				LastSeen:   now,
			})
		}
	}
	return relations
}

func classify(lowered string) (common.RelationType, float64, []string) {
	for _, class := range indicatorClasses {
		var triggers []string
		for _, kw := range class.keywords {
			if strings.Contains(lowered, kw) {
				triggers = append(triggers, kw)
			}
		}
		if len(triggers) == 0 {
			continue
		}
		relType := class.relation
		if class.directional && directionScore(lowered) < 0 {
			relType = class.negative
		}
		return relType, class.confidence, triggers
	}
	return common.RelationMentions, 0.3, nil
}

// directionScore counts positive minus negative movement words; >= 0 reads
// as a positive move.
func directionScore(lowered string) int {
	words := tokenize(lowered)
	index := make(map[string]int, len(words))
	for _, w := range words {
		index[w]++
	}
	score := 0
	for _, w := range positiveDirectionWords {
		score += index[w]
	}
	for _, w := range negativeDirectionWords {
		score -= index[w]
	}
	return score
}
