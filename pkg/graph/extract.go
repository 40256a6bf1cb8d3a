package graph

import (
	"fmt"
	"strings"
	"time"

	"github.com/jdkato/prose/v2"

	"github.com/finsight/pulse/pkg/ai"
	"github.com/finsight/pulse/pkg/common"
)

// Span is one annotated region of text produced by an NER backend: the
// surface form plus the backend's label.
type Span struct {
	Text  string
	Label string
}

// NERPipeline is the contract for named-entity annotation backends.
type NERPipeline interface {
	Annotate(text string) ([]Span, error)
}

// ProseNER adapts the prose NLP library to the NERPipeline contract.
type ProseNER struct{}

func NewProseNER() *ProseNER {
	return &ProseNER{}
}

func (p *ProseNER) Annotate(text string) ([]Span, error) {
	doc, err := prose.NewDocument(text, prose.WithSegmentation(false))
	if err != nil {
		return nil, fmt.Errorf("prose annotation failed: %w", err)
	}
	ents := doc.Entities()
	spans := make([]Span, 0, len(ents))
	for _, ent := range ents {
		spans = append(spans, Span{Text: ent.Text, Label: ent.Label})
	}
	return spans, nil
}

// dictEntry maps a surface term to a canonical financial entity. Generic NER
// models miss most domain terms (commodities, currencies, indicators), so a
// curated dictionary fills the gap and also canonicalizes common shorthand
// ("Fed" and "Federal Reserve" collapse to one node).
type dictEntry struct {
	canonical string
	entType   common.EntityType
}

var domainDictionary = map[string]dictEntry{
	// Central banks and institutions.
	"fed":              {"Federal Reserve", common.EntityOrganization},
	"federal reserve":  {"Federal Reserve", common.EntityOrganization},
	"ecb":              {"European Central Bank", common.EntityOrganization},
	"boe":              {"Bank of England", common.EntityOrganization},
	"bank of england":  {"Bank of England", common.EntityOrganization},
	"bank of japan":    {"Bank of Japan", common.EntityOrganization},
	"boj":              {"Bank of Japan", common.EntityOrganization},
	"imf":              {"International Monetary Fund", common.EntityOrganization},
	"world bank":       {"World Bank", common.EntityOrganization},
	"sec":              {"Securities and Exchange Commission", common.EntityOrganization},
	"opec":             {"OPEC", common.EntityOrganization},

	// Commodities.
	"gold":        {"Gold", common.EntityCommodity},
	"silver":      {"Silver", common.EntityCommodity},
	"oil":         {"Crude Oil", common.EntityCommodity},
	"crude oil":   {"Crude Oil", common.EntityCommodity},
	"crude":       {"Crude Oil", common.EntityCommodity},
	"brent":       {"Brent Crude", common.EntityCommodity},
	"natural gas": {"Natural Gas", common.EntityCommodity},
	"copper":      {"Copper", common.EntityCommodity},
	"wheat":       {"Wheat", common.EntityCommodity},
	"corn":        {"Corn", common.EntityCommodity},

	// Currencies.
	"dollar":   {"US Dollar", common.EntityCurrency},
	"usd":      {"US Dollar", common.EntityCurrency},
	"euro":     {"Euro", common.EntityCurrency},
	"eur":      {"Euro", common.EntityCurrency},
	"yen":      {"Japanese Yen", common.EntityCurrency},
	"jpy":      {"Japanese Yen", common.EntityCurrency},
	"pound":    {"British Pound", common.EntityCurrency},
	"sterling": {"British Pound", common.EntityCurrency},
	"gbp":      {"British Pound", common.EntityCurrency},
	"yuan":     {"Chinese Yuan", common.EntityCurrency},
	"bitcoin":  {"Bitcoin", common.EntityCurrency},
	"ethereum": {"Ethereum", common.EntityCurrency},

	// Economic indicators.
	"inflation":      {"Inflation", common.EntityIndicator},
	"cpi":            {"Consumer Price Index", common.EntityIndicator},
	"gdp":            {"GDP", common.EntityIndicator},
	"unemployment":   {"Unemployment", common.EntityIndicator},
	"interest rate":  {"Interest Rates", common.EntityIndicator},
	"interest rates": {"Interest Rates", common.EntityIndicator},
	"rates":          {"Interest Rates", common.EntityIndicator},
	"payrolls":       {"Nonfarm Payrolls", common.EntityIndicator},
	"retail sales":   {"Retail Sales", common.EntityIndicator},

	// Financial instruments.
	"treasury":    {"US Treasuries", common.EntityInstrument},
	"treasuries":  {"US Treasuries", common.EntityInstrument},
	"bonds":       {"Bonds", common.EntityInstrument},
	"bond yields": {"Bond Yields", common.EntityInstrument},
	"equities":    {"Equities", common.EntityInstrument},
	"stocks":      {"Equities", common.EntityInstrument},
	"s&p 500":     {"S&P 500", common.EntityInstrument},
	"nasdaq":      {"Nasdaq", common.EntityInstrument},
	"dow jones":   {"Dow Jones", common.EntityInstrument},
	"dow":         {"Dow Jones", common.EntityInstrument},

	// Events.
	"recession": {"Recession", common.EntityEvent},
	"rate hike": {"Rate Hike", common.EntityEvent},
	"rate cut":  {"Rate Cut", common.EntityEvent},
	"default":   {"Default", common.EntityEvent},
	"earnings":  {"Earnings", common.EntityEvent},
}

// maxDictTermWords is the longest dictionary phrase in words.
const maxDictTermWords = 3

// EntityExtractor turns raw text into financial entities by unioning NER
// output with dictionary matches.
type EntityExtractor struct {
	ner NERPipeline
}

// NewEntityExtractor fails with a configuration error when no NER backend is
// supplied; a graph running without annotation would silently see only
// dictionary terms.
func NewEntityExtractor(ner NERPipeline) (*EntityExtractor, error) {
	if ner == nil {
		return nil, fmt.Errorf("entity extractor: %w", ai.ErrNotConfigured)
	}
	return &EntityExtractor{ner: ner}, nil
}

// Extract returns the deduplicated entities found in the text. Identity is a
// pure function of (normalized name, type), so repeated extraction of the
// same surface forms yields the same ids.
func (e *EntityExtractor) Extract(text string) ([]common.FinancialEntity, error) {
	now := time.Now().UTC()
	seen := make(map[string]int)
	var entities []common.FinancialEntity

	add := func(name, surface string, entType common.EntityType) {
		id := common.EntityID(name, entType)
		if idx, ok := seen[id]; ok {
			found := false
			for _, alias := range entities[idx].Aliases {
				if alias == surface {
					found = true
					break
				}
			}
			if !found {
				entities[idx].Aliases = append(entities[idx].Aliases, surface)
			}
			entities[idx].MentionCount++
			return
		}
		seen[id] = len(entities)
		entities = append(entities, common.FinancialEntity{
			ID:           id,
			Name:         name,
			Type:         entType,
			Aliases:      []string{surface},
			FirstSeen:    now,
			LastSeen:     now,
			MentionCount: 1,
		})
	}

	spans, err := e.ner.Annotate(text)
	if err != nil {
		return nil, err
	}
	for _, span := range spans {
		surface := strings.TrimSpace(span.Text)
		if surface == "" {
			continue
		}
		// Dictionary wins over the generic NER label so "Fed" lands as the
		// canonical organization instead of whatever the model guessed.
		if entry, ok := domainDictionary[common.NormalizeEntityName(surface)]; ok {
			add(entry.canonical, surface, entry.entType)
			continue
		}
		add(surface, surface, mapNERLabel(span.Label))
	}

	for _, m := range dictionaryMatches(text) {
		add(m.entry.canonical, m.surface, m.entry.entType)
	}

	return entities, nil
}

// mapNERLabel folds an NER backend label into the closed entity-type set.
func mapNERLabel(label string) common.EntityType {
	switch strings.ToUpper(label) {
	case "ORG", "ORGANIZATION":
		return common.EntityOrganization
	case "PERSON", "PER":
		return common.EntityPerson
	case "GPE", "LOC", "LOCATION":
		return common.EntityLocation
	case "EVENT":
		return common.EntityEvent
	case "MONEY", "CURRENCY":
		return common.EntityCurrency
	default:
		return common.EntityUnknown
	}
}

type dictMatch struct {
	surface string
	entry   dictEntry
}

// dictionaryMatches scans the text's word n-grams (longest first) against the
// domain dictionary. Matched words are consumed so "crude oil" does not also
// produce a bare "oil" hit.
func dictionaryMatches(text string) []dictMatch {
	words := tokenize(text)
	used := make([]bool, len(words))
	var matches []dictMatch
	for n := maxDictTermWords; n >= 1; n-- {
		for i := 0; i+n <= len(words); i++ {
			skip := false
			for j := i; j < i+n; j++ {
				if used[j] {
					skip = true
					break
				}
			}
			if skip {
				continue
			}
			term := strings.Join(words[i:i+n], " ")
			entry, ok := domainDictionary[term]
			if !ok {
				continue
			}
			for j := i; j < i+n; j++ {
				used[j] = true
			}
			matches = append(matches, dictMatch{surface: term, entry: entry})
		}
	}
	return matches
}

// tokenize lowercases and splits text on whitespace, trimming punctuation
// that would break dictionary lookups but keeping in-word symbols (s&p 500).
func tokenize(text string) []string {
	fields := strings.Fields(strings.ToLower(text))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, ".,;:!?'\"()[]")
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}
