// Package retrieval implements TopicExtractor + RetrievalRouter +
// ContextSynthesizer (spec §4.8).
package retrieval

import (
	"strings"

	"github.com/louloulin/agentmem/internal/domain"
)

// TopicCategory classifies an ExtractedTopic (spec §4.8).
type TopicCategory int

const (
	CategoryTechnical TopicCategory = iota
	CategoryBusiness
	CategoryPersonal
	CategoryOperational
	CategoryGeneral
)

func (c TopicCategory) String() string {
	switch c {
	case CategoryTechnical:
		return "technical"
	case CategoryBusiness:
		return "business"
	case CategoryPersonal:
		return "personal"
	case CategoryOperational:
		return "operational"
	default:
		return "general"
	}
}

// categoryLexicon is the bounded rule set over keyword lexicons used
// for category detection (spec §4.8).
var categoryLexicon = map[TopicCategory][]string{
	CategoryTechnical:   {"bug", "deploy", "server", "api", "database", "code", "build", "pipeline"},
	CategoryBusiness:    {"revenue", "client", "contract", "invoice", "budget", "sales", "quarterly"},
	CategoryPersonal:    {"family", "birthday", "vacation", "friend", "home", "hobby"},
	CategoryOperational: {"schedule", "meeting", "task", "deadline", "reminder", "process"},
}

// ExtractedTopic is the TopicExtractor result (spec §4.8).
type ExtractedTopic struct {
	Name            string
	Category        TopicCategory
	Confidence      float64
	Keywords        []string
	HierarchyLevel  int
	RelevanceScore  float64
}

// Extract implements TopicExtractor.extract(): a bounded keyword-lexicon
// rule set over the text, optionally boosted by context domain match.
func Extract(text string, sctx *domain.ScoringContext) ExtractedTopic {
	lower := strings.ToLower(text)
	tokens := strings.Fields(lower)

	bestCategory := CategoryGeneral
	bestScore := 0
	var bestKeywords []string

	for cat, lexicon := range categoryLexicon {
		var hits []string
		for _, word := range lexicon {
			if strings.Contains(lower, word) {
				hits = append(hits, word)
			}
		}
		if len(hits) > bestScore {
			bestCategory, bestScore, bestKeywords = cat, len(hits), hits
		}
	}

	confidence := 0.0
	if len(tokens) > 0 {
		confidence = clamp01(float64(bestScore) / float64(len(tokens)) * 3)
	}
	if sctx != nil && sctx.Domain != "" && strings.Contains(lower, strings.ToLower(sctx.Domain)) {
		confidence = clamp01(confidence + 0.2)
	}

	name := bestCategory.String()
	if len(bestKeywords) > 0 {
		name = bestKeywords[0]
	}

	return ExtractedTopic{
		Name:           name,
		Category:       bestCategory,
		Confidence:     confidence,
		Keywords:       bestKeywords,
		HierarchyLevel: 0,
		RelevanceScore: confidence,
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
