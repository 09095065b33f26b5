package retrieval

import (
	"fmt"
	"sort"
	"strings"

	"github.com/louloulin/agentmem/internal/domain"
	"github.com/louloulin/agentmem/internal/textsim"
)

// SynthesisStrategy is the dedup policy ContextSynthesizer applies to
// pairwise-conflicting retrieved memories (spec §4.8 step 2).
type SynthesisStrategy int

const (
	SynthesisKeepLatest SynthesisStrategy = iota
	SynthesisKeepMostRelevant
	SynthesisMerge
)

// DetectedConflict records a pairwise conflict found during synthesis.
type DetectedConflict struct {
	A, B       *domain.MemoryRecord
	Similarity float64
}

// SynthesisResult is the ContextSynthesizer output (spec §4.8).
type SynthesisResult struct {
	SynthesizedMemories []*domain.MemoryRecord
	Summary             string
	ConfidenceScore     float64
	RelevanceRanking    []string
	DetectedConflicts   []DetectedConflict
}

// Synthesizer combines retrieved memories into a single coherent
// result set.
type Synthesizer struct {
	conflictThreshold float64
	strategy          SynthesisStrategy
}

func NewSynthesizer(conflictThreshold float64, strategy SynthesisStrategy) *Synthesizer {
	return &Synthesizer{conflictThreshold: conflictThreshold, strategy: strategy}
}

// Synthesize implements spec §4.8 ContextSynthesizer: rank by
// relevance, detect and resolve pairwise conflicts, produce a
// SynthesisResult with overall confidence capped at 1.0.
func (s *Synthesizer) Synthesize(records []*domain.MemoryRecord, relevance map[string]float64) SynthesisResult {
	ranked := append([]*domain.MemoryRecord(nil), records...)
	sortByRelevance(ranked, relevance)

	var conflicts []DetectedConflict
	resolved := make([]*domain.MemoryRecord, 0, len(ranked))
	dropped := make(map[string]bool)

	for i := 0; i < len(ranked); i++ {
		a := ranked[i]
		if dropped[a.ID] {
			continue
		}
		for j := i + 1; j < len(ranked); j++ {
			b := ranked[j]
			if dropped[b.ID] {
				continue
			}
			sim := textsim.Jaccard(a.Content, b.Content)
			if sim < s.conflictThreshold {
				continue
			}
			conflicts = append(conflicts, DetectedConflict{A: a, B: b, Similarity: sim})

			switch s.strategy {
			case SynthesisKeepLatest:
				if b.CreatedAt.After(a.CreatedAt) {
					dropped[a.ID] = true
				} else {
					dropped[b.ID] = true
				}
			case SynthesisKeepMostRelevant:
				if relevance[b.ID] > relevance[a.ID] {
					dropped[a.ID] = true
				} else {
					dropped[b.ID] = true
				}
			case SynthesisMerge:
				a.Content = a.Content + " | " + b.Content
				dropped[b.ID] = true
			}
		}
		if !dropped[a.ID] {
			resolved = append(resolved, a)
		}
	}

	ranking := make([]string, 0, len(resolved))
	var avgRelevance float64
	for _, m := range resolved {
		ranking = append(ranking, m.ID)
		avgRelevance += relevance[m.ID]
	}
	if len(resolved) > 0 {
		avgRelevance /= float64(len(resolved))
	}

	synthesisConfidence := 1.0
	if len(conflicts) > 0 {
		synthesisConfidence = 1.0 / float64(1+len(conflicts))
	}
	confidence := avgRelevance + 0.2*synthesisConfidence
	if confidence > 1.0 {
		confidence = 1.0
	}

	return SynthesisResult{
		SynthesizedMemories: resolved,
		Summary:             summarize(resolved),
		ConfidenceScore:      confidence,
		RelevanceRanking:    ranking,
		DetectedConflicts:   conflicts,
	}
}

func summarize(records []*domain.MemoryRecord) string {
	if len(records) == 0 {
		return ""
	}
	ordered := append([]*domain.MemoryRecord(nil), records...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].ID < ordered[j].ID })
	var parts []string
	for i, m := range ordered {
		if i >= 3 {
			parts = append(parts, fmt.Sprintf("(+%d more)", len(records)-3))
			break
		}
		parts = append(parts, m.Content)
	}
	return strings.Join(parts, "; ")
}
