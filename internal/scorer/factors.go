package scorer

import (
	"math"
	"strings"
	"time"

	"github.com/louloulin/agentmem/internal/domain"
	"github.com/louloulin/agentmem/internal/textsim"
)

// ImportanceFactors is the six-factor breakdown of spec §4.3, plus the
// weighted composite.
type ImportanceFactors struct {
	Recency     float64
	Frequency   float64
	Relevance   float64
	Emotional   float64
	Context     float64
	Interaction float64
	Composite   float64
	CalculatedAt time.Time
}

// emotionalLexicon is the fixed keyword->weight table for the
// emotional factor (spec §4.3).
var emotionalLexicon = map[string]float64{
	"love":      0.8,
	"hate":      0.7,
	"urgent":    0.6,
	"critical":  0.7,
	"important": 0.5,
	"excited":   0.4,
	"worried":   0.5,
	"afraid":    0.5,
	"happy":     0.3,
	"sad":       0.3,
	"angry":     0.6,
	"frustrated": 0.5,
	"thrilled":  0.4,
	"anxious":   0.5,
	"grateful":  0.3,
}

func lexiconScore(content string) float64 {
	lower := strings.ToLower(content)
	best := 0.0
	for word, weight := range emotionalLexicon {
		if strings.Contains(lower, word) && weight > best {
			best = weight
		}
	}
	return best
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

// computeRecency implements spec §4.3:
// exp(-decay_rate(importance) * hours_since_accessed).
func computeRecency(m *domain.MemoryRecord, now time.Time) float64 {
	hours := now.Sub(m.AccessedAt).Hours()
	if hours < 0 {
		hours = 0
	}
	return math.Exp(-m.Importance.DecayRate() * hours)
}

// computeFrequency implements ln(1 + accesses_per_day) / ln(1 + 100).
func computeFrequency(accessesPerDay float64) float64 {
	return clamp01(math.Log(1+accessesPerDay) / math.Log(101))
}

// computeRelevance implements the max-Jaccard-over-queries factor with
// the domain-match boost of spec §4.3.
func computeRelevance(m *domain.MemoryRecord, ctx domain.ScoringContext) float64 {
	queries := append([]string(nil), ctx.RecentQueries...)
	if ctx.CurrentTask != "" {
		queries = append(queries, ctx.CurrentTask)
	}
	rel := textsim.MaxJaccard(m.Content, queries)

	if ctx.Domain != "" && m.Metadata["domain"] == ctx.Domain && rel < 0.8 {
		rel = 0.8
	}
	return clamp01(rel)
}

// computeEmotional implements the lexicon lookup plus interaction
// bonus, scaled by an optional user-preference scalar.
func computeEmotional(m *domain.MemoryRecord, usage *domain.UsageStats, ctx domain.ScoringContext) float64 {
	score := lexiconScore(m.Content)
	score += math.Min(float64(usage.UserInteractions)/10, 0.3)
	score = clamp01(score)

	if scalar, ok := ctx.UserPreferences["emotional"]; ok {
		score *= scalar
	}
	return clamp01(score)
}

// computeContext implements the additive session/user/time-of-day/
// context-match bonus.
func computeContext(m *domain.MemoryRecord, usage *domain.UsageStats, ctx domain.ScoringContext) float64 {
	var score float64
	if ctx.SessionID != "" && m.Scope.SessionID == ctx.SessionID {
		score += 0.4
	}
	if ctx.UserID != "" && m.Scope.UserID == ctx.UserID {
		score += 0.3
	}
	if isWorkPersonalMatch(m, ctx) {
		score += 0.2
	}
	if usage.AccessCount > 0 {
		score += math.Min(float64(usage.ContextMatches)/float64(usage.AccessCount), 0.1)
	}
	return clamp01(score)
}

func isWorkPersonalMatch(m *domain.MemoryRecord, ctx domain.ScoringContext) bool {
	tod, ok := m.Metadata["time_of_day"]
	if !ok {
		return false
	}
	return tod == timeOfDayBucket(ctx.Now)
}

func timeOfDayBucket(t time.Time) string {
	h := t.Hour()
	switch {
	case h >= 9 && h < 17:
		return "work"
	default:
		return "personal"
	}
}

// computeInteraction implements the weighted mix of interaction rate,
// references, and modification rate.
func computeInteraction(usage *domain.UsageStats) float64 {
	if usage.AccessCount == 0 {
		return 0
	}
	interactionRate := float64(usage.UserInteractions) / float64(usage.AccessCount)
	modRate := float64(usage.ModificationCount) / float64(usage.AccessCount)
	score := 0.5*interactionRate + math.Min(float64(usage.ReferenceCount)/5, 0.3) + 0.2*modRate
	return clamp01(score)
}
