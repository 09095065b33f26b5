package search

import (
	"math"
	"strings"
	"time"

	"github.com/louloulin/agentmem/internal/domain"
)

// Hit is a single search match with its factor breakdown.
type Hit struct {
	Record     *domain.MemoryRecord
	Relevance  float64
	Context    float64
	Composite  float64
	Rank       int
	Snippet    string
}

// Context is the query-time environment used by the context filter and
// ranking preference terms (spec §4.7 step 4/6).
type Context struct {
	Now             time.Time
	UserID          string
	SessionID       string
	TaskID          string
	Domain          string
	PreferenceTags  map[string]float64 // custom metadata key -> weight
}

// contextScore implements spec §4.7 step 4: temporal decay plus
// user/session/task/domain match bonuses.
func contextScore(m *domain.MemoryRecord, ctx Context) float64 {
	hours := ctx.Now.Sub(m.AccessedAt).Hours()
	if hours < 0 {
		hours = 0
	}
	score := math.Exp(-m.Importance.DecayRate()*hours/24) * 0.3

	if ctx.UserID != "" && m.Scope.UserID == ctx.UserID {
		score += 0.4
	}
	if ctx.SessionID != "" && m.Scope.SessionID == ctx.SessionID {
		score += 0.2
	}
	if ctx.TaskID != "" && m.Metadata["task_id"] == ctx.TaskID {
		score += 0.1
	}
	if ctx.Domain != "" && m.Metadata["domain"] == ctx.Domain {
		score += 0.1
	}
	return clamp01(score)
}

// rankComposite implements spec §4.7 step 6: 0.4*relevance + 0.3*context
// plus optional preference terms (recency exp-decay, log-frequency,
// enum importance, custom metadata weights).
func rankComposite(relevance, context float64, m *domain.MemoryRecord, ctx Context, now time.Time) float64 {
	composite := 0.4*relevance + 0.3*context

	recencyHours := now.Sub(m.AccessedAt).Hours()
	if recencyHours < 0 {
		recencyHours = 0
	}
	composite += 0.15 * math.Exp(-0.01*recencyHours)
	composite += 0.1 * clamp01(logFreqProxy(m.AccessCount))
	composite += 0.05 * (float64(m.Importance) / float64(domain.ImportanceCritical))

	for key, weight := range ctx.PreferenceTags {
		if _, ok := m.Metadata[key]; ok {
			composite += weight
		}
	}
	return composite
}

// buildSnippet implements spec §4.7 step 8: locate the first window of
// query tokens within content and extract ±before..+after tokens with
// ellipses at truncated boundaries.
func buildSnippet(content, query string, before, after int) string {
	tokens := strings.Fields(content)
	queryTokens := strings.Fields(strings.ToLower(query))
	if len(tokens) == 0 || len(queryTokens) == 0 {
		return truncateWords(content, before+after)
	}

	matchIdx := -1
	for i, tok := range tokens {
		lower := strings.ToLower(tok)
		for _, q := range queryTokens {
			if strings.Contains(lower, q) {
				matchIdx = i
				break
			}
		}
		if matchIdx >= 0 {
			break
		}
	}
	if matchIdx < 0 {
		return truncateWords(content, before+after)
	}

	start := matchIdx - before
	prefixEllipsis := start > 0
	if start < 0 {
		start = 0
	}
	end := matchIdx + after
	suffixEllipsis := end < len(tokens)-1
	if end > len(tokens)-1 {
		end = len(tokens) - 1
	}

	window := strings.Join(tokens[start:end+1], " ")
	if prefixEllipsis {
		window = "... " + window
	}
	if suffixEllipsis {
		window = window + " ..."
	}
	return window
}

func truncateWords(content string, n int) string {
	tokens := strings.Fields(content)
	if len(tokens) <= n {
		return content
	}
	return strings.Join(tokens[:n], " ") + " ..."
}

func logFreqProxy(accessCount int) float64 {
	if accessCount <= 0 {
		return 0
	}
	return math.Log(1+float64(accessCount)) / math.Log(101)
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
