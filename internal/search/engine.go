// Package search implements ContextAwareSearch (spec §4.7): five
// matching strategies, a cached and singleflight-deduplicated
// pipeline, context-aware ranking, snippet extraction, and analytics.
package search

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/louloulin/agentmem/internal/domain"
	"github.com/louloulin/agentmem/internal/textsim"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Source is the subset of HierarchicalStore the search engine reads
// from; kept as an interface so search stays decoupled from the store
// package's concrete type.
type Source interface {
	List(ctx context.Context, requestScope domain.Scope, filters domain.Filters, limit int) ([]*domain.MemoryRecord, error)
}

type cacheEntry struct {
	hits    []Hit
	cachedAt time.Time
}

// Analytics is the running telemetry of spec §4.7's analytics bullet.
type Analytics struct {
	QueryCount      int64
	TotalResults    int64
	AvgResponseTime time.Duration
	CacheHits       int64
	CacheMisses     int64
	QueryHistogram  map[string]int64
	queryTimes      []time.Duration
}

const maxQueryTimeHistory = 1000

// Engine is the ContextAwareSearch component.
type Engine struct {
	cfg      Config
	source   Source
	embedder domain.Embedder
	logger   *zap.Logger

	cache  *lru.Cache[string, cacheEntry]
	group  singleflight.Group

	mu        sync.Mutex
	analytics Analytics
}

func New(cfg Config, source Source, embedder domain.Embedder, logger *zap.Logger) *Engine {
	c, _ := lru.New[string, cacheEntry](cfg.CacheCapacity)
	return &Engine{
		cfg:      cfg,
		source:   source,
		embedder: embedder,
		logger:   logger,
		cache:    c,
		analytics: Analytics{QueryHistogram: make(map[string]int64)},
	}
}

// Search runs the full spec §4.7 pipeline and returns ranked, snippeted
// hits truncated to max_results.
func (e *Engine) Search(ctx context.Context, query string, strategy Strategy, requestScope domain.Scope, filters domain.Filters, sctx Context) ([]Hit, error) {
	start := time.Now()
	if strategy == StrategyAdaptive {
		strategy = chooseAdaptiveStrategy(query)
	}

	key := cacheKey(query, strategy)
	if entry, ok := e.cache.Get(key); ok && time.Since(entry.cachedAt) < time.Duration(e.cfg.CacheTTLSeconds)*time.Second {
		e.recordAnalytics(query, len(entry.hits), time.Since(start), true)
		return entry.hits, nil
	}

	v, err, _ := e.group.Do(key, func() (interface{}, error) {
		return e.runPipeline(ctx, query, strategy, requestScope, filters, sctx)
	})
	if err != nil {
		return nil, err
	}
	hits := v.([]Hit)

	e.cache.Add(key, cacheEntry{hits: hits, cachedAt: time.Now()})
	e.recordAnalytics(query, len(hits), time.Since(start), false)
	return hits, nil
}

func (e *Engine) runPipeline(ctx context.Context, query string, strategy Strategy, requestScope domain.Scope, filters domain.Filters, sctx Context) ([]Hit, error) {
	expanded := expandQuery(query)

	candidates, err := e.source.List(ctx, requestScope, filters, 0)
	if err != nil {
		return nil, err
	}

	scored, err := e.applyStrategy(ctx, expanded, strategy, candidates)
	if err != nil {
		return nil, err
	}
	byID := indexByID(candidates)

	now := sctx.Now
	if now.IsZero() {
		now = time.Now()
	}

	hits := make([]Hit, 0, len(scored))
	for id, relevance := range scored {
		m, ok := byID[id]
		if !ok || !filters.Matches(m) {
			continue
		}
		cscore := contextScore(m, sctx)
		composite := rankComposite(relevance, cscore, m, sctx, now)
		hits = append(hits, Hit{
			Record:    m,
			Relevance: relevance,
			Context:   cscore,
			Composite: composite,
		})
	}

	sort.Slice(hits, func(i, j int) bool { return hits[i].Composite > hits[j].Composite })

	if e.cfg.MaxResults > 0 && len(hits) > e.cfg.MaxResults {
		hits = hits[:e.cfg.MaxResults]
	}
	for i := range hits {
		hits[i].Rank = i + 1
		hits[i].Snippet = buildSnippet(hits[i].Record.Content, query, e.cfg.SnippetWindowBefore, e.cfg.SnippetWindowAfter)
	}
	return hits, nil
}

// applyStrategy implements spec §4.7's five matching strategies,
// returning a map of memory ID -> relevance score. candidates is
// indexed by ID so context/ranking steps can look records back up.
func (e *Engine) applyStrategy(ctx context.Context, query string, strategy Strategy, records []*domain.MemoryRecord) (map[string]float64, error) {
	switch strategy {
	case StrategyExact:
		return e.exactMatch(query, records), nil
	case StrategyFuzzy:
		return e.fuzzyMatch(query, records), nil
	case StrategySemantic:
		return e.semanticMatch(ctx, query, records)
	case StrategyHybrid:
		return e.hybridMatch(ctx, query, records)
	default:
		return e.exactMatch(query, records), nil
	}
}

func (e *Engine) exactMatch(query string, records []*domain.MemoryRecord) map[string]float64 {
	out := make(map[string]float64)
	lower := strings.ToLower(query)
	for _, m := range records {
		if strings.Contains(strings.ToLower(m.Content), lower) {
			out[m.ID] = 1.0
		}
	}
	return out
}

func (e *Engine) fuzzyMatch(query string, records []*domain.MemoryRecord) map[string]float64 {
	out := make(map[string]float64)
	for _, m := range records {
		sim := textsim.Jaccard(query, m.Content)
		if sim >= e.cfg.FuzzyThreshold {
			out[m.ID] = sim
		}
	}
	return out
}

func (e *Engine) semanticMatch(ctx context.Context, query string, records []*domain.MemoryRecord) (map[string]float64, error) {
	out := make(map[string]float64)
	if e.embedder == nil {
		return out, nil
	}
	qvec, err := e.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	for _, m := range records {
		if len(m.Embedding) == 0 {
			continue
		}
		sim := cosineSimilarity(qvec, m.Embedding)
		if sim >= e.cfg.SemanticThreshold {
			out[m.ID] = sim
		}
	}
	return out, nil
}

// hybridMatch implements spec §4.7's weighted union: exact:1.0,
// fuzzy*0.7, semantic*0.8, duplicates averaged.
func (e *Engine) hybridMatch(ctx context.Context, query string, records []*domain.MemoryRecord) (map[string]float64, error) {
	exact := e.exactMatch(query, records)
	fuzzy := e.fuzzyMatch(query, records)
	semantic, err := e.semanticMatch(ctx, query, records)
	if err != nil {
		return nil, err
	}

	sums := make(map[string]float64)
	counts := make(map[string]int)
	add := func(scores map[string]float64, weight float64) {
		for id, s := range scores {
			sums[id] += s * weight
			counts[id]++
		}
	}
	add(exact, 1.0)
	add(fuzzy, 0.7)
	add(semantic, 0.8)

	out := make(map[string]float64, len(sums))
	for id, sum := range sums {
		out[id] = sum / float64(counts[id])
	}
	return out, nil
}

// chooseAdaptiveStrategy implements spec §4.7's query-shape rules.
func chooseAdaptiveStrategy(query string) Strategy {
	words := strings.Fields(query)
	switch {
	case len(query) < 10 && len(words) <= 2:
		return StrategyExact
	case len(query) < 50 && len(words) <= 5:
		return StrategyFuzzy
	case len(words) > 5:
		return StrategySemantic
	default:
		return StrategyHybrid
	}
}

func indexByID(records []*domain.MemoryRecord) map[string]*domain.MemoryRecord {
	out := make(map[string]*domain.MemoryRecord, len(records))
	for _, m := range records {
		out[m.ID] = m
	}
	return out
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func cacheKey(query string, strategy Strategy) string {
	h := sha256.Sum256([]byte(fmt.Sprintf("%s|%s", query, strategy)))
	return hex.EncodeToString(h[:])
}

func (e *Engine) recordAnalytics(query string, resultCount int, elapsed time.Duration, cacheHit bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.analytics.QueryCount++
	e.analytics.TotalResults += int64(resultCount)
	e.analytics.QueryHistogram[query]++
	if cacheHit {
		e.analytics.CacheHits++
	} else {
		e.analytics.CacheMisses++
	}

	e.analytics.queryTimes = append(e.analytics.queryTimes, elapsed)
	if len(e.analytics.queryTimes) > maxQueryTimeHistory {
		e.analytics.queryTimes = e.analytics.queryTimes[len(e.analytics.queryTimes)-maxQueryTimeHistory:]
	}
	var sum time.Duration
	for _, d := range e.analytics.queryTimes {
		sum += d
	}
	e.analytics.AvgResponseTime = sum / time.Duration(len(e.analytics.queryTimes))
}

// Analytics returns a snapshot of the running telemetry.
func (e *Engine) Analytics() Analytics {
	e.mu.Lock()
	defer e.mu.Unlock()
	cp := e.analytics
	cp.QueryHistogram = make(map[string]int64, len(e.analytics.QueryHistogram))
	for k, v := range e.analytics.QueryHistogram {
		cp.QueryHistogram[k] = v
	}
	return cp
}
