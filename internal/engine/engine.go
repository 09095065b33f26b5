// Package engine wires every component (store, scorer, conflict,
// strategy, hierarchy, search, retrieval, coordinator, graph) into the
// single surface named by spec §6's public API: add/get/update/delete/
// list/stats, search_text/search_vector/search_contextual/
// retrieve_active, register_agent/execute_task/agent_status. cmd/server
// constructs the components and hands them to it, and
// internal/api/handlers calls into it (the handlers also use the
// coordinator package's Task and Response types directly).
package engine

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/louloulin/agentmem/internal/apperr"
	"github.com/louloulin/agentmem/internal/clock"
	"github.com/louloulin/agentmem/internal/conflict"
	"github.com/louloulin/agentmem/internal/coordinator"
	"github.com/louloulin/agentmem/internal/domain"
	"github.com/louloulin/agentmem/internal/graph"
	"github.com/louloulin/agentmem/internal/hierarchy"
	"github.com/louloulin/agentmem/internal/retrieval"
	"github.com/louloulin/agentmem/internal/scorer"
	"github.com/louloulin/agentmem/internal/search"
	"github.com/louloulin/agentmem/internal/store"
	"github.com/louloulin/agentmem/internal/strategy"
)

// Engine is the memory engine's orchestration layer.
type Engine struct {
	store       *store.HierarchicalStore
	scorer      *scorer.Scorer
	conflict    *conflict.Resolver
	autoResolve bool
	hierarchy   *hierarchy.Manager
	strategy    *strategy.Manager
	search      *search.Engine
	router      *retrieval.Router
	synth       *retrieval.Synthesizer
	coord       *coordinator.Coordinator
	graph       graph.Store // optional; nil when no graph backend is configured

	clock  clock.Clock
	idgen  clock.IdGen
	logger *zap.Logger
}

// Components groups the already-constructed component instances an
// Engine wires together; cmd/server builds one of these from config.
type Components struct {
	Store       *store.HierarchicalStore
	Scorer      *scorer.Scorer
	Conflict    *conflict.Resolver
	AutoResolve bool
	Hierarchy   *hierarchy.Manager
	Strategy    *strategy.Manager
	Search      *search.Engine
	Router      *retrieval.Router
	Synthesizer *retrieval.Synthesizer
	Coordinator *coordinator.Coordinator
	Graph       graph.Store

	Clock  clock.Clock
	IdGen  clock.IdGen
	Logger *zap.Logger
}

func New(c Components) *Engine {
	return &Engine{
		store:       c.Store,
		scorer:      c.Scorer,
		conflict:    c.Conflict,
		autoResolve: c.AutoResolve,
		hierarchy:   c.Hierarchy,
		strategy:    c.Strategy,
		search:      c.Search,
		router:      c.Router,
		synth:       c.Synthesizer,
		coord:       c.Coordinator,
		graph:       c.Graph,
		clock:       c.Clock,
		idgen:       c.IdGen,
		logger:      c.Logger,
	}
}

// Add implements spec §6 add(): content, scope, level, type,
// importance, metadata -> id. Runs conflict detection against the
// same scope+type before committing (spec §4.4), then places the new
// record in the hierarchy tree (spec §4.5).
func (e *Engine) Add(ctx context.Context, content string, scope domain.Scope, level domain.MemoryLevel, typ domain.MemoryType, importance domain.Importance, metadata map[string]string) (*domain.MemoryRecord, error) {
	finalContent := content
	finalMetadata := metadata
	var mergeTags []string

	if e.conflict != nil && e.autoResolve {
		existing, err := e.store.List(ctx, scope, domain.Filters{Scopes: []domain.Scope{scope}}, 0)
		if err != nil {
			return nil, fmt.Errorf("add: listing conflict candidates: %w", err)
		}
		candidate := &domain.MemoryRecord{Content: content, Scope: scope, Type: typ, Importance: importance, CreatedAt: e.clock.Now()}
		det := e.conflict.Detect(candidate, sameType(existing, typ))
		if det.HasConflict {
			strategyToUse := domain.ConflictImportanceBased
			if e.strategy != nil {
				_, params := e.strategy.Current()
				strategyToUse = params.Conflict
			}
			winner, merged, res, rerr := e.conflict.Resolve(ctx, candidate, det, strategyToUse)
			if rerr != nil && rerr != apperr.ErrConflictUnresolved {
				return nil, fmt.Errorf("add: resolving conflict: %w", rerr)
			}
			e.logger.Info("conflict resolved on add",
				zap.String("conflict_id", res.ConflictID),
				zap.String("strategy", strategyToUse.String()),
				zap.String("type", res.Type.String()))

			switch {
			case merged != nil:
				// SemanticMerge: the merged content/tags/metadata is what
				// actually gets persisted, not the caller's raw input.
				finalContent = merged.Content
				finalMetadata = merged.Metadata
				for t := range merged.Tags {
					mergeTags = append(mergeTags, t)
				}
			case winner != nil && winner != candidate:
				// An existing record outranks the new one; nothing new is
				// persisted, the winner stands as add()'s result.
				return winner.Clone(), nil
			}
			// winner == candidate, or KeepBoth (ErrConflictUnresolved): the
			// new content still gets inserted below; conflict markers (if
			// any) were already applied in place by Resolve.
		}
	}

	m, err := e.store.Add(ctx, finalContent, scope, level, typ, importance, finalMetadata)
	if err != nil {
		return nil, err
	}
	if len(mergeTags) > 0 {
		if updated, err := e.store.Update(ctx, m.ID, domain.Patch{AddTags: mergeTags}); err == nil {
			m = updated
		} else {
			e.logger.Warn("conflict merge tag update failed", zap.String("id", m.ID), zap.Error(err))
		}
	}
	if e.hierarchy != nil {
		if _, err := e.hierarchy.Place(m); err != nil {
			e.logger.Warn("hierarchy placement failed", zap.String("id", m.ID), zap.Error(err))
		}
	}
	return m, nil
}

func sameType(records []*domain.MemoryRecord, typ domain.MemoryType) []*domain.MemoryRecord {
	out := make([]*domain.MemoryRecord, 0, len(records))
	for _, r := range records {
		if r.Type == typ {
			out = append(out, r)
		}
	}
	return out
}

// Get implements spec §6 get(): id, request_scope -> MemoryRecord |
// NotFound | AccessDenied, recording the access for the importance
// scorer's recency/frequency factors (spec §4.3).
func (e *Engine) Get(ctx context.Context, id string, requestScope domain.Scope) (*domain.MemoryRecord, error) {
	m, err := e.store.Get(ctx, id, requestScope)
	if err != nil {
		return nil, err
	}
	if e.scorer != nil {
		e.scorer.RecordAccess(m, e.idgen.NewID(), domain.AccessRead, domain.ScoringContext{Now: e.clock.Now()})
	}
	return m, nil
}

// Update implements spec §6 update(): id, patch -> MemoryRecord.
func (e *Engine) Update(ctx context.Context, id string, patch domain.Patch) (*domain.MemoryRecord, error) {
	return e.store.Update(ctx, id, patch)
}

// Delete implements spec §6 delete(): id -> bool.
func (e *Engine) Delete(ctx context.Context, id string) (bool, error) {
	return e.store.Delete(ctx, id)
}

// List implements spec §6 list(): scope, filters, limit -> [MemoryRecord].
func (e *Engine) List(ctx context.Context, requestScope domain.Scope, filters domain.Filters, limit int) ([]*domain.MemoryRecord, error) {
	return e.store.List(ctx, requestScope, filters, limit)
}

// Stats implements spec §6 stats(): scope? -> MemoryStats.
func (e *Engine) Stats(ctx context.Context, scope *domain.Scope) (domain.MemoryStats, error) {
	return e.store.Stats(ctx, scope)
}

// SearchHit is the public shape of a ranked match, flattening
// search.Hit so callers outside the search package never need to
// import it.
type SearchHit struct {
	Record    *domain.MemoryRecord
	Relevance float64
	Context   float64
	Composite float64
	Snippet   string
}

func fromSearchHits(hits []search.Hit) []SearchHit {
	out := make([]SearchHit, 0, len(hits))
	for _, h := range hits {
		out = append(out, SearchHit{Record: h.Record, Relevance: h.Relevance, Context: h.Context, Composite: h.Composite, Snippet: h.Snippet})
	}
	return out
}

// SearchText implements spec §6 search_text(): query, scope, filters,
// limit -> [SearchHit], running the adaptive ContextAwareSearch
// pipeline (spec §4.7) with a neutral query-time context.
func (e *Engine) SearchText(ctx context.Context, query string, requestScope domain.Scope, filters domain.Filters, limit int) ([]SearchHit, error) {
	hits, err := e.search.Search(ctx, query, search.StrategyAdaptive, requestScope, filters, search.Context{Now: e.clock.Now()})
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return fromSearchHits(hits), nil
}

// SearchVector implements spec §6 search_vector(): vector, scope,
// limit -> [SearchHit]. The embedding Capability isn't invoked here —
// the caller already did the embedding — so this ranks the requested
// scope's records directly by cosine similarity against their stored
// Embedding, skipping any record that was never embedded.
func (e *Engine) SearchVector(ctx context.Context, vector []float32, requestScope domain.Scope, limit int) ([]SearchHit, error) {
	records, err := e.store.List(ctx, requestScope, domain.Filters{}, 0)
	if err != nil {
		return nil, err
	}
	hits := make([]SearchHit, 0, len(records))
	for _, m := range records {
		if len(m.Embedding) == 0 {
			continue
		}
		sim := cosineSimilarity(vector, m.Embedding)
		hits = append(hits, SearchHit{Record: m, Relevance: sim, Composite: sim})
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].Composite > hits[j].Composite })
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
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

// ContextualQuery is the spec §6 search_contextual() request: a
// ContextAwareSearch call plus the topic-extraction environment used
// to derive query-time context bonuses (spec §4.7 step 4, §4.8 step 1).
type ContextualQuery struct {
	Query        string
	Scope        domain.Scope
	Filters      domain.Filters
	Limit        int
	ScoringCtx   domain.ScoringContext
	PreferredTag map[string]float64 // custom metadata preference weights, spec §4.7 step 4
}

// ContextualSearchResult is the spec §6 search_contextual() response.
type ContextualSearchResult struct {
	Hits           []SearchHit
	DetectedTopics []retrieval.ExtractedTopic
}

// SearchContextual implements spec §6 search_contextual(): extracts
// topics from the query (spec §4.6), then runs ContextAwareSearch with
// the full query-time Context (user/session/task/domain/preferences).
func (e *Engine) SearchContextual(ctx context.Context, q ContextualQuery) (ContextualSearchResult, error) {
	topic := retrieval.Extract(q.Query, &q.ScoringCtx)

	sctx := search.Context{
		Now:            q.ScoringCtx.Now,
		UserID:         q.ScoringCtx.UserID,
		SessionID:      q.ScoringCtx.SessionID,
		TaskID:         q.ScoringCtx.CurrentTask,
		Domain:         q.ScoringCtx.Domain,
		PreferenceTags: q.PreferredTag,
	}
	hits, err := e.search.Search(ctx, q.Query, search.StrategyAdaptive, q.Scope, q.Filters, sctx)
	if err != nil {
		return ContextualSearchResult{}, err
	}
	if q.Limit > 0 && len(hits) > q.Limit {
		hits = hits[:q.Limit]
	}
	return ContextualSearchResult{Hits: fromSearchHits(hits), DetectedTopics: []retrieval.ExtractedTopic{topic}}, nil
}

// RetrievalRequest is the spec §6 retrieve_active() request: routes a
// query through RetrievalRouter (spec §4.8), fetches the candidate
// records for every selected memory type, and synthesizes them into a
// single deduplicated, conflict-aware context (spec §4.6).
type RetrievalRequest struct {
	Query             string
	Scope             domain.Scope
	ScoringCtx        domain.ScoringContext
	PreferredStrategy *domain.RetrievalStrategy
	TargetMemoryTypes []domain.MemoryType
	Limit             int
}

// RetrievalResponse is the spec §6 retrieve_active() response.
type RetrievalResponse struct {
	Records        []*domain.MemoryRecord
	Route          retrieval.RouteDecision
	Synthesis      retrieval.SynthesisResult
	Recommendation *strategy.Recommendation
}

// RetrieveActive implements spec §6 retrieve_active(). It also feeds
// the query's synthesis confidence back into AdaptiveStrategy.
// Recommend() (spec §4.6's primary recommend() operation) as this
// request's recent_performance observation, so every retrieve_active
// call is itself an adaptation opportunity (spec §8 scenario S4)
// rather than relying solely on cmd/server's periodic MaybeAdapt poll.
func (e *Engine) RetrieveActive(ctx context.Context, req RetrievalRequest) (RetrievalResponse, error) {
	topic := retrieval.Extract(req.Query, &req.ScoringCtx)
	route := e.router.Route(retrieval.Request{
		Query:             req.Query,
		Context:           &req.ScoringCtx,
		PreferredStrategy: req.PreferredStrategy,
		TargetMemoryTypes: req.TargetMemoryTypes,
	}, []retrieval.ExtractedTopic{topic})

	// domain.Filters has no native MemoryType list, so the type
	// restriction from the route decision is applied post-hoc below.
	records, err := e.store.List(ctx, req.Scope, domain.Filters{Scopes: []domain.Scope{req.Scope}}, 0)
	if err != nil {
		return RetrievalResponse{}, err
	}
	records = byMemoryTypes(records, route.MemoryTypes)
	if req.Limit > 0 && len(records) > req.Limit {
		records = records[:req.Limit]
	}

	relevance := make(map[string]float64, len(records))
	for _, m := range records {
		relevance[m.ID] = e.scorer.Score(m, req.ScoringCtx).Composite
	}
	synth := e.synth.Synthesize(records, relevance)

	var rec *strategy.Recommendation
	if e.strategy != nil {
		pattern := requestPatternFor(req, e.clock.Now())
		perf := synth.ConfidenceScore
		r := e.strategy.Recommend(pattern, &perf)
		rec = &r
	}

	return RetrievalResponse{Records: records, Route: route, Synthesis: synth, Recommendation: rec}, nil
}

func byMemoryTypes(records []*domain.MemoryRecord, types []domain.MemoryType) []*domain.MemoryRecord {
	if len(types) == 0 {
		return records
	}
	want := make(map[domain.MemoryType]bool, len(types))
	for _, t := range types {
		want[t] = true
	}
	out := make([]*domain.MemoryRecord, 0, len(records))
	for _, m := range records {
		if want[m.Type] {
			out = append(out, m)
		}
	}
	return out
}

// requestPatternFor derives a strategy.RequestPattern from a
// retrieval request's scoring context, the way AdaptiveStrategy
// expects its recommend() context pattern (spec §4.6).
func requestPatternFor(req RetrievalRequest, now time.Time) strategy.RequestPattern {
	return strategy.RequestPattern{
		UserType:     req.ScoringCtx.UserID,
		TaskCategory: req.ScoringCtx.CurrentTask,
		Hour:         now.Hour(),
	}
}

// RegisterAgent implements spec §6 register_agent(): id, capabilities,
// capacity -> channel_handle.
func (e *Engine) RegisterAgent(agentID string, capabilities []string, capacity int) <-chan coordinator.Message {
	return e.coord.RegisterAgent(agentID, capabilities, capacity)
}

// ExecuteTask implements spec §6 execute_task(): task -> TaskResponse.
func (e *Engine) ExecuteTask(ctx context.Context, task coordinator.Task, reply func(context.Context, coordinator.Task) (coordinator.Response, error)) (coordinator.Response, error) {
	if task.ID == "" {
		task.ID = e.idgen.NewID()
	}
	return e.coord.Execute(ctx, task, reply)
}

// AgentStatus implements spec §6 agent_status(): id? -> AgentStatus |
// [AgentStatus]. A blank agentID returns every registered agent.
func (e *Engine) AgentStatus(agentID string) (coordinator.AgentStatus, []coordinator.AgentStatus, error) {
	if agentID == "" {
		return coordinator.AgentStatus{}, e.coord.AllAgentStatuses(), nil
	}
	st, ok := e.coord.AgentStatus(agentID)
	if !ok {
		return coordinator.AgentStatus{}, nil, apperr.ErrNotFound
	}
	return st, nil, nil
}

// GraphNeighbors exposes GraphMemory (spec component K) through the
// same engine surface the rest of the public API goes through; nil
// when no graph backend was configured.
func (e *Engine) GraphNeighbors(ctx context.Context, nodeID string) ([]graph.Edge, error) {
	if e.graph == nil {
		return nil, nil
	}
	return e.graph.Neighbors(ctx, nodeID, e.clock.Now())
}

// GraphShortestPath exposes GraphMemory's reasoning-path query.
func (e *Engine) GraphShortestPath(ctx context.Context, fromID, toID string) ([]graph.Edge, error) {
	if e.graph == nil {
		return nil, nil
	}
	return e.graph.ShortestPath(ctx, fromID, toID, e.clock.Now())
}

// storeLookup adapts HierarchicalStore.Peek to hierarchy.RecordLookup.
type storeLookup struct{ store *store.HierarchicalStore }

func (l storeLookup) CreatedAt(memoryID string) (time.Time, bool) {
	m, ok := l.store.Peek(memoryID)
	if !ok {
		return time.Time{}, false
	}
	return m.CreatedAt, true
}

// Rebalance runs one hierarchy rebalance pass (spec §4.5), scheduled
// periodically by cmd/server.
func (e *Engine) Rebalance() (splits, merges int) {
	return e.hierarchy.Rebalance(storeLookup{store: e.store})
}

// MaybeAdapt runs one strategy-adaptation evaluation (spec §4.6),
// scheduled periodically by cmd/server.
func (e *Engine) MaybeAdapt() *strategy.Transition {
	return e.strategy.MaybeAdapt()
}
