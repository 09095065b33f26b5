package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/louloulin/agentmem/internal/clock"
	"github.com/louloulin/agentmem/internal/conflict"
	"github.com/louloulin/agentmem/internal/coordinator"
	"github.com/louloulin/agentmem/internal/domain"
	"github.com/louloulin/agentmem/internal/embedding"
	"github.com/louloulin/agentmem/internal/hierarchy"
	"github.com/louloulin/agentmem/internal/retrieval"
	"github.com/louloulin/agentmem/internal/scorer"
	"github.com/louloulin/agentmem/internal/search"
	"github.com/louloulin/agentmem/internal/store"
	"github.com/louloulin/agentmem/internal/strategy"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	clk := clock.NewFixed(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	ids := clock.NewSequential("mem")
	logger := zap.NewNop()

	st := store.New(store.DefaultConfig(), clk, ids, logger)
	sc := scorer.New(scorer.DefaultConfig(), logger)
	cf := conflict.New(conflict.DefaultConfig(), clk, ids, logger)
	hi := hierarchy.New(hierarchy.DefaultConfig(), clk, ids, logger)
	st8 := strategy.New(strategy.DefaultConfig(), clk, logger)
	se := search.New(search.DefaultConfig(), st, embedding.NewMock(), logger)
	router := retrieval.NewRouter()
	synth := retrieval.NewSynthesizer(0.85, retrieval.SynthesisKeepMostRelevant)
	coord := coordinator.New(coordinator.DefaultConfig(), clk, ids, logger)

	return New(Components{
		Store:       st,
		Scorer:      sc,
		Conflict:    cf,
		AutoResolve: true,
		Hierarchy:   hi,
		Strategy:    st8,
		Search:      se,
		Router:      router,
		Synthesizer: synth,
		Coordinator: coord,
		Clock:       clk,
		IdGen:       ids,
		Logger:      logger,
	})
}

// newTestEngineNoStrategy builds an engine with no AdaptiveStrategy
// component, so Add() falls back to domain.ConflictImportanceBased.
func newTestEngineNoStrategy(t *testing.T) *Engine {
	t.Helper()
	clk := clock.NewFixed(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	ids := clock.NewSequential("mem")
	logger := zap.NewNop()

	st := store.New(store.DefaultConfig(), clk, ids, logger)
	sc := scorer.New(scorer.DefaultConfig(), logger)
	cf := conflict.New(conflict.DefaultConfig(), clk, ids, logger)
	hi := hierarchy.New(hierarchy.DefaultConfig(), clk, ids, logger)
	coord := coordinator.New(coordinator.DefaultConfig(), clk, ids, logger)

	return New(Components{
		Store:       st,
		Scorer:      sc,
		Conflict:    cf,
		AutoResolve: true,
		Hierarchy:   hi,
		Coordinator: coord,
		Clock:       clk,
		IdGen:       ids,
		Logger:      logger,
	})
}

func TestAdd_SemanticMerge_PersistsMergedContent(t *testing.T) {
	e := newTestEngine(t) // default strategy is Balanced -> ConflictSemanticMerge
	ctx := context.Background()
	scope := domain.AgentScope("agent-1")

	const original = "memory engine handles concurrent access from multiple worker agents across many scopes for testing purposes today"
	const conflicting = "memory engine handles concurrent access from multiple worker agents across many scopes for testing purposes tomorrow"

	first, err := e.Add(ctx, original, scope, domain.LevelOperational, domain.MemoryTypeSemantic, domain.ImportanceMedium, nil)
	require.NoError(t, err)

	second, err := e.Add(ctx, conflicting, scope, domain.LevelOperational, domain.MemoryTypeSemantic, domain.ImportanceMedium, nil)
	require.NoError(t, err)
	require.NotEqual(t, first.ID, second.ID)
	require.Contains(t, second.Content, conflicting)
	require.Contains(t, second.Content, original)
	require.Contains(t, second.Content, " | ")

	records, err := e.List(ctx, scope, domain.Filters{}, 0)
	require.NoError(t, err)
	require.Len(t, records, 2, "the pre-merge original record is untouched, the merged record is the new one")
}

func TestAdd_ImportanceBasedWinner_SkipsInsertWhenExistingOutranks(t *testing.T) {
	e := newTestEngineNoStrategy(t) // falls back to ConflictImportanceBased
	ctx := context.Background()
	scope := domain.AgentScope("agent-1")

	const original = "memory engine handles concurrent access from multiple worker agents across many scopes for testing purposes today"
	const conflicting = "memory engine handles concurrent access from multiple worker agents across many scopes for testing purposes tomorrow"

	first, err := e.Add(ctx, original, scope, domain.LevelOperational, domain.MemoryTypeSemantic, domain.ImportanceCritical, nil)
	require.NoError(t, err)

	second, err := e.Add(ctx, conflicting, scope, domain.LevelOperational, domain.MemoryTypeSemantic, domain.ImportanceLow, nil)
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID, "the higher-importance existing record should win and nothing new gets persisted")
	require.Equal(t, original, second.Content)

	records, err := e.List(ctx, scope, domain.Filters{}, 0)
	require.NoError(t, err)
	require.Len(t, records, 1)
}

func TestAdd_ThenGet_RoundTrips(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	scope := domain.AgentScope("agent-1")

	m, err := e.Add(ctx, "the deploy pipeline uses blue-green releases", scope, domain.LevelOperational, domain.MemoryTypeSemantic, domain.ImportanceHigh, nil)
	require.NoError(t, err)
	require.NotEmpty(t, m.ID)

	got, err := e.Get(ctx, m.ID, scope)
	require.NoError(t, err)
	require.Equal(t, m.Content, got.Content)
}

func TestGet_WrongScope_ReturnsAccessDenied(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	scope := domain.AgentScope("agent-1")

	m, err := e.Add(ctx, "private note", scope, domain.LevelOperational, domain.MemoryTypeEpisodic, domain.ImportanceMedium, nil)
	require.NoError(t, err)

	_, err = e.Get(ctx, m.ID, domain.AgentScope("agent-2"))
	require.Error(t, err)
}

func TestSearchText_FindsAddedMemory(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	scope := domain.AgentScope("agent-1")

	_, err := e.Add(ctx, "kubernetes rollout failed last night", scope, domain.LevelOperational, domain.MemoryTypeEpisodic, domain.ImportanceMedium, nil)
	require.NoError(t, err)

	hits, err := e.SearchText(ctx, "kubernetes rollout", scope, domain.Filters{}, 10)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
}

func TestRetrieveActive_RoutesAndSynthesizes(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	scope := domain.AgentScope("agent-1")

	_, err := e.Add(ctx, "the database migration runbook", scope, domain.LevelTactical, domain.MemoryTypeProcedural, domain.ImportanceHigh, nil)
	require.NoError(t, err)

	resp, err := e.RetrieveActive(ctx, RetrievalRequest{
		Query:      "database migration",
		Scope:      scope,
		ScoringCtx: domain.ScoringContext{Now: time.Now()},
	})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Route.Selected)
}

func TestRegisterAgent_ThenAgentStatus(t *testing.T) {
	e := newTestEngine(t)

	ch := e.RegisterAgent("worker-1", []string{"episodic"}, 4)
	require.NotNil(t, ch)

	st, all, err := e.AgentStatus("worker-1")
	require.NoError(t, err)
	require.Nil(t, all)
	require.Equal(t, "worker-1", st.AgentID)

	_, all, err = e.AgentStatus("")
	require.NoError(t, err)
	require.Len(t, all, 1)
}

func TestAgentStatus_UnknownAgent_ReturnsNotFound(t *testing.T) {
	e := newTestEngine(t)
	_, _, err := e.AgentStatus("ghost")
	require.Error(t, err)
}
