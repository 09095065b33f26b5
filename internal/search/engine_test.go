package search

import (
	"context"
	"testing"
	"time"

	"github.com/louloulin/agentmem/internal/domain"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeSource struct {
	records []*domain.MemoryRecord
}

func (f *fakeSource) List(ctx context.Context, scope domain.Scope, filters domain.Filters, limit int) ([]*domain.MemoryRecord, error) {
	return f.records, nil
}

func rec(id, content string) *domain.MemoryRecord {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	return &domain.MemoryRecord{
		ID: id, Content: content, Scope: domain.AgentScope("a1"), Level: domain.LevelOperational,
		Importance: domain.ImportanceMedium, CreatedAt: now, UpdatedAt: now, AccessedAt: now,
		Metadata: map[string]string{},
	}
}

func TestSearch_ExactMatch_FindsSubstring(t *testing.T) {
	src := &fakeSource{records: []*domain.MemoryRecord{
		rec("m1", "the quarterly report is due friday"),
		rec("m2", "lunch at noon"),
	}}
	e := New(DefaultConfig(), src, nil, zap.NewNop())

	hits, err := e.Search(context.Background(), "quarterly report", StrategyExact, domain.AgentScope("a1"), domain.Filters{}, Context{Now: time.Now()})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	require.Equal(t, "m1", hits[0].Record.ID)
	require.Equal(t, 1, hits[0].Rank)
}

func TestSearch_CacheHitAvoidsRecompute(t *testing.T) {
	src := &fakeSource{records: []*domain.MemoryRecord{rec("m1", "deploy schedule for friday release")}}
	e := New(DefaultConfig(), src, nil, zap.NewNop())
	sctx := Context{Now: time.Now()}

	_, err := e.Search(context.Background(), "deploy schedule", StrategyExact, domain.AgentScope("a1"), domain.Filters{}, sctx)
	require.NoError(t, err)
	_, err = e.Search(context.Background(), "deploy schedule", StrategyExact, domain.AgentScope("a1"), domain.Filters{}, sctx)
	require.NoError(t, err)

	a := e.Analytics()
	require.Equal(t, int64(1), a.CacheHits)
	require.Equal(t, int64(1), a.CacheMisses)
}

func TestChooseAdaptiveStrategy_ShortQueryIsExact(t *testing.T) {
	require.Equal(t, StrategyExact, chooseAdaptiveStrategy("bug"))
	require.Equal(t, StrategyFuzzy, chooseAdaptiveStrategy("the deploy friday thing"))
	require.Equal(t, StrategySemantic, chooseAdaptiveStrategy("what did we discuss about the new onboarding flow yesterday"))
}

func TestBuildSnippet_AddsEllipsesAtBoundaries(t *testing.T) {
	content := "one two three four five six seven eight nine ten eleven twelve thirteen fourteen fifteen sixteen"
	snippet := buildSnippet(content, "eight", 2, 2)
	require.Contains(t, snippet, "eight")
	require.Contains(t, snippet, "...")
}
