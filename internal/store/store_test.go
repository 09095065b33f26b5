package store

import (
	"context"
	"testing"
	"time"

	"github.com/louloulin/agentmem/internal/apperr"
	"github.com/louloulin/agentmem/internal/clock"
	"github.com/louloulin/agentmem/internal/domain"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testLogger() *zap.Logger {
	return zap.NewNop()
}

func newTestStore(t *testing.T, cfg Config) (*HierarchicalStore, *clock.Fixed) {
	t.Helper()
	fc := clock.NewFixed(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	ids := clock.NewSequential("mem")
	return New(cfg, fc, ids, testLogger()), fc
}

// S1 — Basic add/get with access control.
func TestStore_AddGet_AccessControl(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t, DefaultConfig())

	m, err := s.Add(ctx, "The meeting is at 3pm", domain.UserScope("a1", "u1"), domain.LevelOperational, domain.MemoryTypeEpisodic, domain.ImportanceMedium, nil)
	require.NoError(t, err)

	got, err := s.Get(ctx, m.ID, domain.UserScope("a1", "u1"))
	require.NoError(t, err)
	require.Equal(t, "The meeting is at 3pm", got.Content)
	require.Equal(t, 1, got.AccessCount)

	_, err = s.Get(ctx, m.ID, domain.UserScope("a1", "u2"))
	require.ErrorIs(t, err, apperr.ErrAccessDenied)
}

func TestStore_Delete_IsTerminal(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t, DefaultConfig())

	m, err := s.Add(ctx, "ephemeral fact", domain.Global(), domain.LevelContextual, domain.MemoryTypeKnowledge, domain.ImportanceLow, nil)
	require.NoError(t, err)

	ok, err := s.Delete(ctx, m.ID)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = s.Get(ctx, m.ID, domain.Global())
	require.Error(t, err)
}

func TestStore_Eviction_OldestByCreatedAt(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultConfig()
	cfg.MaxMemoriesPerScopeLevel = 2
	s, fc := newTestStore(t, cfg)

	first, err := s.Add(ctx, "first", domain.AgentScope("a1"), domain.LevelTactical, domain.MemoryTypeKnowledge, domain.ImportanceLow, nil)
	require.NoError(t, err)
	fc.Advance(time.Hour)
	_, err = s.Add(ctx, "second", domain.AgentScope("a1"), domain.LevelTactical, domain.MemoryTypeKnowledge, domain.ImportanceLow, nil)
	require.NoError(t, err)
	fc.Advance(time.Hour)
	_, err = s.Add(ctx, "third", domain.AgentScope("a1"), domain.LevelTactical, domain.MemoryTypeKnowledge, domain.ImportanceLow, nil)
	require.NoError(t, err)

	_, err = s.Get(ctx, first.ID, domain.AgentScope("a1"))
	require.Error(t, err, "oldest record should have been evicted")

	list, err := s.List(ctx, domain.AgentScope("a1"), domain.Filters{}, 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
}

func TestStore_SetParent_RejectsCycle(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t, DefaultConfig())

	a, err := s.Add(ctx, "a", domain.Global(), domain.LevelStrategic, domain.MemoryTypeKnowledge, domain.ImportanceLow, nil)
	require.NoError(t, err)
	b, err := s.Add(ctx, "b", domain.Global(), domain.LevelStrategic, domain.MemoryTypeKnowledge, domain.ImportanceLow, nil)
	require.NoError(t, err)

	require.NoError(t, s.SetParent(ctx, b.ID, a.ID))
	err = s.SetParent(ctx, a.ID, b.ID)
	require.Error(t, err)
}

// S3 — Inheritance filtering.
func TestStore_Inheritance_FilteredByQuality(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t, DefaultConfig())

	rules := domain.DefaultInheritanceRules()

	m, err := s.Add(ctx, "policy: no secrets in logs", domain.Global(), domain.LevelStrategic, domain.MemoryTypeKnowledge, domain.ImportanceMedium, nil)
	require.NoError(t, err)
	q := 0.8
	_, err = s.Update(ctx, m.ID, domain.Patch{QualityScore: &q})
	require.NoError(t, err)

	views, err := s.Inherited(ctx, domain.AgentScope("a1"), rules)
	require.NoError(t, err)
	require.Len(t, views, 1)

	qLow := 0.5
	_, err = s.Update(ctx, m.ID, domain.Patch{QualityScore: &qLow})
	require.NoError(t, err)

	views, err = s.Inherited(ctx, domain.AgentScope("a1"), rules)
	require.NoError(t, err)
	require.Len(t, views, 0)
}
