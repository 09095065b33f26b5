package scorer

import (
	"testing"
	"time"

	"github.com/louloulin/agentmem/internal/domain"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newRecord(importance domain.Importance, accessedAt time.Time) *domain.MemoryRecord {
	return &domain.MemoryRecord{
		ID:         "m1",
		Content:    "the quarterly report is due Friday",
		Scope:      domain.UserScope("a1", "u1"),
		Importance: importance,
		CreatedAt:  accessedAt,
		AccessedAt: accessedAt,
		Metadata:   map[string]string{},
	}
}

// P6 — weights must always sum to 1.0 within 1e-6, across many
// adaptation steps and every importance tier.
func TestScorer_WeightsStayNormalized(t *testing.T) {
	cfg := DefaultConfig()
	cfg.EnableDynamicWeights = true
	s := New(cfg, zap.NewNop())

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	tiers := []domain.Importance{domain.ImportanceCritical, domain.ImportanceHigh, domain.ImportanceMedium, domain.ImportanceLow}

	for i := 0; i < 200; i++ {
		m := newRecord(tiers[i%len(tiers)], now)
		ctx := domain.ScoringContext{Now: now, UserID: "u1"}
		s.Score(m, ctx)

		w := s.Weights()
		require.InDelta(t, 1.0, w.Sum(), 1e-6)
	}
}

func TestScorer_Score_ClampedToConfiguredRange(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxScoreCap = 0.9
	cfg.MinScoreThreshold = 0.1
	s := New(cfg, zap.NewNop())

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	m := newRecord(domain.ImportanceCritical, now)
	factors := s.Score(m, domain.ScoringContext{Now: now})

	require.LessOrEqual(t, factors.Composite, 0.9)
	require.GreaterOrEqual(t, factors.Composite, 0.1)
}

func TestScorer_RecordAccess_IdempotentPerEventID(t *testing.T) {
	s := New(DefaultConfig(), zap.NewNop())
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	m := newRecord(domain.ImportanceMedium, now)
	sctx := domain.ScoringContext{Now: now}

	first := s.RecordAccess(m, "evt-1", domain.AccessRead, sctx)
	second := s.RecordAccess(m, "evt-1", domain.AccessRead, sctx)
	require.True(t, first)
	require.False(t, second, "replaying the same event id must be a no-op")

	u := s.Usage(m)
	require.Equal(t, 1, u.AccessCount)
}

func TestComputeRecency_DecaysWithImportance(t *testing.T) {
	now := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	critical := newRecord(domain.ImportanceCritical, now.Add(-24*time.Hour))
	low := newRecord(domain.ImportanceLow, now.Add(-24*time.Hour))

	// Critical's lower decay rate (0.01) retains a higher recency score
	// than the faster-decaying Low tier (0.1) over the same elapsed time.
	require.Greater(t, computeRecency(critical, now), computeRecency(low, now))
}

func TestComputeFrequency_Bounded(t *testing.T) {
	require.Equal(t, 0.0, computeFrequency(0))
	require.LessOrEqual(t, computeFrequency(1000), 1.0)
}
