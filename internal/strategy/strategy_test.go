package strategy

import (
	"testing"
	"time"

	"github.com/louloulin/agentmem/internal/clock"
	"github.com/louloulin/agentmem/internal/domain"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newManager(t *testing.T) (*Manager, *clock.Fixed) {
	t.Helper()
	fc := clock.NewFixed(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	return New(DefaultConfig(), fc, zap.NewNop()), fc
}

func TestRecommend_KnownPattern_ReturnsBoundStrategyWithFixedConfidence(t *testing.T) {
	m, _ := newManager(t)
	pattern := RequestPattern{UserType: "support", TaskCategory: "triage", Hour: 9}
	m.BindPattern(pattern, domain.StrategyAggressive)

	rec := m.Recommend(pattern, nil)
	require.Equal(t, domain.StrategyAggressive, rec.Strategy)
	require.Equal(t, 0.8, rec.Confidence)
	require.NotContains(t, rec.Alternatives, domain.StrategyAggressive)
}

func TestMaybeAdapt_SwitchesWhenChallengerBeatsThresholdMargin(t *testing.T) {
	m, _ := newManager(t)

	m.RecordPerformance(domain.StrategyBalanced, domain.StrategyPerformance{SuccessRate: 0.3})
	m.RecordPerformance(domain.StrategyAggressive, domain.StrategyPerformance{SuccessRate: 0.9})

	tr := m.MaybeAdapt()
	require.NotNil(t, tr)
	require.Equal(t, domain.StrategyBalanced, tr.From)
	require.Equal(t, domain.StrategyAggressive, tr.To)

	cur, _ := m.Current()
	require.Equal(t, domain.StrategyAggressive, cur)
}

func TestMaybeAdapt_NoSwitchWhenMarginNotExceeded(t *testing.T) {
	m, _ := newManager(t)

	m.RecordPerformance(domain.StrategyBalanced, domain.StrategyPerformance{SuccessRate: 0.5})
	m.RecordPerformance(domain.StrategyAggressive, domain.StrategyPerformance{SuccessRate: 0.55})

	tr := m.MaybeAdapt()
	require.Nil(t, tr)
}

func TestParams_MatchSpecTable(t *testing.T) {
	p := domain.StrategyAggressive.Params()
	require.Equal(t, domain.ConflictImportanceBased, p.Conflict)
	require.Equal(t, 0.7, p.ImportanceThreshold)
	require.Equal(t, 30, p.RetentionDays)
	require.Equal(t, 1000, p.CapPerScope)
}
