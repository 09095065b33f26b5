package conflict

import (
	"context"
	"testing"
	"time"

	"github.com/louloulin/agentmem/internal/clock"
	"github.com/louloulin/agentmem/internal/domain"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newResolver(t *testing.T) (*Resolver, *clock.Fixed) {
	t.Helper()
	fc := clock.NewFixed(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	return New(DefaultConfig(), fc, clock.NewSequential("conflict"), zap.NewNop()), fc
}

func record(id, content string, createdAt time.Time, importance domain.Importance, reliability float64) *domain.MemoryRecord {
	return &domain.MemoryRecord{
		ID:                id,
		Content:           content,
		CreatedAt:         createdAt,
		UpdatedAt:         createdAt,
		AccessedAt:        createdAt,
		Importance:        importance,
		SourceReliability: reliability,
		Metadata:          map[string]string{},
		Tags:              domain.NewTagSet(),
	}
}

// P4 — any write similar to an existing record above threshold must
// report has_conflict.
func TestDetect_AboveThresholdReportsConflict(t *testing.T) {
	r, fc := newResolver(t)
	now := fc.Now()

	existing := record("e1", "the server deploy happens every friday at noon", now, domain.ImportanceMedium, 0.5)
	n := record("n1", "the server deploy happens every friday at noon sharp", now, domain.ImportanceMedium, 0.5)

	det := r.Detect(n, []*domain.MemoryRecord{existing})
	require.True(t, det.HasConflict)
	require.Greater(t, det.Similarity, 0.85)
}

func TestDetect_ClassifiesDuplicate(t *testing.T) {
	r, fc := newResolver(t)
	now := fc.Now()

	existing := record("e1", "the password policy requires twelve characters", now, domain.ImportanceMedium, 0.5)
	n := record("n1", "the password policy requires twelve characters", now, domain.ImportanceMedium, 0.5)

	det := r.Detect(n, []*domain.MemoryRecord{existing})
	require.True(t, det.HasConflict)
	require.Equal(t, domain.ConflictTypeDuplicate, det.Type)
}

func TestDetect_ClassifiesFactual(t *testing.T) {
	r, fc := newResolver(t)
	now := fc.Now()

	existing := record("e1", "the deployment is stable and ready for release", now, domain.ImportanceMedium, 0.5)
	n := record("n1", "the deployment is not stable and ready for release", now, domain.ImportanceMedium, 0.5)

	det := r.Detect(n, []*domain.MemoryRecord{existing})
	require.True(t, det.HasConflict)
	require.Equal(t, domain.ConflictTypeFactual, det.Type)
}

func TestResolve_ImportanceBased_PicksHigherImportance(t *testing.T) {
	r, fc := newResolver(t)
	now := fc.Now()

	existing := record("e1", "the release window is thursday afternoon", now, domain.ImportanceLow, 0.5)
	n := record("n1", "the release window is thursday afternoon exactly", now, domain.ImportanceHigh, 0.5)

	det := r.Detect(n, []*domain.MemoryRecord{existing})
	require.True(t, det.HasConflict)

	winner, merged, res, err := r.Resolve(context.Background(), n, det, domain.ConflictImportanceBased)
	require.NoError(t, err)
	require.Nil(t, merged)
	require.Equal(t, n.ID, winner.ID)
	require.Equal(t, 0.9, res.Confidence)
	require.NotEmpty(t, res.ConflictID)
}

func TestResolve_SemanticMerge_CombinesUniqueContent(t *testing.T) {
	r, fc := newResolver(t)
	now := fc.Now()

	existing := record("e1", "prefers dark mode in the editor", now, domain.ImportanceMedium, 0.5)
	n := record("n1", "prefers dark mode in the editor always", now, domain.ImportanceMedium, 0.5)

	det := r.Detect(n, []*domain.MemoryRecord{existing})
	winner, merged, _, err := r.Resolve(context.Background(), n, det, domain.ConflictSemanticMerge)
	require.NoError(t, err)
	require.Nil(t, winner)
	require.Contains(t, merged.Content, " | ")
}

func TestResolve_KeepBoth_MarksAllAndReturnsError(t *testing.T) {
	r, fc := newResolver(t)
	now := fc.Now()

	existing := record("e1", "timezone is set to UTC for all agents", now, domain.ImportanceMedium, 0.5)
	n := record("n1", "timezone is set to UTC for all agents now", now, domain.ImportanceMedium, 0.5)

	det := r.Detect(n, []*domain.MemoryRecord{existing})
	_, _, res, err := r.Resolve(context.Background(), n, det, domain.ConflictKeepBoth)
	require.Error(t, err)
	require.True(t, n.ConflictMarker)
	require.True(t, existing.ConflictMarker)
	require.Equal(t, 1.0, res.Confidence)
}

func TestAudit_BoundedByCapacity(t *testing.T) {
	r, fc := newResolver(t)
	r.cfg.AuditCacheCapacity = 2
	now := fc.Now()

	for i := 0; i < 5; i++ {
		existing := record("e", "a shared content string for repeated conflicts", now, domain.ImportanceMedium, 0.5)
		n := record("n", "a shared content string for repeated conflicts", now, domain.ImportanceMedium, 0.5)
		det := r.Detect(n, []*domain.MemoryRecord{existing})
		_, _, _, _ = r.Resolve(context.Background(), n, det, domain.ConflictImportanceBased)
	}

	require.Len(t, r.Audit(), 2)
}
