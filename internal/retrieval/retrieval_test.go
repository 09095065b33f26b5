package retrieval

import (
	"testing"
	"time"

	"github.com/louloulin/agentmem/internal/domain"
	"github.com/stretchr/testify/require"
)

func TestExtract_DetectsTechnicalCategory(t *testing.T) {
	topic := Extract("the deploy pipeline failed with a database bug", nil)
	require.Equal(t, CategoryTechnical, topic.Category)
	require.Greater(t, topic.Confidence, 0.0)
}

func TestRouter_Route_PreferredStrategyWins(t *testing.T) {
	r := NewRouter()
	pref := domain.RetrievalSemanticGraph
	decision := r.Route(Request{Query: "anything", PreferredStrategy: &pref}, nil)

	require.Contains(t, decision.Selected, pref)
	require.Equal(t, 0.9, decision.Confidence)
}

func TestRouter_Route_TopicMapping_CapsAtThree(t *testing.T) {
	r := NewRouter()
	topics := []ExtractedTopic{{Category: CategoryTechnical}}
	decision := r.Route(Request{Query: "bug in server"}, topics)

	require.LessOrEqual(t, len(decision.Selected), 3)
	require.NotEmpty(t, decision.Selected)
	sum := 0.0
	for _, w := range decision.Weights {
		sum += w
	}
	require.InDelta(t, 1.0, sum, 1e-9)
}

func memRec(id, content string, createdAt time.Time) *domain.MemoryRecord {
	return &domain.MemoryRecord{ID: id, Content: content, CreatedAt: createdAt, Metadata: map[string]string{}}
}

func TestSynthesize_KeepMostRelevant_DropsLowerRelevanceDuplicate(t *testing.T) {
	now := time.Now()
	a := memRec("a", "the release is scheduled for friday at noon", now)
	b := memRec("b", "the release is scheduled for friday around noon", now.Add(time.Hour))

	syn := NewSynthesizer(0.5, SynthesisKeepMostRelevant)
	result := syn.Synthesize([]*domain.MemoryRecord{a, b}, map[string]float64{"a": 0.9, "b": 0.3})

	require.Len(t, result.SynthesizedMemories, 1)
	require.Equal(t, "a", result.SynthesizedMemories[0].ID)
	require.Len(t, result.DetectedConflicts, 1)
	require.LessOrEqual(t, result.ConfidenceScore, 1.0)
}

func TestSynthesize_NoConflicts_ConfidenceIsAvgPlusFullBonus(t *testing.T) {
	now := time.Now()
	a := memRec("a", "alpha content unrelated to beta", now)
	b := memRec("b", "completely distinct beta content here", now)

	syn := NewSynthesizer(0.9, SynthesisKeepLatest)
	result := syn.Synthesize([]*domain.MemoryRecord{a, b}, map[string]float64{"a": 0.5, "b": 0.5})

	require.Empty(t, result.DetectedConflicts)
	require.InDelta(t, 0.7, result.ConfidenceScore, 1e-9)
}
