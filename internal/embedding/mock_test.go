package embedding

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEmbed_DeterministicForSameText(t *testing.T) {
	m := NewMock()
	ctx := context.Background()

	a, err := m.Embed(ctx, "the quick brown fox")
	require.NoError(t, err)
	b, err := m.Embed(ctx, "the quick brown fox")
	require.NoError(t, err)
	require.Equal(t, a, b)
}

func TestEmbed_IsUnitNormalized(t *testing.T) {
	m := NewMock()
	vec, err := m.Embed(context.Background(), "some content to embed")
	require.NoError(t, err)

	var sumSq float64
	for _, v := range vec {
		sumSq += float64(v) * float64(v)
	}
	require.InDelta(t, 1.0, math.Sqrt(sumSq), 1e-4)
}

func TestHealthCheck_ReflectsSetHealthy(t *testing.T) {
	m := NewMock()
	require.True(t, m.HealthCheck(context.Background()))
	m.SetHealthy(false)
	require.False(t, m.HealthCheck(context.Background()))
}

func TestEmbedBatch_MatchesIndividualEmbed(t *testing.T) {
	m := NewMock()
	ctx := context.Background()
	texts := []string{"alpha beta", "gamma delta"}

	batch, err := m.EmbedBatch(ctx, texts)
	require.NoError(t, err)
	require.Len(t, batch, 2)

	for i, text := range texts {
		single, err := m.Embed(ctx, text)
		require.NoError(t, err)
		require.Equal(t, single, batch[i])
	}
}
