// Package embedding supplies a deterministic in-tree Embedder test
// double. Production OpenAI/HuggingFace/local-model clients are
// external collaborators explicitly out of scope (spec §1 Non-goals);
// only this interface-satisfying stand-in ships here, used by
// cmd/server when no production embedder is configured and by the
// engine's own test suites.
package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
)

const defaultDimension = 32

// Mock is a deterministic, hash-based bag-of-words Embedder: the same
// text always yields the same vector, and textually similar strings
// yield vectors with nonzero cosine similarity, without depending on
// any external model.
type Mock struct {
	dimension int
	healthy   bool
}

func NewMock() *Mock {
	return &Mock{dimension: defaultDimension, healthy: true}
}

// SetHealthy lets tests simulate an embedder outage (spec §9 "embedder
// unavailable degrades to lexical search").
func (m *Mock) SetHealthy(healthy bool) {
	m.healthy = healthy
}

func (m *Mock) Dimension() int {
	return m.dimension
}

func (m *Mock) HealthCheck(ctx context.Context) bool {
	return m.healthy
}

func (m *Mock) Embed(ctx context.Context, text string) ([]float32, error) {
	vec := make([]float32, m.dimension)
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(tok))
		vec[int(h.Sum32())%m.dimension]++
	}
	normalize(vec)
	return vec, nil
}

func (m *Mock) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := m.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func normalize(vec []float32) {
	var sumSq float64
	for _, v := range vec {
		sumSq += float64(v) * float64(v)
	}
	if sumSq == 0 {
		return
	}
	norm := float32(math.Sqrt(sumSq))
	for i := range vec {
		vec[i] /= norm
	}
}
