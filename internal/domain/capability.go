package domain

import "context"

// Embedder is the injected embedding capability (spec §6). Production
// clients for OpenAI/HuggingFace/local models are external
// collaborators out of scope for this engine; only the interface and
// a deterministic in-tree test double are provided (internal/embedding).
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
	HealthCheck(ctx context.Context) bool
}

// VectorIndex is the optional capability consumed for semantic search
// (spec §6). The engine never implements a general-purpose vector
// index itself (spec §1 Non-goals); internal/storepg provides one
// concrete pgvector-backed instance of this interface.
type VectorIndex interface {
	Insert(ctx context.Context, id string, vec []float32) error
	Query(ctx context.Context, vec []float32, k int) ([]VectorMatch, error)
}

// VectorMatch is one hit from a VectorIndex query.
type VectorMatch struct {
	ID       string
	Distance float64
}
