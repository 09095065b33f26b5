// Package scorer implements the ImportanceScorer (spec §4.3): six-factor
// importance scoring with online weight adaptation, and ownership of
// per-memory UsageStats.
package scorer

import (
	"sync"

	"github.com/louloulin/agentmem/internal/domain"
	"go.uber.org/zap"
)

// Scorer computes ImportanceFactors and owns the UsageStats ledger.
// It is the fourth lock in the fixed acquisition order store ->
// hierarchy_manager -> strategy -> scorer -> cache (spec §5).
type Scorer struct {
	mu      sync.RWMutex
	cfg     Config
	weights Weights
	usage   map[string]*domain.UsageStats
	logger  *zap.Logger
}

func New(cfg Config, logger *zap.Logger) *Scorer {
	return &Scorer{
		cfg:     cfg,
		weights: cfg.Weights.Normalize(),
		usage:   make(map[string]*domain.UsageStats),
		logger:  logger,
	}
}

// Weights returns a snapshot of the current adaptive weight vector
// (P6: always sums to 1.0 ± 1e-6).
func (s *Scorer) Weights() Weights {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.weights
}

// usageFor returns (creating if absent) the UsageStats for memoryID.
func (s *Scorer) usageFor(memoryID string, createdAt func() domain.UsageStats) *domain.UsageStats {
	if u, ok := s.usage[memoryID]; ok {
		return u
	}
	u := createdAt()
	s.usage[memoryID] = &u
	return &u
}

// RecordAccess applies an access event to a memory's UsageStats,
// idempotent per eventID (L3). kind selects which counter advances.
func (s *Scorer) RecordAccess(m *domain.MemoryRecord, eventID string, kind domain.AccessType, at domain.ScoringContext) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.usage[m.ID]
	if !ok {
		u = domain.NewUsageStats(m.ID, m.CreatedAt)
		s.usage[m.ID] = u
	}
	return u.Apply(eventID, kind, at.Now)
}

// Usage returns a copy of the current usage stats for a memory,
// creating a fresh ledger seeded from the record if none exists yet.
func (s *Scorer) Usage(m *domain.MemoryRecord) domain.UsageStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.usage[m.ID]
	if !ok {
		u = domain.NewUsageStats(m.ID, m.CreatedAt)
		s.usage[m.ID] = u
	}
	return *u
}

// Score computes the composite importance score and its factor
// breakdown for m under ctx (spec §4.3). When the scorer's dynamic
// weight adaptation is enabled, it also shifts and renormalizes the
// shared weight vector (P6).
func (s *Scorer) Score(m *domain.MemoryRecord, ctx domain.ScoringContext) ImportanceFactors {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.usage[m.ID]
	if !ok {
		u = domain.NewUsageStats(m.ID, m.CreatedAt)
		s.usage[m.ID] = u
	}

	factors := ImportanceFactors{
		Recency:      computeRecency(m, ctx.Now),
		Frequency:    computeFrequency(u.AccessesPerDay(ctx.Now)),
		Relevance:    computeRelevance(m, ctx),
		Emotional:    computeEmotional(m, u, ctx),
		Context:      computeContext(m, u, ctx),
		Interaction:  computeInteraction(u),
		CalculatedAt: ctx.Now,
	}

	w := s.weights
	composite := factors.Recency*w.Recency + factors.Frequency*w.Frequency +
		factors.Relevance*w.Relevance + factors.Emotional*w.Emotional +
		factors.Context*w.Context + factors.Interaction*w.Interaction

	if composite < s.cfg.MinScoreThreshold {
		composite = s.cfg.MinScoreThreshold
	}
	if composite > s.cfg.MaxScoreCap {
		composite = s.cfg.MaxScoreCap
	}
	factors.Composite = composite

	if s.cfg.EnableDynamicWeights {
		s.weights = adaptWeights(s.weights, m.Importance, s.cfg.LearningRate)
	}

	return factors
}

// biasFor returns the fixed additive shift per factor for an
// importance level (spec §4.6: "Critical->boost recency+emotional;
// High->boost relevance+frequency; Medium->boost context+interaction;
// Low->balanced small boost").
func biasFor(importance domain.Importance) Weights {
	switch importance {
	case domain.ImportanceCritical:
		return Weights{Recency: 1, Emotional: 1}
	case domain.ImportanceHigh:
		return Weights{Relevance: 1, Frequency: 1}
	case domain.ImportanceMedium:
		return Weights{Context: 1, Interaction: 1}
	default:
		return Weights{Recency: 0.5, Frequency: 0.5, Relevance: 0.5, Emotional: 0.5, Context: 0.5, Interaction: 0.5}
	}
}

// adaptWeights shifts weights by learningRate*bias and renormalizes,
// capping learningRate at 0.1 to prevent oscillation (spec §9).
func adaptWeights(w Weights, importance domain.Importance, learningRate float64) Weights {
	if learningRate > 0.1 {
		learningRate = 0.1
	}
	bias := biasFor(importance)
	shifted := Weights{
		Recency:     w.Recency + learningRate*bias.Recency,
		Frequency:   w.Frequency + learningRate*bias.Frequency,
		Relevance:   w.Relevance + learningRate*bias.Relevance,
		Emotional:   w.Emotional + learningRate*bias.Emotional,
		Context:     w.Context + learningRate*bias.Context,
		Interaction: w.Interaction + learningRate*bias.Interaction,
	}
	return shifted.Normalize()
}
