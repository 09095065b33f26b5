// Package strategy implements AdaptiveStrategy (spec §4.6): maps
// context patterns to one of six MemoryStrategy parameter bundles,
// adapts when performance degrades, and supplies the scorer's weight
// bias rules.
package strategy

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/louloulin/agentmem/internal/clock"
	"github.com/louloulin/agentmem/internal/domain"
	"go.uber.org/zap"
)

const patternConfidence = 0.8

// RequestPattern is the recommend() context pattern of spec §4.6:
// (user_type, task_category, hour, load, interaction_frequency).
// It is distinct from domain.ContextPattern, which tracks co-occurring
// ContextInfo types rather than this scheduling-shaped signature.
type RequestPattern struct {
	UserType             string
	TaskCategory         string
	Hour                 int
	Load                 float64
	InteractionFrequency float64
}

// Key returns a stable identity for a known pattern->strategy binding.
func (p RequestPattern) Key() string {
	return fmt.Sprintf("%s|%s|%d", p.UserType, p.TaskCategory, p.Hour)
}

// Config is the strategy.* configuration block of spec §6.
type Config struct {
	PerformanceThreshold   float64
	SwitchMargin           float64
	EnablePredictiveSelect bool
}

func DefaultConfig() Config {
	return Config{
		PerformanceThreshold:   0.6,
		SwitchMargin:           0.1,
		EnablePredictiveSelect: true,
	}
}

// Recommendation is the recommend() result of spec §4.6.
type Recommendation struct {
	Strategy     domain.MemoryStrategy
	Confidence   float64
	Reasoning    string
	Alternatives []domain.MemoryStrategy
}

// Transition records an adaptation switch for audit/logging.
type Transition struct {
	From   domain.MemoryStrategy
	To     domain.MemoryStrategy
	Reason string
	At     time.Time
}

// Manager owns current strategy, per-context_pattern preferences, and
// rolling StrategyPerformance, and is the third lock in the fixed
// acquisition order store -> hierarchy_manager -> strategy -> scorer
// -> cache (spec §5).
type Manager struct {
	mu          sync.RWMutex
	cfg         Config
	clock       clock.Clock
	logger      *zap.Logger
	current     domain.MemoryStrategy
	patternMap  map[string]domain.MemoryStrategy
	performance map[domain.MemoryStrategy]*domain.StrategyPerformance
	transitions []Transition
}

func New(cfg Config, clk clock.Clock, logger *zap.Logger) *Manager {
	m := &Manager{
		cfg:         cfg,
		clock:       clk,
		logger:      logger,
		current:     domain.StrategyBalanced,
		patternMap:  make(map[string]domain.MemoryStrategy),
		performance: make(map[domain.MemoryStrategy]*domain.StrategyPerformance),
	}
	for _, s := range domain.AllMemoryStrategies() {
		m.performance[s] = &domain.StrategyPerformance{Strategy: s, SuccessRate: 0.5, LastUpdated: clk.Now()}
	}
	return m
}

// Current returns the active strategy and its parameter bundle.
func (m *Manager) Current() (domain.MemoryStrategy, domain.StrategyParams) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current, m.current.Params()
}

// BindPattern registers a known mapping from a context pattern to a
// strategy (spec §4.6 step 2).
func (m *Manager) BindPattern(pattern RequestPattern, s domain.MemoryStrategy) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.patternMap[pattern.Key()] = s
}

// RecordPerformance folds a fresh observation into the rolling
// StrategyPerformance average for s (spec §4.6 step 1).
func (m *Manager) RecordPerformance(s domain.MemoryStrategy, perf domain.StrategyPerformance) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.performance[s]
	if !ok {
		cur = &domain.StrategyPerformance{Strategy: s}
		m.performance[s] = cur
	}
	n := float64(cur.SampleCount)
	cur.SuccessRate = ewmaBlend(cur.SuccessRate, perf.SuccessRate, n)
	cur.MemoryEfficiency = ewmaBlend(cur.MemoryEfficiency, perf.MemoryEfficiency, n)
	cur.UserSatisfaction = ewmaBlend(cur.UserSatisfaction, perf.UserSatisfaction, n)
	cur.ConflictResolutionRate = ewmaBlend(cur.ConflictResolutionRate, perf.ConflictResolutionRate, n)
	cur.AvgResponseTime = time.Duration((float64(cur.AvgResponseTime)*n + float64(perf.AvgResponseTime)) / (n + 1))
	cur.SampleCount++
	cur.LastUpdated = m.clock.Now()
}

func ewmaBlend(existing, fresh float64, sampleCount float64) float64 {
	if sampleCount == 0 {
		return fresh
	}
	return (existing*sampleCount + fresh) / (sampleCount + 1)
}

// Recommend implements spec §4.6 recommend(context, recent_performance?),
// the primary AdaptiveStrategy operation. When recentPerformance is
// non-nil it is folded into the current strategy's rolling average
// and may trigger an adaptation (spec §8 scenario S4) before the
// recommendation itself is computed, so callers observe the
// post-adaptation strategy rather than a stale one.
func (m *Manager) Recommend(pattern RequestPattern, recentPerformance *float64) Recommendation {
	if recentPerformance != nil {
		m.mu.RLock()
		cur := m.current
		m.mu.RUnlock()

		m.RecordPerformance(cur, domain.StrategyPerformance{SuccessRate: *recentPerformance})
		m.MaybeAdapt()
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if s, ok := m.patternMap[pattern.Key()]; ok {
		return Recommendation{
			Strategy:     s,
			Confidence:   patternConfidence,
			Reasoning:    fmt.Sprintf("context pattern %q has a known strategy binding", pattern.Key()),
			Alternatives: m.rankedExcluding(s),
		}
	}

	if m.cfg.EnablePredictiveSelect {
		best, bestScore := m.current, -1.0
		for s, perf := range m.performance {
			recencyWeight := math.Pow(0.5, m.clock.Now().Sub(perf.LastUpdated).Hours()/24)
			score := perf.SuccessRate * contextSimilarity(pattern) * recencyWeight
			if score > bestScore {
				best, bestScore = s, score
			}
		}
		return Recommendation{
			Strategy:     best,
			Confidence:   clamp01(bestScore),
			Reasoning:    "predictive selection from recency-weighted rolling performance",
			Alternatives: m.rankedExcluding(best),
		}
	}

	best, bestRate := m.current, -1.0
	for s, perf := range m.performance {
		if perf.SuccessRate > bestRate {
			best, bestRate = s, perf.SuccessRate
		}
	}
	return Recommendation{
		Strategy:     best,
		Confidence:   bestRate,
		Reasoning:    "highest observed success rate",
		Alternatives: m.rankedExcluding(best),
	}
}

// contextSimilarity is a bounded heuristic over load/interaction
// frequency; the spec leaves its exact shape to the implementor
// (§9), so this favors moderate load/interaction patterns, which the
// default strategy bundles are tuned for.
func contextSimilarity(p RequestPattern) float64 {
	loadFit := 1 - math.Abs(p.Load-0.5)
	interactionFit := 1 - math.Abs(p.InteractionFrequency-0.5)
	return clamp01((loadFit + interactionFit) / 2)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func (m *Manager) rankedExcluding(exclude domain.MemoryStrategy) []domain.MemoryStrategy {
	var out []domain.MemoryStrategy
	for _, s := range domain.AllMemoryStrategies() {
		if s != exclude {
			out = append(out, s)
		}
	}
	return out
}

// MaybeAdapt implements spec §4.6 adaptation: if the current
// strategy's success rate is below the performance threshold and
// another beats it by more than the switch margin, it switches and
// logs the transition.
func (m *Manager) MaybeAdapt() *Transition {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur := m.performance[m.current]
	if cur.SuccessRate >= m.cfg.PerformanceThreshold {
		return nil
	}

	var challenger domain.MemoryStrategy
	var challengerRate = -1.0
	for s, perf := range m.performance {
		if s == m.current {
			continue
		}
		if perf.SuccessRate > challengerRate {
			challenger, challengerRate = s, perf.SuccessRate
		}
	}

	if challengerRate-cur.SuccessRate <= m.cfg.SwitchMargin {
		return nil
	}

	t := Transition{
		From:   m.current,
		To:     challenger,
		Reason: fmt.Sprintf("success_rate %.3f below threshold %.3f; %s beats it by %.3f", cur.SuccessRate, m.cfg.PerformanceThreshold, challenger, challengerRate-cur.SuccessRate),
		At:     m.clock.Now(),
	}
	m.current = challenger
	m.transitions = append(m.transitions, t)

	m.logger.Info("strategy transitioned",
		zap.String("from", t.From.String()),
		zap.String("to", t.To.String()),
		zap.String("reason", t.Reason),
	)
	return &t
}

// Transitions returns a snapshot of every adaptation switch so far.
func (m *Manager) Transitions() []Transition {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Transition(nil), m.transitions...)
}
