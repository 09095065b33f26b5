package retrieval

import (
	"sort"
	"sync"

	"github.com/louloulin/agentmem/internal/domain"
)

// RequestFeatures is the derived feature vector of spec §4.8 step 1.
type RequestFeatures struct {
	QueryLength              int
	HasContext               bool
	TopicCount               int
	PrimaryTopicCategory     TopicCategory
	HasPreferredStrategy     bool
	TargetMemoryTypesSpecified bool
}

// Request is a retrieval request (GLOSSARY "Request").
type Request struct {
	Query              string
	Context            *domain.ScoringContext
	PreferredStrategy  *domain.RetrievalStrategy
	TargetMemoryTypes  []domain.MemoryType
}

// PerformanceEstimate is the rolling-history-derived estimate of spec
// §4.8 step 4, with the spec's defaults when no history exists.
type PerformanceEstimate struct {
	LatencyMs float64
	Accuracy  float64
	Recall    float64
}

func defaultPerformanceEstimate() PerformanceEstimate {
	return PerformanceEstimate{LatencyMs: 100, Accuracy: 0.8, Recall: 0.7}
}

// RouteDecision is the RetrievalRouter.route() result (spec §4.8).
type RouteDecision struct {
	Selected             []domain.RetrievalStrategy
	MemoryTypes          []domain.MemoryType
	Weights              map[domain.RetrievalStrategy]float64
	Confidence           float64
	Reasoning            []string
	EstimatedPerformance PerformanceEstimate
}

// topicStrategyMap is the topic-category -> preferred strategies table
// consulted when no caller preference is given (spec §4.8 step 2).
var topicStrategyMap = map[TopicCategory][]domain.RetrievalStrategy{
	CategoryTechnical:   {domain.RetrievalEmbedding, domain.RetrievalBM25},
	CategoryBusiness:    {domain.RetrievalHybrid, domain.RetrievalBM25},
	CategoryPersonal:    {domain.RetrievalContextAware, domain.RetrievalFuzzyMatch},
	CategoryOperational: {domain.RetrievalTemporal, domain.RetrievalContextAware},
}

var defaultStrategies = []domain.RetrievalStrategy{domain.RetrievalHybrid, domain.RetrievalBM25}

const maxSelectedStrategies = 3

// Router owns adaptive per-strategy weights and rolling performance
// history used to estimate future requests.
type Router struct {
	mu              sync.RWMutex
	adaptiveWeights map[domain.RetrievalStrategy]float64
	history         map[domain.RetrievalStrategy][]PerformanceEstimate
}

func NewRouter() *Router {
	r := &Router{
		adaptiveWeights: make(map[domain.RetrievalStrategy]float64),
		history:         make(map[domain.RetrievalStrategy][]PerformanceEstimate),
	}
	for _, s := range domain.AllRetrievalStrategies() {
		r.adaptiveWeights[s] = s.Weight()
	}
	return r
}

// RecordPerformance folds an observed estimate into s's rolling
// history, bounded to the most recent 100 samples.
func (r *Router) RecordPerformance(s domain.RetrievalStrategy, est PerformanceEstimate) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h := append(r.history[s], est)
	if len(h) > 100 {
		h = h[len(h)-100:]
	}
	r.history[s] = h
}

// Route implements spec §4.8 RetrievalRouter: derive features, select
// strategies, compute normalized adaptive weights, estimate
// performance, return a RouteDecision.
func (r *Router) Route(req Request, topics []ExtractedTopic) RouteDecision {
	r.mu.RLock()
	defer r.mu.RUnlock()

	features := deriveFeatures(req, topics)
	var reasoning []string

	selected := r.selectStrategies(req, topics, &reasoning)
	weights := r.normalizedWeights(selected)

	confidence := 0.5
	if features.HasPreferredStrategy {
		confidence = 0.9
	} else if features.TopicCount > 0 {
		confidence = 0.75
	}

	return RouteDecision{
		Selected:             selected,
		MemoryTypes:          req.TargetMemoryTypes,
		Weights:              weights,
		Confidence:           confidence,
		Reasoning:            reasoning,
		EstimatedPerformance: r.estimatePerformance(selected),
	}
}

func deriveFeatures(req Request, topics []ExtractedTopic) RequestFeatures {
	f := RequestFeatures{
		QueryLength:                len(req.Query),
		HasContext:                 req.Context != nil,
		TopicCount:                 len(topics),
		HasPreferredStrategy:       req.PreferredStrategy != nil,
		TargetMemoryTypesSpecified: len(req.TargetMemoryTypes) > 0,
	}
	if len(topics) > 0 {
		f.PrimaryTopicCategory = topics[0].Category
	}
	return f
}

func (r *Router) selectStrategies(req Request, topics []ExtractedTopic, reasoning *[]string) []domain.RetrievalStrategy {
	var chosen []domain.RetrievalStrategy
	seen := make(map[domain.RetrievalStrategy]bool)

	add := func(s domain.RetrievalStrategy) {
		if !seen[s] && len(chosen) < maxSelectedStrategies {
			chosen = append(chosen, s)
			seen[s] = true
		}
	}

	if req.PreferredStrategy != nil {
		*reasoning = append(*reasoning, "caller-preferred strategy honored")
		add(*req.PreferredStrategy)
	}

	if len(topics) > 0 {
		if mapped, ok := topicStrategyMap[topics[0].Category]; ok {
			*reasoning = append(*reasoning, "primary topic category "+topics[0].Category.String()+" mapped to strategies")
			for _, s := range mapped {
				add(s)
			}
		}
	}

	if len(chosen) == 0 {
		*reasoning = append(*reasoning, "no preference or topic mapping; using default strategies")
		for _, s := range defaultStrategies {
			add(s)
		}
	}
	return chosen
}

func (r *Router) normalizedWeights(selected []domain.RetrievalStrategy) map[domain.RetrievalStrategy]float64 {
	var sum float64
	for _, s := range selected {
		sum += r.adaptiveWeights[s]
	}
	out := make(map[domain.RetrievalStrategy]float64, len(selected))
	if sum <= 0 {
		return out
	}
	for _, s := range selected {
		out[s] = r.adaptiveWeights[s] / sum
	}
	return out
}

func (r *Router) estimatePerformance(selected []domain.RetrievalStrategy) PerformanceEstimate {
	var samples []PerformanceEstimate
	for _, s := range selected {
		samples = append(samples, r.history[s]...)
	}
	if len(samples) == 0 {
		return defaultPerformanceEstimate()
	}

	var latency, accuracy, recall float64
	for _, s := range samples {
		latency += s.LatencyMs
		accuracy += s.Accuracy
		recall += s.Recall
	}
	n := float64(len(samples))
	return PerformanceEstimate{LatencyMs: latency / n, Accuracy: accuracy / n, Recall: recall / n}
}

// sortByRelevance is shared by ContextSynthesizer (§4.8 step 1) to
// order retrieved memories by relevance descending.
func sortByRelevance(records []*domain.MemoryRecord, relevance map[string]float64) {
	sort.SliceStable(records, func(i, j int) bool {
		return relevance[records[i].ID] > relevance[records[j].ID]
	})
}
