// Package config loads the engine's configuration the way the
// teacher does: a .env file (plus an optional .env.secret sidecar)
// loaded via godotenv, then flat env vars read through typed getters.
// Load populates one aggregate Config covering every per-component
// block named in spec §6 (store, scorer, conflict, strategy,
// hierarchy, search, coordinator) plus the ambient server/log/db
// settings the teacher's own config.go exposes.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/louloulin/agentmem/internal/conflict"
	"github.com/louloulin/agentmem/internal/coordinator"
	"github.com/louloulin/agentmem/internal/domain"
	"github.com/louloulin/agentmem/internal/hierarchy"
	"github.com/louloulin/agentmem/internal/scorer"
	"github.com/louloulin/agentmem/internal/search"
	"github.com/louloulin/agentmem/internal/store"
	"github.com/louloulin/agentmem/internal/strategy"
)

// Config aggregates every component's configuration block.
type Config struct {
	ServerPort int
	LogLevel   string
	DatabaseURL string

	RateLimitRPS   float64
	RateLimitBurst int

	Store       store.Config
	Scorer      scorer.Config
	Conflict    conflict.Config
	Strategy    strategy.Config
	Hierarchy   hierarchy.Config
	Search      search.Config
	Coordinator coordinator.Config
}

// Load reads AGENTMEM_ENV (or .env by default), then the matching
// .secret sidecar if present, and returns the aggregate Config built
// from env vars layered over each component's DefaultConfig().
func Load() (Config, error) {
	envFile := os.Getenv("AGENTMEM_ENV")
	if envFile == "" {
		envFile = ".env"
	}
	_ = godotenv.Load(envFile)
	_ = godotenv.Load(envFile + ".secret")

	return Config{
		ServerPort:     intEnv("SERVER_PORT", 8080),
		LogLevel:       stringEnv("LOG_LEVEL", "info"),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		RateLimitRPS:   floatEnv("RATE_LIMIT_RPS", 100),
		RateLimitBurst: intEnv("RATE_LIMIT_BURST", 20),

		Store:       loadStoreConfig(),
		Scorer:      loadScorerConfig(),
		Conflict:    loadConflictConfig(),
		Strategy:    loadStrategyConfig(),
		Hierarchy:   loadHierarchyConfig(),
		Search:      loadSearchConfig(),
		Coordinator: loadCoordinatorConfig(),
	}, nil
}

func loadStoreConfig() store.Config {
	cfg := store.DefaultConfig()
	cfg.AutoResolveConflicts = boolEnv("STORE_AUTO_RESOLVE_CONFLICTS", cfg.AutoResolveConflicts)
	cfg.EnableInheritance = boolEnv("STORE_ENABLE_INHERITANCE", cfg.EnableInheritance)
	cfg.MaxMemoriesPerScopeLevel = intEnv("STORE_MAX_MEMORIES_PER_SCOPE_LEVEL", cfg.MaxMemoriesPerScopeLevel)
	cfg.InheritanceQualityThreshold = floatEnv("STORE_INHERITANCE_QUALITY_THRESHOLD", cfg.InheritanceQualityThreshold)
	cfg.EnableMemoryCompression = boolEnv("STORE_ENABLE_MEMORY_COMPRESSION", cfg.EnableMemoryCompression)
	cfg.MemoryAgingDays = intEnv("STORE_MEMORY_AGING_DAYS", cfg.MemoryAgingDays)
	if s := os.Getenv("STORE_DEFAULT_CONFLICT_STRATEGY"); s != "" {
		cfg.DefaultConflictStrategy = parseConflictStrategy(s, cfg.DefaultConflictStrategy)
	}
	return cfg
}

func loadScorerConfig() scorer.Config {
	cfg := scorer.DefaultConfig()
	cfg.EnableDynamicWeights = boolEnv("SCORER_ENABLE_DYNAMIC_WEIGHTS", cfg.EnableDynamicWeights)
	cfg.LearningRate = floatEnv("SCORER_LEARNING_RATE", cfg.LearningRate)
	cfg.MinScoreThreshold = floatEnv("SCORER_MIN_SCORE_THRESHOLD", cfg.MinScoreThreshold)
	cfg.MaxScoreCap = floatEnv("SCORER_MAX_SCORE_CAP", cfg.MaxScoreCap)
	cfg.Weights.Recency = floatEnv("SCORER_WEIGHT_RECENCY", cfg.Weights.Recency)
	cfg.Weights.Frequency = floatEnv("SCORER_WEIGHT_FREQUENCY", cfg.Weights.Frequency)
	cfg.Weights.Relevance = floatEnv("SCORER_WEIGHT_RELEVANCE", cfg.Weights.Relevance)
	cfg.Weights.Emotional = floatEnv("SCORER_WEIGHT_EMOTIONAL", cfg.Weights.Emotional)
	cfg.Weights.Context = floatEnv("SCORER_WEIGHT_CONTEXT", cfg.Weights.Context)
	cfg.Weights.Interaction = floatEnv("SCORER_WEIGHT_INTERACTION", cfg.Weights.Interaction)
	cfg.Weights = cfg.Weights.Normalize()
	return cfg
}

func loadConflictConfig() conflict.Config {
	cfg := conflict.DefaultConfig()
	cfg.DetectionThreshold = durationEnv("CONFLICT_DETECTION_THRESHOLD", cfg.DetectionThreshold)
	cfg.SimilarityThreshold = floatEnv("CONFLICT_SIMILARITY_THRESHOLD", cfg.SimilarityThreshold)
	cfg.AuditCacheCapacity = intEnv("CONFLICT_AUDIT_CACHE_CAPACITY", cfg.AuditCacheCapacity)
	return cfg
}

func loadStrategyConfig() strategy.Config {
	cfg := strategy.DefaultConfig()
	cfg.PerformanceThreshold = floatEnv("STRATEGY_PERFORMANCE_THRESHOLD", cfg.PerformanceThreshold)
	cfg.SwitchMargin = floatEnv("STRATEGY_SWITCH_MARGIN", cfg.SwitchMargin)
	cfg.EnablePredictiveSelect = boolEnv("STRATEGY_ENABLE_PREDICTIVE_SELECT", cfg.EnablePredictiveSelect)
	return cfg
}

func loadHierarchyConfig() hierarchy.Config {
	cfg := hierarchy.DefaultConfig()
	cfg.MaxMemoriesPerNode = intEnv("HIERARCHY_MAX_MEMORIES_PER_NODE", cfg.MaxMemoriesPerNode)
	cfg.MaxHierarchyDepth = intEnv("HIERARCHY_MAX_DEPTH", cfg.MaxHierarchyDepth)
	cfg.RebalanceIntervalHours = intEnv("HIERARCHY_REBALANCE_INTERVAL_HOURS", cfg.RebalanceIntervalHours)
	cfg.EnableCompression = boolEnv("HIERARCHY_ENABLE_COMPRESSION", cfg.EnableCompression)
	cfg.CompressionThreshold = floatEnv("HIERARCHY_COMPRESSION_THRESHOLD", cfg.CompressionThreshold)
	return cfg
}

func loadSearchConfig() search.Config {
	cfg := search.DefaultConfig()
	cfg.CacheTTLSeconds = intEnv("SEARCH_CACHE_TTL_SECONDS", cfg.CacheTTLSeconds)
	cfg.CacheCapacity = intEnv("SEARCH_CACHE_CAPACITY", cfg.CacheCapacity)
	cfg.FuzzyThreshold = floatEnv("SEARCH_FUZZY_THRESHOLD", cfg.FuzzyThreshold)
	cfg.SemanticThreshold = floatEnv("SEARCH_SEMANTIC_THRESHOLD", cfg.SemanticThreshold)
	cfg.MaxResults = intEnv("SEARCH_MAX_RESULTS", cfg.MaxResults)
	cfg.SnippetWindowBefore = intEnv("SEARCH_SNIPPET_WINDOW_BEFORE", cfg.SnippetWindowBefore)
	cfg.SnippetWindowAfter = intEnv("SEARCH_SNIPPET_WINDOW_AFTER", cfg.SnippetWindowAfter)
	return cfg
}

func loadCoordinatorConfig() coordinator.Config {
	cfg := coordinator.DefaultConfig()
	cfg.DefaultTimeout = durationEnv("COORDINATOR_DEFAULT_TIMEOUT", cfg.DefaultTimeout)
	cfg.MaxRetryAttempts = intEnv("COORDINATOR_MAX_RETRY_ATTEMPTS", cfg.MaxRetryAttempts)
	cfg.HealthCheckInterval = durationEnv("COORDINATOR_HEALTH_CHECK_INTERVAL", cfg.HealthCheckInterval)
	if s := os.Getenv("COORDINATOR_LOAD_BALANCER"); s != "" {
		cfg.LoadBalancer = parseLoadBalancer(s, cfg.LoadBalancer)
	}
	return cfg
}

func parseConflictStrategy(s string, fallback domain.ConflictStrategy) domain.ConflictStrategy {
	switch s {
	case "time_based_newest":
		return domain.ConflictTimeBasedNewest
	case "importance_based":
		return domain.ConflictImportanceBased
	case "source_reliability_based":
		return domain.ConflictSourceReliabilityBased
	case "semantic_merge":
		return domain.ConflictSemanticMerge
	case "keep_both":
		return domain.ConflictKeepBoth
	default:
		return fallback
	}
}

func parseLoadBalancer(s string, fallback coordinator.LoadBalancer) coordinator.LoadBalancer {
	switch s {
	case "round_robin":
		return coordinator.RoundRobin
	case "least_loaded":
		return coordinator.LeastLoaded
	case "specialization_based":
		return coordinator.SpecializationBased
	default:
		return fallback
	}
}

func stringEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func intEnv(key string, fallback int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}

func floatEnv(key string, fallback float64) float64 {
	v, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil {
		return fallback
	}
	return v
}

func boolEnv(key string, fallback bool) bool {
	v, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}

func durationEnv(key string, fallback time.Duration) time.Duration {
	v, err := time.ParseDuration(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}
