package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/louloulin/agentmem/internal/coordinator"
	"github.com/louloulin/agentmem/internal/domain"
)

func TestLoad_FallsBackToDefaultsWithNoEnv(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 8080, cfg.ServerPort)
	require.Equal(t, "info", cfg.LogLevel)
	require.Equal(t, 1000, cfg.Store.MaxMemoriesPerScopeLevel)
	require.InDelta(t, 1.0, cfg.Scorer.Weights.Sum(), 1e-6)
}

func TestLoad_OverridesFromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("HIERARCHY_MAX_DEPTH", "4")
	t.Setenv("COORDINATOR_LOAD_BALANCER", "round_robin")
	t.Setenv("STORE_DEFAULT_CONFLICT_STRATEGY", "keep_both")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 9090, cfg.ServerPort)
	require.Equal(t, 4, cfg.Hierarchy.MaxHierarchyDepth)
	require.Equal(t, coordinator.RoundRobin, cfg.Coordinator.LoadBalancer)
	require.Equal(t, domain.ConflictKeepBoth, cfg.Store.DefaultConflictStrategy)
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"SERVER_PORT", "LOG_LEVEL", "DATABASE_URL", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST",
		"HIERARCHY_MAX_DEPTH", "COORDINATOR_LOAD_BALANCER", "STORE_DEFAULT_CONFLICT_STRATEGY",
		"AGENTMEM_ENV",
	} {
		orig, had := os.LookupEnv(key)
		os.Unsetenv(key)
		if had {
			t.Cleanup(func() { os.Setenv(key, orig) })
		}
	}
}
