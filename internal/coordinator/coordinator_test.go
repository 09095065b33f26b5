package coordinator

import (
	"context"
	"testing"
	"time"

	"github.com/louloulin/agentmem/internal/apperr"
	"github.com/louloulin/agentmem/internal/clock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newCoordinator(t *testing.T, cfg Config) (*Coordinator, *clock.Fixed) {
	t.Helper()
	fc := clock.NewFixed(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	return New(cfg, fc, clock.NewSequential("task"), zap.NewNop()), fc
}

func TestExecute_NoAvailableAgents(t *testing.T) {
	c, _ := newCoordinator(t, DefaultConfig())
	_, err := c.Execute(context.Background(), Task{MemoryType: "episodic"}, func(ctx context.Context, task Task) (Response, error) {
		return Response{}, nil
	})
	require.ErrorIs(t, err, apperr.ErrNoAvailableAgents)
}

func TestExecute_DispatchesToRegisteredAgent(t *testing.T) {
	c, _ := newCoordinator(t, DefaultConfig())
	c.RegisterAgent("agent-1", []string{"episodic"}, 5)

	resp, err := c.Execute(context.Background(), Task{ID: "t1", MemoryType: "episodic"}, func(ctx context.Context, task Task) (Response, error) {
		return Response{TaskID: task.ID, Payload: "ok"}, nil
	})
	require.NoError(t, err)
	require.Equal(t, "ok", resp.Payload)

	stats := c.Stats()
	require.Equal(t, int64(1), stats.TotalSucceeded)
	require.Equal(t, int64(1), stats.PerTypeCount["episodic"])
}

func TestExecute_TimesOut(t *testing.T) {
	c, _ := newCoordinator(t, DefaultConfig())
	c.RegisterAgent("agent-1", []string{"episodic"}, 5)

	_, err := c.Execute(context.Background(), Task{ID: "t1", MemoryType: "episodic", Timeout: 10 * time.Millisecond}, func(ctx context.Context, task Task) (Response, error) {
		time.Sleep(50 * time.Millisecond)
		return Response{TaskID: task.ID}, nil
	})
	require.ErrorIs(t, err, apperr.ErrTaskTimeout)

	status, ok := c.AgentStatus("agent-1")
	require.True(t, ok)
	require.Equal(t, 0, status.CurrentLoad, "load must be decremented after timeout")
}

func TestRunHealthChecks_UpdatesStatus(t *testing.T) {
	c, _ := newCoordinator(t, DefaultConfig())
	c.RegisterAgent("agent-1", []string{"episodic"}, 5)
	c.RegisterAgent("agent-2", []string{"semantic"}, 5)

	err := c.RunHealthChecks(context.Background(), func(ctx context.Context, agentID string) bool {
		return agentID == "agent-1"
	})
	require.NoError(t, err)

	s1, _ := c.AgentStatus("agent-1")
	s2, _ := c.AgentStatus("agent-2")
	require.True(t, s1.IsHealthy)
	require.False(t, s2.IsHealthy)
}

func TestLoadBalancer_LeastLoaded_PicksLowerLoad(t *testing.T) {
	c, _ := newCoordinator(t, Config{DefaultTimeout: time.Second, LoadBalancer: LeastLoaded})
	c.RegisterAgent("busy", []string{"episodic"}, 10)
	c.RegisterAgent("idle", []string{"episodic"}, 10)

	busy := c.registry.agents["busy"]
	busy.status.CurrentLoad = 5

	candidates := c.registry.CandidatesFor("episodic")
	chosen := selectAgent(LeastLoaded, candidates, &c.rr, "episodic")
	require.Equal(t, "idle", chosen.status.AgentID)
}
