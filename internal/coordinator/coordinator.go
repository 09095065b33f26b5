package coordinator

import (
	"context"
	"sync"
	"time"

	"github.com/louloulin/agentmem/internal/apperr"
	"github.com/louloulin/agentmem/internal/clock"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Config is the coordinator.* configuration block of spec §6.
type Config struct {
	DefaultTimeout    time.Duration
	MaxRetryAttempts  int
	LoadBalancer      LoadBalancer
	HealthCheckInterval time.Duration
}

func DefaultConfig() Config {
	return Config{
		DefaultTimeout:      5 * time.Second,
		MaxRetryAttempts:    3,
		LoadBalancer:        LeastLoaded,
		HealthCheckInterval: 30 * time.Second,
	}
}

// CoordinationStats tracks dispatch outcomes (spec §4.9 step 5).
type CoordinationStats struct {
	TotalDispatched   int64
	TotalSucceeded    int64
	TotalFailed       int64
	PerTypeCount      map[string]int64
	AvgExecutionTime  time.Duration
	totalExecNs       int64
}

// Coordinator is the MetaCoordinator: agent registry, task dispatch,
// and background health checks. It runs background workers with the
// ticker + stopCh + sync.WaitGroup shape the teacher uses for its
// consolidation/decay services.
type Coordinator struct {
	cfg      Config
	registry *Registry
	clock    clock.Clock
	idgen    clock.IdGen
	logger   *zap.Logger
	rr       roundRobinCounter

	mu    sync.Mutex
	stats CoordinationStats

	stopCh chan struct{}
	wg     sync.WaitGroup
}

func New(cfg Config, clk clock.Clock, ids clock.IdGen, logger *zap.Logger) *Coordinator {
	return &Coordinator{
		cfg:      cfg,
		registry: NewRegistry(),
		clock:    clk,
		idgen:    ids,
		logger:   logger,
		stats:    CoordinationStats{PerTypeCount: make(map[string]int64)},
		stopCh:   make(chan struct{}),
	}
}

// RegisterAgent implements spec §4.9 agent registration.
func (c *Coordinator) RegisterAgent(agentID string, memoryTypes []string, maxCapacity int) <-chan Message {
	return c.registry.Register(agentID, memoryTypes, maxCapacity, c.clock.Now())
}

// AgentStatus returns the current status of a registered agent.
func (c *Coordinator) AgentStatus(agentID string) (AgentStatus, bool) {
	return c.registry.Status(agentID)
}

// AllAgentStatuses returns every registered agent's current status
// (spec §6 agent_status() with no id given).
func (c *Coordinator) AllAgentStatuses() []AgentStatus {
	return c.registry.AllStatuses()
}

// Execute implements spec §4.9 task dispatch: select an agent,
// apply the load balancer, hand the task to the reply callback, await
// its response (or timeout), and update CoordinationStats. Nothing is
// written to the selected agent's registered inbox channel.
func (c *Coordinator) Execute(ctx context.Context, task Task, reply func(ctx context.Context, task Task) (Response, error)) (Response, error) {
	candidates := c.registry.CandidatesFor(task.MemoryType)
	if len(candidates) == 0 {
		return Response{}, apperr.ErrNoAvailableAgents
	}

	agent := selectAgent(c.cfg.LoadBalancer, candidates, &c.rr, task.MemoryType)
	agent.incrementLoad()
	defer agent.decrementLoad()

	timeout := task.Timeout
	if timeout <= 0 {
		timeout = c.cfg.DefaultTimeout
	}
	dispatchCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := c.clock.Now()
	respCh := make(chan Response, 1)
	errCh := make(chan error, 1)

	go func() {
		resp, err := reply(dispatchCtx, task)
		if err != nil {
			errCh <- err
			return
		}
		respCh <- resp
	}()

	select {
	case <-dispatchCtx.Done():
		c.recordDispatch(task.MemoryType, false, 0)
		return Response{}, apperr.ErrTaskTimeout
	case err := <-errCh:
		c.recordDispatch(task.MemoryType, false, 0)
		return Response{}, err
	case resp := <-respCh:
		elapsed := c.clock.Now().Sub(start)
		agent.recordCompletion(elapsed)
		c.recordDispatch(task.MemoryType, true, elapsed)
		return resp, nil
	}
}

func (c *Coordinator) recordDispatch(memoryType string, success bool, elapsed time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stats.TotalDispatched++
	c.stats.PerTypeCount[memoryType]++
	if success {
		c.stats.TotalSucceeded++
		c.stats.totalExecNs += elapsed.Nanoseconds()
		c.stats.AvgExecutionTime = time.Duration(c.stats.totalExecNs / c.stats.TotalSucceeded)
	} else {
		c.stats.TotalFailed++
	}
}

// Stats returns a snapshot of the running coordination statistics.
func (c *Coordinator) Stats() CoordinationStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := c.stats
	cp.PerTypeCount = make(map[string]int64, len(c.stats.PerTypeCount))
	for k, v := range c.stats.PerTypeCount {
		cp.PerTypeCount[k] = v
	}
	return cp
}

// HealthCheckFunc probes a single agent and reports whether it's
// healthy.
type HealthCheckFunc func(ctx context.Context, agentID string) bool

// RunHealthChecks fans out a HealthCheckFunc across every registered
// agent concurrently via errgroup, updating each agent's status.
func (c *Coordinator) RunHealthChecks(ctx context.Context, check HealthCheckFunc) error {
	statuses := c.registry.AllStatuses()
	g, gctx := errgroup.WithContext(ctx)

	for _, st := range statuses {
		agentID := st.AgentID
		g.Go(func() error {
			healthy := check(gctx, agentID)
			c.registry.SetHealthy(agentID, healthy, c.clock.Now())
			return nil
		})
	}
	return g.Wait()
}

// Start begins the background health-check worker.
func (c *Coordinator) Start(check HealthCheckFunc) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(c.cfg.HealthCheckInterval)
		defer ticker.Stop()

		c.logger.Info("coordinator health-check worker started", zap.Duration("interval", c.cfg.HealthCheckInterval))
		for {
			select {
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), c.cfg.HealthCheckInterval)
				if err := c.RunHealthChecks(ctx, check); err != nil {
					c.logger.Warn("health check round failed", zap.Error(err))
				}
				cancel()
			case <-c.stopCh:
				c.logger.Info("coordinator health-check worker stopped")
				return
			}
		}
	}()
}

// Stop halts the background health-check worker.
func (c *Coordinator) Stop() {
	close(c.stopCh)
	c.wg.Wait()
}
