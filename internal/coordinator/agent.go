package coordinator

import (
	"sync"
	"time"
)

// AgentStatus is the spec §4.9 registered-agent health/load snapshot.
type AgentStatus struct {
	AgentID         string
	IsHealthy       bool
	CurrentLoad     int
	MaxCapacity     int
	LastHealthCheck time.Time
	TotalProcessed  int64
	AvgExecutionTime time.Duration
}

// agentRecord is the registry's internal bookkeeping for one agent.
type agentRecord struct {
	mu          sync.Mutex
	status      AgentStatus
	memoryTypes map[string]bool
	inbox       chan Message
	totalExecNs int64
}

// Registry tracks registered agents and their declared memory types.
type Registry struct {
	mu     sync.RWMutex
	agents map[string]*agentRecord
}

func NewRegistry() *Registry {
	return &Registry{agents: make(map[string]*agentRecord)}
}

// Register allocates an inbound channel and initial AgentStatus for an
// agent serving memoryTypes, per spec §4.9 "agent registry".
func (r *Registry) Register(agentID string, memoryTypes []string, maxCapacity int, now time.Time) <-chan Message {
	r.mu.Lock()
	defer r.mu.Unlock()

	types := make(map[string]bool, len(memoryTypes))
	for _, t := range memoryTypes {
		types[t] = true
	}

	rec := &agentRecord{
		status: AgentStatus{
			AgentID:         agentID,
			IsHealthy:       true,
			MaxCapacity:     maxCapacity,
			LastHealthCheck: now,
		},
		memoryTypes: types,
		inbox:       make(chan Message, maxCapacity),
	}
	r.agents[agentID] = rec
	return rec.inbox
}

// Deregister removes an agent from the registry.
func (r *Registry) Deregister(agentID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.agents, agentID)
}

// CandidatesFor returns agents serving memoryType, healthy and under
// capacity (spec §4.9 dispatch step 1).
func (r *Registry) CandidatesFor(memoryType string) []*agentRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*agentRecord
	for _, rec := range r.agents {
		rec.mu.Lock()
		ok := rec.memoryTypes[memoryType] && rec.status.IsHealthy && rec.status.CurrentLoad < rec.status.MaxCapacity
		rec.mu.Unlock()
		if ok {
			out = append(out, rec)
		}
	}
	return out
}

// Status returns a snapshot of a single agent's status.
func (r *Registry) Status(agentID string) (AgentStatus, bool) {
	r.mu.RLock()
	rec, ok := r.agents[agentID]
	r.mu.RUnlock()
	if !ok {
		return AgentStatus{}, false
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.status, true
}

// AllStatuses returns a snapshot of every registered agent's status.
func (r *Registry) AllStatuses() []AgentStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]AgentStatus, 0, len(r.agents))
	for _, rec := range r.agents {
		rec.mu.Lock()
		out = append(out, rec.status)
		rec.mu.Unlock()
	}
	return out
}

// SetHealthy updates an agent's health flag, as driven by periodic
// health checks (spec §4.9).
func (r *Registry) SetHealthy(agentID string, healthy bool, now time.Time) {
	r.mu.RLock()
	rec, ok := r.agents[agentID]
	r.mu.RUnlock()
	if !ok {
		return
	}
	rec.mu.Lock()
	rec.status.IsHealthy = healthy
	rec.status.LastHealthCheck = now
	rec.mu.Unlock()
}

func (rec *agentRecord) incrementLoad() {
	rec.mu.Lock()
	rec.status.CurrentLoad++
	rec.mu.Unlock()
}

func (rec *agentRecord) decrementLoad() {
	rec.mu.Lock()
	if rec.status.CurrentLoad > 0 {
		rec.status.CurrentLoad--
	}
	rec.mu.Unlock()
}

func (rec *agentRecord) recordCompletion(execTime time.Duration) {
	rec.mu.Lock()
	rec.status.TotalProcessed++
	rec.totalExecNs += execTime.Nanoseconds()
	rec.status.AvgExecutionTime = time.Duration(rec.totalExecNs / rec.status.TotalProcessed)
	rec.mu.Unlock()
}
