package coordinator

import "sync/atomic"

// LoadBalancer selects one of several candidate agents for dispatch
// (spec §4.9 dispatch step 2).
type LoadBalancer int

const (
	RoundRobin LoadBalancer = iota
	LeastLoaded
	SpecializationBased
)

func (l LoadBalancer) String() string {
	switch l {
	case RoundRobin:
		return "round_robin"
	case LeastLoaded:
		return "least_loaded"
	case SpecializationBased:
		return "specialization_based"
	default:
		return "unknown"
	}
}

// roundRobinCounter is shared across memory types; each selection
// advances it, so distribution is fair over the dispatcher's lifetime
// rather than reset per memory type.
type roundRobinCounter struct {
	n uint64
}

func (c *roundRobinCounter) next(count int) int {
	if count == 0 {
		return 0
	}
	i := atomic.AddUint64(&c.n, 1)
	return int(i % uint64(count))
}

// selectAgent applies lb to candidates and returns the chosen one.
// SpecializationBased breaks ties toward the agent serving the fewest
// other memory types (the narrowest specialist for this request).
func selectAgent(lb LoadBalancer, candidates []*agentRecord, rr *roundRobinCounter, memoryType string) *agentRecord {
	if len(candidates) == 0 {
		return nil
	}

	switch lb {
	case RoundRobin:
		return candidates[rr.next(len(candidates))]

	case LeastLoaded:
		best := candidates[0]
		bestLoad := loadOf(best)
		for _, c := range candidates[1:] {
			if l := loadOf(c); l < bestLoad {
				best, bestLoad = c, l
			}
		}
		return best

	case SpecializationBased:
		best := candidates[0]
		bestBreadth := len(best.memoryTypes)
		for _, c := range candidates[1:] {
			if len(c.memoryTypes) < bestBreadth {
				best, bestBreadth = c, len(c.memoryTypes)
			}
		}
		return best

	default:
		return candidates[0]
	}
}

func loadOf(rec *agentRecord) int {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.status.CurrentLoad
}
