// Package hierarchy implements HierarchyManager (spec §4.5): a tree of
// HierarchyNodes rooted at a synthetic node per MemoryLevel at Global
// scope, with placement, rebalancing, and a depth cap.
package hierarchy

import (
	"sort"
	"sync"
	"time"

	"github.com/louloulin/agentmem/internal/apperr"
	"github.com/louloulin/agentmem/internal/clock"
	"github.com/louloulin/agentmem/internal/domain"
	"go.uber.org/zap"
)

// RecordLookup lets the manager ask the store for a memory's creation
// time when splitting a node, without owning the store's data itself.
type RecordLookup interface {
	CreatedAt(memoryID string) (time.Time, bool)
}

// Manager owns the HierarchyNode tree. It is the second lock in the
// fixed acquisition order store -> hierarchy_manager -> strategy ->
// scorer -> cache (spec §5).
type Manager struct {
	mu     sync.RWMutex
	cfg    Config
	clock  clock.Clock
	idgen  clock.IdGen
	logger *zap.Logger

	nodes   map[string]*domain.HierarchyNode
	byScope map[scopeLevelKey][]string // scope+level -> node IDs, for split fan-out
	roots   map[domain.MemoryLevel]string
}

type scopeLevelKey struct {
	scope string
	level domain.MemoryLevel
}

func New(cfg Config, clk clock.Clock, ids clock.IdGen, logger *zap.Logger) *Manager {
	m := &Manager{
		cfg:     cfg,
		clock:   clk,
		idgen:   ids,
		logger:  logger,
		nodes:   make(map[string]*domain.HierarchyNode),
		byScope: make(map[scopeLevelKey][]string),
		roots:   make(map[domain.MemoryLevel]string),
	}
	for _, lvl := range []domain.MemoryLevel{domain.LevelStrategic, domain.LevelTactical, domain.LevelOperational, domain.LevelContextual} {
		root := m.createNodeLocked(domain.Global(), lvl, "", 0)
		m.roots[lvl] = root.ID
	}
	return m
}

func (m *Manager) createNodeLocked(scope domain.Scope, level domain.MemoryLevel, parentID string, depth int) *domain.HierarchyNode {
	n := &domain.HierarchyNode{
		ID:        m.idgen.NewID(),
		Scope:     scope,
		Level:     level,
		ParentID:  parentID,
		Depth:     depth,
		CreatedAt: m.clock.Now(),
		UpdatedAt: m.clock.Now(),
		Metadata:  map[string]string{},
	}
	m.nodes[n.ID] = n
	key := scopeLevelKey{scope: scope.String(), level: level}
	m.byScope[key] = append(m.byScope[key], n.ID)
	if parentID != "" {
		parent := m.nodes[parentID]
		parent.ChildIDs = append(parent.ChildIDs, n.ID)
	}
	return n
}

// Place implements spec §4.5 place(record): find a node with matching
// (scope, level) and remaining capacity, else create one under the
// validity-checked, least-loaded parent.
func (m *Manager) Place(record *domain.MemoryRecord) (*domain.HierarchyNode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := scopeLevelKey{scope: record.Scope.String(), level: record.Level}
	for _, id := range m.byScope[key] {
		n := m.nodes[id]
		if len(n.MemoryIDs) < m.cfg.MaxMemoriesPerNode {
			n.MemoryIDs = append(n.MemoryIDs, record.ID)
			n.UpdatedAt = m.clock.Now()
			return n, nil
		}
	}

	parent, depth, err := m.chooseParentLocked(record.Scope, record.Level)
	if err != nil {
		return nil, err
	}
	if depth+1 > m.cfg.MaxHierarchyDepth {
		return nil, apperr.ErrCapacityExceeded
	}

	n := m.createNodeLocked(record.Scope, record.Level, parent.ID, depth+1)
	n.MemoryIDs = append(n.MemoryIDs, record.ID)
	return n, nil
}

// chooseParentLocked walks existing nodes to find a validity-matching
// parent candidate with the fewest children, falling back to the
// level's synthetic Global root.
func (m *Manager) chooseParentLocked(scope domain.Scope, level domain.MemoryLevel) (*domain.HierarchyNode, int, error) {
	var best *domain.HierarchyNode
	for _, n := range m.nodes {
		if !domain.IsValidParent(n.Scope, scope) || !domain.IsHigherLevel(n.Level, level) {
			continue
		}
		if best == nil || len(n.ChildIDs) < len(best.ChildIDs) {
			best = n
		}
	}
	if best != nil {
		return best, best.Depth, nil
	}

	root, ok := m.nodes[m.roots[level]]
	if !ok {
		return nil, 0, apperr.ErrInvalidLineage
	}
	return root, root.Depth, nil
}

// Node returns a snapshot of a node by ID.
func (m *Manager) Node(id string) (domain.HierarchyNode, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n, ok := m.nodes[id]
	if !ok {
		return domain.HierarchyNode{}, false
	}
	return *n, true
}

// Rebalance implements spec §4.5 rebalancing: nodes over capacity are
// split (oldest half stays, newest half migrates to a fresh sibling);
// when compression is enabled, under-utilized siblings sharing scope
// are merged.
func (m *Manager) Rebalance(lookup RecordLookup) (splits, merges int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, n := range m.snapshotNodesLocked() {
		if len(n.MemoryIDs) > m.cfg.MaxMemoriesPerNode {
			m.splitLocked(n, lookup)
			splits++
		}
	}

	if m.cfg.EnableCompression {
		merges = m.mergeUnderutilizedLocked()
	}
	return splits, merges
}

func (m *Manager) snapshotNodesLocked() []*domain.HierarchyNode {
	out := make([]*domain.HierarchyNode, 0, len(m.nodes))
	for _, n := range m.nodes {
		out = append(out, n)
	}
	return out
}

func (m *Manager) splitLocked(n *domain.HierarchyNode, lookup RecordLookup) {
	node := m.nodes[n.ID]
	if node == nil || len(node.MemoryIDs) <= m.cfg.MaxMemoriesPerNode {
		return
	}

	ids := append([]string(nil), node.MemoryIDs...)
	sort.Slice(ids, func(i, j int) bool {
		ti, _ := lookup.CreatedAt(ids[i])
		tj, _ := lookup.CreatedAt(ids[j])
		return ti.Before(tj)
	})

	mid := len(ids) / 2
	oldest, newest := ids[:mid], ids[mid:]

	sibling := m.createNodeLocked(node.Scope, node.Level, node.ParentID, node.Depth)
	sibling.MemoryIDs = newest
	sibling.UpdatedAt = m.clock.Now()

	node.MemoryIDs = oldest
	node.UpdatedAt = m.clock.Now()

	m.logger.Info("hierarchy node split",
		zap.String("node_id", node.ID),
		zap.String("sibling_id", sibling.ID),
		zap.Int("oldest_half", len(oldest)),
		zap.Int("newest_half", len(newest)),
	)
}

// mergeUnderutilizedLocked merges sibling node pairs (same parent,
// scope, level) whose combined size stays within max_memories_per_node.
// Only the earlier node of a pair (in byScope order) is checked against
// compression_threshold: a node below it is merged into the first later
// sibling that fits, and is not merged with siblings ordered before it.
func (m *Manager) mergeUnderutilizedLocked() int {
	merged := 0
	for key, ids := range m.byScope {
		_ = key
		if len(ids) < 2 {
			continue
		}
		for i := 0; i < len(ids); i++ {
			a := m.nodes[ids[i]]
			if a == nil {
				continue
			}
			util := float64(len(a.MemoryIDs)) / float64(m.cfg.MaxMemoriesPerNode)
			if util >= m.cfg.CompressionThreshold {
				continue
			}
			for j := i + 1; j < len(ids); j++ {
				b := m.nodes[ids[j]]
				if b == nil || a.ParentID != b.ParentID {
					continue
				}
				if len(a.MemoryIDs)+len(b.MemoryIDs) > m.cfg.MaxMemoriesPerNode {
					continue
				}
				a.MemoryIDs = append(a.MemoryIDs, b.MemoryIDs...)
				a.UpdatedAt = m.clock.Now()
				m.removeNodeLocked(b)
				merged++
				break
			}
		}
	}
	return merged
}

func (m *Manager) removeNodeLocked(n *domain.HierarchyNode) {
	delete(m.nodes, n.ID)
	key := scopeLevelKey{scope: n.Scope.String(), level: n.Level}
	ids := m.byScope[key]
	for i, id := range ids {
		if id == n.ID {
			m.byScope[key] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	if parent, ok := m.nodes[n.ParentID]; ok {
		for i, id := range parent.ChildIDs {
			if id == n.ID {
				parent.ChildIDs = append(parent.ChildIDs[:i], parent.ChildIDs[i+1:]...)
				break
			}
		}
	}
}
