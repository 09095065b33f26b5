// Package store implements the HierarchicalStore (spec §4.2): the
// primary (scope, level)-indexed memory store with access control and
// read-time inheritance. It runs under the multi-reader/single-writer
// discipline of spec §5 — readers take the RLock, writers take the
// exclusive Lock, and HierarchicalStore is always the first lock
// acquired in the fixed order store -> hierarchy_manager -> strategy
// -> scorer -> cache.
package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/louloulin/agentmem/internal/apperr"
	"github.com/louloulin/agentmem/internal/clock"
	"github.com/louloulin/agentmem/internal/domain"
	"go.uber.org/zap"
)

// DurableSink optionally persists accepted writes, per SPEC_FULL's
// storepg package. A nil sink means pure in-memory operation.
type DurableSink interface {
	PersistUpsert(ctx context.Context, m *domain.MemoryRecord) error
	PersistDelete(ctx context.Context, id string) error
}

type bucketKey struct {
	scope string
	level domain.MemoryLevel
}

// HierarchicalStore is the primary (scope, level) index plus the
// secondary id -> record lookup of spec §4.2.
type HierarchicalStore struct {
	mu sync.RWMutex

	buckets map[bucketKey][]*domain.MemoryRecord
	byID    map[string]*domain.MemoryRecord

	cfg    Config
	clock  clock.Clock
	idgen  clock.IdGen
	logger *zap.Logger
	bus    *domain.EventBus
	sink   DurableSink
	rules  []domain.InheritanceRule
}

func New(cfg Config, c clock.Clock, ids clock.IdGen, logger *zap.Logger) *HierarchicalStore {
	return &HierarchicalStore{
		buckets: make(map[bucketKey][]*domain.MemoryRecord),
		byID:    make(map[string]*domain.MemoryRecord),
		cfg:     cfg,
		clock:   c,
		idgen:   ids,
		logger:  logger,
		bus:     domain.NewEventBus(1000),
		rules:   domain.DefaultInheritanceRules(),
	}
}

// SetInheritanceRules overrides the default spec §4.2 rule set. Must be
// called before concurrent use begins.
func (s *HierarchicalStore) SetInheritanceRules(rules []domain.InheritanceRule) {
	s.rules = rules
}

// SetDurableSink attaches an optional persistence sink (storepg). Must
// be called before concurrent use begins.
func (s *HierarchicalStore) SetDurableSink(sink DurableSink) {
	s.sink = sink
}

func key(scope domain.Scope, level domain.MemoryLevel) bucketKey {
	return bucketKey{scope: scope.String(), level: level}
}

// Events returns a snapshot of the lifecycle/conflict event bus
// (spec §9).
func (s *HierarchicalStore) Events() []domain.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bus.Snapshot()
}

// Add creates a new MemoryRecord (spec §4.1 create, §6 add()).
func (s *HierarchicalStore) Add(ctx context.Context, content string, scope domain.Scope, level domain.MemoryLevel, typ domain.MemoryType, importance domain.Importance, metadata map[string]string) (*domain.MemoryRecord, error) {
	if err := domain.ValidateContent(content); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	m := &domain.MemoryRecord{
		ID:                s.idgen.NewID(),
		Content:           content,
		Scope:             scope,
		Level:             level,
		Type:              typ,
		Importance:        importance,
		QualityScore:      1.0,
		SourceReliability: 1.0,
		CreatedAt:         now,
		UpdatedAt:         now,
		AccessedAt:        now,
		Metadata:          cloneMeta(metadata),
		Tags:              make(map[string]struct{}),
		ConflictStrategy:  s.cfg.DefaultConflictStrategy,
		LifecycleState:    domain.LifecycleCreated,
		Version:           1,
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.insertLocked(m)
	s.bus.Publish(domain.Event{Kind: domain.EventMemoryCreated, MemoryID: m.ID, At: now})

	if s.sink != nil {
		if err := s.sink.PersistUpsert(ctx, m); err != nil && s.logger != nil {
			s.logger.Warn("durable sink upsert failed", zap.String("id", m.ID), zap.Error(err))
		}
	}

	return m.Clone(), nil
}

// insertLocked inserts m into its bucket, evicting the oldest record
// on overflow (invariant I7), and must be called with mu held.
func (s *HierarchicalStore) insertLocked(m *domain.MemoryRecord) {
	k := key(m.Scope, m.Level)
	bucket := s.buckets[k]
	bucket = append(bucket, m)

	if s.cfg.MaxMemoriesPerScopeLevel > 0 && len(bucket) > s.cfg.MaxMemoriesPerScopeLevel {
		evictIdx := oldestIndex(bucket)
		evicted := bucket[evictIdx]
		bucket = append(bucket[:evictIdx], bucket[evictIdx+1:]...)
		delete(s.byID, evicted.ID)
		s.bus.Publish(domain.Event{Kind: domain.EventMemoryEvicted, MemoryID: evicted.ID, At: s.clock.Now(), Detail: "scope_level_overflow"})
	}

	s.buckets[k] = bucket
	s.byID[m.ID] = m
}

// oldestIndex returns the index of the oldest-by-created_at record,
// ties broken by lower id (spec §4.2 ordering).
func oldestIndex(bucket []*domain.MemoryRecord) int {
	idx := 0
	for i := 1; i < len(bucket); i++ {
		if bucket[i].CreatedAt.Before(bucket[idx].CreatedAt) ||
			(bucket[i].CreatedAt.Equal(bucket[idx].CreatedAt) && bucket[i].ID < bucket[idx].ID) {
			idx = i
		}
	}
	return idx
}

func cloneMeta(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Get resolves an id under request-scope access control (spec §6
// get(), I5, P2, P3).
func (s *HierarchicalStore) Get(ctx context.Context, id string, requestScope domain.Scope) (*domain.MemoryRecord, error) {
	s.mu.Lock() // touch_access mutates AccessedAt/AccessCount, needs a writer lock
	defer s.mu.Unlock()

	m, ok := s.byID[id]
	if !ok || !m.LifecycleState.Readable() {
		return nil, fmt.Errorf("memory %s: %w", id, apperr.ErrNotFound)
	}
	if !requestScope.CanAccess(m.Scope) {
		return nil, fmt.Errorf("memory %s: %w", id, apperr.ErrAccessDenied)
	}

	s.touchAccessLocked(m, "")
	if m.LifecycleState == domain.LifecycleCreated {
		m.LifecycleState = domain.LifecycleActive
	} else if m.LifecycleState == domain.LifecycleArchived {
		m.LifecycleState = domain.LifecycleActive
	}

	return m.Clone(), nil
}

// Peek resolves an id without recording an access (used internally by
// components that must not perturb UsageStats, e.g. conflict
// detection candidate scans).
func (s *HierarchicalStore) Peek(id string) (*domain.MemoryRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.byID[id]
	if !ok || !m.LifecycleState.Readable() {
		return nil, false
	}
	return m.Clone(), true
}

// touchAccessLocked advances access bookkeeping. eventID-scoped
// idempotence (L3) is enforced by the scorer's UsageStats ledger;
// store-level access count always advances, matching the teacher's
// IncrementAccessAndBoost semantics.
func (s *HierarchicalStore) touchAccessLocked(m *domain.MemoryRecord, eventID string) {
	_ = eventID
	m.AccessCount++
	m.AccessedAt = s.clock.Now()
}

// TouchAccess is the spec §4.1 touch_access operation, exposed for
// callers (e.g. search) that resolve records via other paths and must
// still advance access bookkeeping. AccessCount advances on every call,
// including a repeated eventID; eventID is not deduplicated here.
func (s *HierarchicalStore) TouchAccess(ctx context.Context, id string, eventID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.byID[id]
	if !ok || !m.LifecycleState.Readable() {
		return fmt.Errorf("memory %s: %w", id, apperr.ErrNotFound)
	}
	s.touchAccessLocked(m, eventID)
	return nil
}

// Update applies a patch (spec §4.1 mutate, §6 update(), L2, I2, I3).
func (s *HierarchicalStore) Update(ctx context.Context, id string, patch domain.Patch) (*domain.MemoryRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.byID[id]
	if !ok || !m.LifecycleState.Readable() {
		return nil, fmt.Errorf("memory %s: %w", id, apperr.ErrNotFound)
	}

	if patch.Content != nil {
		if err := domain.ValidateContent(*patch.Content); err != nil {
			return nil, err
		}
		m.Content = *patch.Content
	}
	if patch.Importance != nil {
		m.Importance = *patch.Importance
	}
	for k, v := range patch.Metadata {
		if m.Metadata == nil {
			m.Metadata = make(map[string]string)
		}
		m.Metadata[k] = v
	}
	for _, t := range patch.AddTags {
		m.Tags[t] = struct{}{}
	}
	for _, t := range patch.RemoveTags {
		delete(m.Tags, t)
	}
	if patch.QualityScore != nil {
		m.QualityScore = *patch.QualityScore
	}

	now := s.clock.Now()
	if patch.ChangesVersionedFields() {
		m.Version++
		m.UpdatedAt = now
	}
	if m.AccessedAt.Before(m.UpdatedAt) {
		m.AccessedAt = m.UpdatedAt
	}

	s.bus.Publish(domain.Event{Kind: domain.EventMemoryMutated, MemoryID: id, At: now})

	if s.sink != nil {
		if err := s.sink.PersistUpsert(ctx, m); err != nil && s.logger != nil {
			s.logger.Warn("durable sink upsert failed", zap.String("id", id), zap.Error(err))
		}
	}

	return m.Clone(), nil
}

// SetParent assigns m's parent, rejecting cycle-inducing assignments
// (I6, spec §9 "BFS from new parent").
func (s *HierarchicalStore) SetParent(ctx context.Context, id, parentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.byID[id]
	if !ok || !m.LifecycleState.Readable() {
		return fmt.Errorf("memory %s: %w", id, apperr.ErrNotFound)
	}
	if parentID == "" {
		m.ParentID = ""
		return nil
	}
	if parentID == id {
		return fmt.Errorf("memory %s cannot be its own parent: %w", id, apperr.ErrInvalidLineage)
	}
	parent, ok := s.byID[parentID]
	if !ok || !parent.LifecycleState.Readable() {
		return fmt.Errorf("parent %s: %w", parentID, apperr.ErrNotFound)
	}
	if s.reachableLocked(parentID, id) {
		return fmt.Errorf("assigning parent %s to %s would create a cycle: %w", parentID, id, apperr.ErrInvalidLineage)
	}

	if m.ParentID != "" {
		if old, ok := s.byID[m.ParentID]; ok {
			old.ChildrenIDs = removeString(old.ChildrenIDs, id)
		}
	}
	m.ParentID = parentID
	parent.ChildrenIDs = append(parent.ChildrenIDs, id)
	return nil
}

// reachableLocked performs BFS from `from` along ParentID links (its
// ancestors) looking for `target`, used to reject cycles before
// committing a parent edge.
func (s *HierarchicalStore) reachableLocked(from, target string) bool {
	visited := map[string]bool{}
	queue := []string{from}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur == target {
			return true
		}
		if visited[cur] {
			continue
		}
		visited[cur] = true
		node, ok := s.byID[cur]
		if !ok {
			continue
		}
		if node.ParentID != "" {
			queue = append(queue, node.ParentID)
		}
	}
	return false
}

func removeString(s []string, v string) []string {
	out := s[:0]
	for _, x := range s {
		if x != v {
			out = append(out, x)
		}
	}
	return out
}

// Delete performs a hard, terminal delete (spec §4.1 delete, §6
// delete(), I4, P2).
func (s *HierarchicalStore) Delete(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.byID[id]
	if !ok {
		return false, nil
	}
	m.LifecycleState = domain.LifecycleDeleted
	s.removeFromBucketLocked(m)
	delete(s.byID, id)

	s.bus.Publish(domain.Event{Kind: domain.EventMemoryDeleted, MemoryID: id, At: s.clock.Now()})

	if s.sink != nil {
		if err := s.sink.PersistDelete(ctx, id); err != nil && s.logger != nil {
			s.logger.Warn("durable sink delete failed", zap.String("id", id), zap.Error(err))
		}
	}
	return true, nil
}

func (s *HierarchicalStore) removeFromBucketLocked(m *domain.MemoryRecord) {
	k := key(m.Scope, m.Level)
	bucket := s.buckets[k]
	for i, candidate := range bucket {
		if candidate.ID == m.ID {
			s.buckets[k] = append(bucket[:i], bucket[i+1:]...)
			return
		}
	}
}

// transition applies one of archive/restore/deprecate and records the
// lifecycle event (spec §4.1).
func (s *HierarchicalStore) transition(ctx context.Context, id string, to domain.LifecycleState, kind domain.EventKind) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.byID[id]
	if !ok || !m.LifecycleState.Readable() {
		return fmt.Errorf("memory %s: %w", id, apperr.ErrNotFound)
	}
	m.LifecycleState = to
	s.bus.Publish(domain.Event{Kind: kind, MemoryID: id, At: s.clock.Now()})
	return nil
}

func (s *HierarchicalStore) Archive(ctx context.Context, id string) error {
	return s.transition(ctx, id, domain.LifecycleArchived, domain.EventMemoryArchived)
}

func (s *HierarchicalStore) Restore(ctx context.Context, id string) error {
	return s.transition(ctx, id, domain.LifecycleActive, domain.EventMemoryRestored)
}

func (s *HierarchicalStore) Deprecate(ctx context.Context, id string) error {
	return s.transition(ctx, id, domain.LifecycleDeprecated, domain.EventMemoryDeprecated)
}

// List returns filtered, access-controlled, sorted records for a
// scope (spec §4.2 search, §6 list()). Records outside requestScope's
// own scope are subject to the spec §4.2 inheritance rule set: None
// excludes, Summary returns a truncated variant, and any mode's
// quality/importance/age conditions gate inclusion (spec §8 S3).
func (s *HierarchicalStore) List(ctx context.Context, requestScope domain.Scope, filters domain.Filters, limit int) ([]*domain.MemoryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.clock.Now()
	var out []*domain.MemoryRecord
	for _, m := range s.byID {
		if !m.LifecycleState.Readable() {
			continue
		}
		view, ok := s.visibleLocked(m, requestScope, now)
		if !ok {
			continue
		}
		if len(filters.Scopes) > 0 && !scopeIn(m.Scope, filters.Scopes) {
			continue
		}
		if !filters.Matches(m) {
			continue
		}
		out = append(out, view)
	}

	sortByRank(out)

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	clones := make([]*domain.MemoryRecord, len(out))
	for i, m := range out {
		clones[i] = m.Clone()
	}
	return clones, nil
}

func scopeIn(s domain.Scope, scopes []domain.Scope) bool {
	for _, candidate := range scopes {
		if s.Equal(candidate) {
			return true
		}
	}
	return false
}

// sortByRank orders by importance desc, quality desc, accessed_at
// desc (spec §4.2 Search sort contract).
func sortByRank(records []*domain.MemoryRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if a.Importance != b.Importance {
			return a.Importance > b.Importance
		}
		if a.QualityScore != b.QualityScore {
			return a.QualityScore > b.QualityScore
		}
		return a.AccessedAt.After(b.AccessedAt)
	})
}

// Search performs a substring text search over readable, accessible
// records honoring filters and the same sort contract as List (spec
// §4.2 search()). It is the store-level exact search; multi-strategy
// retrieval lives in internal/search.
func (s *HierarchicalStore) Search(ctx context.Context, query string, requestScope domain.Scope, filters domain.Filters) ([]*domain.MemoryRecord, error) {
	matches, err := s.List(ctx, requestScope, filters, 0)
	if err != nil {
		return nil, err
	}
	if query == "" {
		return matches, nil
	}
	lowerQuery := strings.ToLower(query)
	var out []*domain.MemoryRecord
	for _, m := range matches {
		if strings.Contains(strings.ToLower(m.Content), lowerQuery) {
			out = append(out, m)
		}
	}
	return out, nil
}

// Stats answers spec §6 stats().
func (s *HierarchicalStore) Stats(ctx context.Context, scope *domain.Scope) (domain.MemoryStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := domain.MemoryStats{
		CountByType:  make(map[domain.MemoryType]int),
		CountByAgent: make(map[string]int),
	}

	var importanceSum float64
	var oldest time.Time
	var mostAccessed *domain.MemoryRecord

	for _, m := range s.byID {
		if !m.LifecycleState.Readable() {
			continue
		}
		if scope != nil && !m.Scope.Equal(*scope) {
			continue
		}
		stats.TotalCount++
		stats.CountByType[m.Type]++
		stats.CountByAgent[m.Scope.AgentID]++
		importanceSum += float64(m.Importance)
		if oldest.IsZero() || m.CreatedAt.Before(oldest) {
			oldest = m.CreatedAt
		}
		if mostAccessed == nil || m.AccessCount > mostAccessed.AccessCount {
			mostAccessed = m
		}
	}

	if stats.TotalCount > 0 {
		stats.AvgImportance = importanceSum / float64(stats.TotalCount)
		stats.OldestAgeSeconds = s.clock.Now().Sub(oldest).Seconds()
	}
	if mostAccessed != nil {
		stats.MostAccessedID = mostAccessed.ID
	}
	return stats, nil
}

