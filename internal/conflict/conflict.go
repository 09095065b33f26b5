// Package conflict implements the ConflictResolver (spec §4.4):
// Jaccard-based duplicate/contradiction detection over a time window,
// and five pluggable resolution strategies with an audit cache.
package conflict

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/louloulin/agentmem/internal/apperr"
	"github.com/louloulin/agentmem/internal/clock"
	"github.com/louloulin/agentmem/internal/domain"
	"github.com/louloulin/agentmem/internal/textsim"
	"go.uber.org/zap"
)

// contradictionPairs are the fixed lexeme pairs that mark a Factual
// conflict (spec §4.4).
var contradictionPairs = [][2]string{
	{"is", "is not"},
	{"true", "false"},
	{"yes", "no"},
	{"can", "cannot"},
	{"will", "will not"},
}

const (
	duplicateThreshold  = 0.95
	temporalWindow      = 60 * time.Minute
	defaultThreshold    = 0.85
)

// Detection is the spec §4.4 ConflictDetection result.
type Detection struct {
	HasConflict bool
	Conflicting []*domain.MemoryRecord
	Type        domain.ConflictType
	Similarity  float64
	Confidence  float64
}

// Resolution is the logged outcome of resolving a Detection.
type Resolution struct {
	ConflictID      string
	Type            domain.ConflictType
	Strategy        domain.ConflictStrategy
	MemoryIDs       []string
	ResultMemoryID  string
	MergedMemoryIDs []string
	Confidence      float64
	Timestamp       time.Time
}

// Config is the conflict.* configuration block of spec §6.
type Config struct {
	DetectionThreshold time.Duration
	SimilarityThreshold float64
	AuditCacheCapacity  int
}

func DefaultConfig() Config {
	return Config{
		DetectionThreshold:  24 * time.Hour,
		SimilarityThreshold: defaultThreshold,
		AuditCacheCapacity:  1000,
	}
}

// Resolver detects and resolves conflicts among candidate records and
// keeps a bounded audit trail of resolutions.
type Resolver struct {
	mu     sync.Mutex
	cfg    Config
	clock  clock.Clock
	idgen  clock.IdGen
	logger *zap.Logger
	audit  []Resolution
}

func New(cfg Config, clk clock.Clock, ids clock.IdGen, logger *zap.Logger) *Resolver {
	return &Resolver{cfg: cfg, clock: clk, idgen: ids, logger: logger}
}

// Detect implements spec §4.4 detection: candidates are records within
// the configured time window considered alongside the new record n.
func (r *Resolver) Detect(n *domain.MemoryRecord, candidates []*domain.MemoryRecord) Detection {
	var conflicting []*domain.MemoryRecord
	best := 0.0

	for _, c := range candidates {
		if c.ID == n.ID {
			continue
		}
		if n.CreatedAt.Sub(c.CreatedAt).Abs() > r.cfg.DetectionThreshold {
			continue
		}
		sim := textsim.Jaccard(n.Content, c.Content)
		if sim > r.cfg.SimilarityThreshold {
			conflicting = append(conflicting, c)
			if sim > best {
				best = sim
			}
		}
	}

	if len(conflicting) == 0 {
		return Detection{}
	}

	return Detection{
		HasConflict: true,
		Conflicting: conflicting,
		Type:        classify(n, conflicting, best),
		Similarity:  best,
		Confidence:  best,
	}
}

func classify(n *domain.MemoryRecord, conflicting []*domain.MemoryRecord, similarity float64) domain.ConflictType {
	if similarity > duplicateThreshold {
		return domain.ConflictTypeDuplicate
	}
	for _, c := range conflicting {
		if hasContradiction(n.Content, c.Content) {
			return domain.ConflictTypeFactual
		}
	}
	for _, c := range conflicting {
		if n.CreatedAt.Sub(c.CreatedAt).Abs() <= temporalWindow {
			return domain.ConflictTypeTemporal
		}
	}
	return domain.ConflictTypeSemantic
}

// hasContradiction reports whether a and b each contain one side of a
// fixed contradictory lexeme pair (spec §4.4).
func hasContradiction(a, b string) bool {
	la, lb := strings.ToLower(a), strings.ToLower(b)
	for _, pair := range contradictionPairs {
		if (strings.Contains(la, pair[0]) && strings.Contains(lb, pair[1])) ||
			(strings.Contains(la, pair[1]) && strings.Contains(lb, pair[0])) {
			return true
		}
	}
	return false
}

// Resolve applies strategy to a detected conflict, returning the
// winning record (nil for merge/keep-both outcomes that don't pick a
// single survivor verbatim) and logging a Resolution for audit.
func (r *Resolver) Resolve(ctx context.Context, n *domain.MemoryRecord, det Detection, strategy domain.ConflictStrategy) (*domain.MemoryRecord, *domain.MemoryRecord, Resolution, error) {
	if !det.HasConflict {
		return n, nil, Resolution{}, nil
	}

	all := append([]*domain.MemoryRecord{n}, det.Conflicting...)
	now := r.clock.Now()
	res := Resolution{
		ConflictID: r.idgen.NewID(),
		Type:       det.Type,
		Strategy:   strategy,
		Timestamp:  now,
	}
	for _, m := range all {
		res.MemoryIDs = append(res.MemoryIDs, m.ID)
	}

	var winner *domain.MemoryRecord
	var merged *domain.MemoryRecord
	var err error

	switch strategy {
	case domain.ConflictTimeBasedNewest:
		winner = newest(all)
		res.Confidence = 0.8

	case domain.ConflictImportanceBased:
		winner = mostImportant(all)
		res.Confidence = 0.9

	case domain.ConflictSourceReliabilityBased:
		winner = mostReliable(all)
		res.Confidence = 0.85

	case domain.ConflictSemanticMerge:
		merged = mergeRecords(n, det.Conflicting, now)
		res.Confidence = 0.7

	case domain.ConflictKeepBoth:
		for _, m := range all {
			m.ConflictMarker = true
			m.ConflictTimestamp = now
		}
		res.Confidence = 1.0
		err = apperr.ErrConflictUnresolved

	default:
		winner = mostImportant(all)
		res.Confidence = 0.9
	}

	if winner != nil {
		res.ResultMemoryID = winner.ID
	}
	if merged != nil {
		for _, c := range det.Conflicting {
			res.MergedMemoryIDs = append(res.MergedMemoryIDs, c.ID)
		}
	}

	r.mu.Lock()
	r.audit = append(r.audit, res)
	if len(r.audit) > r.cfg.AuditCacheCapacity {
		r.audit = r.audit[len(r.audit)-r.cfg.AuditCacheCapacity:]
	}
	r.mu.Unlock()

	r.logger.Info("conflict resolved",
		zap.String("conflict_id", res.ConflictID),
		zap.String("type", det.Type.String()),
		zap.String("strategy", strategy.String()),
		zap.Float64("confidence", res.Confidence),
	)

	return winner, merged, res, err
}

func newest(records []*domain.MemoryRecord) *domain.MemoryRecord {
	best := records[0]
	for _, m := range records[1:] {
		if m.CreatedAt.After(best.CreatedAt) {
			best = m
		}
	}
	return best
}

func mostImportant(records []*domain.MemoryRecord) *domain.MemoryRecord {
	best := records[0]
	for _, m := range records[1:] {
		if m.Importance > best.Importance {
			best = m
		}
	}
	return best
}

func mostReliable(records []*domain.MemoryRecord) *domain.MemoryRecord {
	best := records[0]
	for _, m := range records[1:] {
		if m.SourceReliability > best.SourceReliability {
			best = m
		}
	}
	return best
}

// mergeRecords builds the SemanticMerge result: new content followed
// by each unique existing content, union of tags, first-write-wins
// metadata, timestamps reset to now (spec §4.4).
func mergeRecords(n *domain.MemoryRecord, existing []*domain.MemoryRecord, now time.Time) *domain.MemoryRecord {
	out := n.Clone()
	out.CreatedAt = now
	out.UpdatedAt = now
	out.AccessedAt = now

	var parts []string
	parts = append(parts, n.Content)
	seen := map[string]struct{}{n.Content: {}}

	sorted := append([]*domain.MemoryRecord(nil), existing...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	for _, e := range sorted {
		if _, dup := seen[e.Content]; !dup {
			parts = append(parts, e.Content)
			seen[e.Content] = struct{}{}
		}
		for t := range e.Tags {
			out.Tags[t] = struct{}{}
		}
		for k, v := range e.Metadata {
			if _, exists := out.Metadata[k]; !exists {
				out.Metadata[k] = v
			}
		}
	}

	out.Content = strings.Join(parts, " | ")
	return out
}

// Audit returns a snapshot of the resolution trail, most recent last.
func (r *Resolver) Audit() []Resolution {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Resolution(nil), r.audit...)
}
