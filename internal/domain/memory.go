package domain

import (
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/louloulin/agentmem/internal/apperr"
)

const maxContentRunes = 100_000

// MemoryRecord is the central unit of the engine (spec §3).
type MemoryRecord struct {
	ID       string
	Content  string
	Scope    Scope
	Level    MemoryLevel
	Type     MemoryType
	Importance Importance

	QualityScore       float64
	SourceReliability  float64

	CreatedAt  time.Time
	UpdatedAt  time.Time
	AccessedAt time.Time
	AccessCount int

	Metadata map[string]string
	Tags     map[string]struct{}

	ParentID    string
	ChildrenIDs []string

	ConflictStrategy ConflictStrategy
	LifecycleState   LifecycleState

	Version int

	// Embedding, when present, is the vector representation produced
	// by the Embedder capability for semantic search (spec §6).
	Embedding []float32

	// ConflictMarker/ConflictTimestamp are set by the KeepBoth
	// resolution strategy (spec §4.4).
	ConflictMarker    bool
	ConflictTimestamp time.Time
}

// TagSlice returns the record's tags as a sorted-free slice for
// serialization and comparison in tests.
func (m *MemoryRecord) TagSlice() []string {
	out := make([]string, 0, len(m.Tags))
	for t := range m.Tags {
		out = append(out, t)
	}
	return out
}

func NewTagSet(tags ...string) map[string]struct{} {
	out := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		out[t] = struct{}{}
	}
	return out
}

// ValidateContent enforces the non-empty, ≤100k code point bound of
// spec §3.
func ValidateContent(content string) error {
	if content == "" {
		return fmt.Errorf("content must not be empty: %w", apperr.ErrInvalidContent)
	}
	if utf8.RuneCountInString(content) > maxContentRunes {
		return fmt.Errorf("content exceeds %d code points: %w", maxContentRunes, apperr.ErrInvalidContent)
	}
	return nil
}

// Clone returns a deep-enough copy suitable for snapshotting inside a
// write-locked section before releasing the lock to callers.
func (m *MemoryRecord) Clone() *MemoryRecord {
	cp := *m
	cp.Metadata = make(map[string]string, len(m.Metadata))
	for k, v := range m.Metadata {
		cp.Metadata[k] = v
	}
	cp.Tags = make(map[string]struct{}, len(m.Tags))
	for t := range m.Tags {
		cp.Tags[t] = struct{}{}
	}
	cp.ChildrenIDs = append([]string(nil), m.ChildrenIDs...)
	cp.Embedding = append([]float32(nil), m.Embedding...)
	return &cp
}

// Patch is the mutable subset of a MemoryRecord accepted by update().
type Patch struct {
	Content    *string
	Importance *Importance
	Metadata   map[string]string
	AddTags    []string
	RemoveTags []string
	QualityScore *float64
}

// ChangesVersionedFields reports whether applying p would touch
// content, importance, or metadata — the fields that bump Version
// per invariant I2.
func (p Patch) ChangesVersionedFields() bool {
	return p.Content != nil || p.Importance != nil || len(p.Metadata) > 0
}
