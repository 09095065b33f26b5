package domain

import "time"

// AccessType enumerates the usage-stat event kinds the ImportanceScorer
// owns (spec §4.3).
type AccessType int

const (
	AccessRead AccessType = iota
	AccessWrite
	AccessUserInteraction
	AccessReference
	AccessContextMatch
)

// UsageStats is the per-memory usage ledger (spec §3).
type UsageStats struct {
	MemoryID           string
	AccessCount        int
	LastAccessed       time.Time
	ModificationCount  int
	ReferenceCount     int
	UserInteractions   int
	ContextMatches     int
	CreationTime       time.Time

	// appliedEvents guards idempotent application of events carrying
	// an observed event id (spec §4.3, L3).
	appliedEvents map[string]struct{}
}

func NewUsageStats(memoryID string, createdAt time.Time) *UsageStats {
	return &UsageStats{
		MemoryID:      memoryID,
		CreationTime:  createdAt,
		LastAccessed:  createdAt,
		appliedEvents: make(map[string]struct{}),
	}
}

// Apply records an access event exactly once per eventID. Re-applying
// the same eventID is a no-op, satisfying L3 (touch_access idempotence).
func (u *UsageStats) Apply(eventID string, kind AccessType, at time.Time) bool {
	if u.appliedEvents == nil {
		u.appliedEvents = make(map[string]struct{})
	}
	if eventID != "" {
		if _, ok := u.appliedEvents[eventID]; ok {
			return false
		}
		u.appliedEvents[eventID] = struct{}{}
	}

	switch kind {
	case AccessRead:
		u.AccessCount++
		u.LastAccessed = at
	case AccessWrite:
		u.ModificationCount++
	case AccessUserInteraction:
		u.UserInteractions++
	case AccessReference:
		u.ReferenceCount++
	case AccessContextMatch:
		u.ContextMatches++
	}
	return true
}

// AccessesPerDay returns the observed access rate used by the
// frequency factor (spec §4.3).
func (u *UsageStats) AccessesPerDay(now time.Time) float64 {
	days := now.Sub(u.CreationTime).Hours() / 24
	if days < 1 {
		days = 1
	}
	return float64(u.AccessCount) / days
}
