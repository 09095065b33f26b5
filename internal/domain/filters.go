package domain

import "time"

// Filters bounds a HierarchicalStore.Search / list() call (spec §4.2,
// §6).
type Filters struct {
	Scopes       []Scope
	Levels       []MemoryLevel
	MinImportance *Importance
	MinQuality   *float64
	DateFrom     *time.Time
	DateTo       *time.Time
	Tags         []string
}

// Matches reports whether m satisfies f, excluding scope access
// control (applied separately, before filtering, per spec §4.2).
func (f Filters) Matches(m *MemoryRecord) bool {
	if len(f.Levels) > 0 {
		ok := false
		for _, l := range f.Levels {
			if l == m.Level {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if f.MinImportance != nil && m.Importance < *f.MinImportance {
		return false
	}
	if f.MinQuality != nil && m.QualityScore < *f.MinQuality {
		return false
	}
	if f.DateFrom != nil && m.CreatedAt.Before(*f.DateFrom) {
		return false
	}
	if f.DateTo != nil && m.CreatedAt.After(*f.DateTo) {
		return false
	}
	for _, tag := range f.Tags {
		if _, ok := m.Tags[tag]; !ok {
			return false
		}
	}
	return true
}

// MemoryStats answers stats() (spec §6).
type MemoryStats struct {
	TotalCount       int
	CountByType      map[MemoryType]int
	CountByAgent     map[string]int
	AvgImportance    float64
	OldestAgeSeconds float64
	MostAccessedID   string
}

// InheritanceMode is the result of matching an inheritance rule
// (spec §4.2).
type InheritanceMode int

const (
	InheritanceNone InheritanceMode = iota
	InheritanceFull
	InheritanceFiltered
	InheritanceSummary
)

// InheritanceConditions is the AND of conditions gating a Filtered or
// Summary inheritance view (spec §4.2).
type InheritanceConditions struct {
	MinImportance *Importance
	RequiredTags  []string
	MaxAgeDays    *int
	MinQuality    *float64
}

func (c InheritanceConditions) Satisfies(m *MemoryRecord, now time.Time) bool {
	if c.MinImportance != nil && m.Importance < *c.MinImportance {
		return false
	}
	if c.MinQuality != nil && m.QualityScore < *c.MinQuality {
		return false
	}
	if c.MaxAgeDays != nil {
		age := now.Sub(m.CreatedAt).Hours() / 24
		if age > float64(*c.MaxAgeDays) {
			return false
		}
	}
	for _, tag := range c.RequiredTags {
		if _, ok := m.Tags[tag]; !ok {
			return false
		}
	}
	return true
}

// InheritanceRule maps a (from-scope-kind, to-scope-kind) pattern to a
// mode with conditions.
type InheritanceRule struct {
	From       ScopeKind
	To         ScopeKind
	Mode       InheritanceMode
	Conditions InheritanceConditions
}

// DefaultInheritanceRules returns the two default rules of spec §4.2.
func DefaultInheritanceRules() []InheritanceRule {
	medium := ImportanceMedium
	high := ImportanceHigh
	q70 := 0.7
	maxAge7 := 7
	return []InheritanceRule{
		{
			From: ScopeGlobal, To: ScopeAgent, Mode: InheritanceFiltered,
			Conditions: InheritanceConditions{MinImportance: &medium, MinQuality: &q70},
		},
		{
			From: ScopeAgent, To: ScopeUser, Mode: InheritanceSummary,
			Conditions: InheritanceConditions{MinImportance: &high, MaxAgeDays: &maxAge7},
		},
	}
}
