package store

import (
	"context"
	"time"

	"github.com/louloulin/agentmem/internal/domain"
)

// InheritedView is a record as seen through an inheritance rule —
// Full returns the record unchanged, Summary returns a deterministic
// truncated/compressed variant (spec §4.2, §8 scenario S3).
type InheritedView struct {
	Record *domain.MemoryRecord
	Mode   domain.InheritanceMode
}

const summaryMaxRunes = 160

// summarize deterministically truncates content for a Summary view.
func summarize(content string) string {
	runes := []rune(content)
	if len(runes) <= summaryMaxRunes {
		return content
	}
	return string(runes[:summaryMaxRunes]) + "…"
}

// Inherited computes, at read time, the records reachable from
// requestScope via the given inheritance rules — never materialized,
// recomputed per call (spec §4.2). List()/Search() apply the same rule
// evaluation with the store's own rule set, except that a scope pair no
// rule governs is returned in full there and is left out here. Exposed
// directly for callers that want the InheritanceMode alongside each
// record.
func (s *HierarchicalStore) Inherited(ctx context.Context, requestScope domain.Scope, rules []domain.InheritanceRule) ([]InheritedView, error) {
	if !s.cfg.EnableInheritance {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.clock.Now()
	var out []InheritedView

	for _, m := range s.byID {
		if !m.LifecycleState.Readable() {
			continue
		}
		if m.Scope.Equal(requestScope) {
			continue // not inheritance, direct ownership
		}
		if !domain.IsDescendantPattern(m.Scope, requestScope) {
			continue
		}

		rule, ok := matchRule(m.Scope.Kind, requestScope.Kind, rules)
		if !ok || rule.Mode == domain.InheritanceNone {
			continue
		}
		view, included := applyRule(m, rule, s.cfg.InheritanceQualityThreshold, now)
		if !included {
			continue
		}
		out = append(out, InheritedView{Record: view, Mode: rule.Mode})
	}

	return out, nil
}

// visibleLocked answers whether requestScope may read m and, if so,
// the exact view it's entitled to (spec §4.2 I5 plus the inheritance
// rule set). Must be called with s.mu already held. Direct ownership
// and Global requests bypass the inheritance rule set entirely (I5);
// any other accessible scope is gated and possibly summarized by the
// matching rule, defaulting to Full when no rule governs the pair.
func (s *HierarchicalStore) visibleLocked(m *domain.MemoryRecord, requestScope domain.Scope, now time.Time) (*domain.MemoryRecord, bool) {
	if m.Scope.Equal(requestScope) {
		return m, true
	}
	if !requestScope.CanAccess(m.Scope) {
		return nil, false
	}
	if requestScope.Kind == domain.ScopeGlobal || !s.cfg.EnableInheritance {
		return m, true
	}

	rule, ok := matchRule(m.Scope.Kind, requestScope.Kind, s.rules)
	if !ok {
		return m, true // access permitted by I5, no specific inheritance rule governs this pair
	}
	if rule.Mode == domain.InheritanceNone {
		return nil, false
	}
	return applyRule(m, rule, s.cfg.InheritanceQualityThreshold, now)
}

// applyRule gates m against rule's conditions/quality threshold and
// returns the content view Full/Filtered/Summary modes are entitled to.
func applyRule(m *domain.MemoryRecord, rule domain.InheritanceRule, qualityThreshold float64, now time.Time) (*domain.MemoryRecord, bool) {
	if !rule.Conditions.Satisfies(m, now) {
		return nil, false
	}
	if m.QualityScore < qualityThreshold && rule.Mode != domain.InheritanceFull {
		return nil, false
	}
	if rule.Mode == domain.InheritanceSummary {
		clone := m.Clone()
		clone.Content = summarize(clone.Content)
		return clone, true
	}
	return m, true
}

func matchRule(from, to domain.ScopeKind, rules []domain.InheritanceRule) (domain.InheritanceRule, bool) {
	for _, r := range rules {
		if r.From == from && r.To == to {
			return r, true
		}
	}
	return domain.InheritanceRule{}, false
}
