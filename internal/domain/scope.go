package domain

import "fmt"

// ScopeKind is the closed sum type for a memory's identity envelope
// (spec §3, GLOSSARY "Scope").
type ScopeKind int

const (
	ScopeGlobal ScopeKind = iota
	ScopeAgent
	ScopeUser
	ScopeSession
)

func (k ScopeKind) String() string {
	switch k {
	case ScopeGlobal:
		return "global"
	case ScopeAgent:
		return "agent"
	case ScopeUser:
		return "user"
	case ScopeSession:
		return "session"
	default:
		return "unknown"
	}
}

// Scope identifies the envelope a memory belongs to. Only the fields
// relevant to Kind are populated:
//
//	Global:  (none)
//	Agent:   AgentID
//	User:    AgentID, UserID
//	Session: AgentID, UserID, SessionID
type Scope struct {
	Kind      ScopeKind
	AgentID   string
	UserID    string
	SessionID string
}

func Global() Scope { return Scope{Kind: ScopeGlobal} }

func AgentScope(agentID string) Scope {
	return Scope{Kind: ScopeAgent, AgentID: agentID}
}

func UserScope(agentID, userID string) Scope {
	return Scope{Kind: ScopeUser, AgentID: agentID, UserID: userID}
}

func SessionScope(agentID, userID, sessionID string) Scope {
	return Scope{Kind: ScopeSession, AgentID: agentID, UserID: userID, SessionID: sessionID}
}

func (s Scope) String() string {
	switch s.Kind {
	case ScopeGlobal:
		return "global"
	case ScopeAgent:
		return fmt.Sprintf("agent:%s", s.AgentID)
	case ScopeUser:
		return fmt.Sprintf("user:%s:%s", s.AgentID, s.UserID)
	case ScopeSession:
		return fmt.Sprintf("session:%s:%s:%s", s.AgentID, s.UserID, s.SessionID)
	default:
		return "unknown"
	}
}

func (s Scope) Equal(o Scope) bool {
	return s.Kind == o.Kind && s.AgentID == o.AgentID && s.UserID == o.UserID && s.SessionID == o.SessionID
}

// CanAccess implements the scope access rule of spec §4.2 (I5):
// a request scope may read a record's scope iff the request is Global,
// equal to the record's scope, or a proper descendant of it along the
// Global -> Agent -> User -> Session chain with matching identifying
// components.
func (request Scope) CanAccess(record Scope) bool {
	if request.Kind == ScopeGlobal {
		return true
	}
	if request.Equal(record) {
		return true
	}
	if depth(request.Kind) <= depth(record.Kind) {
		return false
	}
	switch record.Kind {
	case ScopeGlobal:
		return true
	case ScopeAgent:
		return request.AgentID == record.AgentID
	case ScopeUser:
		return request.AgentID == record.AgentID && request.UserID == record.UserID
	default:
		return false
	}
}

func depth(k ScopeKind) int {
	switch k {
	case ScopeGlobal:
		return 0
	case ScopeAgent:
		return 1
	case ScopeUser:
		return 2
	case ScopeSession:
		return 3
	default:
		return -1
	}
}

// IsDescendantPattern reports whether `child` sits strictly below
// `parent` in the Global->Agent->User->Session chain and shares the
// identifying components parent fixes. Used by the inheritance rule
// matcher (spec §4.2); HierarchyManager parent validity uses
// IsValidParent instead.
func IsDescendantPattern(parent, child Scope) bool {
	if depth(child.Kind) <= depth(parent.Kind) {
		return false
	}
	switch parent.Kind {
	case ScopeGlobal:
		return true
	case ScopeAgent:
		return child.AgentID == parent.AgentID
	case ScopeUser:
		return child.AgentID == parent.AgentID && child.UserID == parent.UserID
	default:
		return false
	}
}
