// Package clock provides the Clock and IdGen capabilities consumed by
// every component that needs wall-clock time or identity generation.
// Injecting them keeps recency scoring, conflict windows, and
// adaptation decay deterministically testable (spec §9, "Pervasive
// now"). Outside this package, time.Now() is still called directly by
// the search engine (result-cache TTL, analytics timing, and the query
// time when the caller gives none), the HTTP search handlers, and the
// logging middleware; the request-ID middleware calls uuid.NewString().
package clock

import (
	"time"

	"github.com/google/uuid"
)

// Clock is the injected wall-clock capability (spec §6).
type Clock interface {
	Now() time.Time
	HourOfDay() int
}

// IdGen is the injected identity capability (spec §6).
type IdGen interface {
	NewID() string
}

// System is the production Clock backed by the OS clock.
type System struct{}

func NewSystem() System { return System{} }

func (System) Now() time.Time { return time.Now() }

func (System) HourOfDay() int { return time.Now().Hour() }

// UUIDGen is the production IdGen, generating UUID-v4 lineage ids.
type UUIDGen struct{}

func NewUUIDGen() UUIDGen { return UUIDGen{} }

func (UUIDGen) NewID() string { return uuid.New().String() }

// Fixed is a deterministic Clock test double that advances only when
// told to.
type Fixed struct {
	t time.Time
}

func NewFixed(t time.Time) *Fixed {
	return &Fixed{t: t}
}

func (f *Fixed) Now() time.Time { return f.t }

func (f *Fixed) HourOfDay() int { return f.t.Hour() }

// Advance moves the fixed clock forward by d.
func (f *Fixed) Advance(d time.Duration) {
	f.t = f.t.Add(d)
}

// Set pins the fixed clock to t.
func (f *Fixed) Set(t time.Time) {
	f.t = t
}

// Sequential is a deterministic IdGen test double producing
// predictable, monotonically increasing ids.
type Sequential struct {
	prefix string
	n      int
}

func NewSequential(prefix string) *Sequential {
	return &Sequential{prefix: prefix}
}

func (s *Sequential) NewID() string {
	s.n++
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(s.prefix+itoa(s.n))).String()
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
