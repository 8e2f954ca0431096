package testutil

import (
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// StubClock is a bk.Clock that only moves when told to. Job tests advance it
// between runs so every run gets distinct part and package names.
type StubClock struct {
	mu  sync.Mutex
	now time.Time
}

func NewStubClock(t time.Time) *StubClock {
	return &StubClock{now: t}
}

// FixedClock starts at 2026-03-01 02:00 UTC, the nightly slot the job tests use.
func FixedClock() *StubClock {
	return NewStubClock(time.Date(2026, 3, 1, 2, 0, 0, 0, time.UTC))
}

func (c *StubClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *StubClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// StubIDGenerator names runs run-1, run-2 and so on.
type StubIDGenerator struct {
	n atomic.Int64
}

func NewStubIDGenerator() *StubIDGenerator {
	return &StubIDGenerator{}
}

func (g *StubIDGenerator) New() string {
	return "run-" + strconv.FormatInt(g.n.Add(1), 10)
}
