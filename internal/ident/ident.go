// Package ident holds the non-deterministic inputs of the store: the clock and
// the record identifier source. Both are injected so the rest of the pipeline
// can run against fixed values in tests.
package ident

import (
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pbaille/retro/internal/domain"
)

// Clock returns the current time
type Clock interface {
	Now() time.Time
}

// IDGenerator returns a fresh unique record identifier
type IDGenerator interface {
	NewID() string
}

// SystemClock reads the wall clock
type SystemClock struct{}

// Now returns time.Now in UTC
func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

// UUIDGenerator produces time-sortable UUIDv7 identifiers.
type UUIDGenerator struct{}

// NewID returns a hyphenated UUIDv7.
// Panics if the random source fails, which uuid treats as unrecoverable.
func (UUIDGenerator) NewID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// FixedClock returns a preset time, optionally stepping forward on each call.
type FixedClock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

// NewFixedClock creates a clock frozen at t
func NewFixedClock(t time.Time) *FixedClock {
	return &FixedClock{now: t}
}

// NewSteppingClock creates a clock starting at t that advances by step after every reading
func NewSteppingClock(t time.Time, step time.Duration) *FixedClock {
	return &FixedClock{now: t, step: step}
}

// Now returns the current preset time and advances it by the step
func (c *FixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now
	c.now = c.now.Add(c.step)
	return t
}

// Set moves the clock to t
func (c *FixedClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// FixedGenerator returns predetermined identifiers in order.
//
// Once the list is exhausted it falls back to "<prefix>-<n>" so long test
// scenarios do not have to enumerate every id.
type FixedGenerator struct {
	mu     sync.Mutex
	ids    []string
	idx    int
	prefix string
}

// NewFixedGenerator creates a generator that hands out ids in order
func NewFixedGenerator(ids ...string) *FixedGenerator {
	return &FixedGenerator{ids: ids, prefix: "id"}
}

// NewSequenceGenerator creates a generator producing prefix-1, prefix-2, ...
func NewSequenceGenerator(prefix string) *FixedGenerator {
	return &FixedGenerator{prefix: prefix}
}

// NewID returns the next identifier
func (g *FixedGenerator) NewID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.idx++
	if g.idx <= len(g.ids) {
		return g.ids[g.idx-1]
	}
	return g.prefix + "-" + strconv.Itoa(g.idx-len(g.ids))
}

// Stamp formats t the way every system-produced createdAt is written
func Stamp(t time.Time) string {
	return t.UTC().Format(domain.TimeLayout)
}
