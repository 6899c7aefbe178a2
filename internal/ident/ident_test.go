package ident

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUUIDGenerator(t *testing.T) {
	g := UUIDGenerator{}
	a, b := g.NewID(), g.NewID()

	assert.NotEqual(t, a, b)
	parsed, err := uuid.Parse(a)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), parsed.Version())
}

func TestFixedGenerator(t *testing.T) {
	g := NewFixedGenerator("a", "b")
	assert.Equal(t, "a", g.NewID())
	assert.Equal(t, "b", g.NewID())
	assert.Equal(t, "id-1", g.NewID())

	seq := NewSequenceGenerator("rec")
	assert.Equal(t, "rec-1", seq.NewID())
	assert.Equal(t, "rec-2", seq.NewID())
}

func TestSteppingClock(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewSteppingClock(start, time.Minute)

	assert.Equal(t, start, c.Now())
	assert.Equal(t, start.Add(time.Minute), c.Now())

	c.Set(start)
	assert.Equal(t, start, c.Now())

	frozen := NewFixedClock(start)
	assert.Equal(t, frozen.Now(), frozen.Now())
}

func TestStamp(t *testing.T) {
	loc := time.FixedZone("KST", 9*60*60)
	ts := time.Date(2025, 1, 1, 9, 0, 0, 123456789, loc)

	assert.Equal(t, "2025-01-01T00:00:00.123Z", Stamp(ts))
	assert.Less(t, Stamp(ts), Stamp(ts.Add(time.Millisecond)))
}
