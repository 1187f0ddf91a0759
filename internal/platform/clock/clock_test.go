package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestManualSteps(t *testing.T) {
	start := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	m := NewManual(start, time.Second)
	assert.Equal(t, start, m.Now())
	assert.Equal(t, start.Add(time.Second), m.Now())
	m.Advance(time.Hour)
	assert.Equal(t, start.Add(2*time.Second+time.Hour), m.Now())
}

func TestULIDIsSortable(t *testing.T) {
	g := ULID()
	now := time.Now()
	a := g.NewULID(now)
	b := g.NewULID(now)
	assert.Len(t, a, 26)
	assert.Less(t, a, b)
}
