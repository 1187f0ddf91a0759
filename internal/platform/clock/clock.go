package clock

import (
	"sync"
	"time"

	ulid "github.com/oklog/ulid/v2"
)

type Clock interface{ Now() time.Time }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now().UTC() }

func Real() Clock { return realClock{} }

type IDGen interface{ NewULID(t time.Time) string }

type ulidGen struct{}

// DefaultEntropy はプロセス内で単調増加かつゴルーチン安全
func (ulidGen) NewULID(t time.Time) string {
	return ulid.MustNew(ulid.Timestamp(t), ulid.DefaultEntropy()).String()
}

func ULID() IDGen { return ulidGen{} }

// Manual is a Clock that only moves when told to. Each Now call advances it by Step.
type Manual struct {
	mu   sync.Mutex
	t    time.Time
	Step time.Duration
}

func NewManual(t time.Time, step time.Duration) *Manual {
	return &Manual{t: t.UTC(), Step: step}
}

func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.t
	m.t = m.t.Add(m.Step)
	return now
}

func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	m.t = m.t.Add(d)
	m.mu.Unlock()
}
