package ratestats

import (
	"sync"
	"time"
)

// DefaultCapacity is the number of frame timestamps kept per source.
const DefaultCapacity = 120

// Tracker keeps a ring of recent frame timestamps per source. Observe is
// called from streaming threads; everything else from readers.
type Tracker struct {
	capacity int

	mu    sync.Mutex
	rings map[string]*ring
}

type ring struct {
	times []time.Time
	next  int
	full  bool
}

// NewTracker returns a tracker keeping capacity timestamps per source.
func NewTracker(capacity int) *Tracker {
	if capacity < 2 {
		capacity = DefaultCapacity
	}
	return &Tracker{capacity: capacity, rings: make(map[string]*ring)}
}

// Observe records a frame for id at time at.
func (t *Tracker) Observe(id string, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	r, ok := t.rings[id]
	if !ok {
		r = &ring{times: make([]time.Time, t.capacity)}
		t.rings[id] = r
	}
	r.times[r.next] = at
	r.next = (r.next + 1) % len(r.times)
	if r.next == 0 {
		r.full = true
	}
}

// Reset forgets every frame recorded for id.
func (t *Tracker) Reset(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.rings, id)
}

// Stats computes statistics for id as of now. The window runs from the
// oldest kept frame to now, so a stalled source decays toward zero FPS.
func (t *Tracker) Stats(id string, now time.Time) (Stats, bool) {
	t.mu.Lock()
	r, ok := t.rings[id]
	var times []time.Time
	if ok {
		times = r.ordered()
	}
	t.mu.Unlock()

	if !ok || len(times) == 0 {
		return Stats{}, false
	}
	return Calculate(times, now.Sub(times[0])), true
}

func (r *ring) ordered() []time.Time {
	if !r.full {
		return append([]time.Time(nil), r.times[:r.next]...)
	}
	out := make([]time.Time, 0, len(r.times))
	out = append(out, r.times[r.next:]...)
	return append(out, r.times[:r.next]...)
}
