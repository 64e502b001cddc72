package orchestrator

import "sync"

// Guard tracks which sources have a restart in flight. An id present in the
// table has a restart executing; absence means idle.
//
// The guard also remembers at most one follow-up per in-flight restart:
// events that arrive mid-restart collapse into a single deferred re-check.
type Guard struct {
	mu      sync.Mutex
	entries map[string]*guardEntry
}

type guardEntry struct {
	// generation of the subgraph being replaced when the restart began
	startGen uint64
	pending  bool
	reason   Reason
}

// Recheck describes the follow-up owed once a restart completes.
type Recheck struct {
	ID     string
	Reason Reason
	// StartGen is the generation that the in-flight restart replaced.
	StartGen uint64
}

type acquireResult int

const (
	acquired acquireResult = iota
	deferred
	coalesced
)

// NewGuard returns an empty guard.
func NewGuard() *Guard {
	return &Guard{entries: make(map[string]*guardEntry)}
}

// acquire test-and-sets the entry for id. When a restart is already running,
// the first caller that may defer gets a re-check queued; everyone else
// coalesces.
func (g *Guard) acquire(id string, reason Reason, mayDefer bool) acquireResult {
	g.mu.Lock()
	defer g.mu.Unlock()

	e, busy := g.entries[id]
	if !busy {
		g.entries[id] = &guardEntry{}
		return acquired
	}
	if !mayDefer || e.pending {
		return coalesced
	}
	e.pending = true
	e.reason = reason
	return deferred
}

// begin records the generation the holder of id is about to replace.
func (g *Guard) begin(id string, gen uint64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if e, ok := g.entries[id]; ok {
		e.startGen = gen
	}
}

// release clears the entry for id and returns the owed re-check, if any.
func (g *Guard) release(id string) (Recheck, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	e, ok := g.entries[id]
	if !ok {
		return Recheck{}, false
	}
	delete(g.entries, id)
	if !e.pending {
		return Recheck{}, false
	}
	return Recheck{ID: id, Reason: e.reason, StartGen: e.startGen}, true
}

// Active reports whether a restart for id is in flight.
func (g *Guard) Active(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.entries[id]
	return ok
}
