package orchestrator

import (
	"errors"
	"time"

	"github.com/mmastrac/pi-frame/internal/source"
)

var (
	// ErrNotFound is returned by every lookup on the media graph that comes
	// back empty: a port without a peer, a subgraph without an output, an
	// unknown source id.
	ErrNotFound = errors.New("not found")

	// ErrInconsistentGraph wraps detach failures. The graph no longer looks
	// the way the orchestrator left it.
	ErrInconsistentGraph = errors.New("inconsistent graph")
)

// Port is one end of a link in the media graph.
type Port interface {
	Name() string
	// Peer returns the port this one is linked to, or ErrNotFound.
	Peer() (Port, error)
	Unlink(peer Port) error
	// Equal reports whether other is this same port. Names repeat across
	// elements, so they do not identify a port.
	Equal(other Port) bool
}

// Subgraph is a built source chain with exactly one output port.
type Subgraph interface {
	Name() string
	Output() (Port, error)
}

// Factory builds detached source subgraphs.
type Factory interface {
	Create(spec source.Spec, id string, width, height int) (Subgraph, error)
}

// Graph is the shared top-level graph that source subgraphs live in.
type Graph interface {
	// Add places sub in the active set.
	Add(sub Subgraph) error
	// Remove takes sub out of the active set so the runtime stops driving it.
	Remove(sub Subgraph) error
	// SyncState brings sub to the graph's current playback state.
	SyncState(sub Subgraph) error
	// Stop releases a removed subgraph. It must not run on the thread that
	// delivered the failure event for sub.
	Stop(sub Subgraph) error
}

// PortHandle identifies the compositor-side port a source output feeds.
type PortHandle struct {
	Slot int
	Port Port
}

// Compositor owns one input slot per grid cell.
type Compositor interface {
	Attach(slot int, out Port) (PortHandle, error)
	Detach(h PortHandle) error
}

// Fencer marks a point in the runtime's event stream. Events for id
// delivered after the fence with epoch n were posted after the fence was
// placed, so never by a subgraph removed before it.
type Fencer interface {
	Fence(id string, epoch uint64) error
}

// Scheduler runs tasks later on the runtime's own loop, outside the
// current callback.
type Scheduler interface {
	Schedule(task func()) error
}

// Reason is why a restart was requested.
type Reason int

const (
	ReasonError Reason = iota
	ReasonTimeout
)

func (r Reason) String() string {
	switch r {
	case ReasonError:
		return "error"
	case ReasonTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Outcome is the result of one call to Restart.
type Outcome int

const (
	// OutcomeRestarted: the subgraph was rebuilt and relinked.
	OutcomeRestarted Outcome = iota
	// OutcomeDeferred: a restart was already running; a single re-check
	// was queued for when it finishes.
	OutcomeDeferred
	// OutcomeCoalesced: a restart was running and a re-check was already
	// queued, or a re-check found another restart running.
	OutcomeCoalesced
	// OutcomeSkipped: a re-check found the source already rebuilt.
	OutcomeSkipped
	// OutcomeRebuildFailed: the factory failed; the cell stays dark.
	OutcomeRebuildFailed
	// OutcomeDetachFailed: teardown found the graph inconsistent.
	OutcomeDetachFailed
	// OutcomeAttachFailed: the new subgraph could not be linked in.
	OutcomeAttachFailed
	// OutcomeUnknownSource: no source with that id.
	OutcomeUnknownSource
	// OutcomeStale: the event came from a subgraph already replaced.
	OutcomeStale
)

func (o Outcome) String() string {
	switch o {
	case OutcomeRestarted:
		return "restarted"
	case OutcomeDeferred:
		return "deferred"
	case OutcomeCoalesced:
		return "coalesced"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeRebuildFailed:
		return "rebuild_failed"
	case OutcomeDetachFailed:
		return "detach_failed"
	case OutcomeAttachFailed:
		return "attach_failed"
	case OutcomeUnknownSource:
		return "unknown_source"
	case OutcomeStale:
		return "stale"
	default:
		return "unknown"
	}
}

// State is the lifecycle state of one source.
type State int

const (
	// StatePending: registered, never linked.
	StatePending State = iota
	StateActive
	StateRestarting
	// StateDark: the last rebuild or relink failed; nothing feeds the slot.
	StateDark
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateActive:
		return "active"
	case StateRestarting:
		return "restarting"
	case StateDark:
		return "dark"
	default:
		return "unknown"
	}
}

// Instance is a source spec bound to a grid slot. ID, Slot, Width and
// Height never change across restarts.
type Instance struct {
	ID     string
	Slot   int
	Width  int
	Height int
	Spec   source.Spec
}

// Status is a point-in-time view of one source.
type Status struct {
	Instance
	State       State
	Generation  uint64
	Restarts    uint64
	LastReason  string
	LastRestart time.Time
	LastError   string
}
