// Package orchestrator owns the table of live wall sources and replaces a
// failed source's subgraph while the rest of the wall keeps playing.
//
// Restart entry points are called from runtime callbacks. At most one
// restart runs per source at a time (see Guard); restarts of different
// sources proceed independently, each touching only its own subgraph and
// compositor slot.
package orchestrator

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/mmastrac/pi-frame/internal/layout"
	"github.com/mmastrac/pi-frame/internal/metrics"
	"github.com/mmastrac/pi-frame/internal/source"
)

// Config wires the orchestrator to its collaborators.
type Config struct {
	Layout     layout.Layout
	Graph      Graph
	Compositor Compositor
	Factory    Factory
	Scheduler  Scheduler
	Logger     zerolog.Logger

	// Fencer, if set, is fenced each time a subgraph is removed, so that
	// RestartIfCurrent can tell late events of the old subgraph apart.
	Fencer Fencer

	// OnChange, if set, is called with the new status after every state
	// transition. It runs on the restarting goroutine and must not block.
	OnChange func(Status)
}

// Orchestrator implements the source lifecycle and restart protocol.
type Orchestrator struct {
	layout  layout.Layout
	graph   Graph
	comp    Compositor
	factory Factory
	sched   Scheduler
	fencer  Fencer
	log     zerolog.Logger
	notify  func(Status)

	guard *Guard

	mu      sync.RWMutex
	sources map[string]*entry
}

type entry struct {
	inst   Instance
	sub    Subgraph
	handle *PortHandle

	state       State
	generation  uint64
	restarts    uint64
	lastReason  string
	lastRestart time.Time
	lastError   string

	// epoch counts the fences placed for this source.
	epoch uint64
}

// New validates cfg and returns an orchestrator with no sources.
func New(cfg Config) (*Orchestrator, error) {
	switch {
	case cfg.Graph == nil:
		return nil, fmt.Errorf("orchestrator: graph is required")
	case cfg.Compositor == nil:
		return nil, fmt.Errorf("orchestrator: compositor is required")
	case cfg.Factory == nil:
		return nil, fmt.Errorf("orchestrator: factory is required")
	case cfg.Scheduler == nil:
		return nil, fmt.Errorf("orchestrator: scheduler is required")
	case len(cfg.Layout.Cells) == 0:
		return nil, fmt.Errorf("orchestrator: layout has no cells")
	}

	return &Orchestrator{
		layout:  cfg.Layout,
		graph:   cfg.Graph,
		comp:    cfg.Compositor,
		factory: cfg.Factory,
		sched:   cfg.Scheduler,
		fencer:  cfg.Fencer,
		log:     cfg.Logger,
		notify:  cfg.OnChange,
		guard:   NewGuard(),
		sources: make(map[string]*entry),
	}, nil
}

// Register binds spec to slot, builds its subgraph and links it into the
// compositor. Build or link failures are returned; at startup they are
// fatal.
func (o *Orchestrator) Register(spec source.Spec, slot int) (Instance, error) {
	cell, ok := o.layout.Cell(slot)
	if !ok {
		return Instance{}, fmt.Errorf("orchestrator: slot %d outside %dx%d grid: %w",
			slot, o.layout.Horizontal, o.layout.Vertical, ErrNotFound)
	}

	inst := Instance{
		ID:     source.ID(slot),
		Slot:   slot,
		Width:  cell.Width,
		Height: cell.Height,
		Spec:   spec,
	}

	o.mu.Lock()
	if _, dup := o.sources[inst.ID]; dup {
		o.mu.Unlock()
		return Instance{}, fmt.Errorf("orchestrator: slot %d already registered", slot)
	}
	e := &entry{inst: inst, state: StatePending}
	o.sources[inst.ID] = e
	o.mu.Unlock()
	metrics.SetSourceState(inst.ID, StatePending.String())
	o.changed(e)

	sub, err := o.factory.Create(spec, inst.ID, inst.Width, inst.Height)
	if err != nil {
		o.setDark(e, err)
		return Instance{}, fmt.Errorf("orchestrator: create %s: %w", inst.ID, err)
	}
	if err := o.link(e, sub); err != nil {
		o.setDark(e, err)
		return Instance{}, fmt.Errorf("orchestrator: link %s: %w", inst.ID, err)
	}

	o.log.Info().
		Str("source_id", inst.ID).
		Int("slot", slot).
		Str("kind", source.KindName(spec.Kind)).
		Str("description", spec.Description).
		Int("x", cell.X).Int("y", cell.Y).
		Int("width", cell.Width).Int("height", cell.Height).
		Msg("source linked")
	return inst, nil
}

// link adds sub to the graph, attaches its output to the entry's slot and
// syncs its state. On failure sub is pulled back out of the graph.
func (o *Orchestrator) link(e *entry, sub Subgraph) error {
	if err := o.graph.Add(sub); err != nil {
		return fmt.Errorf("add %s: %w", sub.Name(), err)
	}

	out, err := sub.Output()
	if err != nil {
		o.discard(sub)
		return fmt.Errorf("output of %s: %w", sub.Name(), err)
	}
	h, err := o.comp.Attach(e.inst.Slot, out)
	if err != nil {
		o.discard(sub)
		return fmt.Errorf("attach %s to slot %d: %w", sub.Name(), e.inst.Slot, err)
	}
	if err := o.graph.SyncState(sub); err != nil {
		// The subgraph is linked; the runtime will report errors through
		// the event channel if it never reaches playback.
		o.log.Warn().Err(err).Str("source_id", e.inst.ID).Msg("state sync failed")
	}

	o.mu.Lock()
	e.sub = sub
	e.handle = &h
	e.generation++
	e.state = StateActive
	e.lastError = ""
	o.mu.Unlock()
	metrics.SetSourceState(e.inst.ID, StateActive.String())
	o.changed(e)
	return nil
}

// discard removes a subgraph that never made it into service.
func (o *Orchestrator) discard(sub Subgraph) {
	if err := o.graph.Remove(sub); err != nil {
		o.log.Warn().Err(err).Str("subgraph", sub.Name()).Msg("remove of unlinked subgraph failed")
	}
	o.deferStop(sub, "")
}

func (o *Orchestrator) setDark(e *entry, cause error) {
	o.mu.Lock()
	e.state = StateDark
	if cause != nil {
		e.lastError = cause.Error()
	}
	o.mu.Unlock()
	metrics.SetSourceState(e.inst.ID, StateDark.String())
	o.changed(e)
}

func (o *Orchestrator) changed(e *entry) {
	if o.notify == nil {
		return
	}
	o.mu.RLock()
	st := e.status()
	o.mu.RUnlock()
	o.notify(st)
}

func (o *Orchestrator) lookup(id string) (*entry, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	e, ok := o.sources[id]
	if !ok {
		return nil, fmt.Errorf("source %q: %w", id, ErrNotFound)
	}
	return e, nil
}

// Source returns the status of one source.
func (o *Orchestrator) Source(id string) (Status, error) {
	e, err := o.lookup(id)
	if err != nil {
		return Status{}, err
	}
	o.mu.RLock()
	defer o.mu.RUnlock()
	return e.status(), nil
}

// Sources returns the status of every source, ordered by slot.
func (o *Orchestrator) Sources() []Status {
	o.mu.RLock()
	out := make([]Status, 0, len(o.sources))
	for _, e := range o.sources {
		out = append(out, e.status())
	}
	o.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Slot < out[j].Slot })
	return out
}

// Layout returns the grid the orchestrator places sources on.
func (o *Orchestrator) Layout() layout.Layout {
	return o.layout
}

// Restarting reports whether a restart for id is in flight.
func (o *Orchestrator) Restarting(id string) bool {
	return o.guard.Active(id)
}

func (e *entry) status() Status {
	return Status{
		Instance:    e.inst,
		State:       e.state,
		Generation:  e.generation,
		Restarts:    e.restarts,
		LastReason:  e.lastReason,
		LastRestart: e.lastRestart,
		LastError:   e.lastError,
	}
}

// deferStop queues the stop/free transition of a removed subgraph. The
// result is logged and counted, never escalated.
func (o *Orchestrator) deferStop(sub Subgraph, restartID string) {
	task := func() {
		if err := o.graph.Stop(sub); err != nil {
			metrics.RecordDeferredDestroy("failed")
			o.log.Warn().Err(err).
				Str("subgraph", sub.Name()).
				Str("restart_id", restartID).
				Msg("deferred stop of old subgraph failed")
			return
		}
		metrics.RecordDeferredDestroy("ok")
		o.log.Debug().
			Str("subgraph", sub.Name()).
			Str("restart_id", restartID).
			Msg("old subgraph stopped")
	}
	if err := o.sched.Schedule(task); err != nil {
		metrics.RecordDeferredDestroy("unscheduled")
		o.log.Error().Err(err).
			Str("subgraph", sub.Name()).
			Str("restart_id", restartID).
			Msg("could not schedule stop of old subgraph")
	}
}
