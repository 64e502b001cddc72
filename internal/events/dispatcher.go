package events

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/mmastrac/pi-frame/internal/metrics"
	"github.com/mmastrac/pi-frame/internal/orchestrator"
)

// Restarter is the orchestrator entry point the dispatcher drives. epoch is
// the number of fences seen for id before the triggering event.
type Restarter interface {
	RestartIfCurrent(id string, reason orchestrator.Reason, epoch uint64) orchestrator.Outcome
}

// Dispatcher handles every event delivered on the runtime bus for the
// lifetime of the graph.
type Dispatcher struct {
	restarter Restarter
	graphName string
	log       zerolog.Logger

	mu     sync.Mutex
	epochs map[string]uint64
}

// NewDispatcher returns a dispatcher for the graph named graphName.
func NewDispatcher(r Restarter, graphName string, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		restarter: r,
		graphName: graphName,
		log:       logger,
		epochs:    make(map[string]uint64),
	}
}

// Handle classifies ev and acts on it. It always returns true so the bus
// subscription stays in place, whatever happened.
func (d *Dispatcher) Handle(ev Event) bool {
	metrics.RecordEvent(ev.Kind.String())

	switch ev.Kind {
	case KindError:
		d.onError(ev)
	case KindElement:
		d.onElement(ev)
	case KindWarning:
		d.log.Warn().
			Str("element", ev.Source).
			Str("debug", ev.Debug).
			Msg(ev.Message)
	case KindStateChanged:
		if Interesting(ev.Source, d.graphName) {
			d.log.Debug().
				Str("element", ev.Source).
				Str("from", ev.OldState).
				Str("to", ev.NewState).
				Msg("state changed")
		}
	case KindFence:
		d.fence(ev.Source, ev.Epoch)
	case KindEOS:
		d.log.Info().Str("element", ev.Source).Msg("end of stream")
	case KindProgress, KindStreamStatus:
		d.log.Trace().
			Str("element", ev.Source).
			Str("type", ev.Kind.String()).
			Msg(ev.Message)
	}
	return true
}

func (d *Dispatcher) onError(ev Event) {
	category := Categorize(ev.Message, ev.Debug)
	action := Classify(ev)

	logger := d.log.With().
		Str("element", ev.Source).
		Str("category", category.String()).
		Logger()

	if !action.Restart {
		logger.Error().Str("debug", ev.Debug).Msg(ev.Message)
		return
	}

	metrics.RecordSourceError(action.ID, category.String())
	logger.Error().
		Str("source_id", action.ID).
		Str("stage", string(action.Role)).
		Str("debug", ev.Debug).
		Msg(ev.Message)

	outcome := d.restart(action)
	logger.Debug().
		Str("source_id", action.ID).
		Str("outcome", outcome.String()).
		Msg("restart requested")
}

func (d *Dispatcher) onElement(ev Event) {
	action := Classify(ev)
	if !action.Restart {
		d.log.Trace().
			Str("element", ev.Source).
			Str("structure", ev.Structure).
			Msg("element message")
		return
	}

	metrics.RecordSourceError(action.ID, CategoryStall.String())
	outcome := d.restart(action)
	d.log.Warn().
		Str("source_id", action.ID).
		Str("element", ev.Source).
		Str("structure", ev.Structure).
		Str("outcome", outcome.String()).
		Msg("source timed out")
}

func (d *Dispatcher) restart(action Action) orchestrator.Outcome {
	d.mu.Lock()
	epoch := d.epochs[action.ID]
	d.mu.Unlock()
	return d.restarter.RestartIfCurrent(action.ID, action.Reason, epoch)
}

func (d *Dispatcher) fence(id string, epoch uint64) {
	d.mu.Lock()
	if epoch > d.epochs[id] {
		d.epochs[id] = epoch
	}
	d.mu.Unlock()
	d.log.Trace().Str("source_id", id).Uint64("epoch", epoch).Msg("fence passed")
}
