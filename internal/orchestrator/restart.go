package orchestrator

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mmastrac/pi-frame/internal/metrics"
)

// Restart tears down the subgraph for id and replaces it with a fresh one
// linked to the same compositor slot.
//
// If a restart for id is already in flight the call returns immediately;
// the first such call queues a single re-check to run on the scheduler
// after the in-flight restart finishes. Restart never panics and never
// returns an error: every failure is contained in the returned Outcome.
func (o *Orchestrator) Restart(id string, reason Reason) Outcome {
	return o.restart(id, reason, nil)
}

// RestartIfCurrent is Restart for an event delivered after epoch fences
// for id. An event that arrives before the latest fence was posted by a
// subgraph that has since been removed; it returns OutcomeStale and the
// live subgraph is left alone. Without a Fencer it is Restart.
func (o *Orchestrator) RestartIfCurrent(id string, reason Reason, epoch uint64) Outcome {
	if o.fencer != nil {
		if e, err := o.lookup(id); err == nil {
			o.mu.RLock()
			current := e.epoch
			o.mu.RUnlock()
			if epoch < current {
				o.log.Debug().
					Str("source_id", id).
					Str("reason", reason.String()).
					Uint64("epoch", epoch).
					Uint64("current_epoch", current).
					Msg("event from replaced subgraph ignored")
				metrics.RecordRestart(id, reason.String(), OutcomeStale.String())
				return OutcomeStale
			}
		}
	}
	return o.restart(id, reason, nil)
}

func (o *Orchestrator) restart(id string, reason Reason, rc *Recheck) (outcome Outcome) {
	restartID := uuid.NewString()
	logger := o.log.With().
		Str("source_id", id).
		Str("reason", reason.String()).
		Str("restart_id", restartID).
		Bool("recheck", rc != nil).
		Logger()

	defer func() {
		metrics.RecordRestart(id, reason.String(), outcome.String())
	}()

	e, err := o.lookup(id)
	if err != nil {
		logger.Warn().Err(err).Msg("restart requested for unknown source")
		return OutcomeUnknownSource
	}

	switch o.guard.acquire(id, reason, rc == nil) {
	case deferred:
		logger.Info().Msg("restart in flight, re-check queued")
		return OutcomeDeferred
	case coalesced:
		logger.Debug().Msg("restart in flight, event coalesced")
		return OutcomeCoalesced
	}
	defer o.finish(id, logger)

	// The guard is held from here on; nothing else moves e's generation.
	o.mu.Lock()
	gen := e.generation
	o.guard.begin(id, gen)
	if rc != nil && gen > rc.StartGen {
		o.mu.Unlock()
		logger.Debug().
			Uint64("generation", gen).
			Uint64("start_generation", rc.StartGen).
			Msg("source already rebuilt, re-check skipped")
		return OutcomeSkipped
	}
	old, handle := e.sub, e.handle
	e.state = StateRestarting
	e.restarts++
	e.lastReason = reason.String()
	e.lastRestart = time.Now()
	o.mu.Unlock()
	metrics.SetSourceState(id, StateRestarting.String())
	o.changed(e)

	logger.Info().Int("slot", e.inst.Slot).Uint64("generation", gen).Msg("restarting source")

	if old != nil {
		if err := o.detach(old, handle); err != nil {
			logger.Error().Err(err).Msg("detach failed, restart aborted")
			o.setDark(e, err)
			return OutcomeDetachFailed
		}
		if err := o.graph.Remove(old); err != nil {
			// Already unlinked from the compositor; the deferred stop still
			// releases its resources.
			logger.Warn().Err(err).Msg("remove of old subgraph failed")
		}
		o.mu.Lock()
		e.sub, e.handle = nil, nil
		o.mu.Unlock()
		o.fence(e, logger)
		o.deferStop(old, restartID)
	}

	sub, err := o.factory.Create(e.inst.Spec, e.inst.ID, e.inst.Width, e.inst.Height)
	if err != nil {
		logger.Error().Err(err).Msg("rebuild failed, cell left dark")
		o.setDark(e, err)
		return OutcomeRebuildFailed
	}

	if err := o.link(e, sub); err != nil {
		logger.Error().Err(err).Msg("relink failed, cell left dark")
		o.setDark(e, err)
		return OutcomeAttachFailed
	}

	logger.Info().Int("slot", e.inst.Slot).Msg("source restarted")
	return OutcomeRestarted
}

// detach unlinks sub's output from the compositor port recorded in handle and
// releases that port. The slot index itself is kept on the instance.
func (o *Orchestrator) detach(sub Subgraph, handle *PortHandle) error {
	if handle == nil {
		return fmt.Errorf("%s has no compositor port: %w", sub.Name(), ErrInconsistentGraph)
	}

	out, err := sub.Output()
	if err != nil {
		return fmt.Errorf("output of %s: %w: %w", sub.Name(), ErrInconsistentGraph, err)
	}
	peer, err := out.Peer()
	if err != nil {
		return fmt.Errorf("peer of %s: %w: %w", out.Name(), ErrInconsistentGraph, err)
	}
	if !peer.Equal(handle.Port) {
		return fmt.Errorf("%s feeds %s, expected %s: %w",
			out.Name(), peer.Name(), handle.Port.Name(), ErrInconsistentGraph)
	}
	if err := out.Unlink(peer); err != nil {
		return fmt.Errorf("unlink %s from %s: %w: %w", out.Name(), peer.Name(), ErrInconsistentGraph, err)
	}
	if err := o.comp.Detach(*handle); err != nil {
		return fmt.Errorf("release slot %d: %w: %w", handle.Slot, ErrInconsistentGraph, err)
	}
	return nil
}

// fence places the next fence for e. It must run after the old subgraph
// left the graph and before its replacement joins it. If the fence cannot
// be placed the epoch stays put and late events are treated as current.
func (o *Orchestrator) fence(e *entry, logger zerolog.Logger) {
	if o.fencer == nil {
		return
	}
	o.mu.RLock()
	next := e.epoch + 1
	o.mu.RUnlock()

	if err := o.fencer.Fence(e.inst.ID, next); err != nil {
		logger.Warn().Err(err).Uint64("epoch", next).Msg("fence not placed")
		return
	}
	o.mu.Lock()
	e.epoch = next
	o.mu.Unlock()
}

// finish releases the guard for id and schedules the owed re-check, if any.
func (o *Orchestrator) finish(id string, logger zerolog.Logger) {
	rc, ok := o.guard.release(id)
	if !ok {
		return
	}
	task := func() {
		outcome := o.restart(rc.ID, rc.Reason, &rc)
		logger.Debug().Str("outcome", outcome.String()).Msg("re-check finished")
	}
	if err := o.sched.Schedule(task); err != nil {
		logger.Error().Err(err).Msg("could not schedule re-check")
	}
}
