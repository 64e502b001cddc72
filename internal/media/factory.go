package media

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/tinyzimmer/go-gst/gst"

	"github.com/mmastrac/pi-frame/internal/metrics"
	"github.com/mmastrac/pi-frame/internal/orchestrator"
	"github.com/mmastrac/pi-frame/internal/ratestats"
	"github.com/mmastrac/pi-frame/internal/source"
)

// Factory builds source bins from planned chains.
type Factory struct {
	planner source.Planner
	tracker *ratestats.Tracker
	log     zerolog.Logger
}

// NewFactory returns a factory. tracker may be nil to disable frame
// accounting.
func NewFactory(planner source.Planner, tracker *ratestats.Tracker, logger zerolog.Logger) *Factory {
	return &Factory{planner: planner, tracker: tracker, log: logger}
}

// Create plans spec for the width x height cell and builds a detached bin
// named id whose only output is a ghost "src" pad.
func (f *Factory) Create(spec source.Spec, id string, width, height int) (orchestrator.Subgraph, error) {
	chain, err := f.planner.Plan(spec, id, width, height)
	if err != nil {
		return nil, err
	}

	sub, err := buildBin(chain)
	if err != nil {
		return nil, err
	}
	if f.tracker != nil {
		f.tracker.Reset(id)
		f.addFrameProbe(sub, chain)
	}

	f.log.Debug().
		Str("source_id", id).
		Str("kind", source.KindName(spec.Kind)).
		Str("launch", chain.Launch()).
		Msg("source bin built")
	return sub, nil
}

// buildBin renders chain into a bin named chain.ID and ghosts the src pad of
// its output stage.
func buildBin(chain source.Chain) (*Subgraph, error) {
	bin, err := gst.NewBinFromString(chain.Launch(), false)
	if err != nil {
		return nil, &source.BuildError{ID: chain.ID, Err: fmt.Errorf("parse chain: %w", err)}
	}
	if err := bin.SetProperty("name", chain.ID); err != nil {
		return nil, &source.BuildError{ID: chain.ID, Err: fmt.Errorf("name bin: %w", err)}
	}

	outName := chain.OutputName()
	out, err := bin.GetElementByName(outName)
	if err != nil {
		return nil, &source.BuildError{ID: chain.ID, Stage: source.RoleOutput,
			Err: fmt.Errorf("element %s: %w: %w", outName, orchestrator.ErrNotFound, err)}
	}
	target := out.GetStaticPad("src")
	if target == nil {
		return nil, &source.BuildError{ID: chain.ID, Stage: source.RoleOutput,
			Err: fmt.Errorf("%s src pad: %w", outName, orchestrator.ErrNotFound)}
	}

	ghost := gst.NewGhostPad("src", target)
	if ghost == nil {
		return nil, &source.BuildError{ID: chain.ID, Stage: source.RoleOutput, Err: errors.New("ghost pad refused")}
	}
	if !bin.AddPad(ghost.Pad) {
		return nil, &source.BuildError{ID: chain.ID, Stage: source.RoleOutput, Err: errors.New("add ghost pad refused")}
	}
	return &Subgraph{bin: bin, out: ghost.Pad}, nil
}

// addFrameProbe counts every buffer leaving the output stage.
func (f *Factory) addFrameProbe(sub *Subgraph, chain source.Chain) {
	id := chain.ID
	out, err := sub.bin.GetElementByName(chain.OutputName())
	if err != nil {
		f.log.Warn().Err(err).Str("source_id", id).Msg("frame probe not installed")
		return
	}
	srcPad := out.GetStaticPad("src")
	if srcPad == nil {
		f.log.Warn().Str("source_id", id).Msg("frame probe not installed: no src pad")
		return
	}

	srcPad.AddProbe(gst.PadProbeTypeBuffer, func(_ *gst.Pad, info *gst.PadProbeInfo) gst.PadProbeReturn {
		if info.GetBuffer() == nil {
			return gst.PadProbeOK
		}
		f.tracker.Observe(id, time.Now())
		metrics.RecordFrame(id)
		return gst.PadProbeOK
	})
}
