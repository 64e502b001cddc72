// Package media builds the wall on GStreamer: the display pipeline with its
// compositor, source bins from planned chains, and the adapters that let
// the orchestrator drive them.
package media

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/tinyzimmer/go-glib/glib"
	"github.com/tinyzimmer/go-gst/gst"

	"github.com/mmastrac/pi-frame/internal/events"
	"github.com/mmastrac/pi-frame/internal/layout"
	"github.com/mmastrac/pi-frame/internal/source"
)

var initOnce sync.Once

// Init initialises GStreamer once per process.
func Init() {
	initOnce.Do(func() { gst.Init(nil) })
}

// Missing returns the element factories from names not installed.
func Missing(names ...string) []string {
	Init()
	var missing []string
	for _, name := range names {
		if gst.Find(name) == nil {
			missing = append(missing, name)
		}
	}
	return missing
}

// WallOptions configure NewWall.
type WallOptions struct {
	Display DisplayOptions
	// Fallback, when set, puts a stale-stream placeholder in front of every
	// slot in FallbackSlots.
	Fallback      *source.FallbackOptions
	FallbackSlots []int
}

// Wall is the running pipeline: compositor, display sink and the source
// bins attached to it.
type Wall struct {
	pipeline   *gst.Pipeline
	compositor *Compositor
	graph      *Graph
	layout     layout.Layout
	log        zerolog.Logger
}

// NewWall builds the display pipeline for l. Sources are attached later
// through Graph and Compositor.
func NewWall(l layout.Layout, opts WallOptions, logger zerolog.Logger) (*Wall, error) {
	Init()

	if opts.Display.Sink == "" {
		return nil, errors.New("media: display sink is required")
	}
	if missing := Missing(opts.Display.Sink, "compositor", "videoconvert"); len(missing) > 0 {
		return nil, fmt.Errorf("media: missing GStreamer elements: %v", missing)
	}

	chain := displayChain(opts.Display, l.DisplayWidth, l.DisplayHeight)
	pipeline, err := gst.NewPipelineFromString(chain.Launch())
	if err != nil {
		return nil, fmt.Errorf("media: build display pipeline: %w", err)
	}
	if err := pipeline.SetProperty("name", PipelineName); err != nil {
		return nil, fmt.Errorf("media: name pipeline: %w", err)
	}
	mixer, err := pipeline.GetElementByName(MixerName)
	if err != nil {
		return nil, fmt.Errorf("media: find %s: %w", MixerName, err)
	}

	w := &Wall{
		pipeline:   pipeline,
		compositor: newCompositor(pipeline, mixer, l, logger),
		graph:      &Graph{pipeline: pipeline},
		layout:     l,
		log:        logger,
	}

	if opts.Fallback != nil {
		if missing := Missing("fallbackswitch"); len(missing) > 0 {
			return nil, fmt.Errorf("media: fallback requires %v (gst-plugins-rs)", missing)
		}
		for _, slot := range opts.FallbackSlots {
			cell, ok := l.Cell(slot)
			if !ok {
				return nil, fmt.Errorf("media: fallback slot %d outside grid", slot)
			}
			plan, err := source.PlanFallback(slot, cell.Width, cell.Height, *opts.Fallback)
			if err != nil {
				return nil, fmt.Errorf("media: %w", err)
			}
			if err := w.compositor.addFallback(plan); err != nil {
				return nil, fmt.Errorf("media: %w", err)
			}
		}
	}

	logger.Info().
		Str("launch", chain.Launch()).
		Int("width", l.DisplayWidth).
		Int("height", l.DisplayHeight).
		Int("fallback_slots", len(w.compositor.fallbacks)).
		Msg("display pipeline built")
	return w, nil
}

// Graph returns the pipeline viewed as the set of source bins.
func (w *Wall) Graph() *Graph { return w.graph }

// Compositor returns the slot compositor.
func (w *Wall) Compositor() *Compositor { return w.compositor }

// Name returns the pipeline name used on bus messages.
func (w *Wall) Name() string { return w.pipeline.GetName() }

// Watch subscribes handler to every bus message for the pipeline's
// lifetime. Handlers run on the main loop.
func (w *Wall) Watch(handler func(events.Event) bool) error {
	bus := w.pipeline.GetPipelineBus()
	if bus == nil {
		return errors.New("media: pipeline has no bus")
	}
	if !bus.AddWatch(func(msg *gst.Message) bool {
		return handler(toEvent(msg))
	}) {
		return errors.New("media: bus watch refused")
	}
	return nil
}

// Run plays the pipeline and drives the GLib main loop until ctx is done,
// then stops the pipeline.
func (w *Wall) Run(ctx context.Context) error {
	if err := w.pipeline.SetState(gst.StatePlaying); err != nil {
		return fmt.Errorf("media: start pipeline: %w", err)
	}
	w.log.Info().Msg("pipeline playing")

	loop := glib.NewMainLoop(glib.MainContextDefault(), false)
	stop := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			loop.Quit()
		case <-stop:
		}
	}()
	loop.Run()
	close(stop)

	if err := w.pipeline.SetState(gst.StateNull); err != nil {
		return fmt.Errorf("media: stop pipeline: %w", err)
	}
	w.log.Info().Msg("pipeline stopped")
	return nil
}
