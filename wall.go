package piframe

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/mmastrac/pi-frame/internal/config"
	"github.com/mmastrac/pi-frame/internal/events"
	"github.com/mmastrac/pi-frame/internal/layout"
	"github.com/mmastrac/pi-frame/internal/log"
	"github.com/mmastrac/pi-frame/internal/media"
	"github.com/mmastrac/pi-frame/internal/metrics"
	"github.com/mmastrac/pi-frame/internal/notify"
	"github.com/mmastrac/pi-frame/internal/orchestrator"
	"github.com/mmastrac/pi-frame/internal/ratestats"
	"github.com/mmastrac/pi-frame/internal/source"
	"github.com/mmastrac/pi-frame/internal/status"
)

// fpsInterval is how often per-source frame rates are published.
const fpsInterval = 5 * time.Second

// Wall is a configured video wall ready to run.
type Wall struct {
	cfg     *config.Config
	layout  layout.Layout
	media   *media.Wall
	orch    *orchestrator.Orchestrator
	tracker *ratestats.Tracker
	pub     *notify.Publisher
	log     zerolog.Logger
}

// New builds the display pipeline, registers every configured source in
// its slot and subscribes the restart dispatcher to runtime events. A
// source that cannot be built at startup is fatal.
func New(cfg *config.Config) (*Wall, error) {
	logger := log.WithComponent("wall")

	l, err := layout.Compute(cfg.Display.Width, cfg.Display.Height, cfg.Grid.Horizontal, cfg.Grid.Vertical)
	if err != nil {
		return nil, fmt.Errorf("piframe: %w", err)
	}
	specs, err := cfg.Specs()
	if err != nil {
		return nil, fmt.Errorf("piframe: %w", err)
	}
	if len(specs) > len(l.Cells) {
		return nil, fmt.Errorf("piframe: %d sources for %d cells", len(specs), len(l.Cells))
	}

	opts := media.WallOptions{
		Display: media.DisplayOptions{
			Sink:        cfg.Display.Sink,
			Device:      cfg.Display.Device,
			ClockFormat: cfg.Clock.Format,
		},
	}
	if cfg.Fallback.Enabled {
		fb := cfg.FallbackOptions()
		opts.Fallback = &fb
		for slot := range specs {
			opts.FallbackSlots = append(opts.FallbackSlots, slot)
		}
	}
	mw, err := media.NewWall(l, opts, log.WithComponent("media"))
	if err != nil {
		return nil, fmt.Errorf("piframe: %w", err)
	}

	tracker := ratestats.NewTracker(ratestats.DefaultCapacity)

	var (
		pub      *notify.Publisher
		onChange func(orchestrator.Status)
	)
	if cfg.MQTT.Broker != "" {
		pub, err = notify.New(notify.Options{
			Broker:      cfg.MQTT.Broker,
			ClientID:    cfg.MQTT.ClientID,
			Username:    cfg.MQTT.Username,
			Password:    cfg.MQTT.Password,
			TopicPrefix: cfg.MQTT.TopicPrefix,
			Encoding:    cfg.MQTT.Encoding,
			QoS:         byte(cfg.MQTT.QoS),
		}, log.WithComponent("notify"))
		if err != nil {
			return nil, fmt.Errorf("piframe: %w", err)
		}
		onChange = func(st orchestrator.Status) {
			stats, ok := tracker.Stats(st.ID, time.Now())
			pub.Notify(sourceView(st, stats, ok))
		}
	}

	orch, err := orchestrator.New(orchestrator.Config{
		Layout:     l,
		Graph:      mw.Graph(),
		Compositor: mw.Compositor(),
		Factory:    media.NewFactory(source.NewPlanner(cfg.RTSPOptions()), tracker, log.WithComponent("factory")),
		Scheduler:  media.IdleScheduler{},
		Fencer:     mw.Graph(),
		Logger:     log.WithComponent("orchestrator"),
		OnChange:   onChange,
	})
	if err != nil {
		return nil, fmt.Errorf("piframe: %w", err)
	}

	for slot, spec := range specs {
		if _, err := orch.Register(spec, slot); err != nil {
			return nil, fmt.Errorf("piframe: register slot %d: %w", slot, err)
		}
	}

	dispatcher := events.NewDispatcher(orch, mw.Name(), log.WithComponent("events"))
	if err := mw.Watch(dispatcher.Handle); err != nil {
		return nil, fmt.Errorf("piframe: %w", err)
	}

	logger.Info().
		Int("sources", len(specs)).
		Int("cells", len(l.Cells)).
		Int("horizontal", l.Horizontal).
		Int("vertical", l.Vertical).
		Bool("fallback", cfg.Fallback.Enabled).
		Bool("mqtt", pub != nil).
		Msg("wall built")

	return &Wall{
		cfg:     cfg,
		layout:  l,
		media:   mw,
		orch:    orch,
		tracker: tracker,
		pub:     pub,
		log:     logger,
	}, nil
}

// Run plays the wall until ctx is cancelled or a component fails. The
// status server and MQTT publisher run alongside when configured.
func (w *Wall) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return w.media.Run(ctx) })
	g.Go(func() error {
		w.publishFPS(ctx)
		return nil
	})
	if w.cfg.Status.Listen != "" {
		srv := status.NewServer(w.cfg.Status.Listen, w, log.WithComponent("status"))
		g.Go(func() error { return srv.Run(ctx) })
	}
	if w.pub != nil {
		g.Go(func() error { return w.pub.Run(ctx) })
	}

	return g.Wait()
}

// Restart rebuilds one source. It is safe to call from any goroutine.
func (w *Wall) Restart(id string, reason orchestrator.Reason) orchestrator.Outcome {
	return w.orch.Restart(id, reason)
}

// Sources returns every source with its restart state and frame rate, in
// slot order.
func (w *Wall) Sources() []status.Source {
	now := time.Now()
	all := w.orch.Sources()
	out := make([]status.Source, 0, len(all))
	for _, st := range all {
		stats, ok := w.tracker.Stats(st.ID, now)
		out = append(out, sourceView(st, stats, ok))
	}
	return out
}

func (w *Wall) publishFPS(ctx context.Context) {
	ticker := time.NewTicker(fpsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			for _, st := range w.orch.Sources() {
				stats, ok := w.tracker.Stats(st.ID, now)
				if !ok {
					metrics.SetSourceFPS(st.ID, 0)
					continue
				}
				metrics.SetSourceFPS(st.ID, stats.FPSMean)
				if !stats.Stable && st.State == orchestrator.StateActive {
					w.log.Debug().
						Str("source_id", st.ID).
						Float64("fps_mean", stats.FPSMean).
						Float64("fps_stddev", stats.FPSStdDev).
						Float64("jitter_mean", stats.JitterMean).
						Msg("unstable frame rate")
				}
			}
		}
	}
}

func sourceView(st orchestrator.Status, stats ratestats.Stats, haveStats bool) status.Source {
	v := status.Source{
		ID:          st.ID,
		Slot:        st.Slot,
		Description: st.Spec.Description,
		Kind:        source.KindName(st.Spec.Kind),
		State:       st.State.String(),
		Generation:  st.Generation,
		Restarts:    st.Restarts,
		LastReason:  st.LastReason,
		LastError:   st.LastError,
	}
	if !st.LastRestart.IsZero() {
		t := st.LastRestart
		v.LastRestart = &t
	}
	if haveStats {
		v.FPS = stats.FPSMean
		v.Stable = stats.Stable
		if !stats.LastFrame.IsZero() {
			t := stats.LastFrame
			v.LastFrame = &t
		}
	}
	return v
}
