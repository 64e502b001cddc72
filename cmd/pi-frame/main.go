// pi-frame drives a video wall on a single display: RTSP cameras, test
// patterns and still images laid out on a grid, each cell restarted on its
// own when its stream fails.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	piframe "github.com/mmastrac/pi-frame"
	"github.com/mmastrac/pi-frame/internal/config"
	"github.com/mmastrac/pi-frame/internal/layout"
	"github.com/mmastrac/pi-frame/internal/log"
)

var version = "v0.1.0"

// exitConfigChanged is the exit status used when the configuration file
// changes under --exit-on-config-change, so a supervisor restarts us.
const exitConfigChanged = 3

var errConfigChanged = errors.New("configuration changed")

type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) ExitCode() int { return e.code }

func main() {
	if err := run(); err != nil {
		var coder interface{ ExitCode() int }
		if errors.As(err, &coder) {
			fmt.Fprintf(os.Stderr, "pi-frame: %v\n", err)
			os.Exit(coder.ExitCode())
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath   string
		logLevel     string
		logFormat    string
		statusListen string
		exitOnChange bool
		check        bool
		showVersion  bool
	)

	flagSet := pflag.NewFlagSet("pi-frame", pflag.ContinueOnError)
	flagSet.StringVarP(&configPath, "config", "c", "pi-frame.yaml", "path to the wall configuration")
	flagSet.StringVar(&logLevel, "log-level", "", "log level (overrides log.level)")
	flagSet.StringVar(&logFormat, "log-format", "", "log format: json or console (overrides log.format)")
	flagSet.StringVar(&statusListen, "status-listen", "", "status server address (overrides status.listen)")
	flagSet.BoolVar(&exitOnChange, "exit-on-config-change", false, fmt.Sprintf("exit with status %d when the configuration file changes", exitConfigChanged))
	flagSet.BoolVar(&check, "check", false, "validate the configuration, print the layout and exit")
	flagSet.BoolVar(&showVersion, "version", false, "print the version and exit")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if showVersion {
		fmt.Println("pi-frame", version)
		return nil
	}
	if args := flagSet.Args(); len(args) > 0 {
		return fmt.Errorf("unexpected argument: %s", args[0])
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if logFormat != "" {
		cfg.Log.Format = logFormat
	}
	if statusListen != "" {
		cfg.Status.Listen = statusListen
	}

	log.Configure(log.Config{
		Level:   cfg.Log.Level,
		Format:  cfg.Log.Format,
		Service: "pi-frame",
	})
	logger := log.WithComponent("main")

	if check {
		return printLayout(cfg)
	}

	logger.Info().
		Str("version", version).
		Str("config", configPath).
		Str("sink", cfg.Display.Sink).
		Int("sources", len(cfg.Sources)).
		Msg("starting")

	wall, err := piframe.New(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return wall.Run(gctx) })
	if exitOnChange {
		g.Go(func() error {
			return config.Watch(gctx, configPath, log.WithComponent("config"), func(*config.Config) {
				logger.Info().Str("config", configPath).Msg("configuration changed, exiting")
				cancel(errConfigChanged)
			})
		})
	}

	err = g.Wait()
	if errors.Is(context.Cause(ctx), errConfigChanged) {
		return &exitError{code: exitConfigChanged, err: errConfigChanged}
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info().Msg("stopped")
	return nil
}

func printLayout(cfg *config.Config) error {
	l, err := layout.Compute(cfg.Display.Width, cfg.Display.Height, cfg.Grid.Horizontal, cfg.Grid.Vertical)
	if err != nil {
		return err
	}
	specs, err := cfg.Specs()
	if err != nil {
		return err
	}

	fmt.Printf("display %dx%d, grid %dx%d\n", l.DisplayWidth, l.DisplayHeight, l.Horizontal, l.Vertical)
	for i, cell := range l.Cells {
		what := "(empty)"
		if i < len(specs) {
			what = cfg.Sources[i].Description
			if what == "" {
				what = "(" + kindOf(cfg.Sources[i]) + ")"
			}
		}
		fmt.Printf("  slot %d  %4d,%-4d %4dx%-4d  %s\n", cell.Index, cell.X, cell.Y, cell.Width, cell.Height, what)
	}
	return nil
}

func kindOf(s config.SourceConfig) string {
	switch {
	case s.RTSP != nil:
		return "rtsp"
	case s.Pattern != "":
		return "pattern " + s.Pattern
	case s.Image != nil:
		return "image"
	}
	return "unknown"
}
