package source

import (
	"fmt"
	"time"
)

const (
	// DefaultFallbackTimeout is how long a slot may go without a fresh frame
	// before the placeholder is shown.
	DefaultFallbackTimeout = 10 * time.Second
	DefaultFallbackText    = "NO SIGNAL"
	DefaultFallbackPattern = "black"
)

// FallbackOptions configure the per-slot stale-stream placeholder.
type FallbackOptions struct {
	Timeout time.Duration
	Text    string
	Pattern string
}

// FallbackPlan is the switch placed in front of a compositor slot and the
// placeholder chain feeding its secondary input. Both live for the whole
// process; restarts only relink the live input.
type FallbackPlan struct {
	Slot        int
	Switch      Stage
	Placeholder Chain
}

// FallbackName is the runtime name of a slot's fallback element with the
// given role. The prefix is not a source prefix, so events from these
// elements never trigger a restart.
func FallbackName(slot int, role Role) string {
	return fmt.Sprintf("fallback_%d_%s", slot, role)
}

// PlanFallback plans the fallback switch and placeholder for slot.
func PlanFallback(slot, width, height int, opts FallbackOptions) (FallbackPlan, error) {
	id := fmt.Sprintf("fallback_%d", slot)
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultFallbackTimeout
	}
	if opts.Text == "" {
		opts.Text = DefaultFallbackText
	}
	if opts.Pattern == "" {
		opts.Pattern = DefaultFallbackPattern
	}
	if !ValidPattern(opts.Pattern) {
		return FallbackPlan{}, buildErr(id, RoleSource, "unknown fallback pattern %q", opts.Pattern)
	}
	if width < 1 || height < 1 {
		return FallbackPlan{}, buildErr(id, "", "invalid target size %dx%d", width, height)
	}

	sw := Stage{
		Role:    "switch",
		Factory: "fallbackswitch",
		Name:    FallbackName(slot, "switch"),
		Props: []Prop{
			{"timeout", uint64(opts.Timeout)},
			{"immediate-fallback", true},
		},
	}

	placeholder := Chain{
		ID:     id,
		Width:  width,
		Height: height,
		Stages: []Stage{
			{
				Role:    RoleSource,
				Factory: "videotestsrc",
				Name:    FallbackName(slot, RoleSource),
				Props:   []Prop{{"pattern", opts.Pattern}, {"is-live", true}},
			},
			{
				Role:    RoleCaps,
				Factory: "capsfilter",
				Name:    FallbackName(slot, RoleCaps),
				Props:   []Prop{{"caps", RawCaps(width, height)}},
			},
			{
				Role:    RoleLabel,
				Factory: "textoverlay",
				Name:    FallbackName(slot, RoleLabel),
				Props: []Prop{
					{"text", opts.Text},
					{"valignment", "center"},
					{"halignment", "center"},
					{"font-desc", "Sans Bold 24"},
				},
			},
			{
				Role:    RoleOutput,
				Factory: "queue",
				Name:    FallbackName(slot, RoleOutput),
				Props:   queueProps(true),
			},
		},
	}

	return FallbackPlan{Slot: slot, Switch: sw, Placeholder: placeholder}, nil
}
