package source

import (
	"fmt"
	"strings"
	"time"
)

const (
	// DefaultDecoder is the V4L2 stateful H.264 decoder found on Raspberry Pi boards.
	DefaultDecoder = "v4l2h264dec"
	// DefaultRTSPTimeout is how long the decode watchdog waits for a frame.
	DefaultRTSPTimeout = 30 * time.Second
	// DefaultRTSPLatency is the rtspsrc jitterbuffer size.
	DefaultRTSPLatency = 200 * time.Millisecond

	labelFont = "Sans Bold 14"
)

// Patterns accepted by the synthetic pattern source.
var Patterns = []string{
	"smpte", "snow", "black", "white", "red", "green", "blue",
	"checkers-1", "checkers-2", "checkers-4", "checkers-8",
	"circular", "blink", "smpte75", "zone-plate", "gamut",
	"chroma-zone-plate", "solid-color", "ball", "smpte100", "bar",
	"pinwheel", "spokes", "gradient", "colors", "smpte-rp-219",
}

// ValidPattern reports whether name is a known pattern.
func ValidPattern(name string) bool {
	for _, p := range Patterns {
		if p == name {
			return true
		}
	}
	return false
}

// RTSPOptions tune every RTSP chain on the wall.
type RTSPOptions struct {
	Decoder string
	Latency time.Duration
	Timeout time.Duration
}

// DefaultRTSPOptions returns the options used when configuration omits them.
func DefaultRTSPOptions() RTSPOptions {
	return RTSPOptions{
		Decoder: DefaultDecoder,
		Latency: DefaultRTSPLatency,
		Timeout: DefaultRTSPTimeout,
	}
}

// Planner turns source specs into chains.
type Planner struct {
	RTSP RTSPOptions
}

// NewPlanner returns a Planner, filling zero options with defaults.
func NewPlanner(opts RTSPOptions) Planner {
	def := DefaultRTSPOptions()
	if opts.Decoder == "" {
		opts.Decoder = def.Decoder
	}
	if opts.Latency <= 0 {
		opts.Latency = def.Latency
	}
	if opts.Timeout <= 0 {
		opts.Timeout = def.Timeout
	}
	return Planner{RTSP: opts}
}

// Plan builds the chain for spec, named after id and normalised to exactly
// width x height with square pixels.
//
// Returns a *BuildError when the spec cannot be rendered.
func (p Planner) Plan(spec Spec, id string, width, height int) (Chain, error) {
	if _, err := SlotOf(id); err != nil {
		return Chain{}, &BuildError{ID: id, Err: err}
	}
	if width < 1 || height < 1 {
		return Chain{}, buildErr(id, "", "invalid target size %dx%d", width, height)
	}

	b := &chainBuilder{chain: Chain{ID: id, Width: width, Height: height}}

	var err error
	switch k := spec.Kind.(type) {
	case RTSP:
		err = p.planRTSP(b, k)
	case Pattern:
		err = planPattern(b, k)
	case Image:
		err = planImage(b, k)
	case nil:
		err = buildErr(id, "", "source has no kind")
	default:
		err = buildErr(id, "", "unsupported source kind %T", k)
	}
	if err != nil {
		return Chain{}, err
	}

	if spec.Description != "" {
		b.add(RoleLabel, "textoverlay",
			Prop{"text", spec.Description},
			Prop{"valignment", "bottom"},
			Prop{"halignment", "left"},
			Prop{"shaded-background", true},
			Prop{"font-desc", labelFont},
		)
	}
	b.output(spec.Kind)

	return b.chain, nil
}

func (p Planner) planRTSP(b *chainBuilder, k RTSP) error {
	id := b.chain.ID
	if k.URL == "" {
		return buildErr(id, RoleSource, "rtsp url is empty")
	}
	lower := strings.ToLower(k.URL)
	if !strings.HasPrefix(lower, "rtsp://") && !strings.HasPrefix(lower, "rtsps://") {
		return buildErr(id, RoleSource, "not an rtsp url: %q", k.URL)
	}

	var addBorders bool
	switch k.Scale {
	case ScaleFit:
		addBorders = true
	case ScaleCrop, ScaleStretch:
		addBorders = false
	default:
		return buildErr(id, RoleScale, "unsupported scale mode %v", k.Scale)
	}

	b.add(RoleSource, "rtspsrc",
		Prop{"location", k.URL},
		Prop{"protocols", "tcp"},
		Prop{"latency", int(p.RTSP.Latency / time.Millisecond)},
	)
	b.queue(false)
	b.add(RoleDepay, "rtph264depay", Prop{"request-keyframe", true})
	b.add(RoleParse, "h264parse")
	b.add(RoleDecode, p.RTSP.Decoder)
	b.add(RoleWatchdog, "watchdog", Prop{"timeout", int(p.RTSP.Timeout / time.Millisecond)})
	b.queue(false)
	if k.Scale == ScaleCrop {
		b.add(RoleCrop, "aspectratiocrop", Prop{"aspect-ratio", reduce(b.chain.Width, b.chain.Height)})
	}
	b.add(RoleScale, "videoscale", Prop{"add-borders", addBorders})
	b.add(RoleConvert, "videoconvert")
	b.caps()
	return nil
}

func planPattern(b *chainBuilder, k Pattern) error {
	if !ValidPattern(k.Name) {
		return buildErr(b.chain.ID, RoleSource, "unknown pattern %q", k.Name)
	}
	b.add(RoleSource, "videotestsrc",
		Prop{"pattern", k.Name},
		Prop{"is-live", true},
	)
	b.caps()
	return nil
}

func planImage(b *chainBuilder, k Image) error {
	id := b.chain.ID
	if k.Path == "" {
		return buildErr(id, RoleSource, "image path is empty")
	}

	b.add(RoleSource, "filesrc", Prop{"location", k.Path})
	b.add(RoleDecode, "decodebin")
	b.add(RoleFreeze, "imagefreeze", Prop{"is-live", true})
	b.queue(true)
	b.add(RoleConvert, "videoconvert")

	if k.Size == nil {
		b.add(RoleScale, "videoscale", Prop{"add-borders", true})
		b.caps()
		return nil
	}

	fw, fh := k.Size.Width, k.Size.Height
	w, h := b.chain.Width, b.chain.Height
	if fw < 1 || fh < 1 {
		return buildErr(id, RolePrescale, "invalid fit size %dx%d", fw, fh)
	}
	if fw > w || fh > h {
		return buildErr(id, RolePrescale, "fit size %dx%d exceeds cell %dx%d", fw, fh, w, h)
	}

	b.add(RoleScale, "videoscale", Prop{"add-borders", true})
	b.add(RolePrescale, "capsfilter", Prop{"caps", RawCaps(fw, fh)})

	// Negative videobox borders add padding.
	padX, padY := w-fw, h-fh
	b.add(RoleBox, "videobox",
		Prop{"top", -(padY / 2)},
		Prop{"bottom", -(padY - padY/2)},
		Prop{"left", -(padX / 2)},
		Prop{"right", -(padX - padX/2)},
		Prop{"fill", "black"},
	)
	b.caps()
	return nil
}

type chainBuilder struct {
	chain  Chain
	queues int
}

func (b *chainBuilder) add(role Role, factory string, props ...Prop) {
	b.chain.Stages = append(b.chain.Stages, Stage{
		Role:    role,
		Factory: factory,
		Name:    ElementName(b.chain.ID, role),
		Props:   props,
	})
}

// queue appends a numbered queue. Leaky queues hold at most one buffer and
// discard the oldest.
func (b *chainBuilder) queue(leaky bool) {
	name := fmt.Sprintf("%s_%s%d", b.chain.ID, RoleQueue, b.queues)
	b.queues++
	b.chain.Stages = append(b.chain.Stages, Stage{
		Role:    RoleQueue,
		Factory: "queue",
		Name:    name,
		Props:   queueProps(leaky),
	})
}

func (b *chainBuilder) caps() {
	b.add(RoleCaps, "capsfilter", Prop{"caps", RawCaps(b.chain.Width, b.chain.Height)})
}

func (b *chainBuilder) output(k Kind) {
	_, live := k.(RTSP)
	b.add(RoleOutput, "queue", queueProps(!live)...)
}

func queueProps(leaky bool) []Prop {
	if !leaky {
		return nil
	}
	return []Prop{
		{"leaky", "downstream"},
		{"max-size-buffers", 1},
		{"max-size-bytes", 0},
		{"max-size-time", 0},
	}
}

func reduce(w, h int) Fraction {
	g := gcd(w, h)
	return Fraction{Num: w / g, Den: h / g}
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}
