package media

import (
	"github.com/mmastrac/pi-frame/internal/source"
)

const (
	// PipelineName is the name of the top-level pipeline.
	PipelineName = "pi-frame"
	// MixerName is the compositor element every slot feeds.
	MixerName = "mixer"
)

// DisplayOptions describe the output side of the wall.
type DisplayOptions struct {
	Sink   string
	Device string
	// ClockFormat enables the clock overlay when set.
	ClockFormat string
}

// displayChain plans compositor -> [clock] -> convert -> sink.
func displayChain(opts DisplayOptions, width, height int) source.Chain {
	stages := []source.Stage{
		{
			Role:    "mixer",
			Factory: "compositor",
			Name:    MixerName,
			Props:   []source.Prop{{Name: "background", Value: "black"}},
		},
		{
			Role:    "caps",
			Factory: "capsfilter",
			Name:    "display_caps",
			Props:   []source.Prop{{Name: "caps", Value: source.RawCaps(width, height)}},
		},
		{Role: source.RoleQueue, Factory: "queue", Name: "display_queue0"},
	}
	if opts.ClockFormat != "" {
		stages = append(stages, source.Stage{
			Role:    "clock",
			Factory: "clockoverlay",
			Name:    "display_clock",
			Props: []source.Prop{
				{Name: "time-format", Value: opts.ClockFormat},
				{Name: "halignment", Value: "right"},
				{Name: "valignment", Value: "top"},
				{Name: "shaded-background", Value: true},
			},
		})
	}

	sinkProps := []source.Prop{{Name: "sync", Value: false}}
	if opts.Device != "" {
		sinkProps = append(sinkProps, source.Prop{Name: "device", Value: opts.Device})
	}
	stages = append(stages,
		source.Stage{Role: source.RoleConvert, Factory: "videoconvert", Name: "display_convert"},
		source.Stage{Role: source.RoleQueue, Factory: "queue", Name: "display_queue1"},
		source.Stage{Role: "sink", Factory: opts.Sink, Name: "display_sink", Props: sinkProps},
	)

	return source.Chain{ID: "display", Width: width, Height: height, Stages: stages}
}
