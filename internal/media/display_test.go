package media

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDisplayChain(t *testing.T) {
	chain := displayChain(DisplayOptions{Sink: "fbdevsink", Device: "/dev/fb0"}, 1280, 800)

	launch := chain.Launch()
	assert.Contains(t, launch, `compositor name="mixer" background="black"`)
	assert.Contains(t, launch, "width=1280,height=800")
	assert.Contains(t, launch, `fbdevsink name="display_sink" sync=false device="/dev/fb0"`)
	assert.NotContains(t, launch, "clockoverlay")
	assert.Equal(t, "display_sink", chain.OutputName())
}

func TestDisplayChain_Clock(t *testing.T) {
	chain := displayChain(DisplayOptions{Sink: "fakesink", ClockFormat: "%H:%M"}, 640, 480)

	clock, ok := chain.Stage("clock")
	if assert.True(t, ok) {
		assert.Equal(t, "clockoverlay", clock.Factory)
		format, _ := clock.Prop("time-format")
		assert.Equal(t, "%H:%M", format)
	}
	_, hasDevice := chain.Stages[len(chain.Stages)-1].Prop("device")
	assert.False(t, hasDevice)
}
