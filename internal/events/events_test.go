package events

import (
	"bytes"
	"fmt"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmastrac/pi-frame/internal/orchestrator"
	"github.com/mmastrac/pi-frame/internal/source"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		ev   Event
		want Action
	}{
		{
			name: "error from source bin",
			ev:   Event{Kind: KindError, Source: "src_1"},
			want: Action{Restart: true, ID: "src_1", Reason: orchestrator.ReasonError},
		},
		{
			name: "error from nested watchdog",
			ev:   Event{Kind: KindError, Source: "src_2_watchdog", Message: "Watchdog triggered"},
			want: Action{Restart: true, ID: "src_2", Reason: orchestrator.ReasonError, Role: source.RoleWatchdog},
		},
		{
			name: "error from numbered queue",
			ev:   Event{Kind: KindError, Source: "src_3_queue1"},
			want: Action{Restart: true, ID: "src_3", Reason: orchestrator.ReasonError, Role: source.RoleQueue},
		},
		{
			name: "error from shared element",
			ev:   Event{Kind: KindError, Source: "mixer"},
			want: Action{},
		},
		{
			name: "error from fallback placeholder",
			ev:   Event{Kind: KindError, Source: "fallback_0_source"},
			want: Action{},
		},
		{
			name: "error from unknown child",
			ev:   Event{Kind: KindError, Source: "src_0_udpsrc3"},
			want: Action{},
		},
		{
			name: "error from auto-named decoder inside a source",
			ev: Event{
				Kind:    KindError,
				Source:  "pngdec0",
				Message: "Internal data stream error.",
				Debug:   "../libs/gst/base/gstbasesrc.c(3132): gst_base_src_loop (): /GstPipeline:pi-frame/GstBin:src_2/GstDecodeBin:src_2_decode/GstPngDec:pngdec0:\nstreaming stopped, reason not-negotiated (-4)",
			},
			want: Action{Restart: true, ID: "src_2", Reason: orchestrator.ReasonError, Role: source.RoleDecode},
		},
		{
			name: "error from rtspsrc internals",
			ev: Event{
				Kind:   KindError,
				Source: "udpsrc3",
				Debug:  "gstudpsrc.c(1016): gst_udpsrc_create (): /GstPipeline:pi-frame/GstBin:src_0/GstRTSPSrc:src_0_source/GstUDPSrc:udpsrc3",
			},
			want: Action{Restart: true, ID: "src_0", Reason: orchestrator.ReasonError, Role: source.RoleSource},
		},
		{
			name: "error from auto-named child of a shared element",
			ev: Event{
				Kind:   KindError,
				Source: "videoconvert0",
				Debug:  "gstbasetransform.c(1375): default_transform_size (): /GstPipeline:pi-frame/GstVideoConvert:videoconvert0",
			},
			want: Action{},
		},
		{
			name: "error from fallback child",
			ev: Event{
				Kind:   KindError,
				Source: "fallback_1_source",
				Debug:  "x.c(1): f (): /GstPipeline:pi-frame/GstVideoTestSrc:fallback_1_source",
			},
			want: Action{},
		},
		{
			name: "rtspsrc timeout message",
			ev:   Event{Kind: KindElement, Source: "src_0_source", Structure: "GstRTSPSrcTimeout"},
			want: Action{Restart: true, ID: "src_0", Reason: orchestrator.ReasonTimeout, Role: source.RoleSource},
		},
		{
			name: "unrelated element message",
			ev:   Event{Kind: KindElement, Source: "src_0_source", Structure: "GstUDPSrcStats"},
			want: Action{},
		},
		{
			name: "timeout message from shared element",
			ev:   Event{Kind: KindElement, Source: "sink", Structure: "timeout"},
			want: Action{},
		},
		{
			name: "state change never restarts",
			ev:   Event{Kind: KindStateChanged, Source: "src_0", OldState: "paused", NewState: "playing"},
			want: Action{},
		},
		{
			name: "eos never restarts",
			ev:   Event{Kind: KindEOS, Source: "src_0_source"},
			want: Action{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.ev))
		})
	}
}

func TestInteresting(t *testing.T) {
	assert.True(t, Interesting("wall", "wall"))
	assert.True(t, Interesting("src_4", "wall"))
	assert.False(t, Interesting("src_4_decode", "wall"))
	assert.False(t, Interesting("mixer", "wall"))
}

func TestCategorize(t *testing.T) {
	tests := []struct {
		message, debug string
		want           Category
	}{
		{"Unauthorized", "401 Unauthorized", CategoryAuth},
		{"Internal data stream error.", "not negotiated", CategoryCodec},
		{"Could not open resource for reading and writing.", "Failed to connect. (Generic error)", CategoryNetwork},
		{"Watchdog triggered", "", CategoryStall},
		{"Something odd", "", CategoryUnknown},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Categorize(tt.message, tt.debug), tt.message)
	}
}

func TestFenceName(t *testing.T) {
	name := FenceName("src_12", 7)
	assert.Equal(t, "pi-frame-fence-src_12-7", name)

	id, epoch, ok := ParseFence(name)
	require.True(t, ok)
	assert.Equal(t, "src_12", id)
	assert.Equal(t, uint64(7), epoch)

	for _, bad := range []string{"GstRTSPSrcTimeout", "pi-frame-fence-", "pi-frame-fence-src_1", "pi-frame-fence-src_1-x", "pi-frame-fence--3"} {
		_, _, ok := ParseFence(bad)
		assert.False(t, ok, bad)
	}
}

type recordingRestarter struct {
	mu    sync.Mutex
	calls []string
}

func (r *recordingRestarter) RestartIfCurrent(id string, reason orchestrator.Reason, epoch uint64) orchestrator.Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, fmt.Sprintf("%s/%s@%d", id, reason, epoch))
	return orchestrator.OutcomeRestarted
}

func TestDispatcher_Handle(t *testing.T) {
	var buf bytes.Buffer
	r := &recordingRestarter{}
	d := NewDispatcher(r, "wall", zerolog.New(&buf))

	evs := []Event{
		{Kind: KindStateChanged, Source: "wall", OldState: "paused", NewState: "playing"},
		{Kind: KindError, Source: "src_2_watchdog", Message: "Watchdog triggered"},
		{Kind: KindElement, Source: "src_1_source", Structure: "GstRTSPSrcTimeout"},
		{Kind: KindError, Source: "mixer", Message: "boom"},
		{Kind: KindWarning, Source: "src_0_decode", Message: "late buffers"},
		{Kind: KindEOS, Source: "wall"},
		{Kind: KindOther},
	}
	for _, ev := range evs {
		require.True(t, d.Handle(ev), "dispatcher must stay subscribed")
	}

	assert.Equal(t, []string{"src_2/error@0", "src_1/timeout@0"}, r.calls)
	assert.Contains(t, buf.String(), `"category":"stall"`)
	assert.Contains(t, buf.String(), "boom")
}

func TestDispatcher_CarriesFenceEpoch(t *testing.T) {
	r := &recordingRestarter{}
	d := NewDispatcher(r, "wall", zerolog.Nop())

	d.Handle(Event{Kind: KindError, Source: "src_1_watchdog"})
	d.Handle(Event{Kind: KindFence, Source: "src_1", Epoch: 1})
	d.Handle(Event{Kind: KindError, Source: "src_1_watchdog"})
	d.Handle(Event{Kind: KindError, Source: "src_0_watchdog"})
	// Fences never move backwards.
	d.Handle(Event{Kind: KindFence, Source: "src_1", Epoch: 0})
	d.Handle(Event{Kind: KindElement, Source: "src_1_source", Structure: "GstRTSPSrcTimeout"})

	assert.Equal(t, []string{"src_1/error@0", "src_1/error@1", "src_0/error@0", "src_1/timeout@1"}, r.calls)
}
