package piframe

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmastrac/pi-frame/internal/orchestrator"
	"github.com/mmastrac/pi-frame/internal/ratestats"
	"github.com/mmastrac/pi-frame/internal/source"
)

func TestSourceView(t *testing.T) {
	restarted := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	frame := restarted.Add(40 * time.Millisecond)

	st := orchestrator.Status{
		Instance: orchestrator.Instance{
			ID:   "src_2",
			Slot: 2,
			Spec: source.Spec{Description: "porch", Kind: source.RTSP{URL: "rtsp://cam/stream"}},
		},
		State:       orchestrator.StateActive,
		Generation:  3,
		Restarts:    2,
		LastReason:  orchestrator.ReasonTimeout.String(),
		LastRestart: restarted,
	}
	stats := ratestats.Stats{FPSMean: 24.8, Stable: true, LastFrame: frame}

	v := sourceView(st, stats, true)
	assert.Equal(t, "src_2", v.ID)
	assert.Equal(t, 2, v.Slot)
	assert.Equal(t, "porch", v.Description)
	assert.Equal(t, "rtsp", v.Kind)
	assert.Equal(t, "active", v.State)
	assert.Equal(t, uint64(3), v.Generation)
	assert.Equal(t, uint64(2), v.Restarts)
	assert.Equal(t, "timeout", v.LastReason)
	require.NotNil(t, v.LastRestart)
	assert.Equal(t, restarted, *v.LastRestart)
	assert.InDelta(t, 24.8, v.FPS, 1e-9)
	assert.True(t, v.Stable)
	require.NotNil(t, v.LastFrame)
	assert.Equal(t, frame, *v.LastFrame)
}

func TestSourceView_NeverRestartedNoFrames(t *testing.T) {
	st := orchestrator.Status{
		Instance:  orchestrator.Instance{ID: "src_0", Spec: source.Spec{Kind: source.Pattern{Name: "ball"}}},
		State:     orchestrator.StateDark,
		LastError: "boom",
	}

	v := sourceView(st, ratestats.Stats{FPSMean: 99}, false)
	assert.Equal(t, "dark", v.State)
	assert.Equal(t, "pattern", v.Kind)
	assert.Equal(t, "boom", v.LastError)
	assert.Nil(t, v.LastRestart)
	assert.Nil(t, v.LastFrame)
	assert.Zero(t, v.FPS)
	assert.False(t, v.Stable)
}
