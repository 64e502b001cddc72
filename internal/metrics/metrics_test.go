package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestSetSourceState_OneHot(t *testing.T) {
	SetSourceState("src_9", "restarting")
	SetSourceState("src_9", "active")

	assert.Equal(t, 1.0, testutil.ToFloat64(sourceState.WithLabelValues("src_9", "active")))
	assert.Equal(t, 0.0, testutil.ToFloat64(sourceState.WithLabelValues("src_9", "restarting")))
	assert.Equal(t, 0.0, testutil.ToFloat64(sourceState.WithLabelValues("src_9", "dark")))
}

func TestRecordRestart(t *testing.T) {
	c := sourceRestarts.WithLabelValues("src_8", "timeout", "restarted")
	before := testutil.ToFloat64(c)

	RecordRestart("src_8", "timeout", "restarted")
	RecordRestart("src_8", "timeout", "restarted")

	assert.Equal(t, before+2, testutil.ToFloat64(c))
}
