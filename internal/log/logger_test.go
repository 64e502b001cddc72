package log

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithComponent_AnnotatesEntries(t *testing.T) {
	var buf bytes.Buffer
	Reset()
	Configure(Config{Level: "debug", Output: &buf, Service: "wall-test"})
	t.Cleanup(Reset)

	l := WithComponent("orchestrator")
	l.Info().Str("source_id", "src_1").Msg("restart complete")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "orchestrator", entry["component"])
	assert.Equal(t, "wall-test", entry["service"])
	assert.Equal(t, "src_1", entry["source_id"])
	assert.Equal(t, "restart complete", entry["message"])
}

func TestConfigure_OnlyFirstCallApplies(t *testing.T) {
	var first, second bytes.Buffer
	Reset()
	Configure(Config{Output: &first})
	Configure(Config{Output: &second})
	t.Cleanup(Reset)

	l := Base()
	l.Info().Msg("hello")

	assert.NotZero(t, first.Len())
	assert.Zero(t, second.Len())
}
