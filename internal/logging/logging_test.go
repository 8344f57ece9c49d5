package logging

import (
	"bytes"
	"testing"

	"github.com/go-kit/log/level"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(&buf, "warn")
	require.NoError(t, err)

	level.Info(logger).Log("msg", "hidden")
	level.Warn(logger).Log("msg", "shown", "handle", 7)

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "msg=shown")
	assert.Contains(t, out, "handle=7")
	assert.Contains(t, out, "level=warn")
	assert.Contains(t, out, "caller=")
}

func TestParseLevel(t *testing.T) {
	for _, lvl := range []string{"debug", "INFO", "", "warn", "warning", "error", "none"} {
		_, err := ParseLevel(lvl)
		assert.NoError(t, err, lvl)
	}
	_, err := ParseLevel("loud")
	assert.Error(t, err)
}

func TestOrNop(t *testing.T) {
	assert.NotNil(t, OrNop(nil))
	assert.NoError(t, OrNop(nil).Log("k", "v"))
}
