package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigIsNormalizedAndRooted(t *testing.T) {
	dir := t.TempDir()
	cfg := Config(dir)
	assert.Equal(t, dir, cfg.Path)
	assert.Greater(t, cfg.CleanupInterval.Seconds(), 0.0)
}

func TestLoggerIsUsable(t *testing.T) {
	logger := Logger()
	require.NotNil(t, logger)
	logger.Info("smoke test")
}
