package cmd

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStructToConfigJSONReKeysToSnakeCase(t *testing.T) {
	type inner struct {
		Port        int `mapstructure:"port"`
		NofAntennas int `mapstructure:"nof_antennas"`
	}

	got, err := structToConfigJSON(inner{Port: 4660, NofAntennas: 256})
	require.NoError(t, err)
	assert.Contains(t, got, `"port":4660`)
	assert.Contains(t, got, `"nof_antennas":256`)
}

func TestDefaultCaptureLogConfig(t *testing.T) {
	cfg := defaultCaptureLogConfig()
	assert.Equal(t, "info", cfg.Level)
	assert.Equal(t, "text", cfg.Format)
}

func TestCaptureStartTimeLayoutParsesConfiguredFormat(t *testing.T) {
	got, err := time.Parse(captureStartTimeLayoutForCLI, "2026/08/06_09:30")
	require.NoError(t, err)
	assert.Equal(t, 2026, got.Year())
	assert.Equal(t, time.August, got.Month())
	assert.Equal(t, 6, got.Day())
	assert.Equal(t, 9, got.Hour())
	assert.Equal(t, 30, got.Minute())
}

func TestStartAndCaptureCommandsRegisterExactlyOnce(t *testing.T) {
	var startCount, captureCount int
	for _, c := range rootCmd.Commands() {
		switch c.Name() {
		case "start":
			startCount++
		case "capture":
			captureCount++
		}
	}
	assert.Equal(t, 1, startCount, "start subcommand must be registered exactly once")
	assert.Equal(t, 1, captureCount, "capture subcommand must be registered exactly once")
}
