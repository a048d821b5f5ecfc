// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/dmxstat/pkg/dmx"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dmxstat.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

// chdir changes the working directory for the duration of the test.
func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { require.NoError(t, os.Chdir(wd)) })
}

func TestLoad_Defaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load(New(), "")
	require.NoError(t, err)

	assert.Equal(t, dmx.BaudRate, cfg.Serial.Baud)
	assert.Empty(t, cfg.DMX.Monitored)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "console", cfg.Logging.Format)
	assert.False(t, cfg.HTTP.Enable)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, 5*time.Second, cfg.HTTP.ReadTimeout)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
serial:
  port: /dev/ttyUSB0
dmx:
  monitored: [1, 511]
  resyncOnStart: true
logging:
  level: debug
  format: json
http:
  enable: true
  addr: 127.0.0.1:9090
`)

	cfg, err := Load(New(), path)
	require.NoError(t, err)

	assert.Equal(t, "/dev/ttyUSB0", cfg.Serial.Port)
	assert.Equal(t, []int{1, 511}, cfg.DMX.Monitored)
	assert.True(t, cfg.DMX.ResyncOnStart)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.True(t, cfg.HTTP.Enable)
	assert.Equal(t, "127.0.0.1:9090", cfg.HTTP.Addr)
}

func TestLoad_EnvOverride(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("DMXSTAT_SERIAL_PORT", "/dev/ttyAMA0")
	t.Setenv("DMXSTAT_LOGGING_LEVEL", "warn")

	cfg, err := Load(New(), "")
	require.NoError(t, err)
	assert.Equal(t, "/dev/ttyAMA0", cfg.Serial.Port)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestLoad_EnvConfigPath(t *testing.T) {
	path := writeConfig(t, "serial:\n  port: /dev/ttyS3\n")
	t.Setenv("DMXSTAT_CONFIG", path)

	cfg, err := Load(New(), "")
	require.NoError(t, err)
	assert.Equal(t, "/dev/ttyS3", cfg.Serial.Port)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"address out of range", "dmx:\n  monitored: [512]\n"},
		{"negative address", "dmx:\n  monitored: [-1]\n"},
		{"zero baud", "serial:\n  baud: 0\n"},
		{"bad format", "logging:\n  format: xml\n"},
		{"malformed yaml", "serial: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(New(), writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestLoad_ExplicitMissingFile(t *testing.T) {
	_, err := Load(New(), filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate_AuthPair(t *testing.T) {
	path := writeConfig(t, "http:\n  username: admin\n")
	_, err := Load(New(), path)
	assert.Error(t, err)

	path = writeConfig(t, "http:\n  username: admin\n  password: secret\n")
	cfg, err := Load(New(), path)
	require.NoError(t, err)
	assert.Equal(t, 10.0, cfg.HTTP.StreamFrameRate)
}
