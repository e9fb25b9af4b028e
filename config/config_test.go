package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func missingEnv(t *testing.T) string {
	return filepath.Join(t.TempDir(), "absent.env")
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("", missingEnv(t))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "server.yaml", `
listen: 0.0.0.0:7000
log:
  level: debug
  format: json
metrics_addr: 127.0.0.1:9100
hello_delay: 250ms
max_events: 64
`)
	cfg, err := Load(path, missingEnv(t))
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:7000", cfg.Listen)
	assert.Equal(t, LogConfig{Level: "debug", Format: "json"}, cfg.Log)
	assert.Equal(t, "127.0.0.1:9100", cfg.MetricsAddr)
	assert.Equal(t, 250*time.Millisecond, cfg.HelloDelay)
	assert.Equal(t, 64, cfg.MaxEvents)
}

func TestLoadEnvOverridesYAML(t *testing.T) {
	path := writeFile(t, "server.yaml", "listen: 0.0.0.0:7000\nmax_events: 64\n")
	t.Setenv("EVREACTOR_LISTEN", "127.0.0.1:7001")
	t.Setenv("EVREACTOR_HELLO_DELAY", "2s")

	cfg, err := Load(path, missingEnv(t))
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:7001", cfg.Listen)
	assert.Equal(t, 2*time.Second, cfg.HelloDelay)
	assert.Equal(t, 64, cfg.MaxEvents)
}

func TestLoadDotEnv(t *testing.T) {
	envFile := writeFile(t, ".env", "EVREACTOR_MAX_EVENTS=512\nEVREACTOR_LOG_LEVEL=warn\n")
	// godotenv sets process variables; register them for cleanup first
	t.Setenv("EVREACTOR_MAX_EVENTS", "")
	t.Setenv("EVREACTOR_LOG_LEVEL", "")
	os.Unsetenv("EVREACTOR_MAX_EVENTS")
	os.Unsetenv("EVREACTOR_LOG_LEVEL")

	cfg, err := Load("", envFile)
	require.NoError(t, err)
	assert.Equal(t, 512, cfg.MaxEvents)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		env  map[string]string
	}{
		{name: "bad yaml", yaml: "listen: [unterminated"},
		{name: "empty listen", yaml: "listen: \"\"\n"},
		{name: "zero max events", yaml: "max_events: 0\n"},
		{name: "bad format", yaml: "log:\n  format: xml\n"},
		{name: "bad env duration", env: map[string]string{"EVREACTOR_HELLO_DELAY": "soon"}},
		{name: "bad env number", env: map[string]string{"EVREACTOR_MAX_EVENTS": "many"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			path := ""
			if tt.yaml != "" {
				path = writeFile(t, "c.yaml", tt.yaml)
			}
			_, err := Load(path, missingEnv(t))
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), missingEnv(t))
	assert.Error(t, err)
}
