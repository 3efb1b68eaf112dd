package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "finsight.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8000", cfg.Addr)
	assert.Equal(t, "http://localhost:3333", cfg.Ghostfolio.BaseURL)
	assert.Equal(t, 30*time.Second, cfg.GhostfolioTimeout())
	assert.Equal(t, 0, cfg.Session.MaxThreads)
	assert.Equal(t, 64, cfg.Stream.ChunkSize)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Contains(t, cfg.CORSOrigins, "http://localhost:3000")
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, `
addr: ":9090"
ghostfolio:
  base_url: "https://gf.internal"
  timeout_ms: 5000
session:
  max_threads: 200
stream:
  chunk_size: 32
cors_origins:
  - "https://app.example.com"
log_level: debug
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Addr)
	assert.Equal(t, "https://gf.internal", cfg.Ghostfolio.BaseURL)
	assert.Equal(t, 5*time.Second, cfg.GhostfolioTimeout())
	assert.Equal(t, 200, cfg.Session.MaxThreads)
	assert.Equal(t, 32, cfg.Stream.ChunkSize)
	assert.Equal(t, []string{"https://app.example.com"}, cfg.CORSOrigins)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	path := writeConfig(t, "addr: \":9090\"\nbogus_key: true\n")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsMultipleDocuments(t *testing.T) {
	path := writeConfig(t, "addr: \":9090\"\n---\naddr: \":9091\"\n")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("FINSIGHT_ADDR", ":7070")
	t.Setenv("FINSIGHT_GHOSTFOLIO_URL", "http://gf:3333")
	t.Setenv("FINSIGHT_GHOSTFOLIO_TIMEOUT_MS", "1500")
	t.Setenv("FINSIGHT_SESSION_MAX_THREADS", "50")
	t.Setenv("FINSIGHT_CORS_ORIGINS", "http://a.example, http://b.example")
	t.Setenv("FINSIGHT_LOG_LEVEL", "WARN")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":7070", cfg.Addr)
	assert.Equal(t, "http://gf:3333", cfg.Ghostfolio.BaseURL)
	assert.Equal(t, 1500, cfg.Ghostfolio.TimeoutMS)
	assert.Equal(t, 50, cfg.Session.MaxThreads)
	assert.Equal(t, []string{"http://a.example", "http://b.example"}, cfg.CORSOrigins)
	assert.Equal(t, "warn", cfg.LogLevel)
}

func TestEnvOverridesBeatFile(t *testing.T) {
	path := writeConfig(t, "addr: \":9090\"\n")
	t.Setenv("FINSIGHT_ADDR", ":7071")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":7071", cfg.Addr)
}

func TestValidateRejectsBadValues(t *testing.T) {
	for name, body := range map[string]string{
		"negative timeout":  "ghostfolio:\n  timeout_ms: -1\n",
		"negative sessions": "session:\n  max_threads: -5\n",
		"bad log level":     "log_level: verbose\n",
		"bad base url":      "ghostfolio:\n  base_url: \"gf.internal\"\n",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			assert.Error(t, err)
		})
	}
}

func TestBadEnvInteger(t *testing.T) {
	t.Setenv("FINSIGHT_GHOSTFOLIO_TIMEOUT_MS", "soon")
	_, err := Load("")
	assert.Error(t, err)
}
