// Package config loads the server configuration from a YAML file and
// applies environment overrides on top.
package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type File struct {
	Addr string `yaml:"addr"`

	Ghostfolio struct {
		BaseURL   string `yaml:"base_url"`
		TimeoutMS int    `yaml:"timeout_ms"`
	} `yaml:"ghostfolio"`

	Session struct {
		MaxThreads int `yaml:"max_threads"`
	} `yaml:"session"`

	Stream struct {
		ChunkSize int `yaml:"chunk_size"`
	} `yaml:"stream"`

	CORSOrigins []string `yaml:"cors_origins"`
	LogLevel    string   `yaml:"log_level"`
}

// Load reads path, decodes it strictly, layers environment overrides, and
// validates the result. An empty path yields the defaults plus overrides.
func Load(path string) (*File, error) {
	var cfg File
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := decodeYAMLStrict(b, &cfg); err != nil {
			return nil, err
		}
	}
	applyDefaults(&cfg)
	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, err
	}
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// GhostfolioTimeout converts the millisecond setting to a duration.
func (c *File) GhostfolioTimeout() time.Duration {
	return time.Duration(c.Ghostfolio.TimeoutMS) * time.Millisecond
}

func decodeYAMLStrict(b []byte, cfg *File) error {
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return err
	}
	var trailing any
	if err := dec.Decode(&trailing); err != io.EOF {
		if err == nil {
			return fmt.Errorf("yaml: multiple documents are not allowed")
		}
		return err
	}
	return nil
}

func applyDefaults(cfg *File) {
	if strings.TrimSpace(cfg.Addr) == "" {
		cfg.Addr = ":8000"
	}
	if strings.TrimSpace(cfg.Ghostfolio.BaseURL) == "" {
		cfg.Ghostfolio.BaseURL = "http://localhost:3333"
	}
	if cfg.Ghostfolio.TimeoutMS == 0 {
		cfg.Ghostfolio.TimeoutMS = 30000
	}
	if cfg.Stream.ChunkSize == 0 {
		cfg.Stream.ChunkSize = 64
	}
	if len(cfg.CORSOrigins) == 0 {
		cfg.CORSOrigins = []string{
			"http://localhost:3000",
			"http://localhost:4200",
		}
	}
	cfg.CORSOrigins = trimNonEmpty(cfg.CORSOrigins)
	if strings.TrimSpace(cfg.LogLevel) == "" {
		cfg.LogLevel = "info"
	}
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))
}

func applyEnvOverrides(cfg *File) error {
	if v := os.Getenv("FINSIGHT_ADDR"); v != "" {
		cfg.Addr = v
	}
	if v := os.Getenv("FINSIGHT_GHOSTFOLIO_URL"); v != "" {
		cfg.Ghostfolio.BaseURL = v
	}
	if v := os.Getenv("FINSIGHT_GHOSTFOLIO_TIMEOUT_MS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("FINSIGHT_GHOSTFOLIO_TIMEOUT_MS: %w", err)
		}
		cfg.Ghostfolio.TimeoutMS = n
	}
	if v := os.Getenv("FINSIGHT_SESSION_MAX_THREADS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("FINSIGHT_SESSION_MAX_THREADS: %w", err)
		}
		cfg.Session.MaxThreads = n
	}
	if v := os.Getenv("FINSIGHT_CORS_ORIGINS"); v != "" {
		cfg.CORSOrigins = trimNonEmpty(strings.Split(v, ","))
	}
	if v := os.Getenv("FINSIGHT_LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(strings.TrimSpace(v))
	}
	return nil
}

func validate(cfg *File) error {
	if cfg.Ghostfolio.TimeoutMS < 0 {
		return fmt.Errorf("ghostfolio.timeout_ms must be >= 0")
	}
	if cfg.Session.MaxThreads < 0 {
		return fmt.Errorf("session.max_threads must be >= 0")
	}
	if cfg.Stream.ChunkSize < 1 {
		return fmt.Errorf("stream.chunk_size must be >= 1")
	}
	if !strings.HasPrefix(cfg.Ghostfolio.BaseURL, "http://") && !strings.HasPrefix(cfg.Ghostfolio.BaseURL, "https://") {
		return fmt.Errorf("ghostfolio.base_url must be an http(s) URL, got %q", cfg.Ghostfolio.BaseURL)
	}
	switch cfg.LogLevel {
	case "trace", "debug", "info", "warn", "error":
		// ok
	default:
		return fmt.Errorf("invalid log_level: %q (want trace|debug|info|warn|error)", cfg.LogLevel)
	}
	return nil
}

func trimNonEmpty(parts []string) []string {
	if len(parts) == 0 {
		return nil
	}
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
