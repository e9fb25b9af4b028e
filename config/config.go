// Package config loads server settings for the example servers.
//
// Load order, later wins:
//  1. built-in defaults
//  2. the YAML file passed to Load (optional)
//  3. .env files (optional; never override variables already set)
//  4. EVREACTOR_* environment variables
//
// Command-line flags are applied on top by the caller.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const envPrefix = "EVREACTOR_"

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type Config struct {
	Listen      string        `yaml:"listen"`
	Log         LogConfig     `yaml:"log"`
	MetricsAddr string        `yaml:"metrics_addr"`
	HelloDelay  time.Duration `yaml:"hello_delay"`
	MaxEvents   int           `yaml:"max_events"`
}

func Default() *Config {
	return &Config{
		Listen:     "127.0.0.1:5100",
		Log:        LogConfig{Level: "info", Format: "text"},
		HelloDelay: 5 * time.Second,
		MaxEvents:  128,
	}
}

// Load builds a Config. path may be empty. When no envFiles are given ".env" in
// the working directory is tried; missing .env files are not an error.
func Load(path string, envFiles ...string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config: load %s: %w", f, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := getEnv("LISTEN"); v != "" {
		c.Listen = v
	}
	if v := getEnv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := getEnv("LOG_FORMAT"); v != "" {
		c.Log.Format = v
	}
	if v := getEnv("METRICS_ADDR"); v != "" {
		c.MetricsAddr = v
	}
	if v := getEnv("HELLO_DELAY"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("config: %sHELLO_DELAY: %w", envPrefix, err)
		}
		c.HelloDelay = d
	}
	if v := getEnv("MAX_EVENTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: %sMAX_EVENTS: %w", envPrefix, err)
		}
		c.MaxEvents = n
	}
	return nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.Listen) == "" {
		return errors.New("config: listen address is empty")
	}
	if c.MaxEvents <= 0 {
		return fmt.Errorf("config: max_events must be positive, got %d", c.MaxEvents)
	}
	if c.HelloDelay < 0 {
		return fmt.Errorf("config: hello_delay must not be negative, got %s", c.HelloDelay)
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("config: unknown log format %q", c.Log.Format)
	}
	return nil
}

func (c *Config) String() string {
	return fmt.Sprintf("Config{Listen: %s, Log: %s/%s, Metrics: %q, HelloDelay: %s, MaxEvents: %d}",
		c.Listen, c.Log.Level, c.Log.Format, c.MetricsAddr, c.HelloDelay, c.MaxEvents)
}

func getEnv(key string) string {
	return os.Getenv(envPrefix + key)
}
