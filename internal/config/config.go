// Package config loads and validates the server configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the main configuration structure for the server.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	LLM       LLMConfig       `yaml:"llm"`
	Tools     []ToolConfig    `yaml:"tools"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type DatabaseConfig struct {
	// Path is the SQLite database file ("" or ":memory:" for in-memory).
	Path string `yaml:"path"`

	// DeleteMode selects "soft" (mark deleted) or "hard" (remove rows)
	// for DELETE endpoints.
	DeleteMode string `yaml:"delete_mode"`
}

type LLMConfig struct {
	// DefaultModel is a "backend@model" identifier used when neither the
	// run nor the assistant specifies a model (e.g. "openai@gpt-4o",
	// "mock@mock").
	DefaultModel string `yaml:"default_model"`

	// Endpoint overrides the OpenAI-compatible API base URL. Useful for
	// local inference engines exposing the OpenAI wire format.
	Endpoint string `yaml:"endpoint"`

	APIKey string `yaml:"api_key"`

	// AnthropicAPIKey enables the anthropic backend when set.
	AnthropicAPIKey string `yaml:"anthropic_api_key"`

	// Timeout bounds a single backend HTTP request.
	Timeout time.Duration `yaml:"timeout"`

	// MaxRetries bounds attempts for transient backend failures.
	MaxRetries int `yaml:"max_retries"`

	// RetryDelay is the base wait between attempts.
	RetryDelay time.Duration `yaml:"retry_delay"`

	// HistoryLimit is the default number of thread messages loaded into a
	// run's context; runs override it with the history_limit metadata key.
	HistoryLimit int `yaml:"history_limit"`
}

// ToolConfig declares one named pipeline tool instance. Impl selects a
// registered tool kind; Args are passed to the kind's factory.
type ToolConfig struct {
	Name string         `yaml:"name"`
	Impl string         `yaml:"impl"`
	Args map[string]any `yaml:"args"`
}

type RetrievalConfig struct {
	// Path is the SQLite file backing the vector store ("" for in-memory).
	Path string `yaml:"path"`

	// Dimension is the embedding dimension.
	Dimension int `yaml:"dimension"`
}

type SchedulerConfig struct {
	// StreamTTL is how long an unconsumed run output stream is kept before
	// the sweep removes it.
	StreamTTL time.Duration `yaml:"stream_ttl"`

	// SweepInterval throttles how often the dispatch loop sweeps expired
	// streams.
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

type LoggingConfig struct {
	Level     string `yaml:"level"`
	Format    string `yaml:"format"`
	AddSource bool   `yaml:"add_source"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "127.0.0.1"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 5000
	}
	if c.Database.DeleteMode == "" {
		c.Database.DeleteMode = "soft"
	}
	if c.LLM.Timeout == 0 {
		c.LLM.Timeout = 2 * time.Minute
	}
	if c.LLM.MaxRetries == 0 {
		c.LLM.MaxRetries = 3
	}
	if c.LLM.RetryDelay == 0 {
		c.LLM.RetryDelay = time.Second
	}
	if c.LLM.HistoryLimit == 0 {
		c.LLM.HistoryLimit = 7
	}
	if c.Retrieval.Dimension == 0 {
		c.Retrieval.Dimension = 1536
	}
	if c.Scheduler.StreamTTL == 0 {
		c.Scheduler.StreamTTL = 10 * time.Minute
	}
	if c.Scheduler.SweepInterval == 0 {
		c.Scheduler.SweepInterval = time.Minute
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if m := c.Database.DeleteMode; m != "soft" && m != "hard" {
		return fmt.Errorf("database.delete_mode %q must be soft or hard", m)
	}
	if c.LLM.HistoryLimit < 0 {
		return fmt.Errorf("llm.history_limit must not be negative")
	}
	for i, tool := range c.Tools {
		if tool.Name == "" {
			return fmt.Errorf("tools[%d]: name is required", i)
		}
		if tool.Impl == "" {
			return fmt.Errorf("tools[%d] (%s): impl is required", i, tool.Name)
		}
	}
	return nil
}

// Load reads a YAML config file, expands ${ENV_VAR} references, applies
// defaults and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
