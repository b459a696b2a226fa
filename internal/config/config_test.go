package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := Default()
	if cfg.Server.Port != 5000 {
		t.Errorf("Server.Port = %d", cfg.Server.Port)
	}
	if cfg.Database.DeleteMode != "soft" {
		t.Errorf("DeleteMode = %q", cfg.Database.DeleteMode)
	}
	if cfg.LLM.HistoryLimit != 7 {
		t.Errorf("HistoryLimit = %d", cfg.LLM.HistoryLimit)
	}
	if cfg.Scheduler.StreamTTL != 10*time.Minute {
		t.Errorf("StreamTTL = %v", cfg.Scheduler.StreamTTL)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestLoadExpandsEnvAndAppliesDefaults(t *testing.T) {
	t.Setenv("TEST_LLM_KEY", "sk-test")
	path := writeConfig(t, `
server:
  port: 8080
llm:
  default_model: mock@mock
  api_key: ${TEST_LLM_KEY}
tools:
  - name: kb
    impl: retrieval
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d", cfg.Server.Port)
	}
	if cfg.LLM.APIKey != "sk-test" {
		t.Errorf("APIKey = %q", cfg.LLM.APIKey)
	}
	if cfg.Database.DeleteMode != "soft" {
		t.Errorf("default DeleteMode not applied: %q", cfg.Database.DeleteMode)
	}
	if len(cfg.Tools) != 1 || cfg.Tools[0].Impl != "retrieval" {
		t.Errorf("Tools = %+v", cfg.Tools)
	}
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	cases := []struct {
		name    string
		content string
	}{
		{"bad delete mode", "database:\n  delete_mode: purge\n"},
		{"tool without impl", "tools:\n  - name: kb\n"},
		{"tool without name", "tools:\n  - impl: retrieval\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tc.content)); err == nil {
				t.Error("Load() expected error")
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("Load() expected error for missing file")
	}
}
