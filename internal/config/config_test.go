// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.DefaultModel != "llava:7b" {
		t.Errorf("DefaultModel = %q, want llava:7b", cfg.DefaultModel)
	}
	if len(cfg.Server.Candidates) != 2 {
		t.Fatalf("got %d candidates, want 2", len(cfg.Server.Candidates))
	}
	if cfg.Server.Candidates[0] != "http://127.0.0.1:11434" {
		t.Errorf("first candidate = %q", cfg.Server.Candidates[0])
	}
	if cfg.ProbeInterval() != 10*time.Second {
		t.Errorf("ProbeInterval = %v, want 10s", cfg.ProbeInterval())
	}
	if cfg.ProbeTimeout() != 2*time.Second {
		t.Errorf("ProbeTimeout = %v, want 2s", cfg.ProbeTimeout())
	}
	if cfg.Sampling.Temperature != 0.7 {
		t.Errorf("Temperature = %g, want 0.7", cfg.Sampling.Temperature)
	}
	if cfg.Sampling.ContextWindow != 4096 {
		t.Errorf("ContextWindow = %d, want 4096", cfg.Sampling.ContextWindow)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("default config failed validation: %v", err)
	}
}

func TestSetDefaults_FillsSparseConfig(t *testing.T) {
	cfg := &Config{DefaultModel: "mistral:7b"}
	cfg.SetDefaults()

	if cfg.DefaultModel != "mistral:7b" {
		t.Errorf("explicit model overwritten: %q", cfg.DefaultModel)
	}
	if len(cfg.Server.Candidates) == 0 {
		t.Error("candidates not defaulted")
	}
	if cfg.Server.ProbeIntervalSecs != 10 {
		t.Errorf("ProbeIntervalSecs = %d, want 10", cfg.Server.ProbeIntervalSecs)
	}
	if cfg.Sampling.ContextWindow != 4096 {
		t.Errorf("ContextWindow = %d, want 4096", cfg.Sampling.ContextWindow)
	}
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"empty model", func(c *Config) { c.DefaultModel = "" }, "default_model"},
		{"no candidates", func(c *Config) { c.Server.Candidates = nil }, "server.candidates"},
		{"bad candidate URL", func(c *Config) { c.Server.Candidates = []string{"not a url"} }, "server.candidates"},
		{"zero probe interval", func(c *Config) { c.Server.ProbeIntervalSecs = 0 }, "server.probe_interval_secs"},
		{"temperature too high", func(c *Config) { c.Sampling.Temperature = 2.5 }, "sampling.temperature"},
		{"negative context window", func(c *Config) { c.Sampling.ContextWindow = -1 }, "sampling.context_window"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error, got nil")
			}
			if !strings.Contains(err.Error(), tt.field) {
				t.Errorf("error %q does not mention field %q", err, tt.field)
			}
		})
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("LAMACHAT_MODEL", "gemma:2b")
	t.Setenv("LAMACHAT_OLLAMA_URL", "http://10.0.0.5:11434")
	t.Setenv("LAMACHAT_TEMPERATURE", "1.2")
	t.Setenv("LAMACHAT_NUM_CTX", "8192")
	t.Setenv("LAMACHAT_NO_MARKDOWN", "true")

	cfg := Default()
	cfg.ApplyEnvOverrides()

	if cfg.DefaultModel != "gemma:2b" {
		t.Errorf("DefaultModel = %q", cfg.DefaultModel)
	}
	if len(cfg.Server.Candidates) != 1 || cfg.Server.Candidates[0] != "http://10.0.0.5:11434" {
		t.Errorf("candidates = %v", cfg.Server.Candidates)
	}
	if cfg.Sampling.Temperature != 1.2 {
		t.Errorf("Temperature = %g", cfg.Sampling.Temperature)
	}
	if cfg.Sampling.ContextWindow != 8192 {
		t.Errorf("ContextWindow = %d", cfg.Sampling.ContextWindow)
	}
	if cfg.UI.RenderMarkdown {
		t.Error("RenderMarkdown still enabled")
	}
}

func TestApplyEnvOverrides_InvalidValuesIgnored(t *testing.T) {
	t.Setenv("LAMACHAT_TEMPERATURE", "hot")
	t.Setenv("LAMACHAT_NUM_CTX", "lots")

	cfg := Default()
	cfg.ApplyEnvOverrides()

	if cfg.Sampling.Temperature != 0.7 {
		t.Errorf("Temperature = %g, want default kept", cfg.Sampling.Temperature)
	}
	if cfg.Sampling.ContextWindow != 4096 {
		t.Errorf("ContextWindow = %d, want default kept", cfg.Sampling.ContextWindow)
	}
}

func TestLoadFromPath_TOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
default_model = "codellama:13b"
persona = "You are terse."

[server]
candidates = ["http://192.168.1.10:11434"]
probe_interval_secs = 8

[sampling]
temperature = 0.4
context_window = 2048
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath: %v", err)
	}

	if cfg.DefaultModel != "codellama:13b" {
		t.Errorf("DefaultModel = %q", cfg.DefaultModel)
	}
	if cfg.Persona != "You are terse." {
		t.Errorf("Persona = %q", cfg.Persona)
	}
	if cfg.Server.ProbeIntervalSecs != 8 {
		t.Errorf("ProbeIntervalSecs = %d", cfg.Server.ProbeIntervalSecs)
	}
	// Unset fields fall back to defaults.
	if cfg.Server.ProbeTimeoutSecs != 2 {
		t.Errorf("ProbeTimeoutSecs = %d, want default 2", cfg.Server.ProbeTimeoutSecs)
	}
	if cfg.Sampling.Temperature != 0.4 {
		t.Errorf("Temperature = %g", cfg.Sampling.Temperature)
	}
}

func TestLoadFromPath_JSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	content := `{"default_model": "phi3:mini", "sampling": {"temperature": 0.9}}`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath: %v", err)
	}
	if cfg.DefaultModel != "phi3:mini" {
		t.Errorf("DefaultModel = %q", cfg.DefaultModel)
	}
	if cfg.Sampling.Temperature != 0.9 {
		t.Errorf("Temperature = %g", cfg.Sampling.Temperature)
	}
}

func TestLoadFromPath_UnsupportedExtension(t *testing.T) {
	if _, err := LoadFromPath("/tmp/config.yaml"); err == nil {
		t.Error("expected error for unsupported format")
	}
}

func TestSaveTOMLRoundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	want := Default()
	want.DefaultModel = "roundtrip:test"
	want.Sampling.Temperature = 1.1
	if err := SaveTOML(want, path); err != nil {
		t.Fatalf("SaveTOML: %v", err)
	}

	got := Default()
	if err := LoadTOML(got, path); err != nil {
		t.Fatalf("LoadTOML: %v", err)
	}
	if got.DefaultModel != "roundtrip:test" {
		t.Errorf("DefaultModel = %q", got.DefaultModel)
	}
	if got.Sampling.Temperature != 1.1 {
		t.Errorf("Temperature = %g", got.Sampling.Temperature)
	}
}
