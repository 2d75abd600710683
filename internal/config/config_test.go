package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestConfig_LoadFromFile(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), FileName)
	os.WriteFile(configPath, []byte(`
[llm]
provider = "anthropic"
model = "claude-sonnet-4"
max_tokens = 2048

[vision]
model = "claude-opus-4"

[timeouts]
attempt = 20
criteria_budget = 5
poll_interval_ms = 100

[executor]
apply_defaults = true
agent_fallback = false

[compiler]
merge_window_ms = 1500
min_param_confidence = 0.7
enrich = false

[safety]
strict = true
blocked_patterns = ["DROP TABLE"]
blocked_urls = ["^https://bank\\."]
blocked_shortcuts = ["cmd+shift+3"]
terminal_apps = ["Ghostty"]

[backends.browser]
endpoint = "http://localhost:9222"
timeout = 45

[backends.desktop]
endpoint = "http://localhost:9333"

[audit]
sqlite_path = "/var/lib/goalflow/audit.db"
nats_url = "nats://localhost:4222"

[session]
dir = "/tmp/sessions"

[library]
dir = "/srv/workflows"

[telemetry]
enabled = true
protocol = "http"
endpoint = "localhost:4318"
`), 0644)

	cfg, err := LoadFile(configPath)
	if err != nil {
		t.Fatalf("load error: %v", err)
	}

	if cfg.LLM.Provider != "anthropic" || cfg.LLM.MaxTokens != 2048 {
		t.Errorf("unexpected llm %+v", cfg.LLM)
	}
	if cfg.AttemptTimeout() != 20*time.Second || cfg.CriteriaBudget() != 5*time.Second || cfg.PollInterval() != 100*time.Millisecond {
		t.Errorf("unexpected timeouts %+v", cfg.Timeouts)
	}
	if cfg.CallTimeout() != 15*time.Second {
		t.Errorf("unset model_call should keep default, got %v", cfg.CallTimeout())
	}
	if !cfg.Executor.ApplyDefaults || cfg.Executor.AgentFallback {
		t.Errorf("unexpected executor %+v", cfg.Executor)
	}
	if cfg.MergeWindow() != 1500*time.Millisecond || cfg.Compiler.MinParamConfidence != 0.7 || cfg.Compiler.Enrich {
		t.Errorf("unexpected compiler %+v", cfg.Compiler)
	}
	if !cfg.Safety.Strict || cfg.Safety.BlockedURLs[0] != `^https://bank\.` || cfg.Safety.TerminalApps[0] != "Ghostty" {
		t.Errorf("unexpected safety %+v", cfg.Safety)
	}
	if cfg.Backends.Browser.Endpoint != "http://localhost:9222" || cfg.Backends.Browser.TimeoutDuration() != 45*time.Second {
		t.Errorf("unexpected browser backend %+v", cfg.Backends.Browser)
	}
	if cfg.Backends.Desktop.TimeoutDuration() != 0 {
		t.Errorf("unset timeout should be zero")
	}
	if cfg.Audit.SQLitePath == "" || cfg.Audit.NATSSubject != "goalflow.audit" {
		t.Errorf("unexpected audit %+v", cfg.Audit)
	}
	if cfg.Session.Dir != "/tmp/sessions" || cfg.Library.Dir != "/srv/workflows" {
		t.Errorf("unexpected dirs")
	}
	if !cfg.Telemetry.Enabled || cfg.Telemetry.Protocol != "http" {
		t.Errorf("unexpected telemetry %+v", cfg.Telemetry)
	}
}

func TestConfig_Defaults(t *testing.T) {
	cfg := New()
	if cfg.MergeWindow() != 2*time.Second {
		t.Errorf("expected 2s merge window, got %v", cfg.MergeWindow())
	}
	if cfg.Compiler.MinParamConfidence != 0.5 {
		t.Errorf("expected 0.5 confidence floor")
	}
	if !cfg.Executor.AgentFallback || cfg.Executor.ApplyDefaults {
		t.Errorf("fallback should default on and defaults off")
	}
	if cfg.Telemetry.Protocol != "noop" {
		t.Errorf("expected noop telemetry")
	}
}

func TestConfig_UnknownKey(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), FileName)
	os.WriteFile(configPath, []byte("[compiler]\nmerge_windw_ms = 10\n"), 0644)

	_, err := LoadFile(configPath)
	if err == nil || !strings.Contains(err.Error(), "merge_windw_ms") {
		t.Errorf("expected unknown key error, got %v", err)
	}
}

func TestConfig_InvalidTOML(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), FileName)
	os.WriteFile(configPath, []byte("[llm\nprovider="), 0644)

	if _, err := LoadFile(configPath); err == nil {
		t.Error("expected parse error")
	}
}

func TestConfig_LoadDefault(t *testing.T) {
	tmpDir := t.TempDir()
	oldWd, _ := os.Getwd()
	defer os.Chdir(oldWd)
	os.Chdir(tmpDir)
	t.Setenv("HOME", tmpDir)

	cfg, err := LoadDefault()
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	if cfg.Compiler.MergeWindowMs != 2000 {
		t.Errorf("missing file should give defaults")
	}

	os.WriteFile(FileName, []byte("[llm]\nprovider = \"openai\"\n"), 0644)
	cfg, err = LoadDefault()
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	if cfg.LLM.Provider != "openai" {
		t.Errorf("expected provider from ./%s, got %q", FileName, cfg.LLM.Provider)
	}
}

func TestVisionLLM(t *testing.T) {
	cfg := New()
	cfg.LLM = LLMConfig{Provider: "openai", Model: "gpt-4o", MaxTokens: 1000, BaseURL: "http://proxy"}

	v := cfg.VisionLLM()
	if v.Provider != "openai" || v.Model != "gpt-4o" || v.BaseURL != "http://proxy" {
		t.Errorf("empty vision should inherit llm, got %+v", v)
	}

	cfg.Vision = LLMConfig{Provider: "google", Model: "gemini-2.0-flash"}
	v = cfg.VisionLLM()
	if v.Provider != "google" || v.Model != "gemini-2.0-flash" || v.BaseURL != "" || v.MaxTokens != 1000 {
		t.Errorf("explicit vision should win, got %+v", v)
	}
	if !v.Configured() {
		t.Error("expected configured")
	}
}

func TestExpandPath(t *testing.T) {
	t.Setenv("HOME", "/home/op")
	if got := ExpandPath("~/.local/goalflow"); got != "/home/op/.local/goalflow" {
		t.Errorf("got %q", got)
	}
	if got := ExpandPath("/abs/path"); got != "/abs/path" {
		t.Errorf("absolute path changed: %q", got)
	}
}
