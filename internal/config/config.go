// Package config provides configuration loading and management.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// FileName is the default config file name.
const FileName = "goalflow.toml"

// Config represents the goalflow configuration.
type Config struct {
	LLM        LLMConfig        `toml:"llm"`    // Classifier, enricher and agent fallback
	Vision     LLMConfig        `toml:"vision"` // Locate/extract; empty fields fall back to [llm]
	Timeouts   TimeoutsConfig   `toml:"timeouts"`
	Executor   ExecutorConfig   `toml:"executor"`
	Compiler   CompilerConfig   `toml:"compiler"`
	Safety     SafetyConfig     `toml:"safety"`
	Backends   BackendsConfig   `toml:"backends"`
	Audit      AuditConfig      `toml:"audit"`
	Session    DirConfig        `toml:"session"`
	Checkpoint DirConfig        `toml:"checkpoint"`
	Telemetry  TelemetryConfig  `toml:"telemetry"`
	Library    DirConfig        `toml:"library"`
}

// LLMConfig contains LLM provider settings.
type LLMConfig struct {
	Provider  string `toml:"provider"`
	Model     string `toml:"model"`
	MaxTokens int    `toml:"max_tokens"`
	BaseURL   string `toml:"base_url"` // Custom API endpoint (OpenRouter, LiteLLM, Ollama, LMStudio)
}

// Configured reports whether a provider and model are set.
func (c LLMConfig) Configured() bool {
	return c.Provider != "" && c.Model != ""
}

// TimeoutsConfig contains executor timing.
type TimeoutsConfig struct {
	Attempt        int `toml:"attempt"`          // seconds per strategy attempt (default 30)
	CriteriaBudget int `toml:"criteria_budget"`  // seconds to wait for success criteria (default 10)
	PollIntervalMs int `toml:"poll_interval_ms"` // criteria poll interval (default 250)
	ModelCall      int `toml:"model_call"`       // seconds per model call (default 15)
}

// ExecutorConfig contains run behaviour switches.
type ExecutorConfig struct {
	ApplyDefaults bool `toml:"apply_defaults"` // fill missing bindings from workflow defaults
	AgentFallback bool `toml:"agent_fallback"` // global switch for agent fallback
}

// CompilerConfig tunes trace compilation.
type CompilerConfig struct {
	MergeWindowMs      int     `toml:"merge_window_ms"`
	MinParamConfidence float64 `toml:"min_param_confidence"`
	Enrich             bool    `toml:"enrich"` // use the model for classification and enrichment
}

// SafetyConfig extends the built-in guard rules.
type SafetyConfig struct {
	Strict           bool     `toml:"strict"`
	BlockedPatterns  []string `toml:"blocked_patterns"`
	BlockedURLs      []string `toml:"blocked_urls"`
	BlockedShortcuts []string `toml:"blocked_shortcuts"`
	TerminalApps     []string `toml:"terminal_apps"`
}

// BackendsConfig holds one automation sidecar per platform.
type BackendsConfig struct {
	Browser BackendConfig `toml:"browser"`
	Desktop BackendConfig `toml:"desktop"`
}

// BackendConfig is one automation sidecar.
type BackendConfig struct {
	Endpoint string `toml:"endpoint"`
	Timeout  int    `toml:"timeout"` // seconds
}

// AuditConfig selects audit sinks. Every non-empty one is used.
type AuditConfig struct {
	SQLitePath  string `toml:"sqlite_path"`
	JSONLPath   string `toml:"jsonl_path"`
	NATSURL     string `toml:"nats_url"`
	NATSSubject string `toml:"nats_subject"`
}

// DirConfig is a section with just a directory.
type DirConfig struct {
	Dir string `toml:"dir"`
}

// TelemetryConfig contains telemetry settings.
type TelemetryConfig struct {
	Enabled  bool   `toml:"enabled"`
	Endpoint string `toml:"endpoint"` // OTLP endpoint (e.g., localhost:4317)
	Protocol string `toml:"protocol"` // grpc (default), http or noop
}

// New creates a new config with defaults.
func New() *Config {
	return &Config{
		LLM: LLMConfig{
			MaxTokens: 4096,
		},
		Timeouts: TimeoutsConfig{
			Attempt:        30,
			CriteriaBudget: 10,
			PollIntervalMs: 250,
			ModelCall:      15,
		},
		Executor: ExecutorConfig{
			AgentFallback: true,
		},
		Compiler: CompilerConfig{
			MergeWindowMs:      2000,
			MinParamConfidence: 0.5,
			Enrich:             true,
		},
		Audit: AuditConfig{
			NATSSubject: "goalflow.audit",
		},
		Session:    DirConfig{Dir: "~/.local/goalflow/sessions"},
		Checkpoint: DirConfig{Dir: "~/.local/goalflow/checkpoints"},
		Library:    DirConfig{Dir: "~/.local/goalflow/workflows"},
		Telemetry: TelemetryConfig{
			Protocol: "noop",
		},
	}
}

// Default returns a default configuration.
func Default() *Config {
	return New()
}

// LoadFile loads configuration from a TOML file. Unknown keys are an error
// so that typos do not silently fall back to defaults.
func LoadFile(path string) (*Config, error) {
	cfg := New()
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("unknown config keys: %s", strings.Join(keys, ", "))
	}
	return cfg, nil
}

// LoadDefault loads goalflow.toml from the current directory, then from
// ~/.config/goalflow. With neither present it returns the defaults.
func LoadDefault() (*Config, error) {
	for _, path := range SearchPaths() {
		if _, err := os.Stat(path); err == nil {
			return LoadFile(path)
		}
	}
	return New(), nil
}

// SearchPaths lists where LoadDefault looks, in order.
func SearchPaths() []string {
	var paths []string
	if cwd, err := os.Getwd(); err == nil {
		paths = append(paths, filepath.Join(cwd, FileName))
	}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "goalflow", FileName))
	}
	return paths
}

// VisionLLM returns the vision model settings with gaps filled from [llm].
func (c *Config) VisionLLM() LLMConfig {
	v := c.Vision
	if v.Provider == "" {
		v.Provider = c.LLM.Provider
		if v.Model == "" {
			v.Model = c.LLM.Model
		}
		if v.BaseURL == "" {
			v.BaseURL = c.LLM.BaseURL
		}
	}
	if v.MaxTokens == 0 {
		v.MaxTokens = c.LLM.MaxTokens
	}
	return v
}

// AttemptTimeout is the per-attempt budget.
func (c *Config) AttemptTimeout() time.Duration {
	return time.Duration(c.Timeouts.Attempt) * time.Second
}

// CriteriaBudget is how long success criteria are polled.
func (c *Config) CriteriaBudget() time.Duration {
	return time.Duration(c.Timeouts.CriteriaBudget) * time.Second
}

// PollInterval is the criteria poll interval.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Timeouts.PollIntervalMs) * time.Millisecond
}

// CallTimeout bounds each model call.
func (c *Config) CallTimeout() time.Duration {
	return time.Duration(c.Timeouts.ModelCall) * time.Second
}

// MergeWindow is the compiler's focus/type merge window.
func (c *Config) MergeWindow() time.Duration {
	return time.Duration(c.Compiler.MergeWindowMs) * time.Millisecond
}

// TimeoutDuration returns the sidecar request timeout.
func (b BackendConfig) TimeoutDuration() time.Duration {
	return time.Duration(b.Timeout) * time.Second
}

// ExpandPath resolves a leading ~ to the home directory.
func ExpandPath(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}
