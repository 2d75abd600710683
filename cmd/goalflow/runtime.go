package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/vinayprograms/agentkit/llm"
	"github.com/vinayprograms/agentkit/telemetry"

	"github.com/vinayprograms/goalflow/internal/audit"
	"github.com/vinayprograms/goalflow/internal/config"
	"github.com/vinayprograms/goalflow/internal/library"
	"github.com/vinayprograms/goalflow/internal/platform"
	"github.com/vinayprograms/goalflow/internal/platform/remote"
	"github.com/vinayprograms/goalflow/internal/safety"
	"github.com/vinayprograms/goalflow/internal/workflow"
)

// loadConfig reads path, or the default search locations when path is empty.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.LoadDefault()
}

// newProvider creates the model provider for one [llm]-style section.
func newProvider(cfg config.LLMConfig) (llm.Provider, error) {
	if !cfg.Configured() {
		return nil, fmt.Errorf("LLM model not configured")
	}
	name := cfg.Provider
	if name == "" {
		name = llm.InferProviderFromModel(cfg.Model)
	}
	return llm.NewProvider(llm.ProviderConfig{
		Provider:  name,
		Model:     cfg.Model,
		APIKey:    globalCreds.GetAPIKey(name),
		MaxTokens: cfg.MaxTokens,
		BaseURL:   cfg.BaseURL,
	})
}

// newBackends connects to every configured automation sidecar.
func newBackends(cfg config.BackendsConfig) platform.Backends {
	backends := make(platform.Backends)
	if cfg.Browser.Endpoint != "" {
		backends[workflow.PlatformBrowser] = remote.New(cfg.Browser.Endpoint, cfg.Browser.TimeoutDuration())
	}
	if cfg.Desktop.Endpoint != "" {
		backends[workflow.PlatformDesktop] = remote.New(cfg.Desktop.Endpoint, cfg.Desktop.TimeoutDuration())
	}
	return backends
}

func newGuard(cfg config.SafetyConfig) (*safety.Guard, error) {
	return safety.NewGuard(safety.Config{
		Strict:           cfg.Strict,
		BlockedPatterns:  cfg.BlockedPatterns,
		BlockedURLs:      cfg.BlockedURLs,
		BlockedShortcuts: cfg.BlockedShortcuts,
		TerminalApps:     cfg.TerminalApps,
	})
}

// newAuditSink opens every configured audit sink. Sinks opened before a
// failure are closed.
func newAuditSink(ctx context.Context, cfg config.AuditConfig) (audit.Sink, error) {
	var sinks []audit.Sink
	fail := func(err error) (audit.Sink, error) {
		audit.Multi(sinks...).Close()
		return nil, err
	}
	if cfg.SQLitePath != "" {
		store, err := audit.OpenSQLite(ctx, config.ExpandPath(cfg.SQLitePath))
		if err != nil {
			return fail(err)
		}
		sinks = append(sinks, store)
	}
	if cfg.JSONLPath != "" {
		sink, err := audit.NewJSONLSink(config.ExpandPath(cfg.JSONLPath))
		if err != nil {
			return fail(err)
		}
		sinks = append(sinks, sink)
	}
	if cfg.NATSURL != "" {
		pub, err := audit.NewNATSPublisher(cfg.NATSURL, cfg.NATSSubject)
		if err != nil {
			return fail(err)
		}
		sinks = append(sinks, pub)
	}
	return audit.Multi(sinks...), nil
}

func newExporter(cfg config.TelemetryConfig) (telemetry.Exporter, error) {
	if !cfg.Enabled {
		return telemetry.NewNoopExporter(), nil
	}
	return telemetry.NewExporter(cfg.Protocol, cfg.Endpoint)
}

// loadWorkflow reads ref as a file path, falling back to a library lookup
// by id or file name.
func loadWorkflow(cfg *config.Config, ref string) (*workflow.Workflow, error) {
	if _, err := os.Stat(ref); err == nil {
		return workflow.LoadFile(ref)
	}
	if filepath.Ext(ref) != "" {
		return nil, fmt.Errorf("workflow file not found: %s", ref)
	}
	lib, err := library.Open(libraryDir(cfg, ""))
	if err != nil {
		return nil, err
	}
	defer lib.Close()
	return lib.Get(ref)
}

// libraryDir is override when set, else the configured library directory.
func libraryDir(cfg *config.Config, override string) string {
	if override != "" {
		return config.ExpandPath(override)
	}
	return config.ExpandPath(cfg.Library.Dir)
}
