package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/vinayprograms/goalflow/internal/compiler"
	"github.com/vinayprograms/goalflow/internal/llmcap"
	"github.com/vinayprograms/goalflow/internal/trace"
	"github.com/vinayprograms/goalflow/internal/workflow"
)

// Run compiles the trace.
func (c *CompileCmd) Run() error {
	return c.run(context.Background(), os.Stdout, os.Stderr)
}

func (c *CompileCmd) run(ctx context.Context, stdout, stderr io.Writer) error {
	format, err := c.outputFormat()
	if err != nil {
		return err
	}
	cfg, err := loadConfig(c.Config)
	if err != nil {
		return err
	}
	t, err := trace.LoadFile(c.Trace)
	if err != nil {
		return err
	}

	opts := []compiler.Option{
		compiler.WithMergeWindow(cfg.MergeWindow()),
		compiler.WithMinConfidence(cfg.Compiler.MinParamConfidence),
		compiler.WithCallTimeout(cfg.CallTimeout()),
	}
	if !c.NoLLM && cfg.Compiler.Enrich && cfg.LLM.Configured() {
		provider, err := newProvider(cfg.LLM)
		if err != nil {
			// Compilation still succeeds on recorded evidence alone.
			fmt.Fprintf(stderr, "warning: compiling without model: %v\n", err)
		} else {
			client := llmcap.New(provider)
			opts = append(opts, compiler.WithClassifier(client), compiler.WithEnricher(client), compiler.WithTemplater(client))
		}
	}

	in := compiler.FromTrace(t)
	if c.Name != "" {
		in.Name = c.Name
	}
	wf, err := compiler.New(opts...).Compile(ctx, in)
	if err != nil {
		return err
	}

	data, err := workflow.Marshal(wf, format)
	if err != nil {
		return err
	}
	if c.Output == "" {
		_, err = stdout.Write(data)
		return err
	}
	if err := os.WriteFile(c.Output, data, 0644); err != nil {
		return fmt.Errorf("failed to write workflow: %w", err)
	}
	fmt.Fprintf(stderr, "✓ Compiled %q: %d goals, %d parameters → %s\n", wf.Name, len(wf.Steps), len(wf.Parameters), c.Output)
	return nil
}

// outputFormat is --format, else the output extension, else JSON.
func (c *CompileCmd) outputFormat() (workflow.Format, error) {
	switch c.Format {
	case "":
		if c.Output != "" {
			return workflow.FormatFromPath(c.Output), nil
		}
		return workflow.FormatJSON, nil
	case "json":
		return workflow.FormatJSON, nil
	case "yaml", "yml":
		return workflow.FormatYAML, nil
	}
	return "", fmt.Errorf("unknown format %q (want json or yaml)", c.Format)
}
