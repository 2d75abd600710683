package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/vinayprograms/agentkit/telemetry"

	"github.com/vinayprograms/goalflow/internal/audit"
	"github.com/vinayprograms/goalflow/internal/capability"
	"github.com/vinayprograms/goalflow/internal/config"
	"github.com/vinayprograms/goalflow/internal/executor"
	"github.com/vinayprograms/goalflow/internal/llmcap"
	"github.com/vinayprograms/goalflow/internal/prompt"
	"github.com/vinayprograms/goalflow/internal/replay"
	"github.com/vinayprograms/goalflow/internal/safety"
	"github.com/vinayprograms/goalflow/internal/session"
	"github.com/vinayprograms/goalflow/internal/workflow"
)

// Run executes the workflow until it completes, fails or is interrupted.
func (c *RunCmd) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return c.run(ctx, os.Stdout, os.Stderr)
}

func (c *RunCmd) run(ctx context.Context, stdout, stderr io.Writer) error {
	cfg, err := loadConfig(c.Config)
	if err != nil {
		return err
	}
	wf, err := loadWorkflow(cfg, c.Workflow)
	if err != nil {
		return err
	}

	rt, err := newRunEnv(ctx, cfg, stderr)
	if err != nil {
		return err
	}
	defer rt.close()

	exec := executor.New(executor.Config{
		Backends:        newBackends(cfg.Backends),
		Vision:          rt.vision,
		Agent:           rt.agent,
		Gate:            rt.guard,
		Audit:           rt.audit,
		Sessions:        rt.sessions,
		CheckpointDir:   config.ExpandPath(cfg.Checkpoint.Dir),
		AttemptTimeout:  cfg.AttemptTimeout(),
		CriteriaBudget:  cfg.CriteriaBudget(),
		PollInterval:    cfg.PollInterval(),
		CallTimeout:     cfg.CallTimeout(),
		ApplyDefaults:   c.UseDefaults || cfg.Executor.ApplyDefaults,
		DisableFallback: c.NoFallback || !cfg.Executor.AgentFallback,
	})
	if len(cfg.Backends.Browser.Endpoint)+len(cfg.Backends.Desktop.Endpoint) == 0 {
		fmt.Fprintln(stderr, "warning: no automation backends configured; every strategy will be unavailable")
	}

	bindings := c.Input
	if c.Interactive {
		if bindings, err = c.collectMissing(exec, wf); err != nil {
			return err
		}
	}

	exec.OnGoalStart = func(goal workflow.GoalStep) {
		fmt.Fprintf(stderr, "▶ [%d/%d] %s\n", goal.Sequence, len(wf.Steps), goal.Description)
	}
	exec.OnAttempt = func(goal workflow.GoalStep, a executor.Attempt) {
		rt.telem.LogEvent("attempt", map[string]interface{}{
			"goal_id":     goal.ID,
			"strategy":    a.Strategy,
			"priority":    a.Priority,
			"outcome":     string(a.Outcome),
			"error_kind":  string(a.ErrorKind),
			"duration_ms": a.Duration.Milliseconds(),
		})
	}
	exec.OnGoalComplete = func(r executor.GoalResult) {
		rt.telem.LogEvent("goal_complete", map[string]interface{}{
			"goal_id":       r.GoalID,
			"success":       r.Success,
			"strategy_used": r.StrategyUsed,
			"attempts":      len(r.Attempts),
			"fallback":      r.FallbackAttempted,
			"error_kind":    string(r.ErrorKind),
			"duration_ms":   r.Elapsed.Milliseconds(),
		})
	}

	result, runErr := exec.Run(ctx, wf, bindings)
	replay.Summary(stdout, result)
	if result != nil {
		rt.telem.LogEvent("workflow_complete", map[string]interface{}{
			"run_id":          result.RunID,
			"workflow_id":     result.WorkflowID,
			"status":          string(result.Status),
			"goals_total":     result.GoalsTotal,
			"goals_succeeded": result.Succeeded(),
			"duration_ms":     result.Elapsed.Milliseconds(),
		})
		if rt.store != nil && result.RunID != "" {
			fmt.Fprintf(stderr, "Session: %s\n", rt.store.Path(result.RunID))
		}
	}
	return runErr
}

// collectMissing prompts for required bindings the command line left out.
// Without a terminal it returns the bindings unchanged and lets the run
// report what is missing.
func (c *RunCmd) collectMissing(exec *executor.Executor, wf *workflow.Workflow) (map[string]string, error) {
	bound, missing := exec.Bind(wf, c.Input)
	if len(missing) == 0 || !isTerminal(os.Stdin) {
		return c.Input, nil
	}
	answers, err := prompt.Collect(missing, wf.Parameters)
	if errors.Is(err, prompt.ErrCancelled) {
		return nil, fmt.Errorf("parameter entry: %w", context.Canceled)
	}
	if err != nil {
		return nil, err
	}
	for k, v := range answers {
		bound[k] = v
	}
	return bound, nil
}

// runEnv holds the collaborators of one run.
type runEnv struct {
	vision   capability.Vision
	agent    capability.Agent
	guard    *safety.Guard
	audit    audit.Sink
	sessions *session.Manager
	store    *session.FileStore
	telem    telemetry.Exporter
}

// newRunEnv builds the run's collaborators from cfg. Model providers that
// cannot be created only cost their capability; everything else is fatal.
func newRunEnv(ctx context.Context, cfg *config.Config, stderr io.Writer) (*runEnv, error) {
	env := &runEnv{}
	if cfg.LLM.Configured() {
		if provider, err := newProvider(cfg.LLM); err != nil {
			fmt.Fprintf(stderr, "warning: agent fallback unavailable: %v\n", err)
		} else {
			env.agent = llmcap.New(provider)
		}
	}
	if vcfg := cfg.VisionLLM(); vcfg.Configured() {
		if provider, err := newProvider(vcfg); err != nil {
			fmt.Fprintf(stderr, "warning: vision unavailable: %v\n", err)
		} else {
			env.vision = llmcap.New(provider)
		}
	}

	var err error
	if env.guard, err = newGuard(cfg.Safety); err != nil {
		return nil, err
	}
	if env.audit, err = newAuditSink(ctx, cfg.Audit); err != nil {
		return nil, err
	}
	if env.store, err = session.NewFileStore(config.ExpandPath(cfg.Session.Dir)); err != nil {
		env.close()
		return nil, err
	}
	env.sessions = session.NewManager(env.store)
	if env.telem, err = newExporter(cfg.Telemetry); err != nil {
		env.close()
		return nil, fmt.Errorf("failed to create telemetry exporter: %w", err)
	}
	return env, nil
}

func (e *runEnv) close() {
	if e.audit != nil {
		e.audit.Close()
	}
	if e.telem != nil {
		e.telem.Close()
	}
}
