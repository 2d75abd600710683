// Package executor runs compiled workflows: each goal walks its strategies in
// priority order until one is verified, optionally falling back to an agent.
package executor

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/vinayprograms/agentkit/logging"

	"github.com/vinayprograms/goalflow/internal/audit"
	"github.com/vinayprograms/goalflow/internal/capability"
	"github.com/vinayprograms/goalflow/internal/checkpoint"
	"github.com/vinayprograms/goalflow/internal/evaluator"
	"github.com/vinayprograms/goalflow/internal/platform"
	"github.com/vinayprograms/goalflow/internal/resolver"
	"github.com/vinayprograms/goalflow/internal/safety"
	"github.com/vinayprograms/goalflow/internal/session"
	"github.com/vinayprograms/goalflow/internal/workflow"
)

// Default timing.
const (
	DefaultAttemptTimeout = 30 * time.Second
	DefaultCriteriaBudget = 10 * time.Second
	DefaultPollInterval   = 250 * time.Millisecond
	DefaultCallTimeout    = 15 * time.Second
)

// Config wires the executor's collaborators.
type Config struct {
	Backends platform.Backends
	Vision   capability.Vision // optional
	Agent    capability.Agent  // optional; fallback fails without it
	Gate     safety.Gate       // nil allows every action

	Audit         audit.Sink       // optional
	Sessions      *session.Manager // optional
	CheckpointDir string           // optional; one subdirectory per run

	AttemptTimeout time.Duration
	CriteriaBudget time.Duration
	PollInterval   time.Duration
	CallTimeout    time.Duration

	// ApplyDefaults fills missing bindings from workflow parameter defaults.
	ApplyDefaults bool
	// DisableFallback turns agent fallback off for every goal.
	DisableFallback bool
}

// Executor executes workflows. It holds no per-run state and may serve
// concurrent runs on distinct surfaces.
type Executor struct {
	cfg       Config
	backends  platform.Backends
	resolver  *resolver.Resolver
	evaluator *evaluator.Evaluator
	gate      safety.Gate
	agent     capability.Agent
	audit     audit.Sink
	sessions  *session.Manager
	logger    *logging.Logger

	// Callbacks
	OnGoalStart    func(goal workflow.GoalStep)
	OnGoalComplete func(result GoalResult)
	OnAttempt      func(goal workflow.GoalStep, attempt Attempt)
}

// run is the state of one Run call.
type run struct {
	wf          *workflow.Workflow
	rc          *RunContext
	sess        *session.Session
	checkpoints *checkpoint.Store
}

// New creates an executor.
func New(cfg Config) *Executor {
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = DefaultAttemptTimeout
	}
	if cfg.CriteriaBudget <= 0 {
		cfg.CriteriaBudget = DefaultCriteriaBudget
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = DefaultCallTimeout
	}
	gate := cfg.Gate
	if gate == nil {
		gate = safety.GateFunc(func(context.Context, safety.Action) safety.Decision { return safety.Allow })
	}
	return &Executor{
		cfg:       cfg,
		backends:  cfg.Backends,
		resolver:  resolver.New(cfg.Backends, cfg.Vision, cfg.CallTimeout),
		evaluator: evaluator.New(cfg.CriteriaBudget, cfg.PollInterval, cfg.CallTimeout),
		gate:      gate,
		agent:     cfg.Agent,
		audit:     cfg.Audit,
		sessions:  cfg.Sessions,
		logger:    logging.New().WithComponent("executor"),
	}
}

// Bind returns the bindings a run of wf would use, and the required
// placeholders they leave unbound.
func (e *Executor) Bind(wf *workflow.Workflow, bindings map[string]string) (map[string]string, []string) {
	bound := make(map[string]string, len(bindings))
	for k, v := range bindings {
		bound[k] = v
	}
	if e.cfg.ApplyDefaults {
		for name, def := range wf.Parameters {
			if _, ok := bound[name]; !ok {
				bound[name] = def
			}
		}
	}
	var missing []string
	for _, name := range wf.RequiredBindings() {
		if _, ok := bound[name]; !ok {
			missing = append(missing, name)
		}
	}
	return bound, missing
}

// Run executes wf with bindings. Goals run strictly in sequence and the
// first failure halts the run. The returned result is non-nil whenever the
// workflow was valid; err is a *MissingParameterError, a *GoalFailure, or
// the context error on cancellation.
func (e *Executor) Run(ctx context.Context, wf *workflow.Workflow, bindings map[string]string) (*WorkflowResult, error) {
	startTime := time.Now()
	workflowName := wf.Name
	if workflowName == "" {
		workflowName = "unnamed"
	}
	e.logger.ExecutionStart(workflowName)

	ctx, workflowSpan := e.startWorkflowSpan(ctx, wf)

	result := &WorkflowResult{
		WorkflowID:   wf.ID,
		WorkflowName: wf.Name,
		Status:       StatusRunning,
		GoalsTotal:   len(wf.Steps),
		FailedIndex:  -1,
	}
	fail := func(err error) (*WorkflowResult, error) {
		result.Status = StatusFailed
		result.Error = err.Error()
		result.Elapsed = time.Since(startTime)
		e.logger.ExecutionComplete(workflowName, result.Elapsed, string(StatusFailed))
		e.endWorkflowSpan(workflowSpan, result, err)
		return result, err
	}

	if err := wf.Validate(); err != nil {
		return fail(fmt.Errorf("invalid workflow: %w", err))
	}

	// Fail fast before touching any surface.
	bound, missing := e.Bind(wf, bindings)
	if len(missing) > 0 {
		return fail(&MissingParameterError{Missing: missing})
	}

	r := &run{wf: wf, rc: NewRunContext("", bound)}
	result.RunID = r.rc.RunID
	e.openRun(r)
	e.logEvent(r, session.Event{Type: session.EventWorkflowStart, Content: workflowName})

	finish := func(status Status, err error) (*WorkflowResult, error) {
		result.Status = status
		result.Success = status == StatusComplete
		result.Extracted = copyMap(r.rc.Extracted)
		result.Elapsed = time.Since(startTime)
		if err != nil {
			result.Error = err.Error()
		}
		e.logEvent(r, session.Event{
			Type:       session.EventWorkflowEnd,
			Content:    string(status),
			Success:    session.Bool(result.Success),
			Error:      result.Error,
			DurationMs: result.Elapsed.Milliseconds(),
		})
		if r.sess != nil && e.sessions != nil {
			r.sess.Finish(string(status), result.Error, result.Extracted)
			if uerr := e.sessions.Update(r.sess); uerr != nil {
				e.logger.Warn("failed to save session", map[string]interface{}{"run": r.rc.RunID, "error": uerr.Error()})
			}
		}
		e.auditRun(ctx, r, result)
		e.logger.ExecutionComplete(workflowName, result.Elapsed, string(status))
		e.endWorkflowSpan(workflowSpan, result, err)
		return result, err
	}

	for i, goal := range wf.Steps {
		gr := e.executeGoal(ctx, r, goal)
		result.Goals = append(result.Goals, gr)
		e.auditGoal(ctx, r, gr)

		if gr.Success {
			r.rc.Merge(gr.Extracted)
			continue
		}
		if gr.ErrorKind == KindCancelled {
			err := ctx.Err()
			if err == nil {
				err = context.Canceled
			}
			e.logger.Info("run cancelled", map[string]interface{}{"run": r.rc.RunID, "goal": goal.ID})
			return finish(StatusCancelled, err)
		}
		result.FailedIndex = i
		result.FailedGoalID = goal.ID
		return finish(StatusFailed, &GoalFailure{
			GoalID:            goal.ID,
			Sequence:          goal.Sequence,
			Index:             i,
			Kind:              gr.ErrorKind,
			Attempts:          gr.Attempts,
			FallbackAttempted: gr.FallbackAttempted,
		})
	}
	return finish(StatusComplete, nil)
}

// openRun creates the run's session and checkpoint store when configured.
// Failures are logged and the run continues without them.
func (e *Executor) openRun(r *run) {
	if e.sessions != nil {
		sess, err := e.sessions.Create(r.rc.RunID, r.wf.ID, r.wf.Name, r.rc.Bindings)
		if err != nil {
			e.logger.Warn("failed to create session", map[string]interface{}{"error": err.Error()})
		} else {
			r.sess = sess
		}
	}
	if e.cfg.CheckpointDir != "" {
		store, err := checkpoint.NewStore(filepath.Join(e.cfg.CheckpointDir, r.rc.RunID))
		if err != nil {
			e.logger.Warn("failed to open checkpoint store", map[string]interface{}{"error": err.Error()})
		} else {
			r.checkpoints = store
		}
	}
}

// IsCancelled reports whether err ended a run by cancellation.
func IsCancelled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
