package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vinayprograms/goalflow/internal/capability"
	"github.com/vinayprograms/goalflow/internal/evaluator"
	"github.com/vinayprograms/goalflow/internal/platform"
	"github.com/vinayprograms/goalflow/internal/resolver"
	"github.com/vinayprograms/goalflow/internal/session"
	"github.com/vinayprograms/goalflow/internal/workflow"
)

// ExecuteGoal drives one goal through its strategies against rc. Extracted
// data is returned on the result and is not merged into rc.
func (e *Executor) ExecuteGoal(ctx context.Context, goal workflow.GoalStep, rc *RunContext) GoalResult {
	if rc == nil {
		rc = NewRunContext("", nil)
	}
	return e.executeGoal(ctx, &run{wf: &workflow.Workflow{}, rc: rc}, goal)
}

func (e *Executor) executeGoal(ctx context.Context, r *run, goal workflow.GoalStep) GoalResult {
	start := time.Now()
	gr := GoalResult{GoalID: goal.ID, Sequence: goal.Sequence, Type: goal.Type}

	if ctx.Err() != nil {
		return e.abandon(r, goal, gr, start)
	}

	if e.OnGoalStart != nil {
		e.OnGoalStart(goal)
	}
	ctx, span := e.startGoalSpan(ctx, goal)
	e.logger.PhaseStart("GOAL", goal.ID, string(goal.Type))
	e.logEvent(r, session.Event{Type: session.EventGoalStart, Goal: goal.ID, Sequence: goal.Sequence, Content: goal.Description})

	fallback := goal.FallbackToAgent && !e.cfg.DisableFallback
	e.savePlan(r, goal, fallback)

	bound := goal.Substitute(r.rc.Bindings)
	cancelled := false
	for _, s := range bound.OrderedStrategies() {
		if ctx.Err() != nil {
			cancelled = true
			break
		}
		a, extracted, res := e.attemptStrategy(ctx, r, bound, s)
		gr.Attempts = append(gr.Attempts, a)
		if a.Outcome == OutcomeSucceeded {
			gr.Success = true
			gr.StrategyUsed = s.Name
			gr.Extracted = extracted
			break
		}
		if res != nil && errors.Is(res.Err, context.Canceled) {
			cancelled = true
			break
		}
	}

	if !gr.Success && !cancelled && fallback {
		if ctx.Err() != nil {
			cancelled = true
		} else {
			gr.FallbackAttempted = true
			a, extracted, res := e.attemptFallback(ctx, r, bound)
			gr.Attempts = append(gr.Attempts, a)
			if a.Outcome == OutcomeSucceeded {
				gr.Success = true
				gr.StrategyUsed = StrategyFallback
				gr.Extracted = extracted
			} else if res != nil && errors.Is(res.Err, context.Canceled) {
				cancelled = true
			}
		}
	}

	if !gr.Success {
		gr.ErrorKind = terminalKind(gr, cancelled)
		gr.Error = fmt.Sprintf("goal %s: %s", goal.ID, gr.ErrorKind)
	}
	gr.Elapsed = time.Since(start)

	status := "succeeded"
	if !gr.Success {
		status = string(gr.ErrorKind)
	}
	e.logger.PhaseComplete("GOAL", goal.ID, string(goal.Type), gr.Elapsed, status)
	e.logEvent(r, session.Event{
		Type:       session.EventGoalEnd,
		Goal:       goal.ID,
		Sequence:   goal.Sequence,
		Strategy:   gr.StrategyUsed,
		Success:    session.Bool(gr.Success),
		ErrorKind:  string(gr.ErrorKind),
		Error:      gr.Error,
		DurationMs: gr.Elapsed.Milliseconds(),
		Meta:       &session.EventMeta{Extracted: gr.Extracted},
	})
	e.saveOutcome(r, gr)
	e.endGoalSpan(span, gr)
	if e.OnGoalComplete != nil {
		e.OnGoalComplete(gr)
	}
	return gr
}

// abandon produces the result for a goal that was never started.
func (e *Executor) abandon(r *run, goal workflow.GoalStep, gr GoalResult, start time.Time) GoalResult {
	gr.ErrorKind = KindCancelled
	gr.Error = fmt.Sprintf("goal %s: %s", goal.ID, KindCancelled)
	gr.Elapsed = time.Since(start)
	e.logEvent(r, session.Event{
		Type: session.EventGoalEnd, Goal: goal.ID, Sequence: goal.Sequence,
		Success: session.Bool(false), ErrorKind: string(KindCancelled),
	})
	return gr
}

func terminalKind(gr GoalResult, cancelled bool) ErrorKind {
	if cancelled {
		return KindCancelled
	}
	if gr.FallbackAttempted {
		return KindAgentFallbackFailure
	}
	if len(gr.Attempts) == 0 {
		return KindStrategiesExhausted
	}
	for _, a := range gr.Attempts {
		if a.Outcome != OutcomeBlocked {
			return KindStrategiesExhausted
		}
	}
	return KindAllStrategiesBlocked
}

// attemptStrategy runs one strategy: gate, act, verify. goal is already
// substituted.
func (e *Executor) attemptStrategy(ctx context.Context, r *run, goal workflow.GoalStep, s workflow.Strategy) (Attempt, map[string]string, *evaluator.Result) {
	start := time.Now()
	ctx, span := e.startAttemptSpan(ctx, s.Name, s.Priority)
	a := Attempt{Strategy: s.Name, Priority: s.Priority}
	finish := func(res *evaluator.Result) {
		a.Duration = time.Since(start)
		e.logAttempt(r, goal, a, res)
		e.endAttemptSpan(span, a)
	}

	// Extract goals may bind fewer fields than the schema names; a
	// leftover reference must not reach the screen as literal text.
	if names := s.Unbound(); len(names) > 0 {
		a.Outcome, a.ErrorKind, a.Reason = OutcomeFailed, KindUnboundPlaceholder, unboundReason(names)
		finish(nil)
		return a, nil, nil
	}

	proposed := e.resolver.Propose(goal, s)
	if d := e.gate.Check(ctx, proposed); !d.Allowed {
		a.Outcome, a.ErrorKind, a.Reason = OutcomeBlocked, KindSafetyBlocked, d.Reason
		e.logSafetyBlock(r, goal, s.Name, proposed, d)
		finish(nil)
		return a, nil, nil
	}

	backend, err := e.backends.Get(goal.Platform)
	if err != nil {
		a.Outcome, a.ErrorKind, a.Reason = OutcomeUnavailable, KindBackendUnavailable, err.Error()
		finish(nil)
		return a, nil, nil
	}
	baseline := e.baseline(ctx, backend, goal.Criteria)

	// Actions are never interrupted mid-flight by cancellation, only by
	// their own timeout.
	actCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.cfg.AttemptTimeout)
	out, err := e.resolver.Perform(actCtx, goal, s)
	cancel()
	e.logger.ToolResult(s.Name, time.Since(start), err)
	if err != nil {
		a.Outcome, a.ErrorKind = classifyActionError(err)
		a.Reason = err.Error()
		finish(nil)
		return a, nil, nil
	}

	res := e.evaluator.Await(ctx, goal.Criteria, baseline, backend, out.Extracted)
	e.verdict(&a, res)
	finish(&res)
	return a, out.Extracted, &res
}

// attemptFallback asks the agent for one action and verifies it like any
// strategy.
func (e *Executor) attemptFallback(ctx context.Context, r *run, goal workflow.GoalStep) (Attempt, map[string]string, *evaluator.Result) {
	start := time.Now()
	ctx, span := e.startAttemptSpan(ctx, StrategyFallback, 0)
	a := Attempt{Strategy: StrategyFallback}
	prompt := goal.Prompt()
	finish := func(res *evaluator.Result) {
		a.Duration = time.Since(start)
		e.logAttempt(r, goal, a, res)
		e.endAttemptSpan(span, a)
	}

	e.logger.Info("agent fallback", map[string]interface{}{"goal": goal.ID, "prompt": truncateForLog(prompt, 200)})
	e.logEvent(r, session.Event{
		Type: session.EventFallback, Goal: goal.ID, Sequence: goal.Sequence,
		Meta: &session.EventMeta{Prompt: prompt},
	})

	if names := workflow.Placeholders(prompt); len(names) > 0 {
		a.Outcome, a.ErrorKind, a.Reason = OutcomeFailed, KindUnboundPlaceholder, unboundReason(names)
		finish(nil)
		return a, nil, nil
	}
	if e.agent == nil {
		a.Outcome, a.ErrorKind, a.Reason = OutcomeUnavailable, KindBackendUnavailable, "no agent configured"
		finish(nil)
		return a, nil, nil
	}
	backend, err := e.backends.Get(goal.Platform)
	if err != nil {
		a.Outcome, a.ErrorKind, a.Reason = OutcomeUnavailable, KindBackendUnavailable, err.Error()
		finish(nil)
		return a, nil, nil
	}

	callCtx, cancel := context.WithTimeout(ctx, e.cfg.CallTimeout)
	snap, err := backend.Observe(callCtx)
	if err == nil {
		var act capability.Action
		act, err = e.agent.ActAsAgent(callCtx, snap, prompt)
		cancel()
		if err == nil {
			return e.performAgentAction(ctx, r, goal, backend, snap, act, &a, finish)
		}
	} else {
		cancel()
	}
	a.Outcome, a.ErrorKind = classifyActionError(err)
	a.Reason = err.Error()
	finish(nil)
	return a, nil, nil
}

func (e *Executor) performAgentAction(ctx context.Context, r *run, goal workflow.GoalStep, backend platform.Backend,
	baseline platform.Snapshot, act capability.Action, a *Attempt, finish func(*evaluator.Result)) (Attempt, map[string]string, *evaluator.Result) {

	proposed := resolver.ProposeAgent(goal, act)
	if d := e.gate.Check(ctx, proposed); !d.Allowed {
		a.Outcome, a.ErrorKind, a.Reason = OutcomeBlocked, KindSafetyBlocked, d.Reason
		e.logSafetyBlock(r, goal, StrategyFallback, proposed, d)
		finish(nil)
		return *a, nil, nil
	}

	actCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.cfg.AttemptTimeout)
	out, err := e.resolver.PerformAgent(actCtx, goal, act)
	cancel()
	if err != nil {
		a.Outcome, a.ErrorKind = classifyActionError(err)
		a.Reason = err.Error()
		finish(nil)
		return *a, nil, nil
	}

	res := e.evaluator.Await(ctx, goal.Criteria, baseline, backend, out.Extracted)
	e.verdict(a, res)
	finish(&res)
	return *a, out.Extracted, &res
}

// baseline observes the surface before acting when a criterion compares
// before and after.
func (e *Executor) baseline(ctx context.Context, backend platform.Backend, c workflow.SuccessCriteria) platform.Snapshot {
	if !c.URLChanged {
		return platform.Snapshot{}
	}
	callCtx, cancel := context.WithTimeout(ctx, e.cfg.CallTimeout)
	defer cancel()
	snap, err := backend.Observe(callCtx)
	if err != nil {
		e.logger.Debug("baseline observe failed", map[string]interface{}{"error": err.Error()})
	}
	return snap
}

// verdict fills the attempt from the evaluator result.
func (e *Executor) verdict(a *Attempt, res evaluator.Result) {
	switch {
	case res.Passed:
		a.Outcome = OutcomeSucceeded
	case res.Err != nil && isUnavailable(res.Err):
		a.Outcome, a.ErrorKind, a.Reason = OutcomeUnavailable, KindBackendUnavailable, res.Err.Error()
	case res.Err != nil:
		a.Outcome, a.ErrorKind, a.Reason = OutcomeUnmet, KindCriteriaTimeout, res.Err.Error()
	case res.ObservedError != "":
		a.Outcome, a.ErrorKind, a.Reason = OutcomeUnmet, KindCriteriaTimeout, "observed error: "+res.ObservedError
	default:
		a.Outcome, a.ErrorKind = OutcomeUnmet, KindCriteriaTimeout
		a.Reason = fmt.Sprintf("criteria unmet after %s: %v", res.Elapsed.Round(time.Millisecond), res.Unmet)
	}
}

func classifyActionError(err error) (Outcome, ErrorKind) {
	if isUnavailable(err) {
		return OutcomeUnavailable, KindBackendUnavailable
	}
	return OutcomeFailed, KindStrategyFailure
}

func isUnavailable(err error) bool {
	return errors.Is(err, platform.ErrUnavailable) || errors.Is(err, capability.ErrUnavailable)
}
