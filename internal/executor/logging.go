// Session, checkpoint and audit recording for the executor.
package executor

import (
	"context"
	"time"

	"github.com/vinayprograms/goalflow/internal/audit"
	"github.com/vinayprograms/goalflow/internal/checkpoint"
	"github.com/vinayprograms/goalflow/internal/evaluator"
	"github.com/vinayprograms/goalflow/internal/safety"
	"github.com/vinayprograms/goalflow/internal/session"
	"github.com/vinayprograms/goalflow/internal/workflow"
)

// logEvent appends an event to the run's session, if any.
func (e *Executor) logEvent(r *run, evt session.Event) {
	if r == nil || r.sess == nil || e.sessions == nil {
		return
	}
	r.sess.AddEvent(evt)
	if err := e.sessions.Update(r.sess); err != nil {
		e.logger.Warn("failed to save session", map[string]interface{}{"run": r.rc.RunID, "error": err.Error()})
	}
}

// logSafetyBlock records a refused action.
func (e *Executor) logSafetyBlock(r *run, goal workflow.GoalStep, name string, a safety.Action, d safety.Decision) {
	e.logger.Warn("action blocked", map[string]interface{}{
		"goal":     goal.ID,
		"strategy": name,
		"action":   string(a.Kind),
		"reason":   d.Reason,
	})
	e.logEvent(r, session.Event{
		Type:      session.EventSafetyBlock,
		Goal:      goal.ID,
		Sequence:  goal.Sequence,
		Strategy:  name,
		Outcome:   string(OutcomeBlocked),
		ErrorKind: string(KindSafetyBlocked),
		Meta: &session.EventMeta{
			Action: string(a.Kind),
			Target: firstNonEmpty(a.Target, a.URL, a.Keys, a.App),
			Reason: d.Reason,
			Level:  string(d.Level),
		},
	})
}

// logAttempt records the end of one attempt.
func (e *Executor) logAttempt(r *run, goal workflow.GoalStep, a Attempt, res *evaluator.Result) {
	fields := map[string]interface{}{
		"goal":     goal.ID,
		"strategy": a.Strategy,
		"priority": a.Priority,
		"outcome":  string(a.Outcome),
	}
	if a.Reason != "" {
		fields["reason"] = a.Reason
	}
	if a.Outcome == OutcomeSucceeded {
		e.logger.Info("attempt succeeded", fields)
	} else {
		e.logger.Debug("attempt failed", fields)
	}

	evt := session.Event{
		Type:       session.EventAttempt,
		Goal:       goal.ID,
		Sequence:   goal.Sequence,
		Strategy:   a.Strategy,
		Priority:   a.Priority,
		Outcome:    string(a.Outcome),
		ErrorKind:  string(a.ErrorKind),
		Success:    session.Bool(a.Outcome == OutcomeSucceeded),
		Error:      a.Reason,
		DurationMs: a.Duration.Milliseconds(),
	}
	if res != nil {
		evt.Meta = &session.EventMeta{
			Criteria: goal.Criteria.Names(),
			Unmet:    res.Unmet,
			Polls:    res.Polls,
			Observed: res.ObservedError,
		}
	}
	e.logEvent(r, evt)
	if e.OnAttempt != nil {
		e.OnAttempt(goal, a)
	}
}

// savePlan writes the goal's plan checkpoint.
func (e *Executor) savePlan(r *run, goal workflow.GoalStep, fallback bool) {
	if r == nil || r.checkpoints == nil {
		return
	}
	ordered := goal.OrderedStrategies()
	names := make([]string, len(ordered))
	for i, s := range ordered {
		names[i] = s.Name
	}
	err := r.checkpoints.SavePlan(&checkpoint.Plan{
		GoalID:      goal.ID,
		Sequence:    goal.Sequence,
		GoalType:    string(goal.Type),
		Description: goal.Description,
		Strategies:  names,
		Criteria:    goal.Criteria.Names(),
		Fallback:    fallback,
		Timestamp:   time.Now(),
	})
	if err != nil {
		e.logger.Warn("failed to save plan checkpoint", map[string]interface{}{"goal": goal.ID, "error": err.Error()})
	}
}

// saveOutcome writes the goal's outcome checkpoint.
func (e *Executor) saveOutcome(r *run, gr GoalResult) {
	if r == nil || r.checkpoints == nil {
		return
	}
	attempts := make([]checkpoint.Attempt, len(gr.Attempts))
	for i, a := range gr.Attempts {
		attempts[i] = checkpoint.Attempt{Strategy: a.Strategy, Priority: a.Priority, Outcome: string(a.Outcome), Reason: a.Reason}
	}
	err := r.checkpoints.SaveOutcome(&checkpoint.Outcome{
		GoalID:            gr.GoalID,
		Success:           gr.Success,
		StrategyUsed:      gr.StrategyUsed,
		Attempts:          attempts,
		FallbackAttempted: gr.FallbackAttempted,
		ErrorKind:         string(gr.ErrorKind),
		Extracted:         gr.Extracted,
		Timestamp:         time.Now(),
	})
	if err != nil {
		e.logger.Warn("failed to save outcome checkpoint", map[string]interface{}{"goal": gr.GoalID, "error": err.Error()})
	}
}

// auditGoal emits the per-goal audit record.
func (e *Executor) auditGoal(ctx context.Context, r *run, gr GoalResult) {
	if e.audit == nil {
		return
	}
	strategy := gr.StrategyUsed
	if strategy == "" {
		strategy = audit.StrategyNone
		if gr.FallbackAttempted {
			strategy = audit.StrategyFallback
		}
	}
	outcome := audit.OutcomeSucceeded
	switch {
	case gr.ErrorKind == KindCancelled:
		outcome = audit.OutcomeCancelled
	case !gr.Success:
		outcome = audit.OutcomeFailed
	}
	rec := audit.Record{
		Timestamp:         time.Now(),
		RunID:             r.rc.RunID,
		WorkflowID:        r.wf.ID,
		GoalID:            gr.GoalID,
		Sequence:          gr.Sequence,
		GoalType:          string(gr.Type),
		Strategy:          strategy,
		Outcome:           outcome,
		DurationMs:        gr.Elapsed.Milliseconds(),
		ErrorKind:         string(gr.ErrorKind),
		Attempts:          len(gr.Attempts),
		FallbackAttempted: gr.FallbackAttempted,
	}
	if err := e.audit.RecordGoal(context.WithoutCancel(ctx), rec); err != nil {
		e.logger.Warn("failed to write audit record", map[string]interface{}{"goal": gr.GoalID, "error": err.Error()})
	}
}

// auditRun emits the run summary.
func (e *Executor) auditRun(ctx context.Context, r *run, result *WorkflowResult) {
	if e.audit == nil {
		return
	}
	sum := audit.Summary{
		Timestamp:      time.Now(),
		RunID:          result.RunID,
		WorkflowID:     result.WorkflowID,
		WorkflowName:   result.WorkflowName,
		GoalsTotal:     result.GoalsTotal,
		GoalsSucceeded: result.Succeeded(),
		Success:        result.Success,
		Cancelled:      result.Status == StatusCancelled,
		FailedGoal:     result.FailedGoalID,
		DurationMs:     result.Elapsed.Milliseconds(),
	}
	if err := e.audit.RecordRun(context.WithoutCancel(ctx), sum); err != nil {
		e.logger.Warn("failed to write audit summary", map[string]interface{}{"run": result.RunID, "error": err.Error()})
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
