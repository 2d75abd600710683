// Tracing instrumentation for the executor.
package executor

import (
	"context"
	"errors"

	"github.com/vinayprograms/agentkit/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/vinayprograms/goalflow/internal/workflow"
)

// startWorkflowSpan starts a span for the workflow execution.
func (e *Executor) startWorkflowSpan(ctx context.Context, wf *workflow.Workflow) (context.Context, trace.Span) {
	tracer := telemetry.GetTracer()
	ctx, span := tracer.StartSpan(ctx, "workflow.run")
	span.SetAttributes(
		attribute.String("workflow.id", wf.ID),
		attribute.String("workflow.name", wf.Name),
		attribute.Int("workflow.goals", len(wf.Steps)),
	)
	return ctx, span
}

// endWorkflowSpan ends the workflow span with result info.
func (e *Executor) endWorkflowSpan(span trace.Span, result *WorkflowResult, err error) {
	span.SetAttributes(
		attribute.String("workflow.status", string(result.Status)),
		attribute.Int("workflow.failed_index", result.FailedIndex),
	)
	if result.RunID != "" {
		span.SetAttributes(attribute.String("workflow.run_id", result.RunID))
	}
	if err != nil {
		span.RecordError(err)
	}
	span.End()
}

// startGoalSpan starts a span for a goal execution.
func (e *Executor) startGoalSpan(ctx context.Context, goal workflow.GoalStep) (context.Context, trace.Span) {
	tracer := telemetry.GetTracer()
	ctx, span := tracer.StartSpan(ctx, "goal."+goal.ID)
	span.SetAttributes(
		attribute.String("goal.id", goal.ID),
		attribute.Int("goal.sequence", goal.Sequence),
		attribute.String("goal.type", string(goal.Type)),
		attribute.Int("goal.strategies", len(goal.Strategies)),
	)
	if telemetry.GetTracer().Debug() {
		span.SetAttributes(attribute.String("goal.description", truncateForLog(goal.Description, 500)))
	}
	return ctx, span
}

// endGoalSpan ends the goal span with its outcome.
func (e *Executor) endGoalSpan(span trace.Span, gr GoalResult) {
	span.SetAttributes(
		attribute.Bool("goal.success", gr.Success),
		attribute.String("goal.strategy_used", gr.StrategyUsed),
		attribute.Bool("goal.fallback_attempted", gr.FallbackAttempted),
	)
	if gr.ErrorKind != "" {
		span.RecordError(errors.New(string(gr.ErrorKind)))
	}
	span.End()
}

// startAttemptSpan starts a span for one strategy attempt.
func (e *Executor) startAttemptSpan(ctx context.Context, name string, priority int) (context.Context, trace.Span) {
	tracer := telemetry.GetTracer()
	ctx, span := tracer.StartSpan(ctx, "attempt."+name)
	span.SetAttributes(
		attribute.String("attempt.strategy", name),
		attribute.Int("attempt.priority", priority),
	)
	return ctx, span
}

// endAttemptSpan ends the attempt span.
func (e *Executor) endAttemptSpan(span trace.Span, a Attempt) {
	span.SetAttributes(attribute.String("attempt.outcome", string(a.Outcome)))
	if a.ErrorKind != "" {
		span.SetAttributes(attribute.String("attempt.error_kind", string(a.ErrorKind)))
	}
	if a.Reason != "" && a.Outcome != OutcomeSucceeded {
		span.RecordError(errors.New(a.Reason))
	}
	span.End()
}

func truncateForLog(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
