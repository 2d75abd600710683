package executor

import (
	"fmt"
	"strings"
)

// ErrorKind classifies attempt and goal failures.
type ErrorKind string

// Attempt-level kinds.
const (
	KindStrategyFailure    ErrorKind = "strategy_failure"
	KindSafetyBlocked      ErrorKind = "safety_blocked"
	KindCriteriaTimeout    ErrorKind = "success_criteria_timeout"
	KindBackendUnavailable ErrorKind = "backend_unavailable"
	KindUnboundPlaceholder ErrorKind = "unbound_placeholder"
)

// Goal-level kinds.
const (
	KindStrategiesExhausted  ErrorKind = "strategies_exhausted"
	KindAllStrategiesBlocked ErrorKind = "all_strategies_blocked"
	KindAgentFallbackFailure ErrorKind = "agent_fallback_failure"
	KindCancelled            ErrorKind = "cancelled"
)

func unboundReason(names []string) string {
	refs := make([]string, len(names))
	for i, n := range names {
		refs[i] = "{{" + n + "}}"
	}
	return "unbound placeholder " + strings.Join(refs, ", ")
}

// MissingParameterError is returned before any goal runs when bindings do
// not cover the workflow's placeholders.
type MissingParameterError struct {
	Missing []string
}

func (e *MissingParameterError) Error() string {
	return fmt.Sprintf("missing parameters: %s", strings.Join(e.Missing, ", "))
}

// GoalFailure is the error that halted a run.
type GoalFailure struct {
	GoalID            string
	Sequence          int
	Index             int
	Kind              ErrorKind
	Attempts          []Attempt
	FallbackAttempted bool
}

func (e *GoalFailure) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "goal %s (#%d) failed: %s", e.GoalID, e.Sequence, e.Kind)
	if len(e.Attempts) > 0 {
		tried := make([]string, len(e.Attempts))
		for i, a := range e.Attempts {
			tried[i] = a.Strategy + "=" + string(a.Outcome)
		}
		fmt.Fprintf(&b, " [%s]", strings.Join(tried, ", "))
	}
	if e.FallbackAttempted {
		b.WriteString(" (agent fallback attempted)")
	}
	return b.String()
}
