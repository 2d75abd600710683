package executor

import (
	"time"

	"github.com/vinayprograms/goalflow/internal/workflow"
)

// Outcome of one attempt.
type Outcome string

const (
	OutcomeSucceeded   Outcome = "succeeded"
	OutcomeBlocked     Outcome = "blocked"
	OutcomeFailed      Outcome = "failed"
	OutcomeUnmet       Outcome = "criteria_unmet"
	OutcomeUnavailable Outcome = "unavailable"
)

// StrategyFallback names the agent fallback in results.
const StrategyFallback = "agent-fallback"

// Attempt is one strategy (or the fallback) tried for a goal.
type Attempt struct {
	Strategy  string        `json:"strategy"`
	Priority  int           `json:"priority"`
	Outcome   Outcome       `json:"outcome"`
	ErrorKind ErrorKind     `json:"error_kind,omitempty"`
	Reason    string        `json:"reason,omitempty"`
	Duration  time.Duration `json:"duration"`
}

// GoalResult is the outcome of one goal. Never mutated after it is returned.
type GoalResult struct {
	GoalID            string            `json:"goal_id"`
	Sequence          int               `json:"sequence"`
	Type              workflow.GoalType `json:"goal_type"`
	Success           bool              `json:"success"`
	StrategyUsed      string            `json:"strategy_used,omitempty"`
	Attempts          []Attempt         `json:"attempts"`
	FallbackAttempted bool              `json:"fallback_attempted"`
	Extracted         map[string]string `json:"extracted,omitempty"`
	Elapsed           time.Duration     `json:"elapsed"`
	ErrorKind         ErrorKind         `json:"error_kind,omitempty"`
	Error             string            `json:"error,omitempty"`
}

// Status of a run.
type Status string

const (
	StatusRunning   Status = "running"
	StatusComplete  Status = "complete"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// WorkflowResult aggregates the goals attempted in one run.
type WorkflowResult struct {
	RunID        string            `json:"run_id"`
	WorkflowID   string            `json:"workflow_id"`
	WorkflowName string            `json:"workflow_name"`
	Status       Status            `json:"status"`
	Success      bool              `json:"success"`
	Goals        []GoalResult      `json:"goals"`
	GoalsTotal   int               `json:"goals_total"`
	FailedIndex  int               `json:"failed_index"` // -1 when no goal failed
	FailedGoalID string            `json:"failed_goal_id,omitempty"`
	Extracted    map[string]string `json:"extracted,omitempty"`
	Elapsed      time.Duration     `json:"elapsed"`
	Error        string            `json:"error,omitempty"`
}

// Succeeded counts successful goals.
func (r *WorkflowResult) Succeeded() int {
	n := 0
	for _, g := range r.Goals {
		if g.Success {
			n++
		}
	}
	return n
}
