// Package audit receives one record per goal execution and one summary per run.
package audit

import (
	"context"
	"errors"
	"time"
)

// Strategy values for records that did not end on a named strategy.
const (
	StrategyFallback = "agent-fallback"
	StrategyNone     = "none"
)

// Outcome values.
const (
	OutcomeSucceeded = "succeeded"
	OutcomeFailed    = "failed"
	OutcomeCancelled = "cancelled"
)

// Record describes one goal execution.
type Record struct {
	Timestamp         time.Time `json:"timestamp"`
	RunID             string    `json:"run_id"`
	WorkflowID        string    `json:"workflow_id"`
	GoalID            string    `json:"goal_id"`
	Sequence          int       `json:"sequence"`
	GoalType          string    `json:"goal_type"`
	Strategy          string    `json:"strategy"`
	Outcome           string    `json:"outcome"`
	DurationMs        int64     `json:"duration_ms"`
	ErrorKind         string    `json:"error_kind,omitempty"`
	Attempts          int       `json:"attempts"`
	FallbackAttempted bool      `json:"fallback_attempted"`
}

// Summary describes one run.
type Summary struct {
	Timestamp      time.Time `json:"timestamp"`
	RunID          string    `json:"run_id"`
	WorkflowID     string    `json:"workflow_id"`
	WorkflowName   string    `json:"workflow_name"`
	GoalsTotal     int       `json:"goals_total"`
	GoalsSucceeded int       `json:"goals_succeeded"`
	Success        bool      `json:"success"`
	Cancelled      bool      `json:"cancelled"`
	FailedGoal     string    `json:"failed_goal,omitempty"`
	DurationMs     int64     `json:"duration_ms"`
}

// Sink stores or forwards audit data.
type Sink interface {
	RecordGoal(ctx context.Context, r Record) error
	RecordRun(ctx context.Context, s Summary) error
	Close() error
}

type multi []Sink

// Multi fans out to every sink. With no sinks it discards everything.
func Multi(sinks ...Sink) Sink {
	var m multi
	for _, s := range sinks {
		if s != nil {
			m = append(m, s)
		}
	}
	return m
}

func (m multi) RecordGoal(ctx context.Context, r Record) error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.RecordGoal(ctx, r))
	}
	return errors.Join(errs...)
}

func (m multi) RecordRun(ctx context.Context, s Summary) error {
	var errs []error
	for _, sink := range m {
		errs = append(errs, sink.RecordRun(ctx, s))
	}
	return errors.Join(errs...)
}

func (m multi) Close() error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.Close())
	}
	return errors.Join(errs...)
}
