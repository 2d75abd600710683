package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func sampleRecord() Record {
	return Record{
		Timestamp:  time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		RunID:      "run-1",
		WorkflowID: "wf-1",
		GoalID:     "goal-002",
		Sequence:   2,
		GoalType:   "write",
		Strategy:   "focused_type",
		Outcome:    OutcomeSucceeded,
		DurationMs: 420,
		Attempts:   2,
	}
}

func TestSQLiteStore(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "db", "audit.db")
	store, err := OpenSQLite(ctx, path)
	if err != nil {
		t.Fatalf("OpenSQLite() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })

	if err := store.RecordGoal(ctx, sampleRecord()); err != nil {
		t.Fatalf("RecordGoal: %v", err)
	}
	failed := sampleRecord()
	failed.GoalID, failed.Sequence, failed.Strategy, failed.Outcome = "goal-003", 3, StrategyFallback, OutcomeFailed
	failed.ErrorKind, failed.FallbackAttempted = "agent_fallback_failure", true
	if err := store.RecordGoal(ctx, failed); err != nil {
		t.Fatalf("RecordGoal: %v", err)
	}

	records, err := store.GoalRecords(ctx, "run-1")
	if err != nil {
		t.Fatalf("GoalRecords: %v", err)
	}
	if len(records) != 2 || records[0].GoalID != "goal-002" || !records[1].FallbackAttempted {
		t.Fatalf("unexpected records %+v", records)
	}
	if !records[0].Timestamp.Equal(sampleRecord().Timestamp) {
		t.Errorf("timestamp = %v", records[0].Timestamp)
	}

	sum := Summary{RunID: "run-1", WorkflowID: "wf-1", WorkflowName: "sushi", GoalsTotal: 3,
		GoalsSucceeded: 2, FailedGoal: "goal-003", DurationMs: 900, Timestamp: time.Now()}
	if err := store.RecordRun(ctx, sum); err != nil {
		t.Fatalf("RecordRun: %v", err)
	}
	got, err := store.RunSummary(ctx, "run-1")
	if err != nil {
		t.Fatalf("RunSummary: %v", err)
	}
	if got.Success || got.GoalsSucceeded != 2 || got.FailedGoal != "goal-003" {
		t.Errorf("unexpected summary %+v", got)
	}
}

func TestSQLiteReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "audit.db")
	store, err := OpenSQLite(ctx, path)
	if err != nil {
		t.Fatal(err)
	}
	store.RecordGoal(ctx, sampleRecord())
	store.Close()

	store, err = OpenSQLite(ctx, path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer store.Close()
	records, _ := store.GoalRecords(ctx, "run-1")
	if len(records) != 1 {
		t.Errorf("expected 1 record after reopen, got %d", len(records))
	}
}

func TestOpenSQLiteEmptyPath(t *testing.T) {
	if _, err := OpenSQLite(context.Background(), ""); err == nil {
		t.Error("expected error for empty path")
	}
}

func TestJSONLSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	sink, err := NewJSONLSink(path)
	if err != nil {
		t.Fatal(err)
	}
	sink.RecordGoal(context.Background(), sampleRecord())
	sink.RecordRun(context.Background(), Summary{RunID: "run-1", Success: true})
	if err := sink.Close(); err != nil {
		t.Fatal(err)
	}

	f, _ := os.Open(path)
	defer f.Close()
	var lines []jsonlLine
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var l jsonlLine
		if err := json.Unmarshal(scanner.Bytes(), &l); err != nil {
			t.Fatalf("bad line %q: %v", scanner.Text(), err)
		}
		lines = append(lines, l)
	}
	if len(lines) != 2 || lines[0].Type != "goal" || lines[0].Goal.Strategy != "focused_type" || lines[1].Type != "run" || !lines[1].Summary.Success {
		t.Errorf("unexpected lines %+v", lines)
	}
}

type fakePublisher struct {
	subjects []string
	payloads [][]byte
	err      error
}

func (f *fakePublisher) Publish(subject string, data []byte) error {
	f.subjects = append(f.subjects, subject)
	f.payloads = append(f.payloads, data)
	return f.err
}

func TestNATSPublisher(t *testing.T) {
	fp := &fakePublisher{}
	p := &NATSPublisher{pub: fp, subject: "goalflow.audit"}
	p.RecordGoal(context.Background(), sampleRecord())
	p.RecordRun(context.Background(), Summary{RunID: "run-1"})

	if len(fp.subjects) != 2 || fp.subjects[0] != "goalflow.audit.goal" || fp.subjects[1] != "goalflow.audit.run" {
		t.Fatalf("unexpected subjects %v", fp.subjects)
	}
	var r Record
	if err := json.Unmarshal(fp.payloads[0], &r); err != nil || r.GoalID != "goal-002" {
		t.Errorf("unexpected payload %s", fp.payloads[0])
	}

	fp.err = errors.New("no responders")
	if err := p.RecordRun(context.Background(), Summary{}); err == nil {
		t.Error("expected publish error")
	}
	if err := p.Close(); err != nil {
		t.Errorf("Close without connection: %v", err)
	}
}

type countingSink struct {
	goals, runs, closed int
	err                 error
}

func (c *countingSink) RecordGoal(ctx context.Context, r Record) error { c.goals++; return c.err }
func (c *countingSink) RecordRun(ctx context.Context, s Summary) error { c.runs++; return c.err }
func (c *countingSink) Close() error                                   { c.closed++; return nil }

func TestMulti(t *testing.T) {
	a, b := &countingSink{}, &countingSink{err: errors.New("disk full")}
	m := Multi(a, nil, b)
	if err := m.RecordGoal(context.Background(), sampleRecord()); err == nil {
		t.Error("expected joined error")
	}
	m.RecordRun(context.Background(), Summary{})
	m.Close()
	if a.goals != 1 || b.goals != 1 || a.runs != 1 || a.closed != 1 || b.closed != 1 {
		t.Errorf("fan-out incomplete: %+v %+v", a, b)
	}

	if err := Multi().RecordGoal(context.Background(), sampleRecord()); err != nil {
		t.Errorf("empty multi should discard: %v", err)
	}
}
