package checkpoint

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestNewStore(t *testing.T) {
	store, err := NewStore(filepath.Join(t.TempDir(), "nested", "cp"))
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	if store == nil {
		t.Fatal("store is nil")
	}
}

func TestSavePlanAndOutcome(t *testing.T) {
	dir := t.TempDir()
	store, _ := NewStore(dir)

	plan := &Plan{
		GoalID:      "goal-002",
		Sequence:    2,
		GoalType:    "write",
		Description: "Search for sushi",
		Strategies:  []string{"selector_type", "focused_type"},
		Criteria:    []string{"url_changed"},
		Timestamp:   time.Now(),
	}
	if err := store.SavePlan(plan); err != nil {
		t.Fatalf("SavePlan failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "goal-002.json")); err != nil {
		t.Error("checkpoint file not written to disk")
	}

	out := &Outcome{
		GoalID:       "goal-002",
		Success:      true,
		StrategyUsed: "focused_type",
		Attempts: []Attempt{
			{Strategy: "selector_type", Priority: 100, Outcome: "failed", Reason: "not found"},
			{Strategy: "focused_type", Priority: 5, Outcome: "succeeded"},
		},
	}
	if err := store.SaveOutcome(out); err != nil {
		t.Fatalf("SaveOutcome failed: %v", err)
	}

	cp := store.Get("goal-002")
	if cp == nil || cp.Plan == nil || cp.Outcome == nil {
		t.Fatalf("incomplete checkpoint %+v", cp)
	}
	if !cp.Deviated() {
		t.Error("succeeding with the second strategy is a deviation")
	}
}

func TestDeviated(t *testing.T) {
	cp := &Checkpoint{
		Plan:    &Plan{Strategies: []string{"a", "b"}},
		Outcome: &Outcome{Success: true, StrategyUsed: "a"},
	}
	if cp.Deviated() {
		t.Error("first strategy success is not a deviation")
	}
	cp.Outcome.Success = false
	if !cp.Deviated() {
		t.Error("failure is a deviation")
	}
	if (&Checkpoint{Plan: &Plan{}}).Deviated() {
		t.Error("no outcome yet is not a deviation")
	}
}

func TestTrailOrderedBySequence(t *testing.T) {
	store, _ := NewStore(t.TempDir())
	store.SavePlan(&Plan{GoalID: "goal-003", Sequence: 3})
	store.SavePlan(&Plan{GoalID: "goal-001", Sequence: 1})
	store.SaveOutcome(&Outcome{GoalID: "orphan"})
	store.SavePlan(&Plan{GoalID: "goal-002", Sequence: 2})

	trail := store.Trail()
	if len(trail) != 4 {
		t.Fatalf("expected 4 checkpoints, got %d", len(trail))
	}
	for i, want := range []string{"goal-001", "goal-002", "goal-003"} {
		if trail[i].Plan.GoalID != want {
			t.Errorf("trail[%d] = %s, want %s", i, trail[i].Plan.GoalID, want)
		}
	}
	if trail[3].Plan != nil {
		t.Error("checkpoint without a plan should sort last")
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	store, _ := NewStore(dir)
	store.SavePlan(&Plan{GoalID: "goal-001", Sequence: 1, Strategies: []string{"direct_url"}})
	store.SaveOutcome(&Outcome{GoalID: "goal-001", Success: true, StrategyUsed: "direct_url"})
	os.WriteFile(filepath.Join(dir, "junk.json"), []byte("{"), 0644)

	reloaded, _ := NewStore(dir)
	if err := reloaded.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	cp := reloaded.Get("goal-001")
	if cp == nil || cp.Outcome == nil || cp.Outcome.StrategyUsed != "direct_url" {
		t.Errorf("unexpected reloaded checkpoint %+v", cp)
	}
	if reloaded.Get("junk") != nil {
		t.Error("corrupt file should be skipped")
	}
}

func TestLoadMissingDir(t *testing.T) {
	store := &Store{dir: filepath.Join(t.TempDir(), "gone"), checkpoints: map[string]*Checkpoint{}}
	if err := store.Load(); err != nil {
		t.Errorf("missing dir should not error: %v", err)
	}
}
