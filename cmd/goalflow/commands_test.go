package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/vinayprograms/goalflow/internal/executor"
	"github.com/vinayprograms/goalflow/internal/trace"
	"github.com/vinayprograms/goalflow/internal/workflow"
)

// writeConfig points every directory at dir so tests never touch HOME.
func writeConfig(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "goalflow.toml")
	content := fmt.Sprintf(`[session]
dir = %q

[checkpoint]
dir = %q

[library]
dir = %q
`, filepath.Join(dir, "sessions"), filepath.Join(dir, "checkpoints"), filepath.Join(dir, "workflows"))
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func dinnerWorkflow() *workflow.Workflow {
	return &workflow.Workflow{
		ID:          "wf-dinner",
		Version:     workflow.FormatVersion,
		Name:        "Find dinner",
		Description: "Search the map for a restaurant",
		Parameters:  map[string]string{"query": "sushi"},
		Steps: []workflow.GoalStep{{
			ID: "goal-001", Sequence: 1, Type: workflow.GoalWrite, Platform: workflow.PlatformBrowser,
			App: "Safari", Description: "Type {{query}} into the map search",
			Strategies: []workflow.Strategy{
				{Name: "focused_type", Priority: 5, Mechanism: workflow.Focused{Input: "{{query}}"}},
			},
			Criteria: workflow.SuccessCriteria{TimeoutSuccess: true},
		}},
	}
}

func TestCompileCmd_Run(t *testing.T) {
	dir := t.TempDir()
	rec := trace.Trace{
		SessionID: "rec-1",
		Steps: []trace.Step{
			{ID: "s1", Number: 1, Start: 0.5, End: 1.0, App: "Safari",
				Clicked: []trace.Element{{Selector: "#q", Name: "Search box", IsInput: true}}},
			{ID: "s2", Number: 2, Start: 1.5, End: 2.0, App: "Safari", TypedText: "sushi", Submitted: true,
				URLBefore: "https://maps.example.com/", URLAfter: "https://maps.example.com/search?q=sushi"},
		},
	}
	data, err := json.Marshal(rec)
	if err != nil {
		t.Fatal(err)
	}
	tracePath := filepath.Join(dir, "trace.json")
	if err := os.WriteFile(tracePath, data, 0644); err != nil {
		t.Fatal(err)
	}

	out := filepath.Join(dir, "dinner.yaml")
	cmd := &CompileCmd{Trace: tracePath, Output: out, Name: "Find dinner", NoLLM: true, Config: writeConfig(t, dir)}
	var stdout, stderr bytes.Buffer
	if err := cmd.run(context.Background(), &stdout, &stderr); err != nil {
		t.Fatalf("compile failed: %v", err)
	}
	if stdout.Len() != 0 {
		t.Errorf("expected nothing on stdout when writing a file, got %q", stdout.String())
	}
	if !strings.Contains(stderr.String(), "Compiled") {
		t.Errorf("expected a compile report, got %q", stderr.String())
	}

	raw, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if strings.HasPrefix(strings.TrimSpace(string(raw)), "{") {
		t.Errorf("expected YAML output for a .yaml path")
	}
	wf, err := workflow.LoadFile(out)
	if err != nil {
		t.Fatalf("compiled workflow does not load: %v", err)
	}
	if wf.Name != "Find dinner" || len(wf.Steps) != 1 {
		t.Errorf("unexpected workflow %q with %d goals", wf.Name, len(wf.Steps))
	}
}

func TestCompileCmd_InvalidTrace(t *testing.T) {
	dir := t.TempDir()
	tracePath := filepath.Join(dir, "trace.json")
	if err := os.WriteFile(tracePath, []byte(`{"steps": []}`), 0644); err != nil {
		t.Fatal(err)
	}
	cmd := &CompileCmd{Trace: tracePath, NoLLM: true, Config: writeConfig(t, dir)}
	var stdout, stderr bytes.Buffer
	if err := cmd.run(context.Background(), &stdout, &stderr); err == nil {
		t.Fatal("expected an error for an empty recording")
	}
}

func TestValidateAndInspect(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir)
	path := filepath.Join(dir, "dinner.json")
	if err := workflow.SaveFile(dinnerWorkflow(), path); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := (&ValidateCmd{Workflow: path, Config: cfgPath}).run(&buf); err != nil {
		t.Fatalf("validate failed: %v", err)
	}
	if !strings.Contains(buf.String(), "Valid") {
		t.Errorf("expected Valid in output, got %q", buf.String())
	}

	buf.Reset()
	if err := (&InspectCmd{Workflow: path, Config: cfgPath}).run(&buf); err != nil {
		t.Fatalf("inspect failed: %v", err)
	}
	for _, want := range []string{"Find dinner", "query", "focused_type", "goal-001"} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("inspect output missing %q:\n%s", want, buf.String())
		}
	}

	bad := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(bad, []byte(`{"id": "x", "steps": []}`), 0644); err != nil {
		t.Fatal(err)
	}
	if err := (&ValidateCmd{Workflow: bad, Config: cfgPath}).run(&buf); err == nil {
		t.Error("expected validation error")
	}
	if err := (&ValidateCmd{Workflow: filepath.Join(dir, "missing.json"), Config: cfgPath}).run(&buf); err == nil {
		t.Error("expected error for a missing file")
	}
}

func TestLoadWorkflow_FromLibrary(t *testing.T) {
	dir := t.TempDir()
	cfg, err := loadConfig(writeConfig(t, dir))
	if err != nil {
		t.Fatal(err)
	}
	if err := workflow.SaveFile(dinnerWorkflow(), filepath.Join(dir, "workflows", "dinner.json")); err != nil {
		t.Fatal(err)
	}

	for _, ref := range []string{"wf-dinner", "dinner"} {
		wf, err := loadWorkflow(cfg, ref)
		if err != nil {
			t.Fatalf("loadWorkflow(%q) failed: %v", ref, err)
		}
		if wf.ID != "wf-dinner" {
			t.Errorf("loadWorkflow(%q) returned %q", ref, wf.ID)
		}
	}
	if _, err := loadWorkflow(cfg, "unknown"); err == nil {
		t.Error("expected error for an unknown workflow")
	}
}

func TestSearchCmd_Run(t *testing.T) {
	dir := t.TempDir()
	if err := workflow.SaveFile(dinnerWorkflow(), filepath.Join(dir, "dinner.json")); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := (&SearchCmd{Query: "restaurant", Dir: dir, Limit: 5}).run(&buf); err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if !strings.Contains(buf.String(), "Find dinner") || !strings.Contains(buf.String(), "params: query") {
		t.Errorf("unexpected search output:\n%s", buf.String())
	}

	buf.Reset()
	if err := (&SearchCmd{Query: "zzzz-nothing", Dir: dir, Limit: 5}).run(&buf); err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if !strings.Contains(buf.String(), "No workflows found") {
		t.Errorf("expected empty result message, got %q", buf.String())
	}
}

func TestRunCmd_MissingParameters(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dinner.json")
	if err := workflow.SaveFile(dinnerWorkflow(), path); err != nil {
		t.Fatal(err)
	}

	cmd := &RunCmd{Workflow: path, Config: writeConfig(t, dir)}
	var stdout, stderr bytes.Buffer
	err := cmd.run(context.Background(), &stdout, &stderr)

	var missing *executor.MissingParameterError
	if !errors.As(err, &missing) || len(missing.Missing) != 1 || missing.Missing[0] != "query" {
		t.Fatalf("expected missing query, got %v", err)
	}
	if exitCode(err) != 2 {
		t.Errorf("expected exit code 2, got %d", exitCode(err))
	}
	if !strings.Contains(stdout.String(), "missing parameters") {
		t.Errorf("summary should report the error, got %q", stdout.String())
	}
}
