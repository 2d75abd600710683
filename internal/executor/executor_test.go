package executor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/vinayprograms/goalflow/internal/audit"
	"github.com/vinayprograms/goalflow/internal/capability"
	"github.com/vinayprograms/goalflow/internal/platform"
	"github.com/vinayprograms/goalflow/internal/platform/platformtest"
	"github.com/vinayprograms/goalflow/internal/safety"
	"github.com/vinayprograms/goalflow/internal/session"
	"github.com/vinayprograms/goalflow/internal/workflow"
)

type fakeAgent struct {
	action capability.Action
	err    error
	prompt string
	calls  int
}

func (a *fakeAgent) ActAsAgent(ctx context.Context, snap platform.Snapshot, goalPrompt string) (capability.Action, error) {
	a.calls++
	a.prompt = goalPrompt
	return a.action, a.err
}

type recordingSink struct {
	mu      sync.Mutex
	goals   []audit.Record
	summary []audit.Summary
}

func (s *recordingSink) RecordGoal(ctx context.Context, r audit.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.goals = append(s.goals, r)
	return nil
}

func (s *recordingSink) RecordRun(ctx context.Context, sum audit.Summary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.summary = append(s.summary, sum)
	return nil
}

func (s *recordingSink) Close() error { return nil }

func fastConfig(b *platformtest.Backend) Config {
	return Config{
		Backends:       platform.Backends{workflow.PlatformBrowser: b, workflow.PlatformDesktop: b},
		AttemptTimeout: time.Second,
		CriteriaBudget: 40 * time.Millisecond,
		PollInterval:   5 * time.Millisecond,
		CallTimeout:    time.Second,
	}
}

func navigateGoal(seq int, url string) workflow.GoalStep {
	return workflow.GoalStep{
		ID: goalID(seq), Sequence: seq, Type: workflow.GoalNavigate, Platform: workflow.PlatformBrowser,
		App: "Chrome", Description: "Open " + url,
		Strategies: []workflow.Strategy{{Name: "direct_url", Priority: 100, Mechanism: workflow.Navigate{URL: url}}},
	}
}

func selectGoal(seq int, css string) workflow.GoalStep {
	return workflow.GoalStep{
		ID: goalID(seq), Sequence: seq, Type: workflow.GoalSelect, Platform: workflow.PlatformBrowser,
		App: "Chrome", Description: "Click the first result",
		Strategies: []workflow.Strategy{{Name: "selector_click", Priority: 100, Mechanism: workflow.Selector{CSS: css}}},
	}
}

func goalID(seq int) string {
	return "goal-00" + string(rune('0'+seq))
}

func threeGoals(css string) *workflow.Workflow {
	return &workflow.Workflow{
		ID: "wf-test", Version: workflow.FormatVersion, Name: "three goals",
		Parameters: map[string]string{},
		Steps: []workflow.GoalStep{
			navigateGoal(1, "https://maps.example.com"),
			selectGoal(2, css),
			navigateGoal(3, "https://example.com/after"),
		},
	}
}

func navigatedTo(b *platformtest.Backend, url string) bool {
	for _, c := range b.Acts() {
		if c.Kind == platform.ActNavigate && c.Payload.URL == url {
			return true
		}
	}
	return false
}

func TestExecuteGoal_FirstSuccessWins(t *testing.T) {
	b := platformtest.New(platform.Snapshot{})
	e := New(fastConfig(b))

	goal := workflow.GoalStep{
		ID: "goal-001", Sequence: 1, Type: workflow.GoalWrite, Platform: workflow.PlatformBrowser,
		Description: "Type the search query",
		Strategies: []workflow.Strategy{
			{Name: "gemini_visual", Priority: 60, Mechanism: workflow.Visual{Description: "search box", Input: workflow.StringPtr("sushi")}},
			{Name: "focused_type", Priority: 90, Mechanism: workflow.Focused{Input: "sushi"}},
		},
	}
	gr := e.ExecuteGoal(context.Background(), goal, NewRunContext("", nil))

	if !gr.Success || gr.StrategyUsed != "focused_type" {
		t.Fatalf("expected focused_type to win, got %+v", gr)
	}
	if len(gr.Attempts) != 1 {
		t.Errorf("only the highest priority strategy should run, attempts: %+v", gr.Attempts)
	}
	acts := b.Acts()
	if len(acts) != 1 || acts[0].Kind != platform.ActType || acts[0].Payload.Text != "sushi" {
		t.Errorf("unexpected backend acts %+v", acts)
	}
}

func TestExecuteGoal_SubstitutesBeforeActing(t *testing.T) {
	b := platformtest.New(platform.Snapshot{})
	e := New(fastConfig(b))

	goal := workflow.GoalStep{
		ID: "goal-001", Sequence: 1, Type: workflow.GoalWrite, Platform: workflow.PlatformBrowser,
		Strategies: []workflow.Strategy{{Name: "focused_type", Priority: 5, Mechanism: workflow.Focused{Input: "{{query}} near me"}}},
	}
	gr := e.ExecuteGoal(context.Background(), goal, NewRunContext("", map[string]string{"query": "ramen"}))
	if !gr.Success {
		t.Fatalf("goal failed: %+v", gr)
	}
	if got := b.Acts()[0].Payload.Text; got != "ramen near me" {
		t.Errorf("typed %q", got)
	}
}

func TestRun_AllStrategiesBlockedHalts(t *testing.T) {
	b := platformtest.New(platform.Snapshot{})
	cfg := fastConfig(b)
	cfg.Gate = safety.GateFunc(func(ctx context.Context, a safety.Action) safety.Decision {
		if a.Kind == platform.ActClick {
			return safety.Decision{Level: safety.LevelBlocked, Reason: "clicks are not allowed"}
		}
		return safety.Allow
	})
	e := New(cfg)

	result, err := e.Run(context.Background(), threeGoals("#result"), nil)

	var gf *GoalFailure
	if !errors.As(err, &gf) {
		t.Fatalf("expected *GoalFailure, got %v", err)
	}
	if gf.Kind != KindAllStrategiesBlocked || gf.Index != 1 || gf.GoalID != "goal-002" {
		t.Errorf("unexpected failure %+v", gf)
	}
	if result.FailedIndex != 1 || result.Success || result.Status != StatusFailed {
		t.Errorf("unexpected result %+v", result)
	}
	if len(result.Goals) != 2 || result.Goals[1].Attempts[0].Outcome != OutcomeBlocked {
		t.Fatalf("unexpected goals %+v", result.Goals)
	}
	for _, c := range b.Calls() {
		if c.Op == "resolve" || c.Kind == platform.ActClick {
			t.Errorf("blocked strategy reached the backend: %+v", c)
		}
	}
	if navigatedTo(b, "https://example.com/after") {
		t.Error("goal 3 must not run after goal 2 failed")
	}
}

func TestRun_FailureStopsLaterGoals(t *testing.T) {
	b := platformtest.New(platform.Snapshot{})
	b.ResolveFunc = func(ctx context.Context, tg platform.Target) (platform.Locator, error) {
		return platform.Locator{}, platform.ErrNotFound
	}
	e := New(fastConfig(b))

	result, err := e.Run(context.Background(), threeGoals("#gone"), nil)

	var gf *GoalFailure
	if !errors.As(err, &gf) || gf.Kind != KindStrategiesExhausted {
		t.Fatalf("expected StrategiesExhausted, got %v", err)
	}
	if len(result.Goals) != 2 {
		t.Fatalf("expected 2 goal results, got %d", len(result.Goals))
	}
	if !result.Goals[0].Success || result.Goals[1].Success {
		t.Errorf("expected goal 1 success and goal 2 failure: %+v", result.Goals)
	}
	if result.Goals[1].Attempts[0].ErrorKind != KindStrategyFailure {
		t.Errorf("unexpected attempt %+v", result.Goals[1].Attempts[0])
	}
	if navigatedTo(b, "https://example.com/after") {
		t.Error("goal 3 was attempted")
	}
	if !strings.Contains(err.Error(), "selector_click=failed") {
		t.Errorf("error should list the tried strategies: %v", err)
	}
}

func TestRun_MissingParameterHasNoSideEffects(t *testing.T) {
	b := platformtest.New(platform.Snapshot{})
	sink := &recordingSink{}
	cfg := fastConfig(b)
	cfg.Audit = sink
	e := New(cfg)

	wf := &workflow.Workflow{
		ID: "wf-params", Name: "search", Parameters: map[string]string{"query": "sushi"},
		Steps: []workflow.GoalStep{{
			ID: "goal-001", Sequence: 1, Type: workflow.GoalWrite, Platform: workflow.PlatformBrowser,
			Description: "Search for {{query}}",
			Strategies:  []workflow.Strategy{{Name: "focused_type", Priority: 5, Mechanism: workflow.Focused{Input: "{{query}}"}}},
		}},
	}

	result, err := e.Run(context.Background(), wf, map[string]string{"unused": "x"})
	var mp *MissingParameterError
	if !errors.As(err, &mp) || len(mp.Missing) != 1 || mp.Missing[0] != "query" {
		t.Fatalf("expected missing query, got %v", err)
	}
	if len(b.Calls()) != 0 {
		t.Errorf("backend was touched: %+v", b.Calls())
	}
	if len(result.Goals) != 0 || len(sink.goals) != 0 {
		t.Error("no goal should have run")
	}

	// opting into defaults binds the recorded value
	cfg.ApplyDefaults = true
	result, err = New(cfg).Run(context.Background(), wf, nil)
	if err != nil || !result.Success {
		t.Fatalf("run with defaults: %v", err)
	}
	if got := b.Acts()[0].Payload.Text; got != "sushi" {
		t.Errorf("typed %q, want the default", got)
	}
}

func TestRun_CancelledBetweenGoals(t *testing.T) {
	b := platformtest.New(platform.Snapshot{})
	e := New(fastConfig(b))
	ctx, cancel := context.WithCancel(context.Background())
	e.OnGoalComplete = func(gr GoalResult) {
		if gr.GoalID == "goal-001" {
			cancel()
		}
	}

	result, err := e.Run(ctx, threeGoals("#result"), nil)
	if !errors.Is(err, context.Canceled) || !IsCancelled(err) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	if result.Status != StatusCancelled || result.Success {
		t.Errorf("unexpected status %s", result.Status)
	}
	if len(result.Goals) != 2 || result.Goals[1].ErrorKind != KindCancelled || len(result.Goals[1].Attempts) != 0 {
		t.Fatalf("goal 2 should be abandoned: %+v", result.Goals)
	}
	if result.FailedIndex != -1 {
		t.Errorf("cancellation is not a goal failure, failed index %d", result.FailedIndex)
	}
	if len(b.Acts()) != 1 {
		t.Errorf("only goal 1 should have acted: %+v", b.Acts())
	}
}

func TestExecuteGoal_AgentFallback(t *testing.T) {
	b := platformtest.New(platform.Snapshot{URL: "https://maps.example.com"})
	b.ResolveFunc = func(ctx context.Context, tg platform.Target) (platform.Locator, error) {
		return platform.Locator{}, platform.ErrNotFound
	}
	x, y := 120, 340
	agent := &fakeAgent{action: capability.Action{Kind: capability.ActionClick, X: &x, Y: &y}}
	cfg := fastConfig(b)
	cfg.Agent = agent
	e := New(cfg)

	goal := selectGoal(1, "#gone")
	goal.FallbackToAgent = true
	goal.AgentPrompt = workflow.StringPtr("Open the top rated sushi place")

	gr := e.ExecuteGoal(context.Background(), goal, nil)
	if !gr.Success || gr.StrategyUsed != StrategyFallback || !gr.FallbackAttempted {
		t.Fatalf("expected fallback success, got %+v", gr)
	}
	if len(gr.Attempts) != 2 || gr.Attempts[0].Outcome != OutcomeFailed {
		t.Errorf("unexpected attempts %+v", gr.Attempts)
	}
	if agent.calls != 1 || agent.prompt != "Open the top rated sushi place" {
		t.Errorf("agent called %d times with %q", agent.calls, agent.prompt)
	}
	acts := b.Acts()
	if len(acts) != 1 || acts[0].Locator.Point.X != 120 {
		t.Errorf("unexpected acts %+v", acts)
	}
}

func TestExecuteGoal_FallbackFailure(t *testing.T) {
	b := platformtest.New(platform.Snapshot{})
	cfg := fastConfig(b)
	cfg.Agent = &fakeAgent{err: errors.New("model refused")}
	cfg.Gate = safety.GateFunc(func(ctx context.Context, a safety.Action) safety.Decision {
		return safety.Decision{Level: safety.LevelBlocked, Reason: "blocked"}
	})
	e := New(cfg)

	goal := selectGoal(1, "#result")
	goal.FallbackToAgent = true
	gr := e.ExecuteGoal(context.Background(), goal, nil)
	if gr.Success || !gr.FallbackAttempted || gr.ErrorKind != KindAgentFallbackFailure {
		t.Fatalf("unexpected result %+v", gr)
	}

	// fallback disabled globally: every strategy blocked is reported as such
	cfg.DisableFallback = true
	gr = New(cfg).ExecuteGoal(context.Background(), goal, nil)
	if gr.FallbackAttempted || gr.ErrorKind != KindAllStrategiesBlocked {
		t.Fatalf("unexpected result %+v", gr)
	}
}

func TestExecuteGoal_FallbackWithoutAgent(t *testing.T) {
	b := platformtest.New(platform.Snapshot{})
	e := New(fastConfig(b))
	goal := workflow.GoalStep{
		ID: "goal-001", Sequence: 1, Type: workflow.GoalSelect, Platform: workflow.PlatformBrowser,
		Description: "Pick something", FallbackToAgent: true,
	}
	gr := e.ExecuteGoal(context.Background(), goal, nil)
	if gr.Success || gr.ErrorKind != KindAgentFallbackFailure || gr.Attempts[0].Outcome != OutcomeUnavailable {
		t.Errorf("unexpected result %+v", gr)
	}
}

func TestExecuteGoal_CriteriaTimeoutMovesOn(t *testing.T) {
	b := platformtest.New(platform.Snapshot{URL: "https://a.example.com/"})
	b.ActFunc = func(ctx context.Context, loc *platform.Locator, kind platform.ActionKind, p platform.Payload) (platform.Outcome, error) {
		if loc != nil && loc.Handle == `text "Next"` {
			b.SetState(platform.Snapshot{URL: "https://a.example.com/page2"})
		}
		return platform.Outcome{}, nil
	}
	e := New(fastConfig(b))

	goal := workflow.GoalStep{
		ID: "goal-001", Sequence: 1, Type: workflow.GoalSelect, Platform: workflow.PlatformBrowser,
		Strategies: []workflow.Strategy{
			{Name: "selector_click", Priority: 100, Mechanism: workflow.Selector{CSS: "a.stale"}},
			{Name: "text_click", Priority: 80, Mechanism: workflow.TextMatch{Text: "Next"}},
		},
		Criteria: workflow.SuccessCriteria{URLChanged: true},
	}
	gr := e.ExecuteGoal(context.Background(), goal, nil)
	if !gr.Success || gr.StrategyUsed != "text_click" {
		t.Fatalf("expected text_click to win: %+v", gr)
	}
	if gr.Attempts[0].Outcome != OutcomeUnmet || gr.Attempts[0].ErrorKind != KindCriteriaTimeout {
		t.Errorf("first attempt should time out on criteria: %+v", gr.Attempts[0])
	}
}

func TestExecuteGoal_BackendUnavailable(t *testing.T) {
	e := New(Config{Backends: platform.Backends{}, CriteriaBudget: 10 * time.Millisecond})
	gr := e.ExecuteGoal(context.Background(), navigateGoal(1, "https://x.example.com"), nil)
	if gr.Success || gr.ErrorKind != KindStrategiesExhausted {
		t.Fatalf("unexpected result %+v", gr)
	}
	if gr.Attempts[0].ErrorKind != KindBackendUnavailable {
		t.Errorf("unexpected attempt %+v", gr.Attempts[0])
	}
}

func TestRun_ExtractedDataFeedsLaterGoals(t *testing.T) {
	b := platformtest.New(platform.Snapshot{})
	b.ActFunc = func(ctx context.Context, loc *platform.Locator, kind platform.ActionKind, p platform.Payload) (platform.Outcome, error) {
		if kind == platform.ActExtract {
			return platform.Outcome{Extracted: map[string]string{"rating": "4.5", "name": "Sushi Ko"}}, nil
		}
		return platform.Outcome{}, nil
	}
	e := New(fastConfig(b))

	wf := &workflow.Workflow{
		ID: "wf-paste", Name: "copy rating", Parameters: map[string]string{},
		Steps: []workflow.GoalStep{
			{
				ID: "goal-001", Sequence: 1, Type: workflow.GoalExtract, Platform: workflow.PlatformBrowser,
				Strategies: []workflow.Strategy{{Name: "page_extract", Priority: 80, Mechanism: workflow.Extract{Source: workflow.ExtractBackend}}},
				Criteria:   workflow.SuccessCriteria{MinExtractedCount: workflow.IntPtr(2)},
				ExtractionSchema: map[string]workflow.ExtractionField{
					"rating": {Description: "star rating"},
					"name":   {Description: "restaurant name"},
				},
			},
			{
				ID: "goal-002", Sequence: 2, Type: workflow.GoalShortcut, Platform: workflow.PlatformDesktop, App: "Notes",
				Description: "Paste {{name}}",
				Strategies: []workflow.Strategy{{Name: "paste", Priority: 100,
					Mechanism: workflow.Shortcut{Keys: "command+v", Clipboard: workflow.StringPtr("{{extracted_content}}")}}},
			},
		},
	}

	result, err := e.Run(context.Background(), wf, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Extracted["rating"] != "4.5" || result.Goals[0].Extracted["name"] != "Sushi Ko" {
		t.Errorf("unexpected extracted data %+v", result.Extracted)
	}
	var clip string
	for _, c := range b.Acts() {
		if c.Kind == platform.ActSetClipboard {
			clip = c.Payload.Text
		}
	}
	if clip != "name: Sushi Ko\nrating: 4.5" {
		t.Errorf("clipboard = %q", clip)
	}
}

func TestRun_PartialExtractLeavesPlaceholderUnbound(t *testing.T) {
	b := platformtest.New(platform.Snapshot{})
	b.ActFunc = func(ctx context.Context, loc *platform.Locator, kind platform.ActionKind, p platform.Payload) (platform.Outcome, error) {
		if kind == platform.ActExtract {
			return platform.Outcome{Extracted: map[string]string{"name": "Sushi Ko"}}, nil
		}
		return platform.Outcome{}, nil
	}
	agent := &fakeAgent{action: capability.Action{Kind: capability.ActionType, Text: "typed"}}
	cfg := fastConfig(b)
	cfg.Agent = agent
	e := New(cfg)

	wf := &workflow.Workflow{
		ID: "wf-partial", Name: "note rating", Parameters: map[string]string{},
		Steps: []workflow.GoalStep{
			{
				ID: "goal-001", Sequence: 1, Type: workflow.GoalExtract, Platform: workflow.PlatformBrowser,
				Strategies: []workflow.Strategy{{Name: "page_extract", Priority: 80, Mechanism: workflow.Extract{Source: workflow.ExtractBackend}}},
				Criteria:   workflow.SuccessCriteria{MinExtractedCount: workflow.IntPtr(1)},
				ExtractionSchema: map[string]workflow.ExtractionField{
					"rating": {Description: "star rating"},
					"name":   {Description: "restaurant name"},
				},
			},
			{
				ID: "goal-002", Sequence: 2, Type: workflow.GoalWrite, Platform: workflow.PlatformDesktop, App: "Notes",
				Description:     "Type the rating of {{name}}",
				AgentPrompt:     workflow.StringPtr("Type: Rating: {{rating}}"),
				FallbackToAgent: true,
				Strategies: []workflow.Strategy{{Name: "focused_type", Priority: 5,
					Mechanism: workflow.Focused{Input: "{{name}}: {{rating}}"}}},
				Criteria: workflow.SuccessCriteria{TimeoutSuccess: true},
			},
		},
	}

	result, err := e.Run(context.Background(), wf, nil)
	var gf *GoalFailure
	if !errors.As(err, &gf) || gf.GoalID != "goal-002" {
		t.Fatalf("expected goal-002 to fail, got %v", err)
	}
	attempts := result.Goals[1].Attempts
	if len(attempts) != 2 {
		t.Fatalf("expected strategy and fallback attempts, got %+v", attempts)
	}
	for _, a := range attempts {
		if a.Outcome != OutcomeFailed || a.ErrorKind != KindUnboundPlaceholder || !strings.Contains(a.Reason, "{{rating}}") {
			t.Errorf("unexpected attempt %+v", a)
		}
	}
	for _, c := range b.Acts() {
		if c.Kind == platform.ActType {
			t.Errorf("placeholder text reached the backend: %q", c.Payload.Text)
		}
	}
	if agent.calls != 0 {
		t.Error("agent must not be asked to act on an unbound prompt")
	}
}

func TestRun_RecordsSessionCheckpointsAndAudit(t *testing.T) {
	b := platformtest.New(platform.Snapshot{})
	dir := t.TempDir()
	store, err := session.NewFileStore(filepath.Join(dir, "sessions"))
	if err != nil {
		t.Fatal(err)
	}
	sink := &recordingSink{}
	cfg := fastConfig(b)
	cfg.Sessions = session.NewManager(store)
	cfg.CheckpointDir = filepath.Join(dir, "checkpoints")
	cfg.Audit = sink
	e := New(cfg)

	var attempts int
	e.OnAttempt = func(goal workflow.GoalStep, a Attempt) { attempts++ }

	wf := threeGoals("#result")
	result, err := e.Run(context.Background(), wf, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !result.Success || result.Succeeded() != 3 || attempts != 3 {
		t.Errorf("unexpected result %+v (attempts %d)", result, attempts)
	}

	if len(sink.goals) != 3 || sink.goals[1].Strategy != "selector_click" || sink.goals[1].RunID != result.RunID {
		t.Errorf("unexpected audit records %+v", sink.goals)
	}
	if len(sink.summary) != 1 || !sink.summary[0].Success || sink.summary[0].GoalsSucceeded != 3 {
		t.Errorf("unexpected audit summary %+v", sink.summary)
	}

	sess, err := store.Load(result.RunID)
	if err != nil {
		t.Fatalf("load session: %v", err)
	}
	if sess.Status != session.StatusComplete {
		t.Errorf("session status %s", sess.Status)
	}
	first, last := sess.Events[0], sess.Events[len(sess.Events)-1]
	if first.Type != session.EventWorkflowStart || last.Type != session.EventWorkflowEnd {
		t.Errorf("unexpected framing events %s .. %s", first.Type, last.Type)
	}

	entries, err := os.ReadDir(filepath.Join(dir, "checkpoints", result.RunID))
	if err != nil || len(entries) != 3 {
		t.Errorf("expected 3 checkpoint files, got %d (%v)", len(entries), err)
	}
}

func TestRun_InvalidWorkflow(t *testing.T) {
	e := New(fastConfig(platformtest.New(platform.Snapshot{})))
	result, err := e.Run(context.Background(), &workflow.Workflow{}, nil)
	if err == nil || result.Status != StatusFailed {
		t.Fatalf("expected validation failure, got %v", err)
	}
}

func TestRunContextMerge(t *testing.T) {
	rc := NewRunContext("run-1", map[string]string{"query": "sushi"})
	rc.Merge(map[string]string{"rating": "4.5"})
	rc.Merge(map[string]string{"address": "1 Main St"})
	if rc.Bindings["rating"] != "4.5" || rc.Bindings["query"] != "sushi" {
		t.Errorf("unexpected bindings %+v", rc.Bindings)
	}
	if got := rc.Bindings[workflow.ExtractedContentBinding]; got != "address: 1 Main St\nrating: 4.5" {
		t.Errorf("extracted_content = %q", got)
	}
	rc.Merge(nil)
	if len(rc.Extracted) != 2 {
		t.Error("empty merge changed state")
	}
}
