package resolver

import (
	"context"
	"errors"
	"testing"

	"github.com/vinayprograms/goalflow/internal/capability"
	"github.com/vinayprograms/goalflow/internal/platform"
	"github.com/vinayprograms/goalflow/internal/platform/platformtest"
	"github.com/vinayprograms/goalflow/internal/workflow"
)

type fakeVision struct {
	point  *platform.Point
	fields map[string]string
	err    error
}

func (v *fakeVision) LocateElement(ctx context.Context, snap platform.Snapshot, description string) (*platform.Point, error) {
	return v.point, v.err
}

func (v *fakeVision) ExtractFields(ctx context.Context, snap platform.Snapshot, schema map[string]workflow.ExtractionField) (map[string]string, error) {
	return v.fields, v.err
}

func browserGoal(t workflow.GoalType) workflow.GoalStep {
	return workflow.GoalStep{ID: "g", Type: t, Platform: workflow.PlatformBrowser, App: "Chrome", Description: "do it"}
}

func TestPerformSelectorType(t *testing.T) {
	b := platformtest.New(platform.Snapshot{})
	r := New(platform.Backends{workflow.PlatformBrowser: b}, nil, 0)

	s := workflow.Strategy{Name: "selector_type", Priority: 100,
		Mechanism: workflow.Selector{CSS: "#q", Input: workflow.StringPtr("sushi"), Submit: true}}
	if _, err := r.Perform(context.Background(), browserGoal(workflow.GoalWrite), s); err != nil {
		t.Fatalf("Perform: %v", err)
	}
	calls := b.Calls()
	if len(calls) != 2 || calls[0].Op != "resolve" || calls[0].Target.Selector != "#q" {
		t.Fatalf("unexpected calls %+v", calls)
	}
	if calls[1].Kind != platform.ActType || calls[1].Payload.Text != "sushi" || !calls[1].Payload.Submit || calls[1].Locator == nil {
		t.Errorf("unexpected act %+v", calls[1])
	}
}

func TestPerformClickNotFound(t *testing.T) {
	b := platformtest.New(platform.Snapshot{})
	b.ResolveFunc = func(ctx context.Context, tg platform.Target) (platform.Locator, error) {
		return platform.Locator{}, platform.ErrNotFound
	}
	r := New(platform.Backends{workflow.PlatformBrowser: b}, nil, 0)
	s := workflow.Strategy{Name: "text_click", Priority: 80, Mechanism: workflow.TextMatch{Text: "Sushi Place"}}
	_, err := r.Perform(context.Background(), browserGoal(workflow.GoalSelect), s)
	if !errors.Is(err, platform.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if len(b.Acts()) != 0 {
		t.Error("should not act when the target is not found")
	}
}

func TestPerformVisualUsesVision(t *testing.T) {
	b := platformtest.New(platform.Snapshot{VisibleText: "page"})
	vision := &fakeVision{point: &platform.Point{X: 5, Y: 7}}
	r := New(platform.Backends{workflow.PlatformBrowser: b}, vision, 0)
	s := workflow.Strategy{Name: "visual_click", Priority: 40, Mechanism: workflow.Visual{Description: "blue button"}}
	if _, err := r.Perform(context.Background(), browserGoal(workflow.GoalSelect), s); err != nil {
		t.Fatalf("Perform: %v", err)
	}
	acts := b.Acts()
	if len(acts) != 1 || acts[0].Locator.Point.X != 5 || acts[0].Kind != platform.ActClick {
		t.Errorf("unexpected acts %+v", acts)
	}

	vision.point = nil
	if _, err := r.Perform(context.Background(), browserGoal(workflow.GoalSelect), s); !errors.Is(err, platform.ErrNotFound) {
		t.Errorf("expected ErrNotFound when vision finds nothing, got %v", err)
	}

	noVision := New(platform.Backends{workflow.PlatformBrowser: b}, nil, 0)
	if _, err := noVision.Perform(context.Background(), browserGoal(workflow.GoalSelect), s); !errors.Is(err, capability.ErrUnavailable) {
		t.Errorf("expected ErrUnavailable without vision, got %v", err)
	}
}

func TestPerformPasteSetsClipboardFirst(t *testing.T) {
	b := platformtest.New(platform.Snapshot{})
	r := New(platform.Backends{workflow.PlatformDesktop: b}, nil, 0)
	goal := workflow.GoalStep{ID: "g", Type: workflow.GoalShortcut, Platform: workflow.PlatformDesktop}
	s := workflow.Strategy{Name: "paste", Priority: 100,
		Mechanism: workflow.Shortcut{Keys: "command+v", Clipboard: workflow.StringPtr("4.5 stars")}}
	if _, err := r.Perform(context.Background(), goal, s); err != nil {
		t.Fatalf("Perform: %v", err)
	}
	acts := b.Acts()
	if len(acts) != 2 || acts[0].Kind != platform.ActSetClipboard || acts[0].Payload.Text != "4.5 stars" || acts[1].Payload.Keys != "command+v" {
		t.Errorf("unexpected acts %+v", acts)
	}
}

func TestPerformExtract(t *testing.T) {
	b := platformtest.New(platform.Snapshot{})
	b.ActFunc = func(ctx context.Context, loc *platform.Locator, kind platform.ActionKind, p platform.Payload) (platform.Outcome, error) {
		return platform.Outcome{Extracted: map[string]string{"rating": "4.5"}}, nil
	}
	vision := &fakeVision{fields: map[string]string{"rating": "4.6"}}
	r := New(platform.Backends{workflow.PlatformBrowser: b}, vision, 0)
	goal := browserGoal(workflow.GoalExtract)
	goal.ExtractionSchema = map[string]workflow.ExtractionField{"rating": {Description: "stars"}}

	out, err := r.Perform(context.Background(), goal, workflow.Strategy{Name: "page", Mechanism: workflow.Extract{Source: workflow.ExtractBackend}})
	if err != nil || out.Extracted["rating"] != "4.5" {
		t.Fatalf("backend extract = %+v, %v", out, err)
	}
	if acts := b.Acts(); acts[0].Payload.Fields[0] != "rating" {
		t.Errorf("expected schema fields in payload, got %+v", acts[0].Payload)
	}

	out, err = r.Perform(context.Background(), goal, workflow.Strategy{Name: "vision", Mechanism: workflow.Extract{Source: workflow.ExtractVision}})
	if err != nil || out.Extracted["rating"] != "4.6" {
		t.Fatalf("vision extract = %+v, %v", out, err)
	}
}

func TestPerformMissingBackend(t *testing.T) {
	r := New(platform.Backends{}, nil, 0)
	s := workflow.Strategy{Name: "n", Mechanism: workflow.Navigate{URL: "https://x"}}
	if _, err := r.Perform(context.Background(), browserGoal(workflow.GoalNavigate), s); !errors.Is(err, platform.ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}
}

func TestPropose(t *testing.T) {
	r := New(nil, nil, 0)
	goal := browserGoal(workflow.GoalWrite)
	a := r.Propose(goal, workflow.Strategy{Mechanism: workflow.Role{Role: "textbox", Input: workflow.StringPtr("hello")}})
	if a.Kind != platform.ActType || a.Text != "hello" || a.App != "Chrome" {
		t.Errorf("unexpected proposal %+v", a)
	}
	a = r.Propose(goal, workflow.Strategy{Mechanism: workflow.Launch{App: "Terminal", ActivateOnly: true}})
	if a.Kind != platform.ActActivate || a.App != "Terminal" {
		t.Errorf("unexpected proposal %+v", a)
	}
}

func TestPerformAgent(t *testing.T) {
	b := platformtest.New(platform.Snapshot{})
	r := New(platform.Backends{workflow.PlatformBrowser: b}, nil, 0)
	x, y := 3, 4
	if _, err := r.PerformAgent(context.Background(), browserGoal(workflow.GoalSelect), capability.Action{Kind: capability.ActionClick, X: &x, Y: &y}); err != nil {
		t.Fatalf("PerformAgent: %v", err)
	}
	if _, err := r.PerformAgent(context.Background(), browserGoal(workflow.GoalSelect), capability.Action{Kind: capability.ActionNone}); err == nil {
		t.Error("expected error for an empty agent action")
	}
}
