// Package resolver turns one strategy into concrete backend calls.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vinayprograms/agentkit/logging"

	"github.com/vinayprograms/goalflow/internal/capability"
	"github.com/vinayprograms/goalflow/internal/platform"
	"github.com/vinayprograms/goalflow/internal/safety"
	"github.com/vinayprograms/goalflow/internal/workflow"
)

// ErrNoVision is returned for vision strategies when no vision
// collaborator is configured.
var ErrNoVision = fmt.Errorf("%w: no vision collaborator configured", capability.ErrUnavailable)

// Outcome is what performing a strategy produced.
type Outcome struct {
	Detail    string
	Extracted map[string]string
}

// Resolver performs strategies against platform backends.
type Resolver struct {
	backends    platform.Backends
	vision      capability.Vision
	callTimeout time.Duration
	logger      *logging.Logger
}

// New creates a resolver. vision may be nil.
func New(backends platform.Backends, vision capability.Vision, callTimeout time.Duration) *Resolver {
	return &Resolver{
		backends:    backends,
		vision:      vision,
		callTimeout: callTimeout,
		logger:      logging.New().WithComponent("resolver"),
	}
}

// Propose describes the action a strategy would take, for the safety gate.
// s must already have its placeholders substituted.
func (r *Resolver) Propose(goal workflow.GoalStep, s workflow.Strategy) safety.Action {
	a := safety.Action{Platform: goal.Platform, App: goal.App, Goal: goal.Description}
	switch m := s.Mechanism.(type) {
	case workflow.Shortcut:
		a.Kind, a.Keys = platform.ActKey, m.Keys
		if m.Clipboard != nil {
			a.Text = *m.Clipboard
		}
	case workflow.Navigate:
		a.Kind, a.URL = platform.ActNavigate, m.URL
	case workflow.Launch:
		a.Kind, a.App = platform.ActLaunch, m.App
		if m.ActivateOnly {
			a.Kind = platform.ActActivate
		}
	case workflow.Scroll:
		a.Kind = platform.ActScroll
	case workflow.Extract:
		a.Kind = platform.ActExtract
	default:
		a.Kind = platform.ActClick
		if t, ok := targetOf(s.Mechanism); ok {
			a.Target = t.String()
		}
		if input, _ := workflow.InputOf(s.Mechanism); input != nil {
			a.Kind, a.Text = platform.ActType, *input
		}
	}
	return a
}

// ProposeAgent describes an agent-chosen action for the safety gate.
func ProposeAgent(goal workflow.GoalStep, act capability.Action) safety.Action {
	a := safety.Action{
		Platform: goal.Platform, App: goal.App, Goal: goal.Description,
		Text: act.Text, Keys: act.Keys, URL: act.URL,
	}
	switch act.Kind {
	case capability.ActionType:
		a.Kind = platform.ActType
	case capability.ActionKey:
		a.Kind = platform.ActKey
	case capability.ActionScroll:
		a.Kind = platform.ActScroll
	case capability.ActionNavigate:
		a.Kind = platform.ActNavigate
	case capability.ActionLaunch:
		a.Kind, a.App = platform.ActLaunch, act.App
	default:
		a.Kind = platform.ActClick
	}
	return a
}

// Perform executes one strategy. s must already be substituted. Errors wrap
// platform.ErrNotFound or platform.ErrUnavailable where applicable.
func (r *Resolver) Perform(ctx context.Context, goal workflow.GoalStep, s workflow.Strategy) (Outcome, error) {
	backend, err := r.backends.Get(goal.Platform)
	if err != nil {
		return Outcome{}, err
	}

	switch m := s.Mechanism.(type) {
	case workflow.Focused:
		return r.act(ctx, backend, nil, platform.ActType, platform.Payload{Text: m.Input, Submit: m.Submit})
	case workflow.Shortcut:
		if m.Clipboard != nil {
			if _, err := r.act(ctx, backend, nil, platform.ActSetClipboard, platform.Payload{Text: *m.Clipboard}); err != nil {
				return Outcome{}, fmt.Errorf("set clipboard: %w", err)
			}
		}
		return r.act(ctx, backend, nil, platform.ActKey, platform.Payload{Keys: m.Keys})
	case workflow.Navigate:
		return r.act(ctx, backend, nil, platform.ActNavigate, platform.Payload{URL: m.URL})
	case workflow.Launch:
		kind := platform.ActLaunch
		if m.ActivateOnly {
			kind = platform.ActActivate
		}
		return r.act(ctx, backend, nil, kind, platform.Payload{App: m.App})
	case workflow.Scroll:
		return r.act(ctx, backend, nil, platform.ActScroll, platform.Payload{Direction: m.Direction, Amount: m.Amount})
	case workflow.Extract:
		return r.extract(ctx, backend, goal, m.Source)
	case nil:
		return Outcome{}, fmt.Errorf("strategy %q has no mechanism", s.Name)
	}

	target, ok := targetOf(s.Mechanism)
	if !ok {
		return Outcome{}, fmt.Errorf("strategy %q: unsupported mechanism %s", s.Name, s.Kind())
	}
	loc, err := r.locate(ctx, backend, target)
	if err != nil {
		return Outcome{}, fmt.Errorf("locate %s: %w", target, err)
	}
	input, submit := workflow.InputOf(s.Mechanism)
	if input == nil {
		return r.act(ctx, backend, &loc, platform.ActClick, platform.Payload{})
	}
	return r.act(ctx, backend, &loc, platform.ActType, platform.Payload{Text: *input, Submit: submit})
}

// PerformAgent executes a single agent-chosen action.
func (r *Resolver) PerformAgent(ctx context.Context, goal workflow.GoalStep, act capability.Action) (Outcome, error) {
	backend, err := r.backends.Get(goal.Platform)
	if err != nil {
		return Outcome{}, err
	}
	var loc *platform.Locator
	if act.X != nil && act.Y != nil {
		loc = &platform.Locator{Point: &platform.Point{X: *act.X, Y: *act.Y}}
	}
	switch act.Kind {
	case capability.ActionClick:
		if loc == nil {
			return Outcome{}, errors.New("agent click without coordinates")
		}
		return r.act(ctx, backend, loc, platform.ActClick, platform.Payload{})
	case capability.ActionType:
		return r.act(ctx, backend, loc, platform.ActType, platform.Payload{Text: act.Text})
	case capability.ActionKey:
		return r.act(ctx, backend, nil, platform.ActKey, platform.Payload{Keys: act.Keys})
	case capability.ActionScroll:
		return r.act(ctx, backend, nil, platform.ActScroll, platform.Payload{Direction: act.Direction, Amount: act.Amount})
	case capability.ActionNavigate:
		return r.act(ctx, backend, nil, platform.ActNavigate, platform.Payload{URL: act.URL})
	case capability.ActionLaunch:
		return r.act(ctx, backend, nil, platform.ActLaunch, platform.Payload{App: act.App})
	}
	return Outcome{}, fmt.Errorf("agent proposed no usable action (%q)", act.Kind)
}

func targetOf(m workflow.Mechanism) (platform.Target, bool) {
	switch v := m.(type) {
	case workflow.Selector:
		return platform.Target{Kind: workflow.KindSelector, Selector: v.CSS}, true
	case workflow.TextMatch:
		return platform.Target{Kind: workflow.KindText, Text: v.Text}, true
	case workflow.Role:
		t := platform.Target{Kind: workflow.KindRole, Role: v.Role}
		if v.Name != nil {
			t.Name = *v.Name
		}
		return t, true
	case workflow.Visual:
		return platform.Target{Kind: workflow.KindVisual, Description: v.Description}, true
	case workflow.Coordinates:
		return platform.Target{Kind: workflow.KindCoordinates, Point: &platform.Point{X: v.X, Y: v.Y}}, true
	}
	return platform.Target{}, false
}

func (r *Resolver) locate(ctx context.Context, backend platform.Backend, target platform.Target) (platform.Locator, error) {
	switch target.Kind {
	case workflow.KindCoordinates:
		return platform.Locator{Point: target.Point}, nil
	case workflow.KindVisual:
		if r.vision == nil {
			return platform.Locator{}, ErrNoVision
		}
		snap, err := r.observe(ctx, backend)
		if err != nil {
			return platform.Locator{}, err
		}
		callCtx, cancel := r.withTimeout(ctx)
		defer cancel()
		pt, err := r.vision.LocateElement(callCtx, snap, target.Description)
		if err != nil {
			return platform.Locator{}, fmt.Errorf("vision: %w", err)
		}
		if pt == nil {
			return platform.Locator{}, platform.ErrNotFound
		}
		return platform.Locator{Point: pt}, nil
	}
	callCtx, cancel := r.withTimeout(ctx)
	defer cancel()
	return backend.Resolve(callCtx, target)
}

func (r *Resolver) extract(ctx context.Context, backend platform.Backend, goal workflow.GoalStep, src workflow.ExtractSource) (Outcome, error) {
	if src == workflow.ExtractBackend {
		return r.act(ctx, backend, nil, platform.ActExtract, platform.Payload{Fields: goal.SchemaFields()})
	}
	if r.vision == nil {
		return Outcome{}, ErrNoVision
	}
	snap, err := r.observe(ctx, backend)
	if err != nil {
		return Outcome{}, err
	}
	callCtx, cancel := r.withTimeout(ctx)
	defer cancel()
	fields, err := r.vision.ExtractFields(callCtx, snap, goal.ExtractionSchema)
	if err != nil {
		return Outcome{}, fmt.Errorf("vision extract: %w", err)
	}
	r.logger.Debug("extracted fields", map[string]interface{}{"goal": goal.ID, "fields": len(fields)})
	return Outcome{Detail: "vision extract", Extracted: fields}, nil
}

func (r *Resolver) act(ctx context.Context, backend platform.Backend, loc *platform.Locator, kind platform.ActionKind, payload platform.Payload) (Outcome, error) {
	callCtx, cancel := r.withTimeout(ctx)
	defer cancel()
	out, err := backend.Act(callCtx, loc, kind, payload)
	if err != nil {
		return Outcome{}, fmt.Errorf("%s: %w", kind, err)
	}
	return Outcome{Detail: out.Detail, Extracted: out.Extracted}, nil
}

func (r *Resolver) observe(ctx context.Context, backend platform.Backend) (platform.Snapshot, error) {
	callCtx, cancel := r.withTimeout(ctx)
	defer cancel()
	snap, err := backend.Observe(callCtx)
	if err != nil {
		return snap, fmt.Errorf("observe: %w", err)
	}
	return snap, nil
}

func (r *Resolver) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.callTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.callTimeout)
}
