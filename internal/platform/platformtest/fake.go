// Package platformtest provides a recording in-memory Backend for tests.
package platformtest

import (
	"context"
	"sync"
	"time"

	"github.com/vinayprograms/goalflow/internal/platform"
)

// Call records one backend invocation.
type Call struct {
	Op      string
	Target  platform.Target
	Locator *platform.Locator
	Kind    platform.ActionKind
	Payload platform.Payload
}

// Backend is a scriptable platform.Backend. With no funcs set, Resolve
// succeeds, Act succeeds and Observe returns State.
type Backend struct {
	mu    sync.Mutex
	calls []Call
	state platform.Snapshot

	ResolveFunc func(ctx context.Context, t platform.Target) (platform.Locator, error)
	ActFunc     func(ctx context.Context, loc *platform.Locator, kind platform.ActionKind, p platform.Payload) (platform.Outcome, error)
	ObserveFunc func(ctx context.Context) (platform.Snapshot, error)
}

// New creates a fake backend showing state.
func New(state platform.Snapshot) *Backend {
	return &Backend{state: state}
}

// SetState replaces the snapshot returned by Observe.
func (b *Backend) SetState(s platform.Snapshot) {
	b.mu.Lock()
	b.state = s
	b.mu.Unlock()
}

// Resolve records the call.
func (b *Backend) Resolve(ctx context.Context, t platform.Target) (platform.Locator, error) {
	b.record(Call{Op: "resolve", Target: t})
	if b.ResolveFunc != nil {
		return b.ResolveFunc(ctx, t)
	}
	return platform.Locator{Handle: t.String()}, nil
}

// Act records the call.
func (b *Backend) Act(ctx context.Context, loc *platform.Locator, kind platform.ActionKind, p platform.Payload) (platform.Outcome, error) {
	b.record(Call{Op: "act", Locator: loc, Kind: kind, Payload: p})
	if b.ActFunc != nil {
		return b.ActFunc(ctx, loc, kind, p)
	}
	return platform.Outcome{Detail: string(kind)}, nil
}

// Observe records the call.
func (b *Backend) Observe(ctx context.Context) (platform.Snapshot, error) {
	b.record(Call{Op: "observe"})
	if b.ObserveFunc != nil {
		return b.ObserveFunc(ctx)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	s := b.state
	s.TakenAt = time.Now()
	return s, nil
}

func (b *Backend) record(c Call) {
	b.mu.Lock()
	b.calls = append(b.calls, c)
	b.mu.Unlock()
}

// Calls returns every recorded call.
func (b *Backend) Calls() []Call {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Call(nil), b.calls...)
}

// Acts returns only the Act calls.
func (b *Backend) Acts() []Call {
	var out []Call
	for _, c := range b.Calls() {
		if c.Op == "act" {
			out = append(out, c)
		}
	}
	return out
}
