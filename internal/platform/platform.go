// Package platform defines the contract with browser and desktop
// automation backends.
package platform

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vinayprograms/goalflow/internal/workflow"
)

var (
	// ErrNotFound means a target could not be located on the surface.
	ErrNotFound = errors.New("element not found")
	// ErrUnavailable means the backend could not be reached.
	ErrUnavailable = errors.New("backend unavailable")
)

// Point is a screen coordinate.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Target describes what to locate. Only the fields for Kind are set.
type Target struct {
	Kind        workflow.Kind `json:"kind"`
	Selector    string        `json:"selector,omitempty"`
	Text        string        `json:"text,omitempty"`
	Role        string        `json:"role,omitempty"`
	Name        string        `json:"name,omitempty"`
	Description string        `json:"description,omitempty"`
	Point       *Point        `json:"point,omitempty"`
}

func (t Target) String() string {
	switch t.Kind {
	case workflow.KindSelector:
		return t.Selector
	case workflow.KindText:
		return fmt.Sprintf("text %q", t.Text)
	case workflow.KindRole:
		return fmt.Sprintf("%s %q", t.Role, t.Name)
	case workflow.KindVisual:
		return t.Description
	case workflow.KindCoordinates:
		if t.Point != nil {
			return fmt.Sprintf("(%d, %d)", t.Point.X, t.Point.Y)
		}
	}
	return string(t.Kind)
}

// Locator is a backend handle to a resolved element.
type Locator struct {
	Handle string `json:"handle,omitempty"`
	Point  *Point `json:"point,omitempty"`
}

// ActionKind is the verb sent to Act.
type ActionKind string

const (
	ActClick        ActionKind = "click"
	ActType         ActionKind = "type"
	ActKey          ActionKind = "key"
	ActNavigate     ActionKind = "navigate"
	ActLaunch       ActionKind = "launch"
	ActActivate     ActionKind = "activate"
	ActScroll       ActionKind = "scroll"
	ActSetClipboard ActionKind = "set_clipboard"
	ActExtract      ActionKind = "extract"
)

// Payload carries the arguments of an action.
type Payload struct {
	Text      string   `json:"text,omitempty"`
	Submit    bool     `json:"submit,omitempty"`
	Keys      string   `json:"keys,omitempty"`
	URL       string   `json:"url,omitempty"`
	App       string   `json:"app,omitempty"`
	Direction string   `json:"direction,omitempty"`
	Amount    int      `json:"amount,omitempty"`
	Fields    []string `json:"fields,omitempty"`
}

// Outcome is what a backend reports after acting.
type Outcome struct {
	Detail    string            `json:"detail,omitempty"`
	Extracted map[string]string `json:"extracted,omitempty"`
}

// ElementInfo is one element visible in a snapshot.
type ElementInfo struct {
	Selector string `json:"selector,omitempty"`
	Text     string `json:"text,omitempty"`
	Role     string `json:"role,omitempty"`
	Name     string `json:"name,omitempty"`
	Point    *Point `json:"point,omitempty"`
}

// Snapshot is the observed state of a surface.
type Snapshot struct {
	URL         string        `json:"url,omitempty"`
	App         string        `json:"app,omitempty"`
	Title       string        `json:"title,omitempty"`
	VisibleText string        `json:"visible_text,omitempty"`
	Elements    []ElementInfo `json:"elements,omitempty"`
	Errors      []string      `json:"errors,omitempty"`
	Screenshot  []byte        `json:"screenshot,omitempty"`
	TakenAt     time.Time     `json:"taken_at"`
}

// HasElement reports whether an element matching target is visible. The
// target matches a selector exactly, or an element's text or name, or the
// page text.
func (s Snapshot) HasElement(target string) bool {
	if target == "" {
		return false
	}
	lower := strings.ToLower(target)
	for _, e := range s.Elements {
		if e.Selector == target || strings.EqualFold(e.Name, target) ||
			(e.Text != "" && strings.Contains(strings.ToLower(e.Text), lower)) {
			return true
		}
	}
	return strings.Contains(strings.ToLower(s.VisibleText), lower)
}

// Backend is an automation surface.
type Backend interface {
	Resolve(ctx context.Context, target Target) (Locator, error)
	// Act performs kind. A nil locator acts on the focused element or
	// globally, depending on kind.
	Act(ctx context.Context, loc *Locator, kind ActionKind, payload Payload) (Outcome, error)
	Observe(ctx context.Context) (Snapshot, error)
}

// Backends maps each platform to its backend.
type Backends map[workflow.Platform]Backend

// Get returns the backend for p.
func (b Backends) Get(p workflow.Platform) (Backend, error) {
	backend, ok := b[p]
	if !ok || backend == nil {
		return nil, fmt.Errorf("%w: no %s backend configured", ErrUnavailable, p)
	}
	return backend, nil
}
