// Package capability declares the model-backed collaborators the compiler
// and executor depend on. Implementations live elsewhere; tests use doubles.
package capability

import (
	"context"
	"errors"

	"github.com/vinayprograms/goalflow/internal/platform"
	"github.com/vinayprograms/goalflow/internal/trace"
	"github.com/vinayprograms/goalflow/internal/workflow"
)

// ErrUnavailable means the collaborator cannot answer at all.
var ErrUnavailable = errors.New("capability unavailable")

// StepContext is what a classifier sees for one step.
type StepContext struct {
	Index    int
	Step     trace.Step
	Steps    []trace.Step
	TaskGoal string
}

// IntentLabel is a classified step.
type IntentLabel struct {
	Category  string `json:"category"`
	Rationale string `json:"rationale"`
}

// Classifier labels interpreted steps with an intent category.
type Classifier interface {
	ClassifyIntent(ctx context.Context, sc StepContext) (IntentLabel, error)
}

// Vision reads the screen.
type Vision interface {
	// LocateElement returns nil when nothing matches description.
	LocateElement(ctx context.Context, snap platform.Snapshot, description string) (*platform.Point, error)
	ExtractFields(ctx context.Context, snap platform.Snapshot, schema map[string]workflow.ExtractionField) (map[string]string, error)
}

// Enricher adds vision-derived detail to goals at compile time.
type Enricher interface {
	DescribeTarget(ctx context.Context, step trace.Step) (string, error)
	ProposeSchema(ctx context.Context, step trace.Step, hints []string) (map[string]workflow.ExtractionField, error)
}

// TemplateRequest is text typed after an extraction, with the field names
// the extraction binds.
type TemplateRequest struct {
	Typed    string
	Fields   []string
	TaskGoal string
}

// Templater rewrites typed text into a template whose {{field}} references
// stand for extracted values. An empty template means the text is static.
type Templater interface {
	DetectTemplate(ctx context.Context, req TemplateRequest) (string, error)
}

// ActionKind is the verb an agent chose.
type ActionKind string

const (
	ActionClick    ActionKind = "click"
	ActionType     ActionKind = "type"
	ActionKey      ActionKind = "key"
	ActionScroll   ActionKind = "scroll"
	ActionNavigate ActionKind = "navigate"
	ActionLaunch   ActionKind = "launch"
	ActionNone     ActionKind = "none"
)

// Action is one best-effort step proposed by an agent.
type Action struct {
	Kind      ActionKind `json:"action"`
	X         *int       `json:"x,omitempty"`
	Y         *int       `json:"y,omitempty"`
	Text      string     `json:"text,omitempty"`
	Keys      string     `json:"keys,omitempty"`
	URL       string     `json:"url,omitempty"`
	App       string     `json:"app,omitempty"`
	Direction string     `json:"direction,omitempty"`
	Amount    int        `json:"amount,omitempty"`
	Reasoning string     `json:"reasoning,omitempty"`
}

// Agent acts on the user's behalf from a screenshot and a goal.
type Agent interface {
	ActAsAgent(ctx context.Context, snap platform.Snapshot, goalPrompt string) (Action, error)
}
