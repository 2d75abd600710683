// Package trace holds the interpreted demonstration consumed by the goal
// compiler: segmented, intent-labeled steps plus voice-derived hints.
package trace

import (
	"encoding/json"
	"fmt"
	"os"
)

// Element is the metadata an interpreter captured about a UI element.
type Element struct {
	Selector   string `json:"selector,omitempty"`
	Text       string `json:"text,omitempty"`
	Role       string `json:"role,omitempty"`
	Name       string `json:"name,omitempty"`
	Tag        string `json:"tag,omitempty"`
	VisualHint string `json:"visual_hint,omitempty"`
	X          *int   `json:"x,omitempty"`
	Y          *int   `json:"y,omitempty"`
	IsInput    bool   `json:"is_input,omitempty"`
}

// Key identifies the element for merge decisions. Elements with no
// identifying data return "".
func (e *Element) Key() string {
	if e == nil {
		return ""
	}
	switch {
	case e.Selector != "":
		return "css:" + e.Selector
	case e.Role != "" || e.Name != "":
		return "role:" + e.Role + "|" + e.Name + "|" + e.Text
	case e.Text != "":
		return "text:" + e.Text
	case e.X != nil && e.Y != nil:
		return fmt.Sprintf("xy:%d,%d", *e.X, *e.Y)
	}
	return ""
}

// Label returns the most human-readable name for the element.
func (e *Element) Label() string {
	if e == nil {
		return ""
	}
	for _, s := range []string{e.Text, e.Name, e.VisualHint, e.Role, e.Selector} {
		if s != "" {
			return s
		}
	}
	return ""
}

// Step is one interpreted unit of user activity.
type Step struct {
	ID             string    `json:"id"`
	Number         int       `json:"number"`
	Start          float64   `json:"start"`
	End            float64   `json:"end"`
	Intent         string    `json:"intent,omitempty"`
	Confidence     float64   `json:"confidence,omitempty"`
	BoundaryReason string    `json:"boundary_reason,omitempty"`
	Platform       string    `json:"platform,omitempty"`
	App            string    `json:"app,omitempty"`
	WindowTitle    string    `json:"window_title,omitempty"`
	URLBefore      string    `json:"url_before,omitempty"`
	URLAfter       string    `json:"url_after,omitempty"`
	TypedText      string    `json:"typed_text,omitempty"`
	Submitted      bool      `json:"submitted,omitempty"`
	Target         *Element  `json:"target,omitempty"`
	Clicked        []Element `json:"clicked,omitempty"`
	Revealed       *Element  `json:"revealed,omitempty"`
	Shortcuts      []string  `json:"shortcuts,omitempty"`
	ScrollDelta    int       `json:"scroll_delta,omitempty"`
	Clipboard      string    `json:"clipboard,omitempty"`
	Transcript     string    `json:"transcript,omitempty"`
	Hints          []string  `json:"extraction_hints,omitempty"`
}

// Element returns the element the step acted on: the input target when
// known, else the first clicked element.
func (s Step) Element() *Element {
	if s.Target != nil {
		return s.Target
	}
	if len(s.Clicked) > 0 {
		return &s.Clicked[0]
	}
	return nil
}

// Navigated reports whether the step moved the browser to a new URL.
func (s Step) Navigated() bool {
	return s.URLBefore != "" && s.URLAfter != "" && s.URLBefore != s.URLAfter
}

// ParameterHint is a voice-derived hint that a value varies between runs.
type ParameterHint struct {
	Name        string `json:"name"`
	Value       string `json:"value,omitempty"`
	Description string `json:"description,omitempty"`
}

// VoiceContext is what the narration said about the task.
type VoiceContext struct {
	TaskGoal        string          `json:"task_goal,omitempty"`
	ExtractionHints []string        `json:"extraction_hints,omitempty"`
	ExactFields     bool            `json:"exact_fields,omitempty"`
	ParameterHints  []ParameterHint `json:"parameter_hints,omitempty"`
}

// ParameterCandidate is a recorded value that may become a parameter.
type ParameterCandidate struct {
	Name       string   `json:"name"`
	Value      string   `json:"value"`
	Type       string   `json:"type,omitempty"`
	Confidence float64  `json:"confidence"`
	Sources    []string `json:"source_steps,omitempty"`
}

// Trace is a full interpreted recording.
type Trace struct {
	SessionID       string               `json:"session_id,omitempty"`
	Name            string               `json:"name,omitempty"`
	Steps           []Step               `json:"steps"`
	Voice           *VoiceContext        `json:"voice,omitempty"`
	Parameters      []ParameterCandidate `json:"parameters,omitempty"`
	ExtractionHints map[string][]string  `json:"extraction_hints,omitempty"`
}

// LoadFile reads an interpreted recording from a JSON file.
func LoadFile(path string) (*Trace, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read trace: %w", err)
	}
	var t Trace
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("failed to parse trace %s: %w", path, err)
	}
	return &t, nil
}
