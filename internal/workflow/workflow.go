// Package workflow defines the goal-oriented workflow model produced by the
// compiler and consumed by the executor.
package workflow

import (
	"sort"
)

// FormatVersion is written into every serialized workflow document.
const FormatVersion = "2"

// GoalType is the closed set of goal kinds.
type GoalType string

const (
	GoalNavigate GoalType = "navigate"
	GoalWrite    GoalType = "write"
	GoalSelect   GoalType = "select"
	GoalExtract  GoalType = "extract"
	GoalLaunch   GoalType = "launch"
	GoalShortcut GoalType = "shortcut"
	GoalSave     GoalType = "save"
	GoalScroll   GoalType = "scroll"
)

// GoalTypes lists every valid goal type.
var GoalTypes = []GoalType{
	GoalNavigate, GoalWrite, GoalSelect, GoalExtract,
	GoalLaunch, GoalShortcut, GoalSave, GoalScroll,
}

// Valid reports whether t is one of the known goal types.
func (t GoalType) Valid() bool {
	for _, g := range GoalTypes {
		if g == t {
			return true
		}
	}
	return false
}

// Platform is the surface a goal runs against.
type Platform string

const (
	PlatformBrowser Platform = "browser"
	PlatformDesktop Platform = "desktop"
)

// Valid reports whether p is a known platform.
func (p Platform) Valid() bool {
	return p == PlatformBrowser || p == PlatformDesktop
}

// ExtractedContentBinding is the reserved binding that accumulates data
// produced by extract goals during a run.
const ExtractedContentBinding = "extracted_content"

// Workflow is an ordered list of goals plus the parameters they reference.
// A Workflow is built once and treated as read-only afterwards.
type Workflow struct {
	ID             string            `json:"id" yaml:"id"`
	Version        string            `json:"version" yaml:"version"`
	Name           string            `json:"name" yaml:"name"`
	Description    string            `json:"description,omitempty" yaml:"description,omitempty"`
	SourceSession  string            `json:"source_session,omitempty" yaml:"source_session,omitempty"`
	Parameters     map[string]string `json:"parameters" yaml:"parameters"`
	Steps          []GoalStep        `json:"steps" yaml:"steps"`
	VoiceAnalyzed  bool              `json:"voice_analyzed" yaml:"voice_analyzed"`
	VisionEnriched bool              `json:"vision_enriched" yaml:"vision_enriched"`
}

// GoalStep is one unit of intended effect.
type GoalStep struct {
	ID               string                     `json:"id" yaml:"id"`
	Sequence         int                        `json:"sequence" yaml:"sequence"`
	Type             GoalType                   `json:"goal_type" yaml:"goal_type"`
	Platform         Platform                   `json:"platform" yaml:"platform"`
	App              string                     `json:"app,omitempty" yaml:"app,omitempty"`
	Description      string                     `json:"description" yaml:"description"`
	Strategies       []Strategy                 `json:"strategies" yaml:"strategies"`
	Criteria         SuccessCriteria            `json:"success_criteria" yaml:"success_criteria"`
	ExtractionSchema map[string]ExtractionField `json:"extraction_schema,omitempty" yaml:"extraction_schema,omitempty"`
	FallbackToAgent  bool                       `json:"fallback_to_agent" yaml:"fallback_to_agent"`
	AgentPrompt      *string                    `json:"agent_prompt,omitempty" yaml:"agent_prompt,omitempty"`
	SourceSteps      []string                   `json:"source_steps,omitempty" yaml:"source_steps,omitempty"`
}

// ExtractionField describes one field an extract goal must produce.
type ExtractionField struct {
	Description string  `json:"description" yaml:"description"`
	VisualHint  *string `json:"visual_hint,omitempty" yaml:"visual_hint,omitempty"`
	Example     *string `json:"example,omitempty" yaml:"example,omitempty"`
}

// OrderedStrategies returns the goal's strategies by descending priority.
// Equal priorities keep declaration order.
func (g GoalStep) OrderedStrategies() []Strategy {
	out := make([]Strategy, len(g.Strategies))
	copy(out, g.Strategies)
	SortStrategies(out)
	return out
}

// Prompt returns the natural-language instruction used for agent fallback.
func (g GoalStep) Prompt() string {
	if g.AgentPrompt != nil && *g.AgentPrompt != "" {
		return *g.AgentPrompt
	}
	return g.Description
}

// SchemaFields returns the extraction schema field names in sorted order.
func (g GoalStep) SchemaFields() []string {
	names := make([]string, 0, len(g.ExtractionSchema))
	for name := range g.ExtractionSchema {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SortStrategies orders strategies in place by descending priority,
// preserving declaration order among equal priorities.
func SortStrategies(s []Strategy) {
	sort.SliceStable(s, func(i, j int) bool {
		return s[i].Priority > s[j].Priority
	})
}

// Goal returns the goal with the given id.
func (w *Workflow) Goal(id string) (GoalStep, bool) {
	for _, g := range w.Steps {
		if g.ID == id {
			return g, true
		}
	}
	return GoalStep{}, false
}

// ParameterNames returns the declared parameter names in sorted order.
func (w *Workflow) ParameterNames() []string {
	names := make([]string, 0, len(w.Parameters))
	for name := range w.Parameters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// StringPtr returns a pointer to s.
func StringPtr(s string) *string { return &s }

// IntPtr returns a pointer to n.
func IntPtr(n int) *int { return &n }
