package workflow

import (
	"fmt"
	"strings"
)

// allowedKinds lists the mechanisms that make sense for each goal type.
var allowedKinds = map[GoalType][]Kind{
	GoalNavigate: {KindNavigate, KindFocused, KindSelector, KindText, KindRole, KindVisual, KindCoordinates},
	GoalWrite:    {KindSelector, KindText, KindRole, KindVisual, KindCoordinates, KindFocused},
	GoalSelect:   {KindSelector, KindText, KindRole, KindVisual, KindCoordinates},
	GoalExtract:  {KindExtract},
	GoalLaunch:   {KindLaunch},
	GoalShortcut: {KindShortcut},
	GoalSave:     {KindShortcut, KindSelector, KindText, KindRole, KindVisual, KindCoordinates},
	GoalScroll:   {KindScroll},
}

func kindAllowed(t GoalType, k Kind) bool {
	for _, a := range allowedKinds[t] {
		if a == k {
			return true
		}
	}
	return false
}

// Validate checks the structural invariants of a workflow: ids, ordering,
// goal types, per-type strategy mechanisms, extraction schemas and
// placeholder coverage.
func (w *Workflow) Validate() error {
	var errs []string

	if w.ID == "" {
		errs = append(errs, "workflow id is required")
	}
	if len(w.Steps) == 0 {
		errs = append(errs, "at least one goal is required")
	}

	ids := make(map[string]bool)
	prev := 0
	for i, g := range w.Steps {
		where := fmt.Sprintf("goal %d (%s)", i+1, g.ID)
		if g.ID == "" {
			errs = append(errs, fmt.Sprintf("goal %d: id is required", i+1))
		} else if ids[g.ID] {
			errs = append(errs, fmt.Sprintf("%s: duplicate goal id", where))
		}
		ids[g.ID] = true

		if g.Sequence < 1 {
			errs = append(errs, fmt.Sprintf("%s: sequence must be 1-based, got %d", where, g.Sequence))
		} else if g.Sequence <= prev {
			errs = append(errs, fmt.Sprintf("%s: sequence %d does not follow %d", where, g.Sequence, prev))
		}
		prev = g.Sequence

		if !g.Type.Valid() {
			errs = append(errs, fmt.Sprintf("%s: unknown goal_type %q", where, g.Type))
		}
		if !g.Platform.Valid() {
			errs = append(errs, fmt.Sprintf("%s: unknown platform %q", where, g.Platform))
		}
		if len(g.Strategies) == 0 && !g.FallbackToAgent {
			errs = append(errs, fmt.Sprintf("%s: no strategies and agent fallback disabled", where))
		}

		names := make(map[string]bool)
		for j, s := range g.Strategies {
			if s.Name == "" {
				errs = append(errs, fmt.Sprintf("%s: strategy %d has no name", where, j+1))
			} else if names[s.Name] {
				errs = append(errs, fmt.Sprintf("%s: duplicate strategy %q", where, s.Name))
			}
			names[s.Name] = true
			if s.Mechanism == nil {
				errs = append(errs, fmt.Sprintf("%s: strategy %q has no mechanism", where, s.Name))
				continue
			}
			if g.Type.Valid() && !kindAllowed(g.Type, s.Kind()) {
				errs = append(errs, fmt.Sprintf("%s: %s strategy %q not valid for %s goals", where, s.Kind(), s.Name, g.Type))
			}
			input, _ := InputOf(s.Mechanism)
			if g.Type == GoalWrite && input == nil {
				errs = append(errs, fmt.Sprintf("%s: write strategy %q has no input_value", where, s.Name))
			}
			if g.Type == GoalSelect && input != nil {
				errs = append(errs, fmt.Sprintf("%s: select strategy %q must not type", where, s.Name))
			}
			if j > 0 && s.Priority > g.Strategies[j-1].Priority {
				errs = append(errs, fmt.Sprintf("%s: strategy %q out of priority order", where, s.Name))
			}
		}

		if g.Type == GoalExtract && len(g.ExtractionSchema) == 0 {
			errs = append(errs, fmt.Sprintf("%s: extract goal requires an extraction schema", where))
		}
		if g.Type != GoalExtract && len(g.ExtractionSchema) > 0 {
			errs = append(errs, fmt.Sprintf("%s: extraction schema only applies to extract goals", where))
		}
	}

	for _, g := range w.Steps {
		runtime := w.RuntimeBindings(g.Sequence)
		for _, name := range g.Placeholders() {
			if _, declared := w.Parameters[name]; !declared && !runtime[name] {
				errs = append(errs, fmt.Sprintf("goal %s: placeholder {{%s}} is not a declared parameter", g.ID, name))
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation errors:\n  %s", strings.Join(errs, "\n  "))
	}
	return nil
}
