package compiler

import (
	"strings"

	"github.com/vinayprograms/goalflow/internal/workflow"
)

// consolidate drops goals that repeat the one before them: a second launch
// of the app already in front, a second navigation to the same URL, or a
// repeated paste. The kept goal inherits the dropped goal's source steps.
func consolidate(drafts []draft) []workflow.GoalStep {
	var out []workflow.GoalStep
	for _, d := range drafts {
		g := d.goal
		if n := len(out); n > 0 && redundant(out[n-1], g) {
			out[n-1].SourceSteps = append(out[n-1].SourceSteps, g.SourceSteps...)
			continue
		}
		out = append(out, g)
	}
	return out
}

func redundant(prev, g workflow.GoalStep) bool {
	switch g.Type {
	case workflow.GoalLaunch:
		return g.App != "" && strings.EqualFold(prev.App, g.App)
	case workflow.GoalNavigate:
		return prev.Type == workflow.GoalNavigate && navigateURL(prev) == navigateURL(g)
	case workflow.GoalShortcut:
		return prev.Type == workflow.GoalShortcut && isPaste(prev) && isPaste(g) &&
			samePaste(shortcutOf(prev), shortcutOf(g))
	}
	return false
}

func isPaste(g workflow.GoalStep) bool {
	s, ok := firstMechanism(g).(workflow.Shortcut)
	return ok && s.Clipboard != nil
}

func samePaste(a, b workflow.Shortcut) bool {
	return a.Keys == b.Keys && *a.Clipboard == *b.Clipboard
}

func shortcutOf(g workflow.GoalStep) workflow.Shortcut {
	s, _ := firstMechanism(g).(workflow.Shortcut)
	return s
}

func firstMechanism(g workflow.GoalStep) workflow.Mechanism {
	if len(g.Strategies) == 0 {
		return nil
	}
	return g.Strategies[0].Mechanism
}
