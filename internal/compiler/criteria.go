package compiler

import (
	"github.com/vinayprograms/goalflow/internal/trace"
	"github.com/vinayprograms/goalflow/internal/workflow"
)

// assignCriteria sets the default success criteria for every goal.
func assignCriteria(drafts []draft, voice *trace.VoiceContext) {
	exact := voice != nil && voice.ExactFields
	for i := range drafts {
		drafts[i].goal.Criteria = defaultCriteria(drafts[i].goal, drafts[i].src.step, exact)
	}
}

func defaultCriteria(g workflow.GoalStep, s trace.Step, exactFields bool) workflow.SuccessCriteria {
	var c workflow.SuccessCriteria
	switch g.Type {
	case workflow.GoalNavigate:
		if target := navigateURL(g); target != "" {
			c.URLContains = workflow.StringPtr(targetHost(target))
		} else {
			c.URLChanged = true
		}
	case workflow.GoalSelect:
		switch {
		case s.Navigated():
			c.URLChanged = true
		case revealedKey(s) != "":
			c.ElementVisible = workflow.StringPtr(revealedKey(s))
		default:
			c.TimeoutSuccess = true
		}
	case workflow.GoalWrite:
		switch {
		case s.Submitted && s.Navigated():
			c.URLChanged = true
		case revealedKey(s) != "":
			c.ElementVisible = workflow.StringPtr(revealedKey(s))
		default:
			c.TimeoutSuccess = true
		}
	case workflow.GoalExtract:
		n := 1
		if exactFields && len(g.ExtractionSchema) > 0 {
			n = len(g.ExtractionSchema)
		}
		c.MinExtractedCount = workflow.IntPtr(n)
	case workflow.GoalLaunch:
		c.AppActive = workflow.StringPtr(g.App)
	default:
		c.TimeoutSuccess = true
	}
	return c
}

func navigateURL(g workflow.GoalStep) string {
	for _, s := range g.Strategies {
		if n, ok := s.Mechanism.(workflow.Navigate); ok {
			return n.URL
		}
	}
	return ""
}

// revealedKey names the element that appeared after the step, in the form
// the evaluator matches against a snapshot.
func revealedKey(s trace.Step) string {
	r := s.Revealed
	if r == nil {
		return ""
	}
	for _, v := range []string{r.Selector, r.Text, r.Name} {
		if v != "" {
			return v
		}
	}
	return ""
}
