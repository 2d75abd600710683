package compiler

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"github.com/vinayprograms/goalflow/internal/capability"
	"github.com/vinayprograms/goalflow/internal/safety"
	"github.com/vinayprograms/goalflow/internal/trace"
	"github.com/vinayprograms/goalflow/internal/workflow"
)

// Intent categories assigned during sequence analysis.
const (
	IntentSearch     = "search"
	IntentType       = "type"
	IntentClick      = "click"
	IntentFollowLink = "follow_link"
	IntentFocus      = "focus"
	IntentCopy       = "copy"
	IntentRead       = "read"
	IntentAppSwitch  = "app_switch"
	IntentKeyCombo   = "key_combo"
	IntentSave       = "save"
	IntentScroll     = "scroll"
	IntentURLEntry   = "url_entry"
	IntentNoop       = "noop"
)

// intentGoalTypes is the fixed intent to goal type mapping. A focus that
// was not merged into a write is kept as a click.
var intentGoalTypes = map[string]workflow.GoalType{
	IntentSearch:     workflow.GoalWrite,
	IntentType:       workflow.GoalWrite,
	IntentClick:      workflow.GoalSelect,
	IntentFollowLink: workflow.GoalSelect,
	IntentFocus:      workflow.GoalSelect,
	IntentCopy:       workflow.GoalExtract,
	IntentRead:       workflow.GoalExtract,
	IntentAppSwitch:  workflow.GoalLaunch,
	IntentKeyCombo:   workflow.GoalShortcut,
	IntentSave:       workflow.GoalSave,
	IntentScroll:     workflow.GoalScroll,
	IntentURLEntry:   workflow.GoalNavigate,
}

// interpreterIntents maps the interpreter's coarse labels onto categories.
var interpreterIntents = map[string]string{
	"search":   IntentSearch,
	"write":    IntentType,
	"type":     IntentType,
	"select":   IntentClick,
	"click":    IntentClick,
	"focus":    IntentFocus,
	"link":     IntentFollowLink,
	"navigate": IntentURLEntry,
	"url":      IntentURLEntry,
	"launch":   IntentAppSwitch,
	"switch":   IntentAppSwitch,
	"extract":  IntentRead,
	"read":     IntentRead,
	"copy":     IntentCopy,
	"shortcut": IntentKeyCombo,
	"paste":    IntentKeyCombo,
	"save":     IntentSave,
	"scroll":   IntentScroll,
	"idle":     IntentNoop,
	"move":     IntentNoop,
	"hover":    IntentNoop,
}

// analyzed is a step with its intent label.
type analyzed struct {
	step      trace.Step
	intent    string
	rationale string
	sources   []string
}

// analyze labels every step. The classifier is consulted first; on any
// error the step falls back to heuristics, and once the classifier reports
// itself unavailable it is not called again for this compilation.
func (c *Compiler) analyze(ctx context.Context, in Input) []analyzed {
	out := make([]analyzed, len(in.Steps))
	classifier := c.classifier
	taskGoal := ""
	if in.Voice != nil {
		taskGoal = in.Voice.TaskGoal
	}

	for i, step := range in.Steps {
		intent, rationale := heuristicIntent(in.Steps, i), "heuristic"
		if classifier != nil {
			label, err := c.classify(ctx, classifier, capability.StepContext{Index: i, Step: step, Steps: in.Steps, TaskGoal: taskGoal})
			switch {
			case errors.Is(err, capability.ErrUnavailable):
				c.logger.Warn("classifier unavailable, using heuristics", map[string]interface{}{"step": step.ID, "error": err.Error()})
				classifier = nil
			case err != nil:
				c.logger.Debug("classification failed", map[string]interface{}{"step": step.ID, "error": err.Error()})
			default:
				if cat := normalizeIntent(label.Category); cat != "" {
					intent, rationale = cat, label.Rationale
				}
			}
		}
		out[i] = analyzed{step: step, intent: intent, rationale: rationale, sources: []string{step.ID}}
	}
	return out
}

func (c *Compiler) classify(ctx context.Context, cl capability.Classifier, sc capability.StepContext) (capability.IntentLabel, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()
	return cl.ClassifyIntent(callCtx, sc)
}

// normalizeIntent accepts a category name or an interpreter label.
func normalizeIntent(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if _, ok := intentGoalTypes[s]; ok || s == IntentNoop {
		return s
	}
	return interpreterIntents[s]
}

// heuristicIntent labels a step from its recorded events.
func heuristicIntent(steps []trace.Step, i int) string {
	s := steps[i]
	for _, keys := range s.Shortcuts {
		switch {
		case isCombo(keys, "cmd+s", "ctrl+s"):
			return IntentSave
		case isCombo(keys, "cmd+c", "ctrl+c"):
			return IntentCopy
		}
	}
	if s.TypedText != "" {
		if looksLikeURL(s.TypedText) && s.Navigated() {
			return IntentURLEntry
		}
		if s.Submitted {
			return IntentSearch
		}
		return IntentType
	}
	if len(s.Shortcuts) > 0 {
		return IntentKeyCombo
	}
	if s.ScrollDelta != 0 {
		return IntentScroll
	}
	if el := s.Element(); el != nil {
		if s.Navigated() {
			return IntentFollowLink
		}
		if el.IsInput {
			return IntentFocus
		}
		return IntentClick
	}
	if s.Navigated() {
		return IntentURLEntry
	}
	if i > 0 && s.App != "" && s.App != steps[i-1].App {
		return IntentAppSwitch
	}
	if len(s.Hints) > 0 {
		return IntentRead
	}
	if label := normalizeIntent(s.Intent); label != "" {
		return label
	}
	return IntentNoop
}

func isCombo(keys string, combos ...string) bool {
	norm := safety.CanonicalKeys(keys)
	for _, c := range combos {
		if norm == safety.CanonicalKeys(c) {
			return true
		}
	}
	return false
}

func looksLikeURL(s string) bool {
	s = strings.TrimSpace(s)
	if strings.ContainsAny(s, " \t\n") {
		return false
	}
	if u, err := url.Parse(s); err == nil && u.Scheme != "" && u.Host != "" {
		return true
	}
	return strings.Contains(s, ".") && !strings.HasPrefix(s, ".") && !strings.HasSuffix(s, ".")
}
