package compiler

import (
	"context"
	"strings"

	"github.com/vinayprograms/goalflow/internal/capability"
	"github.com/vinayprograms/goalflow/internal/workflow"
)

// minTemplateText is the shortest typed text worth templating.
const minTemplateText = 5

// summaryLabels maps common labels in typed summaries to field names.
var summaryLabels = []struct{ label, field string }{
	{"name", "name"},
	{"restaurant", "restaurant_name"},
	{"rating", "rating"},
	{"stars", "rating"},
	{"address", "address"},
	{"location", "address"},
	{"phone", "phone"},
	{"price", "price"},
	{"reviews", "num_reviews"},
}

// applyTemplates rewrites text typed after an extraction into a template
// over the extracted fields, so a replay writes what it extracted instead
// of what was recorded.
func (c *Compiler) applyTemplates(ctx context.Context, in Input, drafts []draft) {
	var fields []string
	seen := make(map[string]bool)
	for i := range drafts {
		d := &drafts[i]
		if d.goal.Type == workflow.GoalExtract {
			for _, f := range d.goal.SchemaFields() {
				if !seen[f] {
					seen[f] = true
					fields = append(fields, f)
				}
			}
			continue
		}
		typed := d.src.step.TypedText
		if d.goal.Type != workflow.GoalWrite || len(fields) == 0 || len(strings.TrimSpace(typed)) < minTemplateText {
			continue
		}
		tmpl := c.detectTemplate(ctx, in, typed, fields)
		if tmpl == "" || tmpl == typed {
			continue
		}
		d.goal = templateGoal(d.goal, typed, tmpl)
		c.logger.Debug("typed text templated", map[string]interface{}{"step": d.src.step.ID, "fields": workflow.Placeholders(tmpl)})
	}
}

// detectTemplate asks the templater first and falls back to matching
// "Label: value" lines against the known fields.
func (c *Compiler) detectTemplate(ctx context.Context, in Input, typed string, fields []string) string {
	if c.templater != nil {
		req := capability.TemplateRequest{Typed: typed, Fields: fields}
		if in.Voice != nil {
			req.TaskGoal = in.Voice.TaskGoal
		}
		callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
		tmpl, err := c.templater.DetectTemplate(callCtx, req)
		cancel()
		switch {
		case err != nil:
			c.logger.Debug("template detection failed", map[string]interface{}{"error": err.Error()})
		case tmpl == "":
			return ""
		case referencesOnly(tmpl, fields):
			return tmpl
		default:
			c.logger.Debug("template names unknown fields", map[string]interface{}{"template": tmpl})
		}
	}
	return labelTemplate(typed, fields)
}

func referencesOnly(tmpl string, fields []string) bool {
	names := workflow.Placeholders(tmpl)
	if len(names) == 0 {
		return false
	}
	for _, n := range names {
		if n != workflow.ExtractedContentBinding && !containsString(fields, n) {
			return false
		}
	}
	return true
}

// labelTemplate replaces the value of each "Label: value" line whose label
// names a known field. It returns "" when no line matched.
func labelTemplate(typed string, fields []string) string {
	lines := strings.Split(typed, "\n")
	changed := false
	for i, line := range lines {
		label, value, ok := strings.Cut(line, ":")
		if !ok || strings.TrimSpace(value) == "" {
			continue
		}
		field := fieldForLabel(label, fields)
		if field == "" {
			continue
		}
		lines[i] = strings.TrimSpace(label) + ": " + workflow.Placeholder(field)
		changed = true
	}
	if !changed {
		return ""
	}
	return strings.Join(lines, "\n")
}

func fieldForLabel(label string, fields []string) string {
	key := snakeName(label)
	if key == "" {
		return ""
	}
	for _, f := range fields {
		if strings.Contains(f, key) || strings.Contains(key, f) {
			return f
		}
	}
	for _, m := range summaryLabels {
		if strings.Contains(key, m.label) && containsString(fields, m.field) {
			return m.field
		}
	}
	return ""
}

// templateGoal swaps the recorded text for tmpl wherever the goal types it.
func templateGoal(g workflow.GoalStep, typed, tmpl string) workflow.GoalStep {
	swap := func(s string) string { return strings.ReplaceAll(s, typed, tmpl) }
	return rewriteGoal(g, swap, func(s string) string { return s })
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
