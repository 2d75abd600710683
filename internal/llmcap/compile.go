package llmcap

import (
	"context"
	"fmt"
	"strings"

	"github.com/vinayprograms/goalflow/internal/capability"
	"github.com/vinayprograms/goalflow/internal/trace"
	"github.com/vinayprograms/goalflow/internal/workflow"
)

const classifySystem = `You label steps of a recorded computer task with the user's intent.
Reply with a JSON object: {"category": "...", "rationale": "..."}.
category is one of: search, type, click, follow_link, focus, copy, read, app_switch, key_combo, save, scroll, url_entry, noop.`

// ClassifyIntent labels one step using its neighbours and the task goal.
func (c *Client) ClassifyIntent(ctx context.Context, sc capability.StepContext) (capability.IntentLabel, error) {
	var b strings.Builder
	if sc.TaskGoal != "" {
		fmt.Fprintf(&b, "Task goal: %s\n\n", sc.TaskGoal)
	}
	b.WriteString("Steps:\n")
	lo, hi := sc.Index-3, sc.Index+3
	for i, s := range sc.Steps {
		if i < lo || i > hi {
			continue
		}
		marker := "  "
		if i == sc.Index {
			marker = "> "
		}
		fmt.Fprintf(&b, "%s%d. %s\n", marker, i+1, summarizeStep(s))
	}
	fmt.Fprintf(&b, "\nLabel step %d (marked with >).", sc.Index+1)

	var label capability.IntentLabel
	if err := c.ask(ctx, "classify_intent", classifySystem, b.String(), &label); err != nil {
		return capability.IntentLabel{}, err
	}
	label.Category = strings.ToLower(strings.TrimSpace(label.Category))
	return label, nil
}

const describeSystem = `You write short visual descriptions of UI elements so that someone looking at the screen can find them again.
Reply with a JSON object: {"description": "..."}. Keep it under 15 words.`

// DescribeTarget describes the element a step acted on.
func (c *Client) DescribeTarget(ctx context.Context, step trace.Step) (string, error) {
	var reply struct {
		Description string `json:"description"`
	}
	if err := c.ask(ctx, "describe_target", describeSystem, summarizeStep(step), &reply); err != nil {
		return "", err
	}
	return strings.TrimSpace(reply.Description), nil
}

const schemaSystem = `You decide which fields to extract from a screen a user was reading.
Reply with a JSON object: {"fields": {"field_name": {"description": "...", "visual_hint": "..."}}}.
Use snake_case field names.`

// ProposeSchema proposes extraction fields for a reading step.
func (c *Client) ProposeSchema(ctx context.Context, step trace.Step, hints []string) (map[string]workflow.ExtractionField, error) {
	user := summarizeStep(step)
	if len(hints) > 0 {
		user += "\nThe user mentioned: " + strings.Join(hints, ", ")
	}
	var reply struct {
		Fields map[string]struct {
			Description string `json:"description"`
			VisualHint  string `json:"visual_hint"`
		} `json:"fields"`
	}
	if err := c.ask(ctx, "propose_schema", schemaSystem, user, &reply); err != nil {
		return nil, err
	}
	schema := make(map[string]workflow.ExtractionField, len(reply.Fields))
	for name, f := range reply.Fields {
		field := workflow.ExtractionField{Description: f.Description}
		if f.VisualHint != "" {
			field.VisualHint = workflow.StringPtr(f.VisualHint)
		}
		schema[name] = field
	}
	return schema, nil
}

// summarizeStep is a one-line rendering of a step for prompts.
func summarizeStep(s trace.Step) string {
	var parts []string
	if s.App != "" {
		parts = append(parts, "app="+s.App)
	}
	if s.WindowTitle != "" {
		parts = append(parts, fmt.Sprintf("window=%q", s.WindowTitle))
	}
	if s.Intent != "" {
		parts = append(parts, "interpreted="+s.Intent)
	}
	if el := s.Element(); el != nil {
		parts = append(parts, "element="+describeElement(el))
	}
	if s.TypedText != "" {
		parts = append(parts, fmt.Sprintf("typed=%q", s.TypedText))
	}
	if s.Submitted {
		parts = append(parts, "submitted")
	}
	if len(s.Shortcuts) > 0 {
		parts = append(parts, "keys="+strings.Join(s.Shortcuts, ","))
	}
	if s.ScrollDelta != 0 {
		parts = append(parts, fmt.Sprintf("scroll=%d", s.ScrollDelta))
	}
	if s.Navigated() {
		parts = append(parts, fmt.Sprintf("navigated %s -> %s", s.URLBefore, s.URLAfter))
	} else if s.URLAfter != "" {
		parts = append(parts, "url="+s.URLAfter)
	}
	if s.Clipboard != "" {
		parts = append(parts, fmt.Sprintf("clipboard=%q", truncate(s.Clipboard, 120)))
	}
	if s.Transcript != "" {
		parts = append(parts, fmt.Sprintf("said=%q", truncate(s.Transcript, 200)))
	}
	if len(parts) == 0 {
		return "(no activity)"
	}
	return strings.Join(parts, " ")
}

func describeElement(el *trace.Element) string {
	var parts []string
	for _, kv := range [][2]string{
		{"tag", el.Tag}, {"role", el.Role}, {"name", el.Name},
		{"text", el.Text}, {"selector", el.Selector}, {"looks", el.VisualHint},
	} {
		if kv[1] != "" {
			parts = append(parts, fmt.Sprintf("%s:%q", kv[0], kv[1]))
		}
	}
	if el.X != nil && el.Y != nil {
		parts = append(parts, fmt.Sprintf("at:(%d,%d)", *el.X, *el.Y))
	}
	return "{" + strings.Join(parts, " ") + "}"
}

const templateSystem = `A user extracted data from a page and then typed a summary of it. Turn the typed text into a template.
Replace each specific value (names, numbers, addresses) with a {{field_name}} placeholder and keep labels and other structural text as typed.
Use the known field names where they fit, snake_case otherwise.
Reply with a JSON object: {"template": "...", "fields_used": ["..."]}. Use "template": "" when the text holds no extracted data.`

// DetectTemplate infers which parts of typed text are extracted values.
func (c *Client) DetectTemplate(ctx context.Context, req capability.TemplateRequest) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Typed text:\n%s\n\nKnown fields: %s\n", req.Typed, strings.Join(req.Fields, ", "))
	if req.TaskGoal != "" {
		fmt.Fprintf(&b, "Task goal: %s\n", req.TaskGoal)
	}
	var reply struct {
		Template   string   `json:"template"`
		FieldsUsed []string `json:"fields_used"`
	}
	if err := c.ask(ctx, "detect_template", templateSystem, b.String(), &reply); err != nil {
		return "", err
	}
	return reply.Template, nil
}
