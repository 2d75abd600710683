package llmcap

import (
	"context"
	"fmt"
	"strings"

	"github.com/vinayprograms/goalflow/internal/capability"
	"github.com/vinayprograms/goalflow/internal/platform"
	"github.com/vinayprograms/goalflow/internal/workflow"
)

const locateSystem = `You find UI elements on a screen from a description.
Reply with a JSON object: {"found": true, "element": <index>} when a listed element matches,
{"found": true, "x": <int>, "y": <int>} for a position, or {"found": false}.`

// LocateElement finds the element matching description. It returns nil
// when the model finds nothing.
func (c *Client) LocateElement(ctx context.Context, snap platform.Snapshot, description string) (*platform.Point, error) {
	user := describeSnapshot(snap) + "\nFind: " + description
	var reply struct {
		Found   bool `json:"found"`
		Element *int `json:"element"`
		X       *int `json:"x"`
		Y       *int `json:"y"`
	}
	if err := c.ask(ctx, "locate_element", locateSystem, user, &reply); err != nil {
		return nil, err
	}
	if !reply.Found {
		return nil, nil
	}
	if reply.Element != nil {
		i := *reply.Element
		if i < 0 || i >= len(snap.Elements) {
			return nil, fmt.Errorf("locate_element: element %d out of range", i)
		}
		if p := snap.Elements[i].Point; p != nil {
			return &platform.Point{X: p.X, Y: p.Y}, nil
		}
	}
	if reply.X != nil && reply.Y != nil {
		return &platform.Point{X: *reply.X, Y: *reply.Y}, nil
	}
	return nil, nil
}

const extractSystem = `You read values off a screen.
Reply with a JSON object mapping each requested field name to its value as a string.
Omit fields you cannot see.`

// ExtractFields reads the schema's fields off the screen. Fields the model
// did not return are absent from the result.
func (c *Client) ExtractFields(ctx context.Context, snap platform.Snapshot, schema map[string]workflow.ExtractionField) (map[string]string, error) {
	var b strings.Builder
	b.WriteString(describeSnapshot(snap))
	b.WriteString("\nFields:\n")
	names := (workflow.GoalStep{ExtractionSchema: schema}).SchemaFields()
	for _, name := range names {
		f := schema[name]
		fmt.Fprintf(&b, "- %s: %s", name, f.Description)
		if f.VisualHint != nil {
			fmt.Fprintf(&b, " (looks like: %s)", *f.VisualHint)
		}
		if f.Example != nil {
			fmt.Fprintf(&b, " (example: %s)", *f.Example)
		}
		b.WriteString("\n")
	}

	var reply map[string]interface{}
	if err := c.ask(ctx, "extract_fields", extractSystem, b.String(), &reply); err != nil {
		return nil, err
	}
	out := make(map[string]string)
	for _, name := range names {
		v, ok := reply[name]
		if !ok || v == nil {
			continue
		}
		s := strings.TrimSpace(fmt.Sprint(v))
		if s != "" {
			out[name] = s
		}
	}
	return out, nil
}

const agentSystem = `You operate a computer for the user, one action at a time.
Given the screen and a goal, reply with the single next action as a JSON object:
{"action": "click|type|key|scroll|navigate|launch|none", "x": int, "y": int, "text": "...",
 "keys": "...", "url": "...", "app": "...", "direction": "up|down", "amount": int, "reasoning": "..."}.
Include only the fields the action needs. Use "none" if the goal is already met or impossible.`

var agentActions = map[capability.ActionKind]bool{
	capability.ActionClick:    true,
	capability.ActionType:     true,
	capability.ActionKey:      true,
	capability.ActionScroll:   true,
	capability.ActionNavigate: true,
	capability.ActionLaunch:   true,
	capability.ActionNone:     true,
}

// ActAsAgent picks the next action toward goalPrompt.
func (c *Client) ActAsAgent(ctx context.Context, snap platform.Snapshot, goalPrompt string) (capability.Action, error) {
	user := describeSnapshot(snap) + "\nGoal: " + goalPrompt
	var act capability.Action
	if err := c.ask(ctx, "act_as_agent", agentSystem, user, &act); err != nil {
		return capability.Action{}, err
	}
	act.Kind = capability.ActionKind(strings.ToLower(string(act.Kind)))
	if !agentActions[act.Kind] {
		return capability.Action{}, fmt.Errorf("act_as_agent: unknown action %q", act.Kind)
	}
	if act.Kind == capability.ActionClick && (act.X == nil || act.Y == nil) {
		return capability.Action{}, fmt.Errorf("act_as_agent: click without a position")
	}
	c.logger.Info("agent action", map[string]interface{}{"action": string(act.Kind), "reasoning": truncate(act.Reasoning, 200)})
	return act, nil
}
