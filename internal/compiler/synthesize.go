package compiler

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/vinayprograms/goalflow/internal/safety"
	"github.com/vinayprograms/goalflow/internal/trace"
	"github.com/vinayprograms/goalflow/internal/workflow"
)

// Locator priority bands, highest first.
const (
	bandSelector    = 100
	bandText        = 80
	bandRole        = 60
	bandVisual      = 40
	bandCoordinates = 10
	bandFocused     = 5
)

const defaultSaveKeys = "command+s"

// draft is a goal under construction together with the step it came from.
type draft struct {
	goal workflow.GoalStep
	src  analyzed
}

// synthesize emits one goal per analyzed step. Steps that carry too little
// information to act on are dropped with a debug log.
func (c *Compiler) synthesize(in Input, steps []analyzed) []draft {
	var out []draft
	extracted := false
	for _, a := range steps {
		goalType, ok := intentGoalTypes[a.intent]
		if !ok {
			continue
		}
		g := workflow.GoalStep{
			Type:        goalType,
			Platform:    platformOf(a.step),
			App:         a.step.App,
			SourceSteps: a.sources,
		}
		var built bool
		switch goalType {
		case workflow.GoalNavigate:
			built = buildNavigate(&g, a.step)
		case workflow.GoalWrite:
			built = buildWrite(&g, a.step)
		case workflow.GoalSelect:
			built = buildSelect(&g, a)
		case workflow.GoalExtract:
			built = buildExtract(&g, a.step, extractionHints(in, a))
		case workflow.GoalLaunch:
			built = buildLaunch(&g, a.step)
		case workflow.GoalShortcut:
			built = buildShortcut(&g, a.step, extracted)
		case workflow.GoalSave:
			built = buildSave(&g, a.step)
		case workflow.GoalScroll:
			built = buildScroll(&g, a.step)
		}
		if !built {
			c.logger.Debug("step dropped", map[string]interface{}{"step": a.step.ID, "intent": a.intent})
			continue
		}
		if goalType == workflow.GoalExtract {
			extracted = true
		}
		out = append(out, draft{goal: g, src: a})
	}
	return out
}

func platformOf(s trace.Step) workflow.Platform {
	if p := workflow.Platform(strings.ToLower(s.Platform)); p.Valid() {
		return p
	}
	if s.URLBefore != "" || s.URLAfter != "" {
		return workflow.PlatformBrowser
	}
	return workflow.PlatformDesktop
}

func buildNavigate(g *workflow.GoalStep, s trace.Step) bool {
	target := s.URLAfter
	if target == "" && looksLikeURL(s.TypedText) {
		target = strings.TrimSpace(s.TypedText)
	}
	if target == "" {
		return false
	}
	if !strings.Contains(target, "://") {
		target = "https://" + target
	}
	g.Platform = workflow.PlatformBrowser
	g.Description = "Go to " + target
	g.Strategies = []workflow.Strategy{
		{Name: "direct_url", Priority: 100, Mechanism: workflow.Navigate{URL: target}},
	}
	return true
}

func buildWrite(g *workflow.GoalStep, s trace.Step) bool {
	if s.TypedText == "" {
		return false
	}
	text := s.TypedText
	el := s.Element()
	g.Description = `Type "` + text + `"`
	if label := el.Label(); label != "" {
		g.Description += " into " + label
	}
	if s.Submitted {
		g.Description += " and submit"
	}
	g.Strategies = locatorStrategies(el, "_type", &text, s.Submitted)
	g.Strategies = append(g.Strategies, workflow.Strategy{
		Name: "focused_type", Priority: bandFocused,
		Mechanism: workflow.Focused{Input: text, Submit: s.Submitted},
	})
	g.FallbackToAgent = true
	g.AgentPrompt = workflow.StringPtr("Find a text input and type: " + text)
	return true
}

func buildSelect(g *workflow.GoalStep, a analyzed) bool {
	el := a.step.Element()
	label := el.Label()
	switch {
	case a.intent == IntentFollowLink && label != "":
		g.Description = "Open " + label
	case label != "":
		g.Description = "Click " + label
	default:
		g.Description = "Click the target element"
	}
	g.Strategies = locatorStrategies(el, "_click", nil, false)
	g.FallbackToAgent = true
	return true
}

func buildExtract(g *workflow.GoalStep, s trace.Step, hints []string) bool {
	g.ExtractionSchema = schemaFromHints(hints, s.Clipboard)
	g.Description = describeExtract(*g, s)
	g.Strategies = []workflow.Strategy{
		{Name: "vision_extract", Priority: 100, Mechanism: workflow.Extract{Source: workflow.ExtractVision}},
	}
	if g.Platform == workflow.PlatformBrowser {
		g.Strategies = append(g.Strategies, workflow.Strategy{
			Name: "page_extract", Priority: 80, Mechanism: workflow.Extract{Source: workflow.ExtractBackend},
		})
	}
	g.FallbackToAgent = true
	return true
}

func describeExtract(g workflow.GoalStep, s trace.Step) string {
	desc := "Extract " + strings.Join(g.SchemaFields(), ", ")
	where := s.App
	if s.WindowTitle != "" {
		where = s.WindowTitle
	}
	if where != "" {
		desc += " from " + where
	}
	return desc
}

func buildLaunch(g *workflow.GoalStep, s trace.Step) bool {
	if s.App == "" {
		return false
	}
	g.Description = "Switch to " + s.App
	g.Strategies = []workflow.Strategy{
		{Name: "activate_app", Priority: 100, Mechanism: workflow.Launch{App: s.App, ActivateOnly: true}},
		{Name: "launch_app", Priority: 50, Mechanism: workflow.Launch{App: s.App}},
	}
	return true
}

func buildShortcut(g *workflow.GoalStep, s trace.Step, afterExtract bool) bool {
	keys := firstShortcut(s)
	if keys == "" {
		return false
	}
	if afterExtract && isCombo(keys, "cmd+v", "ctrl+v") {
		g.Description = "Paste extracted content"
		g.Strategies = []workflow.Strategy{{
			Name: "paste_content", Priority: 100,
			Mechanism: workflow.Shortcut{
				Keys:      keys,
				Clipboard: workflow.StringPtr(workflow.Placeholder(workflow.ExtractedContentBinding)),
			},
		}}
		return true
	}
	g.Description = "Press " + keys
	g.Strategies = []workflow.Strategy{
		{Name: "key_combo", Priority: 100, Mechanism: workflow.Shortcut{Keys: keys}},
	}
	return true
}

func buildSave(g *workflow.GoalStep, s trace.Step) bool {
	keys := defaultSaveKeys
	for _, k := range s.Shortcuts {
		if isCombo(k, "cmd+s", "ctrl+s") {
			keys = safety.NormalizeKeys(k)
			break
		}
	}
	g.Description = "Save the document"
	g.Strategies = []workflow.Strategy{
		{Name: "save_shortcut", Priority: 100, Mechanism: workflow.Shortcut{Keys: keys}},
	}
	g.Strategies = append(g.Strategies, locatorStrategies(s.Element(), "_click", nil, false)...)
	return true
}

func buildScroll(g *workflow.GoalStep, s trace.Step) bool {
	direction, amount := "down", s.ScrollDelta
	if amount < 0 {
		direction, amount = "up", -amount
	}
	if amount == 0 {
		amount = 3
	}
	g.Description = "Scroll " + direction
	g.Strategies = []workflow.Strategy{
		{Name: "scroll_view", Priority: 100, Mechanism: workflow.Scroll{Direction: direction, Amount: amount}},
	}
	return true
}

func firstShortcut(s trace.Step) string {
	for _, k := range s.Shortcuts {
		if norm := safety.NormalizeKeys(k); norm != "" {
			return norm
		}
	}
	return ""
}

// locatorStrategies ranks every locator the element carries. input, when
// set, makes each strategy type instead of click.
func locatorStrategies(el *trace.Element, suffix string, input *string, submit bool) []workflow.Strategy {
	if el == nil {
		return nil
	}
	in := func() *string {
		if input == nil {
			return nil
		}
		v := *input
		return &v
	}
	var out []workflow.Strategy
	if el.Selector != "" {
		out = append(out, workflow.Strategy{Name: "selector" + suffix, Priority: bandSelector,
			Mechanism: workflow.Selector{CSS: el.Selector, Input: in(), Submit: submit}})
	}
	if el.Text != "" {
		out = append(out, workflow.Strategy{Name: "text" + suffix, Priority: bandText,
			Mechanism: workflow.TextMatch{Text: el.Text, Input: in(), Submit: submit}})
	}
	if el.Role != "" {
		var name *string
		if el.Name != "" {
			name = workflow.StringPtr(el.Name)
		}
		out = append(out, workflow.Strategy{Name: "role" + suffix, Priority: bandRole,
			Mechanism: workflow.Role{Role: el.Role, Name: name, Input: in(), Submit: submit}})
	}
	if el.VisualHint != "" {
		out = append(out, visualStrategy(el.VisualHint, suffix, in(), submit))
	}
	if el.X != nil && el.Y != nil {
		out = append(out, workflow.Strategy{Name: "coordinates" + suffix, Priority: bandCoordinates,
			Mechanism: workflow.Coordinates{X: *el.X, Y: *el.Y, Input: in(), Submit: submit}})
	}
	return out
}

func visualStrategy(desc, suffix string, input *string, submit bool) workflow.Strategy {
	return workflow.Strategy{Name: "visual" + suffix, Priority: bandVisual,
		Mechanism: workflow.Visual{Description: desc, Input: input, Submit: submit}}
}

// extractionHints gathers what the recording says should be extracted.
// Voice hints apply only when the step carries none of its own.
func extractionHints(in Input, a analyzed) []string {
	var hints []string
	hints = append(hints, a.step.Hints...)
	for _, id := range a.sources {
		hints = append(hints, in.ExtractionHints[id]...)
	}
	if len(hints) == 0 && in.Voice != nil {
		hints = append(hints, in.Voice.ExtractionHints...)
	}
	return hints
}

func schemaFromHints(hints []string, clipboard string) map[string]workflow.ExtractionField {
	schema := make(map[string]workflow.ExtractionField)
	for _, h := range hints {
		name := snakeName(h)
		if name == "" {
			continue
		}
		if _, ok := schema[name]; !ok {
			schema[name] = workflow.ExtractionField{Description: strings.TrimSpace(h)}
		}
	}
	if len(schema) == 0 {
		field := workflow.ExtractionField{Description: "Visible content"}
		if clipboard != "" {
			field.Description = "Copied content"
			field.Example = workflow.StringPtr(clipboard)
		}
		schema["content"] = field
	}
	return schema
}

var nonWord = regexp.MustCompile(`[^a-z0-9]+`)

// snakeName turns free text into an identifier usable as a placeholder.
func snakeName(s string) string {
	name := strings.Trim(nonWord.ReplaceAllString(strings.ToLower(s), "_"), "_")
	if name != "" && name[0] >= '0' && name[0] <= '9' {
		name = "p_" + name
	}
	return name
}

// targetHost returns the host part of a URL, or the URL itself when it
// does not parse.
func targetHost(raw string) string {
	if u, err := url.Parse(raw); err == nil && u.Host != "" {
		return u.Host
	}
	return raw
}
