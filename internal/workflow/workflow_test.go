package workflow

import (
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func sampleWorkflow() *Workflow {
	return &Workflow{
		ID:            "wf-1",
		Version:       FormatVersion,
		Name:          "find sushi",
		Parameters:    map[string]string{"query": "sushi"},
		VoiceAnalyzed: true,
		Steps: []GoalStep{
			{
				ID: "goal-001", Sequence: 1, Type: GoalNavigate, Platform: PlatformBrowser, App: "Chrome",
				Description: "Open maps",
				Strategies:  []Strategy{{Name: "direct_url", Priority: 100, Mechanism: Navigate{URL: "https://maps.example.com"}}},
				Criteria:    SuccessCriteria{URLContains: StringPtr("maps.example.com")},
			},
			{
				ID: "goal-002", Sequence: 2, Type: GoalWrite, Platform: PlatformBrowser, App: "Chrome",
				Description: "Search for {{query}}",
				Strategies: []Strategy{
					{Name: "selector_type", Priority: 100, Mechanism: Selector{CSS: "#q", Input: StringPtr("{{query}}"), Submit: true}},
					{Name: "role_type", Priority: 60, Mechanism: Role{Role: "searchbox", Input: StringPtr("{{query}}")}},
					{Name: "coordinates_type", Priority: 10, Mechanism: Coordinates{X: 10, Y: 20, Input: StringPtr("")}},
					{Name: "focused_type", Priority: 5, Mechanism: Focused{Input: "{{query}}"}},
				},
				Criteria:        SuccessCriteria{TimeoutSuccess: true},
				FallbackToAgent: true,
			},
			{
				ID: "goal-003", Sequence: 3, Type: GoalExtract, Platform: PlatformBrowser,
				Description: "Read the rating",
				Strategies:  []Strategy{{Name: "vision_extract", Priority: 100, Mechanism: Extract{Source: ExtractVision}}},
				Criteria:    SuccessCriteria{MinExtractedCount: IntPtr(1)},
				ExtractionSchema: map[string]ExtractionField{
					"rating": {Description: "Star rating", VisualHint: StringPtr("next to the stars")},
				},
			},
			{
				ID: "goal-004", Sequence: 4, Type: GoalShortcut, Platform: PlatformDesktop, App: "Notes",
				Description: "Paste the rating",
				Strategies:  []Strategy{{Name: "paste", Priority: 100, Mechanism: Shortcut{Keys: "command+v", Clipboard: StringPtr("{{extracted_content}} ({{rating}})")}}},
				Criteria:    SuccessCriteria{TimeoutSuccess: true},
				AgentPrompt: StringPtr("Paste into the open note"),
			},
		},
	}
}

func TestValidateSample(t *testing.T) {
	if err := sampleWorkflow().Validate(); err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}
}

func TestValidateRejectsUndeclaredPlaceholder(t *testing.T) {
	w := sampleWorkflow()
	delete(w.Parameters, "query")
	err := w.Validate()
	if err == nil || !strings.Contains(err.Error(), "{{query}}") {
		t.Fatalf("expected placeholder error, got %v", err)
	}
}

func TestValidateRejectsExtractedBindingBeforeExtract(t *testing.T) {
	w := sampleWorkflow()
	w.Steps[1].Description = "Search for {{rating}}"
	if err := w.Validate(); err == nil {
		t.Fatal("expected error for binding used before the extract goal runs")
	}
}

func TestValidateOrdering(t *testing.T) {
	w := sampleWorkflow()
	w.Steps[2].Sequence = 2
	if err := w.Validate(); err == nil || !strings.Contains(err.Error(), "does not follow") {
		t.Fatalf("expected sequence error, got %v", err)
	}

	w = sampleWorkflow()
	w.Steps[1].Strategies[0].Priority = 1
	if err := w.Validate(); err == nil || !strings.Contains(err.Error(), "priority order") {
		t.Fatalf("expected priority order error, got %v", err)
	}
}

func TestValidateMechanismPerGoalType(t *testing.T) {
	w := sampleWorkflow()
	w.Steps[0].Strategies = append(w.Steps[0].Strategies, Strategy{Name: "scroll", Priority: 1, Mechanism: Scroll{Direction: "down"}})
	if err := w.Validate(); err == nil || !strings.Contains(err.Error(), "not valid for navigate") {
		t.Fatalf("expected mechanism error, got %v", err)
	}
}

func TestValidateExtractSchema(t *testing.T) {
	w := sampleWorkflow()
	w.Steps[2].ExtractionSchema = nil
	if err := w.Validate(); err == nil || !strings.Contains(err.Error(), "extraction schema") {
		t.Fatalf("expected schema error, got %v", err)
	}
}

func TestOrderedStrategiesStable(t *testing.T) {
	g := GoalStep{Strategies: []Strategy{
		{Name: "a", Priority: 50, Mechanism: TextMatch{Text: "a"}},
		{Name: "b", Priority: 90, Mechanism: TextMatch{Text: "b"}},
		{Name: "c", Priority: 50, Mechanism: TextMatch{Text: "c"}},
		{Name: "d", Priority: 90, Mechanism: TextMatch{Text: "d"}},
	}}
	var got []string
	for _, s := range g.OrderedStrategies() {
		got = append(got, s.Name)
	}
	want := []string{"b", "d", "a", "c"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("order = %v, want %v", got, want)
	}
	if g.Strategies[0].Name != "a" {
		t.Error("OrderedStrategies must not reorder the goal in place")
	}
}

func TestRequiredBindings(t *testing.T) {
	got := sampleWorkflow().RequiredBindings()
	if !reflect.DeepEqual(got, []string{"query"}) {
		t.Errorf("required = %v, want [query]", got)
	}
}

func TestSubstituteGoal(t *testing.T) {
	g := sampleWorkflow().Steps[1]
	sub := g.Substitute(map[string]string{"query": "ramen"})
	if sub.Description != "Search for ramen" {
		t.Errorf("description = %q", sub.Description)
	}
	sel := sub.Strategies[0].Mechanism.(Selector)
	if *sel.Input != "ramen" || sel.CSS != "#q" {
		t.Errorf("selector = %+v", sel)
	}
	if *g.Strategies[0].Mechanism.(Selector).Input != "{{query}}" {
		t.Error("Substitute mutated the original goal")
	}
	coords := sub.Strategies[2].Mechanism.(Coordinates)
	if coords.Input == nil || *coords.Input != "" {
		t.Error("explicit empty input must stay empty, not absent")
	}
}

func TestSubstituteLeavesUnknown(t *testing.T) {
	got := Substitute("{{a}} and {{ b }}", map[string]string{"a": "x"})
	if got != "x and {{ b }}" {
		t.Errorf("got %q", got)
	}
}

func TestSubstituteURL(t *testing.T) {
	bind := map[string]string{"query": "pad thai & co", "city": "San José", "site": "https://maps.example.com/x?y=1"}
	tests := []struct {
		in, want string
	}{
		{"https://maps.example.com/search?q={{query}}", "https://maps.example.com/search?q=pad+thai+%26+co"},
		{"https://maps.example.com/{{city}}/search", "https://maps.example.com/San%20Jos%C3%A9/search"},
		{"{{site}}", "https://maps.example.com/x?y=1"},
		{"https://maps.example.com/search?q={{missing}}", "https://maps.example.com/search?q={{missing}}"},
	}
	for _, tt := range tests {
		if got := SubstituteURL(tt.in, bind); got != tt.want {
			t.Errorf("SubstituteURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSubstituteGoalEscapesNavigateURL(t *testing.T) {
	g := GoalStep{
		ID: "goal-001", Sequence: 1, Type: GoalNavigate, Platform: PlatformBrowser,
		Description: "Search maps for {{query}}",
		Strategies:  []Strategy{{Name: "direct_url", Priority: 100, Mechanism: Navigate{URL: "https://maps.example.com/search?q={{query}}"}}},
	}
	sub := g.Substitute(map[string]string{"query": "fish & chips"})
	if got := sub.Strategies[0].Mechanism.(Navigate).URL; got != "https://maps.example.com/search?q=fish+%26+chips" {
		t.Errorf("url = %q", got)
	}
	if sub.Description != "Search maps for fish & chips" {
		t.Errorf("description = %q", sub.Description)
	}
}

func TestStrategyUnbound(t *testing.T) {
	s := Strategy{Name: "type", Mechanism: Focused{Input: "Rating: {{rating}} for {{name}} ({{rating}})"}}
	bound := s.MapStrings(func(v string) string { return Substitute(v, map[string]string{"name": "Sushi Ko"}) })
	got := bound.Unbound()
	if !reflect.DeepEqual(got, []string{"rating"}) {
		t.Errorf("unbound = %v", got)
	}
}

func TestRoundTrip(t *testing.T) {
	for _, format := range []Format{FormatJSON, FormatYAML} {
		t.Run(string(format), func(t *testing.T) {
			w := sampleWorkflow()
			data, err := Marshal(w, format)
			if err != nil {
				t.Fatalf("marshal: %v", err)
			}
			got, err := Decode(data, format)
			if err != nil {
				t.Fatalf("decode: %v\n%s", err, data)
			}
			if !reflect.DeepEqual(got, w) {
				t.Errorf("round trip mismatch\nwant %+v\ngot  %+v", w, got)
			}
		})
	}
}

func TestSaveAndLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "flow.yaml")
	if err := SaveFile(sampleWorkflow(), path); err != nil {
		t.Fatalf("save: %v", err)
	}
	w, err := LoadFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(w.Steps) != 4 || w.Steps[3].ID != "goal-004" {
		t.Errorf("unexpected steps: %+v", w.Steps)
	}
}

func TestDecodeRejectsUnknownKind(t *testing.T) {
	doc := `{"id":"x","parameters":{},"steps":[{"id":"g","sequence":1,"goal_type":"select","platform":"browser",
	"description":"d","strategies":[{"name":"s","priority":1,"kind":"telepathy"}],"success_criteria":{}}]}`
	if _, err := Decode([]byte(doc), FormatJSON); err == nil || !strings.Contains(err.Error(), "unknown kind") {
		t.Fatalf("expected unknown kind error, got %v", err)
	}
}

func TestDecodeRequiresVariantField(t *testing.T) {
	doc := `{"id":"x","parameters":{},"steps":[{"id":"g","sequence":1,"goal_type":"select","platform":"browser",
	"description":"d","strategies":[{"name":"s","priority":1,"kind":"selector"}],"success_criteria":{}}]}`
	if _, err := Decode([]byte(doc), FormatJSON); err == nil || !strings.Contains(err.Error(), "requires selector") {
		t.Fatalf("expected missing selector error, got %v", err)
	}
}

func TestCriteriaEmpty(t *testing.T) {
	if !(SuccessCriteria{}).IsEmpty() {
		t.Error("zero criteria should be empty")
	}
	c := SuccessCriteria{TimeoutSuccess: true}
	if c.IsEmpty() || c.HasStatePredicates() {
		t.Error("timeout_success alone is not empty and has no state predicates")
	}
}
