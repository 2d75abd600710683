package prompt

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
)

func typeText(m model, text string) model {
	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(text)})
	return next.(model)
}

func press(m model, t tea.KeyType) (model, tea.Cmd) {
	next, cmd := m.Update(tea.KeyMsg{Type: t})
	return next.(model), cmd
}

func TestModel_CollectsInOrder(t *testing.T) {
	m := newModel([]string{"query", "city"}, map[string]string{"city": "Tokyo"})

	m = typeText(m, "sushi")
	m, _ = press(m, tea.KeyEnter)
	if m.index != 1 || m.values["query"] != "sushi" {
		t.Fatalf("first answer not recorded: %+v", m.values)
	}
	if !strings.Contains(m.View(), "✓ query") {
		t.Errorf("view should list answered parameters:\n%s", m.View())
	}

	// empty answer takes the default
	m, cmd := press(m, tea.KeyEnter)
	if m.values["city"] != "Tokyo" {
		t.Errorf("expected default, got %q", m.values["city"])
	}
	if cmd == nil {
		t.Error("expected quit after last parameter")
	}
}

func TestModel_RequiresValueWithoutDefault(t *testing.T) {
	m := newModel([]string{"query"}, nil)
	m, _ = press(m, tea.KeyEnter)
	if m.index != 0 || m.errMsg == "" {
		t.Errorf("empty answer without default should be rejected")
	}
	if !strings.Contains(m.View(), "query needs a value") {
		t.Errorf("view should show the error")
	}
}

func TestModel_Cancel(t *testing.T) {
	m := newModel([]string{"query"}, nil)
	m, _ = press(m, tea.KeyEsc)
	if !m.cancelled {
		t.Error("esc should cancel")
	}
}

func TestCollect_NoNames(t *testing.T) {
	got, err := Collect(nil, nil)
	if err != nil || len(got) != 0 {
		t.Errorf("expected empty result, got %v %v", got, err)
	}
}
