// Package prompt asks the user for workflow parameter values in the terminal.
package prompt

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// ErrCancelled is returned when the user aborts the prompt.
var ErrCancelled = errors.New("parameter prompt cancelled")

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("99")).
			MarginBottom(1)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("170")).
			Bold(true)

	doneStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("82"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))
)

// Collect asks for each name in order. An empty answer takes the default,
// when there is one.
func Collect(names []string, defaults map[string]string) (map[string]string, error) {
	return run(names, defaults)
}

// CollectWith is Collect on explicit streams.
func CollectWith(in io.Reader, out io.Writer, names []string, defaults map[string]string) (map[string]string, error) {
	return run(names, defaults, tea.WithInput(in), tea.WithOutput(out))
}

func run(names []string, defaults map[string]string, opts ...tea.ProgramOption) (map[string]string, error) {
	if len(names) == 0 {
		return map[string]string{}, nil
	}
	final, err := tea.NewProgram(newModel(names, defaults), opts...).Run()
	if err != nil {
		return nil, fmt.Errorf("prompt failed: %w", err)
	}
	m := final.(model)
	if m.cancelled {
		return nil, ErrCancelled
	}
	return m.values, nil
}

type model struct {
	names     []string
	defaults  map[string]string
	values    map[string]string
	index     int
	input     textinput.Model
	errMsg    string
	cancelled bool
}

func newModel(names []string, defaults map[string]string) model {
	m := model{
		names:    names,
		defaults: defaults,
		values:   make(map[string]string, len(names)),
	}
	m.input = m.newInput()
	return m
}

func (m model) newInput() textinput.Model {
	ti := textinput.New()
	ti.CharLimit = 1024
	ti.Width = 50
	if d := m.defaults[m.names[m.index]]; d != "" {
		ti.Placeholder = d
	}
	ti.Focus()
	return ti
}

func (m model) Init() tea.Cmd {
	return textinput.Blink
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.String() {
		case "ctrl+c", "esc":
			m.cancelled = true
			return m, tea.Quit
		case "enter":
			return m.accept()
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m model) accept() (tea.Model, tea.Cmd) {
	name := m.names[m.index]
	value := strings.TrimSpace(m.input.Value())
	if value == "" {
		value = m.defaults[name]
	}
	if value == "" {
		m.errMsg = name + " needs a value"
		return m, nil
	}
	m.values[name] = value
	m.errMsg = ""
	m.index++
	if m.index == len(m.names) {
		return m, tea.Quit
	}
	m.input = m.newInput()
	return m, textinput.Blink
}

func (m model) View() string {
	var s strings.Builder
	s.WriteString(titleStyle.Render("Workflow parameters") + "\n")
	for i, name := range m.names {
		if i >= m.index {
			break
		}
		s.WriteString(doneStyle.Render("✓ "+name) + dimStyle.Render(" = "+m.values[name]) + "\n")
	}
	if m.index < len(m.names) {
		s.WriteString(labelStyle.Render(m.names[m.index]) + "\n")
		s.WriteString(m.input.View() + "\n")
		if m.errMsg != "" {
			s.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Render(m.errMsg) + "\n")
		}
		s.WriteString(dimStyle.Render(fmt.Sprintf("%d of %d · Enter to accept, Esc to cancel", m.index+1, len(m.names))) + "\n")
	}
	return s.String()
}
