package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"github.com/vinayprograms/goalflow/internal/workflow"
)

var (
	headStyle  = lipgloss.NewStyle().Bold(true)
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	goalStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	paramStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("13"))
)

// Run validates the workflow.
func (c *ValidateCmd) Run() error {
	return c.run(os.Stdout)
}

func (c *ValidateCmd) run(w io.Writer) error {
	cfg, err := loadConfig(c.Config)
	if err != nil {
		return err
	}
	// Loading validates.
	wf, err := loadWorkflow(cfg, c.Workflow)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "%s Valid workflow %q (%d goals)\n", okStyle.Render("✓"), wf.Name, len(wf.Steps))
	return nil
}

// Run prints the workflow structure.
func (c *InspectCmd) Run() error {
	return c.run(os.Stdout)
}

func (c *InspectCmd) run(w io.Writer) error {
	cfg, err := loadConfig(c.Config)
	if err != nil {
		return err
	}
	wf, err := loadWorkflow(cfg, c.Workflow)
	if err != nil {
		return err
	}
	inspect(w, wf)
	return nil
}

func inspect(w io.Writer, wf *workflow.Workflow) {
	fmt.Fprintf(w, "%s %s\n", headStyle.Render("Workflow:"), wf.Name)
	fmt.Fprintf(w, "%s %s (v%s)\n", dimStyle.Render("ID:"), wf.ID, wf.Version)
	if wf.Description != "" {
		fmt.Fprintln(w, wordwrap.String(wf.Description, 80))
	}
	if wf.SourceSession != "" {
		fmt.Fprintf(w, "%s %s\n", dimStyle.Render("Recorded in:"), wf.SourceSession)
	}
	var flags []string
	if wf.VoiceAnalyzed {
		flags = append(flags, "voice analyzed")
	}
	if wf.VisionEnriched {
		flags = append(flags, "vision enriched")
	}
	if len(flags) > 0 {
		fmt.Fprintln(w, dimStyle.Render(strings.Join(flags, ", ")))
	}

	if names := wf.ParameterNames(); len(names) > 0 {
		fmt.Fprintf(w, "\n%s\n", headStyle.Render("Parameters:"))
		for _, name := range names {
			fmt.Fprintf(w, "  %s = %q\n", paramStyle.Render(name), wf.Parameters[name])
		}
	}
	if runtimeOnly := runtimePlaceholders(wf); len(runtimeOnly) > 0 {
		fmt.Fprintf(w, "%s %s\n", dimStyle.Render("Filled at run time:"), strings.Join(runtimeOnly, ", "))
	}

	fmt.Fprintf(w, "\n%s\n", headStyle.Render("Goals:"))
	for _, g := range wf.Steps {
		fmt.Fprintf(w, "  %s %s %s\n", goalStyle.Render(fmt.Sprintf("%d.", g.Sequence)), g.Type, dimStyle.Render(fmt.Sprintf("[%s/%s] %s", g.Platform, g.App, g.ID)))
		fmt.Fprintf(w, "     %s\n", strings.ReplaceAll(wordwrap.String(g.Description, 72), "\n", "\n     "))
		for _, s := range g.OrderedStrategies() {
			fmt.Fprintf(w, "     - %s %s\n", s.Name, dimStyle.Render(fmt.Sprintf("p%d %s", s.Priority, s.Kind())))
		}
		if names := g.Criteria.Names(); len(names) > 0 {
			fmt.Fprintf(w, "     %s %s\n", dimStyle.Render("until:"), strings.Join(names, ", "))
		}
		if fields := g.SchemaFields(); len(fields) > 0 {
			fmt.Fprintf(w, "     %s %s\n", dimStyle.Render("extract:"), strings.Join(fields, ", "))
		}
		if g.FallbackToAgent {
			fmt.Fprintf(w, "     %s\n", dimStyle.Render("agent fallback enabled"))
		}
	}
}

// runtimePlaceholders lists placeholders that are not workflow parameters,
// such as extracted fields bound by earlier goals.
func runtimePlaceholders(wf *workflow.Workflow) []string {
	var out []string
	for _, name := range wf.Placeholders() {
		if _, ok := wf.Parameters[name]; !ok {
			out = append(out, name)
		}
	}
	return out
}
