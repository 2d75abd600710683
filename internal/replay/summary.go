package replay

import (
	"fmt"
	"io"

	"github.com/vinayprograms/goalflow/internal/executor"
)

// Summary prints the result of a run that just finished.
func Summary(w io.Writer, result *executor.WorkflowResult) {
	if result == nil {
		return
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "%s %s\n", titleStyle.Render("RUN"), valueStyle.Render(result.RunID))
	fmt.Fprintln(w, divider)
	fmt.Fprintf(w, "%s %s\n", labelStyle.Render("Workflow:"), valueStyle.Render(result.WorkflowName))

	for _, g := range result.Goals {
		mark := successStyle.Render("✓")
		detail := strategyStyle.Render(g.StrategyUsed)
		if !g.Success {
			mark = errorStyle.Render("✗")
			detail = errorStyle.Render(string(g.ErrorKind))
		}
		fmt.Fprintf(w, " %s %s %s %s %s\n", mark,
			dimStyle.Render(fmt.Sprintf("%3d", g.Sequence)),
			valueStyle.Render(g.GoalID),
			detail,
			dimStyle.Render(fmt.Sprintf("(%s, %d attempts)", formatDuration(g.Elapsed.Milliseconds()), len(g.Attempts))))
		if !g.Success && g.Error != "" {
			fmt.Fprintf(w, "       %s\n", dimStyle.Render(truncate(g.Error, 160)))
		}
	}
	if skipped := result.GoalsTotal - len(result.Goals); skipped > 0 {
		fmt.Fprintf(w, "   %s\n", dimStyle.Render(fmt.Sprintf("%d goals not attempted", skipped)))
	}

	if len(result.Extracted) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, titleStyle.Render("Extracted:"))
		printFields(w, "  ", result.Extracted)
	}

	fmt.Fprintln(w, divider)
	status := string(result.Status)
	fmt.Fprintf(w, "%s %s %s\n",
		statusStyle(status).Render(status),
		valueStyle.Render(fmt.Sprintf("%d/%d goals", result.Succeeded(), result.GoalsTotal)),
		dimStyle.Render(fmt.Sprintf("in %s", formatDuration(result.Elapsed.Milliseconds()))))
	if result.Error != "" {
		fmt.Fprintf(w, "%s %s\n", errorStyle.Render("error:"), valueStyle.Render(result.Error))
	}
}
