// Package replay renders recorded workflow runs for forensic review.
package replay

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Color scheme: each concern has a distinct, consistent color.
var (
	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("8")) // Gray - timestamps, metadata

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("8"))

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("15"))

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15"))

	flowStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("15"))

	// Strategies - Blue
	strategyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("12"))

	// Safety gate - Cyan
	safetyStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("14"))

	// Success criteria - Yellow
	verifyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("11"))

	// Agent fallback - Magenta
	agentStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("13"))

	agentDimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("5"))

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("10"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9"))

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("11"))

	seqStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("8")).
			Width(5).
			Align(lipgloss.Right)

	timeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("8"))

	blockHeaderStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("8")).
				Italic(true)

	divider = lipgloss.NewStyle().
		Foreground(lipgloss.Color("8")).
		Render(strings.Repeat("━", 60))
)

// indent lines up continuation rows under the event column.
const indent = "      │          │   "

func statusStyle(status string) lipgloss.Style {
	switch status {
	case "complete":
		return successStyle
	case "failed":
		return errorStyle
	case "cancelled", "running":
		return warnStyle
	default:
		return valueStyle
	}
}

func outcomeStyle(outcome string) lipgloss.Style {
	switch outcome {
	case "succeeded":
		return successStyle
	case "blocked":
		return safetyStyle
	case "criteria_unmet":
		return verifyStyle
	case "unavailable":
		return warnStyle
	default:
		return errorStyle
	}
}
