package replay

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/vinayprograms/goalflow/internal/session"
)

// Stats holds aggregate statistics for a session.
type Stats struct {
	TotalDurationMs int64

	// Per-goal durations, keyed by goal id
	GoalDurations map[string]int64
	GoalsOK       int
	GoalsFailed   int

	Attempts          int
	AttemptsByOutcome map[string]int
	// Strategies that completed a goal, with counts
	StrategyWins map[string]int

	SafetyBlocks int
	Fallbacks    int
	Warnings     int
}

// ComputeStats calculates aggregate statistics from session events.
func ComputeStats(sess *session.Session) *Stats {
	stats := &Stats{
		GoalDurations:     make(map[string]int64),
		AttemptsByOutcome: make(map[string]int),
		StrategyWins:      make(map[string]int),
	}

	var firstEvent, lastEvent time.Time
	for _, event := range sess.Events {
		if firstEvent.IsZero() || event.Timestamp.Before(firstEvent) {
			firstEvent = event.Timestamp
		}
		if event.Timestamp.After(lastEvent) {
			lastEvent = event.Timestamp
		}

		switch event.Type {
		case session.EventWorkflowEnd:
			stats.TotalDurationMs = event.DurationMs
		case session.EventGoalEnd:
			stats.GoalDurations[event.Goal] = event.DurationMs
			if event.Success != nil && *event.Success {
				stats.GoalsOK++
				if event.Strategy != "" {
					stats.StrategyWins[event.Strategy]++
				}
			} else {
				stats.GoalsFailed++
			}
		case session.EventAttempt:
			stats.Attempts++
			stats.AttemptsByOutcome[event.Outcome]++
		case session.EventSafetyBlock:
			stats.SafetyBlocks++
		case session.EventFallback:
			stats.Fallbacks++
		case session.EventWarning:
			stats.Warnings++
		}
	}

	// Runs that never finished have no workflow_end.
	if stats.TotalDurationMs == 0 && !firstEvent.IsZero() {
		stats.TotalDurationMs = lastEvent.Sub(firstEvent).Milliseconds()
	}
	return stats
}

// PrintStats outputs the statistics to the writer.
func PrintStats(w io.Writer, stats *Stats) {
	headerStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15"))

	fmt.Fprintln(w)
	fmt.Fprintln(w, headerStyle.Render("RUN STATISTICS"))
	fmt.Fprintln(w, divider)

	fmt.Fprintf(w, "%s %s\n", labelStyle.Render("Total Duration:"), valueStyle.Render(formatDuration(stats.TotalDurationMs)))
	fmt.Fprintf(w, "%s %s\n", labelStyle.Render("Goals:         "),
		valueStyle.Render(fmt.Sprintf("%d ok, %d failed", stats.GoalsOK, stats.GoalsFailed)))
	fmt.Fprintln(w)

	if len(stats.GoalDurations) > 0 {
		fmt.Fprintln(w, headerStyle.Render("Goal Durations:"))
		var goals []string
		for g := range stats.GoalDurations {
			goals = append(goals, g)
		}
		sort.Strings(goals)
		for _, g := range goals {
			fmt.Fprintf(w, "  %s %s\n", labelStyle.Render(g+":"), valueStyle.Render(formatDuration(stats.GoalDurations[g])))
		}
		fmt.Fprintln(w)
	}

	if stats.Attempts > 0 {
		fmt.Fprintln(w, headerStyle.Render("Attempts:"))
		fmt.Fprintf(w, "  %s %s\n", labelStyle.Render("Total:"), valueStyle.Render(fmt.Sprintf("%d", stats.Attempts)))
		for _, outcome := range sortedCounts(stats.AttemptsByOutcome) {
			fmt.Fprintf(w, "  %s %s\n", labelStyle.Render(outcome+":"),
				outcomeStyle(outcome).Render(fmt.Sprintf("%d", stats.AttemptsByOutcome[outcome])))
		}
		fmt.Fprintln(w)
	}

	if len(stats.StrategyWins) > 0 {
		fmt.Fprintln(w, headerStyle.Render("Winning Strategies:"))
		for _, name := range sortedCounts(stats.StrategyWins) {
			fmt.Fprintf(w, "  %s %s\n", strategyStyle.Render(name+":"), valueStyle.Render(fmt.Sprintf("%d", stats.StrategyWins[name])))
		}
		fmt.Fprintln(w)
	}

	if stats.SafetyBlocks > 0 || stats.Fallbacks > 0 || stats.Warnings > 0 {
		if stats.SafetyBlocks > 0 {
			fmt.Fprintf(w, "%s %s\n", labelStyle.Render("Safety blocks:  "), safetyStyle.Render(fmt.Sprintf("%d", stats.SafetyBlocks)))
		}
		if stats.Fallbacks > 0 {
			fmt.Fprintf(w, "%s %s\n", labelStyle.Render("Agent fallbacks:"), agentStyle.Render(fmt.Sprintf("%d", stats.Fallbacks)))
		}
		if stats.Warnings > 0 {
			fmt.Fprintf(w, "%s %s\n", labelStyle.Render("Warnings:       "), warnStyle.Render(fmt.Sprintf("%d", stats.Warnings)))
		}
		fmt.Fprintln(w)
	}
}

// sortedCounts orders keys by count, then name.
func sortedCounts(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if m[keys[i]] != m[keys[j]] {
			return m[keys[i]] > m[keys[j]]
		}
		return keys[i] < keys[j]
	})
	return keys
}

// formatDuration formats milliseconds as human-readable duration.
func formatDuration(ms int64) string {
	if ms < 1000 {
		return fmt.Sprintf("%dms", ms)
	}
	if ms < 60000 {
		return fmt.Sprintf("%.2fs", float64(ms)/1000)
	}
	mins := ms / 60000
	secs := (ms % 60000) / 1000
	return fmt.Sprintf("%dm%ds", mins, secs)
}
