package replay

import (
	"fmt"
	"strings"

	"github.com/vinayprograms/goalflow/internal/session"
)

// formatEvent formats a single event for display.
func (r *Replayer) formatEvent(seq int, event *session.Event, lastGoal *string) {
	// Show goal transitions
	if event.Goal != "" && event.Goal != *lastGoal {
		fmt.Fprintln(r.output)
		label := event.Goal
		if event.Sequence > 0 {
			label = fmt.Sprintf("#%d %s", event.Sequence, event.Goal)
		}
		fmt.Fprintf(r.output, "%s %s\n", flowStyle.Render("GOAL:"), valueStyle.Render(label))
		fmt.Fprintln(r.output)
		*lastGoal = event.Goal
	}

	ts := timeStyle.Render(event.Timestamp.Format("15:04:05"))
	seqNum := seqStyle.Render(fmt.Sprintf("%d", seq))

	switch event.Type {
	case session.EventWorkflowStart:
		r.row(seqNum, ts, flowStyle.Render("WORKFLOW START"), dimStyle.Render(event.Content))
	case session.EventWorkflowEnd:
		r.fmtWorkflowEnd(seqNum, ts, event)
	case session.EventGoalStart:
		r.row(seqNum, ts, flowStyle.Render("GOAL START"), valueStyle.Render(event.Content))
	case session.EventGoalEnd:
		r.fmtGoalEnd(seqNum, ts, event)
	case session.EventAttempt:
		r.fmtAttempt(seqNum, ts, event)
	case session.EventSafetyBlock:
		r.fmtSafetyBlock(seqNum, ts, event)
	case session.EventVerify:
		r.fmtVerify(seqNum, ts, event)
	case session.EventFallback:
		r.fmtFallback(seqNum, ts, event)
	case session.EventWarning:
		r.row(seqNum, ts, warnStyle.Render("WARNING"), valueStyle.Render(event.Content))
	default:
		r.row(seqNum, ts, dimStyle.Render(event.Type))
	}
}

func (r *Replayer) row(seqNum, ts string, parts ...string) {
	var nonEmpty []string
	for _, p := range parts {
		if p != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	fmt.Fprintf(r.output, "%s │ %s │ %s\n", seqNum, ts, strings.Join(nonEmpty, " "))
}

func (r *Replayer) fmtWorkflowEnd(seqNum, ts string, event *session.Event) {
	status := event.Content
	if status == "" {
		status = "unknown"
	}
	r.row(seqNum, ts, flowStyle.Render("WORKFLOW END"),
		statusStyle(status).Render(status),
		dimStyle.Render(fmt.Sprintf("(%s)", formatDuration(event.DurationMs))))
	if event.Error != "" {
		r.printError(event.Error)
	}
}

func (r *Replayer) fmtGoalEnd(seqNum, ts string, event *session.Event) {
	result := successStyle.Render("ok")
	if event.Success == nil || !*event.Success {
		result = errorStyle.Render("failed")
		if event.ErrorKind != "" {
			result += " " + errorStyle.Render("("+event.ErrorKind+")")
		}
	}
	var via string
	if event.Strategy != "" {
		via = dimStyle.Render("via") + " " + strategyStyle.Render(event.Strategy)
	}
	r.row(seqNum, ts, flowStyle.Render("GOAL END"), result, via,
		dimStyle.Render(fmt.Sprintf("(%s)", formatDuration(event.DurationMs))))
	if event.Error != "" && r.verbosity >= 1 {
		r.printError(event.Error)
	}
	if event.Meta != nil && len(event.Meta.Extracted) > 0 {
		printFields(r.output, indent, event.Meta.Extracted)
	}
}

func (r *Replayer) fmtAttempt(seqNum, ts string, event *session.Event) {
	style := strategyStyle
	if event.Strategy == "agent-fallback" {
		style = agentStyle
	}
	r.row(seqNum, ts, style.Render("ATTEMPT"),
		valueStyle.Render(event.Strategy),
		dimStyle.Render(fmt.Sprintf("p%d", event.Priority)),
		dimStyle.Render("→"),
		outcomeStyle(event.Outcome).Render(event.Outcome),
		dimStyle.Render(fmt.Sprintf("(%s)", formatDuration(event.DurationMs))))

	if event.Error != "" && event.Outcome != "succeeded" {
		fmt.Fprintf(r.output, "%s%s\n", indent, dimStyle.Render(truncate(event.Error, 160)))
	}
	if r.verbosity >= 1 && event.Meta != nil {
		r.printCriteria(event.Meta)
	}
}

func (r *Replayer) fmtSafetyBlock(seqNum, ts string, event *session.Event) {
	var action, target, level, reason string
	if m := event.Meta; m != nil {
		action, target, level, reason = m.Action, m.Target, m.Level, m.Reason
	}
	r.row(seqNum, ts, safetyStyle.Render("SAFETY BLOCK"),
		valueStyle.Render(event.Strategy),
		dimStyle.Render(action),
		valueStyle.Render(truncate(target, 80)))
	if reason != "" {
		fmt.Fprintf(r.output, "%s%s %s\n", indent, labelStyle.Render("reason:"), safetyStyle.Render(reason))
	}
	if level != "" && r.verbosity >= 1 {
		fmt.Fprintf(r.output, "%s%s %s\n", indent, labelStyle.Render("level:"), dimStyle.Render(level))
	}
}

func (r *Replayer) fmtVerify(seqNum, ts string, event *session.Event) {
	result := successStyle.Render("met")
	if event.Success != nil && !*event.Success {
		result = verifyStyle.Render("unmet")
	}
	r.row(seqNum, ts, verifyStyle.Render("VERIFY"), valueStyle.Render(event.Strategy), result)
	if event.Meta != nil {
		r.printCriteria(event.Meta)
	}
}

func (r *Replayer) fmtFallback(seqNum, ts string, event *session.Event) {
	r.row(seqNum, ts, agentStyle.Render("AGENT FALLBACK"))
	if event.Meta == nil || event.Meta.Prompt == "" {
		return
	}
	if r.verbosity >= 1 {
		fmt.Fprintf(r.output, "%s%s\n", indent, blockHeaderStyle.Render("── PROMPT ──"))
		for _, line := range strings.Split(event.Meta.Prompt, "\n") {
			fmt.Fprintf(r.output, "%s%s\n", indent, agentDimStyle.Render(line))
		}
		return
	}
	fmt.Fprintf(r.output, "%s%s\n", indent, agentDimStyle.Render(truncate(event.Meta.Prompt, 100)))
}

func (r *Replayer) printCriteria(meta *session.EventMeta) {
	if len(meta.Criteria) > 0 {
		fmt.Fprintf(r.output, "%s%s %s\n", indent, labelStyle.Render("criteria:"), dimStyle.Render(strings.Join(meta.Criteria, ", ")))
	}
	if len(meta.Unmet) > 0 {
		fmt.Fprintf(r.output, "%s%s %s\n", indent, labelStyle.Render("unmet:"), verifyStyle.Render(strings.Join(meta.Unmet, ", ")))
	}
	if meta.Polls > 0 && r.verbosity >= 2 {
		fmt.Fprintf(r.output, "%s%s %d\n", indent, labelStyle.Render("polls:"), meta.Polls)
	}
	if meta.Observed != "" {
		fmt.Fprintf(r.output, "%s%s %s\n", indent, labelStyle.Render("screen error:"), errorStyle.Render(meta.Observed))
	}
}

func (r *Replayer) printError(err string) {
	fmt.Fprintf(r.output, "%s%s\n", indent, errorStyle.Render(err))
}
