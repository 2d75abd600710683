package replay

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/vinayprograms/goalflow/internal/session"
)

// Replayer reads and formats session events for forensic analysis.
type Replayer struct {
	output         io.Writer
	verbosity      int // 0=normal, 1=verbose (-v), 2=very verbose (-vv)
	maxContentSize int // Maximum size for Content fields (0 = unlimited)
}

// ReplayerOption configures a Replayer.
type ReplayerOption func(*Replayer)

// WithMaxContentSize limits Content field size to avoid OOM on large sessions.
func WithMaxContentSize(size int) ReplayerOption {
	return func(r *Replayer) {
		r.maxContentSize = size
	}
}

// New creates a new Replayer.
func New(output io.Writer, verbosity int, opts ...ReplayerOption) *Replayer {
	r := &Replayer{
		output:         output,
		verbosity:      verbosity,
		maxContentSize: 50 * 1024,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ReplayFile loads and replays a session from a file.
func (r *Replayer) ReplayFile(path string) error {
	sess, err := r.load(path)
	if err != nil {
		return err
	}
	return r.Replay(sess)
}

// ReplayFileInteractive loads and replays with the interactive pager.
func (r *Replayer) ReplayFileInteractive(path string) error {
	content, sess, err := r.render(path)
	if err != nil {
		return err
	}
	return NewPager(fmt.Sprintf("Run: %s", sess.ID)).Run(content)
}

// ReplayFileLive replays with the pager and re-renders whenever the file
// changes, so a run can be followed while it executes.
func (r *Replayer) ReplayFileLive(path string) error {
	sess, err := r.load(path)
	if err != nil {
		return err
	}
	renderFunc := func() (string, error) {
		content, _, err := r.render(path)
		return content, err
	}
	return NewPager(fmt.Sprintf("Run: %s (LIVE)", sess.ID)).RunLive(path, renderFunc)
}

// render replays into a string.
func (r *Replayer) render(path string) (string, *session.Session, error) {
	sess, err := r.load(path)
	if err != nil {
		return "", nil, err
	}
	var buf strings.Builder
	sub := *r
	sub.output = &buf
	if err := sub.Replay(sess); err != nil {
		return "", nil, err
	}
	return buf.String(), sess, nil
}

func (r *Replayer) load(path string) (*session.Session, error) {
	sess, err := session.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	if r.maxContentSize > 0 {
		for i := range sess.Events {
			if n := len(sess.Events[i].Content); n > r.maxContentSize {
				sess.Events[i].Content = sess.Events[i].Content[:r.maxContentSize] +
					fmt.Sprintf("\n... [truncated, %d bytes total]", n)
			}
		}
	}
	return sess, nil
}

// Replay outputs a formatted timeline of session events.
func (r *Replayer) Replay(sess *session.Session) error {
	r.printHeader(sess)
	r.printTimeline(sess)
	r.printSummary(sess)
	return nil
}

func (r *Replayer) printHeader(sess *session.Session) {
	fmt.Fprintln(r.output)
	fmt.Fprintf(r.output, "%s %s\n", titleStyle.Render("RUN"), valueStyle.Render(sess.ID))
	fmt.Fprintln(r.output, divider)
	fmt.Fprintf(r.output, "%s %s\n", labelStyle.Render("Workflow:"), valueStyle.Render(sess.WorkflowName))
	if sess.WorkflowID != "" {
		fmt.Fprintf(r.output, "%s %s\n", labelStyle.Render("ID:      "), dimStyle.Render(sess.WorkflowID))
	}
	fmt.Fprintf(r.output, "%s %s\n", labelStyle.Render("Status:  "), statusStyle(sess.Status).Render(sess.Status))
	fmt.Fprintf(r.output, "%s %s\n", labelStyle.Render("Started: "), valueStyle.Render(sess.CreatedAt.Format(time.RFC3339)))
	if len(sess.Bindings) > 0 {
		fmt.Fprintf(r.output, "%s %s\n", labelStyle.Render("Inputs:  "), valueStyle.Render(formatMap(sess.Bindings)))
	}
	fmt.Fprintln(r.output)
}

func (r *Replayer) printTimeline(sess *session.Session) {
	fmt.Fprintf(r.output, "%s %s\n", titleStyle.Render("TIMELINE"), dimStyle.Render(fmt.Sprintf("(%d events)", len(sess.Events))))
	fmt.Fprintln(r.output, divider)

	var lastGoal string
	for i := range sess.Events {
		r.formatEvent(i+1, &sess.Events[i], &lastGoal)
	}
}

func (r *Replayer) printSummary(sess *session.Session) {
	fmt.Fprintln(r.output)
	fmt.Fprintln(r.output, divider)

	switch sess.Status {
	case session.StatusComplete:
		fmt.Fprintln(r.output, successStyle.Render("COMPLETED"))
	case session.StatusFailed:
		fmt.Fprintf(r.output, "%s %s\n", errorStyle.Render("FAILED:"), valueStyle.Render(sess.Error))
	case session.StatusCancelled:
		fmt.Fprintln(r.output, warnStyle.Render("CANCELLED"))
	default:
		fmt.Fprintln(r.output, warnStyle.Render("RUNNING"))
	}
	if len(sess.Extracted) > 0 {
		fmt.Fprintln(r.output)
		fmt.Fprintln(r.output, titleStyle.Render("Extracted:"))
		printFields(r.output, "  ", sess.Extracted)
	}

	PrintStats(r.output, ComputeStats(sess))
}

func formatMap(m map[string]string) string {
	keys := sortedKeys(m)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + m[k]
	}
	return strings.Join(parts, ", ")
}

func printFields(w io.Writer, prefix string, m map[string]string) {
	for _, k := range sortedKeys(m) {
		fmt.Fprintf(w, "%s%s %s\n", prefix, labelStyle.Render(k+":"), valueStyle.Render(truncate(m[k], 200)))
	}
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func truncate(s string, maxLen int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
