package executor

import (
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/vinayprograms/goalflow/internal/workflow"
)

// RunContext is the mutable state of one run. It is owned by the run that
// created it and must not be shared between runs.
type RunContext struct {
	RunID     string
	Bindings  map[string]string
	Extracted map[string]string
}

// NewRunContext copies bindings into a fresh context.
func NewRunContext(runID string, bindings map[string]string) *RunContext {
	if runID == "" {
		runID = uuid.NewString()
	}
	rc := &RunContext{
		RunID:     runID,
		Bindings:  make(map[string]string, len(bindings)+1),
		Extracted: make(map[string]string),
	}
	for k, v := range bindings {
		rc.Bindings[k] = v
	}
	return rc
}

// Merge adds extracted fields. Each field becomes a binding of the same name
// and extracted_content holds every field extracted so far as
// "name: value" lines.
func (rc *RunContext) Merge(extracted map[string]string) {
	if len(extracted) == 0 {
		return
	}
	for k, v := range extracted {
		rc.Extracted[k] = v
		rc.Bindings[k] = v
	}
	rc.Bindings[workflow.ExtractedContentBinding] = FormatExtracted(rc.Extracted)
}

// FormatExtracted renders fields as sorted "name: value" lines.
func FormatExtracted(fields map[string]string) string {
	names := make([]string, 0, len(fields))
	for k := range fields {
		names = append(names, k)
	}
	sort.Strings(names)
	lines := make([]string, len(names))
	for i, k := range names {
		lines[i] = k + ": " + fields[k]
	}
	return strings.Join(lines, "\n")
}

func copyMap(m map[string]string) map[string]string {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
