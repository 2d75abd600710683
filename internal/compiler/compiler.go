// Package compiler turns an interpreted demonstration into a goal-oriented
// workflow: intents are labeled, focus and typing are merged, each step
// becomes a goal with ranked strategies and default success criteria, and
// recorded values are lifted into parameters.
package compiler

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/vinayprograms/agentkit/logging"
	"github.com/vinayprograms/agentkit/telemetry"
	"go.opentelemetry.io/otel/attribute"

	"github.com/vinayprograms/goalflow/internal/capability"
	"github.com/vinayprograms/goalflow/internal/trace"
	"github.com/vinayprograms/goalflow/internal/workflow"
)

// Defaults.
const (
	DefaultMergeWindow   = 2 * time.Second
	DefaultMinConfidence = 0.5
	DefaultCallTimeout   = 30 * time.Second
)

// CompilationError reports input the compiler cannot turn into a workflow.
type CompilationError struct {
	Reason string
}

func (e *CompilationError) Error() string {
	return "compilation failed: " + e.Reason
}

// Input is everything the compiler consumes.
type Input struct {
	Name            string
	SessionID       string
	Steps           []trace.Step
	Voice           *trace.VoiceContext
	Parameters      []trace.ParameterCandidate
	ExtractionHints map[string][]string
}

// FromTrace builds compiler input from an interpreted recording.
func FromTrace(t *trace.Trace) Input {
	return Input{
		Name:            t.Name,
		SessionID:       t.SessionID,
		Steps:           t.Steps,
		Voice:           t.Voice,
		Parameters:      t.Parameters,
		ExtractionHints: t.ExtractionHints,
	}
}

// Compiler compiles interpreted steps into workflows. Both collaborators
// are optional.
type Compiler struct {
	classifier    capability.Classifier
	enricher      capability.Enricher
	templater     capability.Templater
	mergeWindow   time.Duration
	minConfidence float64
	callTimeout   time.Duration
	logger        *logging.Logger
}

// Option configures a Compiler.
type Option func(*Compiler)

// WithClassifier sets the intent classifier.
func WithClassifier(c capability.Classifier) Option {
	return func(comp *Compiler) { comp.classifier = c }
}

// WithEnricher sets the vision enricher.
func WithEnricher(e capability.Enricher) Option {
	return func(comp *Compiler) { comp.enricher = e }
}

// WithTemplater sets the collaborator that templates text typed after an
// extraction. Without one, "Label: value" lines are matched to fields.
func WithTemplater(t capability.Templater) Option {
	return func(comp *Compiler) { comp.templater = t }
}

// WithMergeWindow sets the longest gap between a focus and the typing that
// follows it for the two to merge.
func WithMergeWindow(d time.Duration) Option {
	return func(comp *Compiler) {
		if d > 0 {
			comp.mergeWindow = d
		}
	}
}

// WithMinConfidence sets the parameter candidate confidence floor.
func WithMinConfidence(f float64) Option {
	return func(comp *Compiler) { comp.minConfidence = f }
}

// WithCallTimeout bounds each collaborator call.
func WithCallTimeout(d time.Duration) Option {
	return func(comp *Compiler) {
		if d > 0 {
			comp.callTimeout = d
		}
	}
}

// New creates a compiler.
func New(opts ...Option) *Compiler {
	c := &Compiler{
		mergeWindow:   DefaultMergeWindow,
		minConfidence: DefaultMinConfidence,
		callTimeout:   DefaultCallTimeout,
		logger:        logging.New().WithComponent("compiler"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compile produces a validated workflow from in. Collaborator failures only
// reduce what the compiler can infer; malformed input is a
// *CompilationError.
func (c *Compiler) Compile(ctx context.Context, in Input) (*workflow.Workflow, error) {
	start := time.Now()
	tracer := telemetry.GetTracer()
	ctx, span := tracer.StartSpan(ctx, "compile")
	defer span.End()
	span.SetAttributes(
		attribute.String("compile.session", in.SessionID),
		attribute.Int("compile.steps", len(in.Steps)),
		attribute.Bool("compile.voice", in.Voice != nil),
	)

	fail := func(err error) (*workflow.Workflow, error) {
		span.RecordError(err)
		c.logger.Error("compile failed", map[string]interface{}{"session": in.SessionID, "error": err.Error()})
		return nil, err
	}

	if err := checkInput(in); err != nil {
		return fail(err)
	}

	name := workflowName(in)
	c.logger.PhaseStart("ANALYZE", name, "")
	labeled := c.analyze(ctx, in)
	merged := merge(labeled, c.mergeWindow)
	c.logger.PhaseComplete("ANALYZE", name, "", time.Since(start), fmt.Sprintf("%d steps -> %d", len(in.Steps), len(merged)))

	drafts := c.synthesize(in, merged)
	enriched := c.enrich(ctx, in, drafts)
	c.applyTemplates(ctx, in, drafts)
	goals := consolidate(drafts)
	if len(goals) == 0 {
		return fail(&CompilationError{Reason: "no actionable steps"})
	}
	for i := range goals {
		goals[i].Sequence = i + 1
		goals[i].ID = fmt.Sprintf("goal-%03d", i+1)
	}

	wf := &workflow.Workflow{
		Version:        workflow.FormatVersion,
		Name:           name,
		SourceSession:  in.SessionID,
		Steps:          goals,
		VoiceAnalyzed:  in.Voice != nil,
		VisionEnriched: enriched,
	}
	if in.Voice != nil {
		wf.Description = in.Voice.TaskGoal
	}
	wf.Parameters = parameterize(wf.Steps, candidates(in, c.minConfidence))

	id, err := workflowID(wf)
	if err != nil {
		return fail(&CompilationError{Reason: err.Error()})
	}
	wf.ID = id

	if err := wf.Validate(); err != nil {
		return fail(&CompilationError{Reason: err.Error()})
	}

	span.SetAttributes(
		attribute.String("workflow.id", wf.ID),
		attribute.Int("workflow.goals", len(wf.Steps)),
		attribute.Int("workflow.parameters", len(wf.Parameters)),
	)
	c.logger.Info("compiled workflow", map[string]interface{}{
		"workflow":   wf.ID,
		"name":       wf.Name,
		"goals":      len(wf.Steps),
		"parameters": wf.ParameterNames(),
		"enriched":   enriched,
		"duration":   time.Since(start).String(),
	})
	return wf, nil
}

func checkInput(in Input) error {
	if len(in.Steps) == 0 {
		return &CompilationError{Reason: "empty step sequence"}
	}
	seen := make(map[string]bool, len(in.Steps))
	prevNumber := 0
	for i, s := range in.Steps {
		if s.ID == "" {
			return &CompilationError{Reason: fmt.Sprintf("step %d has no id", i+1)}
		}
		if seen[s.ID] {
			return &CompilationError{Reason: fmt.Sprintf("duplicate step id %q", s.ID)}
		}
		seen[s.ID] = true
		if s.End < s.Start {
			return &CompilationError{Reason: fmt.Sprintf("step %s ends before it starts", s.ID)}
		}
		if s.Number != 0 {
			if s.Number <= prevNumber {
				return &CompilationError{Reason: fmt.Sprintf("step %s is out of order", s.ID)}
			}
			prevNumber = s.Number
		}
	}
	return nil
}

func workflowName(in Input) string {
	switch {
	case in.Name != "":
		return in.Name
	case in.Voice != nil && in.Voice.TaskGoal != "":
		return in.Voice.TaskGoal
	case in.SessionID != "":
		return "recording " + in.SessionID
	}
	return "recorded workflow"
}

// workflowID derives a stable id from the workflow content so identical
// input compiles to an identical document.
func workflowID(wf *workflow.Workflow) (string, error) {
	data, err := json.Marshal(wf)
	if err != nil {
		return "", fmt.Errorf("failed to encode workflow: %w", err)
	}
	return uuid.NewSHA1(uuid.NameSpaceURL, data).String(), nil
}
