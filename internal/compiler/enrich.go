package compiler

import (
	"context"
	"errors"

	"github.com/vinayprograms/goalflow/internal/capability"
	"github.com/vinayprograms/goalflow/internal/workflow"
)

// enrich asks the vision collaborator for a visual strategy on element
// goals and a schema on extract goals, then assigns default criteria.
// It reports whether any enrichment was applied.
func (c *Compiler) enrich(ctx context.Context, in Input, drafts []draft) bool {
	defer assignCriteria(drafts, in.Voice)
	if c.enricher == nil {
		return false
	}

	enriched := false
	for i := range drafts {
		d := &drafts[i]
		var err error
		switch d.goal.Type {
		case workflow.GoalSelect, workflow.GoalWrite:
			if hasKind(d.goal, workflow.KindVisual) {
				continue
			}
			var ok bool
			ok, err = c.addVisual(ctx, d)
			enriched = enriched || ok
		case workflow.GoalExtract:
			var ok bool
			ok, err = c.proposeSchema(ctx, in, d)
			enriched = enriched || ok
		default:
			continue
		}
		if errors.Is(err, capability.ErrUnavailable) {
			c.logger.Warn("enricher unavailable, skipping vision enrichment", map[string]interface{}{"error": err.Error()})
			break
		}
		if err != nil {
			c.logger.Debug("enrichment failed", map[string]interface{}{"step": d.src.step.ID, "error": err.Error()})
		}
	}
	return enriched
}

func (c *Compiler) addVisual(ctx context.Context, d *draft) (bool, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()
	desc, err := c.enricher.DescribeTarget(callCtx, d.src.step)
	if err != nil || desc == "" {
		return false, err
	}

	suffix, input, submit := "_click", (*string)(nil), false
	if d.goal.Type == workflow.GoalWrite {
		suffix, submit = "_type", d.src.step.Submitted
		input = workflow.StringPtr(d.src.step.TypedText)
	}
	d.goal.Strategies = insertByPriority(d.goal.Strategies, visualStrategy(desc, suffix, input, submit))
	return true, nil
}

func (c *Compiler) proposeSchema(ctx context.Context, in Input, d *draft) (bool, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()
	schema, err := c.enricher.ProposeSchema(callCtx, d.src.step, extractionHints(in, d.src))
	if err != nil || len(schema) == 0 {
		return false, err
	}
	clean := make(map[string]workflow.ExtractionField, len(schema))
	for name, f := range schema {
		if n := snakeName(name); n != "" {
			clean[n] = f
		}
	}
	if len(clean) == 0 {
		return false, nil
	}
	d.goal.ExtractionSchema = clean
	d.goal.Description = describeExtract(d.goal, d.src.step)
	return true, nil
}

func hasKind(g workflow.GoalStep, k workflow.Kind) bool {
	for _, s := range g.Strategies {
		if s.Kind() == k {
			return true
		}
	}
	return false
}

// insertByPriority places s after every strategy of equal or higher
// priority, keeping the list in descending order.
func insertByPriority(list []workflow.Strategy, s workflow.Strategy) []workflow.Strategy {
	at := len(list)
	for i, existing := range list {
		if existing.Priority < s.Priority {
			at = i
			break
		}
	}
	out := make([]workflow.Strategy, 0, len(list)+1)
	out = append(out, list[:at]...)
	out = append(out, s)
	return append(out, list[at:]...)
}
