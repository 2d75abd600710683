// Package evaluator decides whether a goal's success criteria hold on the
// observed surface.
package evaluator

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/vinayprograms/goalflow/internal/platform"
	"github.com/vinayprograms/goalflow/internal/workflow"
)

// Observer returns the current surface state.
type Observer interface {
	Observe(ctx context.Context) (platform.Snapshot, error)
}

// Result is the outcome of one verification.
type Result struct {
	Passed        bool
	TimedOut      bool
	Unmet         []string
	ObservedError string
	Err           error
	Polls         int
	Elapsed       time.Duration
	Snapshot      platform.Snapshot
}

// Check evaluates every state predicate in c against current. baseline is
// the state before the strategy acted; extracted is the data the strategy
// produced. timeout_success is not a state predicate and is ignored here.
func Check(c workflow.SuccessCriteria, baseline, current platform.Snapshot, extracted map[string]string) (bool, []string) {
	var unmet []string
	if c.URLContains != nil && !strings.Contains(strings.ToLower(current.URL), strings.ToLower(*c.URLContains)) {
		unmet = append(unmet, "url_contains")
	}
	if c.URLPattern != nil {
		re, err := regexp.Compile(*c.URLPattern)
		if err != nil || !re.MatchString(current.URL) {
			unmet = append(unmet, "url_pattern")
		}
	}
	if c.URLChanged && (current.URL == "" || current.URL == baseline.URL) {
		unmet = append(unmet, "url_changed")
	}
	if c.PageContainsText != nil && !strings.Contains(strings.ToLower(current.VisibleText), strings.ToLower(*c.PageContainsText)) {
		unmet = append(unmet, "page_contains_text")
	}
	if c.ElementVisible != nil && !current.HasElement(*c.ElementVisible) {
		unmet = append(unmet, "element_visible")
	}
	if c.AppActive != nil && !strings.EqualFold(current.App, *c.AppActive) {
		unmet = append(unmet, "app_active")
	}
	if c.MinExtractedCount != nil && CountExtracted(extracted) < *c.MinExtractedCount {
		unmet = append(unmet, "min_extracted_count")
	}
	return len(unmet) == 0, unmet
}

// CountExtracted counts fields with a non-blank value.
func CountExtracted(extracted map[string]string) int {
	n := 0
	for _, v := range extracted {
		if strings.TrimSpace(v) != "" {
			n++
		}
	}
	return n
}

func needsSurface(c workflow.SuccessCriteria) bool {
	return c.URLContains != nil || c.URLPattern != nil || c.URLChanged ||
		c.PageContainsText != nil || c.ElementVisible != nil || c.AppActive != nil ||
		c.TimeoutSuccess
}

// Evaluator polls an Observer until criteria hold or the budget runs out.
type Evaluator struct {
	Budget       time.Duration
	PollInterval time.Duration
	CallTimeout  time.Duration
}

// New creates an evaluator.
func New(budget, poll, callTimeout time.Duration) *Evaluator {
	if poll <= 0 {
		poll = 250 * time.Millisecond
	}
	return &Evaluator{Budget: budget, PollInterval: poll, CallTimeout: callTimeout}
}

// Await verifies c after a strategy acted.
//
// An empty criteria set passes without observing. With timeout_success,
// reaching the budget without an observed error passes and any observed
// error fails at once. Otherwise reaching the budget with predicates unmet
// fails.
func (e *Evaluator) Await(ctx context.Context, c workflow.SuccessCriteria, baseline platform.Snapshot, obs Observer, extracted map[string]string) Result {
	start := time.Now()
	if c.IsEmpty() {
		return Result{Passed: true}
	}

	if !needsSurface(c) {
		ok, unmet := Check(c, baseline, platform.Snapshot{}, extracted)
		return Result{Passed: ok, Unmet: unmet, Elapsed: time.Since(start)}
	}

	deadline := start.Add(e.Budget)
	var res Result
	for {
		snap, err := e.observe(ctx, obs)
		res.Polls++
		if err != nil {
			if ctx.Err() != nil {
				res.Err = ctx.Err()
				res.Elapsed = time.Since(start)
				return res
			}
			res.Err = err
			if c.TimeoutSuccess {
				res.Elapsed = time.Since(start)
				return res
			}
		} else {
			res.Err = nil
			res.Snapshot = snap
			if len(snap.Errors) > 0 {
				res.ObservedError = snap.Errors[0]
				if c.TimeoutSuccess {
					res.Elapsed = time.Since(start)
					return res
				}
			}
			if c.HasStatePredicates() {
				ok, unmet := Check(c, baseline, snap, extracted)
				res.Unmet = unmet
				if ok {
					res.Passed = true
					res.Elapsed = time.Since(start)
					return res
				}
			}
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}
		wait := e.PollInterval
		if wait > remaining {
			wait = remaining
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			res.Err = ctx.Err()
			res.Elapsed = time.Since(start)
			return res
		case <-timer.C:
		}
	}

	res.TimedOut = true
	res.Elapsed = time.Since(start)
	if c.TimeoutSuccess && res.Err == nil && res.ObservedError == "" {
		res.Passed = true
		res.Unmet = nil
	}
	return res
}

func (e *Evaluator) observe(ctx context.Context, obs Observer) (platform.Snapshot, error) {
	if e.CallTimeout <= 0 {
		return obs.Observe(ctx)
	}
	callCtx, cancel := context.WithTimeout(ctx, e.CallTimeout)
	defer cancel()
	return obs.Observe(callCtx)
}
