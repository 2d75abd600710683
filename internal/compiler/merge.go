package compiler

import "time"

// merge folds a focus or click into the typing that follows it on the same
// target. No-op steps in between are skipped and never block a merge.
// Remaining no-ops are dropped.
func merge(steps []analyzed, window time.Duration) []analyzed {
	var out []analyzed
	for i := 0; i < len(steps); i++ {
		cur := steps[i]
		if cur.intent == IntentNoop {
			continue
		}
		if cur.intent == IntentFocus || cur.intent == IntentClick {
			if j := nextActionable(steps, i); j >= 0 && mergeable(cur, steps[j], window) {
				merged := steps[j]
				if merged.step.Target == nil {
					merged.step.Target = cur.step.Element()
				}
				merged.step.Start = cur.step.Start
				merged.sources = append(append([]string(nil), cur.sources...), merged.sources...)
				out = append(out, merged)
				i = j
				continue
			}
		}
		out = append(out, cur)
	}
	return out
}

func nextActionable(steps []analyzed, i int) int {
	for j := i + 1; j < len(steps); j++ {
		if steps[j].intent != IntentNoop {
			return j
		}
	}
	return -1
}

// mergeable requires typing on the same element within the window. Typing
// with no recorded element goes to whatever has focus, which is the
// clicked element when both happen in the same app.
func mergeable(focus, typing analyzed, window time.Duration) bool {
	if typing.intent != IntentType && typing.intent != IntentSearch {
		return false
	}
	gap := typing.step.Start - focus.step.End
	if gap < 0 || gap > window.Seconds() {
		return false
	}
	focusKey := focus.step.Element().Key()
	if focusKey == "" {
		return false
	}
	if typing.step.Target != nil && typing.step.Target.Key() != "" {
		return typing.step.Target.Key() == focusKey
	}
	return focus.step.App == typing.step.App
}
