package workflow

import (
	"net/url"
	"regexp"
	"sort"
	"strings"
)

var placeholderPattern = regexp.MustCompile(`\{\{\s*([A-Za-z_][A-Za-z0-9_]*)\s*\}\}`)

// Placeholder formats a parameter name as a template reference.
func Placeholder(name string) string {
	return "{{" + name + "}}"
}

// Placeholders returns the distinct placeholder names referenced in s, in
// order of first appearance.
func Placeholders(s string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, m := range placeholderPattern.FindAllStringSubmatch(s, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			out = append(out, m[1])
		}
	}
	return out
}

// Substitute replaces {{name}} references with bound values. References
// without a binding are left untouched.
func Substitute(s string, bindings map[string]string) string {
	if len(bindings) == 0 {
		return s
	}
	return placeholderPattern.ReplaceAllStringFunc(s, func(ref string) string {
		name := placeholderPattern.FindStringSubmatch(ref)[1]
		if v, ok := bindings[name]; ok {
			return v
		}
		return ref
	})
}

// SubstituteURL is Substitute for URL templates. Values bound into the
// query or fragment are query-escaped, values in the path are path-escaped,
// and a placeholder that is the whole URL takes its value verbatim.
func SubstituteURL(s string, bindings map[string]string) string {
	if len(bindings) == 0 {
		return s
	}
	if m := placeholderPattern.FindStringSubmatch(strings.TrimSpace(s)); m != nil && m[0] == strings.TrimSpace(s) {
		if v, ok := bindings[m[1]]; ok {
			return v
		}
		return s
	}
	query := strings.IndexAny(s, "?#")
	return replaceIndexed(s, func(start int, name string) (string, bool) {
		v, ok := bindings[name]
		if !ok {
			return "", false
		}
		if query >= 0 && start > query {
			return url.QueryEscape(v), true
		}
		return url.PathEscape(v), true
	})
}

func replaceIndexed(s string, value func(start int, name string) (string, bool)) string {
	var b strings.Builder
	last := 0
	for _, loc := range placeholderPattern.FindAllStringSubmatchIndex(s, -1) {
		b.WriteString(s[last:loc[0]])
		if v, ok := value(loc[0], s[loc[2]:loc[3]]); ok {
			b.WriteString(v)
		} else {
			b.WriteString(s[loc[0]:loc[1]])
		}
		last = loc[1]
	}
	b.WriteString(s[last:])
	return b.String()
}

// Placeholders returns the sorted set of names referenced anywhere in the
// goal: description, agent prompt, strategy fields and criteria.
func (g GoalStep) Placeholders() []string {
	set := make(map[string]bool)
	collect := func(s string) string {
		for _, name := range Placeholders(s) {
			set[name] = true
		}
		return s
	}
	collect(g.Description)
	if g.AgentPrompt != nil {
		collect(*g.AgentPrompt)
	}
	for _, s := range g.Strategies {
		s.MapStrings(collect)
	}
	g.Criteria.MapStrings(collect)
	return sortedKeys(set)
}

// Substitute returns a copy of the goal with every placeholder that has a
// binding replaced by its value.
func (g GoalStep) Substitute(bindings map[string]string) GoalStep {
	sub := func(s string) string { return Substitute(s, bindings) }
	g.Description = sub(g.Description)
	g.AgentPrompt = mapPtr(g.AgentPrompt, sub)
	strategies := make([]Strategy, len(g.Strategies))
	for i, s := range g.Strategies {
		if nav, ok := s.Mechanism.(Navigate); ok {
			nav.URL = SubstituteURL(nav.URL, bindings)
			s.Mechanism = nav
			strategies[i] = s
			continue
		}
		strategies[i] = s.MapStrings(sub)
	}
	g.Strategies = strategies
	g.Criteria = g.Criteria.MapStrings(sub)
	return g
}

// Unbound returns the placeholders still present in the strategy's fields.
func (s Strategy) Unbound() []string {
	var out []string
	seen := make(map[string]bool)
	s.MapStrings(func(v string) string {
		for _, name := range Placeholders(v) {
			if !seen[name] {
				seen[name] = true
				out = append(out, name)
			}
		}
		return v
	})
	return out
}

// Placeholders returns every placeholder referenced by the workflow.
func (w *Workflow) Placeholders() []string {
	set := make(map[string]bool)
	for _, g := range w.Steps {
		for _, name := range g.Placeholders() {
			set[name] = true
		}
	}
	return sortedKeys(set)
}

// RuntimeBindings returns the names that extract goals sequenced before seq
// will have bound by the time the goal at seq runs.
func (w *Workflow) RuntimeBindings(seq int) map[string]bool {
	out := make(map[string]bool)
	for _, g := range w.Steps {
		if g.Sequence >= seq || g.Type != GoalExtract {
			continue
		}
		out[ExtractedContentBinding] = true
		for name := range g.ExtractionSchema {
			out[name] = true
		}
	}
	return out
}

// RequiredBindings returns the placeholders a caller must bind before a
// run: everything referenced that no earlier extract goal produces.
func (w *Workflow) RequiredBindings() []string {
	set := make(map[string]bool)
	for _, g := range w.Steps {
		runtime := w.RuntimeBindings(g.Sequence)
		for _, name := range g.Placeholders() {
			if !runtime[name] {
				set[name] = true
			}
		}
	}
	return sortedKeys(set)
}

func sortedKeys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
