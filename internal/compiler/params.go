package compiler

import (
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strings"

	"github.com/vinayprograms/goalflow/internal/workflow"
)

// candidate is a recorded value that may become a parameter.
type candidate struct {
	name  string
	value string
}

// candidates collects parameter candidates above the confidence floor, plus
// voice hints that name a value. Longer values are tried first so a value
// that contains another is not split by the shorter one.
func candidates(in Input, minConfidence float64) []candidate {
	var out []candidate
	seen := make(map[string]bool)
	add := func(name, value string) {
		value = strings.TrimSpace(value)
		key := strings.ToLower(value)
		if len(value) < 2 || seen[key] {
			return
		}
		seen[key] = true
		out = append(out, candidate{name: name, value: value})
	}
	for _, p := range in.Parameters {
		if p.Confidence >= minConfidence {
			add(p.Name, p.Value)
		}
	}
	if in.Voice != nil {
		for _, h := range in.Voice.ParameterHints {
			add(h.Name, h.Value)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return len(out[i].value) > len(out[j].value)
	})
	return out
}

// parameterize rewrites literal occurrences of each candidate into a named
// placeholder and returns the parameters that were actually referenced,
// with their recorded values as defaults.
func parameterize(goals []workflow.GoalStep, cands []candidate) map[string]string {
	params := make(map[string]string)
	for _, c := range cands {
		name := uniqueName(snakeName(c.name), params)
		placeholder := workflow.Placeholder(name)
		text := literalPattern(c.value, c.value)
		link := literalPattern(c.value, c.value, url.QueryEscape(c.value), url.PathEscape(c.value))

		used := false
		replacer := func(pattern *regexp.Regexp) func(string) string {
			return func(s string) string {
				out, n := replaceLiteral(s, pattern, placeholder)
				used = used || n > 0
				return out
			}
		}
		for i := range goals {
			goals[i] = rewriteGoal(goals[i], replacer(text), replacer(link))
		}
		if used {
			params[name] = c.value
		}
	}
	return params
}

// literalPattern matches any of the spellings of value case-insensitively.
// Ends of value that are word characters must sit on a word boundary, so
// "cat" does not match inside "Category".
func literalPattern(value string, spellings ...string) *regexp.Regexp {
	seen := make(map[string]bool)
	var alts []string
	for _, v := range spellings {
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		alts = append(alts, regexp.QuoteMeta(v))
	}
	expr := "(?:" + strings.Join(alts, "|") + ")"
	if isWordByte(value[0]) {
		expr = `\b` + expr
	}
	if isWordByte(value[len(value)-1]) {
		expr += `\b`
	}
	return regexp.MustCompile("(?i)" + expr)
}

func isWordByte(c byte) bool {
	return c == '_' || ('0' <= c && c <= '9') || ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z')
}

// rewriteGoal applies text to the description, the agent prompt, typed
// input and clipboard templates, and link to navigation URLs. Locators and
// criteria are left alone.
func rewriteGoal(g workflow.GoalStep, text, link func(string) string) workflow.GoalStep {
	g.Description = text(g.Description)
	if g.AgentPrompt != nil {
		g.AgentPrompt = workflow.StringPtr(text(*g.AgentPrompt))
	}
	strategies := make([]workflow.Strategy, len(g.Strategies))
	for i, s := range g.Strategies {
		if nav, ok := s.Mechanism.(workflow.Navigate); ok {
			nav.URL = link(nav.URL)
			s.Mechanism = nav
		} else {
			s.Mechanism = rewriteInput(s.Mechanism, text)
		}
		strategies[i] = s
	}
	g.Strategies = strategies
	return g
}

func rewriteInput(m workflow.Mechanism, f func(string) string) workflow.Mechanism {
	apply := func(p *string) *string {
		if p == nil {
			return nil
		}
		return workflow.StringPtr(f(*p))
	}
	switch v := m.(type) {
	case workflow.Selector:
		v.Input = apply(v.Input)
		return v
	case workflow.TextMatch:
		v.Input = apply(v.Input)
		return v
	case workflow.Role:
		v.Input = apply(v.Input)
		return v
	case workflow.Visual:
		v.Input = apply(v.Input)
		return v
	case workflow.Coordinates:
		v.Input = apply(v.Input)
		return v
	case workflow.Focused:
		v.Input = f(v.Input)
		return v
	case workflow.Shortcut:
		v.Clipboard = apply(v.Clipboard)
		return v
	}
	return m
}

var existingPlaceholder = regexp.MustCompile(`\{\{[^}]*\}\}`)

// replaceLiteral replaces matches of pattern outside existing placeholders
// and returns the number of replacements.
func replaceLiteral(s string, pattern *regexp.Regexp, placeholder string) (string, int) {
	var b strings.Builder
	count := 0
	last := 0
	replace := func(seg string) {
		count += len(pattern.FindAllStringIndex(seg, -1))
		b.WriteString(pattern.ReplaceAllLiteralString(seg, placeholder))
	}
	for _, loc := range existingPlaceholder.FindAllStringIndex(s, -1) {
		replace(s[last:loc[0]])
		b.WriteString(s[loc[0]:loc[1]])
		last = loc[1]
	}
	replace(s[last:])
	return b.String(), count
}

func uniqueName(name string, taken map[string]string) string {
	if name == "" {
		name = "param"
	}
	reserved := func(n string) bool {
		_, ok := taken[n]
		return ok || n == workflow.ExtractedContentBinding
	}
	if !reserved(name) {
		return name
	}
	for i := 2; ; i++ {
		if n := fmt.Sprintf("%s_%d", name, i); !reserved(n) {
			return n
		}
	}
}
