// Package safety gates concrete actions before they reach a backend.
package safety

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/vinayprograms/agentkit/logging"

	"github.com/vinayprograms/goalflow/internal/platform"
	"github.com/vinayprograms/goalflow/internal/workflow"
)

// Level is the severity of a decision.
type Level string

const (
	LevelSafe    Level = "safe"
	LevelWarning Level = "warning"
	LevelBlocked Level = "blocked"
)

// Action is a fully resolved action, after parameter substitution.
type Action struct {
	Platform workflow.Platform
	App      string
	Kind     platform.ActionKind
	Text     string
	Keys     string
	URL      string
	Target   string
	Goal     string
}

// Decision is the gate's verdict on one action.
type Decision struct {
	Allowed bool
	Level   Level
	Reason  string
}

// Allow is the decision for a safe action.
var Allow = Decision{Allowed: true, Level: LevelSafe}

// Gate decides whether an action may run.
type Gate interface {
	Check(ctx context.Context, a Action) Decision
}

// GateFunc adapts a function to Gate.
type GateFunc func(ctx context.Context, a Action) Decision

// Check calls f.
func (f GateFunc) Check(ctx context.Context, a Action) Decision { return f(ctx, a) }

// Config tunes a Guard.
type Config struct {
	Strict           bool
	BlockedPatterns  []string
	BlockedURLs      []string
	BlockedShortcuts []string
	TerminalApps     []string
}

var blockedShortcuts = []string{
	"command+option+control+eject",
	"command+control+eject",
	"command+option+eject",
	"control+command+q",
	"command+option+escape",
	"command+shift+q",
	"control+alt+delete",
}

var warningShortcuts = map[string]string{
	"command+delete":          "delete file",
	"command+backspace":       "delete file",
	"command+shift+delete":    "empty trash",
	"command+shift+backspace": "empty trash",
	"command+q":               "quit app",
	"command+w":               "close window",
	"alt+f4":                  "close window",
}

var typedPatterns = []string{
	`^\s*sudo\s+rm\s+-rf\s+/`,
	`^\s*rm\s+-rf\s+/\s*$`,
	`^\s*rm\s+-rf\s+/[A-Za-z]`,
	`^\s*rm\s+-rf\s+~/?$`,
	`^\s*rm\s+-rf\s+\*`,
	`^\s*rm\s+-rf\s+\.\.`,
	`^\s*mkfs\.`,
	`^\s*dd\s+if=.+of=/dev/`,
	`>\s*/dev/(sd[a-z]|nvme|disk)`,
	`^\s*sudo\s+(shutdown|reboot|halt|poweroff)`,
	`^\s*sudo\s+init\s+[06]`,
	`:\(\)\s*\{.*\}\s*;?\s*:`,
	`^\s*yes\s*\|`,
	`^\s*chmod\s+-R\s+(777|000)\s+/`,
	`^\s*chown\s+-R\s+.+\s+/\s*$`,
	`^\s*diskutil\s+(eraseDisk|partitionDisk|secureErase)`,
	`^\s*nvram\s+`,
	`^\s*csrutil\s+disable`,
	`^\s*sudo\s+(systemsetup|spctl\s+--master-disable)`,
	`^\s*security\s+delete-`,
	`curl\s+[^|]*\|\s*(sudo\s+)?(ba|z)?sh`,
	`cat\s+.+\.ssh/id_`,
	`cat\s+.+\.aws/credentials`,
	`cat\s+.+\.env`,
}

var urlPatterns = []string{
	`^javascript:`,
	`^file:///(etc|System|private)`,
	`chrome://settings/(clearBrowserData|reset|resetProfileSettings)`,
	`edge://settings/(clearBrowserData|reset)`,
	`brave://settings/(clearBrowserData|reset)`,
	`about:config`,
	`about:preferences.*clear`,
}

var appActions = map[string][]string{
	"disk utility":       {"erase", "partition", "format", "restore"},
	"system preferences": {"startup disk", "security & privacy", "users & groups"},
	"system settings":    {"startup disk", "privacy & security", "users & groups"},
	"keychain access":    {"delete", "remove"},
}

var defaultTerminals = []string{
	"terminal", "iterm", "iterm2", "hyper", "alacritty", "kitty", "warp", "tabby", "terminus", "console",
}

// Guard is the pattern-based Gate.
type Guard struct {
	strict    bool
	typed     []*regexp.Regexp
	urls      []*regexp.Regexp
	blocked   map[string]bool
	terminals []string
	logger    *logging.Logger
}

// NewGuard compiles the built-in rules plus cfg's extras.
func NewGuard(cfg Config) (*Guard, error) {
	g := &Guard{
		strict:    cfg.Strict,
		blocked:   make(map[string]bool),
		terminals: defaultTerminals,
		logger:    logging.New().WithComponent("safety"),
	}

	var err error
	if g.typed, err = compileAll(append(append([]string{}, typedPatterns...), cfg.BlockedPatterns...)); err != nil {
		return nil, fmt.Errorf("invalid blocked pattern: %w", err)
	}
	if g.urls, err = compileAll(append(append([]string{}, urlPatterns...), cfg.BlockedURLs...)); err != nil {
		return nil, fmt.Errorf("invalid blocked url: %w", err)
	}
	for _, combo := range append(append([]string{}, blockedShortcuts...), cfg.BlockedShortcuts...) {
		g.blocked[CanonicalKeys(combo)] = true
	}
	for _, app := range cfg.TerminalApps {
		g.terminals = append(g.terminals, strings.ToLower(app))
	}
	return g, nil
}

func compileAll(patterns []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			return nil, err
		}
		out = append(out, re)
	}
	return out, nil
}

// Check evaluates every rule that applies to the action.
func (g *Guard) Check(ctx context.Context, a Action) Decision {
	d := g.check(a)
	if !d.Allowed {
		g.logger.Warn("action blocked", map[string]interface{}{
			"kind":   string(a.Kind),
			"app":    a.App,
			"level":  string(d.Level),
			"reason": d.Reason,
		})
	}
	return d
}

func (g *Guard) check(a Action) Decision {
	if a.Keys != "" {
		if d := g.checkShortcut(a.Keys); !d.Allowed {
			return d
		}
	}
	if a.Text != "" && g.isTerminal(a.App) {
		for _, re := range g.typed {
			if re.MatchString(a.Text) {
				return Decision{Level: LevelBlocked, Reason: "dangerous command: " + truncate(a.Text, 50)}
			}
		}
	}
	if a.URL != "" {
		for _, re := range g.urls {
			if re.MatchString(a.URL) {
				return Decision{Level: LevelBlocked, Reason: "dangerous url: " + a.URL}
			}
		}
	}
	if keywords, ok := appActions[strings.ToLower(a.App)]; ok {
		haystack := strings.ToLower(a.Goal + " " + a.Target + " " + a.Text)
		for _, kw := range keywords {
			if strings.Contains(haystack, kw) {
				return Decision{Level: LevelBlocked, Reason: fmt.Sprintf("sensitive action %q in %s", kw, a.App)}
			}
		}
	}
	return Allow
}

func (g *Guard) checkShortcut(keys string) Decision {
	norm := CanonicalKeys(keys)
	if g.blocked[norm] {
		return Decision{Level: LevelBlocked, Reason: "dangerous shortcut: " + keys}
	}
	for combo, what := range warningShortcuts {
		if CanonicalKeys(combo) == norm {
			if g.strict {
				return Decision{Level: LevelWarning, Reason: fmt.Sprintf("shortcut may %s: %s", what, keys)}
			}
			g.logger.Debug("allowing warning shortcut", map[string]interface{}{"keys": keys, "effect": what})
		}
	}
	return Allow
}

func (g *Guard) isTerminal(app string) bool {
	app = strings.ToLower(app)
	if app == "" {
		return false
	}
	for _, t := range g.terminals {
		if app == t {
			return true
		}
	}
	return strings.Contains(app, "terminal") || strings.Contains(app, "console") || strings.Contains(app, "shell")
}

var keyAliases = map[string]string{
	"cmd": "command", "⌘": "command", "meta": "command", "super": "command",
	"opt": "option", "alt": "option", "⌥": "option",
	"ctrl": "control", "ctl": "control", "⌃": "control",
	"esc": "escape", "del": "delete", "return": "enter", "⇧": "shift",
}

var modifierOrder = map[string]int{"command": 1, "control": 2, "option": 3, "shift": 4, "fn": 5}

// NormalizeKeys rewrites a key combination into the form a backend presses:
// lower case, aliases resolved, modifiers first in a fixed order, the other
// keys after them in recorded order, joined with "+".
func NormalizeKeys(combo string) string {
	parts := splitKeys(combo)
	sort.SliceStable(parts, func(i, j int) bool {
		mi, mj := modifierOrder[parts[i]], modifierOrder[parts[j]]
		if mi == 0 || mj == 0 {
			return mi != 0 && mj == 0
		}
		return mi < mj
	})
	return strings.Join(parts, "+")
}

// CanonicalKeys is an order-independent comparison key for a combination.
// Two combos press the same keys when their canonical forms are equal.
func CanonicalKeys(combo string) string {
	parts := splitKeys(combo)
	sort.Strings(parts)
	return strings.Join(parts, "+")
}

// splitKeys splits on "+", "-" and spaces. A separator character in key
// position, such as the last "-" of "cmd+shift+-", is the key itself.
func splitKeys(combo string) []string {
	runes := []rune(strings.ToLower(strings.TrimSpace(combo)))
	var parts []string
	var cur []rune
	for i, r := range runes {
		if r != '+' && r != '-' && r != ' ' {
			cur = append(cur, r)
			continue
		}
		switch {
		case len(cur) > 0:
			parts = append(parts, string(cur))
			cur = cur[:0]
		case r != ' ' && i == len(runes)-1:
			parts = append(parts, string(r))
		}
	}
	if len(cur) > 0 {
		parts = append(parts, string(cur))
	}
	for i, p := range parts {
		if alias, ok := keyAliases[p]; ok {
			parts[i] = alias
		}
	}
	return parts
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
