// Package llmcap implements the capability interfaces on a language model
// provider. Screens are given to the model as their observed structure:
// app, URL, title, visible elements and page text.
package llmcap

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/vinayprograms/agentkit/llm"
	"github.com/vinayprograms/agentkit/logging"

	"github.com/vinayprograms/goalflow/internal/capability"
	"github.com/vinayprograms/goalflow/internal/platform"
)

// maxPageText bounds how much visible text is sent per request.
const maxPageText = 4000

// Client answers classifier, vision, enricher and agent calls with one
// provider.
type Client struct {
	provider llm.Provider
	logger   *logging.Logger
}

var (
	_ capability.Classifier = (*Client)(nil)
	_ capability.Vision     = (*Client)(nil)
	_ capability.Enricher   = (*Client)(nil)
	_ capability.Templater  = (*Client)(nil)
	_ capability.Agent      = (*Client)(nil)
)

// New creates a client. A nil provider makes every call return
// capability.ErrUnavailable.
func New(provider llm.Provider) *Client {
	return &Client{provider: provider, logger: logging.New().WithComponent("llmcap")}
}

// ask sends one system+user exchange and decodes the JSON object in the
// reply into v. Provider failures are reported as unavailability so
// callers stop relying on the model; a reply without usable JSON is an
// ordinary error.
func (c *Client) ask(ctx context.Context, call, system, user string, v interface{}) error {
	if c == nil || c.provider == nil {
		return capability.ErrUnavailable
	}
	start := time.Now()
	resp, err := c.provider.Chat(ctx, llm.ChatRequest{
		Messages: []llm.Message{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
	})
	if err != nil {
		c.logger.Warn("model call failed", map[string]interface{}{"call": call, "error": err.Error()})
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return fmt.Errorf("%w: %s: %v", capability.ErrUnavailable, call, err)
	}
	c.logger.Debug("model call", map[string]interface{}{"call": call, "duration": time.Since(start).String()})

	raw := extractJSON(resp.Content)
	if raw == "" {
		return fmt.Errorf("%s: no JSON object in reply", call)
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return fmt.Errorf("%s: failed to parse reply: %w", call, err)
	}
	return nil
}

var (
	jsonBlock = regexp.MustCompile("(?s)```json\\s*\\n?(.*?)\\n?```")
	codeBlock = regexp.MustCompile("(?s)```\\s*\\n?(.*?)\\n?```")
)

// extractJSON finds the JSON object in a model reply: a fenced block if
// there is one, else the first balanced object.
func extractJSON(content string) string {
	if m := jsonBlock.FindStringSubmatch(content); len(m) > 1 {
		return strings.TrimSpace(m[1])
	}
	if m := codeBlock.FindStringSubmatch(content); len(m) > 1 {
		if candidate := strings.TrimSpace(m[1]); strings.HasPrefix(candidate, "{") {
			return candidate
		}
	}

	start := strings.Index(content, "{")
	if start == -1 {
		return ""
	}
	depth := 0
	inString, escaped := false, false
	for i := start; i < len(content); i++ {
		ch := content[i]
		switch {
		case escaped:
			escaped = false
		case inString && ch == '\\':
			escaped = true
		case ch == '"':
			inString = !inString
		case inString:
		case ch == '{':
			depth++
		case ch == '}':
			depth--
			if depth == 0 {
				return content[start : i+1]
			}
		}
	}
	return ""
}

// describeSnapshot renders a snapshot for the model. Elements are numbered
// so replies can point at one.
func describeSnapshot(snap platform.Snapshot) string {
	var b strings.Builder
	if snap.App != "" {
		fmt.Fprintf(&b, "App: %s\n", snap.App)
	}
	if snap.URL != "" {
		fmt.Fprintf(&b, "URL: %s\n", snap.URL)
	}
	if snap.Title != "" {
		fmt.Fprintf(&b, "Title: %s\n", snap.Title)
	}
	if len(snap.Elements) > 0 {
		b.WriteString("Elements:\n")
		for i, e := range snap.Elements {
			fmt.Fprintf(&b, "  [%d]", i)
			if e.Role != "" {
				fmt.Fprintf(&b, " role=%s", e.Role)
			}
			if e.Name != "" {
				fmt.Fprintf(&b, " name=%q", e.Name)
			}
			if e.Text != "" {
				fmt.Fprintf(&b, " text=%q", truncate(e.Text, 80))
			}
			if e.Selector != "" {
				fmt.Fprintf(&b, " selector=%s", e.Selector)
			}
			if e.Point != nil {
				fmt.Fprintf(&b, " at=(%d,%d)", e.Point.X, e.Point.Y)
			}
			b.WriteString("\n")
		}
	}
	if snap.VisibleText != "" {
		fmt.Fprintf(&b, "Visible text:\n%s\n", truncate(snap.VisibleText, maxPageText))
	}
	if len(snap.Errors) > 0 {
		fmt.Fprintf(&b, "Errors: %s\n", strings.Join(snap.Errors, "; "))
	}
	return b.String()
}

// truncate keeps at most max runes of s.
func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max]) + "..."
}
