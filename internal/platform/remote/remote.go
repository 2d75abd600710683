// Package remote implements platform.Backend against an automation sidecar
// reachable over HTTP (a browser driver or a desktop accessibility bridge).
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/vinayprograms/goalflow/internal/platform"
)

// Client talks to one automation sidecar.
type Client struct {
	baseURL string
	client  *http.Client
}

// New creates a client for the sidecar at baseURL.
func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

type actRequest struct {
	Locator *platform.Locator   `json:"locator,omitempty"`
	Kind    platform.ActionKind `json:"kind"`
	Payload platform.Payload    `json:"payload"`
}

type observeResponse struct {
	platform.Snapshot
	HTML string `json:"html,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Resolve asks the sidecar to locate target.
func (c *Client) Resolve(ctx context.Context, target platform.Target) (platform.Locator, error) {
	var loc platform.Locator
	err := c.do(ctx, http.MethodPost, "/resolve", target, &loc)
	return loc, err
}

// Act performs an action through the sidecar.
func (c *Client) Act(ctx context.Context, loc *platform.Locator, kind platform.ActionKind, payload platform.Payload) (platform.Outcome, error) {
	var out platform.Outcome
	err := c.do(ctx, http.MethodPost, "/act", actRequest{Locator: loc, Kind: kind, Payload: payload}, &out)
	return out, err
}

// Observe fetches the current surface state. When the sidecar sends page
// HTML instead of visible text, the text is derived locally.
func (c *Client) Observe(ctx context.Context) (platform.Snapshot, error) {
	var resp observeResponse
	if err := c.do(ctx, http.MethodGet, "/observe", nil, &resp); err != nil {
		return platform.Snapshot{}, err
	}
	snap := resp.Snapshot
	if snap.VisibleText == "" && resp.HTML != "" {
		text, title, err := VisibleText(resp.HTML)
		if err != nil {
			return snap, fmt.Errorf("failed to parse page html: %w", err)
		}
		snap.VisibleText = text
		if snap.Title == "" {
			snap.Title = title
		}
	}
	if snap.TakenAt.IsZero() {
		snap.TakenAt = time.Now()
	}
	return snap, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %v", platform.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", platform.ErrNotFound, errorText(data))
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: status %d: %s", platform.ErrUnavailable, resp.StatusCode, errorText(data))
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("backend error (status %d): %s", resp.StatusCode, errorText(data))
	}

	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
	}
	return nil
}

func errorText(data []byte) string {
	var e errorResponse
	if json.Unmarshal(data, &e) == nil && e.Error != "" {
		return e.Error
	}
	return strings.TrimSpace(string(data))
}
