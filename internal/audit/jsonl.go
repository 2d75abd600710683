package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// JSONLSink appends audit lines to a file.
type JSONLSink struct {
	mu  sync.Mutex
	f   *os.File
	enc *json.Encoder
}

type jsonlLine struct {
	Type    string   `json:"type"`
	Goal    *Record  `json:"goal,omitempty"`
	Summary *Summary `json:"summary,omitempty"`
}

// NewJSONLSink opens path for appending.
func NewJSONLSink(path string) (*JSONLSink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create audit directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log: %w", err)
	}
	return &JSONLSink{f: f, enc: json.NewEncoder(f)}, nil
}

func (s *JSONLSink) RecordGoal(ctx context.Context, r Record) error {
	return s.write(jsonlLine{Type: "goal", Goal: &r})
}

func (s *JSONLSink) RecordRun(ctx context.Context, sum Summary) error {
	return s.write(jsonlLine{Type: "run", Summary: &sum})
}

func (s *JSONLSink) write(line jsonlLine) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enc.Encode(line)
}

func (s *JSONLSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.f.Close()
}
