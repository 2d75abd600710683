// Package checkpoint records what each goal planned to try and what happened.
package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// Plan is written before a goal runs.
type Plan struct {
	GoalID      string    `json:"goal_id"`
	Sequence    int       `json:"sequence"`
	GoalType    string    `json:"goal_type"`
	Description string    `json:"description"`
	Strategies  []string  `json:"strategies"` // in the order they will be tried
	Criteria    []string  `json:"criteria,omitempty"`
	Fallback    bool      `json:"fallback"`
	Timestamp   time.Time `json:"timestamp"`
}

// Attempt is one strategy tried for a goal.
type Attempt struct {
	Strategy string `json:"strategy"`
	Priority int    `json:"priority"`
	Outcome  string `json:"outcome"`
	Reason   string `json:"reason,omitempty"`
}

// Outcome is written after a goal finishes.
type Outcome struct {
	GoalID            string            `json:"goal_id"`
	Success           bool              `json:"success"`
	StrategyUsed      string            `json:"strategy_used,omitempty"`
	Attempts          []Attempt         `json:"attempts"`
	FallbackAttempted bool              `json:"fallback_attempted"`
	ErrorKind         string            `json:"error_kind,omitempty"`
	Extracted         map[string]string `json:"extracted,omitempty"`
	Timestamp         time.Time         `json:"timestamp"`
}

// Checkpoint pairs a goal's plan with its outcome.
type Checkpoint struct {
	Plan    *Plan    `json:"plan,omitempty"`
	Outcome *Outcome `json:"outcome,omitempty"`
}

// Deviated reports whether the goal did not succeed with its first planned
// strategy.
func (c *Checkpoint) Deviated() bool {
	if c.Plan == nil || c.Outcome == nil {
		return false
	}
	if !c.Outcome.Success || len(c.Plan.Strategies) == 0 {
		return true
	}
	return c.Outcome.StrategyUsed != c.Plan.Strategies[0]
}

// Store manages checkpoints for one run.
type Store struct {
	dir         string
	checkpoints map[string]*Checkpoint
	mu          sync.RWMutex
}

// NewStore creates a new checkpoint store.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create checkpoint directory: %w", err)
	}
	return &Store{
		dir:         dir,
		checkpoints: make(map[string]*Checkpoint),
	}, nil
}

// SavePlan saves a goal plan.
func (s *Store) SavePlan(p *Plan) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entry(p.GoalID).Plan = p
	return s.flush(p.GoalID)
}

// SaveOutcome saves a goal outcome.
func (s *Store) SaveOutcome(o *Outcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entry(o.GoalID).Outcome = o
	return s.flush(o.GoalID)
}

func (s *Store) entry(goalID string) *Checkpoint {
	cp, ok := s.checkpoints[goalID]
	if !ok {
		cp = &Checkpoint{}
		s.checkpoints[goalID] = cp
	}
	return cp
}

// Get retrieves a checkpoint by goal ID.
func (s *Store) Get(goalID string) *Checkpoint {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.checkpoints[goalID]
}

// Trail returns all checkpoints ordered by goal sequence.
func (s *Store) Trail() []*Checkpoint {
	s.mu.RLock()
	defer s.mu.RUnlock()

	trail := make([]*Checkpoint, 0, len(s.checkpoints))
	for _, cp := range s.checkpoints {
		trail = append(trail, cp)
	}
	sort.SliceStable(trail, func(i, j int) bool {
		return sequenceOf(trail[i]) < sequenceOf(trail[j])
	})
	return trail
}

func sequenceOf(cp *Checkpoint) int {
	if cp.Plan == nil {
		return int(^uint(0) >> 1)
	}
	return cp.Plan.Sequence
}

// flush writes a checkpoint to disk.
func (s *Store) flush(goalID string) error {
	data, err := json.MarshalIndent(s.checkpoints[goalID], "", "  ")
	if err != nil {
		return err
	}
	path := filepath.Join(s.dir, fmt.Sprintf("%s.json", goalID))
	return os.WriteFile(path, data, 0644)
}

// Load loads checkpoints from disk. Unreadable files are skipped.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.dir, entry.Name()))
		if err != nil {
			continue
		}
		var cp Checkpoint
		if err := json.Unmarshal(data, &cp); err != nil {
			continue
		}
		s.checkpoints[strings.TrimSuffix(entry.Name(), ".json")] = &cp
	}
	return nil
}
