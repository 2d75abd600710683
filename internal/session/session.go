// Package session records the forensic event log of workflow runs.
package session

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status constants for sessions.
const (
	StatusRunning   = "running"
	StatusComplete  = "complete"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// Event types for the session log.
const (
	EventWorkflowStart = "workflow_start"
	EventWorkflowEnd   = "workflow_end"
	EventGoalStart     = "goal_start"
	EventGoalEnd       = "goal_end"
	EventAttempt       = "attempt"
	EventSafetyBlock   = "safety_block"
	EventVerify        = "verify"
	EventFallback      = "agent_fallback"
	EventWarning       = "warning"
)

// Session is the log of one workflow run.
type Session struct {
	ID           string            `json:"id"`
	WorkflowID   string            `json:"workflow_id"`
	WorkflowName string            `json:"workflow_name"`
	Bindings     map[string]string `json:"bindings"`
	Status       string            `json:"status"`
	Error        string            `json:"error,omitempty"`
	Extracted    map[string]string `json:"extracted,omitempty"`
	Events       []Event           `json:"events"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`

	seq uint64
	mu  sync.Mutex
}

// Event is one entry in the run log.
type Event struct {
	SeqID     uint64    `json:"seq"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`

	Goal     string `json:"goal,omitempty"`
	Sequence int    `json:"sequence,omitempty"`
	Strategy string `json:"strategy,omitempty"`
	Priority int    `json:"priority,omitempty"`

	Content    string `json:"content,omitempty"`
	Outcome    string `json:"outcome,omitempty"`
	ErrorKind  string `json:"error_kind,omitempty"`
	Success    *bool  `json:"success,omitempty"`
	Error      string `json:"error,omitempty"`
	DurationMs int64  `json:"duration_ms,omitempty"`

	Meta *EventMeta `json:"meta,omitempty"`
}

// EventMeta holds structured detail for analysis.
type EventMeta struct {
	Action    string            `json:"action,omitempty"`
	Target    string            `json:"target,omitempty"`
	Reason    string            `json:"reason,omitempty"`
	Level     string            `json:"level,omitempty"`
	Criteria  []string          `json:"criteria,omitempty"`
	Unmet     []string          `json:"unmet,omitempty"`
	Polls     int               `json:"polls,omitempty"`
	Observed  string            `json:"observed_error,omitempty"`
	Prompt    string            `json:"prompt,omitempty"`
	Extracted map[string]string `json:"extracted,omitempty"`
}

// Bool returns a pointer to b, for Event.Success.
func Bool(b bool) *bool { return &b }

// AddEvent appends an event with the next sequence number.
func (s *Session) AddEvent(event Event) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	event.SeqID = s.seq
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	s.Events = append(s.Events, event)
	s.UpdatedAt = time.Now()
	return event.SeqID
}

// Finish sets the terminal status of the run.
func (s *Session) Finish(status, errMsg string, extracted map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Status = status
	s.Error = errMsg
	s.Extracted = extracted
	s.UpdatedAt = time.Now()
}

// Store persists sessions.
type Store interface {
	Save(sess *Session) error
	Load(id string) (*Session, error)
}

// Manager creates and saves sessions through a Store.
type Manager struct {
	store Store
	mu    sync.Mutex
}

// NewManager creates a session manager.
func NewManager(store Store) *Manager {
	return &Manager{store: store}
}

// Create starts a session for a run.
func (m *Manager) Create(runID, workflowID, workflowName string, bindings map[string]string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if runID == "" {
		runID = uuid.NewString()
	}
	now := time.Now()
	sess := &Session{
		ID:           runID,
		WorkflowID:   workflowID,
		WorkflowName: workflowName,
		Bindings:     bindings,
		Status:       StatusRunning,
		Events:       []Event{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := m.store.Save(sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// Update saves the session.
func (m *Manager) Update(sess *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.store.Save(sess)
}

// Get loads a session by id.
func (m *Manager) Get(id string) (*Session, error) {
	return m.store.Load(id)
}

// JSONL record types.
const (
	RecordTypeHeader = "header"
	RecordTypeEvent  = "event"
	RecordTypeFooter = "footer"
)

// JSONLRecord is one line of a session file.
type JSONLRecord struct {
	RecordType string `json:"_type"`

	ID           string            `json:"id,omitempty"`
	WorkflowID   string            `json:"workflow_id,omitempty"`
	WorkflowName string            `json:"workflow_name,omitempty"`
	Bindings     map[string]string `json:"bindings,omitempty"`
	CreatedAt    time.Time         `json:"created_at,omitempty"`

	*Event `json:",omitempty"`

	Status    string            `json:"status,omitempty"`
	Error     string            `json:"error,omitempty"`
	Extracted map[string]string `json:"extracted,omitempty"`
	UpdatedAt time.Time         `json:"updated_at,omitempty"`
}

// FileStore keeps one JSONL file per session.
type FileStore struct {
	dir string
}

// NewFileStore creates a file store rooted at dir.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	return &FileStore{dir: dir}, nil
}

// Path returns the file a session is written to.
func (s *FileStore) Path(id string) string {
	return filepath.Join(s.dir, id+".jsonl")
}

// Save rewrites the session file: header, events, footer.
func (s *FileStore) Save(sess *Session) error {
	sess.mu.Lock()
	defer sess.mu.Unlock()

	f, err := os.Create(s.Path(sess.ID))
	if err != nil {
		return fmt.Errorf("failed to create session file: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	header := JSONLRecord{
		RecordType:   RecordTypeHeader,
		ID:           sess.ID,
		WorkflowID:   sess.WorkflowID,
		WorkflowName: sess.WorkflowName,
		Bindings:     sess.Bindings,
		CreatedAt:    sess.CreatedAt,
	}
	if err := writeLine(w, header); err != nil {
		return err
	}
	for i := range sess.Events {
		evt := sess.Events[i]
		if err := writeLine(w, JSONLRecord{RecordType: RecordTypeEvent, Event: &evt}); err != nil {
			return err
		}
	}
	footer := JSONLRecord{
		RecordType: RecordTypeFooter,
		Status:     sess.Status,
		Error:      sess.Error,
		Extracted:  sess.Extracted,
		UpdatedAt:  sess.UpdatedAt,
	}
	if err := writeLine(w, footer); err != nil {
		return err
	}
	return w.Flush()
}

func writeLine(w io.Writer, record JSONLRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}

// Load reads a session by id.
func (s *FileStore) Load(id string) (*Session, error) {
	return LoadFile(s.Path(id))
}

// LoadFile reads a session JSONL file.
func LoadFile(path string) (*Session, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sess := &Session{Bindings: make(map[string]string), Events: []Event{}}
	reader := bufio.NewReader(f)
	for {
		line, err := reader.ReadBytes('\n')
		if len(bytes.TrimSpace(line)) > 0 {
			if perr := parseLine(bytes.TrimSpace(line), sess); perr != nil {
				return nil, perr
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error reading JSONL: %w", err)
		}
	}
	if n := len(sess.Events); n > 0 {
		sess.seq = sess.Events[n-1].SeqID
	}
	return sess, nil
}

func parseLine(line []byte, sess *Session) error {
	var record JSONLRecord
	if err := json.Unmarshal(line, &record); err != nil {
		return fmt.Errorf("failed to parse JSONL line: %w", err)
	}
	switch record.RecordType {
	case RecordTypeHeader:
		sess.ID = record.ID
		sess.WorkflowID = record.WorkflowID
		sess.WorkflowName = record.WorkflowName
		if record.Bindings != nil {
			sess.Bindings = record.Bindings
		}
		sess.CreatedAt = record.CreatedAt
	case RecordTypeEvent:
		if record.Event != nil {
			sess.Events = append(sess.Events, *record.Event)
		}
	case RecordTypeFooter:
		sess.Status = record.Status
		sess.Error = record.Error
		sess.Extracted = record.Extracted
		sess.UpdatedAt = record.UpdatedAt
	}
	return nil
}

// List returns the ids of stored sessions, newest file name last.
func (s *FileStore) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".jsonl") {
			ids = append(ids, strings.TrimSuffix(e.Name(), ".jsonl"))
		}
	}
	return ids, nil
}
