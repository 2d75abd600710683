// Package library indexes a directory of compiled workflows for search.
package library

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"
	"github.com/fsnotify/fsnotify"
	"github.com/vinayprograms/agentkit/logging"

	"github.com/vinayprograms/goalflow/internal/workflow"
)

// ErrNotFound is returned by Get for an unknown workflow.
var ErrNotFound = errors.New("workflow not found")

// Entry describes one workflow in the library.
type Entry struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Path        string    `json:"path"`
	Goals       int       `json:"goals"`
	Parameters  []string  `json:"parameters,omitempty"`
	Apps        []string  `json:"apps,omitempty"`
	ModTime     time.Time `json:"mod_time"`
}

// Result is a search hit.
type Result struct {
	Entry
	Score float64 `json:"score"`
}

// document is what gets indexed for an entry.
type document struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Goals       string   `json:"goals"`
	Apps        []string `json:"apps"`
	Parameters  []string `json:"parameters"`
}

// Library is an in-memory search index over a workflow directory.
type Library struct {
	dir    string
	mu     sync.RWMutex
	index  bleve.Index
	byID   map[string]Entry
	byPath map[string]string
	logger *logging.Logger

	// OnChange is called after Watch reindexes a file.
	OnChange func(path string)
}

// Open indexes every workflow document in dir. Files that fail to load
// are logged and skipped.
func Open(dir string) (*Library, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create library directory: %w", err)
	}
	index, err := bleve.NewMemOnly(buildIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create index: %w", err)
	}
	l := &Library{
		dir:    dir,
		index:  index,
		byID:   make(map[string]Entry),
		byPath: make(map[string]string),
		logger: logging.New().WithComponent("library"),
	}
	if err := l.Reload(); err != nil {
		index.Close()
		return nil, err
	}
	return l, nil
}

func buildIndexMapping() mapping.IndexMapping {
	doc := bleve.NewDocumentMapping()
	text := bleve.NewTextFieldMapping()
	text.Analyzer = standard.Name
	keyword := bleve.NewKeywordFieldMapping()

	doc.AddFieldMappingsAt("name", text)
	doc.AddFieldMappingsAt("description", text)
	doc.AddFieldMappingsAt("goals", text)
	doc.AddFieldMappingsAt("apps", text)
	doc.AddFieldMappingsAt("parameters", keyword)

	m := bleve.NewIndexMapping()
	m.DefaultMapping = doc
	m.DefaultAnalyzer = standard.Name
	return m
}

// Reload rescans the directory.
func (l *Library) Reload() error {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return fmt.Errorf("failed to read library: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() || !isWorkflowFile(e.Name()) {
			continue
		}
		path := filepath.Join(l.dir, e.Name())
		if err := l.indexFile(path); err != nil {
			l.logger.Warn("skipping workflow", map[string]interface{}{"path": path, "error": err.Error()})
		}
	}
	return nil
}

func isWorkflowFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json", ".yaml", ".yml":
		return true
	}
	return false
}

func (l *Library) indexFile(path string) error {
	wf, err := workflow.LoadFile(path)
	if err != nil {
		return err
	}
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	entry, doc := describe(wf, path, info.ModTime())

	l.mu.Lock()
	defer l.mu.Unlock()
	if old, ok := l.byPath[path]; ok && old != wf.ID {
		l.removeLocked(path)
	}
	if err := l.index.Index(wf.ID, doc); err != nil {
		return fmt.Errorf("failed to index workflow: %w", err)
	}
	l.byID[wf.ID] = entry
	l.byPath[path] = wf.ID
	return nil
}

func describe(wf *workflow.Workflow, path string, mod time.Time) (Entry, document) {
	var goals []string
	appSet := make(map[string]bool)
	for _, g := range wf.Steps {
		goals = append(goals, g.Description)
		if g.App != "" {
			appSet[g.App] = true
		}
	}
	apps := make([]string, 0, len(appSet))
	for a := range appSet {
		apps = append(apps, a)
	}
	sort.Strings(apps)

	entry := Entry{
		ID:          wf.ID,
		Name:        wf.Name,
		Description: wf.Description,
		Path:        path,
		Goals:       len(wf.Steps),
		Parameters:  wf.ParameterNames(),
		Apps:        apps,
		ModTime:     mod,
	}
	doc := document{
		Name:        wf.Name,
		Description: wf.Description,
		Goals:       strings.Join(goals, "\n"),
		Apps:        apps,
		Parameters:  entry.Parameters,
	}
	return entry, doc
}

func (l *Library) remove(path string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.removeLocked(path)
}

func (l *Library) removeLocked(path string) {
	id, ok := l.byPath[path]
	if !ok {
		return
	}
	delete(l.byPath, path)
	if e, ok := l.byID[id]; ok && e.Path == path {
		delete(l.byID, id)
		if err := l.index.Delete(id); err != nil {
			l.logger.Warn("failed to remove from index", map[string]interface{}{"id": id, "error": err.Error()})
		}
	}
}

// Search returns up to limit workflows matching q, best first. An empty
// query lists everything by name.
func (l *Library) Search(q string, limit int) ([]Result, error) {
	if limit <= 0 {
		limit = 10
	}
	l.mu.RLock()
	defer l.mu.RUnlock()

	q = strings.TrimSpace(q)
	if q == "" {
		out := make([]Result, 0, len(l.byID))
		for _, e := range l.byID {
			out = append(out, Result{Entry: e})
		}
		sort.Slice(out, func(i, j int) bool {
			if out[i].Name != out[j].Name {
				return out[i].Name < out[j].Name
			}
			return out[i].ID < out[j].ID
		})
		if len(out) > limit {
			out = out[:limit]
		}
		return out, nil
	}

	req := bleve.NewSearchRequestOptions(buildQuery(q), limit, 0, false)
	res, err := l.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}
	out := make([]Result, 0, len(res.Hits))
	for _, hit := range res.Hits {
		if e, ok := l.byID[hit.ID]; ok {
			out = append(out, Result{Entry: e, Score: hit.Score})
		}
	}
	return out, nil
}

// buildQuery matches the text in any field, plus prefix matches on each
// word so partial input still finds workflows.
func buildQuery(q string) query.Query {
	queries := []query.Query{bleve.NewMatchQuery(q)}
	for _, word := range strings.Fields(strings.ToLower(q)) {
		if len(word) >= 3 {
			queries = append(queries, bleve.NewPrefixQuery(word))
		}
	}
	return bleve.NewDisjunctionQuery(queries...)
}

// Get loads a workflow by id, or by file name without extension.
func (l *Library) Get(id string) (*workflow.Workflow, error) {
	l.mu.RLock()
	entry, ok := l.byID[id]
	if !ok {
		for path, wid := range l.byPath {
			base := filepath.Base(path)
			if strings.TrimSuffix(base, filepath.Ext(base)) == id {
				entry, ok = l.byID[wid], true
				break
			}
		}
	}
	l.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return workflow.LoadFile(entry.Path)
}

// Entries lists every indexed workflow by name.
func (l *Library) Entries() []Entry {
	l.mu.RLock()
	n := len(l.byID)
	l.mu.RUnlock()
	results, _ := l.Search("", n+1)
	out := make([]Entry, len(results))
	for i, r := range results {
		out[i] = r.Entry
	}
	return out
}

// Watch keeps the index in sync with the directory until ctx is done.
func (l *Library) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(l.dir); err != nil {
		return fmt.Errorf("failed to watch library: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !isWorkflowFile(event.Name) {
				continue
			}
			switch {
			case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				l.remove(event.Name)
			case event.Op&(fsnotify.Write|fsnotify.Create) != 0:
				// Let the writer finish.
				time.Sleep(50 * time.Millisecond)
				if err := l.indexFile(event.Name); err != nil {
					l.logger.Warn("failed to reindex workflow", map[string]interface{}{"path": event.Name, "error": err.Error()})
					continue
				}
			default:
				continue
			}
			if l.OnChange != nil {
				l.OnChange(event.Name)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			l.logger.Warn("watch error", map[string]interface{}{"error": err.Error()})
		}
	}
}

// Close releases the index.
func (l *Library) Close() error {
	return l.index.Close()
}
