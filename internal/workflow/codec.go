package workflow

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Format is a serialized workflow document format.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatFromPath picks the document format from a file extension.
// Anything that is not .yaml or .yml is treated as JSON.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	}
	return FormatJSON
}

// Marshal encodes a workflow document.
func Marshal(w *Workflow, format Format) ([]byte, error) {
	switch format {
	case FormatYAML:
		var buf bytes.Buffer
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(w); err != nil {
			return nil, fmt.Errorf("failed to encode workflow: %w", err)
		}
		if err := enc.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	case FormatJSON, "":
		data, err := json.MarshalIndent(w, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("failed to encode workflow: %w", err)
		}
		return append(data, '\n'), nil
	}
	return nil, fmt.Errorf("unknown workflow format %q", format)
}

// Decode parses and validates a workflow document.
func Decode(data []byte, format Format) (*Workflow, error) {
	var w Workflow
	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(data, &w); err != nil {
			return nil, fmt.Errorf("failed to parse workflow: %w", err)
		}
	case FormatJSON, "":
		if err := json.Unmarshal(data, &w); err != nil {
			return nil, fmt.Errorf("failed to parse workflow: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown workflow format %q", format)
	}
	if w.Parameters == nil {
		w.Parameters = make(map[string]string)
	}
	if err := w.Validate(); err != nil {
		return nil, err
	}
	return &w, nil
}

// LoadFile reads a workflow document from disk.
func LoadFile(path string) (*Workflow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read workflow: %w", err)
	}
	w, err := Decode(data, FormatFromPath(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return w, nil
}

// SaveFile writes a workflow document, choosing the format from the path.
func SaveFile(w *Workflow, path string) error {
	data, err := Marshal(w, FormatFromPath(path))
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write workflow: %w", err)
	}
	return nil
}
