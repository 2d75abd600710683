package workflow

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Kind names the mechanism a strategy uses.
type Kind string

const (
	KindSelector    Kind = "selector"
	KindText        Kind = "text"
	KindRole        Kind = "role"
	KindVisual      Kind = "visual"
	KindCoordinates Kind = "coordinates"
	KindFocused     Kind = "focused"
	KindShortcut    Kind = "shortcut"
	KindNavigate    Kind = "navigate"
	KindLaunch      Kind = "launch"
	KindScroll      Kind = "scroll"
	KindExtract     Kind = "extract"
)

// Mechanism is the tagged payload of a Strategy. Each kind carries exactly
// the fields that are meaningful for it.
type Mechanism interface {
	Kind() Kind
	mapStrings(f func(string) string) Mechanism
}

// Strategy is one ranked way of achieving a goal.
type Strategy struct {
	Name      string
	Priority  int
	Mechanism Mechanism
}

// Kind returns the strategy's mechanism kind, or "" when unset.
func (s Strategy) Kind() Kind {
	if s.Mechanism == nil {
		return ""
	}
	return s.Mechanism.Kind()
}

// MapStrings returns a copy of s with f applied to every free-text field
// of its mechanism. Absent optional fields stay absent.
func (s Strategy) MapStrings(f func(string) string) Strategy {
	if s.Mechanism != nil {
		s.Mechanism = s.Mechanism.mapStrings(f)
	}
	return s
}

// Selector locates an element by CSS selector. A non-nil Input types the
// value into the element instead of clicking it.
type Selector struct {
	CSS    string
	Input  *string
	Submit bool
}

// TextMatch locates an element by its visible text.
type TextMatch struct {
	Text   string
	Input  *string
	Submit bool
}

// Role locates an element by accessibility role and optional name.
type Role struct {
	Role   string
	Name   *string
	Input  *string
	Submit bool
}

// Visual locates an element from a freeform description using vision.
type Visual struct {
	Description string
	Input       *string
	Submit      bool
}

// Coordinates acts at a fixed screen point.
type Coordinates struct {
	X, Y   int
	Input  *string
	Submit bool
}

// Focused types into whatever element currently has focus.
type Focused struct {
	Input  string
	Submit bool
}

// Shortcut presses a key combination. When Clipboard is set its value is
// placed on the clipboard first.
type Shortcut struct {
	Keys      string
	Clipboard *string
}

// Navigate loads a URL directly.
type Navigate struct {
	URL string
}

// Launch opens an application, or only brings it to the front.
type Launch struct {
	App          string
	ActivateOnly bool
}

// Scroll scrolls the active view.
type Scroll struct {
	Direction string
	Amount    int
}

// ExtractSource picks who reads the extraction schema off the surface.
type ExtractSource string

const (
	ExtractVision  ExtractSource = "vision"
	ExtractBackend ExtractSource = "backend"
)

// Extract reads the goal's extraction schema from the current surface.
type Extract struct {
	Source ExtractSource
}

func (Selector) Kind() Kind    { return KindSelector }
func (TextMatch) Kind() Kind   { return KindText }
func (Role) Kind() Kind        { return KindRole }
func (Visual) Kind() Kind      { return KindVisual }
func (Coordinates) Kind() Kind { return KindCoordinates }
func (Focused) Kind() Kind     { return KindFocused }
func (Shortcut) Kind() Kind    { return KindShortcut }
func (Navigate) Kind() Kind    { return KindNavigate }
func (Launch) Kind() Kind      { return KindLaunch }
func (Scroll) Kind() Kind      { return KindScroll }
func (Extract) Kind() Kind     { return KindExtract }

func mapPtr(p *string, f func(string) string) *string {
	if p == nil {
		return nil
	}
	v := f(*p)
	return &v
}

func (m Selector) mapStrings(f func(string) string) Mechanism {
	m.CSS, m.Input = f(m.CSS), mapPtr(m.Input, f)
	return m
}

func (m TextMatch) mapStrings(f func(string) string) Mechanism {
	m.Text, m.Input = f(m.Text), mapPtr(m.Input, f)
	return m
}

func (m Role) mapStrings(f func(string) string) Mechanism {
	m.Role, m.Name, m.Input = f(m.Role), mapPtr(m.Name, f), mapPtr(m.Input, f)
	return m
}

func (m Visual) mapStrings(f func(string) string) Mechanism {
	m.Description, m.Input = f(m.Description), mapPtr(m.Input, f)
	return m
}

func (m Coordinates) mapStrings(f func(string) string) Mechanism {
	m.Input = mapPtr(m.Input, f)
	return m
}

func (m Focused) mapStrings(f func(string) string) Mechanism {
	m.Input = f(m.Input)
	return m
}

func (m Shortcut) mapStrings(f func(string) string) Mechanism {
	m.Keys, m.Clipboard = f(m.Keys), mapPtr(m.Clipboard, f)
	return m
}

func (m Navigate) mapStrings(f func(string) string) Mechanism {
	m.URL = f(m.URL)
	return m
}

func (m Launch) mapStrings(f func(string) string) Mechanism {
	m.App = f(m.App)
	return m
}

func (m Scroll) mapStrings(f func(string) string) Mechanism { return m }

func (m Extract) mapStrings(f func(string) string) Mechanism { return m }

// InputOf returns the text a strategy types and whether Enter follows it.
// Input is nil for mechanisms that do not type.
func InputOf(m Mechanism) (input *string, submit bool) {
	switch v := m.(type) {
	case Selector:
		return v.Input, v.Submit
	case TextMatch:
		return v.Input, v.Submit
	case Role:
		return v.Input, v.Submit
	case Visual:
		return v.Input, v.Submit
	case Coordinates:
		return v.Input, v.Submit
	case Focused:
		return &v.Input, v.Submit
	}
	return nil, false
}

// IsLocator reports whether the mechanism targets a specific element.
func IsLocator(k Kind) bool {
	switch k {
	case KindSelector, KindText, KindRole, KindVisual, KindCoordinates:
		return true
	}
	return false
}

// strategyDoc is the flat serialized form of a Strategy. Pointer fields
// keep absent distinct from empty.
type strategyDoc struct {
	Name              string  `json:"name" yaml:"name"`
	Priority          int     `json:"priority" yaml:"priority"`
	Kind              Kind    `json:"kind" yaml:"kind"`
	Selector          *string `json:"selector,omitempty" yaml:"selector,omitempty"`
	TextMatch         *string `json:"text_match,omitempty" yaml:"text_match,omitempty"`
	Role              *string `json:"accessibility_role,omitempty" yaml:"accessibility_role,omitempty"`
	RoleName          *string `json:"accessibility_name,omitempty" yaml:"accessibility_name,omitempty"`
	VisualDescription *string `json:"visual_description,omitempty" yaml:"visual_description,omitempty"`
	Coordinates       []int   `json:"coordinates,omitempty" yaml:"coordinates,omitempty,flow"`
	InputValue        *string `json:"input_value,omitempty" yaml:"input_value,omitempty"`
	SubmitAfter       bool    `json:"submit_after,omitempty" yaml:"submit_after,omitempty"`
	ShortcutKeys      *string `json:"shortcut_keys,omitempty" yaml:"shortcut_keys,omitempty"`
	Clipboard         *string `json:"clipboard,omitempty" yaml:"clipboard,omitempty"`
	URL               *string `json:"url,omitempty" yaml:"url,omitempty"`
	App               *string `json:"app,omitempty" yaml:"app,omitempty"`
	ActivateOnly      bool    `json:"activate_only,omitempty" yaml:"activate_only,omitempty"`
	ScrollDirection   *string `json:"scroll_direction,omitempty" yaml:"scroll_direction,omitempty"`
	ScrollAmount      *int    `json:"scroll_amount,omitempty" yaml:"scroll_amount,omitempty"`
	ExtractSource     *string `json:"extract_source,omitempty" yaml:"extract_source,omitempty"`
}

func (s Strategy) toDoc() (strategyDoc, error) {
	d := strategyDoc{Name: s.Name, Priority: s.Priority, Kind: s.Kind()}
	switch m := s.Mechanism.(type) {
	case Selector:
		d.Selector, d.InputValue, d.SubmitAfter = StringPtr(m.CSS), m.Input, m.Submit
	case TextMatch:
		d.TextMatch, d.InputValue, d.SubmitAfter = StringPtr(m.Text), m.Input, m.Submit
	case Role:
		d.Role, d.RoleName, d.InputValue, d.SubmitAfter = StringPtr(m.Role), m.Name, m.Input, m.Submit
	case Visual:
		d.VisualDescription, d.InputValue, d.SubmitAfter = StringPtr(m.Description), m.Input, m.Submit
	case Coordinates:
		d.Coordinates, d.InputValue, d.SubmitAfter = []int{m.X, m.Y}, m.Input, m.Submit
	case Focused:
		d.InputValue, d.SubmitAfter = StringPtr(m.Input), m.Submit
	case Shortcut:
		d.ShortcutKeys, d.Clipboard = StringPtr(m.Keys), m.Clipboard
	case Navigate:
		d.URL = StringPtr(m.URL)
	case Launch:
		d.App, d.ActivateOnly = StringPtr(m.App), m.ActivateOnly
	case Scroll:
		d.ScrollDirection, d.ScrollAmount = StringPtr(m.Direction), IntPtr(m.Amount)
	case Extract:
		d.ExtractSource = StringPtr(string(m.Source))
	case nil:
		return d, fmt.Errorf("strategy %q has no mechanism", s.Name)
	default:
		return d, fmt.Errorf("strategy %q: unsupported mechanism %T", s.Name, m)
	}
	return d, nil
}

func require[T any](name string, kind Kind, field string, v *T) (T, error) {
	var zero T
	if v == nil {
		return zero, fmt.Errorf("strategy %q: kind %s requires %s", name, kind, field)
	}
	return *v, nil
}

func (d strategyDoc) toStrategy() (Strategy, error) {
	s := Strategy{Name: d.Name, Priority: d.Priority}
	var err error
	switch d.Kind {
	case KindSelector:
		var css string
		if css, err = require(d.Name, d.Kind, "selector", d.Selector); err == nil {
			s.Mechanism = Selector{CSS: css, Input: d.InputValue, Submit: d.SubmitAfter}
		}
	case KindText:
		var text string
		if text, err = require(d.Name, d.Kind, "text_match", d.TextMatch); err == nil {
			s.Mechanism = TextMatch{Text: text, Input: d.InputValue, Submit: d.SubmitAfter}
		}
	case KindRole:
		var role string
		if role, err = require(d.Name, d.Kind, "accessibility_role", d.Role); err == nil {
			s.Mechanism = Role{Role: role, Name: d.RoleName, Input: d.InputValue, Submit: d.SubmitAfter}
		}
	case KindVisual:
		var desc string
		if desc, err = require(d.Name, d.Kind, "visual_description", d.VisualDescription); err == nil {
			s.Mechanism = Visual{Description: desc, Input: d.InputValue, Submit: d.SubmitAfter}
		}
	case KindCoordinates:
		if len(d.Coordinates) != 2 {
			return s, fmt.Errorf("strategy %q: coordinates must be [x, y]", d.Name)
		}
		s.Mechanism = Coordinates{X: d.Coordinates[0], Y: d.Coordinates[1], Input: d.InputValue, Submit: d.SubmitAfter}
	case KindFocused:
		var input string
		if input, err = require(d.Name, d.Kind, "input_value", d.InputValue); err == nil {
			s.Mechanism = Focused{Input: input, Submit: d.SubmitAfter}
		}
	case KindShortcut:
		var keys string
		if keys, err = require(d.Name, d.Kind, "shortcut_keys", d.ShortcutKeys); err == nil {
			s.Mechanism = Shortcut{Keys: keys, Clipboard: d.Clipboard}
		}
	case KindNavigate:
		var url string
		if url, err = require(d.Name, d.Kind, "url", d.URL); err == nil {
			s.Mechanism = Navigate{URL: url}
		}
	case KindLaunch:
		var app string
		if app, err = require(d.Name, d.Kind, "app", d.App); err == nil {
			s.Mechanism = Launch{App: app, ActivateOnly: d.ActivateOnly}
		}
	case KindScroll:
		var dir string
		if dir, err = require(d.Name, d.Kind, "scroll_direction", d.ScrollDirection); err == nil {
			amount := 0
			if d.ScrollAmount != nil {
				amount = *d.ScrollAmount
			}
			s.Mechanism = Scroll{Direction: dir, Amount: amount}
		}
	case KindExtract:
		src := ExtractVision
		if d.ExtractSource != nil {
			src = ExtractSource(*d.ExtractSource)
		}
		if src != ExtractVision && src != ExtractBackend {
			return s, fmt.Errorf("strategy %q: unknown extract source %q", d.Name, src)
		}
		s.Mechanism = Extract{Source: src}
	default:
		return s, fmt.Errorf("strategy %q: unknown kind %q", d.Name, d.Kind)
	}
	return s, err
}

// MarshalJSON encodes the strategy as a flat document.
func (s Strategy) MarshalJSON() ([]byte, error) {
	d, err := s.toDoc()
	if err != nil {
		return nil, err
	}
	return json.Marshal(d)
}

// UnmarshalJSON decodes a flat strategy document.
func (s *Strategy) UnmarshalJSON(data []byte) error {
	var d strategyDoc
	if err := json.Unmarshal(data, &d); err != nil {
		return err
	}
	out, err := d.toStrategy()
	if err != nil {
		return err
	}
	*s = out
	return nil
}

// MarshalYAML encodes the strategy as a flat mapping.
func (s Strategy) MarshalYAML() (interface{}, error) {
	return s.toDoc()
}

// UnmarshalYAML decodes a flat strategy mapping.
func (s *Strategy) UnmarshalYAML(node *yaml.Node) error {
	var d strategyDoc
	if err := node.Decode(&d); err != nil {
		return err
	}
	out, err := d.toStrategy()
	if err != nil {
		return err
	}
	*s = out
	return nil
}
