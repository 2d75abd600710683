package workflow

// SuccessCriteria is a set of optional predicates over the observed state
// after a strategy acts. Present predicates are combined with AND; an empty
// set is satisfied immediately. TimeoutSuccess is the exception: when the
// budget runs out with no error observed the criteria pass, even if other
// predicates were never met.
type SuccessCriteria struct {
	URLContains       *string `json:"url_contains,omitempty" yaml:"url_contains,omitempty"`
	URLPattern        *string `json:"url_pattern,omitempty" yaml:"url_pattern,omitempty"`
	URLChanged        bool    `json:"url_changed,omitempty" yaml:"url_changed,omitempty"`
	PageContainsText  *string `json:"page_contains_text,omitempty" yaml:"page_contains_text,omitempty"`
	ElementVisible    *string `json:"element_visible,omitempty" yaml:"element_visible,omitempty"`
	AppActive         *string `json:"app_active,omitempty" yaml:"app_active,omitempty"`
	MinExtractedCount *int    `json:"min_extracted_count,omitempty" yaml:"min_extracted_count,omitempty"`
	TimeoutSuccess    bool    `json:"timeout_success,omitempty" yaml:"timeout_success,omitempty"`
}

// IsEmpty reports whether no predicate is set.
func (c SuccessCriteria) IsEmpty() bool {
	return !c.HasStatePredicates() && !c.TimeoutSuccess
}

// HasStatePredicates reports whether any predicate other than
// timeout_success is set.
func (c SuccessCriteria) HasStatePredicates() bool {
	return c.URLContains != nil || c.URLPattern != nil || c.URLChanged ||
		c.PageContainsText != nil || c.ElementVisible != nil ||
		c.AppActive != nil || c.MinExtractedCount != nil
}

// MapStrings returns a copy with f applied to every text predicate.
func (c SuccessCriteria) MapStrings(f func(string) string) SuccessCriteria {
	c.URLContains = mapPtr(c.URLContains, f)
	c.URLPattern = mapPtr(c.URLPattern, f)
	c.PageContainsText = mapPtr(c.PageContainsText, f)
	c.ElementVisible = mapPtr(c.ElementVisible, f)
	c.AppActive = mapPtr(c.AppActive, f)
	return c
}

// Names lists the set predicates, for logs and diagnostics.
func (c SuccessCriteria) Names() []string {
	var out []string
	if c.URLContains != nil {
		out = append(out, "url_contains")
	}
	if c.URLPattern != nil {
		out = append(out, "url_pattern")
	}
	if c.URLChanged {
		out = append(out, "url_changed")
	}
	if c.PageContainsText != nil {
		out = append(out, "page_contains_text")
	}
	if c.ElementVisible != nil {
		out = append(out, "element_visible")
	}
	if c.AppActive != nil {
		out = append(out, "app_active")
	}
	if c.MinExtractedCount != nil {
		out = append(out, "min_extracted_count")
	}
	if c.TimeoutSuccess {
		out = append(out, "timeout_success")
	}
	return out
}
