package notion

import (
	"encoding/json"
	"strings"
)

// Properties maps opaque schema keys to their raw, variant-shaped values.
type Properties map[string]json.RawMessage

// TextRun is one segment of rich text together with its raw annotations.
type TextRun struct {
	Text        string
	Annotations []json.RawMessage
}

// RichText is the decoded form of a title or text property.
type RichText []TextRun

// DateProperty is the leaf object of a date annotation.
type DateProperty struct {
	Type      string `json:"type,omitempty"`
	StartDate string `json:"start_date,omitempty"`
	StartTime string `json:"start_time,omitempty"`
	EndDate   string `json:"end_date,omitempty"`
	TimeZone  string `json:"time_zone,omitempty"`
}

// MultiSelectProperty is the list of selected options of a multi-select.
type MultiSelectProperty []string

// Get returns the raw value stored under key.
func (p Properties) Get(key string) (json.RawMessage, bool) {
	if p == nil || key == "" {
		return nil, false
	}
	raw, ok := p[key]
	if !ok || len(raw) == 0 || string(raw) == "null" {
		return nil, false
	}
	return raw, true
}

// FirstText returns the first text run of the property under key.
func (p Properties) FirstText(key string) (string, bool) {
	raw, ok := p.Get(key)
	if !ok {
		return "", false
	}
	rt, ok := ParseRichText(raw)
	if !ok {
		return "", false
	}
	return rt.First()
}

// ParseRichText decodes [["text", [annotations...]], ...]. Runs whose text is
// not a string are skipped; ok is false when raw is not an array of arrays.
func ParseRichText(raw json.RawMessage) (RichText, bool) {
	var outer []json.RawMessage
	if err := json.Unmarshal(raw, &outer); err != nil {
		return nil, false
	}
	rt := make(RichText, 0, len(outer))
	for _, el := range outer {
		var run []json.RawMessage
		if err := json.Unmarshal(el, &run); err != nil || len(run) == 0 {
			continue
		}
		var text string
		if err := json.Unmarshal(run[0], &text); err != nil {
			continue
		}
		tr := TextRun{Text: text}
		if len(run) > 1 {
			_ = json.Unmarshal(run[1], &tr.Annotations)
		}
		rt = append(rt, tr)
	}
	return rt, true
}

// First returns the text of the first run.
func (rt RichText) First() (string, bool) {
	if len(rt) == 0 {
		return "", false
	}
	return rt[0].Text, true
}

// Plain concatenates all runs.
func (rt RichText) Plain() string {
	var b strings.Builder
	for _, r := range rt {
		b.WriteString(r.Text)
	}
	return b.String()
}

// ParseDate navigates [[text, [["d", {start_date...}]]]] and returns the leaf
// object. ok is false if any link of the path is missing or misshapen.
func ParseDate(raw json.RawMessage) (DateProperty, bool) {
	leaf, ok := At(raw, 0, 1, 0, 1)
	if !ok {
		return DateProperty{}, false
	}
	var d DateProperty
	if err := json.Unmarshal(leaf, &d); err != nil || d.StartDate == "" {
		return DateProperty{}, false
	}
	return d, true
}

// ParseMultiSelect reads the comma-separated leaf string of a multi-select.
// Entries are trimmed and blanks dropped, so "" yields an empty list.
func ParseMultiSelect(raw json.RawMessage) (MultiSelectProperty, bool) {
	leaf, ok := At(raw, 0, 0)
	if !ok {
		return nil, false
	}
	var s string
	if err := json.Unmarshal(leaf, &s); err != nil {
		return nil, false
	}
	return SplitTags(s), true
}

// SplitTags splits a comma-separated list, trimming entries and dropping
// empty ones. The result is never nil.
func SplitTags(s string) MultiSelectProperty {
	out := MultiSelectProperty{}
	for _, part := range strings.Split(s, ",") {
		if t := strings.TrimSpace(part); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// At walks nested JSON arrays by index.
func At(raw json.RawMessage, path ...int) (json.RawMessage, bool) {
	cur := raw
	for _, i := range path {
		var arr []json.RawMessage
		if err := json.Unmarshal(cur, &arr); err != nil {
			return nil, false
		}
		if i < 0 || i >= len(arr) {
			return nil, false
		}
		cur = arr[i]
	}
	if len(cur) == 0 || string(cur) == "null" {
		return nil, false
	}
	return cur, true
}
