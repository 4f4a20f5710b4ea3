package posts

import (
	"encoding/json"
	"slices"
	"strings"
	"time"

	"github.com/hyperifyio/notionposts/internal/notion"
)

const dateLayout = "2006-01-02"

// ParseDate returns the start date of a date property as YYYY-MM-DD. A full
// RFC 3339 timestamp is reduced to its date; anything else is rejected.
func ParseDate(raw json.RawMessage) (string, bool) {
	d, ok := notion.ParseDate(raw)
	if !ok {
		return "", false
	}
	return NormalizeDate(d.StartDate)
}

// NormalizeDate validates s and returns it in YYYY-MM-DD form.
func NormalizeDate(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(dateLayout, s); err == nil {
		return t.Format(dateLayout), true
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.Format(dateLayout), true
	}
	return "", false
}

// ParseTags splits a comma-separated tag list. Empty input yields an empty,
// non-nil list.
func ParseTags(s string) []string {
	return notion.SplitTags(s)
}

// SortByDate orders posts newest first. Posts without a date move after all
// dated posts; ties keep their relative order.
func SortByDate(posts []Post) {
	slices.SortStableFunc(posts, func(a, b Post) int {
		switch {
		case a.Date == "" && b.Date == "":
			return 0
		case a.Date == "":
			return 1
		case b.Date == "":
			return -1
		}
		return strings.Compare(b.Date, a.Date)
	})
}
