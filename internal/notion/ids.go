package notion

import (
	"errors"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// ErrInvalidID is returned when a string carries no recognisable page ID.
var ErrInvalidID = errors.New("invalid page id")

var pageIDPattern = regexp.MustCompile(`(?i)([0-9a-f]{8}-?[0-9a-f]{4}-?[0-9a-f]{4}-?[0-9a-f]{4}-?[0-9a-f]{12})(?:[?#].*)?$`)

// NormalizeID returns the dashed UUID form of id.
func NormalizeID(id string) (string, error) {
	u, err := uuid.Parse(strings.TrimSpace(id))
	if err != nil {
		return "", ErrInvalidID
	}
	return u.String(), nil
}

// CompactID strips every '-' from id.
func CompactID(id string) string {
	return strings.ReplaceAll(id, "-", "")
}

// ParsePageID extracts a page ID from a bare ID or a page URL such as
// https://www.notion.so/My-Post-16ccc94eb4cf4b3d85fb31ac7be58e87.
func ParsePageID(s string) (string, error) {
	s = strings.TrimSpace(s)
	if id, err := NormalizeID(s); err == nil {
		return id, nil
	}
	m := pageIDPattern.FindStringSubmatch(s)
	if m == nil {
		return "", ErrInvalidID
	}
	return NormalizeID(m[1])
}

// SameID reports whether a and b name the same page regardless of dashes
// and case.
func SameID(a, b string) bool {
	return a != "" && strings.EqualFold(CompactID(a), CompactID(b))
}

// idForms lists the keys under which id may appear in a record map.
func idForms(id string) []string {
	forms := []string{id}
	if n, err := NormalizeID(id); err == nil {
		if n != id {
			forms = append(forms, n)
		}
		if c := CompactID(n); c != id {
			forms = append(forms, c)
		}
	}
	return forms
}
