// Package slug resolves the canonical URL path segment of a page.
package slug

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/hyperifyio/notionposts/internal/notion"
)

// Options tune how a canonical slug is built.
type Options struct {
	// UUID appends the compact page ID to title-derived slugs.
	UUID bool
}

// Resolver turns a block ID and the graph it was fetched with into a slug.
// An empty result means no canonical slug could be derived.
type Resolver interface {
	Resolve(blockID string, graph *notion.RecordMap, opts Options) string
}

// Canonical derives slugs from URL overrides or the page title.
type Canonical struct {
	// Overrides maps URL paths to page IDs; a matching entry wins.
	Overrides map[string]string
	// TitleKey is the schema key holding the title. Defaults to "title".
	TitleKey string
}

// Resolve implements Resolver.
func (c Canonical) Resolve(blockID string, graph *notion.RecordMap, opts Options) string {
	if p := c.override(blockID); p != "" {
		return p
	}
	block, ok := graph.BlockValue(blockID)
	if !ok {
		return ""
	}
	id := block.ID
	if id == "" {
		id = blockID
	}
	compact := notion.CompactID(id)

	key := c.TitleKey
	if key == "" {
		key = "title"
	}
	var title string
	if raw, ok := block.Properties.Get(key); ok {
		if rt, ok := notion.ParseRichText(raw); ok {
			title = NormalizeTitle(rt.Plain())
		}
	}
	switch {
	case title == "":
		return compact
	case opts.UUID:
		return title + "-" + compact
	default:
		return title
	}
}

// override returns the path configured for blockID, if any. Paths are
// visited in sorted order so duplicate IDs resolve deterministically.
func (c Canonical) override(blockID string) string {
	var best string
	for path, id := range c.Overrides {
		if !notion.SameID(id, blockID) {
			continue
		}
		p := strings.Trim(path, "/")
		if p == "" {
			continue
		}
		if best == "" || p < best {
			best = p
		}
	}
	return best
}

// NormalizeTitle lower-cases s, folds accented letters to their base form and
// collapses every run of other characters into a single '-'.
func NormalizeTitle(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(folded) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimRight(b.String(), "-")
}
