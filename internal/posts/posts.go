// Package posts recovers the list of published blog posts from a workspace
// collection.
//
// Extract never fails: upstream and record-shape problems are logged and
// degrade to dropping a post, or to an empty list when the root page cannot
// be read. Callers cannot tell "no posts" from "upstream unavailable".
package posts

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/hyperifyio/notionposts/internal/notion"
	"github.com/hyperifyio/notionposts/internal/slug"
)

// Untitled is used when a post has no title.
const Untitled = "Untitled"

// PublicValue is the literal a post's public property must hold.
const PublicValue = "Yes"

// Failure classes used when logging dropped candidates.
var (
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	ErrMalformedRecord     = errors.New("malformed record")
	ErrNotPublic           = errors.New("not public")
)

// Post is one published entry of the collection.
type Post struct {
	ID    string   `json:"id"`
	Title string   `json:"title"`
	Slug  string   `json:"slug"`
	Date  string   `json:"date,omitempty"`
	Tags  []string `json:"tags"`
}

// Schema holds the workspace-specific property keys of the posts collection.
// The keys are opaque and must be kept in sync with the workspace by hand.
type Schema struct {
	TitleKey  string `yaml:"title" json:"title"`
	PublicKey string `yaml:"public" json:"public"`
	DateKey   string `yaml:"date" json:"date"`
	TagsKey   string `yaml:"tags" json:"tags"`
}

// DefaultSchema returns the keys of the blog collection this site ships with.
func DefaultSchema() Schema {
	return Schema{
		TitleKey:  "title",
		PublicKey: "==~K",
		DateKey:   "a<ql",
		TagsKey:   "BN]P",
	}
}

// PageFetcher fetches the record graph of a page.
type PageFetcher interface {
	GetPage(ctx context.Context, pageID string) (*notion.RecordMap, error)
}

// Options configure an Extractor.
type Options struct {
	// CollectionID selects the posts collection. When empty the first
	// collection (by ID) with query results is used.
	CollectionID string
	Schema       Schema
	// Concurrency bounds the per-post fetches in flight. Defaults to 8.
	Concurrency int
	// Limit caps the sorted result. Zero means no cap.
	Limit int
}

// Extractor turns a root page into an ordered list of posts.
type Extractor struct {
	fetcher  PageFetcher
	resolver slug.Resolver
	opts     Options
}

// New returns an Extractor. A nil resolver means slugs always fall back to
// the compact block ID.
func New(fetcher PageFetcher, resolver slug.Resolver, opts Options) *Extractor {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 8
	}
	def := DefaultSchema()
	if opts.Schema.TitleKey == "" {
		opts.Schema.TitleKey = def.TitleKey
	}
	return &Extractor{fetcher: fetcher, resolver: resolver, opts: opts}
}

// Extract returns the public posts under rootID, newest first. Posts without
// a date follow all dated posts in collection order.
func (e *Extractor) Extract(ctx context.Context, rootID string) (out []Post) {
	out = []Post{}
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("root", rootID).Msg("post extraction aborted")
			out = []Post{}
		}
	}()

	graph, err := e.fetcher.GetPage(ctx, rootID)
	if err != nil {
		log.Warn().Err(fmt.Errorf("%w: %w", ErrUpstreamUnavailable, err)).Str("root", rootID).Msg("root page fetch failed")
		return out
	}
	ids := e.candidates(graph)
	if len(ids) == 0 {
		log.Debug().Str("root", rootID).Msg("no post candidates")
		return out
	}

	results := make([]*Post, len(ids))
	g := new(errgroup.Group)
	g.SetLimit(e.opts.Concurrency)
	for i, id := range ids {
		g.Go(func() error {
			p, err := e.resolve(ctx, id)
			if err != nil {
				ev := log.Debug()
				if errors.Is(err, ErrUpstreamUnavailable) {
					ev = log.Warn()
				}
				ev.Err(err).Str("page", id).Msg("post dropped")
				return nil
			}
			results[i] = p
			return nil
		})
	}
	_ = g.Wait()

	for _, p := range results {
		if p != nil {
			out = append(out, *p)
		}
	}
	SortByDate(out)
	if e.opts.Limit > 0 && len(out) > e.opts.Limit {
		out = out[:e.opts.Limit]
	}
	log.Debug().Str("root", rootID).Int("candidates", len(ids)).Int("posts", len(out)).Msg("posts extracted")
	return out
}

// candidates returns the ordered row IDs of the first view of the posts
// collection that carries group results.
func (e *Extractor) candidates(graph *notion.RecordMap) []string {
	if graph == nil || len(graph.CollectionQuery) == 0 {
		return nil
	}
	views, ok := e.collectionViews(graph)
	if !ok {
		return nil
	}
	keys := make([]string, 0, len(views))
	for k := range views {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if res := views[k].CollectionGroupResults; res != nil {
			return res.BlockIDs
		}
	}
	return nil
}

func (e *Extractor) collectionViews(graph *notion.RecordMap) (map[string]notion.CollectionQueryResult, bool) {
	if id := e.opts.CollectionID; id != "" {
		if views, ok := graph.CollectionQuery[id]; ok {
			return views, true
		}
		for k, views := range graph.CollectionQuery {
			if notion.SameID(k, id) {
				return views, true
			}
		}
		return nil, false
	}
	keys := make([]string, 0, len(graph.CollectionQuery))
	for k := range graph.CollectionQuery {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if len(graph.CollectionQuery[k]) > 0 {
			return graph.CollectionQuery[k], true
		}
	}
	return nil, false
}

// resolve fetches one candidate and builds its post.
func (e *Extractor) resolve(ctx context.Context, id string) (p *Post, err error) {
	defer func() {
		if r := recover(); r != nil {
			p, err = nil, fmt.Errorf("%w: %v", ErrMalformedRecord, r)
		}
	}()

	graph, err := e.fetcher.GetPage(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUpstreamUnavailable, err)
	}
	block, ok := graph.BlockValue(id)
	if !ok {
		return nil, fmt.Errorf("%w: block missing", ErrMalformedRecord)
	}
	if block.Properties == nil {
		return nil, fmt.Errorf("%w: properties missing", ErrMalformedRecord)
	}
	s := e.opts.Schema
	if v, _ := block.Properties.FirstText(s.PublicKey); v != PublicValue {
		return nil, ErrNotPublic
	}

	blockID := block.ID
	if blockID == "" {
		blockID = id
	}
	post := &Post{
		ID:    blockID,
		Title: Untitled,
		Tags:  []string{},
	}
	if title, ok := block.Properties.FirstText(s.TitleKey); ok && strings.TrimSpace(title) != "" {
		post.Title = title
	}
	if e.resolver != nil {
		post.Slug = e.resolver.Resolve(blockID, graph, slug.Options{UUID: true})
	}
	if post.Slug == "" {
		post.Slug = notion.CompactID(blockID)
	}
	if raw, ok := block.Properties.Get(s.DateKey); ok {
		post.Date, _ = ParseDate(raw)
	}
	if raw, ok := block.Properties.Get(s.TagsKey); ok {
		if tags, ok := notion.ParseMultiSelect(raw); ok {
			post.Tags = tags
		}
	}
	return post, nil
}
