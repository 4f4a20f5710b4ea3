package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/notionposts/internal/cache"
	"github.com/hyperifyio/notionposts/internal/fetch"
	"github.com/hyperifyio/notionposts/internal/mcp"
	"github.com/hyperifyio/notionposts/internal/notion"
	"github.com/hyperifyio/notionposts/internal/posts"
	"github.com/hyperifyio/notionposts/internal/slug"
)

type App struct {
	cfg       Config
	client    *notion.Client
	extractor *posts.Extractor
	httpCache *cache.HTTPCache
}

// Index is the document written by Build.
type Index struct {
	Posts []posts.Post `json:"posts"`
}

func New(ctx context.Context, cfg Config) (*App, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	base := cfg.APIBaseURL
	if base == "" {
		base = notion.DefaultBaseURL
	}
	jar, err := notion.NewCookieJar(base, cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("cookie jar: %w", err)
	}

	api := &fetch.Client{
		HTTPClient:        newHTTPClient(cfg.RequestTimeout, jar),
		UserAgent:         cfg.UserAgent,
		MaxAttempts:       cfg.MaxAttempts,
		PerRequestTimeout: cfg.RequestTimeout,
		MaxConcurrent:     cfg.Concurrency,
		CacheOnly:         cfg.CacheOnly,
		StaleOnError:      cfg.StaleOnError,
	}
	if cfg.ActiveUser != "" {
		api.Header = http.Header{"X-Notion-Active-User-Header": {cfg.ActiveUser}}
	}

	a := &App{cfg: cfg}
	if cfg.CacheDir != "" {
		if cfg.CacheClear {
			if err := cache.ClearDir(cfg.CacheDir); err != nil {
				log.Warn().Err(err).Str("dir", cfg.CacheDir).Msg("cache clear failed")
			}
		}
		if cfg.CacheMaxAge > 0 {
			if n, err := cache.PurgeHTTPCacheByAge(cfg.CacheDir, cfg.CacheMaxAge); err != nil {
				log.Warn().Err(err).Msg("cache purge failed")
			} else if n > 0 {
				log.Debug().Int("removed", n).Msg("purged expired cache entries")
			}
		}
		a.httpCache = &cache.HTTPCache{Dir: cfg.CacheDir, MaxAge: cfg.CacheMaxAge, StrictPerms: cfg.CacheStrictPerms}
		api.Cache = a.httpCache
	}

	log.Debug().Str("version", BuildVersion).Str("api", base).Bool("cache", cfg.CacheDir != "").Msg("app initialized")
	a.client = &notion.Client{API: api, BaseURL: base, TimeZone: cfg.TimeZone}
	resolver := slug.Canonical{Overrides: cfg.URLOverrides, TitleKey: cfg.Schema.TitleKey}
	a.extractor = posts.New(a.client, resolver, posts.Options{
		CollectionID: cfg.CollectionID,
		Schema:       cfg.Schema,
		Concurrency:  cfg.Concurrency,
		Limit:        cfg.Limit,
	})
	return a, nil
}

func (a *App) Close() {
	// nothing yet
}

// Posts extracts the current post list. It never fails; see posts.Extractor.
func (a *App) Posts(ctx context.Context) []posts.Post {
	return a.extractor.Extract(ctx, a.cfg.RootPageID)
}

// Run dispatches to the configured mode.
func (a *App) Run(ctx context.Context) error {
	switch {
	case a.cfg.PrintSchema:
		return a.WriteSchema(ctx, os.Stdout)
	case a.cfg.MCPHTTPAddr != "":
		return mcp.ServeHTTP(mcp.NewServer(a), a.cfg.MCPHTTPAddr)
	case a.cfg.MCPStdio:
		return mcp.ServeStdio(mcp.NewServer(a))
	default:
		return a.Build(ctx)
	}
}

// Build extracts the posts and writes them as JSON to the output path, or to
// stdout when the path is "-".
func (a *App) Build(ctx context.Context) error {
	list := a.Posts(ctx)
	if len(list) == 0 {
		log.Warn().Str("root", a.cfg.RootPageID).Msg("no posts extracted; either none are public or the upstream was unavailable")
	}
	b, err := json.MarshalIndent(Index{Posts: list}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode posts: %w", err)
	}
	b = append(b, '\n')
	if a.cfg.OutputPath == "-" {
		_, err := os.Stdout.Write(b)
		return err
	}
	if err := writeFileAtomic(a.cfg.OutputPath, b); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	log.Info().Str("out", a.cfg.OutputPath).Int("posts", len(list)).Msg("wrote post index")
	return nil
}

// WriteSchema prints the property schema of the posts collection so the
// configured keys can be checked against the workspace.
func (a *App) WriteSchema(ctx context.Context, w io.Writer) error {
	graph, err := a.client.GetPage(ctx, a.cfg.RootPageID)
	if err != nil {
		return fmt.Errorf("fetch root page: %w", err)
	}
	ids := make([]string, 0, len(graph.Collection))
	for id := range graph.Collection {
		if a.cfg.CollectionID == "" || notion.SameID(id, a.cfg.CollectionID) {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return fmt.Errorf("collection %q not found under root page", a.cfg.CollectionID)
	}
	sort.Strings(ids)

	roles := map[string]string{
		a.cfg.Schema.TitleKey:  "title",
		a.cfg.Schema.PublicKey: "public",
		a.cfg.Schema.DateKey:   "date",
		a.cfg.Schema.TagsKey:   "tags",
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, id := range ids {
		coll, ok := graph.CollectionValue(id)
		if !ok {
			continue
		}
		fmt.Fprintf(tw, "collection %s\n", id)
		fmt.Fprintln(tw, "KEY\tNAME\tTYPE\tROLE")
		keys := make([]string, 0, len(coll.Schema))
		for k := range coll.Schema {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			p := coll.Schema[k]
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", k, p.Name, p.Type, roles[k])
		}
		for key, role := range roles {
			if _, ok := coll.Schema[key]; key != "" && !ok {
				log.Warn().Str("key", key).Str("role", role).Str("collection", id).Msg("configured schema key missing from collection")
			}
		}
	}
	return tw.Flush()
}

func writeFileAtomic(path string, b []byte) error {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	tmp, err := os.CreateTemp(dir, "."+strings.TrimPrefix(filepath.Base(path), ".")+".*.tmp")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}
