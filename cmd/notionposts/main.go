package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/notionposts/internal/app"
)

func main() {
	// Logging setup
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	if err := app.LoadEnvFiles(".env", ".env.local"); err != nil {
		log.Warn().Err(err).Msg("dotenv load failed")
	}

	def := app.DefaultConfig()
	var (
		configPath   string
		rootPageID   string
		collectionID string
		apiBase      string
		token        string
		activeUser   string
		timeZone     string
		userAgent    string
		titleKey     string
		publicKey    string
		dateKey      string
		tagsKey      string
		overrides    string
		timeout      time.Duration
		maxAttempts  int
		concurrency  int
		cacheDir     string
		cacheMaxAge  time.Duration
		cacheClear   bool
		cacheStrict  bool
		cacheOnly    bool
		staleOnError bool
		outputPath   string
		limit        int
		printSchema  bool
		mcpStdio     bool
		mcpHTTP      string
		verbose      bool
		showVersion  bool
	)

	flag.StringVar(&configPath, "config", os.Getenv("NOTIONPOSTS_CONFIG"), "Path to YAML or JSON config file")
	flag.StringVar(&rootPageID, "notion.root", def.RootPageID, "Root page ID or URL embedding the posts collection")
	flag.StringVar(&collectionID, "notion.collection", def.CollectionID, "Posts collection ID (empty picks the first collection found)")
	flag.StringVar(&apiBase, "notion.api", def.APIBaseURL, "Record API base URL (default https://www.notion.so/api/v3)")
	flag.StringVar(&token, "notion.token", def.Token, "token_v2 session cookie for private workspaces")
	flag.StringVar(&activeUser, "notion.activeUser", def.ActiveUser, "Value for the x-notion-active-user-header header")
	flag.StringVar(&timeZone, "notion.tz", def.TimeZone, "Time zone sent with collection queries (default UTC)")
	flag.StringVar(&userAgent, "http.ua", def.UserAgent, "User-Agent for record API requests")
	flag.StringVar(&titleKey, "schema.title", def.Schema.TitleKey, "Schema key of the title property")
	flag.StringVar(&publicKey, "schema.public", def.Schema.PublicKey, "Schema key of the public flag property")
	flag.StringVar(&dateKey, "schema.date", def.Schema.DateKey, "Schema key of the publication date property")
	flag.StringVar(&tagsKey, "schema.tags", def.Schema.TagsKey, "Schema key of the tags property")
	flag.StringVar(&overrides, "urls", "", "Comma-separated path=pageID slug overrides, e.g. /about=<id>")
	flag.DurationVar(&timeout, "http.timeout", def.RequestTimeout, "Per-request timeout")
	flag.IntVar(&maxAttempts, "http.attempts", def.MaxAttempts, "Attempts per request for transient failures")
	flag.IntVar(&concurrency, "http.concurrency", def.Concurrency, "Maximum concurrent page fetches")
	flag.StringVar(&cacheDir, "cache.dir", def.CacheDir, "Cache directory path (empty disables the cache)")
	flag.DurationVar(&cacheMaxAge, "cache.maxAge", 0, "Freshness window for cached responses; older entries are purged (0 disables reuse)")
	flag.BoolVar(&cacheClear, "cache.clear", false, "Clear cache directory before run")
	flag.BoolVar(&cacheStrict, "cache.strictPerms", false, "Restrict cache permissions (0700 dirs, 0600 files)")
	flag.BoolVar(&cacheOnly, "cache.only", false, "Serve exclusively from cache; never contact the record API")
	flag.BoolVar(&staleOnError, "cache.staleOnError", false, "Fall back to stale cached responses when the record API fails")
	flag.StringVar(&outputPath, "output", def.OutputPath, "Path to write the post index JSON ('-' for stdout)")
	flag.IntVar(&limit, "limit", 0, "Maximum number of posts to emit (0 = all)")
	flag.BoolVar(&printSchema, "schema", false, "Print the posts collection schema and exit")
	flag.BoolVar(&mcpStdio, "mcp.stdio", false, "Serve the MCP tools over stdio")
	flag.StringVar(&mcpHTTP, "mcp.http", "", "Serve the MCP tools over streamable HTTP on this address")
	flag.BoolVar(&verbose, "v", false, "Verbose logging")
	flag.BoolVar(&showVersion, "version", false, "Print version and exit")
	flag.Parse()

	if showVersion {
		fmt.Println(app.VersionString())
		return
	}

	cfg := app.Config{
		RootPageID:       rootPageID,
		CollectionID:     collectionID,
		APIBaseURL:       apiBase,
		Token:            token,
		ActiveUser:       activeUser,
		TimeZone:         timeZone,
		UserAgent:        userAgent,
		RequestTimeout:   timeout,
		MaxAttempts:      maxAttempts,
		Concurrency:      concurrency,
		CacheDir:         cacheDir,
		CacheMaxAge:      cacheMaxAge,
		CacheClear:       cacheClear,
		CacheStrictPerms: cacheStrict,
		CacheOnly:        cacheOnly,
		StaleOnError:     staleOnError,
		OutputPath:       outputPath,
		Limit:            limit,
		PrintSchema:      printSchema,
		MCPStdio:         mcpStdio,
		MCPHTTPAddr:      mcpHTTP,
		Verbose:          verbose,
	}
	cfg.Schema.TitleKey = titleKey
	cfg.Schema.PublicKey = publicKey
	cfg.Schema.DateKey = dateKey
	cfg.Schema.TagsKey = tagsKey

	m, err := parseOverrides(overrides)
	if err != nil {
		log.Error().Err(err).Msg("invalid -urls")
		os.Exit(2)
	}
	cfg.URLOverrides = m

	if err := loadConfig(&cfg, configPath); err != nil {
		log.Error().Err(err).Msg("config failed")
		os.Exit(2)
	}

	if cfg.Verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, cfg); err != nil {
		log.Error().Err(err).Msg("run failed")
		stop()
		os.Exit(1)
	}
}

// loadConfig layers env and an optional config file under the flag values.
func loadConfig(cfg *app.Config, path string) error {
	app.ApplyEnvToConfig(cfg)
	if strings.TrimSpace(path) == "" {
		return nil
	}
	fc, err := app.LoadConfigFile(path)
	if err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	app.ApplyFileConfig(cfg, fc)
	return nil
}

// parseOverrides reads "path=id" pairs separated by commas.
func parseOverrides(s string) (map[string]string, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	out := map[string]string{}
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		path, id, ok := strings.Cut(part, "=")
		path, id = strings.TrimSpace(path), strings.TrimSpace(id)
		if !ok || path == "" || id == "" {
			return nil, fmt.Errorf("override %q: want path=pageID", part)
		}
		out[path] = id
	}
	return out, nil
}

func run(ctx context.Context, cfg app.Config) error {
	a, err := app.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("init app: %w", err)
	}
	defer a.Close()

	return a.Run(ctx)
}
