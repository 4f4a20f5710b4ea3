package app

import (
	"time"

	"github.com/hyperifyio/notionposts/internal/posts"
)

// Defaults of the deployment this tool was built for.
const (
	DefaultRootPageID   = "16ccc94eb4cf4b3d85fb31ac7be58e87"
	DefaultCollectionID = "c7cbc279-6edb-4462-85c1-84ae5af1c7b6"
	DefaultUserAgent    = "notionposts/1.0 (+https://github.com/hyperifyio/notionposts)"
	DefaultOutputPath   = "posts.json"
	DefaultCacheDir     = ".notionposts-cache"

	defaultTimeout     = 30 * time.Second
	defaultMaxAttempts = 3
	defaultConcurrency = 8
)

// Config holds runtime configuration for the application.
type Config struct {
	// Source
	RootPageID   string
	CollectionID string
	Schema       posts.Schema
	URLOverrides map[string]string

	// Record API
	APIBaseURL     string
	Token          string
	ActiveUser     string
	TimeZone       string
	UserAgent      string
	RequestTimeout time.Duration
	MaxAttempts    int
	Concurrency    int

	// Cache
	CacheDir         string
	CacheMaxAge      time.Duration
	CacheClear       bool
	CacheStrictPerms bool
	CacheOnly        bool
	StaleOnError     bool

	// Output
	OutputPath string
	Limit      int

	// Modes
	PrintSchema bool
	MCPStdio    bool
	MCPHTTPAddr string
	Verbose     bool
}

// DefaultConfig returns the configuration used when nothing is overridden.
func DefaultConfig() Config {
	return Config{
		RootPageID:     DefaultRootPageID,
		CollectionID:   DefaultCollectionID,
		Schema:         posts.DefaultSchema(),
		UserAgent:      DefaultUserAgent,
		RequestTimeout: defaultTimeout,
		MaxAttempts:    defaultMaxAttempts,
		Concurrency:    defaultConcurrency,
		CacheDir:       DefaultCacheDir,
		OutputPath:     DefaultOutputPath,
	}
}

// setString overwrites dst with v when v is set and dst still holds its
// zero or default value.
func setString(dst *string, def, v string) {
	if v != "" && (*dst == "" || *dst == def) {
		*dst = v
	}
}

func setInt(dst *int, def, v int) {
	if v > 0 && (*dst == 0 || *dst == def) {
		*dst = v
	}
}

func setDuration(dst *time.Duration, def, v time.Duration) {
	if v > 0 && (*dst == 0 || *dst == def) {
		*dst = v
	}
}

func setBool(dst *bool, v bool) {
	if !*dst && v {
		*dst = true
	}
}
