package app

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// ApplyEnvToConfig populates unset or default fields of cfg from environment
// variables. Values that differ from the defaults came from flags and win.
func ApplyEnvToConfig(cfg *Config) {
	if cfg == nil {
		return
	}
	def := DefaultConfig()

	setString(&cfg.RootPageID, def.RootPageID, os.Getenv("NOTION_ROOT_PAGE_ID"))
	setString(&cfg.CollectionID, def.CollectionID, os.Getenv("NOTION_COLLECTION_ID"))
	setString(&cfg.APIBaseURL, def.APIBaseURL, os.Getenv("NOTION_API_BASE"))
	setString(&cfg.Token, def.Token, os.Getenv("NOTION_TOKEN_V2"))
	setString(&cfg.ActiveUser, def.ActiveUser, os.Getenv("NOTION_ACTIVE_USER"))
	setString(&cfg.TimeZone, def.TimeZone, os.Getenv("NOTION_TIME_ZONE"))
	setString(&cfg.UserAgent, def.UserAgent, os.Getenv("NOTION_USER_AGENT"))

	setString(&cfg.Schema.TitleKey, def.Schema.TitleKey, os.Getenv("NOTION_SCHEMA_TITLE"))
	setString(&cfg.Schema.PublicKey, def.Schema.PublicKey, os.Getenv("NOTION_SCHEMA_PUBLIC"))
	setString(&cfg.Schema.DateKey, def.Schema.DateKey, os.Getenv("NOTION_SCHEMA_DATE"))
	setString(&cfg.Schema.TagsKey, def.Schema.TagsKey, os.Getenv("NOTION_SCHEMA_TAGS"))

	setString(&cfg.CacheDir, def.CacheDir, os.Getenv("CACHE_DIR"))
	setString(&cfg.OutputPath, def.OutputPath, os.Getenv("POSTS_OUTPUT"))
	setString(&cfg.MCPHTTPAddr, def.MCPHTTPAddr, os.Getenv("MCP_HTTP_ADDR"))

	setInt(&cfg.Limit, def.Limit, envInt("POSTS_LIMIT"))
	setInt(&cfg.MaxAttempts, def.MaxAttempts, envInt("HTTP_MAX_ATTEMPTS"))
	setInt(&cfg.Concurrency, def.Concurrency, envInt("HTTP_CONCURRENCY"))

	setDuration(&cfg.RequestTimeout, def.RequestTimeout, envDuration("HTTP_TIMEOUT"))
	setDuration(&cfg.CacheMaxAge, def.CacheMaxAge, envDuration("CACHE_MAX_AGE"))

	setBool(&cfg.Verbose, envBool("VERBOSE"))
	setBool(&cfg.CacheClear, envBool("CACHE_CLEAR"))
	setBool(&cfg.CacheStrictPerms, envBool("CACHE_STRICT_PERMS"))
	setBool(&cfg.CacheOnly, envBool("CACHE_ONLY"))
	setBool(&cfg.StaleOnError, envBool("CACHE_STALE_ON_ERROR"))
	setBool(&cfg.MCPStdio, envBool("MCP_STDIO"))
}

func envInt(key string) int {
	n, err := strconv.Atoi(strings.TrimSpace(os.Getenv(key)))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func envDuration(key string) time.Duration {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		return 0
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0
	}
	return d
}

func envBool(key string) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}
