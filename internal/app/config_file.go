package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	yaml "gopkg.in/yaml.v3"

	"github.com/hyperifyio/notionposts/internal/notion"
	"github.com/hyperifyio/notionposts/internal/posts"
)

// FileConfig represents the single-file configuration schema.
type FileConfig struct {
	Notion struct {
		RootPageID   string `yaml:"rootPageId" json:"rootPageId"`
		CollectionID string `yaml:"collectionId" json:"collectionId"`
		APIBase      string `yaml:"apiBase" json:"apiBase"`
		Token        string `yaml:"token" json:"token"`
		ActiveUser   string `yaml:"activeUser" json:"activeUser"`
		TimeZone     string `yaml:"timeZone" json:"timeZone"`
	} `yaml:"notion" json:"notion"`

	Schema posts.Schema `yaml:"schema" json:"schema"`

	HTTP struct {
		UserAgent   string        `yaml:"userAgent" json:"userAgent"`
		Timeout     time.Duration `yaml:"timeout" json:"timeout"`
		MaxAttempts int           `yaml:"maxAttempts" json:"maxAttempts"`
		Concurrency int           `yaml:"concurrency" json:"concurrency"`
	} `yaml:"http" json:"http"`

	Cache struct {
		Dir          string        `yaml:"dir" json:"dir"`
		MaxAge       time.Duration `yaml:"maxAge" json:"maxAge"`
		Clear        bool          `yaml:"clear" json:"clear"`
		StrictPerms  bool          `yaml:"strictPerms" json:"strictPerms"`
		Only         bool          `yaml:"only" json:"only"`
		StaleOnError bool          `yaml:"staleOnError" json:"staleOnError"`
	} `yaml:"cache" json:"cache"`

	Output       string            `yaml:"output" json:"output"`
	Limit        int               `yaml:"limit" json:"limit"`
	URLOverrides map[string]string `yaml:"urlOverrides" json:"urlOverrides"`

	MCP struct {
		Stdio bool   `yaml:"stdio" json:"stdio"`
		HTTP  string `yaml:"http" json:"http"`
	} `yaml:"mcp" json:"mcp"`

	Verbose bool `yaml:"verbose" json:"verbose"`
}

// LoadConfigFile reads YAML or JSON into FileConfig.
func LoadConfigFile(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	switch ext := filepath.Ext(path); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &fc); err != nil {
			return fc, fmt.Errorf("parse yaml: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(b, &fc); err != nil {
			return fc, fmt.Errorf("parse json: %w", err)
		}
	default:
		if err := yaml.Unmarshal(b, &fc); err != nil {
			if jerr := json.Unmarshal(b, &fc); jerr != nil {
				return fc, fmt.Errorf("parse config: %v (yaml) / %v (json)", err, jerr)
			}
		}
	}
	return fc, nil
}

// ApplyFileConfig overlays values from fc into cfg for any fields that are
// still zero or default, so flags and env keep precedence.
func ApplyFileConfig(cfg *Config, fc FileConfig) {
	if cfg == nil {
		return
	}
	def := DefaultConfig()

	setString(&cfg.RootPageID, def.RootPageID, fc.Notion.RootPageID)
	setString(&cfg.CollectionID, def.CollectionID, fc.Notion.CollectionID)
	setString(&cfg.APIBaseURL, def.APIBaseURL, fc.Notion.APIBase)
	setString(&cfg.Token, def.Token, fc.Notion.Token)
	setString(&cfg.ActiveUser, def.ActiveUser, fc.Notion.ActiveUser)
	setString(&cfg.TimeZone, def.TimeZone, fc.Notion.TimeZone)

	setString(&cfg.Schema.TitleKey, def.Schema.TitleKey, fc.Schema.TitleKey)
	setString(&cfg.Schema.PublicKey, def.Schema.PublicKey, fc.Schema.PublicKey)
	setString(&cfg.Schema.DateKey, def.Schema.DateKey, fc.Schema.DateKey)
	setString(&cfg.Schema.TagsKey, def.Schema.TagsKey, fc.Schema.TagsKey)

	setString(&cfg.UserAgent, def.UserAgent, fc.HTTP.UserAgent)
	setDuration(&cfg.RequestTimeout, def.RequestTimeout, fc.HTTP.Timeout)
	setInt(&cfg.MaxAttempts, def.MaxAttempts, fc.HTTP.MaxAttempts)
	setInt(&cfg.Concurrency, def.Concurrency, fc.HTTP.Concurrency)

	setString(&cfg.CacheDir, def.CacheDir, fc.Cache.Dir)
	setDuration(&cfg.CacheMaxAge, def.CacheMaxAge, fc.Cache.MaxAge)
	setBool(&cfg.CacheClear, fc.Cache.Clear)
	setBool(&cfg.CacheStrictPerms, fc.Cache.StrictPerms)
	setBool(&cfg.CacheOnly, fc.Cache.Only)
	setBool(&cfg.StaleOnError, fc.Cache.StaleOnError)

	setString(&cfg.OutputPath, def.OutputPath, fc.Output)
	setInt(&cfg.Limit, def.Limit, fc.Limit)
	if len(cfg.URLOverrides) == 0 && len(fc.URLOverrides) > 0 {
		cfg.URLOverrides = make(map[string]string, len(fc.URLOverrides))
		for k, v := range fc.URLOverrides {
			cfg.URLOverrides[k] = v
		}
	}

	setBool(&cfg.MCPStdio, fc.MCP.Stdio)
	setString(&cfg.MCPHTTPAddr, def.MCPHTTPAddr, fc.MCP.HTTP)
	setBool(&cfg.Verbose, fc.Verbose)
}

// ValidateConfig performs minimal validation of required settings.
func ValidateConfig(cfg Config) error {
	if strings.TrimSpace(cfg.RootPageID) == "" {
		return errors.New("config: notion root page id is required")
	}
	if _, err := notion.ParsePageID(cfg.RootPageID); err != nil {
		return fmt.Errorf("config: root page id %q: %w", cfg.RootPageID, err)
	}
	if strings.TrimSpace(cfg.Schema.PublicKey) == "" {
		return errors.New("config: schema.public is required")
	}
	if strings.TrimSpace(cfg.Schema.TitleKey) == "" {
		return errors.New("config: schema.title is required")
	}
	if cfg.Limit < 0 || cfg.MaxAttempts < 0 || cfg.Concurrency < 0 {
		return errors.New("config: negative limits are not allowed")
	}
	if cfg.CacheOnly && strings.TrimSpace(cfg.CacheDir) == "" {
		return errors.New("config: cache-only mode requires cache.dir")
	}
	for path, id := range cfg.URLOverrides {
		if _, err := notion.ParsePageID(id); err != nil {
			return fmt.Errorf("config: url override %q: %w", path, err)
		}
	}
	return nil
}
