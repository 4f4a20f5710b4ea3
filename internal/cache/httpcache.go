package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// HTTPEntry describes a cached record API response.
type HTTPEntry struct {
	Key         string    `json:"key"`
	URL         string    `json:"url"`
	ContentType string    `json:"content_type"`
	SavedAt     time.Time `json:"saved_at"`
}

// HTTPCache stores responses on disk as <key>.meta.json and <key>.body. Keys
// come from KeyFrom so POST bodies take part in the identity of an entry.
// No eviction policy is included; see PurgeHTTPCacheByAge.
type HTTPCache struct {
	Dir string
	// MaxAge bounds how long an entry is served without going upstream.
	// Zero means entries are never considered fresh.
	MaxAge time.Duration
	// StrictPerms enforces 0700 on the directory and 0600 on files.
	StrictPerms bool
}

// KeyFrom builds a cache key from the request URL and body.
func KeyFrom(url string, body []byte) string {
	h := sha256.New()
	h.Write([]byte(url))
	h.Write([]byte("\n\n"))
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

func (c *HTTPCache) ensureDir() error {
	if c == nil || c.Dir == "" {
		return errors.New("cache dir not configured")
	}
	perm := os.FileMode(0o755)
	if c.StrictPerms {
		perm = 0o700
	}
	if err := os.MkdirAll(c.Dir, perm); err != nil {
		return err
	}
	if c.StrictPerms {
		if info, err := os.Stat(c.Dir); err == nil && info.Mode()&0o777 != 0o700 {
			_ = os.Chmod(c.Dir, 0o700)
		}
	}
	return nil
}

func (c *HTTPCache) fileMode() os.FileMode {
	if c.StrictPerms {
		return 0o600
	}
	return 0o644
}

func (c *HTTPCache) metaPath(key string) string { return filepath.Join(c.Dir, key+".meta.json") }
func (c *HTTPCache) bodyPath(key string) string { return filepath.Join(c.Dir, key+".body") }

// LoadMeta returns entry metadata if present.
func (c *HTTPCache) LoadMeta(_ context.Context, key string) (*HTTPEntry, error) {
	if err := c.ensureDir(); err != nil {
		return nil, err
	}
	b, err := os.ReadFile(c.metaPath(key))
	if err != nil {
		return nil, err
	}
	var e HTTPEntry
	if err := json.Unmarshal(b, &e); err != nil {
		return nil, fmt.Errorf("decode meta: %w", err)
	}
	return &e, nil
}

// LoadBody returns the cached body if present.
func (c *HTTPCache) LoadBody(_ context.Context, key string) ([]byte, error) {
	if err := c.ensureDir(); err != nil {
		return nil, err
	}
	return os.ReadFile(c.bodyPath(key))
}

// Fresh reports whether an entry exists and is younger than MaxAge.
func (c *HTTPCache) Fresh(ctx context.Context, key string) bool {
	if c == nil || c.MaxAge <= 0 {
		return false
	}
	meta, err := c.LoadMeta(ctx, key)
	if err != nil {
		return false
	}
	return time.Since(meta.SavedAt) <= c.MaxAge
}

// Save stores a new cache entry. The body is written first so a reader that
// finds the meta file always finds a body next to it.
func (c *HTTPCache) Save(_ context.Context, key string, url string, contentType string, body []byte) error {
	if err := c.ensureDir(); err != nil {
		return err
	}
	if err := os.WriteFile(c.bodyPath(key), body, c.fileMode()); err != nil {
		return fmt.Errorf("write body: %w", err)
	}
	meta := HTTPEntry{
		Key:         key,
		URL:         url,
		ContentType: contentType,
		SavedAt:     time.Now().UTC(),
	}
	b, err := json.Marshal(&meta)
	if err != nil {
		return fmt.Errorf("encode meta: %w", err)
	}
	tmp := c.metaPath(key) + ".tmp"
	if err := os.WriteFile(tmp, b, c.fileMode()); err != nil {
		return fmt.Errorf("write meta: %w", err)
	}
	return os.Rename(tmp, c.metaPath(key))
}
