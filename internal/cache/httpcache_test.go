package cache

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestHTTPCache_SaveLoad(t *testing.T) {
	t.Parallel()
	c := &HTTPCache{Dir: t.TempDir()}
	key := KeyFrom("https://www.notion.so/api/v3/loadPageChunk", []byte(`{"pageId":"a"}`))
	if err := c.Save(context.Background(), key, "https://www.notion.so/api/v3/loadPageChunk", "application/json", []byte(`{"ok":true}`)); err != nil {
		t.Fatalf("save: %v", err)
	}
	body, err := c.LoadBody(context.Background(), key)
	if err != nil {
		t.Fatalf("load body: %v", err)
	}
	if string(body) != `{"ok":true}` {
		t.Fatalf("unexpected body %q", string(body))
	}
	meta, err := c.LoadMeta(context.Background(), key)
	if err != nil {
		t.Fatalf("load meta: %v", err)
	}
	if meta.Key != key || meta.ContentType != "application/json" {
		t.Fatalf("unexpected meta %+v", meta)
	}
}

func TestKeyFrom_BodyChangesKey(t *testing.T) {
	a := KeyFrom("https://x/api", []byte(`{"pageId":"a"}`))
	b := KeyFrom("https://x/api", []byte(`{"pageId":"b"}`))
	if a == b {
		t.Fatalf("expected distinct keys for distinct bodies")
	}
	if a != KeyFrom("https://x/api", []byte(`{"pageId":"a"}`)) {
		t.Fatalf("expected stable key")
	}
}

func TestHTTPCache_Fresh(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	c := &HTTPCache{Dir: dir, MaxAge: time.Hour}
	key := KeyFrom("u", nil)
	if c.Fresh(context.Background(), key) {
		t.Fatalf("missing entry must not be fresh")
	}
	if err := c.Save(context.Background(), key, "u", "application/json", []byte("{}")); err != nil {
		t.Fatalf("save: %v", err)
	}
	if !c.Fresh(context.Background(), key) {
		t.Fatalf("expected fresh entry")
	}
	noAge := &HTTPCache{Dir: dir}
	if noAge.Fresh(context.Background(), key) {
		t.Fatalf("zero MaxAge must never be fresh")
	}
	writeMeta(t, dir, key, time.Now().Add(-2*time.Hour))
	if c.Fresh(context.Background(), key) {
		t.Fatalf("expected stale entry")
	}
}

func TestHTTPCache_StrictPerms(t *testing.T) {
	t.Parallel()
	dir := filepath.Join(t.TempDir(), "http")
	c := &HTTPCache{Dir: dir, StrictPerms: true}
	key := KeyFrom("u", nil)
	if err := c.Save(context.Background(), key, "u", "application/json", []byte("{}")); err != nil {
		t.Fatalf("save: %v", err)
	}
	info, err := os.Stat(dir)
	if err != nil {
		t.Fatalf("stat dir: %v", err)
	}
	if got := info.Mode() & 0o777; got != 0o700 {
		t.Fatalf("dir mode = %o, want 0700", got)
	}
	finfo, err := os.Stat(filepath.Join(dir, key+".body"))
	if err != nil {
		t.Fatalf("stat body: %v", err)
	}
	if got := finfo.Mode() & 0o777; got != 0o600 {
		t.Fatalf("body mode = %o, want 0600", got)
	}
}

func TestPurgeHTTPCacheByAge(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	c := &HTTPCache{Dir: dir}
	oldKey := KeyFrom("old", nil)
	newKey := KeyFrom("new", nil)
	for _, k := range []string{oldKey, newKey} {
		if err := c.Save(context.Background(), k, k, "application/json", []byte("{}")); err != nil {
			t.Fatalf("save: %v", err)
		}
	}
	writeMeta(t, dir, oldKey, time.Now().Add(-48*time.Hour))

	removed, err := PurgeHTTPCacheByAge(dir, 24*time.Hour)
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}
	if _, err := c.LoadBody(context.Background(), oldKey); err == nil {
		t.Fatalf("expected old body removed")
	}
	if _, err := c.LoadBody(context.Background(), newKey); err != nil {
		t.Fatalf("expected new body kept: %v", err)
	}
}

func TestClearDir(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "x.body"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := ClearDir(dir); err != nil {
		t.Fatalf("clear: %v", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("readdir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected empty dir, got %d entries", len(entries))
	}
	if err := ClearDir("  "); err == nil {
		t.Fatalf("expected error for empty dir")
	}
}

func writeMeta(t *testing.T, dir, key string, savedAt time.Time) {
	t.Helper()
	b, err := json.Marshal(HTTPEntry{Key: key, SavedAt: savedAt.UTC()})
	if err != nil {
		t.Fatalf("marshal meta: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, key+".meta.json"), b, 0o644); err != nil {
		t.Fatalf("write meta: %v", err)
	}
}
