package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"vintage-mod-manager/compat"
	"vintage-mod-manager/logger"

	"github.com/pelletier/go-toml/v2"
)

// CacheEntry is one persisted row of the version table.
type CacheEntry struct {
	Range     string    `toml:"range"`
	Tag       string    `toml:"tag"`
	FetchedAt time.Time `toml:"fetched_at"`
}

// Cache is the persisted version table. It is either fully valid or dropped.
type Cache struct {
	LastRefreshed time.Time    `toml:"last_refreshed"`
	DetectedTag   string       `toml:"detected_tag,omitempty"`
	Entries       []CacheEntry `toml:"entries"`
}

// Document is the on-disk config file.
type Document struct {
	GamePath          string `toml:"game_path"`
	ManualGameVersion string `toml:"manual_game_version,omitempty"`
	Cache             *Cache `toml:"cache,omitempty"`
}

// Store owns the config document for the length of one command. Load it at
// start, Save it at the end.
type Store struct {
	path  string
	doc   Document
	table compat.Table
}

// LoadStore reads the document at path. A missing file yields defaults. A
// cache section that fails validation is dropped with a warning; a file that
// is not TOML at all is an error.
func LoadStore(path string) (*Store, error) {
	s := &Store{path: path}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	// First pass: everything except the cache.
	var head struct {
		GamePath          string `toml:"game_path"`
		ManualGameVersion string `toml:"manual_game_version"`
	}
	if err := toml.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	s.doc.GamePath = head.GamePath
	s.doc.ManualGameVersion = head.ManualGameVersion

	// Second pass: the cache, trusted only if every row validates.
	var tail struct {
		Cache *Cache `toml:"cache"`
	}
	if err := toml.Unmarshal(data, &tail); err != nil {
		logger.Log.Warnw("Dropping unreadable version cache", "path", path, "error", err)
		return s, nil
	}
	if tail.Cache == nil {
		return s, nil
	}
	table, err := tableFromCache(tail.Cache)
	if err != nil {
		logger.Log.Warnw("Dropping invalid version cache", "path", path, "error", err)
		return s, nil
	}
	s.doc.Cache = tail.Cache
	s.table = table
	return s, nil
}

func tableFromCache(c *Cache) (compat.Table, error) {
	entries := make([]compat.Entry, 0, len(c.Entries))
	for i, ce := range c.Entries {
		e, err := compat.NewEntry(ce.Range, compat.Tag(ce.Tag), ce.FetchedAt)
		if err != nil {
			return compat.Table{}, fmt.Errorf("cache entry %d: %w", i, err)
		}
		entries = append(entries, e)
	}
	return compat.NewTable(entries), nil
}

// Save writes the document through a temp file and a rename.
func (s *Store) Save() error {
	data, err := toml.Marshal(s.doc)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".config-*.toml")
	if err != nil {
		return fmt.Errorf("create temp config: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp config: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp config: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace config: %w", err)
	}
	return nil
}

// Reset replaces the document with defaults. Call Save to persist.
func (s *Store) Reset() {
	s.doc = Document{}
	s.table = compat.Table{}
}

func (s *Store) Path() string { return s.path }

func (s *Store) Document() Document { return s.doc }

func (s *Store) GamePath() string { return s.doc.GamePath }

func (s *Store) SetGamePath(p string) { s.doc.GamePath = p }

func (s *Store) ManualGameVersion() string { return s.doc.ManualGameVersion }

// SetManualGameVersion stores an override; "" clears it.
func (s *Store) SetManualGameVersion(v string) { s.doc.ManualGameVersion = v }

// Table returns the cached version table, empty when there is none.
func (s *Store) Table() compat.Table { return s.table }

// SetTable replaces the cached table and stamps the refresh time.
func (s *Store) SetTable(t compat.Table, now time.Time) {
	c := &Cache{LastRefreshed: now}
	if s.doc.Cache != nil {
		c.DetectedTag = s.doc.Cache.DetectedTag
	}
	for _, e := range t.Entries() {
		c.Entries = append(c.Entries, CacheEntry{Range: e.Range.String(), Tag: string(e.Tag), FetchedAt: e.FetchedAt})
	}
	s.doc.Cache = c
	s.table = t
}

func (s *Store) DetectedTag() compat.Tag {
	if s.doc.Cache == nil {
		return ""
	}
	return compat.Tag(s.doc.Cache.DetectedTag)
}

// SetDetectedTag records the last resolved tag. It is a no-op without a
// cache since the tag is meaningless without its table.
func (s *Store) SetDetectedTag(tag compat.Tag) {
	if s.doc.Cache != nil {
		s.doc.Cache.DetectedTag = string(tag)
	}
}

func (s *Store) LastRefreshed() time.Time {
	if s.doc.Cache == nil {
		return time.Time{}
	}
	return s.doc.Cache.LastRefreshed
}

// CacheFresh reports whether a non-empty cache was refreshed within ttl.
func (s *Store) CacheFresh(ttl time.Duration, now time.Time) bool {
	if s.table.Len() == 0 {
		return false
	}
	return now.Sub(s.LastRefreshed()) < ttl
}
