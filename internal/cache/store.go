package cache

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

// ErrNotFound is returned by Open for a key with no cache entry.
var ErrNotFound = errors.New("cache entry not found")

const (
	audioExt  = ".wav"
	tmpSuffix = ".tmp"
)

// Store is a content-addressed audio cache over one flat directory.
// One writer per key is assumed (only the download coordinator
// writes); concurrent reads of published files are safe.
type Store struct {
	dir string
	log *log.Logger
}

// NewStore opens (creating if needed) the cache directory.
func NewStore(dir string, logger *log.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}
	s := &Store{dir: dir, log: logger}
	s.sweepTemp()
	return s, nil
}

// sweepTemp removes temp files a crashed write left behind. Runs at
// open time, before any writer is active.
func (s *Store) sweepTemp() {
	dirents, err := os.ReadDir(s.dir)
	if err != nil {
		return
	}
	for _, de := range dirents {
		name := de.Name()
		if de.IsDir() || !strings.Contains(name, tmpSuffix) || strings.HasSuffix(name, audioExt) {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, name)); err == nil {
			s.log.Debug("stale temp file removed", "name", name)
		}
	}
}

// Dir returns the cache directory path.
func (s *Store) Dir() string {
	return s.dir
}

// Path returns the file path an entry for key would live at, whether
// or not it exists.
func (s *Store) Path(key string) string {
	return filepath.Join(s.dir, key+audioExt)
}

// Has reports whether a published entry exists for key. Silence
// markers count.
func (s *Store) Has(key string) bool {
	info, err := os.Stat(s.Path(key))
	return err == nil && info.Mode().IsRegular()
}

// Open returns the entry's audio bytes for reading.
func (s *Store) Open(key string) (io.ReadCloser, error) {
	f, err := os.Open(s.Path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return nil, err
	}
	return f, nil
}

// Write persists a full audio payload for key and returns the
// published path. The payload lands in a temporary file first and is
// renamed into place, so a partial write is never visible.
func (s *Store) Write(key string, src io.Reader) (string, error) {
	tmp, err := os.CreateTemp(s.dir, key+tmpSuffix+"*")
	if err != nil {
		return "", fmt.Errorf("create temp entry: %w", err)
	}
	tmpName := tmp.Name()

	n, err := io.Copy(tmp, src)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("write cache entry %s: %w", key, err)
	}

	dst := s.Path(key)
	if err := os.Rename(tmpName, dst); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("publish cache entry %s: %w", key, err)
	}
	s.log.Debug("cache entry written", "key", key, "bytes", n)
	return dst, nil
}

// WriteSilent creates the zero-byte silence marker for key.
// Idempotent: an existing entry is left untouched.
func (s *Store) WriteSilent(key string) (string, error) {
	dst := s.Path(key)
	f, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return "", fmt.Errorf("write silence marker %s: %w", key, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("write silence marker %s: %w", key, err)
	}
	return dst, nil
}

// Invalidate removes the entry for key so the next pass re-downloads
// it. Missing entries are not an error.
func (s *Store) Invalidate(key string) error {
	err := os.Remove(s.Path(key))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("invalidate cache entry %s: %w", key, err)
	}
	s.log.Debug("cache entry invalidated", "key", key)
	return nil
}

// Trim deletes the oldest entries by modification time beyond
// maxEntries. Entries whose keys appear in keep are never deleted,
// regardless of age, because the player may still read them.
func (s *Store) Trim(maxEntries int, keep map[string]struct{}) error {
	type entry struct {
		key     string
		modTime time.Time
	}

	dirents, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("scan cache directory: %w", err)
	}

	entries := make([]entry, 0, len(dirents))
	for _, de := range dirents {
		name := de.Name()
		if de.IsDir() || !strings.HasSuffix(name, audioExt) {
			continue
		}
		info, err := de.Info()
		if err != nil {
			continue
		}
		entries = append(entries, entry{
			key:     strings.TrimSuffix(name, audioExt),
			modTime: info.ModTime(),
		})
	}
	if len(entries) <= maxEntries {
		return nil
	}

	// Newest first; everything past maxEntries goes.
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].modTime.After(entries[j].modTime)
	})

	removed := 0
	for _, e := range entries[maxEntries:] {
		if _, active := keep[e.key]; active {
			continue
		}
		if err := os.Remove(s.Path(e.key)); err != nil && !errors.Is(err, os.ErrNotExist) {
			s.log.Warn("cache trim remove failed", "key", e.key, "err", err)
			continue
		}
		removed++
	}
	if removed > 0 {
		s.log.Debug("cache trimmed", "removed", removed, "kept", len(entries)-removed)
	}
	return nil
}

// Stats returns the number of published entries and their total size
// in bytes.
func (s *Store) Stats() (count int, bytes int64, err error) {
	dirents, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, 0, fmt.Errorf("scan cache directory: %w", err)
	}
	for _, de := range dirents {
		if de.IsDir() || !strings.HasSuffix(de.Name(), audioExt) {
			continue
		}
		info, err := de.Info()
		if err != nil {
			continue
		}
		count++
		bytes += info.Size()
	}
	return count, bytes, nil
}
