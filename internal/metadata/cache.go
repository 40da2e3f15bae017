// Package metadata keeps a persistent, staleness-aware cache of file
// checksums so callers can skip re-hashing files that have not changed.
package metadata

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"time"
	"unicode/utf8"
)

// ErrNotFound is returned when a path required by an operation does not exist
var ErrNotFound = errors.New("path not found")

// Lookup outcomes reported to a Recorder
const (
	LookupHit     = "hit"
	LookupMiss    = "miss"
	LookupStale   = "stale"
	LookupSkipped = "skipped"
)

// Checksummer computes the content digest of a file
type Checksummer interface {
	Sum(path string) (string, error)
}

// Recorder observes cache activity. A nil Recorder is allowed.
type Recorder interface {
	ObserveLookup(result string)
	ObserveChecksum(d time.Duration)
}

// Cache resolves file metadata, recomputing checksums only for files whose
// modification time moved since they were last hashed.
//
// Calls are not mutually excluded. Two concurrent GetMetadata calls race on
// the backing store and the last writer wins; serialize externally if that
// matters.
type Cache struct {
	store    *Store
	engine   Checksummer
	logger   *slog.Logger
	recorder Recorder
}

// NewCache creates a cache over store using engine for checksums
func NewCache(store *Store, engine Checksummer, logger *slog.Logger) *Cache {
	return &Cache{
		store:  store,
		engine: engine,
		logger: logger,
	}
}

// WithRecorder attaches a Recorder and returns the cache
func (c *Cache) WithRecorder(r Recorder) *Cache {
	c.recorder = r
	return c
}

// GetMetadata returns one record per existing regular file in paths. Paths
// that are missing or not regular files are skipped silently. Results are in
// resolution order; callers should match on Record.Path.
//
// A record is recomputed when ignoreModTime is set or when the file's
// current modification epoch differs from the stored one. The complete
// collection, including records untouched by this call, is written back
// before returning.
func (c *Cache) GetMetadata(paths []string, ignoreModTime bool) ([]Record, error) {
	c.logger.Debug("getting cached file metadata", "paths", len(paths), "ignore_modtime", ignoreModTime)

	h, records, err := c.store.open()
	if err != nil {
		return nil, err
	}

	index := make(map[string]int, len(records))
	for i, r := range records {
		index[r.Path] = i
	}

	result := make([]Record, 0, len(paths))
	for _, path := range paths {
		// The store is JSON, which cannot hold such a path unchanged.
		if !utf8.ValidString(path) {
			c.logger.Warn("skipping path that is not valid UTF-8", "path", path)
			c.observeLookup(LookupSkipped)
			continue
		}

		info, err := os.Stat(path)
		if err != nil || !info.Mode().IsRegular() {
			c.observeLookup(LookupSkipped)
			continue
		}

		modified, err := epochOf(info)
		if err != nil {
			c.logger.Warn("skipping file with invalid modification time", "path", path, "error", err)
			c.observeLookup(LookupSkipped)
			continue
		}

		i, exists := index[path]
		if exists && !ignoreModTime && records[i].LastModified == modified {
			c.observeLookup(LookupHit)
			result = append(result, records[i])
			continue
		}

		sum, err := c.checksum(path)
		if err != nil {
			// The file vanished or became unreadable between stat and read.
			c.logger.Warn("skipping file that could not be hashed", "path", path, "error", err)
			c.observeLookup(LookupSkipped)
			continue
		}

		record := Record{
			Path:         path,
			Checksum:     sum,
			LastModified: modified,
		}

		if exists {
			c.observeLookup(LookupStale)
			records[i] = record
		} else {
			c.observeLookup(LookupMiss)
			index[path] = len(records)
			records = append(records, record)
		}
		result = append(result, record)
	}

	if err := h.write(records); err != nil {
		_ = h.close()
		return nil, err
	}
	if err := h.close(); err != nil {
		return nil, err
	}

	c.logger.Debug("file metadata resolved", "requested", len(paths), "resolved", len(result), "cached", len(records))
	return result, nil
}

// Clear removes every cached record
func (c *Cache) Clear() error {
	return c.store.Clear()
}

func (c *Cache) checksum(path string) (string, error) {
	start := time.Now()
	sum, err := c.engine.Sum(path)
	if err != nil {
		return "", err
	}
	if c.recorder != nil {
		c.recorder.ObserveChecksum(time.Since(start))
	}
	return sum, nil
}

func (c *Cache) observeLookup(result string) {
	if c.recorder != nil {
		c.recorder.ObserveLookup(result)
	}
}

// ModifiedEpoch returns the modification time of path in whole seconds
// since the Unix epoch
func ModifiedEpoch(path string) (uint64, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return 0, err
	}
	return epochOf(info)
}

func epochOf(info fs.FileInfo) (uint64, error) {
	secs := info.ModTime().Unix()
	if secs < 0 {
		return 0, fmt.Errorf("modification time %s is before the unix epoch", info.ModTime())
	}
	return uint64(secs), nil
}
