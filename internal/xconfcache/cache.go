// Package xconfcache implements the XConf Cache (§4.B): the single
// on-disk JSON artifact holding the latest complete XConf response.
// Writers stage to a sibling temp file and atomically rename, following the
// same write-temp-then-rename discipline the teacher uses for staged
// firmware uploads (internals/overlord/fwstate/handler.go's
// osutil.NewAtomicFile / AtomicWriteChmod); readers tolerate a missing file
// and reject a partially parseable one without ever observing a half
// written artifact, since the rename is the only thing that makes a new
// version visible.
package xconfcache

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/rdkcentral/rdkfwupdater-sub002/internal/model"
	"github.com/rdkcentral/rdkfwupdater-sub002/internal/rfwerr"
)

// Outcome of a cache read.
type Outcome int

const (
	Hit Outcome = iota
	Miss
	Corrupt
)

// Cache owns the single well-known XConf response artifact.
type Cache struct {
	path string
	ttl  time.Duration
	log  *zap.SugaredLogger
}

// New returns a Cache rooted at path. ttl == 0 means "always stale", the
// spec's documented default (§3).
func New(path string, ttl time.Duration, log *zap.SugaredLogger) *Cache {
	return &Cache{path: path, ttl: ttl, log: log}
}

// Read loads the cached response. Miss is returned for a missing file;
// Corrupt is returned for a file that exists but doesn't parse, or has
// aged out past the TTL. The coordinator is responsible for treating
// Corrupt the same as Miss and triggering a refetch (§4.B).
func (c *Cache) Read() (*model.XConfResponse, Outcome, error) {
	data, err := os.ReadFile(c.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, Miss, nil
		}
		return nil, Corrupt, &rfwerr.CacheError{Path: c.path, Err: err}
	}

	var resp model.XConfResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		c.log.Warnw("xconf cache file is not valid JSON, treating as corrupt", "path", c.path, "err", err)
		return nil, Corrupt, &rfwerr.CacheError{Path: c.path, Err: err}
	}

	if c.ttl <= 0 || time.Since(resp.FetchedAt) > c.ttl {
		return &resp, Corrupt, nil
	}

	return &resp, Hit, nil
}

// Write atomically replaces the cache file with resp. A write failure is a
// CacheError; per §7 the caller should log and proceed with the in-memory
// result rather than fail the whole fetch cycle.
func (c *Cache) Write(resp *model.XConfResponse) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return &rfwerr.CacheError{Path: c.path, Err: err}
	}

	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &rfwerr.CacheError{Path: c.path, Err: err}
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(c.path)+".tmp-*")
	if err != nil {
		return &rfwerr.CacheError{Path: c.path, Err: err}
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op once the rename below succeeds

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return &rfwerr.CacheError{Path: c.path, Err: err}
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return &rfwerr.CacheError{Path: c.path, Err: err}
	}
	if err := tmp.Close(); err != nil {
		return &rfwerr.CacheError{Path: c.path, Err: err}
	}

	if err := os.Rename(tmpName, c.path); err != nil {
		return &rfwerr.CacheError{Path: c.path, Err: err}
	}
	return nil
}

// Invalidate unlinks the cache file. The coordinator calls this when it
// wants to force a refetch after observing corruption.
func (c *Cache) Invalidate() error {
	err := os.Remove(c.path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return &rfwerr.CacheError{Path: c.path, Err: err}
	}
	return nil
}
