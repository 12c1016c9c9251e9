// Package store is the content-addressed preview store: an on-disk cache of
// finished artifacts keyed by a fingerprint of the request. A stored file's
// mtime holds the source file's mtime at the moment of caching (the
// staleness reference) and its atime is touched on every hit (the eviction
// reference). The janitor sweeps the tree on a schedule and evicts by size
// and age.
package store

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/platinummonkey/pvs/pkg/observability"
	"github.com/platinummonkey/pvs/pkg/preview"
)

// Store is the content-addressed cache. The zero base path disables it; Get
// then always misses with an empty key and Put is a no-op.
type Store struct {
	base    string
	metrics *observability.Metrics
	logger  *observability.Logger

	// Filesystem seams, swapped in tests to simulate write failures.
	mkdirAll func(string, os.FileMode) error
	move     func(src, dst string) error
}

// New builds a Store rooted at base. An empty base disables storage.
func New(base string, metrics *observability.Metrics, logger *observability.Logger) *Store {
	if logger == nil {
		logger = observability.NewLogger(observability.ErrorLevel, io.Discard)
	}
	return &Store{
		base:     base,
		metrics:  metrics,
		logger:   logger,
		mkdirAll: os.MkdirAll,
		move:     moveFile,
	}
}

// Enabled reports whether a base path is configured.
func (s *Store) Enabled() bool { return s != nil && s.base != "" }

// Base returns the store root.
func (s *Store) Base() string { return s.base }

// Key fingerprints a request: hex SHA-256 of origin|format|width|height|pages.
func Key(req *preview.Request) string {
	parts := []string{
		req.Origin(),
		req.Format,
		strconv.Itoa(req.Width),
		strconv.Itoa(req.Height),
		req.Pages.String(),
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}

// Path returns the on-disk location for a key: base/k[0]/k[1]/k.
func (s *Store) Path(key string) string {
	return filepath.Join(s.base, key[:1], key[1:2], key)
}

// Suffix returns path relative to the store base, for X-Accel-Redirect
// handoff. ok is false when path does not live under the base.
func (s *Store) Suffix(path string) (string, bool) {
	rel, err := filepath.Rel(s.base, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return rel, true
}

// Get looks the request up in the store. The returned key is empty when the
// store is disabled, the caller opted out, or the request has no origin; the
// caller must then skip Put as well. A stale entry (source modified since it
// was cached) is evicted and reported as a miss. On a hit the entry's atime
// is set to now, its mtime left untouched, and req.Dst is pointed at it.
func (s *Store) Get(req *preview.Request) (hit bool, key string) {
	if !s.Enabled() || req.StoreOptedOut() || req.Origin() == "" {
		return false, ""
	}

	key = Key(req)
	path := s.Path(key)

	fi, err := os.Stat(path)
	if err != nil {
		return false, key
	}

	if s.isStale(req, fi) {
		s.logger.Debugf("removing stale entry %s", key)
		s.countOp("del")
		_ = os.Remove(path)
		return false, key
	}

	s.countOp("get")
	// Update atime for LRU eviction; mtime stays as the staleness reference.
	_ = os.Chtimes(path, time.Now(), fi.ModTime())
	req.SetDst(req.NewRef(path))
	return true, key
}

// isStale reports whether the source has been modified since the entry was
// stored. When the source cannot be statted (URL downloads are temp files
// already deleted by an earlier request) the entry is kept; the janitor's
// age bound is the TTL for those.
func (s *Store) isStale(req *preview.Request, stored os.FileInfo) bool {
	src, err := os.Stat(req.Src().Path())
	if err != nil {
		return false
	}
	return src.ModTime().After(stored.ModTime())
}

// Put moves the produced artifact into the store and copies the source
// mtime onto it. A full disk is swallowed: the artifact keeps serving from
// its temp location and the store simply did not populate. Concurrent puts
// of the same key race benignly; the last rename wins.
func (s *Store) Put(key string, req *preview.Request) {
	if key == "" || !s.Enabled() || req.Dst() == nil {
		return
	}

	srcMtime := time.Now()
	if fi, err := os.Stat(req.Src().Path()); err == nil {
		srcMtime = fi.ModTime()
	}

	path := s.Path(key)
	if err := s.mkdirAll(filepath.Dir(path), 0755); err != nil {
		if errors.Is(err, syscall.ENOSPC) {
			return
		}
		s.logger.WithError(err).Warnf("could not create store directory for %s", key)
		return
	}

	if err := s.move(req.Dst().Path(), path); err != nil {
		if errors.Is(err, syscall.ENOSPC) {
			return
		}
		s.logger.WithError(err).Warnf("could not store %s", key)
		return
	}

	s.countOp("put")
	_ = os.Chtimes(path, srcMtime, srcMtime)
	req.SetDst(req.NewRef(path))
}

func (s *Store) countOp(op string) {
	if s.metrics != nil {
		s.metrics.StoreOperationsTotal.WithLabelValues(op).Inc()
	}
}

// moveFile renames src into place, falling back to a copy when the store
// lives on a different filesystem than the temp directory.
func moveFile(src, dst string) error {
	err := os.Rename(src, dst)
	if err == nil {
		return nil
	}
	if !errors.Is(err, syscall.EXDEV) {
		return err
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".pvs-put-*")
	if err != nil {
		return err
	}
	if _, err := io.Copy(tmp, in); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Remove(src)
}
