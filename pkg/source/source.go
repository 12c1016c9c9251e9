// Package source resolves preview inputs to local files. A request names its
// input one of three ways: a server-local path under the configured file
// root, an inline upload, or a URL to download. Each resolution returns the
// local path plus the origin string used as the cache identity.
package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/platinummonkey/pvs/pkg/observability"
	"github.com/platinummonkey/pvs/pkg/preview"
)

// BufferSize is the chunk size for upload and download copies. The size
// limit is enforced per chunk so an oversized transfer is aborted while it
// is still arriving.
const BufferSize = 8 * 1024 * 1024

// FileSource resolves request inputs to local files.
type FileSource struct {
	fileRoot    string
	maxFileSize int64

	client  *http.Client
	metrics *observability.Metrics
	logger  *observability.Logger
}

// New builds a FileSource. maxFileSize of zero means unbounded.
func New(fileRoot string, maxFileSize int64, metrics *observability.Metrics, logger *observability.Logger) *FileSource {
	return &FileSource{
		fileRoot:    fileRoot,
		maxFileSize: maxFileSize,
		client:      &http.Client{Timeout: 5 * time.Minute},
		metrics:     metrics,
		logger:      logger,
	}
}

// FileRoot returns the configured shared directory.
func (s *FileSource) FileRoot() string { return s.fileRoot }

func (s *FileSource) checkSize(size int64) error {
	if s.maxFileSize > 0 && size > s.maxFileSize {
		return fmt.Errorf("%w: file larger than configured maximum", preview.ErrBadInput)
	}
	return nil
}

// FromServerPath resolves a server-relative path under the file root. The
// origin is the path exactly as the caller sent it.
func (s *FileSource) FromServerPath(p string) (path, origin string, err error) {
	if p == "" {
		return "", "", fmt.Errorf("%w: no path provided", preview.ErrBadInput)
	}

	origin = p
	// Clean against the root so ".." segments cannot escape it.
	path = filepath.Join(s.fileRoot, filepath.Clean("/"+p))

	fi, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", "", fmt.Errorf("%w: %s", preview.ErrNotFound, p)
		}
		return "", "", fmt.Errorf("stat %s: %w", path, err)
	}
	if !fi.Mode().IsRegular() {
		return "", "", fmt.Errorf("%w: invalid path", preview.ErrBadInput)
	}
	if err := s.checkSize(fi.Size()); err != nil {
		return "", "", err
	}

	return path, origin, nil
}

// FromUpload streams an uploaded file to a temp file, preserving the
// client-supplied extension so backend selection still works. The temp path
// doubles as the origin.
func (s *FileSource) FromUpload(ctx context.Context, r io.Reader, filename string) (path, origin string, err error) {
	defer s.observeTransfer("upload")()

	path, err = s.ingest(ctx, r, extensionOf(filename))
	if err != nil {
		return "", "", err
	}
	return path, path, nil
}

// FromURL downloads a file to a temp file. The URL is the origin, which
// means URL-sourced previews cache by URL; the janitor's age bound is the
// effective TTL for those entries.
func (s *FileSource) FromURL(ctx context.Context, url string) (path, origin string, err error) {
	defer s.observeTransfer("download")()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", "", fmt.Errorf("%w: could not download: %s, %s", preview.ErrBadInput, url, err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("%w: could not download: %s, %s", preview.ErrBadInput, url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", "", fmt.Errorf("%w: could not download: %s, %s", preview.ErrBadInput, url, resp.Status)
	}

	path, err = s.ingest(ctx, resp.Body, extensionOf(url))
	if err != nil {
		return "", "", err
	}
	return path, url, nil
}

// ingest copies r to a fresh temp file in BufferSize chunks, checking the
// size limit as bytes arrive and the context between chunks.
func (s *FileSource) ingest(ctx context.Context, r io.Reader, extension string) (string, error) {
	suffix := ""
	if extension != "" {
		suffix = "." + extension
	}
	t, err := os.CreateTemp("", "pvs-*"+suffix)
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}

	var size int64
	buf := make([]byte, BufferSize)
	for {
		if err := ctx.Err(); err != nil {
			t.Close()
			os.Remove(t.Name())
			return "", err
		}

		n, rerr := r.Read(buf)
		if n > 0 {
			size += int64(n)
			if err := s.checkSize(size); err != nil {
				t.Close()
				os.Remove(t.Name())
				return "", err
			}
			if _, werr := t.Write(buf[:n]); werr != nil {
				t.Close()
				os.Remove(t.Name())
				return "", fmt.Errorf("write temp file: %w", werr)
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			t.Close()
			os.Remove(t.Name())
			return "", fmt.Errorf("read input: %w", rerr)
		}
	}

	if err := t.Close(); err != nil {
		os.Remove(t.Name())
		return "", fmt.Errorf("close temp file: %w", err)
	}
	return t.Name(), nil
}

func (s *FileSource) observeTransfer(operation string) func() {
	if s.metrics == nil {
		return func() {}
	}
	start := time.Now()
	s.metrics.TransfersInFlight.WithLabelValues(operation).Inc()
	return func() {
		s.metrics.TransfersInFlight.WithLabelValues(operation).Dec()
		s.metrics.TransferDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	}
}

// extensionOf returns the lowercased extension of a filename or URL, without
// the leading dot. Query strings are stripped first so "a.pdf?sig=x" still
// resolves to pdf.
func extensionOf(name string) string {
	if i := strings.IndexAny(name, "?#"); i >= 0 {
		name = name[:i]
	}
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
}
