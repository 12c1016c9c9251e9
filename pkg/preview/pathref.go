// Package preview defines the data model shared by every stage of the
// preview pipeline: file references with ownership semantics, the mutable
// per-request work item, page ranges and the error taxonomy.
package preview

import (
	"os"
	"path/filepath"
	"strings"
)

// PathRef is a reference to a file somewhere in the pipeline: the input, an
// intermediate artifact, or the finished preview. The holder of a PathRef
// owns it; temp-rooted refs are deleted on release, everything else is left
// alone.
type PathRef struct {
	path     string
	fileRoot string
}

// NewPathRef builds a ref for path. fileRoot is the shared directory visible
// to external converter processes; it determines IsShared.
func NewPathRef(path, fileRoot string) *PathRef {
	return &PathRef{path: filepath.Clean(path), fileRoot: fileRoot}
}

// Path returns the absolute path.
func (p *PathRef) Path() string { return p.path }

// Size stats the file and returns its byte size.
func (p *PathRef) Size() (int64, error) {
	fi, err := os.Stat(p.path)
	if err != nil {
		return 0, err
	}
	return fi.Size(), nil
}

// Extension returns the lowercased extension without the leading dot.
func (p *PathRef) Extension() string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(p.path), "."))
}

// IsTemp reports whether the path lies under the system temp directory.
// Temp refs are owned by the request and removed on release.
func (p *PathRef) IsTemp() bool {
	return underDir(p.path, os.TempDir())
}

// IsShared reports whether the path lies under the configured file root and
// is therefore directly readable by external converter processes.
func (p *PathRef) IsShared() bool {
	return underDir(p.path, p.fileRoot)
}

// Delete removes the file regardless of where it lives.
func (p *PathRef) Delete() error {
	err := os.Remove(p.path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// Cleanup removes the file only if it is temp-rooted. Errors are ignored;
// the janitor and OS tmp reaping cover stragglers.
func (p *PathRef) Cleanup() {
	if p == nil || !p.IsTemp() {
		return
	}
	_ = p.Delete()
}

func underDir(path, dir string) bool {
	if dir == "" {
		return false
	}
	rel, err := filepath.Rel(filepath.Clean(dir), path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
