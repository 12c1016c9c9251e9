package preview

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestPathRefAttributes(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "Sample.PDF", "hello")

	ref := NewPathRef(path, "/mnt/files")
	assert.Equal(t, path, ref.Path())
	assert.Equal(t, "pdf", ref.Extension())

	size, err := ref.Size()
	require.NoError(t, err)
	assert.Equal(t, int64(5), size)
}

func TestPathRefSizeMissing(t *testing.T) {
	ref := NewPathRef(filepath.Join(t.TempDir(), "nope.pdf"), "")
	_, err := ref.Size()
	assert.Error(t, err)
}

func TestPathRefTempAndShared(t *testing.T) {
	tempDir := t.TempDir()
	sharedDir := t.TempDir()
	t.Setenv("TMPDIR", tempDir)

	temp := NewPathRef(filepath.Join(tempDir, "work.gif"), sharedDir)
	assert.True(t, temp.IsTemp())
	assert.False(t, temp.IsShared())

	shared := NewPathRef(filepath.Join(sharedDir, "doc.pdf"), sharedDir)
	assert.False(t, shared.IsTemp())
	assert.True(t, shared.IsShared())

	// Sibling directories with a common prefix must not match.
	sibling := NewPathRef(sharedDir+"2/doc.pdf", sharedDir)
	assert.False(t, sibling.IsShared())
}

func TestPathRefCleanup(t *testing.T) {
	tempDir := t.TempDir()
	sharedDir := t.TempDir()
	t.Setenv("TMPDIR", tempDir)

	tempPath := writeFile(t, tempDir, "scratch.gif", "x")
	NewPathRef(tempPath, sharedDir).Cleanup()
	_, err := os.Stat(tempPath)
	assert.True(t, os.IsNotExist(err), "temp file should be removed")

	sharedPath := writeFile(t, sharedDir, "keep.pdf", "x")
	NewPathRef(sharedPath, sharedDir).Cleanup()
	_, err = os.Stat(sharedPath)
	assert.NoError(t, err, "shared file must survive cleanup")
}

func TestPathRefDeleteIdempotent(t *testing.T) {
	path := writeFile(t, t.TempDir(), "once.gif", "x")
	ref := NewPathRef(path, "")
	require.NoError(t, ref.Delete())
	require.NoError(t, ref.Delete())
}
