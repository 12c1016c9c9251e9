//go:build !linux

package store

import (
	"os"
	"time"
)

// atime falls back to the modification time where access times are not
// portably available; LRU eviction then degrades to oldest-written-first.
func atime(fi os.FileInfo) time.Time {
	return fi.ModTime()
}
