//go:build linux

package store

import (
	"os"
	"syscall"
	"time"
)

// atime reads the access time from the stat structure.
func atime(fi os.FileInfo) time.Time {
	st, ok := fi.Sys().(*syscall.Stat_t)
	if !ok {
		return fi.ModTime()
	}
	return time.Unix(st.Atim.Sec, st.Atim.Nsec)
}
