//go:build linux

package service

import (
	"io/fs"
	"syscall"
)

// fileTimes returns the status change and modification times of a file in
// unix seconds. The change time falls back to mtime when unavailable.
func fileTimes(info fs.FileInfo) (created, modified int64) {
	modified = info.ModTime().Unix()
	if st, ok := info.Sys().(*syscall.Stat_t); ok {
		return st.Ctim.Sec, modified
	}
	return modified, modified
}
