//go:build !linux

package service

import "io/fs"

// fileTimes returns the modification time of a file for both values.
func fileTimes(info fs.FileInfo) (created, modified int64) {
	modified = info.ModTime().Unix()
	return modified, modified
}
