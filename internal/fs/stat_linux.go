//go:build linux

package fs

import (
	"io/fs"
	"syscall"
	"time"
)

// CreatedAt returns the inode change time, the closest to a creation time
// Linux exposes through stat(2).
func (m *OSFilesystemManager) CreatedAt(info fs.FileInfo) time.Time {
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return info.ModTime()
	}
	return time.Unix(stat.Ctim.Sec, stat.Ctim.Nsec)
}

func accessTime(info fs.FileInfo, fallback time.Time) time.Time {
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return fallback
	}
	return time.Unix(stat.Atim.Sec, stat.Atim.Nsec)
}
