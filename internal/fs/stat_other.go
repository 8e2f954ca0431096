//go:build !linux

package fs

import (
	"io/fs"
	"time"
)

// CreatedAt falls back to the modification time where no portable creation time exists.
func (m *OSFilesystemManager) CreatedAt(info fs.FileInfo) time.Time {
	return info.ModTime()
}

func accessTime(_ fs.FileInfo, fallback time.Time) time.Time {
	return fallback
}
