package bk

import (
	"io"
	"io/fs"
	"time"
)

// FileReader is the read-only slice of the filesystem needed to compare files.
type FileReader interface {
	// Stat returns file info, following symlinks.
	Stat(path string) (fs.FileInfo, error)

	// Open opens a file for reading.
	Open(path string) (io.ReadCloser, error)
}

// FilesystemManager provides every filesystem operation the engine performs.
// It abstracts file access so tests can substitute failing or in-memory behavior.
type FilesystemManager interface {
	FileReader

	// Lstat returns file info without following symlinks.
	Lstat(path string) (fs.FileInfo, error)

	// ReadDir lists the direct children of a directory.
	ReadDir(path string) ([]fs.DirEntry, error)

	// WalkDir walks the tree rooted at root in lexical order without following symlinks.
	WalkDir(root string, fn fs.WalkDirFunc) error

	// MkdirAll creates a directory and any missing parents.
	MkdirAll(path string) error

	// RemoveAll deletes path and everything below it. A missing path is not an error.
	RemoveAll(path string) error

	// ReadFile returns the whole content of a file.
	ReadFile(path string) ([]byte, error)

	// WriteFile atomically replaces the content of a file.
	WriteFile(path string, data []byte) error

	// CopyFile copies a regular file, creating missing parents and preserving
	// permissions and modification time. It returns the number of bytes copied.
	CopyFile(src, dst string) (int64, error)

	// CopySymlink recreates the symlink src at dst pointing at the same target.
	CopySymlink(src, dst string) error

	// CopyTree copies a directory recursively, recreating symlinks instead of
	// following them. Entries for which skip returns true are left out; skip may
	// be nil. Per-entry failures do not stop the copy; they are joined into the
	// returned error. The stats describe what was copied.
	CopyTree(src, dst string, skip SkipFunc) (CopyStats, error)

	// CreatedAt returns the best available creation time for a file.
	CreatedAt(info fs.FileInfo) time.Time
}

// SkipFunc decides whether an entry, given by its full path, is left out of a copy.
type SkipFunc func(path string, isDir bool) bool

// CopyStats counts the outcome of a copy.
type CopyStats struct {
	Files  int
	Links  int
	Dirs   int
	Bytes  int64
	Failed int
}

// Add accumulates other into s.
func (s *CopyStats) Add(other CopyStats) {
	s.Files += other.Files
	s.Links += other.Links
	s.Dirs += other.Dirs
	s.Bytes += other.Bytes
	s.Failed += other.Failed
}
