package fs

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/google/renameio"

	"bk-go/internal/bk"
)

const dirPerm = 0o755

// OSFilesystemManager is the real filesystem implementation of FilesystemManager.
// Files are written through temp files renamed into place, so readers never
// observe a partially written file.
type OSFilesystemManager struct{}

// NewOSFilesystemManager creates a new filesystem manager that operates on the real filesystem.
func NewOSFilesystemManager() *OSFilesystemManager {
	return &OSFilesystemManager{}
}

func (m *OSFilesystemManager) Stat(path string) (fs.FileInfo, error)  { return os.Stat(path) }
func (m *OSFilesystemManager) Lstat(path string) (fs.FileInfo, error) { return os.Lstat(path) }

func (m *OSFilesystemManager) ReadDir(path string) ([]fs.DirEntry, error) { return os.ReadDir(path) }

func (m *OSFilesystemManager) WalkDir(root string, fn fs.WalkDirFunc) error {
	return filepath.WalkDir(root, fn)
}

func (m *OSFilesystemManager) MkdirAll(path string) error { return os.MkdirAll(path, dirPerm) }

func (m *OSFilesystemManager) RemoveAll(path string) error { return os.RemoveAll(path) }

func (m *OSFilesystemManager) ReadFile(path string) ([]byte, error) { return os.ReadFile(path) }

// Open opens a file for reading.
func (m *OSFilesystemManager) Open(path string) (io.ReadCloser, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("cannot open directory as file: %s", path)
	}
	return os.Open(path)
}

// WriteFile atomically replaces path with data.
func (m *OSFilesystemManager) WriteFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), dirPerm); err != nil {
		return fmt.Errorf("creating parent directory: %w", err)
	}
	if err := renameio.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// CopyFile copies src to dst through a pending file that atomically replaces
// dst, then restores the source's permissions and modification time.
func (m *OSFilesystemManager) CopyFile(src, dst string) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, fmt.Errorf("opening source: %w", err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return 0, fmt.Errorf("stat source: %w", err)
	}
	if !info.Mode().IsRegular() {
		return 0, fmt.Errorf("not a regular file: %s", src)
	}

	if err := os.MkdirAll(filepath.Dir(dst), dirPerm); err != nil {
		return 0, fmt.Errorf("creating parent directory: %w", err)
	}

	out, err := renameio.TempFile("", dst)
	if err != nil {
		return 0, fmt.Errorf("creating temp file: %w", err)
	}
	defer out.Cleanup()

	written, err := io.Copy(out, in)
	if err != nil {
		return 0, fmt.Errorf("copying data: %w", err)
	}
	if written != info.Size() {
		return 0, fmt.Errorf("size mismatch: expected %d bytes, got %d", info.Size(), written)
	}
	if err := out.Chmod(info.Mode().Perm()); err != nil {
		return 0, fmt.Errorf("setting permissions: %w", err)
	}
	if err := out.CloseAtomicallyReplace(); err != nil {
		return 0, fmt.Errorf("replacing %s: %w", dst, err)
	}

	mtime := info.ModTime()
	if err := os.Chtimes(dst, accessTime(info, mtime), mtime); err != nil {
		return written, fmt.Errorf("setting times: %w", err)
	}
	return written, nil
}

// CopySymlink recreates the link src at dst with the same target.
func (m *OSFilesystemManager) CopySymlink(src, dst string) error {
	target, err := os.Readlink(src)
	if err != nil {
		return fmt.Errorf("reading link: %w", err)
	}
	if err := renameio.Symlink(target, dst); err != nil {
		return fmt.Errorf("creating link %s: %w", dst, err)
	}
	return nil
}

// CopyTree copies src into dst recursively. Directory permissions and
// modification times are restored once their content has been written.
func (m *OSFilesystemManager) CopyTree(src, dst string, skip bk.SkipFunc) (bk.CopyStats, error) {
	var stats bk.CopyStats
	var errs []error

	type dirTimes struct {
		path  string
		mode  fs.FileMode
		mtime time.Time
		atime time.Time
	}
	var dirs []dirTimes

	fail := func(err error) {
		stats.Failed++
		errs = append(errs, err)
	}

	walkErr := filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == src {
				return err
			}
			fail(err)
			return nil
		}
		if path != src && skip != nil && skip(path, d.IsDir()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		rel, err := filepath.Rel(src, path)
		if err != nil {
			fail(err)
			return nil
		}
		target := filepath.Join(dst, rel)

		switch {
		case d.IsDir():
			info, err := d.Info()
			if err != nil {
				fail(err)
				return filepath.SkipDir
			}
			if err := os.MkdirAll(target, dirPerm); err != nil {
				fail(fmt.Errorf("creating directory %s: %w", target, err))
				return filepath.SkipDir
			}
			dirs = append(dirs, dirTimes{path: target, mode: info.Mode().Perm(), mtime: info.ModTime(), atime: accessTime(info, info.ModTime())})
			stats.Dirs++

		case d.Type()&fs.ModeSymlink != 0:
			if err := m.CopySymlink(path, target); err != nil {
				fail(err)
				return nil
			}
			stats.Links++

		case d.Type().IsRegular():
			n, err := m.CopyFile(path, target)
			if err != nil {
				fail(fmt.Errorf("copying %s: %w", path, err))
				return nil
			}
			stats.Files++
			stats.Bytes += n
		}
		return nil
	})
	if walkErr != nil {
		errs = append(errs, fmt.Errorf("walking %s: %w", src, walkErr))
	}

	// Deepest directories first, so setting a child's times never disturbs its parent.
	for _, d := range slices.Backward(dirs) {
		if err := os.Chmod(d.path, d.mode|0o700); err != nil {
			errs = append(errs, err)
		}
		if err := os.Chtimes(d.path, d.atime, d.mtime); err != nil {
			errs = append(errs, err)
		}
	}

	return stats, errors.Join(errs...)
}

// Compile-time check that OSFilesystemManager implements bk.FilesystemManager interface
var _ bk.FilesystemManager = (*OSFilesystemManager)(nil)
