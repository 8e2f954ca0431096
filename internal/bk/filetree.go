package bk

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
)

// FileTree is a read-only union view over a sequence of part folders.
// Entries are keyed by lower-cased relative path, with a trailing slash for
// directories, and map to the index of the newest part containing them.
type FileTree struct {
	parts []string
	index map[string]int
}

// BuildFileTree scans parts in order, oldest first. A part that does not exist
// on disk contributes an empty layer.
func BuildFileTree(fsys FilesystemManager, parts ...string) (*FileTree, error) {
	t := &FileTree{index: make(map[string]int)}
	for _, p := range parts {
		if err := t.AddLayer(fsys, p); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// AddLayer scans root and places it on top of the existing layers, so its
// entries shadow any older entry with the same relative path.
func (t *FileTree) AddLayer(fsys FilesystemManager, root string) error {
	idx := len(t.parts)
	t.parts = append(t.parts, root)

	err := fsys.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root && errors.Is(err, fs.ErrNotExist) {
				return filepath.SkipDir
			}
			// Unreadable entries are left out of the index.
			return nil
		}
		if path == root {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return fmt.Errorf("relative path of %s: %w", path, err)
		}
		t.index[treeKey(rel, d.IsDir())] = idx
		return nil
	})
	if err != nil {
		return fmt.Errorf("scanning layer %s: %w", root, err)
	}
	return nil
}

// Len returns the number of layers in the tree.
func (t *FileTree) Len() int {
	return len(t.parts)
}

// Parts returns the layer roots, oldest first.
func (t *FileTree) Parts() []string {
	return append([]string(nil), t.parts...)
}

// Lookup resolves rel to the full path of the newest layer holding it.
// A single-layer tree answers with the path under its only layer without
// consulting the index; callers still check the entry on disk.
func (t *FileTree) Lookup(rel string, isDir bool) (string, bool) {
	switch len(t.parts) {
	case 0:
		return "", false
	case 1:
		return t.fullPath(0, rel), true
	}
	idx, ok := t.index[treeKey(rel, isDir)]
	if !ok {
		return "", false
	}
	return t.fullPath(idx, rel), true
}

// Contains reports whether rel was seen in any layer during the scan.
func (t *FileTree) Contains(rel string, isDir bool) bool {
	_, ok := t.index[treeKey(rel, isDir)]
	return ok
}

func (t *FileTree) fullPath(idx int, rel string) string {
	return filepath.Join(t.parts[idx], filepath.FromSlash(strings.TrimLeft(filepath.ToSlash(rel), "/")))
}

// treeKey normalizes a relative path into an index key.
func treeKey(rel string, isDir bool) string {
	key := strings.ToLower(strings.Trim(filepath.ToSlash(rel), "/"))
	if isDir {
		key += "/"
	}
	return key
}
