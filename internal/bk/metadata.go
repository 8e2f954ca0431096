package bk

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
)

// MetadataStore persists a JSON sidecar file inside a directory.
// A missing file is created from the default; an unreadable or corrupt file is
// logged and replaced in memory by the default, so callers keep working with
// "no prior state" instead of failing.
type MetadataStore[T any] struct {
	fsys    FilesystemManager
	logger  Logger
	path    string
	current T
	existed bool
	loaded  bool
}

// OpenMetadataStore attaches a store to dir/name, creating dir if needed.
func OpenMetadataStore[T any](fsys FilesystemManager, logger Logger, dir, name string, def T) (*MetadataStore[T], error) {
	if err := fsys.MkdirAll(dir); err != nil {
		return nil, fmt.Errorf("creating metadata directory: %w", err)
	}

	s := &MetadataStore[T]{
		fsys:    fsys,
		logger:  logger,
		path:    filepath.Join(dir, name),
		current: def,
	}

	data, err := fsys.ReadFile(s.path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		if err := s.Persist(def); err != nil {
			return nil, err
		}
		s.loaded = true
		return s, nil
	case err != nil:
		logger.Error("reading metadata, using defaults", "path", s.path, "error", err)
		s.existed = true
		return s, nil
	}

	s.existed = true
	var loaded T
	if err := json.Unmarshal(data, &loaded); err != nil {
		logger.Error("parsing metadata, using defaults", "path", s.path, "error", err)
		return s, nil
	}
	s.current = loaded
	s.loaded = true
	return s, nil
}

// Current returns the in-memory value.
func (s *MetadataStore[T]) Current() T { return s.current }

// Existed reports whether the sidecar file was already present when the store was opened.
func (s *MetadataStore[T]) Existed() bool { return s.existed }

// Loaded reports whether Current holds what the sidecar file says, either
// because it parsed or because the store just created it. It is false when an
// existing file could not be read or parsed and the default stands in for it.
func (s *MetadataStore[T]) Loaded() bool { return s.loaded }

// Path returns the sidecar file path.
func (s *MetadataStore[T]) Path() string { return s.path }

// Persist replaces the in-memory value and writes it to disk atomically.
func (s *MetadataStore[T]) Persist(v T) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding metadata: %w", err)
	}
	s.current = v
	if err := s.fsys.WriteFile(s.path, append(data, '\n')); err != nil {
		return fmt.Errorf("writing metadata %s: %w", s.path, err)
	}
	return nil
}
