package bk

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"slices"
)

// mirror replicates the primary target into root. The part written by this
// run is always copied afresh. Parts already on the mirror are checked entry
// by entry and whatever is missing or differs is copied again, so a part left
// incomplete by an earlier failed mirror heals on the next run. Packages the
// primary no longer retains are removed, and the target metadata is copied
// last so it never names incomplete packages.
func (j *BackupJob) mirror(primary *TargetDirectory, current *Package, part *Part, root string) error {
	fsys := j.env.FS
	if err := fsys.MkdirAll(root); err != nil {
		return fmt.Errorf("creating mirror %s: %w", root, err)
	}

	var errs []error
	for _, pkg := range primary.Packages() {
		dir := filepath.Join(root, pkg.Name())
		if err := fsys.MkdirAll(dir); err != nil {
			errs = append(errs, fmt.Errorf("creating mirror package %s: %w", dir, err))
			continue
		}

		for _, name := range pkg.Parts() {
			src := filepath.Join(pkg.Folder(), name)
			dst := filepath.Join(dir, name)
			var skip SkipFunc
			if pkg == current && name == part.Name {
				if err := fsys.RemoveAll(dst); err != nil {
					errs = append(errs, fmt.Errorf("clearing mirror part %s: %w", dst, err))
					continue
				}
			} else if _, err := fsys.Lstat(dst); err == nil {
				skip = j.mirroredSkip(src, dst)
			}
			stats, err := fsys.CopyTree(src, dst, skip)
			if err != nil {
				errs = append(errs, fmt.Errorf("copying part %s: %w", dst, err))
			}
			if skip != nil && stats.Files+stats.Links > 0 {
				j.env.Logger.Warn("mirror part repaired", "target", root, "package", pkg.Name(), "part", name,
					"files", stats.Files, "links", stats.Links)
			}
		}

		if _, err := fsys.CopyFile(pkg.MetadataPath(), filepath.Join(dir, PackageMetadataFile)); err != nil {
			errs = append(errs, fmt.Errorf("copying package metadata: %w", err))
		}
	}

	if err := j.pruneMirror(root, primary.PackageNames()); err != nil {
		errs = append(errs, err)
	}

	if _, err := fsys.CopyFile(primary.MetadataPath(), filepath.Join(root, TargetMetadataFile)); err != nil {
		errs = append(errs, fmt.Errorf("copying target metadata: %w", err))
	}

	if len(errs) == 0 {
		j.env.Logger.Info("mirror updated", "job", j.def.Name, "target", root)
	}
	return errors.Join(errs...)
}

// mirroredSkip skips entries of the primary part src already present under the
// mirror part dst: identical files, and symlinks that exist as symlinks.
// Directories are always walked.
func (j *BackupJob) mirroredSkip(src, dst string) SkipFunc {
	fsys := j.env.FS
	return func(path string, isDir bool) bool {
		if isDir {
			return false
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return false
		}
		mirrored := filepath.Join(dst, rel)
		if info, err := fsys.Lstat(path); err == nil && info.Mode()&fs.ModeSymlink != 0 {
			m, err := fsys.Lstat(mirrored)
			return err == nil && m.Mode()&fs.ModeSymlink != 0
		}
		return Identical(fsys, path, mirrored)
	}
}

// pruneMirror deletes mirror packages that the primary has evicted.
func (j *BackupJob) pruneMirror(root string, keep []string) error {
	fsys := j.env.FS
	entries, err := fsys.ReadDir(root)
	if err != nil {
		return fmt.Errorf("listing mirror %s: %w", root, err)
	}

	var errs []error
	for _, e := range entries {
		if !e.IsDir() || slices.Contains(keep, e.Name()) {
			continue
		}
		dir := filepath.Join(root, e.Name())
		if _, err := fsys.Lstat(filepath.Join(dir, PackageMetadataFile)); err != nil {
			continue
		}
		if err := fsys.RemoveAll(dir); err != nil {
			errs = append(errs, fmt.Errorf("deleting evicted mirror package %s: %w", dir, err))
			continue
		}
		j.env.Logger.Info("mirror package deleted", "target", root, "package", e.Name())
	}
	return errors.Join(errs...)
}
