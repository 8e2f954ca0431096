package bk

import (
	"fmt"
	"path/filepath"
	"sort"
	"time"
)

// TargetMetadataFile is the sidecar file at the root of every target.
const TargetMetadataFile = "metadata.json"

// TargetManifest is the persisted state of a target.
type TargetManifest struct {
	Packages []string `json:"packages"` // package folder names, oldest first
}

// TargetDirectory is one backup destination holding a bounded set of packages.
type TargetDirectory struct {
	env      Env
	layout   Layout
	folder   string
	meta     *MetadataStore[TargetManifest]
	packages *RetentionQueue[*Package]
}

// OpenTargetDirectory hydrates the target at folder from its metadata. When no
// usable metadata exists, the package list is seeded from the package folders
// already on disk, ordered by creation. Packages beyond the retention count
// are deleted.
func OpenTargetDirectory(env Env, layout Layout, folder string) (*TargetDirectory, error) {
	meta, err := OpenMetadataStore(env.FS, env.Logger, folder, TargetMetadataFile, TargetManifest{Packages: []string{}})
	if err != nil {
		return nil, fmt.Errorf("opening target %s: %w", folder, err)
	}

	t := &TargetDirectory{
		env:    env,
		layout: layout,
		folder: folder,
		meta:   meta,
	}
	t.packages = NewRetentionQueue(layout.Retention.Count, env.Logger, func(p *Package) error {
		return p.Dispose()
	})

	names := meta.Current().Packages
	if meta.Existed() && !meta.Loaded() {
		env.Logger.Warn("target metadata unusable, recovering packages from disk", "target", folder)
	}
	if !meta.Existed() || !meta.Loaded() {
		names, err = t.scanPackages()
		if err != nil {
			return nil, err
		}
	}

	for _, name := range names {
		dir := filepath.Join(folder, name)
		info, err := env.FS.Lstat(dir)
		if err != nil || !info.IsDir() {
			env.Logger.Warn("package missing from target, dropping it", "target", folder, "package", name)
			continue
		}
		pkg, err := OpenPackage(env, layout, dir)
		if err != nil {
			env.Logger.Error("opening package, skipping it", "package", dir, "error", err)
			continue
		}
		t.packages.Push(pkg)
	}

	if err := t.save(); err != nil {
		return nil, err
	}
	return t, nil
}

// Folder returns the target root.
func (t *TargetDirectory) Folder() string { return t.folder }

// MetadataPath returns the path of the target sidecar file.
func (t *TargetDirectory) MetadataPath() string { return t.meta.Path() }

// Packages returns the retained packages, oldest first.
func (t *TargetDirectory) Packages() []*Package { return t.packages.Items() }

// PackageNames returns the retained package folder names, oldest first.
func (t *TargetDirectory) PackageNames() []string {
	return slicesMap(t.packages.Items(), (*Package).Name)
}

// CurrentPackage returns the open package, rotating to a new one when there is
// none or the last one is full. Rotation may evict and delete the oldest package.
func (t *TargetDirectory) CurrentPackage() (*Package, error) {
	if last, ok := t.packages.Last(); ok && !last.IsFull() {
		return last, nil
	}

	name := hexTimestamp(t.env.Clock.Now())
	for i := 1; ; i++ {
		if _, err := t.env.FS.Lstat(filepath.Join(t.folder, name)); err != nil {
			break
		}
		name = fmt.Sprintf("%s-%d", hexTimestamp(t.env.Clock.Now()), i)
	}

	pkg, err := OpenPackage(t.env, t.layout, filepath.Join(t.folder, name))
	if err != nil {
		return nil, err
	}
	for _, old := range t.packages.Push(pkg) {
		t.env.Logger.Info("package evicted", "target", t.folder, "package", old.Name())
	}
	if err := t.save(); err != nil {
		return nil, err
	}

	t.env.Logger.Info("package created", "target", t.folder, "package", name)
	return pkg, nil
}

func (t *TargetDirectory) save() error {
	if err := t.meta.Persist(TargetManifest{Packages: t.PackageNames()}); err != nil {
		return fmt.Errorf("saving target %s: %w", t.folder, err)
	}
	return nil
}

// scanPackages lists the package folders of a target without usable metadata.
func (t *TargetDirectory) scanPackages() ([]string, error) {
	entries, err := t.env.FS.ReadDir(t.folder)
	if err != nil {
		return nil, fmt.Errorf("scanning target %s: %w", t.folder, err)
	}

	type candidate struct {
		name    string
		created time.Time
	}
	var found []candidate
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		dir := filepath.Join(t.folder, e.Name())
		if _, err := t.env.FS.Lstat(filepath.Join(dir, PackageMetadataFile)); err != nil {
			continue
		}
		created, ok := parseHexTimestamp(e.Name())
		if !ok {
			info, err := e.Info()
			if err != nil {
				continue
			}
			created = t.env.FS.CreatedAt(info)
		}
		found = append(found, candidate{name: e.Name(), created: created})
	}

	sort.SliceStable(found, func(i, j int) bool {
		return found[i].created.Before(found[j].created)
	})

	names := make([]string, len(found))
	for i, c := range found {
		names[i] = c.name
	}
	if len(names) > 0 {
		t.env.Logger.Info("recovered packages from disk", "target", t.folder, "count", len(names))
	}
	return names, nil
}

func slicesMap[T, U any](in []T, f func(T) U) []U {
	out := make([]U, len(in))
	for i, v := range in {
		out[i] = f(v)
	}
	return out
}
