package bk

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"slices"
	"strconv"
)

const (
	// PackageMetadataFile is the sidecar file inside every package folder.
	PackageMetadataFile = "package.json"

	// FirstPartName names the first part of every package.
	FirstPartName = "FULL"
)

// PackageManifest is the persisted state of a package.
type PackageManifest struct {
	Paths map[string]string `json:"paths"` // source path -> content hash
	Parts []string          `json:"parts"` // part folder names, oldest first
}

// Env bundles the collaborators shared by targets, packages and jobs.
type Env struct {
	FS     FilesystemManager
	Logger Logger
	Clock  Clock
}

// Layout is what targets and packages need to know about their job.
type Layout struct {
	Sources   []string
	Method    Method
	Retention Retention
}

// Part is one run's folder inside a package.
type Part struct {
	Name   string
	Folder string
	// Destinations maps each source path to its content-hash subfolder.
	Destinations map[string]string
}

// Package is one retention unit of a target: a folder holding time-ordered parts.
type Package struct {
	env     Env
	layout  Layout
	folder  string
	meta    *MetadataStore[PackageManifest]
	current string
	trees   map[string]*FileTree
}

// OpenPackage loads the package in folder, creating it when absent.
// Sources missing from the manifest get their content hash recorded, and parts
// whose folder disappeared are dropped from the part list.
func OpenPackage(env Env, layout Layout, folder string) (*Package, error) {
	def := PackageManifest{Paths: HashPaths(layout.Sources), Parts: []string{}}
	meta, err := OpenMetadataStore(env.FS, env.Logger, folder, PackageMetadataFile, def)
	if err != nil {
		return nil, fmt.Errorf("opening package %s: %w", folder, err)
	}

	p := &Package{
		env:    env,
		layout: layout,
		folder: folder,
		meta:   meta,
		trees:  make(map[string]*FileTree),
	}

	m := meta.Current()
	changed := false

	paths := make(map[string]string, len(m.Paths)+len(layout.Sources))
	for src, hash := range m.Paths {
		paths[src] = hash
	}
	for _, src := range layout.Sources {
		if _, ok := paths[src]; !ok {
			paths[src] = HashPath(src, true)
			changed = true
		}
	}

	parts := make([]string, 0, len(m.Parts))
	for _, name := range m.Parts {
		if _, err := env.FS.Lstat(filepath.Join(folder, name)); err != nil {
			env.Logger.Warn("part missing from package, dropping it", "package", folder, "part", name)
			changed = true
			continue
		}
		parts = append(parts, name)
	}

	if changed {
		if err := meta.Persist(PackageManifest{Paths: paths, Parts: parts}); err != nil {
			return nil, fmt.Errorf("updating package %s: %w", folder, err)
		}
	}
	return p, nil
}

// Name returns the package folder name.
func (p *Package) Name() string { return filepath.Base(p.folder) }

// Folder returns the package folder path.
func (p *Package) Folder() string { return p.folder }

// MetadataPath returns the path of the package sidecar file.
func (p *Package) MetadataPath() string { return p.meta.Path() }

// Size returns the number of parts.
func (p *Package) Size() int { return len(p.meta.Current().Parts) }

// Parts returns the part folder names, oldest first.
func (p *Package) Parts() []string { return slices.Clone(p.meta.Current().Parts) }

// Paths returns the source path to content hash mapping.
func (p *Package) Paths() map[string]string {
	paths := make(map[string]string)
	for k, v := range p.meta.Current().Paths {
		paths[k] = v
	}
	return paths
}

// IsFull reports whether the package accepts no more parts.
func (p *Package) IsFull() bool {
	return p.Size() >= p.layout.Retention.PartLimit(p.layout.Method)
}

// CreatePart creates the next part folder and one content-hash subfolder per
// source. The part is recorded in the manifest before returning, so a crash
// during copying leaves it discoverable on the next load.
func (p *Package) CreatePart() (*Part, error) {
	m := p.meta.Current()

	name := FirstPartName
	if len(m.Parts) > 0 {
		name = p.layout.Method.Prefix() + "-" + hexTimestamp(p.env.Clock.Now())
	}
	name = p.unusedName(name)

	folder := filepath.Join(p.folder, name)
	if err := p.env.FS.MkdirAll(folder); err != nil {
		return nil, fmt.Errorf("creating part %s: %w", folder, err)
	}

	dests := make(map[string]string, len(m.Paths))
	for src, hash := range m.Paths {
		dest := filepath.Join(folder, hash)
		if err := p.env.FS.MkdirAll(dest); err != nil {
			return nil, fmt.Errorf("creating part subfolder %s: %w", dest, err)
		}
		dests[src] = dest
	}

	updated := PackageManifest{Paths: m.Paths, Parts: append(slices.Clone(m.Parts), name)}
	if err := p.meta.Persist(updated); err != nil {
		return nil, err
	}
	p.current = name

	p.env.Logger.Debug("part created", "package", p.Name(), "part", name)
	return &Part{Name: name, Folder: folder, Destinations: dests}, nil
}

// FileTreeFor returns the union view of the parts relevant to source, built on
// first use. The part created by this process is never part of the view.
func (p *Package) FileTreeFor(source string) (*FileTree, error) {
	if t, ok := p.trees[source]; ok {
		return t, nil
	}

	hash, ok := p.meta.Current().Paths[source]
	if !ok {
		return nil, fmt.Errorf("source %s is not part of package %s", source, p.Name())
	}

	var roots []string
	for _, part := range p.relevantParts() {
		roots = append(roots, filepath.Join(p.folder, part, hash))
	}

	t, err := BuildFileTree(p.env.FS, roots...)
	if err != nil {
		return nil, fmt.Errorf("building file tree for %s: %w", source, err)
	}
	p.trees[source] = t
	return t, nil
}

// Update merges a freshly written folder into the cached tree of source.
// Only incremental packages move their view forward; full and differential
// packages always compare against their baseline.
func (p *Package) Update(source, written string) error {
	if p.layout.Method != Incremental {
		return nil
	}
	t, err := p.FileTreeFor(source)
	if err != nil {
		return err
	}
	return t.AddLayer(p.env.FS, written)
}

// Dispose deletes the package folder. A missing folder counts as success.
func (p *Package) Dispose() error {
	if err := p.env.FS.RemoveAll(p.folder); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("deleting package %s: %w", p.folder, err)
	}
	p.env.Logger.Info("package deleted", "package", p.folder)
	return nil
}

// relevantParts returns the prior parts a run compares against, oldest first:
// the most recent Retention.Size parts for incremental packages, otherwise the
// baseline part only.
func (p *Package) relevantParts() []string {
	var prior []string
	for _, name := range p.meta.Current().Parts {
		if name != p.current {
			prior = append(prior, name)
		}
	}
	if len(prior) == 0 {
		return nil
	}
	if p.layout.Method != Incremental {
		return prior[:1]
	}
	limit := p.layout.Retention.Size
	if limit < 1 {
		limit = 1
	}
	if len(prior) > limit {
		prior = prior[len(prior)-limit:]
	}
	return prior
}

// unusedName returns name, or name with a numeric suffix when a folder of that
// name already exists.
func (p *Package) unusedName(name string) string {
	candidate := name
	for i := 1; ; i++ {
		if _, err := p.env.FS.Lstat(filepath.Join(p.folder, candidate)); err != nil {
			return candidate
		}
		candidate = name + "-" + strconv.Itoa(i)
	}
}
