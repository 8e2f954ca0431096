package bk

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"
)

var (
	// ErrNoSources is returned when a job has no source directories.
	ErrNoSources = errors.New("sources list cannot be empty")
	// ErrNoTargets is returned when a job has no target directories.
	ErrNoTargets = errors.New("targets list cannot be empty")
	// ErrAncestry is returned when a target and a source contain one another.
	ErrAncestry = errors.New("targets cannot be ancestors or descendants of sources")
)

// JobDefinition is a validated-by-shape job as read from configuration.
type JobDefinition struct {
	Name      string
	Sources   []string
	Targets   []string
	Timing    string
	Retention Retention
	Method    Method
	// Ignore holds glob patterns for entries never backed up, on top of each
	// source's .bkignore file.
	Ignore []string
}

// BackupJob backs up a set of sources into a primary target and mirrors the
// result to every other target.
type BackupJob struct {
	def JobDefinition
	env Env
}

// NewBackupJob checks the definition against the filesystem and returns a
// runnable job. Sources must exist; missing targets are created.
func NewBackupJob(def JobDefinition, env Env) (*BackupJob, error) {
	if len(def.Sources) == 0 {
		return nil, ErrNoSources
	}
	if len(def.Targets) == 0 {
		return nil, ErrNoTargets
	}
	if def.Retention.Count < 1 {
		return nil, fmt.Errorf("retention count must be at least 1, got %d", def.Retention.Count)
	}
	if def.Method == Full {
		def.Retention.Size = 1
	} else if def.Retention.Size < 1 {
		return nil, fmt.Errorf("retention size must be at least 1, got %d", def.Retention.Size)
	}

	sources := make([]string, 0, len(def.Sources))
	for _, s := range def.Sources {
		abs, err := filepath.Abs(s)
		if err != nil {
			return nil, fmt.Errorf("resolving source %s: %w", s, err)
		}
		info, err := env.FS.Stat(abs)
		if err != nil {
			return nil, fmt.Errorf("source directory %s does not exist: %w", s, err)
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("source %s is not a directory", s)
		}
		sources = append(sources, abs)
	}

	targets := make([]string, 0, len(def.Targets))
	for _, t := range def.Targets {
		abs, err := filepath.Abs(t)
		if err != nil {
			return nil, fmt.Errorf("resolving target %s: %w", t, err)
		}
		targets = append(targets, abs)
	}

	if err := CheckAncestry(sources, targets); err != nil {
		return nil, err
	}

	for _, t := range targets {
		if err := env.FS.MkdirAll(t); err != nil {
			return nil, fmt.Errorf("creating target %s: %w", t, err)
		}
	}

	def.Sources = sources
	def.Targets = targets
	return &BackupJob{def: def, env: env}, nil
}

// CheckAncestry fails when any target equals, contains or is contained by a source.
// Paths are compared case-insensitively after normalization.
func CheckAncestry(sources, targets []string) error {
	for _, t := range targets {
		for _, s := range sources {
			if related(s, t) {
				return fmt.Errorf("%w: %s and %s", ErrAncestry, s, t)
			}
		}
	}
	return nil
}

func related(a, b string) bool {
	na := normalizePath(filepath.Clean(a), true)
	nb := normalizePath(filepath.Clean(b), true)
	return strings.HasPrefix(na, nb) || strings.HasPrefix(nb, na)
}

// Definition returns the normalized job definition.
func (j *BackupJob) Definition() JobDefinition { return j.def }

// Name returns the job name.
func (j *BackupJob) Name() string { return j.def.Name }

// Timing returns the job schedule expression.
func (j *BackupJob) Timing() string { return j.def.Timing }

func (j *BackupJob) layout() Layout {
	return Layout{Sources: j.def.Sources, Method: j.def.Method, Retention: j.def.Retention}
}

// PerformBackup runs the job once: it diff-copies every source into a new part
// of the primary target's current package, then mirrors the primary to the
// other targets. Failures of single entries or sources are logged and counted
// in the report; an error is returned only when the primary target cannot be
// prepared.
func (j *BackupJob) PerformBackup() (*RunReport, error) {
	report := &RunReport{
		Job:       j.def.Name,
		Method:    j.def.Method,
		Target:    j.def.Targets[0],
		StartedAt: j.env.Clock.Now(),
	}
	started := time.Now()

	primary, err := OpenTargetDirectory(j.env, j.layout(), j.def.Targets[0])
	if err != nil {
		return report, fmt.Errorf("opening primary target: %w", err)
	}
	pkg, err := primary.CurrentPackage()
	if err != nil {
		return report, fmt.Errorf("selecting package: %w", err)
	}
	part, err := pkg.CreatePart()
	if err != nil {
		return report, fmt.Errorf("creating part: %w", err)
	}
	report.Package = pkg.Name()
	report.Part = part.Name

	j.env.Logger.Info("backup started", "job", j.def.Name, "method", j.def.Method.String(), "package", pkg.Name(), "part", part.Name)

	for _, source := range j.def.Sources {
		sr := j.backupSource(pkg, source, part.Destinations[source])
		report.add(sr)
	}

	for _, target := range j.def.Targets[1:] {
		if err := j.mirror(primary, pkg, part, target); err != nil {
			report.MirrorFailures++
			j.env.Logger.Error("mirroring target", "job", j.def.Name, "target", target, "error", err)
		}
	}

	report.FinishedAt = report.StartedAt.Add(time.Since(started))
	j.env.Logger.Info("backup finished", "job", j.def.Name,
		"copied", report.Copied, "skipped", report.Skipped, "failed", report.Failed,
		"bytes", report.Bytes, "took", time.Since(started).Truncate(time.Millisecond))
	return report, nil
}

// backupSource copies what changed in source into dest. Errors never escape:
// they are logged and counted.
func (j *BackupJob) backupSource(pkg *Package, source, dest string) SourceReport {
	sr := SourceReport{Source: source}
	if dest == "" {
		j.env.Logger.Error("no destination for source", "source", source)
		sr.Failed++
		return sr
	}

	tree, err := pkg.FileTreeFor(source)
	if err != nil {
		j.env.Logger.Error("building file tree", "source", source, "error", err)
		sr.Failed++
		return sr
	}

	ignore, err := LoadIgnoreMatcher(j.env.FS, source, j.def.Ignore)
	if err != nil {
		j.env.Logger.Warn("loading ignore patterns, using configured ones", "source", source, "error", err)
		ignore = NewIgnoreMatcher(append(append([]string{}, defaultIgnorePatterns...), j.def.Ignore...))
	}
	skip := func(path string, _ bool) bool {
		rel, err := filepath.Rel(source, path)
		return err == nil && ignore.Match(rel)
	}

	if tree.Len() == 0 {
		sr.Wholesale = true
		stats, err := j.env.FS.CopyTree(source, dest, skip)
		sr.addCopy(stats)
		if err != nil {
			j.env.Logger.Warn("copying source", "source", source, "error", err)
		}
	} else {
		j.diffCopy(source, dest, tree, skip, &sr)
	}

	if err := pkg.Update(source, dest); err != nil {
		j.env.Logger.Warn("updating file tree", "source", source, "error", err)
	}
	j.env.Logger.Debug("source done", "source", source, "copied", sr.Copied, "skipped", sr.Skipped, "failed", sr.Failed)
	return sr
}

// diffCopy walks source and copies every entry the tree does not already hold
// an identical copy of.
func (j *BackupJob) diffCopy(source, dest string, tree *FileTree, skip SkipFunc, sr *SourceReport) {
	fsys := j.env.FS
	err := fsys.WalkDir(source, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == source {
				return err
			}
			j.env.Logger.Warn("reading entry", "path", path, "error", err)
			sr.Failed++
			return nil
		}
		if path == source {
			return nil
		}

		rel, err := filepath.Rel(source, path)
		if err != nil {
			j.env.Logger.Warn("relative path", "path", path, "error", err)
			sr.Failed++
			return nil
		}
		if skip(path, d.IsDir()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		target := filepath.Join(dest, rel)

		if _, err := fsys.Lstat(target); err == nil {
			if !d.IsDir() {
				sr.Skipped++
			}
			return nil
		}

		switch {
		case d.IsDir():
			if prior, ok := tree.Lookup(rel, true); ok && j.isDir(prior) {
				return nil
			}
			stats, err := fsys.CopyTree(path, target, skip)
			sr.addCopy(stats)
			if err != nil {
				j.env.Logger.Warn("copying directory", "path", path, "error", err)
			}
			return filepath.SkipDir

		case d.Type()&fs.ModeSymlink != 0:
			if err := fsys.MkdirAll(filepath.Dir(target)); err == nil {
				err = fsys.CopySymlink(path, target)
			}
			if err != nil {
				j.env.Logger.Warn("copying symlink", "path", path, "error", err)
				sr.Failed++
				return nil
			}
			sr.Copied++

		case d.Type().IsRegular():
			if prior, ok := tree.Lookup(rel, false); ok && Identical(fsys, path, prior) {
				sr.Skipped++
				return nil
			}
			n, err := fsys.CopyFile(path, target)
			if err != nil {
				j.env.Logger.Warn("copying file", "path", path, "error", err)
				sr.Failed++
				return nil
			}
			sr.Copied++
			sr.Bytes += n

		default:
			j.env.Logger.Debug("skipping special file", "path", path)
		}
		return nil
	})
	if err != nil {
		j.env.Logger.Error("walking source", "source", source, "error", err)
		sr.Failed++
	}
}

func (j *BackupJob) isDir(path string) bool {
	info, err := j.env.FS.Stat(path)
	return err == nil && info.IsDir()
}
