package bk_test

import (
	"os"
	"path/filepath"
	"slices"
	"testing"

	"bk-go/internal/bk"
	"bk-go/internal/testutil"
)

func TestBackupJob_MirrorMatchesPrimary(t *testing.T) {
	f := newJobFixture(t, map[string]string{"a.txt": "alpha", "sub/b.txt": "beta"})
	mirror := filepath.Join(t.TempDir(), "mirror")
	job := f.job(t, bk.Incremental, bk.Retention{Count: 2, Size: 2}, mirror)

	for i := range 5 {
		testutil.WriteTree(t, f.source, map[string]string{"sub/b.txt": "beta " + string(rune('a'+i))})
		r := f.run(t, job)
		if r.MirrorFailures != 0 {
			t.Fatalf("run %d MirrorFailures = %d", i+1, r.MirrorFailures)
		}
	}

	primary := testutil.ReadTree(t, f.target)
	assertTree(t, testutil.ReadTree(t, mirror), primary)

	if got, want := f.packages(t, mirror), f.packages(t, f.target); !slices.Equal(got, want) {
		t.Errorf("mirror packages = %v, want %v", got, want)
	}
}

func TestBackupJob_MirrorDropsEvictedPackages(t *testing.T) {
	f := newJobFixture(t, map[string]string{"a.txt": "alpha"})
	mirror := filepath.Join(t.TempDir(), "mirror")
	job := f.job(t, bk.Full, bk.Retention{Count: 1, Size: 1}, mirror)

	var last *bk.RunReport
	for range 3 {
		last = f.run(t, job)
	}

	entries, err := os.ReadDir(mirror)
	if err != nil {
		t.Fatal(err)
	}
	var dirs []string
	for _, e := range entries {
		if e.IsDir() {
			dirs = append(dirs, e.Name())
		}
	}
	if !slices.Equal(dirs, []string{last.Package}) {
		t.Errorf("mirror package folders = %v, want [%s]", dirs, last.Package)
	}
}

func TestBackupJob_MirrorKeepsForeignFolders(t *testing.T) {
	f := newJobFixture(t, map[string]string{"a.txt": "alpha"})
	mirror := filepath.Join(t.TempDir(), "mirror")
	testutil.WriteTree(t, mirror, map[string]string{"notes/readme.txt": "mine"})
	job := f.job(t, bk.Full, bk.Retention{Count: 1, Size: 1}, mirror)

	f.run(t, job)
	f.run(t, job)

	if _, err := os.Stat(filepath.Join(mirror, "notes", "readme.txt")); err != nil {
		t.Errorf("folder without package metadata was removed: %v", err)
	}
}

func TestBackupJob_MirrorFailureIsCounted(t *testing.T) {
	f := newJobFixture(t, map[string]string{"a.txt": "alpha"})
	mirror := filepath.Join(t.TempDir(), "mirror")
	job := f.job(t, bk.Incremental, bk.Retention{Count: 2, Size: 2}, mirror)

	// A file where the mirror directory should be makes every mirror step fail.
	if err := os.RemoveAll(mirror); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(mirror, []byte("in the way"), 0o644); err != nil {
		t.Fatal(err)
	}

	r, err := job.PerformBackup()
	if err != nil {
		t.Fatalf("PerformBackup() error = %v, want mirror failures reported only", err)
	}
	if r.MirrorFailures != 1 {
		t.Errorf("MirrorFailures = %d, want 1", r.MirrorFailures)
	}
	if r.Copied != 1 {
		t.Errorf("primary Copied = %d, want 1", r.Copied)
	}
}

func TestBackupJob_MirrorRepairsIncompletePart(t *testing.T) {
	f := newJobFixture(t, map[string]string{"a.txt": "alpha", "sub/b.txt": "beta"})
	mirror := filepath.Join(t.TempDir(), "mirror")
	job := f.job(t, bk.Incremental, bk.Retention{Count: 2, Size: 3}, mirror)

	first := f.run(t, job)

	// Leave the first part behind as an interrupted mirror would.
	part := filepath.Join(mirror, first.Package, first.Part, bk.HashPath(f.source, true))
	if err := os.Remove(filepath.Join(part, "sub", "b.txt")); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(part, "a.txt"), []byte("al"), 0o644); err != nil {
		t.Fatal(err)
	}

	testutil.WriteTree(t, f.source, map[string]string{"c.txt": "gamma"})
	r := f.run(t, job)
	if r.MirrorFailures != 0 {
		t.Fatalf("MirrorFailures = %d", r.MirrorFailures)
	}

	assertTree(t, testutil.ReadTree(t, mirror), testutil.ReadTree(t, f.target))
}
