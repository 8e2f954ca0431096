package bk_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"bk-go/internal/bk"
	"bk-go/internal/testutil"
)

func readTargetManifest(t *testing.T, folder string) bk.TargetManifest {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(folder, bk.TargetMetadataFile))
	if err != nil {
		t.Fatalf("reading target metadata: %v", err)
	}
	var m bk.TargetManifest
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("parsing target metadata: %v", err)
	}
	return m
}

func TestOpenTargetDirectory_New(t *testing.T) {
	env, _ := newTestEnv(t)
	folder := filepath.Join(t.TempDir(), "target")
	layout := bk.Layout{Sources: []string{"/data"}, Method: bk.Full, Retention: bk.Retention{Count: 3, Size: 1}}

	target, err := bk.OpenTargetDirectory(env, layout, folder)
	if err != nil {
		t.Fatalf("OpenTargetDirectory() error = %v", err)
	}
	if len(target.Packages()) != 0 {
		t.Errorf("Packages() = %d, want 0", len(target.Packages()))
	}
	if m := readTargetManifest(t, folder); m.Packages == nil || len(m.Packages) != 0 {
		t.Errorf("metadata packages = %v, want empty list", m.Packages)
	}
}

func TestTargetDirectory_CurrentPackage(t *testing.T) {
	t.Run("reuses a package that is not full", func(t *testing.T) {
		env, clock := newTestEnv(t)
		folder := filepath.Join(t.TempDir(), "target")
		layout := bk.Layout{Sources: []string{"/data"}, Method: bk.Incremental, Retention: bk.Retention{Count: 3, Size: 3}}
		target, err := bk.OpenTargetDirectory(env, layout, folder)
		if err != nil {
			t.Fatal(err)
		}

		first, err := target.CurrentPackage()
		if err != nil {
			t.Fatalf("CurrentPackage() error = %v", err)
		}
		if first.Name() != hexName(clock.Now()) {
			t.Errorf("package name = %s, want %s", first.Name(), hexName(clock.Now()))
		}
		if _, err := first.CreatePart(); err != nil {
			t.Fatal(err)
		}
		clock.Advance(time.Hour)

		again, err := target.CurrentPackage()
		if err != nil {
			t.Fatal(err)
		}
		if again != first {
			t.Errorf("CurrentPackage() rotated a package with %d of 3 parts", first.Size())
		}
	})

	t.Run("rotates and evicts the oldest package", func(t *testing.T) {
		env, clock := newTestEnv(t)
		folder := filepath.Join(t.TempDir(), "target")
		layout := bk.Layout{Sources: []string{"/data"}, Method: bk.Full, Retention: bk.Retention{Count: 2, Size: 1}}
		target, err := bk.OpenTargetDirectory(env, layout, folder)
		if err != nil {
			t.Fatal(err)
		}

		var names []string
		for range 3 {
			clock.Advance(time.Hour)
			pkg, err := target.CurrentPackage()
			if err != nil {
				t.Fatalf("CurrentPackage() error = %v", err)
			}
			if _, err := pkg.CreatePart(); err != nil {
				t.Fatal(err)
			}
			names = append(names, pkg.Name())
		}

		if got := target.PackageNames(); !slices.Equal(got, names[1:]) {
			t.Errorf("PackageNames() = %v, want %v", got, names[1:])
		}
		if _, err := os.Stat(filepath.Join(folder, names[0])); !os.IsNotExist(err) {
			t.Errorf("evicted package folder still exists: %v", err)
		}
		if m := readTargetManifest(t, folder); !slices.Equal(m.Packages, names[1:]) {
			t.Errorf("metadata packages = %v, want %v", m.Packages, names[1:])
		}
	})

	t.Run("same timestamp gets a suffixed package name", func(t *testing.T) {
		env, clock := newTestEnv(t)
		folder := filepath.Join(t.TempDir(), "target")
		layout := bk.Layout{Sources: []string{"/data"}, Method: bk.Full, Retention: bk.Retention{Count: 5, Size: 1}}
		target, err := bk.OpenTargetDirectory(env, layout, folder)
		if err != nil {
			t.Fatal(err)
		}

		for range 2 {
			pkg, err := target.CurrentPackage()
			if err != nil {
				t.Fatal(err)
			}
			if _, err := pkg.CreatePart(); err != nil {
				t.Fatal(err)
			}
		}
		want := []string{hexName(clock.Now()), hexName(clock.Now()) + "-1"}
		if got := target.PackageNames(); !slices.Equal(got, want) {
			t.Errorf("PackageNames() = %v, want %v", got, want)
		}
	})
}

func TestOpenTargetDirectory_Hydrates(t *testing.T) {
	env, clock := newTestEnv(t)
	folder := filepath.Join(t.TempDir(), "target")
	layout := bk.Layout{Sources: []string{"/data"}, Method: bk.Incremental, Retention: bk.Retention{Count: 3, Size: 2}}

	target, err := bk.OpenTargetDirectory(env, layout, folder)
	if err != nil {
		t.Fatal(err)
	}
	pkg, err := target.CurrentPackage()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := pkg.CreatePart(); err != nil {
		t.Fatal(err)
	}
	clock.Advance(time.Hour)

	reopened, err := bk.OpenTargetDirectory(env, layout, folder)
	if err != nil {
		t.Fatalf("OpenTargetDirectory() error = %v", err)
	}
	if got := reopened.PackageNames(); !slices.Equal(got, []string{pkg.Name()}) {
		t.Fatalf("PackageNames() = %v, want [%s]", got, pkg.Name())
	}
	current, err := reopened.CurrentPackage()
	if err != nil {
		t.Fatal(err)
	}
	if current.Name() != pkg.Name() || current.Size() != 1 {
		t.Errorf("CurrentPackage() = %s with %d parts, want the hydrated package with 1 part", current.Name(), current.Size())
	}
}

func TestOpenTargetDirectory_DropsMissingPackages(t *testing.T) {
	env, _ := newTestEnv(t)
	folder := t.TempDir()
	testutil.WriteTree(t, folder, map[string]string{
		bk.TargetMetadataFile:            `{"packages": ["GONE", "KEPT"]}`,
		"KEPT/" + bk.PackageMetadataFile: `{"paths": {}, "parts": []}`,
	})
	layout := bk.Layout{Sources: []string{"/data"}, Method: bk.Full, Retention: bk.Retention{Count: 3, Size: 1}}

	target, err := bk.OpenTargetDirectory(env, layout, folder)
	if err != nil {
		t.Fatalf("OpenTargetDirectory() error = %v", err)
	}
	if got := target.PackageNames(); !slices.Equal(got, []string{"KEPT"}) {
		t.Errorf("PackageNames() = %v, want [KEPT]", got)
	}
	if m := readTargetManifest(t, folder); !slices.Equal(m.Packages, []string{"KEPT"}) {
		t.Errorf("metadata not rewritten: %v", m.Packages)
	}
}

func TestOpenTargetDirectory_SeedsFromDisk(t *testing.T) {
	env, _ := newTestEnv(t)
	folder := t.TempDir()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	older := hexName(base)
	newer := hexName(base.Add(time.Hour))
	newest := hexName(base.Add(2 * time.Hour))

	// Written out of order; seeding sorts by the timestamp in the name.
	testutil.WriteTree(t, folder, map[string]string{
		newest + "/" + bk.PackageMetadataFile: `{"paths": {}, "parts": []}`,
		older + "/" + bk.PackageMetadataFile:  `{"paths": {}, "parts": []}`,
		newer + "/" + bk.PackageMetadataFile:  `{"paths": {}, "parts": []}`,
		"stray/readme.txt":                    "not a package",
	})
	layout := bk.Layout{Sources: []string{"/data"}, Method: bk.Full, Retention: bk.Retention{Count: 2, Size: 1}}

	target, err := bk.OpenTargetDirectory(env, layout, folder)
	if err != nil {
		t.Fatalf("OpenTargetDirectory() error = %v", err)
	}

	if got := target.PackageNames(); !slices.Equal(got, []string{newer, newest}) {
		t.Errorf("PackageNames() = %v, want [%s %s]", got, newer, newest)
	}
	if _, err := os.Stat(filepath.Join(folder, older)); !os.IsNotExist(err) {
		t.Errorf("package beyond retention not deleted: %v", err)
	}
	if _, err := os.Stat(filepath.Join(folder, "stray")); err != nil {
		t.Errorf("non-package folder touched: %v", err)
	}
}

func TestOpenTargetDirectory_CorruptMetadataSeedsFromDisk(t *testing.T) {
	env, _ := newTestEnv(t)
	folder := t.TempDir()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	first := hexName(base)
	second := hexName(base.Add(time.Hour))

	testutil.WriteTree(t, folder, map[string]string{
		first + "/" + bk.PackageMetadataFile:  `{"paths": {}, "parts": []}`,
		second + "/" + bk.PackageMetadataFile: `{"paths": {}, "parts": []}`,
		bk.TargetMetadataFile:                 "{not json",
	})
	layout := bk.Layout{Sources: []string{"/data"}, Method: bk.Full, Retention: bk.Retention{Count: 3, Size: 1}}

	target, err := bk.OpenTargetDirectory(env, layout, folder)
	if err != nil {
		t.Fatalf("OpenTargetDirectory() error = %v", err)
	}

	want := []string{first, second}
	if got := target.PackageNames(); !slices.Equal(got, want) {
		t.Errorf("PackageNames() = %v, want %v", got, want)
	}
	if got := readTargetManifest(t, folder).Packages; !slices.Equal(got, want) {
		t.Errorf("rewritten metadata packages = %v, want %v", got, want)
	}
}
