package app

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"bk-go/internal/bk"
	"bk-go/internal/config"
	"bk-go/internal/fs"
	"bk-go/internal/testutil"
)

func testEnv(t *testing.T) bk.Env {
	t.Helper()
	return bk.Env{FS: fs.NewOSFilesystemManager(), Logger: bk.NewNopLogger(), Clock: testutil.FixedClock()}
}

func TestNewBKApp_SkipsInvalidJobs(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "data")
	testutil.WriteTree(t, src, map[string]string{"a.txt": "alpha"})

	defs := []bk.JobDefinition{
		{Name: "good", Sources: []string{src}, Targets: []string{filepath.Join(root, "backup")},
			Timing: "0 0 2 * * *", Retention: bk.Retention{Count: 2, Size: 1}, Method: bk.Full},
		{Name: "missing-source", Sources: []string{filepath.Join(root, "nope")}, Targets: []string{filepath.Join(root, "b2")},
			Timing: "0 0 2 * * *", Retention: bk.Retention{Count: 2, Size: 1}, Method: bk.Full},
		{Name: "nested", Sources: []string{src}, Targets: []string{filepath.Join(src, "backup")},
			Timing: "0 0 2 * * *", Retention: bk.Retention{Count: 2, Size: 1}, Method: bk.Full},
	}

	a := newBKApp(defs, testEnv(t), testutil.NewTestHistory(t), testutil.NewStubIDGenerator())

	if len(a.Jobs()) != 1 || a.Jobs()[0].Name() != "good" {
		t.Fatalf("Jobs() = %d jobs, want only good", len(a.Jobs()))
	}
	if len(a.Invalid()) != 2 {
		t.Errorf("Invalid() = %v, want 2 problems", a.Invalid())
	}
}

func TestBKApp_RunJobRecordsHistory(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "data")
	testutil.WriteTree(t, src, map[string]string{"a.txt": "alpha", "sub/b.txt": "beta"})

	defs := []bk.JobDefinition{{
		Name: "docs", Sources: []string{src}, Targets: []string{filepath.Join(root, "backup")},
		Timing: "0 0 2 * * *", Retention: bk.Retention{Count: 3, Size: 3}, Method: bk.Incremental,
	}}
	history := testutil.NewTestHistory(t)
	a := newBKApp(defs, testEnv(t), history, testutil.NewStubIDGenerator())

	rec, err := a.RunJob("docs")
	if err != nil {
		t.Fatalf("RunJob() error = %v", err)
	}
	if rec.ID != "run-1" || rec.Status != bk.RunSucceeded || rec.Copied != 2 {
		t.Errorf("RunJob() record = %+v, want run-1 success with 2 copies", rec)
	}

	if _, err := a.RunJob("docs"); err != nil {
		t.Fatalf("second RunJob() error = %v", err)
	}

	runs, err := a.History(10)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("History() returned %d runs, want 2", len(runs))
	}
	for _, r := range runs {
		if r.Job != "docs" || r.Method != "Incremental" {
			t.Errorf("run %s = job %q method %q", r.ID, r.Job, r.Method)
		}
	}
	total := runs[0].Copied + runs[1].Copied
	if total != 2 {
		t.Errorf("copies over two runs = %d, want 2 (second run copies nothing)", total)
	}
}

func TestBKApp_RunJobUnknown(t *testing.T) {
	a := newBKApp(nil, testEnv(t), bk.NopHistory{}, testutil.NewStubIDGenerator())
	if _, err := a.RunJob("ghost"); err == nil {
		t.Error("RunJob() on unknown job should fail")
	}
}

func TestBKApp_RunAll(t *testing.T) {
	root := t.TempDir()
	var defs []bk.JobDefinition
	for _, name := range []string{"one", "two"} {
		src := filepath.Join(root, "src-"+name)
		testutil.WriteTree(t, src, map[string]string{name + ".txt": name})
		defs = append(defs, bk.JobDefinition{
			Name: name, Sources: []string{src}, Targets: []string{filepath.Join(root, "dst-"+name)},
			Timing: "0 0 2 * * *", Retention: bk.Retention{Count: 1, Size: 1}, Method: bk.Full,
		})
	}
	a := newBKApp(defs, testEnv(t), testutil.NewTestHistory(t), testutil.NewStubIDGenerator())

	if err := a.RunAll(); err != nil {
		t.Fatalf("RunAll() error = %v", err)
	}
	runs, err := a.History(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 2 {
		t.Errorf("History() after RunAll = %d runs, want 2", len(runs))
	}
}

func TestBKApp_ServeStopsOnCancel(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "data")
	testutil.WriteTree(t, src, map[string]string{"a.txt": "alpha"})
	defs := []bk.JobDefinition{{
		Name: "nightly", Sources: []string{src}, Targets: []string{filepath.Join(root, "backup")},
		Timing: "0 0 2 * * *", Retention: bk.Retention{Count: 1, Size: 1}, Method: bk.Full,
	}}
	a := newBKApp(defs, testEnv(t), bk.NopHistory{}, testutil.NewStubIDGenerator())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- a.Serve(ctx) }()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve() did not return after cancellation")
	}
}

func TestCheckJobs(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "data")
	testutil.WriteTree(t, src, map[string]string{"a.txt": "alpha"})
	target := filepath.Join(root, "backup")

	jobFile := filepath.Join(root, "jobs.json")
	content := `[
		// nightly documents
		{"name": "docs", "sources": ["` + src + `"], "targets": ["` + target + `"], "timing": "0 2 * * *"},
		{"name": "clash", "sources": ["` + src + `"], "targets": ["` + target + `"], "timing": "0 3 * * *"},
	]`
	if err := os.WriteFile(jobFile, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	names, invalid, err := CheckJobs(jobFile)
	if err != nil {
		t.Fatalf("CheckJobs() error = %v", err)
	}
	if len(names) != 1 || names[0] != "docs" {
		t.Errorf("CheckJobs() names = %v, want [docs]", names)
	}
	if len(invalid) != 1 || !strings.Contains(invalid[0].Error(), "already used by job docs") {
		t.Errorf("CheckJobs() invalid = %v, want one duplicate target problem", invalid)
	}
	if _, err := os.Stat(target); err != nil {
		t.Errorf("target not created: %v", err)
	}
}

func TestNewBKApp_LogsMalformedJobFile(t *testing.T) {
	root := t.TempDir()
	jobs := filepath.Join(root, "jobs.json")
	if err := os.WriteFile(jobs, []byte(`[{"sources": ]`), 0o644); err != nil {
		t.Fatal(err)
	}
	logFile := filepath.Join(root, "latest.log")

	settings := config.NewSettings(root)
	settings.History.Type = "none"
	_, err := NewBKApp(settings, Options{
		JobsPath: jobs,
		Log:      LogOptions{File: logFile, MaxSizeMB: 1, MaxBackups: 1, Quiet: true},
	})
	if err == nil {
		t.Fatal("NewBKApp() with a malformed job file should fail")
	}

	data, err := os.ReadFile(logFile)
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	if !strings.Contains(string(data), "ERROR\t") || !strings.Contains(string(data), "loading jobs") {
		t.Errorf("log file = %q, want the job file error", data)
	}
}
