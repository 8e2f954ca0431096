package bk_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"bk-go/internal/bk"
	"bk-go/internal/fs"
)

type testManifest struct {
	Items []string `json:"items"`
}

func TestMetadataStore(t *testing.T) {
	m := fs.NewOSFilesystemManager()
	def := testManifest{Items: []string{}}

	t.Run("writes default when absent", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "new")
		s, err := bk.OpenMetadataStore(m, bk.NewNopLogger(), dir, "meta.json", def)
		if err != nil {
			t.Fatalf("OpenMetadataStore() error = %v", err)
		}
		if s.Existed() || !s.Loaded() {
			t.Errorf("Existed() = %v Loaded() = %v, want false and true for a new store", s.Existed(), s.Loaded())
		}

		data, err := os.ReadFile(filepath.Join(dir, "meta.json"))
		if err != nil {
			t.Fatalf("default not written: %v", err)
		}
		var got testManifest
		if err := json.Unmarshal(data, &got); err != nil {
			t.Fatalf("default is not valid JSON: %v", err)
		}
		if got.Items == nil || len(got.Items) != 0 {
			t.Errorf("written default = %+v", got)
		}
	})

	t.Run("loads existing file", func(t *testing.T) {
		dir := t.TempDir()
		if err := os.WriteFile(filepath.Join(dir, "meta.json"), []byte(`{"items":["a","b"]}`), 0o644); err != nil {
			t.Fatal(err)
		}

		s, err := bk.OpenMetadataStore(m, bk.NewNopLogger(), dir, "meta.json", def)
		if err != nil {
			t.Fatalf("OpenMetadataStore() error = %v", err)
		}
		if !s.Existed() || !s.Loaded() {
			t.Errorf("Existed() = %v Loaded() = %v, want both true", s.Existed(), s.Loaded())
		}
		if got := s.Current().Items; len(got) != 2 || got[0] != "a" || got[1] != "b" {
			t.Errorf("Current() = %+v", s.Current())
		}
	})

	t.Run("corrupt file falls back to default and logs", func(t *testing.T) {
		dir := t.TempDir()
		if err := os.WriteFile(filepath.Join(dir, "meta.json"), []byte(`{"items": [`), 0o644); err != nil {
			t.Fatal(err)
		}
		logger := &recordingLogger{}

		s, err := bk.OpenMetadataStore(m, logger, dir, "meta.json", testManifest{Items: []string{"default"}})
		if err != nil {
			t.Fatalf("OpenMetadataStore() error = %v", err)
		}
		if got := s.Current().Items; len(got) != 1 || got[0] != "default" {
			t.Errorf("Current() = %+v, want the default", s.Current())
		}
		if !s.Existed() || s.Loaded() {
			t.Errorf("Existed() = %v Loaded() = %v, want true and false", s.Existed(), s.Loaded())
		}
		if len(logger.errors) != 1 {
			t.Errorf("logged %d errors, want 1", len(logger.errors))
		}
	})

	t.Run("persist survives reopen", func(t *testing.T) {
		dir := t.TempDir()
		s, err := bk.OpenMetadataStore(m, bk.NewNopLogger(), dir, "meta.json", def)
		if err != nil {
			t.Fatal(err)
		}
		if err := s.Persist(testManifest{Items: []string{"x"}}); err != nil {
			t.Fatalf("Persist() error = %v", err)
		}
		if got := s.Current().Items; len(got) != 1 || got[0] != "x" {
			t.Errorf("Current() after Persist = %+v", s.Current())
		}

		reopened, err := bk.OpenMetadataStore(m, bk.NewNopLogger(), dir, "meta.json", def)
		if err != nil {
			t.Fatal(err)
		}
		if got := reopened.Current().Items; len(got) != 1 || got[0] != "x" {
			t.Errorf("reopened Current() = %+v", reopened.Current())
		}
		if reopened.Path() != filepath.Join(dir, "meta.json") {
			t.Errorf("Path() = %s", reopened.Path())
		}
	})
}
