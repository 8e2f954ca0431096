package database

import (
	"os"
	"path/filepath"
	"testing"

	"bk-go/internal/bk"
	"bk-go/internal/config"
)

func TestNewHistoryFromConfig(t *testing.T) {
	t.Run("memory history", func(t *testing.T) {
		got, err := NewHistoryFromConfig(config.HistoryConfig{Type: "memory"})
		if err != nil {
			t.Fatalf("NewHistoryFromConfig() unexpected error: %v", err)
		}
		defer got.Close()

		if _, ok := got.(*SQLiteHistory); !ok {
			t.Errorf("NewHistoryFromConfig() = %T, want *SQLiteHistory", got)
		}
	})

	t.Run("sqlite history creates data dir", func(t *testing.T) {
		dataDir := filepath.Join(t.TempDir(), "nested", "db")
		got, err := NewHistoryFromConfig(config.HistoryConfig{Type: "sqlite", DataDir: dataDir})
		if err != nil {
			t.Fatalf("NewHistoryFromConfig() unexpected error: %v", err)
		}
		defer got.Close()

		if _, err := os.Stat(filepath.Join(dataDir, HistoryFileName)); err != nil {
			t.Errorf("history database not created: %v", err)
		}
	})

	t.Run("none history", func(t *testing.T) {
		got, err := NewHistoryFromConfig(config.HistoryConfig{Type: "none"})
		if err != nil {
			t.Fatalf("NewHistoryFromConfig() unexpected error: %v", err)
		}
		if _, ok := got.(bk.NopHistory); !ok {
			t.Errorf("NewHistoryFromConfig() = %T, want bk.NopHistory", got)
		}
	})

	t.Run("sqlite history without data_dir", func(t *testing.T) {
		got, err := NewHistoryFromConfig(config.HistoryConfig{Type: "sqlite"})
		if err == nil {
			t.Error("NewHistoryFromConfig() expected error for missing data_dir, got nil")
		}
		if got != nil {
			t.Error("NewHistoryFromConfig() should return nil on error")
			got.Close()
		}
	})

	t.Run("unknown history type", func(t *testing.T) {
		got, err := NewHistoryFromConfig(config.HistoryConfig{Type: "unknown"})
		if err == nil {
			t.Error("NewHistoryFromConfig() expected error for unknown type, got nil")
		}
		if got != nil {
			t.Error("NewHistoryFromConfig() should return nil on error")
			got.Close()
		}
	})
}
