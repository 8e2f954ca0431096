package database

import (
	"fmt"
	"os"
	"path/filepath"

	"bk-go/internal/bk"
	"bk-go/internal/config"
)

// HistoryFileName is the database file created under the history data dir.
const HistoryFileName = "history.db"

// NewHistoryFromConfig creates a RunHistory based on the history config type.
func NewHistoryFromConfig(cfg config.HistoryConfig) (bk.RunHistory, error) {
	switch cfg.Type {
	case "sqlite":
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("data_dir required for sqlite history")
		}
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating history data dir: %w", err)
		}
		return NewSQLiteHistory(filepath.Join(cfg.DataDir, HistoryFileName))
	case "memory":
		return NewSQLiteHistory(":memory:")
	case "none":
		return bk.NopHistory{}, nil
	default:
		return nil, fmt.Errorf("unknown history type: %s", cfg.Type)
	}
}
