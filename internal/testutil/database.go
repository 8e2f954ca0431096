package testutil

import (
	"testing"

	"bk-go/internal/database"
)

// NewTestHistory creates an in-memory run history with its schema applied.
// The history is closed when the test completes.
func NewTestHistory(t *testing.T) *database.SQLiteHistory {
	t.Helper()

	h, err := database.NewSQLiteHistory(":memory:")
	if err != nil {
		t.Fatalf("failed to open history: %v", err)
	}

	t.Cleanup(func() {
		h.Close()
	})

	return h
}
