package database

import (
	"database/sql"
	"fmt"
	"time"

	"bk-go/internal/bk"
	"bk-go/internal/database/migrations"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteHistory implements bk.RunHistory on top of SQLite.
type SQLiteHistory struct {
	db   *sql.DB
	path string
}

var _ bk.RunHistory = (*SQLiteHistory)(nil)

// NewSQLiteHistory opens the history database at path and brings its schema
// up to date. path can be a file path or ":memory:".
func NewSQLiteHistory(path string) (*SQLiteHistory, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}
	if err := migrations.Up(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating history database: %w", err)
	}
	return &SQLiteHistory{db: db, path: path}, nil
}

// OpenConnection opens and configures a SQLite connection.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Each connection to ":memory:" is a separate database.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}
	return db, nil
}

// Path returns the database location.
func (s *SQLiteHistory) Path() string {
	return s.path
}

// CheckMigrations reports whether the schema matches this binary.
func (s *SQLiteHistory) CheckMigrations() error {
	return migrations.CheckStatus(s.db)
}

func (s *SQLiteHistory) RecordRun(run *bk.RunRecord) error {
	_, err := s.db.Exec(`INSERT INTO runs
		(id, job, method, target, package, part, started_at, finished_at,
		 copied, skipped, failed, bytes, status, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Job, run.Method, run.Target, run.Package, run.Part,
		run.StartedAt.UnixNano(), run.FinishedAt.UnixNano(),
		run.Copied, run.Skipped, run.Failed, run.Bytes, run.Status, run.Error)
	if err != nil {
		return fmt.Errorf("recording run %s: %w", run.ID, err)
	}
	return nil
}

func (s *SQLiteHistory) RecentRuns(limit int) ([]*bk.RunRecord, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.db.Query(`SELECT id, job, method, target, package, part,
		started_at, finished_at, copied, skipped, failed, bytes, status, error
		FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var runs []*bk.RunRecord
	for rows.Next() {
		var (
			run               bk.RunRecord
			started, finished int64
		)
		if err := rows.Scan(&run.ID, &run.Job, &run.Method, &run.Target, &run.Package, &run.Part,
			&started, &finished, &run.Copied, &run.Skipped, &run.Failed, &run.Bytes,
			&run.Status, &run.Error); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		run.StartedAt = time.Unix(0, started)
		run.FinishedAt = time.Unix(0, finished)
		runs = append(runs, &run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	return runs, nil
}

func (s *SQLiteHistory) Close() error {
	return s.db.Close()
}
