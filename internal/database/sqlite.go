package database

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"idecrypt/internal/database/migrations"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Run statuses.
const (
	StatusRunning   = "running"
	StatusSuccess   = "success"
	StatusPartial   = "partial"
	StatusCancelled = "cancelled"
	StatusFailed    = "failed"
)

// Run is one recorded decryption run.
type Run struct {
	ID         int64
	RunID      string
	BackupPath string
	Mode       string
	Target     string
	StartedAt  time.Time
	FinishedAt sql.NullTime
	Total      int64
	Processed  int64
	Skipped    int64
	Errored    int64
	Bytes      int64
	Status     string
	Message    string
}

// SQLiteDatabase stores run history in SQLite.
type SQLiteDatabase struct {
	db   *sql.DB
	path string
}

// NewSQLiteDatabase opens the database at path and applies pending migrations.
// path can be a file path or ":memory:" for in-memory database.
func NewSQLiteDatabase(path string) (*SQLiteDatabase, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}

	if err := migrations.MigrateUp(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating database: %w", err)
	}

	return &SQLiteDatabase{db: db, path: path}, nil
}

// NewSQLiteDatabaseFromDB wraps an existing database connection.
// The caller is responsible for ensuring the connection is properly configured.
func NewSQLiteDatabaseFromDB(db *sql.DB) *SQLiteDatabase {
	return &SQLiteDatabase{db: db}
}

// OpenConnection opens and configures a SQLite database connection with appropriate PRAGMAs.
// path can be a file path or ":memory:" for in-memory database.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Every pooled connection to ":memory:" would get its own empty database.
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

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

// StartRun inserts run with status running and sets run.ID.
func (s *SQLiteDatabase) StartRun(run *Run) error {
	res, err := s.db.Exec(
		`INSERT INTO runs (run_id, backup_path, mode, target, started_at, status)
		VALUES (?, ?, ?, ?, ?, ?)`,
		run.RunID, run.BackupPath, run.Mode, run.Target, run.StartedAt.UTC(), StatusRunning,
	)
	if err != nil {
		return fmt.Errorf("creating run: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading run id: %w", err)
	}
	run.ID = id
	run.Status = StatusRunning
	return nil
}

// FinishRun stores the final counters and status of a started run.
func (s *SQLiteDatabase) FinishRun(run *Run) error {
	finished := run.FinishedAt
	if finished.Valid {
		finished.Time = finished.Time.UTC()
	}

	res, err := s.db.Exec(
		`UPDATE runs SET finished_at = ?, total = ?, processed = ?, skipped = ?, errored = ?,
			bytes = ?, status = ?, message = ?
		WHERE run_id = ?`,
		finished, run.Total, run.Processed, run.Skipped, run.Errored,
		run.Bytes, run.Status, run.Message, run.RunID,
	)
	if err != nil {
		return fmt.Errorf("finishing run: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finishing run: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("finishing run: run %s not found", run.RunID)
	}
	return nil
}

// FindRun returns the run with the given run ID, or nil if there is none.
func (s *SQLiteDatabase) FindRun(runID string) (*Run, error) {
	row := s.db.QueryRow(selectRuns+` WHERE run_id = ?`, runID)
	run, err := scanRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("finding run: %w", err)
	}
	return run, nil
}

// ListRuns returns up to limit runs, newest first.
func (s *SQLiteDatabase) ListRuns(limit int) ([]*Run, error) {
	rows, err := s.db.Query(selectRuns+` ORDER BY started_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("listing runs: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	return runs, nil
}

const selectRuns = `SELECT id, run_id, backup_path, mode, target, started_at, finished_at,
	total, processed, skipped, errored, bytes, status, message
FROM runs`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (*Run, error) {
	var r Run
	err := sc.Scan(&r.ID, &r.RunID, &r.BackupPath, &r.Mode, &r.Target, &r.StartedAt, &r.FinishedAt,
		&r.Total, &r.Processed, &r.Skipped, &r.Errored, &r.Bytes, &r.Status, &r.Message)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// Path returns the database file path (or ":memory:" for in-memory databases).
func (s *SQLiteDatabase) Path() string {
	return s.path
}

// CheckMigrations verifies the database schema is up-to-date.
func (s *SQLiteDatabase) CheckMigrations() error {
	return migrations.CheckDBMigrationStatus(s.db)
}

// Close closes the database connection.
func (s *SQLiteDatabase) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
