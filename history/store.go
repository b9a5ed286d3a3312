// Package history persists the outcome of finished encoding jobs in SQLite.
package history

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"vidconv/task"
)

//go:embed schema.sql
var schemaSQL string

// Record is one finished job.
type Record struct {
	ID              int64     `json:"id"`
	JobID           string    `json:"jobId"`
	BatchID         string    `json:"batchId"`
	InputPath       string    `json:"inputPath"`
	OutputPath      string    `json:"outputPath"`
	Preset          string    `json:"preset"`
	Encoder         string    `json:"encoder"`
	Status          string    `json:"status"`
	Error           string    `json:"error,omitempty"`
	DurationSeconds float64   `json:"durationSeconds"`
	FileSize        int64     `json:"fileSize"`
	StartedAt       time.Time `json:"startedAt,omitempty"`
	CompletedAt     time.Time `json:"completedAt"`
}

// Store manages job history backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the history database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure history dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// Pragmas are per connection; writers share the single one.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{db: db, path: path}, nil
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Record stores a terminal job, replacing an earlier record of the same job.
func (s *Store) Record(ctx context.Context, job task.Job) error {
	completed := job.CompletedAt
	if completed.IsZero() {
		completed = time.Now()
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO jobs (
            job_id, batch_id, input_path, output_path, preset, encoder, status,
            error_message, duration_seconds, file_size, started_at, completed_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(job_id) DO UPDATE SET
            status = excluded.status,
            error_message = excluded.error_message,
            started_at = excluded.started_at,
            completed_at = excluded.completed_at`,
		job.ID,
		job.BatchID,
		job.InputPath,
		job.OutputPath,
		job.PresetName,
		job.EncoderID,
		string(job.Status),
		nullableString(job.Error),
		job.Source.DurationSeconds,
		job.Source.FileSize,
		nullableTime(job.StartedAt),
		formatTime(completed),
	)
	if err != nil {
		return fmt.Errorf("insert job %s: %w", job.ID, err)
	}
	return nil
}

const recordColumns = "id, job_id, batch_id, input_path, output_path, preset, encoder, status, error_message, duration_seconds, file_size, started_at, completed_at"

// List returns the newest records first. limit <= 0 returns everything.
func (s *Store) List(ctx context.Context, limit int) ([]Record, error) {
	query := "SELECT " + recordColumns + " FROM jobs ORDER BY completed_at DESC, id DESC"
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Prune deletes records completed before the cutoff.
func (s *Store) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM jobs WHERE completed_at < ?", formatTime(before))
	if err != nil {
		return 0, fmt.Errorf("prune jobs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

func scanRecord(scanner interface{ Scan(dest ...any) error }) (Record, error) {
	var (
		rec          Record
		errorMessage sql.NullString
		startedRaw   sql.NullString
		completedRaw string
	)
	if err := scanner.Scan(
		&rec.ID,
		&rec.JobID,
		&rec.BatchID,
		&rec.InputPath,
		&rec.OutputPath,
		&rec.Preset,
		&rec.Encoder,
		&rec.Status,
		&errorMessage,
		&rec.DurationSeconds,
		&rec.FileSize,
		&startedRaw,
		&completedRaw,
	); err != nil {
		return Record{}, fmt.Errorf("scan job: %w", err)
	}
	rec.Error = errorMessage.String
	if startedRaw.Valid {
		rec.StartedAt = parseTime(startedRaw.String)
	}
	rec.CompletedAt = parseTime(completedRaw)
	return rec, nil
}

// Timestamps are stored as UTC text with a fixed width so that string
// comparison orders them chronologically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(raw string) time.Time {
	t, err := time.Parse(timeLayout, raw)
	if err != nil {
		return time.Time{}
	}
	return t
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return formatTime(t)
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
