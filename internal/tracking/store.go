package tracking

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"scribed/internal/config"
)

// Store manages transcription state persistence backed by SQLite.
//
// Writes are durable before the call returns (WAL journal, synchronous
// default), and SQLite serializes them, which provides the per-key
// linearizability the deduplicator and workers rely on.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the tracking database.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	return OpenPath(filepath.Join(cfg.Paths.StateDir, "tracking.db"))
}

// OpenPath connects to the tracking database at an explicit location.
//
// Pragmas ride in the DSN so that every connection database/sql opens
// carries them; applying them with db.Exec would configure a single
// pooled connection and leave concurrent writers without a busy
// timeout.
func OpenPath(dbPath string) (*Store, error) {
	dsn := "file:" + dbPath +
		"?_pragma=busy_timeout(5000)" +
		"&_pragma=journal_mode(WAL)" +
		"&_pragma=foreign_keys(ON)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	store := &Store{db: db, path: dbPath}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// Get fetches the record for a file identity, or nil when untracked.
func (s *Store) Get(ctx context.Context, path string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM files WHERE path = ?`, path)
	record, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get record: %w", err)
	}
	return record, nil
}

// Put atomically inserts or replaces the record for its identity.
func (s *Store) Put(ctx context.Context, record *Record) error {
	if record == nil {
		return errors.New("record is nil")
	}
	if strings.TrimSpace(record.Path) == "" {
		return errors.New("record path must not be empty")
	}
	if !record.Status.Valid() {
		return fmt.Errorf("invalid status %q", record.Status)
	}

	now := time.Now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now

	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO files (path, fingerprint, status, failure_count, transcript_path, error_message, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT(path) DO UPDATE SET
             fingerprint = excluded.fingerprint,
             status = excluded.status,
             failure_count = excluded.failure_count,
             transcript_path = excluded.transcript_path,
             error_message = excluded.error_message,
             updated_at = excluded.updated_at`,
		record.Path,
		record.Fingerprint,
		record.Status,
		record.FailureCount,
		record.TranscriptPath,
		nullableString(record.ErrorMessage),
		record.CreatedAt.Format(time.RFC3339Nano),
		record.UpdatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("put record: %w", err)
	}
	return nil
}

// Remove deletes the record for an identity. Reports whether one existed.
func (s *Store) Remove(ctx context.Context, path string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM files WHERE path = ?`, path)
	if err != nil {
		return false, fmt.Errorf("delete record: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// Rename relabels a record from one identity to another, preserving
// fingerprint, status, and failure count. The transcript path is re-derived
// by the caller and passed in so this package stays ignorant of path math.
func (s *Store) Rename(ctx context.Context, oldPath, newPath, newTranscriptPath string) error {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE files SET path = ?, transcript_path = ?, updated_at = ? WHERE path = ?`,
		newPath,
		newTranscriptPath,
		time.Now().UTC().Format(time.RFC3339Nano),
		oldPath,
	)
	if err != nil {
		return fmt.Errorf("rename record: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("rename record: no record for %q", oldPath)
	}
	return nil
}

// List returns all records ordered by path.
func (s *Store) List(ctx context.Context) ([]*Record, error) {
	return s.query(ctx, `SELECT `+recordColumns+` FROM files ORDER BY path`)
}

// ListByStatus returns records matching a status ordered by path.
func (s *Store) ListByStatus(ctx context.Context, status Status) ([]*Record, error) {
	return s.query(ctx, `SELECT `+recordColumns+` FROM files WHERE status = ? ORDER BY path`, status)
}

func (s *Store) query(ctx context.Context, query string, args ...any) ([]*Record, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// ResetInProgress returns records left in_progress by a crash back to
// pending so the startup scan re-enqueues them.
func (s *Store) ResetInProgress(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE files SET status = ?, updated_at = ? WHERE status = ?`,
		StatusPending,
		time.Now().UTC().Format(time.RFC3339Nano),
		StatusInProgress,
	)
	if err != nil {
		return 0, fmt.Errorf("reset in-progress records: %w", err)
	}
	return res.RowsAffected()
}

// RetryFailed moves failed records back to pending, clearing their failure
// counts. With no paths it retries everything failed.
func (s *Store) RetryFailed(ctx context.Context, paths ...string) (int64, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	if len(paths) == 0 {
		res, err := s.db.ExecContext(
			ctx,
			`UPDATE files SET status = ?, failure_count = 0, error_message = NULL, updated_at = ? WHERE status = ?`,
			StatusPending, now, StatusFailed,
		)
		if err != nil {
			return 0, fmt.Errorf("retry failed records: %w", err)
		}
		return res.RowsAffected()
	}

	args := make([]any, 0, len(paths)+2)
	args = append(args, StatusPending, now)
	for _, path := range paths {
		args = append(args, path)
	}
	query := `UPDATE files SET status = ?, failure_count = 0, error_message = NULL, updated_at = ?
        WHERE path IN (` + makePlaceholders(len(paths)) + `) AND status = '` + string(StatusFailed) + `'`
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("retry selected records: %w", err)
	}
	return res.RowsAffected()
}

// ClearByStatus removes records in the given status.
func (s *Store) ClearByStatus(ctx context.Context, status Status) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM files WHERE status = ?`, status)
	if err != nil {
		return 0, fmt.Errorf("clear %s records: %w", status, err)
	}
	return res.RowsAffected()
}

// Clear removes all records.
func (s *Store) Clear(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM files`)
	if err != nil {
		return 0, fmt.Errorf("clear records: %w", err)
	}
	return res.RowsAffected()
}

// Stats returns a count of records grouped by status.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM files GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("tracking stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

// CheckHealth returns diagnostic information about the tracking database.
func (s *Store) CheckHealth(ctx context.Context) (DatabaseHealth, error) {
	health := DatabaseHealth{DBPath: s.path}

	info, err := os.Stat(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return health, nil
		}
		return health, fmt.Errorf("stat tracking database: %w", err)
	}
	if info.IsDir() {
		return health, fmt.Errorf("tracking database path %q is a directory", s.path)
	}
	health.DatabaseExists = true

	connCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := s.db.PingContext(connCtx); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("ping tracking database: %w", err)
	}
	health.DatabaseReadable = true

	var tableName string
	row := s.db.QueryRowContext(connCtx, "SELECT name FROM sqlite_master WHERE type = 'table' AND name = 'files'")
	if err := row.Scan(&tableName); err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			health.Error = err.Error()
			return health, fmt.Errorf("query table info: %w", err)
		}
	} else {
		health.TableExists = true
	}

	if health.TableExists {
		row = s.db.QueryRowContext(connCtx, "SELECT COUNT(*) FROM files")
		if err := row.Scan(&health.TotalRecords); err != nil {
			health.Error = err.Error()
			return health, fmt.Errorf("count records: %w", err)
		}
	}

	row = s.db.QueryRowContext(connCtx, "PRAGMA integrity_check")
	var integrityResult string
	if err := row.Scan(&integrityResult); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("integrity check: %w", err)
	}
	health.IntegrityCheck = strings.EqualFold(integrityResult, "ok")

	return health, nil
}

const recordColumns = "path, fingerprint, status, failure_count, transcript_path, error_message, created_at, updated_at"

func scanRecord(scanner interface{ Scan(dest ...any) error }) (*Record, error) {
	var (
		path           string
		fingerprint    string
		statusStr      string
		failureCount   int
		transcriptPath string
		errorMessage   sql.NullString
		createdRaw     string
		updatedRaw     string
	)

	if err := scanner.Scan(
		&path,
		&fingerprint,
		&statusStr,
		&failureCount,
		&transcriptPath,
		&errorMessage,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	record := &Record{
		Path:           path,
		Fingerprint:    fingerprint,
		Status:         Status(statusStr),
		FailureCount:   failureCount,
		TranscriptPath: transcriptPath,
		ErrorMessage:   errorMessage.String,
	}
	if created, err := time.Parse(time.RFC3339Nano, createdRaw); err == nil {
		record.CreatedAt = created
	}
	if updated, err := time.Parse(time.RFC3339Nano, updatedRaw); err == nil {
		record.UpdatedAt = updated
	}
	return record, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
