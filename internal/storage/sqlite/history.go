// Package sqlite records processing history for the ops API. The store is
// an audit log only: the pipeline never reads it back for ordering or
// recovery decisions.
package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/seqscribe/seqscribe/pkg/logger"
)

// HistoryStorage handles storage of job and archive records
type HistoryStorage struct {
	db     *sql.DB
	logger *logger.Logger
}

// Open opens (or creates) the history database at the given path
func Open(path string, log *logger.Logger) (*HistoryStorage, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}

	storage := &HistoryStorage{
		db:     db,
		logger: log.Named("sqlite-history"),
	}
	if err := storage.initDB(); err != nil {
		db.Close()
		return nil, err
	}
	return storage, nil
}

// Close closes the underlying database
func (s *HistoryStorage) Close() error {
	return s.db.Close()
}

// initDB initializes the database tables
func (s *HistoryStorage) initDB() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS jobs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			seq INTEGER NOT NULL,
			file_name TEXT NOT NULL,
			status TEXT NOT NULL,
			text_len INTEGER NOT NULL DEFAULT 0,
			audio_ms INTEGER NOT NULL DEFAULT 0,
			duration_ms INTEGER NOT NULL DEFAULT 0,
			error TEXT,
			created_at TIMESTAMP NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create jobs table: %w", err)
	}

	_, err = s.db.Exec(`
		CREATE TABLE IF NOT EXISTS archives (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			start_seq INTEGER NOT NULL,
			end_seq INTEGER NOT NULL,
			path TEXT NOT NULL,
			fragments INTEGER NOT NULL,
			bytes INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create archives table: %w", err)
	}

	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_jobs_seq ON jobs(seq)`,
		`CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status)`,
		`CREATE INDEX IF NOT EXISTS idx_archives_start_seq ON archives(start_seq)`,
	}
	for _, indexSQL := range indexes {
		if _, err := s.db.Exec(indexSQL); err != nil {
			return fmt.Errorf("failed to create history index: %w", err)
		}
	}

	return nil
}

// StoreJob stores a job outcome record
func (s *HistoryStorage) StoreJob(record *JobRecord) (int64, error) {
	result, err := s.db.Exec(
		`INSERT INTO jobs
		(seq, file_name, status, text_len, audio_ms, duration_ms, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		record.Seq,
		record.FileName,
		record.Status,
		record.TextLen,
		record.AudioMs,
		record.DurationMs,
		record.Error,
		record.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert job record: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID: %w", err)
	}
	return id, nil
}

// StoreArchive stores an archived-transcript record
func (s *HistoryStorage) StoreArchive(record *ArchiveRecord) (int64, error) {
	result, err := s.db.Exec(
		`INSERT INTO archives
		(start_seq, end_seq, path, fragments, bytes, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		record.StartSeq,
		record.EndSeq,
		record.Path,
		record.Fragments,
		record.Bytes,
		record.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert archive record: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID: %w", err)
	}
	return id, nil
}

// GetRecentJobs returns the most recent job records
func (s *HistoryStorage) GetRecentJobs(limit int) ([]*JobRecord, error) {
	rows, err := s.db.Query(
		`SELECT id, seq, file_name, status, text_len, audio_ms, duration_ms, error, created_at
		FROM jobs
		ORDER BY id DESC
		LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent jobs: %w", err)
	}
	defer rows.Close()

	return s.scanJobRows(rows)
}

// GetJobsByStatus returns job records with the given status
func (s *HistoryStorage) GetJobsByStatus(status string, limit int) ([]*JobRecord, error) {
	rows, err := s.db.Query(
		`SELECT id, seq, file_name, status, text_len, audio_ms, duration_ms, error, created_at
		FROM jobs
		WHERE status = ?
		ORDER BY id DESC
		LIMIT ?`,
		status, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query jobs by status: %w", err)
	}
	defer rows.Close()

	return s.scanJobRows(rows)
}

// CountJobsByStatus returns the number of job records with the given status
func (s *HistoryStorage) CountJobsByStatus(status string) (int64, error) {
	var count int64
	err := s.db.QueryRow(`SELECT COUNT(*) FROM jobs WHERE status = ?`, status).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count jobs: %w", err)
	}
	return count, nil
}

// GetArchives returns the most recent archive records
func (s *HistoryStorage) GetArchives(limit int) ([]*ArchiveRecord, error) {
	rows, err := s.db.Query(
		`SELECT id, start_seq, end_seq, path, fragments, bytes, created_at
		FROM archives
		ORDER BY start_seq DESC
		LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query archives: %w", err)
	}
	defer rows.Close()

	var records []*ArchiveRecord
	for rows.Next() {
		var record ArchiveRecord
		var createdAt string
		if err := rows.Scan(
			&record.ID,
			&record.StartSeq,
			&record.EndSeq,
			&record.Path,
			&record.Fragments,
			&record.Bytes,
			&createdAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan archive record: %w", err)
		}
		record.CreatedAt, err = time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to parse created_at: %w", err)
		}
		records = append(records, &record)
	}
	return records, nil
}

// scanJobRows scans database rows into JobRecord structs
func (s *HistoryStorage) scanJobRows(rows *sql.Rows) ([]*JobRecord, error) {
	var records []*JobRecord
	for rows.Next() {
		var record JobRecord
		var createdAt string
		var errMsg sql.NullString

		if err := rows.Scan(
			&record.ID,
			&record.Seq,
			&record.FileName,
			&record.Status,
			&record.TextLen,
			&record.AudioMs,
			&record.DurationMs,
			&errMsg,
			&createdAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan job record: %w", err)
		}

		var err error
		record.CreatedAt, err = time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to parse created_at: %w", err)
		}
		if errMsg.Valid {
			record.Error = errMsg.String
		}
		records = append(records, &record)
	}
	return records, nil
}
