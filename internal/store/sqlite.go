package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ashureev/maturity-report/internal/domain"
	"github.com/ashureev/maturity-report/internal/shared"
	_ "modernc.org/sqlite"
)

const (
	writeAttempts  = 3
	writeBaseDelay = 50 * time.Millisecond
	defaultLimit   = 100
)

// SQLiteStore implements JobStore, KV and Sweeper using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens (creating if needed) the database at dbPath.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if dbPath == ":memory:" {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS analysis_jobs (
		id TEXT PRIMARY KEY,
		status TEXT NOT NULL,
		result_json TEXT,
		error_message TEXT,
		company_name TEXT NOT NULL,
		website TEXT NOT NULL,
		sector TEXT,
		email TEXT,
		notes TEXT,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_jobs_status_created ON analysis_jobs(status, created_at);

	CREATE TABLE IF NOT EXISTS kv (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_kv_updated ON kv(updated_at);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// CreateJob inserts a new job row.
func (s *SQLiteStore) CreateJob(ctx context.Context, job *domain.Job) error {
	query := `
	INSERT INTO analysis_jobs (
		id, status, result_json, error_message,
		company_name, website, sector, email, notes,
		created_at, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	var result any
	if len(job.Result) > 0 {
		result = string(job.Result)
	}

	return shared.RetryOnConflict(ctx, "create job", writeAttempts, writeBaseDelay, func() error {
		_, err := s.db.ExecContext(ctx, query,
			job.ID, job.Status, result, nullable(job.ErrorMessage),
			job.Company.CompanyName, job.Company.Website,
			nullable(job.Company.Sector), nullable(job.Company.Email), nullable(job.Company.Notes),
			job.CreatedAt.UnixMilli(), job.UpdatedAt.UnixMilli(),
		)
		if err != nil {
			return fmt.Errorf("insert job: %w", err)
		}
		return nil
	})
}

const jobColumns = `id, status, result_json, error_message,
	company_name, website, sector, email, notes, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*domain.Job, error) {
	var (
		job                              domain.Job
		result, errMsg, sector, email, n sql.NullString
		createdAt, updatedAt             int64
	)
	if err := row.Scan(
		&job.ID, &job.Status, &result, &errMsg,
		&job.Company.CompanyName, &job.Company.Website, &sector, &email, &n,
		&createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}
	if result.Valid {
		job.Result = json.RawMessage(result.String)
	}
	job.ErrorMessage = errMsg.String
	job.Company.Sector = sector.String
	job.Company.Email = email.String
	job.Company.Notes = n.String
	job.CreatedAt = time.UnixMilli(createdAt)
	job.UpdatedAt = time.UnixMilli(updatedAt)
	return &job, nil
}

// GetJob retrieves a job by id.
func (s *SQLiteStore) GetJob(ctx context.Context, id string) (*domain.Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM analysis_jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan job row: %w", err)
	}
	return job, nil
}

// ListJobs returns jobs matching filter, newest first.
func (s *SQLiteStore) ListJobs(ctx context.Context, filter domain.JobFilter) ([]*domain.Job, error) {
	var (
		where []string
		args  []any
	)
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, filter.Status)
	}

	query := `SELECT ` + jobColumns + ` FROM analysis_jobs`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query jobs: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close job rows", "error", closeErr)
		}
	}()

	var jobs []*domain.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job row: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate jobs: %w", err)
	}
	return jobs, nil
}

// UpdateJobResult records what the analysis engine wrote back.
func (s *SQLiteStore) UpdateJobResult(ctx context.Context, id, status string, result json.RawMessage, errMsg string) error {
	query := `
	UPDATE analysis_jobs SET
		status = ?,
		result_json = COALESCE(?, result_json),
		error_message = ?,
		updated_at = ?
	WHERE id = ?`

	var payload any
	if len(result) > 0 {
		payload = string(result)
	}

	return shared.RetryOnConflict(ctx, "update job result", writeAttempts, writeBaseDelay, func() error {
		res, err := s.db.ExecContext(ctx, query, status, payload, nullable(errMsg), time.Now().UnixMilli(), id)
		if err != nil {
			return fmt.Errorf("update job result: %w", err)
		}
		rows, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("get rows affected: %w", err)
		}
		if rows == 0 {
			return fmt.Errorf("update job %s: %w", id, ErrNotFound)
		}
		return nil
	})
}

// Get returns the value stored under key.
func (s *SQLiteStore) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get kv %s: %w", key, err)
	}
	return value, true, nil
}

// Set stores value under key.
func (s *SQLiteStore) Set(ctx context.Context, key, value string) error {
	query := `
	INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
	ON CONFLICT(key) DO UPDATE SET
		value = excluded.value,
		updated_at = excluded.updated_at`

	return shared.RetryOnConflict(ctx, "set kv", writeAttempts, writeBaseDelay, func() error {
		if _, err := s.db.ExecContext(ctx, query, key, value, time.Now().UnixMilli()); err != nil {
			return fmt.Errorf("set kv %s: %w", key, err)
		}
		return nil
	})
}

// Delete removes key.
func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	return shared.RetryOnConflict(ctx, "delete kv", writeAttempts, writeBaseDelay, func() error {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key); err != nil {
			return fmt.Errorf("delete kv %s: %w", key, err)
		}
		return nil
	})
}

// CleanupExpired removes entries under prefix not written within ttl.
func (s *SQLiteStore) CleanupExpired(ctx context.Context, prefix string, ttl time.Duration) (int64, error) {
	threshold := time.Now().Add(-ttl).UnixMilli()
	var deleted int64
	err := shared.RetryOnConflict(ctx, "cleanup kv", writeAttempts, writeBaseDelay, func() error {
		res, err := s.db.ExecContext(ctx,
			`DELETE FROM kv WHERE key LIKE ? ESCAPE '\' AND updated_at < ?`,
			likePrefix(prefix), threshold)
		if err != nil {
			return fmt.Errorf("cleanup expired kv: %w", err)
		}
		deleted, err = res.RowsAffected()
		return err
	})
	return deleted, err
}

func likePrefix(prefix string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(prefix) + "%"
}
