package stores

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	// SQLite driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore persists update-check state and pass history in SQLite.
type SQLiteStore struct {
	db  *sql.DB
	cfg Config
	now func() time.Time
}

// Config holds SQLite store configuration
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	// BusyTimeout bounds how long a writer waits for another process's lock.
	BusyTimeout time.Duration
}

// NewSQLiteStore creates a new SQLite store instance
func NewSQLiteStore(cfg Config) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	// Set defaults
	if cfg.MaxOpenConns == 0 {
		cfg.MaxOpenConns = 4
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = 2
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = 5 * time.Minute
	}
	if cfg.BusyTimeout == 0 {
		cfg.BusyTimeout = 5 * time.Second
	}
	// Every connection to :memory: is a separate database.
	if cfg.Path == ":memory:" {
		cfg.MaxOpenConns = 1
		cfg.MaxIdleConns = 1
		cfg.ConnMaxLifetime = 0
	}

	return &SQLiteStore{cfg: cfg, now: time.Now}, nil
}

func (s *SQLiteStore) dsn() string {
	q := url.Values{}
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", s.cfg.BusyTimeout.Milliseconds()))
	q.Add("_pragma", "synchronous(NORMAL)")
	if s.cfg.Path != ":memory:" {
		q.Add("_pragma", "journal_mode(WAL)")
	}
	q.Set("_txlock", "immediate")
	return "file:" + s.cfg.Path + "?" + q.Encode()
}

// Init opens the database connection and enables WAL mode.
func (s *SQLiteStore) Init(ctx context.Context) error {
	db, err := sql.Open("sqlite", s.dsn())
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(s.cfg.MaxOpenConns)
	db.SetMaxIdleConns(s.cfg.MaxIdleConns)
	db.SetConnMaxLifetime(s.cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate runs database migrations.
func (s *SQLiteStore) Migrate(_ context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	driver, err := sqlite3.WithInstance(s.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// Open creates, initializes and migrates a store in one call.
func Open(ctx context.Context, cfg Config) (*SQLiteStore, error) {
	s, err := NewSQLiteStore(cfg)
	if err != nil {
		return nil, err
	}
	if err := s.Init(ctx); err != nil {
		return nil, err
	}
	if err := s.Migrate(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

func toMillis(t time.Time) int64 { return t.UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

// ClaimCheck atomically decides whether the update check for key is due. When the last
// check is older than interval, or there is none, the timestamp is moved to now and
// ClaimCheck returns true; concurrent callers for the same key see false.
func (s *SQLiteStore) ClaimCheck(ctx context.Context, key string, interval time.Duration) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := s.now()
	var last int64
	err = tx.QueryRowContext(ctx, `SELECT last_checked_at FROM update_checks WHERE key = ?`, key).Scan(&last)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return false, fmt.Errorf("failed to read check %s: %w", key, err)
	default:
		if now.Sub(fromMillis(last)) < interval {
			return false, nil
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO update_checks (key, last_checked_at, status, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			last_checked_at = excluded.last_checked_at,
			status = excluded.status,
			updated_at = excluded.updated_at
	`, key, toMillis(now), CheckStatusPending, toMillis(now))
	if err != nil {
		return false, fmt.Errorf("failed to claim check %s: %w", key, err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit claim: %w", err)
	}
	return true, nil
}

// RecordCheckResult stores the outcome of a check previously claimed for key.
func (s *SQLiteStore) RecordCheckResult(ctx context.Context, key string, status CheckStatus, latest string) error {
	now := toMillis(s.now())
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO update_checks (key, last_checked_at, status, latest, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			status = excluded.status,
			latest = excluded.latest,
			updated_at = excluded.updated_at
	`, key, now, status, latest, now)
	if err != nil {
		return fmt.Errorf("failed to record check %s: %w", key, err)
	}
	return nil
}

// GetCheck returns the stored state for key.
func (s *SQLiteStore) GetCheck(ctx context.Context, key string) (*CheckRecord, error) {
	var (
		rec              CheckRecord
		checked, updated int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT key, last_checked_at, status, latest, updated_at
		FROM update_checks
		WHERE key = ?
	`, key).Scan(&rec.Key, &checked, &rec.Status, &rec.Latest, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("check %s: %w", key, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get check: %w", err)
	}
	rec.LastCheckedAt = fromMillis(checked)
	rec.UpdatedAt = fromMillis(updated)
	return &rec, nil
}

// ListChecks returns every stored check ordered by key.
func (s *SQLiteStore) ListChecks(ctx context.Context) ([]*CheckRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT key, last_checked_at, status, latest, updated_at
		FROM update_checks
		ORDER BY key
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list checks: %w", err)
	}
	defer rows.Close()

	records := []*CheckRecord{}
	for rows.Next() {
		var (
			rec              CheckRecord
			checked, updated int64
		)
		if err := rows.Scan(&rec.Key, &checked, &rec.Status, &rec.Latest, &updated); err != nil {
			return nil, fmt.Errorf("failed to scan check: %w", err)
		}
		rec.LastCheckedAt = fromMillis(checked)
		rec.UpdatedAt = fromMillis(updated)
		records = append(records, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating checks: %w", err)
	}
	return records, nil
}

// CreatePass records the start of a generation pass.
func (s *SQLiteStore) CreatePass(ctx context.Context, pass *Pass) error {
	if pass.StartedAt.IsZero() {
		pass.StartedAt = s.now()
	}
	if pass.Status == "" {
		pass.Status = PassStatusRunning
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO passes (id, project, project_dir, status, started_at)
		VALUES (?, ?, ?, ?, ?)
	`, pass.ID, pass.Project, pass.ProjectDir, pass.Status, toMillis(pass.StartedAt))
	if err != nil {
		return fmt.Errorf("failed to create pass: %w", err)
	}
	return nil
}

// CompletePass marks a pass finished. kind and msg are empty on success.
func (s *SQLiteStore) CompletePass(ctx context.Context, id string, status PassStatus, kind, msg string) error {
	var errKind, errMsg *string
	if kind != "" {
		errKind = &kind
	}
	if msg != "" {
		errMsg = &msg
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE passes
		SET status = ?, completed_at = ?, error_kind = ?, error = ?
		WHERE id = ?
	`, status, toMillis(s.now()), errKind, errMsg, id)
	if err != nil {
		return fmt.Errorf("failed to complete pass: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("pass %s: %w", id, ErrNotFound)
	}
	return nil
}

// ListPasses returns the most recent passes first.
func (s *SQLiteStore) ListPasses(ctx context.Context, limit int) ([]*Pass, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, project, project_dir, status, started_at, completed_at, error_kind, error
		FROM passes
		ORDER BY started_at DESC, rowid DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list passes: %w", err)
	}
	defer rows.Close()

	passes := []*Pass{}
	for rows.Next() {
		var (
			p         Pass
			started   int64
			completed sql.NullInt64
		)
		if err := rows.Scan(&p.ID, &p.Project, &p.ProjectDir, &p.Status, &started, &completed, &p.ErrorKind, &p.Error); err != nil {
			return nil, fmt.Errorf("failed to scan pass: %w", err)
		}
		p.StartedAt = fromMillis(started)
		if completed.Valid {
			t := fromMillis(completed.Int64)
			p.CompletedAt = &t
		}
		passes = append(passes, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating passes: %w", err)
	}
	return passes, nil
}

// PrunePasses keeps the newest keep passes and deletes the rest.
func (s *SQLiteStore) PrunePasses(ctx context.Context, keep int) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM passes
		WHERE id NOT IN (
			SELECT id FROM passes ORDER BY started_at DESC, rowid DESC LIMIT ?
		)
	`, keep)
	if err != nil {
		return 0, fmt.Errorf("failed to prune passes: %w", err)
	}
	return result.RowsAffected()
}

// HealthCheck verifies the database connection is healthy
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	return s.db.PingContext(ctx)
}
