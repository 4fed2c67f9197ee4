package stores

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"

	"github.com/tessera-run/tessera/pkg/discovery"
	"github.com/tessera-run/tessera/pkg/policy"

	// SQLite driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrNotFound is returned when a run does not exist.
var ErrNotFound = errors.New("run not found")

// MemoryPath keeps the history in memory for the lifetime of the store.
const MemoryPath = ":memory:"

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db  *sql.DB
	cfg Config
}

// Config holds SQLite store configuration
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// NewSQLiteStore creates a new SQLite store instance
func NewSQLiteStore(cfg Config) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	// Set defaults
	if cfg.MaxOpenConns == 0 {
		cfg.MaxOpenConns = 8
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = 2
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = 5 * time.Minute
	}

	// Every connection to :memory: opens its own database.
	if cfg.Path == MemoryPath {
		cfg.MaxOpenConns = 1
		cfg.MaxIdleConns = 1
		cfg.ConnMaxLifetime = 0
	}

	return &SQLiteStore{cfg: cfg}, nil
}

// Init opens the database connection and enables WAL mode.
func (s *SQLiteStore) Init(ctx context.Context) error {
	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_txlock=immediate", s.cfg.Path)

	db, err := sql.Open("sqlite", dsn)
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

// Open creates, initializes and migrates a store at path.
func Open(ctx context.Context, path string) (*SQLiteStore, error) {
	store, err := NewSQLiteStore(Config{Path: path})
	if err != nil {
		return nil, err
	}
	if err := store.Init(ctx); err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}
	return store, nil
}

// runMetadata is stored in the runs.metadata column.
type runMetadata struct {
	EvaluatedPolicies []string `json:"evaluated_policies,omitempty"`
	Warnings          []string `json:"warnings,omitempty"`
	Allowed           *bool    `json:"allowed,omitempty"`
}

// RecordRun stores a discovery report and its lint result in one
// transaction. A report without a run ID is given a new one. lint may be nil.
func (s *SQLiteStore) RecordRun(ctx context.Context, manifest string, report *discovery.Report, lint *policy.Result) (*Run, error) {
	if report.RunID == "" {
		report.RunID = uuid.NewString()
	}

	run := &Run{
		ID:         report.RunID,
		Manifest:   manifest,
		Status:     RunStatusCompleted,
		StartedAt:  report.StartedAt.UTC(),
		Duration:   report.Duration,
		Assemblies: len(report.Assemblies),
		Tests:      len(report.Tests()),
		Failed:     len(report.Failed()),
		CreatedAt:  time.Now().UTC(),
	}
	if report.Partial() {
		run.Status = RunStatusPartial
	}

	meta := runMetadata{}
	if lint != nil {
		run.Violations = len(lint.Violations)
		meta.EvaluatedPolicies = lint.EvaluatedPolicies
		meta.Warnings = lint.Warnings
		meta.Allowed = &lint.Allowed
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("failed to encode run metadata: %w", err)
	}
	run.Metadata = string(metaJSON)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, manifest, status, started_at, duration_ms, assemblies, tests, failed, violations, error, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		run.ID,
		run.Manifest,
		run.Status,
		run.StartedAt,
		run.Duration.Milliseconds(),
		run.Assemblies,
		run.Tests,
		run.Failed,
		run.Violations,
		run.Error,
		run.Metadata,
		run.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}

	position := 0
	for i, asm := range report.Assemblies {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO assembly_settings (run_id, position, assembly, workers, scope, can_parallelize, tests, error)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`,
			run.ID,
			i,
			asm.Assembly,
			asm.Settings.Workers,
			asm.Settings.Scope.String(),
			asm.Settings.CanParallelize,
			len(asm.Tests),
			nullString(asm.Error),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to record assembly %s: %w", asm.Assembly, err)
		}

		for _, tc := range asm.Tests {
			payload, err := json.Marshal(tc)
			if err != nil {
				return nil, fmt.Errorf("failed to encode test %s: %w", tc.ID, err)
			}
			_, err = tx.ExecContext(ctx, `
				INSERT INTO test_cases (run_id, position, test_id, assembly, class, method, ignored, payload)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			`,
				run.ID,
				position,
				tc.ID,
				tc.Assembly,
				tc.Class,
				tc.Method,
				tc.Ignored,
				string(payload),
			)
			if err != nil {
				return nil, fmt.Errorf("failed to record test %s: %w", tc.ID, err)
			}
			position++
		}
	}

	if lint != nil {
		for _, v := range lint.Violations {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO violations (run_id, policy, test_id, severity, message)
				VALUES (?, ?, ?, ?, ?)
			`, run.ID, v.Policy, v.TestID, v.Severity, v.Message)
			if err != nil {
				return nil, fmt.Errorf("failed to record violation: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit run: %w", err)
	}

	return run, nil
}

const runColumns = `id, manifest, status, started_at, duration_ms, assemblies, tests, failed, violations, error, metadata, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	run := &Run{}
	var durationMs int64
	err := row.Scan(
		&run.ID,
		&run.Manifest,
		&run.Status,
		&run.StartedAt,
		&durationMs,
		&run.Assemblies,
		&run.Tests,
		&run.Failed,
		&run.Violations,
		&run.Error,
		&run.Metadata,
		&run.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	run.Duration = time.Duration(durationMs) * time.Millisecond
	return run, nil
}

// GetRun retrieves a run by ID. A unique ID prefix is accepted.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*Run, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs WHERE id = ? OR id LIKE ? ESCAPE '\' ORDER BY id = ? DESC LIMIT 2`,
		id, escapeLike(id)+"%", id)
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}

	switch {
	case len(runs) == 0:
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	case runs[0].ID == id, len(runs) == 1:
		return runs[0], nil
	default:
		return nil, fmt.Errorf("run id prefix %q is ambiguous", id)
	}
}

// ListRuns lists runs, newest first, with pagination
func (s *SQLiteStore) ListRuns(ctx context.Context, limit, offset int) ([]*Run, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs ORDER BY started_at DESC, id LIMIT ? OFFSET ?`,
		limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := []*Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}

	return runs, nil
}

// DeleteRun deletes a run and everything recorded for it.
func (s *SQLiteStore) DeleteRun(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	return nil
}

// PruneRuns deletes runs started before the cutoff and returns how many
// were removed.
func (s *SQLiteStore) PruneRuns(ctx context.Context, before time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE started_at < ?`, before.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to prune runs: %w", err)
	}
	return result.RowsAffected()
}

// ListAssemblies returns the assembly settings of a run in manifest order.
func (s *SQLiteStore) ListAssemblies(ctx context.Context, runID string) ([]*AssemblyRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, assembly, workers, scope, can_parallelize, tests, error
		FROM assembly_settings
		WHERE run_id = ?
		ORDER BY position ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list assemblies: %w", err)
	}
	defer rows.Close()

	records := []*AssemblyRecord{}
	for rows.Next() {
		rec := &AssemblyRecord{}
		err := rows.Scan(
			&rec.RunID,
			&rec.Assembly,
			&rec.Workers,
			&rec.Scope,
			&rec.CanParallelize,
			&rec.Tests,
			&rec.Error,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan assembly: %w", err)
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating assemblies: %w", err)
	}

	return records, nil
}

// ListTests returns the test cases of a run in discovery order.
func (s *SQLiteStore) ListTests(ctx context.Context, runID string) ([]discovery.TestCase, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT payload FROM test_cases WHERE run_id = ? ORDER BY position ASC`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tests: %w", err)
	}
	defer rows.Close()

	tests := []discovery.TestCase{}
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan test: %w", err)
		}
		var tc discovery.TestCase
		if err := json.Unmarshal([]byte(payload), &tc); err != nil {
			return nil, fmt.Errorf("failed to decode test: %w", err)
		}
		tests = append(tests, tc)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tests: %w", err)
	}

	return tests, nil
}

// ListViolations returns the lint violations recorded for a run.
func (s *SQLiteStore) ListViolations(ctx context.Context, runID string) ([]policy.Violation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT policy, test_id, severity, message
		FROM violations
		WHERE run_id = ?
		ORDER BY id ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list violations: %w", err)
	}
	defer rows.Close()

	violations := []policy.Violation{}
	for rows.Next() {
		var v policy.Violation
		if err := rows.Scan(&v.Policy, &v.TestID, &v.Severity, &v.Message); err != nil {
			return nil, fmt.Errorf("failed to scan violation: %w", err)
		}
		violations = append(violations, v)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating violations: %w", err)
	}

	return violations, nil
}

// DiffRuns lists tests present in to but not from (added) and the reverse
// (removed), each sorted by test ID.
func (s *SQLiteStore) DiffRuns(ctx context.Context, from, to string) (*RunDiff, error) {
	for _, id := range []string{from, to} {
		if _, err := s.GetRun(ctx, id); err != nil {
			return nil, err
		}
	}

	diff := &RunDiff{From: from, To: to}

	var err error
	diff.Added, err = s.testIDsExcept(ctx, to, from)
	if err != nil {
		return nil, err
	}
	diff.Removed, err = s.testIDsExcept(ctx, from, to)
	if err != nil {
		return nil, err
	}
	return diff, nil
}

func (s *SQLiteStore) testIDsExcept(ctx context.Context, in, notIn string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT test_id FROM test_cases WHERE run_id = ?
		EXCEPT
		SELECT test_id FROM test_cases WHERE run_id = ?
		ORDER BY test_id
	`, in, notIn)
	if err != nil {
		return nil, fmt.Errorf("failed to diff runs: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan test id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// HealthCheck verifies the database connection
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	return s.db.PingContext(ctx)
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func escapeLike(s string) string {
	return strings.NewReplacer(`%`, `\%`, `_`, `\_`).Replace(s)
}

var _ Store = (*SQLiteStore)(nil)
