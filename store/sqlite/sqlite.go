/*
Package sqlite provides a SQLite-backed implementation of recon.RunStore.

PURPOSE:
  Keeps the audit trail of reconciliation runs: who reconciled which
  files with which profile, what the summary was, and the full result so
  a run can be re-served (table view, adjusted schedule) without re-running.

APPEND-ONLY ENFORCEMENT:
  - No UPDATE statements on either table
  - No DELETE statements
  - A re-run is a new run with a new id

KEY TABLES:
  reconciliation_runs: One row per run, summary counters as columns,
                       the full result as JSON
  run_findings:        One row per finding, queryable by kind and loan

INDEXES:
  - idx_runs_created_at:     Listing newest first
  - idx_findings_run_kind:   Findings of one kind for a run
  - idx_findings_loan:       Every finding ever raised for a loan

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. SQLite allows a single writer.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) so readers do not block
  the writer.

USAGE:
  store, err := sqlite.New("./data/recon.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

MIGRATION:
  Schema is auto-migrated on New().

SEE ALSO:
  - recon/store.go: Interface definition
  - recon/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/warp/schedule-recon/recon"
)

// Store implements recon.RunStore using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Each connection to ":memory:" is a separate database.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS reconciliation_runs (
		id TEXT PRIMARY KEY,
		profile TEXT NOT NULL,
		partner_name TEXT NOT NULL,
		lms_name TEXT NOT NULL,
		system_name TEXT,
		rows_total INTEGER NOT NULL,
		matched INTEGER NOT NULL,
		mismatched INTEGER NOT NULL,
		partner_only INTEGER NOT NULL,
		lms_only INTEGER NOT NULL,
		frozen INTEGER NOT NULL,
		changed INTEGER NOT NULL,
		summary_json TEXT NOT NULL,
		result_json TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_created_at
		ON reconciliation_runs(created_at);

	CREATE TABLE IF NOT EXISTS run_findings (
		run_id TEXT NOT NULL REFERENCES reconciliation_runs(id),
		seq INTEGER NOT NULL,
		kind TEXT NOT NULL,
		loan_id TEXT,
		message TEXT NOT NULL,
		PRIMARY KEY (run_id, seq)
	);

	CREATE INDEX IF NOT EXISTS idx_findings_run_kind
		ON run_findings(run_id, kind);
	CREATE INDEX IF NOT EXISTS idx_findings_loan
		ON run_findings(loan_id) WHERE loan_id IS NOT NULL;
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// RUN STORE (recon.RunStore interface)
// =============================================================================

// SaveRun stores the run and its findings atomically.
func (s *Store) SaveRun(ctx context.Context, run recon.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	summary := run.Summarize().Summary
	summaryJSON, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("failed to encode summary: %w", err)
	}
	resultJSON, err := json.Marshal(run.Result)
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	query := `
		INSERT INTO reconciliation_runs
		(id, profile, partner_name, lms_name, system_name,
		 rows_total, matched, mismatched, partner_only, lms_only, frozen, changed,
		 summary_json, result_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = sqlTx.ExecContext(ctx, query,
		run.ID,
		run.Profile,
		run.PartnerName,
		run.LMSName,
		nullString(run.SystemName),
		summary.Rows,
		summary.Matched,
		summary.Mismatched,
		summary.PartnerOnly,
		summary.LMSOnly,
		summary.Frozen,
		summary.Changed,
		string(summaryJSON),
		string(resultJSON),
		run.CreatedAt.UTC().Format(timestampLayout),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("%w: %s", recon.ErrRunExists, run.ID)
		}
		return fmt.Errorf("failed to save run: %w", err)
	}

	for _, f := range run.FindingRecords() {
		_, err := sqlTx.ExecContext(ctx, `
			INSERT INTO run_findings (run_id, seq, kind, loan_id, message)
			VALUES (?, ?, ?, ?, ?)
		`, f.RunID, f.Seq, string(f.Kind), nullString(string(f.LoanID)), f.Message)
		if err != nil {
			return fmt.Errorf("failed to save finding: %w", err)
		}
	}

	return sqlTx.Commit()
}

// GetRun loads a run with its full result.
func (s *Store) GetRun(ctx context.Context, id string) (*recon.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, profile, partner_name, lms_name, system_name, result_json, created_at
		FROM reconciliation_runs
		WHERE id = ?
	`

	var (
		run        recon.Run
		systemName sql.NullString
		resultJSON string
		createdAt  string
	)
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&run.ID, &run.Profile, &run.PartnerName, &run.LMSName, &systemName, &resultJSON, &createdAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, recon.ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load run: %w", err)
	}

	run.SystemName = systemName.String
	if run.CreatedAt, err = parseTimestamp(createdAt); err != nil {
		return nil, fmt.Errorf("run %s: %w", id, err)
	}
	if err := json.Unmarshal([]byte(resultJSON), &run.Result); err != nil {
		return nil, fmt.Errorf("failed to decode result of run %s: %w", id, err)
	}
	return &run, nil
}

// ListRuns returns run summaries, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]recon.RunSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, profile, partner_name, lms_name, system_name, summary_json, created_at
		FROM reconciliation_runs
		ORDER BY created_at DESC, id DESC
	`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := []recon.RunSummary{}
	for rows.Next() {
		var (
			r           recon.RunSummary
			systemName  sql.NullString
			summaryJSON string
			createdAt   string
		)
		if err := rows.Scan(&r.ID, &r.Profile, &r.PartnerName, &r.LMSName, &systemName, &summaryJSON, &createdAt); err != nil {
			return nil, err
		}
		r.SystemName = systemName.String
		var err error
		if r.CreatedAt, err = parseTimestamp(createdAt); err != nil {
			return nil, fmt.Errorf("run %s: %w", r.ID, err)
		}
		if err := json.Unmarshal([]byte(summaryJSON), &r.Summary); err != nil {
			return nil, fmt.Errorf("failed to decode summary of run %s: %w", r.ID, err)
		}
		runs = append(runs, r)
	}

	return runs, rows.Err()
}

// ListFindings returns the findings of a run, optionally of one kind.
func (s *Store) ListFindings(ctx context.Context, runID string, kind recon.FindingKind) ([]recon.FindingRecord, error) {
	if ok, err := s.runExists(ctx, runID); err != nil {
		return nil, err
	} else if !ok {
		return nil, recon.ErrRunNotFound
	}

	query := `SELECT run_id, seq, kind, loan_id, message FROM run_findings WHERE run_id = ?`
	args := []any{runID}
	if kind != "" {
		query += ` AND kind = ?`
		args = append(args, string(kind))
	}
	query += ` ORDER BY seq`
	return s.queryFindings(ctx, query, args...)
}

// FindingsByLoan returns every finding recorded for a loan across runs,
// newest run first.
func (s *Store) FindingsByLoan(ctx context.Context, loan recon.LoanID) ([]recon.FindingRecord, error) {
	query := `
		SELECT f.run_id, f.seq, f.kind, f.loan_id, f.message
		FROM run_findings f
		JOIN reconciliation_runs r ON r.id = f.run_id
		WHERE f.loan_id = ?
		ORDER BY r.created_at DESC, r.id DESC, f.seq
	`
	return s.queryFindings(ctx, query, string(loan))
}

// timestampLayout is fixed width so created_at sorts as text in time order.
const timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

func parseTimestamp(v string) (time.Time, error) {
	t, err := time.Parse(timestampLayout, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid created_at %q: %w", v, err)
	}
	return t, nil
}

func (s *Store) runExists(ctx context.Context, id string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM reconciliation_runs WHERE id = ?`, id).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *Store) queryFindings(ctx context.Context, query string, args ...any) ([]recon.FindingRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []recon.FindingRecord{}
	for rows.Next() {
		var (
			f      recon.FindingRecord
			kind   string
			loanID sql.NullString
		)
		if err := rows.Scan(&f.RunID, &f.Seq, &kind, &loanID, &f.Message); err != nil {
			return nil, err
		}
		f.Kind = recon.FindingKind(kind)
		f.LoanID = recon.LoanID(loanID.String)
		out = append(out, f)
	}
	return out, rows.Err()
}

var _ recon.RunStore = (*Store)(nil)

// Helper functions

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func isUniqueConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey ||
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
}
