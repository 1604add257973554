// Package store persists calibration results in SQLite so repeated
// calibrations with identical request parameters reuse the stored answer
// instead of re-running the search.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Request identifies a calibration by everything that determines its result.
type Request struct {
	Relation     string
	TargetEps    float64
	Delta        float64
	Q            float64
	Steps        int
	Tol          float64
	ForceSmaller bool
}

// Record is a stored calibration result.
type Record struct {
	Request
	Sigma     float64
	Epsilon   float64
	Evals     int
	CreatedAt time.Time
}

// ErrNotFound reports a cache miss on Lookup.
var ErrNotFound = errors.New("no stored calibration for these parameters")

// timeLayout is fixed-width (no trimming of fractional zeros) so that the
// lexicographic ORDER BY on created_at matches chronological order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store manages the calibration history database.
type Store struct {
	db *sql.DB
}

// Open opens or creates the calibration database at path, creating parent
// directories and the schema as needed.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{db: db}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS calibrations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			relation TEXT NOT NULL,
			target_eps REAL NOT NULL,
			delta REAL NOT NULL,
			q REAL NOT NULL,
			steps INTEGER NOT NULL,
			tol REAL NOT NULL,
			force_smaller INTEGER NOT NULL,
			sigma REAL NOT NULL,
			epsilon REAL NOT NULL,
			evals INTEGER NOT NULL,
			created_at TEXT NOT NULL,
			UNIQUE (relation, target_eps, delta, q, steps, tol, force_smaller)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_calibrations_created_at
			ON calibrations(created_at)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// Lookup returns the stored record for req, or ErrNotFound on a miss.
func (s *Store) Lookup(ctx context.Context, req Request) (Record, error) {
	rec := Record{Request: req}
	var createdAt string
	err := s.db.QueryRowContext(ctx,
		`SELECT sigma, epsilon, evals, created_at FROM calibrations
		 WHERE relation = ? AND target_eps = ? AND delta = ? AND q = ?
		   AND steps = ? AND tol = ? AND force_smaller = ?`,
		req.Relation, req.TargetEps, req.Delta, req.Q,
		req.Steps, req.Tol, boolInt(req.ForceSmaller),
	).Scan(&rec.Sigma, &rec.Epsilon, &rec.Evals, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("querying calibration: %w", err)
	}

	rec.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return Record{}, fmt.Errorf("parsing stored timestamp: %w", err)
	}
	return rec, nil
}

// Save inserts or replaces the record for its request parameters.
func (s *Store) Save(ctx context.Context, rec Record) error {
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO calibrations
			(relation, target_eps, delta, q, steps, tol, force_smaller,
			 sigma, epsilon, evals, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(relation, target_eps, delta, q, steps, tol, force_smaller)
		 DO UPDATE SET
			sigma=excluded.sigma, epsilon=excluded.epsilon,
			evals=excluded.evals, created_at=excluded.created_at`,
		rec.Relation, rec.TargetEps, rec.Delta, rec.Q,
		rec.Steps, rec.Tol, boolInt(rec.ForceSmaller),
		rec.Sigma, rec.Epsilon, rec.Evals,
		createdAt.Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("saving calibration: %w", err)
	}
	return nil
}

// List returns up to limit records, most recent first.
func (s *Store) List(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT relation, target_eps, delta, q, steps, tol, force_smaller,
			sigma, epsilon, evals, created_at
		 FROM calibrations ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing calibrations: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		var forceSmaller int
		var createdAt string
		if err := rows.Scan(
			&rec.Relation, &rec.TargetEps, &rec.Delta, &rec.Q,
			&rec.Steps, &rec.Tol, &forceSmaller,
			&rec.Sigma, &rec.Epsilon, &rec.Evals, &createdAt,
		); err != nil {
			return nil, fmt.Errorf("scanning calibration row: %w", err)
		}
		rec.ForceSmaller = forceSmaller != 0
		rec.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing stored timestamp: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating calibrations: %w", err)
	}
	return out, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
