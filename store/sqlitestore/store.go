// Package sqlitestore keeps measurement tables from many sweep runs in one
// SQLite database, keyed by run id.
package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	nanoid "github.com/matoous/go-nanoid/v2"
	"gopkg.in/yaml.v3"
	_ "modernc.org/sqlite"

	"github.com/alexshd/nadir"
	"github.com/alexshd/nadir/tablefmt"
)

// ErrRunNotFound indicates no run with the requested id is stored.
var ErrRunNotFound = errors.New("run not found")

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS runs (
		run_id     TEXT PRIMARY KEY,
		created_at INTEGER NOT NULL,
		schema     TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS measurements (
		run_id  TEXT NOT NULL REFERENCES runs(run_id) ON DELETE CASCADE,
		seq     INTEGER NOT NULL,
		option  TEXT NOT NULL,
		params  TEXT NOT NULL,
		seconds REAL NOT NULL,
		PRIMARY KEY (run_id, seq)
	)`,
}

// Run describes one stored sweep.
type Run struct {
	ID        string
	CreatedAt time.Time
	Rows      int
}

// Store is a SQLite-backed collection of tables.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens or creates the database at path.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	// A single connection keeps :memory: databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	for _, stmt := range migrations {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrate %s: %w", path, err)
		}
	}
	return &Store{db: db, now: time.Now}, nil
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save stores t under its run id, assigning one if the table has none.
// It returns the run id.
func (s *Store) Save(ctx context.Context, t *nadir.Table) (string, error) {
	runID := t.RunID
	if runID == "" {
		id, err := nanoid.New()
		if err != nil {
			return "", fmt.Errorf("run id: %w", err)
		}
		runID = id
	}

	schema := t.Schema()
	schemaText, err := tablefmt.MarshalSchema(schema)
	if err != nil {
		return "", fmt.Errorf("encode schema: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO runs (run_id, created_at, schema) VALUES (?, ?, ?)`,
		runID, s.now().UnixNano(), string(schemaText)); err != nil {
		return "", fmt.Errorf("save run %s: %w", runID, err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO measurements (run_id, seq, option, params, seconds) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return "", err
	}
	defer stmt.Close()

	for seq, m := range t.Rows() {
		values := make([]string, len(schema))
		for i, spec := range schema {
			values[i] = spec.Format(m.Params[i])
		}
		params, err := yaml.Marshal(values)
		if err != nil {
			return "", fmt.Errorf("encode params: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, runID, seq, m.Option, string(params), m.Seconds); err != nil {
			return "", fmt.Errorf("save run %s row %d: %w", runID, seq, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("save run %s: %w", runID, err)
	}
	return runID, nil
}

// Load reads one run back as a sealed table.
func (s *Store) Load(ctx context.Context, runID string) (*nadir.Table, error) {
	var schemaText string
	err := s.db.QueryRowContext(ctx, `SELECT schema FROM runs WHERE run_id = ?`, runID).Scan(&schemaText)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("load run %s: %w", runID, err)
	}
	schema, err := tablefmt.UnmarshalSchema([]byte(schemaText))
	if err != nil {
		return nil, fmt.Errorf("load run %s: %w", runID, err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT option, params, seconds FROM measurements WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("load run %s: %w", runID, err)
	}
	defer rows.Close()

	t := nadir.NewTable(schema...)
	t.RunID = runID
	for rows.Next() {
		var (
			option, paramsText string
			seconds            float64
			values             []string
		)
		if err := rows.Scan(&option, &paramsText, &seconds); err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal([]byte(paramsText), &values); err != nil {
			return nil, fmt.Errorf("load run %s: decode params: %w", runID, err)
		}
		if len(values) != len(schema) {
			return nil, fmt.Errorf("load run %s: row has %d params, want %d", runID, len(values), len(schema))
		}
		params := make(nadir.Params, len(schema))
		for i, spec := range schema {
			if params[i], err = spec.Parse(values[i]); err != nil {
				return nil, fmt.Errorf("load run %s: %w", runID, err)
			}
		}
		if err := t.Add(option, params, seconds); err != nil {
			return nil, fmt.Errorf("load run %s: %w", runID, err)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	t.Seal()
	return t, nil
}

// Runs lists stored runs, newest first.
func (s *Store) Runs(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.run_id, r.created_at, COUNT(m.seq)
		FROM runs r LEFT JOIN measurements m ON m.run_id = r.run_id
		GROUP BY r.run_id, r.created_at
		ORDER BY r.created_at DESC, r.rowid DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var (
			r       Run
			created int64
		)
		if err := rows.Scan(&r.ID, &created, &r.Rows); err != nil {
			return nil, err
		}
		r.CreatedAt = time.Unix(0, created)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Latest loads the most recently saved run.
func (s *Store) Latest(ctx context.Context) (*nadir.Table, error) {
	runs, err := s.Runs(ctx)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, ErrRunNotFound
	}
	return s.Load(ctx, runs[0].ID)
}
