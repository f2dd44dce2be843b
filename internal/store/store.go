// Package store persists executions and configuration runs in a SQLite file
// so reports can be rebuilt without touching the database again.
package store

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/mickamy/cardest/internal/analyzer"
	"github.com/mickamy/cardest/internal/errs"
	"github.com/mickamy/cardest/internal/model"
	"github.com/mickamy/cardest/internal/parser"
)

// Run kinds.
const (
	KindExplain = "explain"
	KindTiming  = "timing"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	kind       TEXT NOT NULL,
	label      TEXT NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS executions (
	run_id   TEXT NOT NULL REFERENCES runs(id),
	position INTEGER NOT NULL,
	query_id TEXT NOT NULL,
	sql      TEXT NOT NULL,
	raw      BLOB NOT NULL,
	PRIMARY KEY (run_id, position)
);
CREATE TABLE IF NOT EXISTS timings (
	run_id   TEXT NOT NULL REFERENCES runs(id),
	position INTEGER NOT NULL,
	query_id TEXT NOT NULL,
	seconds  REAL NOT NULL,
	PRIMARY KEY (run_id, position)
);`

// Store is a results database.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// RunInfo describes a stored run.
type RunInfo struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	Label     string    `json:"label"`
	CreatedAt time.Time `json:"created_at"`
	Entries   int       `json:"entries"`
}

// Open opens or creates the database at path.
func Open(ctx context.Context, path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrap(err, "store: create directory")
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "store: open")
	}
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "store: init schema")
	}
	return &Store{db: db, now: time.Now}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) insertRun(ctx context.Context, tx *sql.Tx, kind, label string) (string, error) {
	id := uuid.New().String()
	_, err := tx.ExecContext(ctx,
		"INSERT INTO runs (id, kind, label, created_at) VALUES (?, ?, ?, ?)",
		id, kind, label, s.now().UTC().UnixNano())
	if err != nil {
		return "", errors.Wrap(err, "store: insert run")
	}
	return id, nil
}

// SaveExecutions stores the SQL and raw plan of every execution and returns the run id.
func (s *Store) SaveExecutions(ctx context.Context, label string, executions []*model.QueryExecution) (string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", errors.Wrap(err, "store: begin")
	}
	defer func() { _ = tx.Rollback() }()

	id, err := s.insertRun(ctx, tx, KindExplain, label)
	if err != nil {
		return "", err
	}

	stmt, err := tx.PrepareContext(ctx, "INSERT INTO executions (run_id, position, query_id, sql, raw) VALUES (?, ?, ?, ?, ?)")
	if err != nil {
		return "", errors.Wrap(err, "store: prepare")
	}
	defer func() { _ = stmt.Close() }()

	for i, exec := range executions {
		if len(exec.Raw) == 0 {
			return "", errors.Newf("store: execution %s has no raw plan", exec.QueryID)
		}
		if _, err := stmt.ExecContext(ctx, id, i, exec.QueryID, exec.SQL, exec.Raw); err != nil {
			return "", errors.Wrapf(err, "store: insert execution %s", exec.QueryID)
		}
	}
	if err := tx.Commit(); err != nil {
		return "", errors.Wrap(err, "store: commit")
	}
	return id, nil
}

// LoadExecutions re-parses the plans of a stored run. An empty runID selects
// the most recent explain run.
func (s *Store) LoadExecutions(ctx context.Context, runID string, opts analyzer.Options) ([]*model.QueryExecution, error) {
	runID, err := s.resolve(ctx, runID, KindExplain)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT query_id, sql, raw FROM executions WHERE run_id = ? ORDER BY position", runID)
	if err != nil {
		return nil, errors.Wrap(err, "store: query executions")
	}
	defer func() { _ = rows.Close() }()

	var out []*model.QueryExecution
	for rows.Next() {
		var queryID, sqlText string
		var raw []byte
		if err := rows.Scan(&queryID, &sqlText, &raw); err != nil {
			return nil, errors.Wrap(err, "store: scan execution")
		}
		plan, err := parser.ParseBytes(raw)
		if err != nil {
			return nil, errors.Wrapf(err, "store: query %s", queryID)
		}
		exec, err := analyzer.Analyze(queryID, plan, opts)
		if err != nil {
			return nil, errors.Wrapf(err, "store: query %s", queryID)
		}
		exec.SQL = sqlText
		exec.Raw = raw
		out = append(out, exec)
	}
	return out, errors.Wrap(rows.Err(), "store: read executions")
}

// SaveRun stores a configuration run and returns its id.
func (s *Store) SaveRun(ctx context.Context, run *model.ConfigurationRun) (string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", errors.Wrap(err, "store: begin")
	}
	defer func() { _ = tx.Rollback() }()

	id, err := s.insertRun(ctx, tx, KindTiming, run.Config)
	if err != nil {
		return "", err
	}
	for i, queryID := range run.IDs() {
		seconds, _ := run.Get(queryID)
		_, err := tx.ExecContext(ctx,
			"INSERT INTO timings (run_id, position, query_id, seconds) VALUES (?, ?, ?, ?)",
			id, i, queryID, seconds)
		if err != nil {
			return "", errors.Wrapf(err, "store: insert timing %s", queryID)
		}
	}
	if err := tx.Commit(); err != nil {
		return "", errors.Wrap(err, "store: commit")
	}
	return id, nil
}

// LoadRun reads a configuration run back in its original order.
func (s *Store) LoadRun(ctx context.Context, runID string) (*model.ConfigurationRun, error) {
	runID, err := s.resolve(ctx, runID, KindTiming)
	if err != nil {
		return nil, err
	}
	var label string
	if err := s.db.QueryRowContext(ctx, "SELECT label FROM runs WHERE id = ?", runID).Scan(&label); err != nil {
		return nil, errors.Wrap(err, "store: read run")
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT query_id, seconds FROM timings WHERE run_id = ? ORDER BY position", runID)
	if err != nil {
		return nil, errors.Wrap(err, "store: query timings")
	}
	defer func() { _ = rows.Close() }()

	run := model.NewConfigurationRun(label)
	for rows.Next() {
		var queryID string
		var seconds float64
		if err := rows.Scan(&queryID, &seconds); err != nil {
			return nil, errors.Wrap(err, "store: scan timing")
		}
		run.Set(queryID, seconds)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "store: read timings")
	}
	return run, nil
}

// ListRuns returns every stored run, newest first.
func (s *Store) ListRuns(ctx context.Context) ([]RunInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, r.kind, r.label, r.created_at,
		       (SELECT COUNT(*) FROM executions e WHERE e.run_id = r.id) +
		       (SELECT COUNT(*) FROM timings t WHERE t.run_id = r.id)
		FROM runs r
		ORDER BY r.created_at DESC, r.rowid DESC`)
	if err != nil {
		return nil, errors.Wrap(err, "store: list runs")
	}
	defer func() { _ = rows.Close() }()

	var out []RunInfo
	for rows.Next() {
		var info RunInfo
		var created int64
		if err := rows.Scan(&info.ID, &info.Kind, &info.Label, &created, &info.Entries); err != nil {
			return nil, errors.Wrap(err, "store: scan run")
		}
		info.CreatedAt = time.Unix(0, created).UTC()
		out = append(out, info)
	}
	return out, errors.Wrap(rows.Err(), "store: read runs")
}

// resolve checks that runID exists with the given kind, or picks the latest run of that kind.
func (s *Store) resolve(ctx context.Context, runID, kind string) (string, error) {
	var row *sql.Row
	if runID == "" {
		row = s.db.QueryRowContext(ctx,
			"SELECT id FROM runs WHERE kind = ? ORDER BY created_at DESC, rowid DESC LIMIT 1", kind)
	} else {
		row = s.db.QueryRowContext(ctx, "SELECT id FROM runs WHERE id = ? AND kind = ?", runID, kind)
	}
	var id string
	if err := row.Scan(&id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			if runID == "" {
				return "", errors.Wrapf(errs.ErrNotFound, "no %s run", kind)
			}
			return "", errors.Wrapf(errs.ErrNotFound, "%s run %s", kind, runID)
		}
		return "", errors.Wrap(err, "store: resolve run")
	}
	return id, nil
}
