// internal/store/sqlite.go
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/xkilldash9x/quickeval/internal/evaluation"
	"go.uber.org/zap"

	_ "modernc.org/sqlite"
)

// Timestamps are stored as fixed-width UTC text so they sort and compare
// as strings.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z"

const sqliteSchema = `
	CREATE TABLE IF NOT EXISTS evaluation_attempts (
		run_id           TEXT NOT NULL,
		task_id          TEXT NOT NULL,
		task_name        TEXT NOT NULL,
		questionnaire_id TEXT NOT NULL DEFAULT '',
		task_index       INTEGER NOT NULL,
		state            TEXT NOT NULL,
		outcome          TEXT NOT NULL,
		error_code       TEXT NOT NULL DEFAULT '',
		error            TEXT NOT NULL DEFAULT '',
		response         TEXT NOT NULL DEFAULT '',
		started_at       TEXT NOT NULL,
		finished_at      TEXT NOT NULL,
		PRIMARY KEY (run_id, task_id)
	);
	CREATE INDEX IF NOT EXISTS idx_attempts_started ON evaluation_attempts(started_at);
`

// SQLiteStore is the single-file journal.
type SQLiteStore struct {
	db  *sql.DB
	log *zap.Logger
}

// OpenSQLite opens (and creates) the journal file at path.
func OpenSQLite(ctx context.Context, path string, logger *zap.Logger) (*SQLiteStore, error) {
	path, err := homedir.Expand(path)
	if err != nil {
		return nil, fmt.Errorf("expand journal path: %w", err)
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("create journal directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One connection keeps ":memory:" databases alive across calls.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &SQLiteStore{db: db, log: logger.Named("store.sqlite")}, nil
}

func (s *SQLiteStore) Record(ctx context.Context, r evaluation.TaskResult) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO evaluation_attempts (run_id, task_id, task_name, questionnaire_id, task_index, state, outcome, error_code, error, response, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (run_id, task_id) DO UPDATE SET
			state = excluded.state,
			outcome = excluded.outcome,
			error_code = excluded.error_code,
			error = excluded.error,
			response = excluded.response,
			finished_at = excluded.finished_at`,
		r.RunID, r.Task.ID, r.Task.DisplayName, r.Task.QuestionnaireID, r.Task.Index,
		r.State, r.Outcome, r.ErrorCode, r.Error, r.Response,
		r.StartedAt.UTC().Format(sqliteTimeLayout), r.FinishedAt.UTC().Format(sqliteTimeLayout),
	)
	if err != nil {
		return fmt.Errorf("record attempt for task %s: %w", r.Task.ID, err)
	}
	return nil
}

func (s *SQLiteStore) ListRun(ctx context.Context, runID string) ([]evaluation.TaskResult, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT task_id, task_name, questionnaire_id, task_index, state, outcome, error_code, error, response, started_at, finished_at
		FROM evaluation_attempts
		WHERE run_id = ?
		ORDER BY started_at ASC, task_index ASC`, runID)
	if err != nil {
		return nil, fmt.Errorf("query run: %w", err)
	}
	defer rows.Close()

	var results []evaluation.TaskResult
	for rows.Next() {
		r := evaluation.TaskResult{RunID: runID}
		var started, finished string
		if err := rows.Scan(
			&r.Task.ID, &r.Task.DisplayName, &r.Task.QuestionnaireID, &r.Task.Index,
			&r.State, &r.Outcome, &r.ErrorCode, &r.Error, &r.Response,
			&started, &finished,
		); err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		if r.StartedAt, err = time.Parse(sqliteTimeLayout, started); err != nil {
			return nil, fmt.Errorf("parse started_at: %w", err)
		}
		if r.FinishedAt, err = time.Parse(sqliteTimeLayout, finished); err != nil {
			return nil, fmt.Errorf("parse finished_at: %w", err)
		}
		r.Task.Evaluated = r.Succeeded()
		results = append(results, r)
	}
	return results, rows.Err()
}

func (s *SQLiteStore) Runs(ctx context.Context, limit int) ([]RunInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, MIN(started_at), COUNT(*),
			SUM(CASE WHEN outcome = 'success' THEN 1 ELSE 0 END),
			SUM(CASE WHEN outcome = 'failure' THEN 1 ELSE 0 END)
		FROM evaluation_attempts
		GROUP BY run_id
		ORDER BY MIN(started_at) DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []RunInfo
	for rows.Next() {
		var ri RunInfo
		var started string
		if err := rows.Scan(&ri.RunID, &started, &ri.Tasks, &ri.Completed, &ri.Failed); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		if ri.StartedAt, err = time.Parse(sqliteTimeLayout, started); err != nil {
			return nil, fmt.Errorf("parse started_at: %w", err)
		}
		runs = append(runs, ri)
	}
	return runs, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
