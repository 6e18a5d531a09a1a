// internal/store/store.go
package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/xkilldash9x/quickeval/internal/evaluation"
	"go.uber.org/zap"
)

// DBPool is an interface that abstracts the pgxpool.Pool to allow for mocking in tests.
type DBPool interface {
	Ping(ctx context.Context) error
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Close()
}

const (
	sqlCreateAttempts = `
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
            started_at       TIMESTAMPTZ NOT NULL,
            finished_at      TIMESTAMPTZ NOT NULL,
            PRIMARY KEY (run_id, task_id)
        );
    `
	sqlInsertAttempt = `
        INSERT INTO evaluation_attempts (run_id, task_id, task_name, questionnaire_id, task_index, state, outcome, error_code, error, response, started_at, finished_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
        ON CONFLICT (run_id, task_id) DO UPDATE SET
            state = EXCLUDED.state,
            outcome = EXCLUDED.outcome,
            error_code = EXCLUDED.error_code,
            error = EXCLUDED.error,
            response = EXCLUDED.response,
            finished_at = EXCLUDED.finished_at;
    `
	sqlSelectRun = `
        SELECT task_id, task_name, questionnaire_id, task_index, state, outcome, error_code, error, response, started_at, finished_at
        FROM evaluation_attempts
        WHERE run_id = $1
        ORDER BY started_at ASC, task_index ASC;
    `
	sqlSelectRuns = `
        SELECT run_id, MIN(started_at),
            COUNT(*),
            COUNT(*) FILTER (WHERE outcome = 'success'),
            COUNT(*) FILTER (WHERE outcome = 'failure')
        FROM evaluation_attempts
        GROUP BY run_id
        ORDER BY MIN(started_at) DESC
        LIMIT $1;
    `
)

// Store is the PostgreSQL journal.
type Store struct {
	pool DBPool
	log  *zap.Logger
}

// New creates a new store instance and verifies the connection.
func New(ctx context.Context, pool DBPool, logger *zap.Logger) (*Store, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{
		pool: pool,
		log:  logger.Named("store"),
	}, nil
}

// EnsureSchema creates the journal table when it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, sqlCreateAttempts); err != nil {
		return fmt.Errorf("failed to create journal schema: %w", err)
	}
	return nil
}

// Record upserts the row of one task result.
func (s *Store) Record(ctx context.Context, r evaluation.TaskResult) error {
	_, err := s.pool.Exec(ctx, sqlInsertAttempt,
		r.RunID, r.Task.ID, r.Task.DisplayName, r.Task.QuestionnaireID, r.Task.Index,
		r.State, r.Outcome, r.ErrorCode, r.Error, r.Response,
		r.StartedAt.UTC(), r.FinishedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to record attempt for task %s: %w", r.Task.ID, err)
	}
	s.log.Debug("Journaled task result.", zap.String("run_id", r.RunID), zap.String("task_id", r.Task.ID))
	return nil
}

// ListRun returns the journaled results of runID in the order they ran.
func (s *Store) ListRun(ctx context.Context, runID string) ([]evaluation.TaskResult, error) {
	rows, err := s.pool.Query(ctx, sqlSelectRun, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query run: %w", err)
	}
	defer rows.Close()

	var results []evaluation.TaskResult
	for rows.Next() {
		r := evaluation.TaskResult{RunID: runID}
		err := rows.Scan(
			&r.Task.ID, &r.Task.DisplayName, &r.Task.QuestionnaireID, &r.Task.Index,
			&r.State, &r.Outcome, &r.ErrorCode, &r.Error, &r.Response,
			&r.StartedAt, &r.FinishedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan attempt row: %w", err)
		}
		r.Task.Evaluated = r.Succeeded()
		results = append(results, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}

	return results, nil
}

// Runs lists the most recent runs, newest first.
func (s *Store) Runs(ctx context.Context, limit int) ([]RunInfo, error) {
	rows, err := s.pool.Query(ctx, sqlSelectRuns, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []RunInfo
	for rows.Next() {
		var ri RunInfo
		if err := rows.Scan(&ri.RunID, &ri.StartedAt, &ri.Tasks, &ri.Completed, &ri.Failed); err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}
		runs = append(runs, ri)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return runs, nil
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}
