// internal/store/journal.go
package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/xkilldash9x/quickeval/internal/evaluation"
	"github.com/xkilldash9x/quickeval/internal/portal"
	"go.uber.org/zap"
)

// Journal records one row per evaluated task so past runs can be reviewed.
type Journal interface {
	Record(ctx context.Context, result evaluation.TaskResult) error
	ListRun(ctx context.Context, runID string) ([]evaluation.TaskResult, error)
	Runs(ctx context.Context, limit int) ([]RunInfo, error)
	Close() error
}

// RunInfo summarises a journaled run.
type RunInfo struct {
	RunID     string    `json:"run_id" yaml:"run_id"`
	StartedAt time.Time `json:"started_at" yaml:"started_at"`
	Tasks     int       `json:"tasks" yaml:"tasks"`
	Completed int       `json:"completed" yaml:"completed"`
	Failed    int       `json:"failed" yaml:"failed"`
}

// Open connects to the journal at rawURL. postgres:// and postgresql://
// URLs use Postgres; sqlite:// URLs and bare paths use an SQLite file.
func Open(ctx context.Context, rawURL string, logger *zap.Logger) (Journal, error) {
	switch {
	case rawURL == "":
		return nil, fmt.Errorf("journal URL is empty")
	case strings.HasPrefix(rawURL, "postgres://"), strings.HasPrefix(rawURL, "postgresql://"):
		pool, err := pgxpool.New(ctx, rawURL)
		if err != nil {
			return nil, fmt.Errorf("failed to create database pool: %w", err)
		}
		s, err := New(ctx, pool, logger)
		if err != nil {
			pool.Close()
			return nil, err
		}
		if err := s.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, err
		}
		return s, nil
	default:
		return OpenSQLite(ctx, strings.TrimPrefix(rawURL, "sqlite://"), logger)
	}
}

// observer feeds runner results into a Journal.
type observer struct {
	journal Journal
}

// AsObserver adapts j so a Runner records every finished task in it.
func AsObserver(j Journal) evaluation.Observer {
	return observer{journal: j}
}

func (observer) TaskStarted(context.Context, int, int, portal.EvaluationTask) {}

func (o observer) TaskFinished(ctx context.Context, result evaluation.TaskResult) error {
	// Journal writes must land even when the run is being cancelled.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	return o.journal.Record(ctx, result)
}
