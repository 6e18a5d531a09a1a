// internal/evaluation/runner.go
package evaluation

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/xkilldash9x/quickeval/internal/observability"
	"github.com/xkilldash9x/quickeval/internal/portal"
	"go.uber.org/zap"
)

// TaskResult is the single reported outcome of one task.
type TaskResult struct {
	RunID     string                `json:"run_id" yaml:"run_id"`
	Task      portal.EvaluationTask `json:"task" yaml:"task"`
	State     string                `json:"state" yaml:"state"`
	Outcome   string                `json:"outcome" yaml:"outcome"`
	ErrorCode string                `json:"error_code,omitempty" yaml:"error_code,omitempty"`
	Error     string                `json:"error,omitempty" yaml:"error,omitempty"`
	Response  string                `json:"response,omitempty" yaml:"response,omitempty"`
	// Fields is only populated on dry runs.
	Fields     []Entry   `json:"fields,omitempty" yaml:"fields,omitempty"`
	StartedAt  time.Time `json:"started_at" yaml:"started_at"`
	FinishedAt time.Time `json:"finished_at" yaml:"finished_at"`
}

// Succeeded reports whether the task was confirmed saved.
func (r TaskResult) Succeeded() bool { return r.Outcome == OutcomeSuccess.String() }

// Summary is the result of a whole run.
type Summary struct {
	RunID          string       `json:"run_id" yaml:"run_id"`
	StartedAt      time.Time    `json:"started_at" yaml:"started_at"`
	FinishedAt     time.Time    `json:"finished_at" yaml:"finished_at"`
	DryRun         bool         `json:"dry_run,omitempty" yaml:"dry_run,omitempty"`
	NoPendingTasks bool         `json:"no_pending_tasks,omitempty" yaml:"no_pending_tasks,omitempty"`
	Interrupted    bool         `json:"interrupted,omitempty" yaml:"interrupted,omitempty"`
	Completed      int          `json:"completed" yaml:"completed"`
	Failed         int          `json:"failed" yaml:"failed"`
	Results        []TaskResult `json:"results" yaml:"results"`
}

// Observer is notified as the run progresses. Errors returned by an
// observer are logged and never affect the run.
type Observer interface {
	TaskStarted(ctx context.Context, index, total int, task portal.EvaluationTask)
	TaskFinished(ctx context.Context, result TaskResult) error
}

// Runner evaluates tasks one after another, isolating failures per task.
type Runner struct {
	harvester *Harvester
	policy    Policy
	submitter *Submitter
	taskPause time.Duration
	dryRun    bool
	observers []Observer
	logger    *zap.Logger
	runID     string
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithTaskPause sets the delay after each task.
func WithTaskPause(d time.Duration) RunnerOption { return func(r *Runner) { r.taskPause = d } }

// WithDryRun makes the runner harvest and fill forms without submitting.
func WithDryRun(dry bool) RunnerOption { return func(r *Runner) { r.dryRun = dry } }

// WithObserver registers an observer.
func WithObserver(o Observer) RunnerOption {
	return func(r *Runner) { r.observers = append(r.observers, o) }
}

// WithRunID fixes the run ID instead of generating one.
func WithRunID(id string) RunnerOption { return func(r *Runner) { r.runID = id } }

// NewRunner assembles a runner from its parts.
func NewRunner(h *Harvester, p Policy, s *Submitter, logger *zap.Logger, opts ...RunnerOption) *Runner {
	if logger == nil {
		logger = observability.GetLogger()
	}
	r := &Runner{harvester: h, policy: p, submitter: s, logger: logger.Named("runner")}
	for _, opt := range opts {
		opt(r)
	}
	if r.runID == "" {
		r.runID = uuid.NewString()
	}
	return r
}

// RunID identifies this runner's run.
func (r *Runner) RunID() string { return r.runID }

// Run processes tasks sequentially. It never returns an error: every task
// gets exactly one TaskResult, and cancellation stops the run between tasks.
func (r *Runner) Run(ctx context.Context, tasks []portal.EvaluationTask) *Summary {
	summary := &Summary{RunID: r.runID, StartedAt: time.Now(), DryRun: r.dryRun, Results: []TaskResult{}}
	logger := r.logger.With(zap.String("run_id", r.runID))

	if len(tasks) == 0 {
		logger.Info("No pending tasks.")
		summary.NoPendingTasks = true
		summary.FinishedAt = time.Now()
		return summary
	}

	for i, task := range tasks {
		if ctx.Err() != nil {
			summary.Interrupted = true
			logger.Warn("Run interrupted.", zap.Int("remaining", len(tasks)-i))
			break
		}
		for _, o := range r.observers {
			o.TaskStarted(ctx, i, len(tasks), task)
		}

		result := r.runTask(ctx, task)
		summary.Results = append(summary.Results, result)
		if result.Succeeded() {
			summary.Completed++
		} else if result.Outcome == OutcomeFailure.String() {
			summary.Failed++
		}

		for _, o := range r.observers {
			if err := o.TaskFinished(ctx, result); err != nil {
				logger.Warn("Observer failed to record task result.", zap.String("task", task.DisplayName), zap.Error(err))
			}
		}

		if i < len(tasks)-1 {
			if err := Pause(ctx, r.taskPause); err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("Inter-task pause ended early.", zap.Error(err))
			}
		}
	}

	summary.FinishedAt = time.Now()
	logger.Info("Run finished.",
		zap.Int("completed", summary.Completed),
		zap.Int("failed", summary.Failed),
		zap.Int("total", len(tasks)))
	return summary
}

func (r *Runner) runTask(ctx context.Context, task portal.EvaluationTask) TaskResult {
	logger := r.logger.With(zap.String("run_id", r.runID), zap.String("task", task.DisplayName), zap.String("task_id", task.ID))
	result := TaskResult{RunID: r.runID, Task: task, StartedAt: time.Now(), State: StateBuilt.String(), Outcome: OutcomePending.String()}

	failed := func(err error) TaskResult {
		result.Outcome = OutcomeFailure.String()
		result.State = StateFailed.String()
		result.ErrorCode = string(portal.CodeOf(err))
		result.Error = err.Error()
		if body := portal.BodyOf(err); len(body) > 0 {
			result.Response = string(body)
		}
		result.FinishedAt = time.Now()
		logger.Error("Task failed.", zap.String("code", result.ErrorCode), zap.Error(err))
		return result
	}

	form, err := r.harvester.Harvest(ctx, task)
	if err != nil {
		return failed(err)
	}
	fields, err := r.policy.Apply(form)
	if err != nil {
		return failed(err)
	}

	if r.dryRun {
		result.Fields = fields.Entries()
		result.FinishedAt = time.Now()
		logger.Info("Dry run: form filled, nothing submitted.", zap.Int("fields", fields.Len()))
		return result
	}

	attempt := NewAttempt(task, form, fields)
	if err := r.submitter.Submit(ctx, attempt); err != nil {
		return failed(err)
	}

	result.State = attempt.State.String()
	result.Outcome = attempt.Outcome.String()
	result.Response = string(attempt.Response)
	result.FinishedAt = time.Now()
	logger.Info("Task evaluated.")
	return result
}
