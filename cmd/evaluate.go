// cmd/evaluate.go
package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/quickeval/internal/config"
	"github.com/xkilldash9x/quickeval/internal/evaluation"
	"github.com/xkilldash9x/quickeval/internal/i18n"
	"github.com/xkilldash9x/quickeval/internal/observability"
	"github.com/xkilldash9x/quickeval/internal/portal"
	"github.com/xkilldash9x/quickeval/internal/reporting"
	"github.com/xkilldash9x/quickeval/internal/store"
)

// ErrTasksFailed is returned by evaluate when at least one task failed.
var ErrTasksFailed = errors.New("one or more evaluations failed")

// newEvaluateCmd creates and configures the `evaluate` command.
func newEvaluateCmd(deps portalDeps) *cobra.Command {
	var (
		all       bool
		dryRun    bool
		selection string
		format    string
		output    string
		radio     string
	)

	evaluateCmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Sign in, choose pending courses and submit their evaluations",
		Long: `Signs in to the portal, lists the courses still waiting for an evaluation and
submits a full-marks questionnaire for each selected course. Without --all or
--select the course numbers are read from standard input.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger().Named("evaluate")

			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			printer := getPrinterFromContext(ctx)

			if err := applyOverrides(cmd, cfg, format, output, radio); err != nil {
				return err
			}

			con := console{in: cmd.InOrStdin(), out: cmd.ErrOrStderr()}
			sess, err := login(ctx, cfg, deps, printer, con, logger)
			if err != nil {
				return err
			}
			defer sess.Close()

			tasks, err := portal.NewTaskLister(sess, cfg.Evaluation(), logger).ListPendingTasks(ctx)
			if err != nil {
				return fmt.Errorf("failed to list pending tasks: %w", err)
			}

			selected := tasks
			switch {
			case len(tasks) == 0, all:
			case selection != "":
				if selected, err = parseSelection(selection, tasks); err != nil {
					return err
				}
			default:
				if selected, err = promptSelection(ctx, tasks, printer, con.in, con.out); err != nil {
					return err
				}
			}

			summary, err := runEvaluation(ctx, cfg, deps, sess, selected, dryRun, printer, cmd.ErrOrStderr(), logger)
			if err != nil {
				return err
			}

			reporter, err := reporting.New(cfg.Report().Format, cfg.Report().Output, printer)
			if err != nil {
				return fmt.Errorf("failed to create reporter: %w", err)
			}
			if err := reporter.WriteSummary(summary); err != nil {
				reporter.Close()
				return fmt.Errorf("failed to write summary: %w", err)
			}
			if err := reporter.Close(); err != nil {
				return fmt.Errorf("failed to close reporter: %w", err)
			}

			if summary.Interrupted {
				return ctx.Err()
			}
			if summary.Failed > 0 {
				return fmt.Errorf("%w: %d of %d", ErrTasksFailed, summary.Failed, len(summary.Results))
			}
			return nil
		},
	}

	evaluateCmd.Flags().BoolVar(&all, "all", false, "evaluate every pending course without asking")
	evaluateCmd.Flags().StringVar(&selection, "select", "", "course numbers to evaluate, e.g. \"0,2\"")
	evaluateCmd.Flags().BoolVar(&dryRun, "dry-run", false, "fill in the questionnaires without submitting them")
	evaluateCmd.Flags().StringVarP(&format, "format", "f", "", "summary format (text, json, yaml)")
	evaluateCmd.Flags().StringVarP(&output, "output", "o", "", "summary file (default is stdout)")
	evaluateCmd.Flags().StringVar(&radio, "radio", "", "single-choice strategy (first, last)")
	evaluateCmd.MarkFlagsMutuallyExclusive("all", "select")

	return evaluateCmd
}

// applyOverrides copies explicitly set flags over the loaded configuration.
func applyOverrides(cmd *cobra.Command, cfg config.Interface, format, output, radio string) error {
	if cmd.Flags().Changed("format") {
		cfg.SetReportFormat(format)
	}
	if cmd.Flags().Changed("output") {
		cfg.SetReportOutput(output)
	}
	if cmd.Flags().Changed("radio") {
		cfg.SetRadioStrategy(radio)
		evalCfg := cfg.Evaluation()
		if err := evalCfg.Validate(); err != nil {
			return fmt.Errorf("invalid --radio: %w", err)
		}
	}
	return nil
}

// runEvaluation evaluates tasks on an authenticated session. Progress goes
// to status; when a journal is configured every result is also recorded.
func runEvaluation(ctx context.Context, cfg config.Interface, deps portalDeps, sess *portal.SessionContext,
	tasks []portal.EvaluationTask, dryRun bool, printer *i18n.Printer, status io.Writer, logger *zap.Logger) (*evaluation.Summary, error) {

	evalCfg := cfg.Evaluation()
	opts := []evaluation.RunnerOption{
		evaluation.WithTaskPause(evalCfg.TaskPause),
		evaluation.WithDryRun(dryRun),
		evaluation.WithObserver(&progressObserver{out: status, printer: printer}),
	}

	journal, err := deps.journal.Open(ctx, cfg)
	switch {
	case errors.Is(err, errJournalDisabled):
	case err != nil:
		return nil, fmt.Errorf("failed to open journal: %w", err)
	default:
		defer journal.Close()
		opts = append(opts, evaluation.WithObserver(store.AsObserver(journal)))
	}

	runner := evaluation.NewRunner(
		evaluation.NewHarvester(sess, logger),
		evaluation.PolicyFromConfig(evalCfg.Policy),
		evaluation.NewSubmitter(sess, evalCfg.PhasePause, logger),
		logger,
		opts...,
	)
	return runner.Run(ctx, tasks), nil
}

// progressObserver prints one line per task as the run advances.
type progressObserver struct {
	out     io.Writer
	printer *i18n.Printer
}

func (p *progressObserver) TaskStarted(_ context.Context, index, total int, task portal.EvaluationTask) {
	fmt.Fprintln(p.out, p.printer.Td("TaskProgress", map[string]any{"N": index + 1, "Total": total, "Name": task.DisplayName}))
}

func (p *progressObserver) TaskFinished(_ context.Context, result evaluation.TaskResult) error {
	var line string
	switch {
	case result.Succeeded():
		line = p.printer.Td("TaskSucceeded", map[string]any{"Name": result.Task.DisplayName})
	case result.Outcome == evaluation.OutcomeFailure.String():
		line = p.printer.Td("TaskFailed", map[string]any{"Name": result.Task.DisplayName, "Error": result.Error})
	default:
		line = p.printer.Td("TaskDryRun", map[string]any{"Name": result.Task.DisplayName, "Fields": len(result.Fields)})
	}
	_, err := fmt.Fprintln(p.out, line)
	return err
}

// parseSelection resolves course numbers, separated by commas or spaces,
// against the pending tasks. "all" selects every task. Numbers refer to
// EvaluationTask.Index; the order given is kept and duplicates are dropped.
func parseSelection(input string, tasks []portal.EvaluationTask) ([]portal.EvaluationTask, error) {
	input = strings.TrimSpace(input)
	if strings.EqualFold(input, "all") {
		return tasks, nil
	}

	byIndex := make(map[int]portal.EvaluationTask, len(tasks))
	for _, t := range tasks {
		byIndex[t.Index] = t
	}

	parts := strings.FieldsFunc(input, func(r rune) bool { return r == ',' || r == '，' || unicode.IsSpace(r) })
	if len(parts) == 0 {
		return nil, fmt.Errorf("no course selected")
	}

	seen := make(map[int]bool, len(parts))
	selected := make([]portal.EvaluationTask, 0, len(parts))
	for _, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("%q is not a course number", part)
		}
		task, ok := byIndex[n]
		if !ok {
			return nil, fmt.Errorf("no pending course has number %d", n)
		}
		if seen[n] {
			continue
		}
		seen[n] = true
		selected = append(selected, task)
	}
	return selected, nil
}

// promptSelection lists tasks on out and reads a selection from in until
// one parses.
func promptSelection(ctx context.Context, tasks []portal.EvaluationTask, printer *i18n.Printer, in io.Reader, out io.Writer) ([]portal.EvaluationTask, error) {
	fmt.Fprintln(out, printer.Tp("TasksPending", len(tasks), nil))
	for _, t := range tasks {
		fmt.Fprintln(out, printer.Td("TaskLine", map[string]any{"Index": t.Index, "Name": t.DisplayName}))
	}

	reader := bufio.NewReader(in)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		fmt.Fprint(out, printer.T("SelectPrompt"))
		line, err := reader.ReadString('\n')
		if err != nil && (err != io.EOF || strings.TrimSpace(line) == "") {
			return nil, fmt.Errorf("failed to read selection: %w", err)
		}

		selected, perr := parseSelection(line, tasks)
		if perr == nil {
			return selected, nil
		}
		fmt.Fprintln(out, printer.Td("InvalidSelection", map[string]any{"Error": perr.Error()}))
		if err == io.EOF {
			return nil, perr
		}
	}
}
