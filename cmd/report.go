// cmd/report.go
package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/quickeval/internal/config"
	"github.com/xkilldash9x/quickeval/internal/evaluation"
	"github.com/xkilldash9x/quickeval/internal/observability"
	"github.com/xkilldash9x/quickeval/internal/reporting"
	"github.com/xkilldash9x/quickeval/internal/store"
)

// errJournalDisabled means journal.url is empty.
var errJournalDisabled = errors.New("journal is not configured")

// journalProvider opens the run journal. Tests inject an in-memory one.
type journalProvider interface {
	// Open returns errJournalDisabled when no journal is configured.
	Open(ctx context.Context, cfg config.Interface) (store.Journal, error)
}

// defaultJournalProvider opens the journal named by journal.url.
type defaultJournalProvider struct{}

// NewJournalProvider returns the production journal provider.
func NewJournalProvider() journalProvider {
	return &defaultJournalProvider{}
}

func (p *defaultJournalProvider) Open(ctx context.Context, cfg config.Interface) (store.Journal, error) {
	if cfg.Journal().URL == "" {
		return nil, errJournalDisabled
	}
	return store.Open(ctx, cfg.Journal().URL, observability.GetLogger())
}

// newReportCmd creates and configures the `report` command.
func newReportCmd(provider journalProvider) *cobra.Command {
	var (
		runID  string
		limit  int
		format string
		output string
	)

	reportCmd := &cobra.Command{
		Use:   "report",
		Short: "Show journaled runs, or the results of one run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger().Named("report")

			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			printer := getPrinterFromContext(ctx)
			if err := applyOverrides(cmd, cfg, format, output, ""); err != nil {
				return err
			}
			if limit < 1 {
				return fmt.Errorf("--limit must be positive, got %d", limit)
			}

			journal, err := provider.Open(ctx, cfg)
			if errors.Is(err, errJournalDisabled) {
				fmt.Fprintln(cmd.ErrOrStderr(), printer.T("JournalDisabled"))
				return err
			}
			if err != nil {
				return fmt.Errorf("failed to open journal: %w", err)
			}
			defer journal.Close()

			reporter, err := reporting.New(cfg.Report().Format, cfg.Report().Output, printer)
			if err != nil {
				return fmt.Errorf("failed to create reporter: %w", err)
			}

			if runID == "" {
				runs, err := journal.Runs(ctx, limit)
				if err != nil {
					reporter.Close()
					return fmt.Errorf("failed to list runs: %w", err)
				}
				if err := reporter.WriteRuns(runs); err != nil {
					reporter.Close()
					return fmt.Errorf("failed to write runs: %w", err)
				}
				return reporter.Close()
			}

			results, err := journal.ListRun(ctx, runID)
			if err != nil {
				reporter.Close()
				return fmt.Errorf("failed to read run %s: %w", runID, err)
			}
			if len(results) == 0 {
				reporter.Close()
				return fmt.Errorf("no journaled run with ID %s", runID)
			}
			logger.Debug("Loaded journaled run.", zap.String("run_id", runID), zap.Int("tasks", len(results)))

			if err := reporter.WriteSummary(summaryFromResults(runID, results)); err != nil {
				reporter.Close()
				return fmt.Errorf("failed to write summary: %w", err)
			}
			return reporter.Close()
		},
	}

	reportCmd.Flags().StringVar(&runID, "run", "", "ID of the run to show (default lists recent runs)")
	reportCmd.Flags().IntVar(&limit, "limit", 10, "number of recent runs to list")
	reportCmd.Flags().StringVarP(&format, "format", "f", "", "report format (text, json, yaml)")
	reportCmd.Flags().StringVarP(&output, "output", "o", "", "report file (default is stdout)")

	return reportCmd
}

// summaryFromResults rebuilds a run summary from its journaled rows.
func summaryFromResults(runID string, results []evaluation.TaskResult) *evaluation.Summary {
	s := &evaluation.Summary{RunID: runID, Results: results}
	for i, r := range results {
		if i == 0 || r.StartedAt.Before(s.StartedAt) {
			s.StartedAt = r.StartedAt
		}
		if r.FinishedAt.After(s.FinishedAt) {
			s.FinishedAt = r.FinishedAt
		}
		switch {
		case r.Succeeded():
			s.Completed++
		case r.Outcome == evaluation.OutcomeFailure.String():
			s.Failed++
		default:
			s.DryRun = true
		}
	}
	return s
}
