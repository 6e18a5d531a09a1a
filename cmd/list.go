// cmd/list.go
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/quickeval/internal/observability"
	"github.com/xkilldash9x/quickeval/internal/portal"
	"github.com/xkilldash9x/quickeval/internal/reporting"
)

// newListCmd creates and configures the `list` command.
func newListCmd(deps portalDeps) *cobra.Command {
	var (
		includeEvaluated bool
		format           string
		output           string
	)

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "Sign in and list the courses waiting for an evaluation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger().Named("list")

			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			printer := getPrinterFromContext(ctx)
			if err := applyOverrides(cmd, cfg, format, output, ""); err != nil {
				return err
			}

			con := console{in: cmd.InOrStdin(), out: cmd.ErrOrStderr()}
			sess, err := login(ctx, cfg, deps, printer, con, logger)
			if err != nil {
				return err
			}
			defer sess.Close()

			lister := portal.NewTaskLister(sess, cfg.Evaluation(), logger)
			var tasks []portal.EvaluationTask
			if includeEvaluated {
				tasks, err = lister.ListTasks(ctx)
			} else {
				tasks, err = lister.ListPendingTasks(ctx)
			}
			if err != nil {
				return fmt.Errorf("failed to list tasks: %w", err)
			}

			reporter, err := reporting.New(cfg.Report().Format, cfg.Report().Output, printer)
			if err != nil {
				return fmt.Errorf("failed to create reporter: %w", err)
			}
			if err := reporter.WriteTasks(tasks); err != nil {
				reporter.Close()
				return fmt.Errorf("failed to write task listing: %w", err)
			}
			return reporter.Close()
		},
	}

	listCmd.Flags().BoolVar(&includeEvaluated, "include-evaluated", false, "also list courses that were already evaluated")
	listCmd.Flags().StringVarP(&format, "format", "f", "", "listing format (text, json, yaml)")
	listCmd.Flags().StringVarP(&output, "output", "o", "", "listing file (default is stdout)")

	return listCmd
}
