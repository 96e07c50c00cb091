package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"vizmigrate/internal/database"
	"vizmigrate/internal/querycontext"
)

func newGenerateQueryContextCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate-query-context",
		Short: "Compare stored chart query contexts with the ones their params produce",
	}

	var id int64
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Write a CSV of charts whose stored query context is out of date",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var only *int64
			if cmd.Flags().Changed("id") {
				if id <= 0 {
					return fmt.Errorf("--id must be a positive slice id")
				}
				only = &id
			}

			db, err := database.Connect(&a.cfg.Database)
			if err != nil {
				return fatal(err)
			}
			defer database.CloseConnection(db)

			reconciler := &querycontext.Reconciler{
				Rows:      database.NewSliceStore(db),
				Registry:  a.registry,
				Dir:       a.cfg.Report.Dir,
				BatchSize: a.cfg.Migration.BatchSize,
			}
			result, err := reconciler.Run(cmd.Context(), only)
			if err != nil {
				return fatal(err)
			}

			fmt.Fprintf(a.stdout, "Checked %d slices: %d mismatches, %d errors\n", result.Checked, result.Mismatches, result.Errors)
			fmt.Fprintf(a.stdout, "Report: %s\n", result.ReportPath)
			return nil
		},
	}
	runCmd.Flags().Int64Var(&id, "id", 0, "Only check this slice id")

	cmd.AddCommand(runCmd)
	return cmd
}
