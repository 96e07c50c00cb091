package cli

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"vizmigrate/internal/database"
	"vizmigrate/internal/migrateviz"
	"vizmigrate/pkg/types"
)

// maxListedFailures caps the failures echoed in the summary; the log has all of them.
const maxListedFailures = 20

func newMigrateVizCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate-viz",
		Short: "Migrate saved charts between a legacy chart type and its replacement",
	}
	cmd.AddCommand(newMigrateDirectionCmd(a, migrateviz.Upgrade))
	cmd.AddCommand(newMigrateDirectionCmd(a, migrateviz.Downgrade))
	return cmd
}

func newMigrateDirectionCmd(a *app, dir migrateviz.Direction) *cobra.Command {
	var (
		vizType       string
		dryRun        bool
		batchSize     int
		resumeAfterID int64
		initSchema    bool
	)

	short := "Upgrade charts of a legacy type to its replacement"
	if dir == migrateviz.Downgrade {
		short = "Restore upgraded charts of a legacy type from their backup"
	}

	cmd := &cobra.Command{
		Use:   string(dir) + " --viz_type TYPE",
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			t, err := a.registry.Lookup(vizType)
			if err != nil {
				return err
			}

			opts := database.OptionsFromConfig(a.cfg.Migration)
			opts.Out = a.stdout
			if cmd.Flags().Changed("dry-run") {
				opts.DryRun = dryRun
			}
			if cmd.Flags().Changed("batch-size") {
				opts.BatchSize = batchSize
			}
			if cmd.Flags().Changed("resume-after-id") {
				opts.ResumeAfterID = resumeAfterID
			}
			if opts.BatchSize < 0 || opts.ResumeAfterID < 0 {
				return fmt.Errorf("--batch-size and --resume-after-id must not be negative")
			}
			if initSchema && a.cfg.Database.Type != "sqlite" {
				return fmt.Errorf("--init-schema is only supported for sqlite databases")
			}

			db, err := database.Connect(&a.cfg.Database)
			if err != nil {
				return fatal(err)
			}
			defer database.CloseConnection(db)

			if initSchema {
				if err := database.EnsureSchema(db); err != nil {
					return fatal(err)
				}
			}

			result, err := database.MigrateSlices(cmd.Context(), db, t, dir, opts)
			if err != nil {
				return fatal(err)
			}
			a.printMigrationSummary(result)
			return nil
		},
	}

	cmd.Flags().StringVarP(&vizType, "viz_type", "t", "", "Legacy chart type to migrate")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Run the whole batch, then roll it back")
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "Rows read per page (default from config)")
	cmd.Flags().Int64Var(&resumeAfterID, "resume-after-id", 0, "Only migrate rows with a greater id")
	cmd.Flags().BoolVar(&initSchema, "init-schema", false, "Create the slices table first (sqlite only)")
	_ = cmd.MarkFlagRequired("viz_type")

	return cmd
}

func (a *app) printMigrationSummary(result *types.MigrationResult) {
	verb := "Migrated"
	if result.DryRun {
		verb = "[DRY RUN] Would migrate"
	}
	fmt.Fprintf(a.stdout, "%s %s (%s): %d processed, %d skipped, %d failed, last id %d\n",
		verb, result.VizType, result.Direction, result.Processed, result.Skipped, len(result.Failures), result.LastID)

	if len(result.Failures) == 0 {
		return
	}
	for i, f := range result.Failures {
		if i == maxListedFailures {
			fmt.Fprintf(a.stdout, "  ... and %d more\n", len(result.Failures)-maxListedFailures)
			break
		}
		fmt.Fprintf(a.stdout, "  slice %d (%s) [%s]: %v\n", f.SliceID, f.VizType, f.Kind, f.Err)
	}
	fmt.Fprintf(a.stdout, "Failure details (run_id=%s) in %s\n", result.RunID, a.cfg.Processing.LogPath)

	logrus.WithFields(logrus.Fields{
		"run_id": result.RunID,
		"failed": len(result.Failures),
	}).Warn("Migration finished with row failures")
}
