package database

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"vizmigrate/internal/config"
	"vizmigrate/internal/formdata"
	"vizmigrate/internal/migrateviz"
	"vizmigrate/pkg/types"

	"github.com/briandowns/spinner"
	"github.com/google/uuid"
	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Options controls one batch run
type Options struct {
	BatchSize              int
	DryRun                 bool
	ResumeAfterID          int64
	HeartbeatBatchInterval int
	// Out receives the PROGRESS and FINAL lines. Defaults to stdout.
	Out io.Writer
}

// OptionsFromConfig builds batch options from the migration config section
func OptionsFromConfig(cfg types.Migration) Options {
	return Options{
		BatchSize:              cfg.BatchSize,
		DryRun:                 cfg.DryRun,
		ResumeAfterID:          cfg.ResumeAfterID,
		HeartbeatBatchInterval: cfg.HeartbeatBatchInterval,
	}
}

// FatalMigrationError marks an error as fatal such that the caller should exit
// immediately (non-zero). The batch transaction has been rolled back when it
// is returned.
type FatalMigrationError struct {
	Err error
}

func (e FatalMigrationError) Error() string { return e.Err.Error() }
func (e FatalMigrationError) Unwrap() error { return e.Err }

// MigrateSlices applies t in direction dir to every chart row it matches,
// inside a single transaction. A row that fails is rolled back to its
// savepoint and recorded; the batch carries on. Fatal errors roll back the
// whole transaction and are returned as FatalMigrationError.
func MigrateSlices(ctx context.Context, db *gorm.DB, t migrateviz.Transformer, dir migrateviz.Direction, opts Options) (*types.MigrationResult, error) {
	startTime := time.Now()
	recipe := t.Recipe()
	vizTypes := migrateviz.MatchTypes(t, dir)

	result := &types.MigrationResult{
		RunID:     uuid.NewString(),
		VizType:   recipe.Source,
		Direction: string(dir),
		LastID:    opts.ResumeAfterID,
		DryRun:    opts.DryRun,
	}
	log := logrus.WithFields(logrus.Fields{
		"run_id":    result.RunID,
		"viz_type":  recipe.Source,
		"direction": dir,
	})

	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = config.DefaultBatchSize
	}
	heartbeatInterval := opts.HeartbeatBatchInterval
	if heartbeatInterval <= 0 {
		heartbeatInterval = config.DefaultHeartbeatInterval
	}
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}

	total, err := NewSliceStore(db).Count(ctx, vizTypes, opts.ResumeAfterID)
	if err != nil {
		return result, FatalMigrationError{Err: err}
	}

	log.Infof("Starting %s of %d rows (types %v, batch size %d, after id %d, dry run %t)",
		dir, total, vizTypes, batchSize, opts.ResumeAfterID, opts.DryRun)
	fmt.Fprintf(out, "PROGRESS viz_type=%s direction=%s processed=0 failed=0 total=%d batch=0 status=started\n",
		recipe.Source, dir, total)

	sp := startSpinner(fmt.Sprintf(" Migrating %s", recipe.Source))
	if sp != nil {
		defer sp.Stop()
	}

	tx := db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return result, FatalMigrationError{Err: fmt.Errorf("failed to begin transaction: %w", tx.Error)}
	}
	finished := false
	defer func() {
		if !finished {
			tx.Rollback()
			log.Warnf("Rolled back %s after slice %d", dir, result.LastID)
		}
	}()

	store := NewSliceStore(tx)
	batchCount := 0
	for {
		rows, err := store.Page(ctx, vizTypes, result.LastID, batchSize)
		if err != nil {
			return result, FatalMigrationError{Err: err}
		}
		if len(rows) == 0 {
			break
		}
		batchCount++

		for i := range rows {
			if err := ctx.Err(); err != nil {
				return result, FatalMigrationError{Err: fmt.Errorf("interrupted after slice %d: %w", result.LastID, err)}
			}
			if err := migrateRow(ctx, store, t, dir, &rows[i], result, log); err != nil {
				log.WithField("slice_id", rows[i].ID).WithError(err).Error("Aborting batch")
				return result, FatalMigrationError{Err: fmt.Errorf("slice %d: %w", rows[i].ID, err)}
			}
			result.LastID = rows[i].ID
		}

		if sp != nil {
			sp.Suffix = fmt.Sprintf(" Migrating %s - %d/%d (batch %d)", recipe.Source, result.Processed, total, batchCount)
		}
		log.Debugf("Completed batch %d: last id %d", batchCount, result.LastID)

		if batchCount%heartbeatInterval == 0 {
			log.Infof("HEARTBEAT: %d batches, %d processed, %d failed, last id %d",
				batchCount, result.Processed, len(result.Failures), result.LastID)
			fmt.Fprintf(out, "PROGRESS viz_type=%s direction=%s processed=%d failed=%d total=%d batch=%d\n",
				recipe.Source, dir, result.Processed, len(result.Failures), total, batchCount)
		}
	}

	if opts.DryRun {
		if err := tx.Rollback().Error; err != nil {
			return result, FatalMigrationError{Err: fmt.Errorf("failed to roll back dry run: %w", err)}
		}
		log.Infof("[DRY RUN] Rolled back %d migrated rows", result.Processed)
	} else if err := tx.Commit().Error; err != nil {
		return result, FatalMigrationError{Err: fmt.Errorf("failed to commit: %w", err)}
	}
	finished = true

	result.Duration = time.Since(startTime)
	log.Infof("Completed %s: %d processed, %d skipped, %d failed (duration=%s)",
		dir, result.Processed, result.Skipped, len(result.Failures), result.Duration)

	fmt.Fprintf(out, "PROGRESS viz_type=%s direction=%s processed=%d failed=%d total=%d batch=%d status=completed duration=%s\n",
		recipe.Source, dir, result.Processed, len(result.Failures), total, batchCount, result.Duration)
	fmt.Fprintf(out, "FINAL viz_type=%s direction=%s processed=%d failed=%d dry_run=%t duration=%s exit=0\n",
		recipe.Source, dir, result.Processed, len(result.Failures), opts.DryRun, result.Duration)

	return result, nil
}

// migrateRow transforms and writes back one row. Per-row problems are
// recorded on result; only batch-aborting errors are returned.
func migrateRow(ctx context.Context, store *SliceStore, t migrateviz.Transformer, dir migrateviz.Direction, row *types.Slice, result *types.MigrationResult, log *logrus.Entry) error {
	fail := func(kind string, err error) {
		result.Failures = append(result.Failures, types.RowFailure{
			SliceID: row.ID,
			VizType: row.VizType,
			Kind:    kind,
			Err:     err,
		})
		entry := log.WithFields(logrus.Fields{
			"slice_id":     row.ID,
			"row_viz_type": row.VizType,
			"kind":         kind,
		}).WithError(err)
		var hookErr *migrateviz.HookError
		if errors.As(err, &hookErr) && len(hookErr.Stack) > 0 {
			entry = entry.WithField("stack", string(hookErr.Stack))
		}
		entry.Error("Slice left unchanged")
	}

	blob, err := formdata.Decode(row.VizType, row.Params)
	if err != nil {
		fail(types.FailureDecode, err)
		return nil
	}

	switch err := dir.Apply(t, blob); {
	case err == nil:
	case errors.Is(err, migrateviz.ErrNotApplicable):
		result.Skipped++
		return nil
	case errors.Is(err, migrateviz.ErrRenameCollision):
		return err
	case errors.Is(err, migrateviz.ErrDowngradeUnsupported):
		fail(types.FailureDowngradeUnsupported, err)
		return nil
	default:
		fail(types.FailureHook, err)
		return nil
	}

	params, err := blob.Encode()
	if err != nil {
		fail(types.FailurePersistence, err)
		return nil
	}

	updated := *row
	updated.Params = params
	updated.VizType = blob.Type
	if err := writeRow(ctx, store, &updated); err != nil {
		var spErr savepointError
		if errors.As(err, &spErr) {
			return err
		}
		fail(types.FailurePersistence, err)
		return nil
	}

	result.Processed++
	return nil
}

// savepointError means the transaction itself can no longer be trusted.
type savepointError struct {
	err error
}

func (e savepointError) Error() string { return e.err.Error() }
func (e savepointError) Unwrap() error { return e.err }

// writeRow updates row under its own savepoint so a failed write leaves the
// rest of the transaction intact.
func writeRow(ctx context.Context, store *SliceStore, row *types.Slice) error {
	tx := store.DB()
	name := fmt.Sprintf("slice_%d", row.ID)

	if err := tx.SavePoint(name).Error; err != nil {
		return savepointError{fmt.Errorf("failed to create savepoint %s: %w", name, err)}
	}

	if err := store.UpdateParams(ctx, row); err != nil {
		if rbErr := tx.RollbackTo(name).Error; rbErr != nil {
			return savepointError{errors.Join(err, fmt.Errorf("failed to roll back to savepoint %s: %w", name, rbErr))}
		}
		if relErr := releaseSavepoint(tx, name); relErr != nil {
			return savepointError{errors.Join(err, relErr)}
		}
		return err
	}

	if err := releaseSavepoint(tx, name); err != nil {
		return savepointError{err}
	}
	return nil
}

func releaseSavepoint(tx *gorm.DB, name string) error {
	// SQL Server has no RELEASE; its savepoints end with the transaction.
	if tx.Dialector.Name() == "sqlserver" {
		return nil
	}
	if err := tx.Exec("RELEASE SAVEPOINT " + name).Error; err != nil {
		return fmt.Errorf("failed to release savepoint %s: %w", name, err)
	}
	return nil
}

// startSpinner shows a spinner on stderr when it is a terminal. Disable with
// NO_SPINNER=1. stdout stays free for the PROGRESS lines.
func startSpinner(suffix string) *spinner.Spinner {
	if os.Getenv("NO_SPINNER") != "" {
		logrus.Debug("Spinner disabled via NO_SPINNER")
		return nil
	}
	if !isatty.IsTerminal(os.Stderr.Fd()) && !isatty.IsCygwinTerminal(os.Stderr.Fd()) {
		return nil
	}
	sp := spinner.New(spinner.CharSets[14], 120*time.Millisecond)
	sp.Writer = os.Stderr
	sp.Suffix = suffix
	sp.Start()
	return sp
}
