package querycontext

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime/debug"
	"strings"
	"time"

	"vizmigrate/internal/formdata"
	"vizmigrate/internal/migrateviz"
	"vizmigrate/pkg/types"

	"github.com/google/uuid"
	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
	"github.com/sirupsen/logrus"
)

// DefaultBatchSize is how many rows the reconciler reads per page.
const DefaultBatchSize = 500

// SliceReader is the read side of the chart row store.
type SliceReader interface {
	Get(ctx context.Context, id int64) (*types.Slice, error)
	PageWithQueryContext(ctx context.Context, vizTypes []string, afterID int64, limit int) ([]types.Slice, error)
	CountWithQueryContext(ctx context.Context, vizTypes []string, afterID int64) (int64, error)
}

// Reconciler writes a CSV of the charts whose stored query payload differs
// from the one their params produce today. It never writes to the database.
type Reconciler struct {
	Rows      SliceReader
	Registry  *migrateviz.Registry
	Dir       string
	BatchSize int
	// Now names the report file. Defaults to time.Now.
	Now func() time.Time
	// Progress receives a progress bar. When nil one is drawn on stderr if it
	// is a terminal and NO_PROGRESS is unset.
	Progress io.Writer
}

// Run checks one row when id is non-nil, otherwise every row whose type is
// in the registry.
func (r *Reconciler) Run(ctx context.Context, id *int64) (*types.ReconcileResult, error) {
	now := time.Now
	if r.Now != nil {
		now = r.Now
	}
	result := &types.ReconcileResult{RunID: uuid.NewString()}
	log := logrus.WithField("run_id", result.RunID)

	report, err := CreateReport(r.Dir, now())
	if err != nil {
		return result, err
	}
	result.ReportPath = report.Path
	log.Infof("Writing query context report to %s", report.Path)

	if id != nil {
		err = r.runOne(ctx, *id, report, result)
	} else {
		err = r.runAll(ctx, report, result, log)
	}
	if closeErr := report.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return result, err
	}

	log.Infof("Checked %d slices: %d mismatches, %d errors", result.Checked, result.Mismatches, result.Errors)
	return result, nil
}

func (r *Reconciler) runOne(ctx context.Context, id int64, report *Report, result *types.ReconcileResult) error {
	row, err := r.Rows.Get(ctx, id)
	if err != nil {
		return err
	}
	if !r.Registry.Contains(row.VizType) {
		return fmt.Errorf("slice %d: %w: %q", id, migrateviz.ErrUnknownVizType, row.VizType)
	}
	return r.reconcile(row, report, result)
}

func (r *Reconciler) runAll(ctx context.Context, report *Report, result *types.ReconcileResult, log *logrus.Entry) error {
	vizTypes := r.Registry.Types()
	batchSize := r.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	total, err := r.Rows.CountWithQueryContext(ctx, vizTypes, 0)
	if err != nil {
		return err
	}
	bar := r.progressBar(total)

	var lastID int64
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		rows, err := r.Rows.PageWithQueryContext(ctx, vizTypes, lastID, batchSize)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			break
		}
		for i := range rows {
			if err := r.reconcile(&rows[i], report, result); err != nil {
				return err
			}
			lastID = rows[i].ID
			if bar != nil {
				bar.Add(1)
			}
		}
		log.Debugf("Reconciled up to slice %d", lastID)
	}

	if bar != nil {
		bar.Finish()
	}
	return nil
}

// reconcile compares one row and appends a record when it disagrees. Only
// report write failures are returned.
func (r *Reconciler) reconcile(row *types.Slice, report *Report, result *types.ReconcileResult) error {
	if row.QueryContext == nil || *row.QueryContext == "" {
		return nil
	}
	result.Checked++

	stored := *row.QueryContext
	generated, storedQueries, err := r.compare(row)
	switch {
	case err != nil:
		result.Errors++
		logrus.WithFields(logrus.Fields{"slice_id": row.ID, "viz_type": row.VizType}).
			WithError(err).Warn("Could not reconcile query context")
		generated = errorText(err)
		if storedQueries != "" {
			stored = storedQueries
		}
	case generated == storedQueries:
		return nil
	default:
		result.Mismatches++
		stored = storedQueries
	}

	if err := report.Write(Record{
		SliceID:   row.ID,
		VizType:   row.VizType,
		Generated: generated,
		Stored:    stored,
	}); err != nil {
		return fmt.Errorf("failed to write report row for slice %d: %w", row.ID, err)
	}
	return nil
}

// compare returns the canonical generated and stored queries of row.
func (r *Reconciler) compare(row *types.Slice) (generated, stored string, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = &panicError{value: p, stack: debug.Stack()}
		}
	}()

	storedValue, err := formdata.DecodeValue(*row.QueryContext)
	if err != nil {
		return "", "", fmt.Errorf("stored query_context: %w", err)
	}
	storedCtx, ok := storedValue.(map[string]any)
	if !ok {
		return "", "", fmt.Errorf("stored query_context is not an object")
	}
	stored, err = CanonicalJSON(storedCtx["queries"])
	if err != nil {
		return "", "", err
	}

	blob, err := formdata.Decode(row.VizType, row.Params)
	if err != nil {
		return "", stored, err
	}
	payload, err := r.Registry.QueryContext(blob)
	if err != nil {
		return "", stored, err
	}
	generated, err = CanonicalJSON(payload["queries"])
	if err != nil {
		return "", stored, err
	}
	return generated, stored, nil
}

func (r *Reconciler) progressBar(total int64) *progressbar.ProgressBar {
	w := r.Progress
	if w == nil {
		if os.Getenv("NO_PROGRESS") != "" || !isatty.IsTerminal(os.Stderr.Fd()) {
			return nil
		}
		w = os.Stderr
	}
	return progressbar.NewOptions64(total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription("Reconciling query contexts"),
		progressbar.OptionShowCount(),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)
}

type panicError struct {
	value any
	stack []byte
}

func (e *panicError) Error() string { return fmt.Sprintf("panic: %v", e.value) }

// errorText renders err with the stack it was raised from, when one is known.
func errorText(err error) string {
	var p *panicError
	if errors.As(err, &p) {
		return p.Error() + "\n" + stableStack(p.stack)
	}
	var hookErr *migrateviz.HookError
	if errors.As(err, &hookErr) && len(hookErr.Stack) > 0 {
		return err.Error() + "\n" + stableStack(hookErr.Stack)
	}
	return err.Error()
}

// stableStack reduces a goroutine dump to function names and source lines.
// Goroutine ids, argument values and pc offsets vary between runs and are
// dropped.
func stableStack(stack []byte) string {
	var out []string
	for _, line := range strings.Split(strings.TrimRight(string(stack), "\n"), "\n") {
		switch {
		case strings.HasPrefix(line, "goroutine "):
			continue
		case strings.HasPrefix(line, "\t"):
			if i := strings.LastIndex(line, " +0x"); i >= 0 {
				line = line[:i]
			}
		case strings.HasPrefix(line, "created by "):
			if i := strings.Index(line, " in goroutine "); i >= 0 {
				line = line[:i]
			}
		case strings.HasSuffix(line, ")"):
			if i := strings.LastIndex(line, "("); i > 0 {
				line = line[:i]
			}
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}
