package querycontext

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

var reportHeader = []string{"slice_id", "viz_type", "generated_queries", "slice_queries"}

// Record is one mismatching (or failing) chart in the report.
type Record struct {
	SliceID int64
	VizType string
	// Generated holds the synthesised queries, or the error and its trace.
	Generated string
	Stored    string
}

// Report writes reconciliation records as CSV.
type Report struct {
	Path string
	file *os.File
	csv  *csv.Writer
}

// CreateReport opens a new report file named after now under dir. An existing
// file is never overwritten.
func CreateReport(dir string, now time.Time) (*Report, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create report directory %s: %w", dir, err)
	}

	base := "query_context_" + now.Format("20060102_150405")
	for n := 0; ; n++ {
		name := base
		if n > 0 {
			name += "_" + strconv.Itoa(n)
		}
		path := filepath.Join(dir, name+".csv")

		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to create report %s: %w", path, err)
		}

		r := &Report{Path: path, file: f, csv: csv.NewWriter(f)}
		if err := r.csv.Write(reportHeader); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to write report header: %w", err)
		}
		return r, nil
	}
}

// Write appends one record.
func (r *Report) Write(rec Record) error {
	return r.csv.Write([]string{
		strconv.FormatInt(rec.SliceID, 10),
		rec.VizType,
		rec.Generated,
		rec.Stored,
	})
}

// Close flushes and closes the file.
func (r *Report) Close() error {
	r.csv.Flush()
	if err := r.csv.Error(); err != nil {
		r.file.Close()
		return fmt.Errorf("failed to flush report %s: %w", r.Path, err)
	}
	return r.file.Close()
}
