package querycontext

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"os"
	"runtime/debug"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vizmigrate/internal/formdata"
	"vizmigrate/internal/migrateviz"
	"vizmigrate/pkg/types"
)

type memoryRows struct {
	rows []types.Slice
}

func (m *memoryRows) Get(_ context.Context, id int64) (*types.Slice, error) {
	for i := range m.rows {
		if m.rows[i].ID == id {
			row := m.rows[i]
			return &row, nil
		}
	}
	return nil, errors.New("slice not found")
}

func (m *memoryRows) matching(vizTypes []string, afterID int64) []types.Slice {
	wanted := map[string]bool{}
	for _, v := range vizTypes {
		wanted[v] = true
	}
	var out []types.Slice
	for _, row := range m.rows {
		if row.ID > afterID && wanted[row.VizType] && row.QueryContext != nil && *row.QueryContext != "" {
			out = append(out, row)
		}
	}
	return out
}

func (m *memoryRows) PageWithQueryContext(_ context.Context, vizTypes []string, afterID int64, limit int) ([]types.Slice, error) {
	rows := m.matching(vizTypes, afterID)
	if len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

func (m *memoryRows) CountWithQueryContext(_ context.Context, vizTypes []string, afterID int64) (int64, error) {
	return int64(len(m.matching(vizTypes, afterID))), nil
}

func ptr(s string) *string { return &s }

// currentQueryContext returns what the chart would store today.
func currentQueryContext(t *testing.T, vizType, params string) *string {
	t.Helper()
	blob, err := formdata.Decode(vizType, params)
	require.NoError(t, err)
	payload, err := migrateviz.BuildRegistry().QueryContext(blob)
	require.NoError(t, err)
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	return ptr(string(data))
}

func readReport(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.NotEmpty(t, records)
	assert.Equal(t, reportHeader, records[0])
	return records[1:]
}

func fixture(t *testing.T) *memoryRows {
	matching := `{"metrics": ["count"], "groupby": ["region"]}`
	return &memoryRows{rows: []types.Slice{
		{ID: 1, VizType: "treemap", Params: `{"metrics": ["count"]}`, QueryContext: ptr(`{"queries": [{"metrics": []}]}`)},
		{ID: 2, VizType: "treemap", Params: matching, QueryContext: currentQueryContext(t, "treemap", matching)},
		{ID: 3, VizType: "treemap", Params: `{"metrics": ["count"]}`, QueryContext: ptr("")},
		{ID: 4, VizType: "pie", Params: `{}`, QueryContext: ptr(`{"queries": []}`)},
		{ID: 5, VizType: "sunburst_v2", Params: `{"columns": ["a"], "metric": "m"}`, QueryContext: ptr(`{"queries": NaN`)},
	}}
}

func newReconciler(rows SliceReader, dir string, at time.Time) *Reconciler {
	return &Reconciler{
		Rows:      rows,
		Registry:  migrateviz.BuildRegistry(),
		Dir:       dir,
		BatchSize: 2,
		Now:       func() time.Time { return at },
	}
}

func TestReconcilerReportsMismatch(t *testing.T) {
	t.Setenv("NO_PROGRESS", "1")
	dir := t.TempDir()
	at := time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)

	result, err := newReconciler(fixture(t), dir, at).Run(context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, 3, result.Checked)
	assert.Equal(t, 1, result.Mismatches)
	assert.Equal(t, 1, result.Errors)
	assert.Contains(t, result.ReportPath, "query_context_20240301_123000.csv")

	records := readReport(t, result.ReportPath)
	require.Len(t, records, 2)

	mismatch := records[0]
	assert.Equal(t, "1", mismatch[0])
	assert.Equal(t, "treemap", mismatch[1])
	var generated []map[string]any
	require.NoError(t, json.Unmarshal([]byte(mismatch[2]), &generated))
	require.Len(t, generated, 1)
	assert.Equal(t, []any{"count"}, generated[0]["metrics"])
	assert.Equal(t, `[{}]`, mismatch[3])

	failed := records[1]
	assert.Equal(t, "5", failed[0])
	assert.Contains(t, failed[2], "stored query_context")
}

func TestReconcilerIsDeterministic(t *testing.T) {
	t.Setenv("NO_PROGRESS", "1")
	dir := t.TempDir()
	rows := fixture(t)

	first, err := newReconciler(rows, dir, time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)).Run(context.Background(), nil)
	require.NoError(t, err)
	second, err := newReconciler(rows, dir, time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)).Run(context.Background(), nil)
	require.NoError(t, err)

	assert.NotEqual(t, first.ReportPath, second.ReportPath)
	a, err := os.ReadFile(first.ReportPath)
	require.NoError(t, err)
	b, err := os.ReadFile(second.ReportPath)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

func TestReconcilerSingleRow(t *testing.T) {
	t.Setenv("NO_PROGRESS", "1")
	rows := fixture(t)

	id := int64(2)
	result, err := newReconciler(rows, t.TempDir(), time.Now()).Run(context.Background(), &id)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Checked)
	assert.Zero(t, result.Mismatches)
	assert.Empty(t, readReport(t, result.ReportPath))

	id = 3
	result, err = newReconciler(rows, t.TempDir(), time.Now()).Run(context.Background(), &id)
	require.NoError(t, err)
	assert.Zero(t, result.Checked)

	id = 4
	_, err = newReconciler(rows, t.TempDir(), time.Now()).Run(context.Background(), &id)
	assert.ErrorIs(t, err, migrateviz.ErrUnknownVizType)

	id = 99
	_, err = newReconciler(rows, t.TempDir(), time.Now()).Run(context.Background(), &id)
	assert.Error(t, err)
}

func TestStableStack(t *testing.T) {
	stack := []byte(`goroutine 42 [running]:
runtime/debug.Stack()
	/usr/local/go/src/runtime/debug/stack.go:26 +0x5e
vizmigrate/internal/migrateviz.(*Registry).QueryContext(0xc0001a2000, 0xc00012e0f0)
	/src/internal/migrateviz/query.go:40 +0x1c5
panic({0x6b3a40?, 0xc000014120?})
	/usr/local/go/src/runtime/panic.go:785 +0x132
created by testing.(*T).Run in goroutine 1
	/usr/local/go/src/testing/testing.go:1742 +0x390
`)

	assert.Equal(t, `runtime/debug.Stack
	/usr/local/go/src/runtime/debug/stack.go:26
vizmigrate/internal/migrateviz.(*Registry).QueryContext
	/src/internal/migrateviz/query.go:40
panic
	/usr/local/go/src/runtime/panic.go:785
created by testing.(*T).Run
	/usr/local/go/src/testing/testing.go:1742`, stableStack(stack))
}

func TestPanicErrorTextIsStable(t *testing.T) {
	capture := func(v *int) error {
		return &panicError{value: *v, stack: debug.Stack()}
	}

	texts := make([]string, 2)
	var wg sync.WaitGroup
	for i := range texts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n := 7
			texts[i] = errorText(capture(&n))
		}()
	}
	wg.Wait()

	assert.Equal(t, texts[0], texts[1])
	assert.NotContains(t, texts[0], "goroutine ")
	assert.NotContains(t, texts[0], "0xc0")
	assert.Contains(t, texts[0], "panic: 7")
}
