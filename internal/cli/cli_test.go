package cli

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"vizmigrate/internal/database"
	"vizmigrate/pkg/types"
)

type env struct {
	dir    string
	config string
	dbPath string
}

func newEnv(t *testing.T, rows ...types.Slice) *env {
	t.Helper()
	t.Setenv("NO_SPINNER", "1")
	t.Setenv("NO_PROGRESS", "1")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("LOG_PATH", "")

	dir := t.TempDir()
	e := &env{
		dir:    dir,
		config: filepath.Join(dir, "config.yaml"),
		dbPath: filepath.Join(dir, "meta.db"),
	}
	yaml := fmt.Sprintf(`version: "1"
database:
  type: sqlite
  path: %s
migration:
  batch_size: 2
report:
  dir: %s
processing:
  log_level: debug
  log_path: %s
`, e.dbPath, filepath.Join(dir, "reports"), filepath.Join(dir, "vizmigrate.log"))
	require.NoError(t, os.WriteFile(e.config, []byte(yaml), 0o644))

	if len(rows) > 0 {
		db := e.open(t)
		require.NoError(t, database.EnsureSchema(db))
		for i := range rows {
			require.NoError(t, database.NewSliceStore(db).Insert(context.Background(), &rows[i]))
		}
	}
	return e
}

func (e *env) open(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.Connect(&types.Database{Type: "sqlite", Path: e.dbPath})
	require.NoError(t, err)
	t.Cleanup(func() { database.CloseConnection(db) })
	return db
}

func (e *env) run(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), append(args, "--config", e.config), &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func (e *env) row(t *testing.T, id int64) *types.Slice {
	t.Helper()
	row, err := database.NewSliceStore(e.open(t)).Get(context.Background(), id)
	require.NoError(t, err)
	return row
}

func TestInfo(t *testing.T) {
	e := newEnv(t)
	code, out, _ := e.run(t, "info")

	assert.Equal(t, ExitOK, code)
	assert.Contains(t, out, "working_dir:")
	assert.Contains(t, out, "database: sqlite")
	assert.Contains(t, out, "-> treemap_v2")
	assert.Contains(t, out, "echarts_timeseries_line, echarts_timeseries_smooth, echarts_timeseries_step")
	assert.Contains(t, out, "TRUNC({col}, 'DD')")
}

func TestMigrateVizUpgradeAndDowngrade(t *testing.T) {
	e := newEnv(t,
		types.Slice{VizType: "treemap", Params: `{"metrics":["count"],"order_desc":true}`},
		types.Slice{VizType: "pie", Params: `{}`},
	)

	code, out, stderr := e.run(t, "migrate-viz", "upgrade", "--viz_type", "treemap")
	require.Equal(t, ExitOK, code, stderr)
	assert.Contains(t, out, "FINAL viz_type=treemap direction=upgrade processed=1 failed=0")
	assert.Contains(t, out, "Migrated treemap (upgrade): 1 processed, 0 skipped, 0 failed")
	assert.Equal(t, "treemap_v2", e.row(t, 1).VizType)
	assert.Equal(t, "pie", e.row(t, 2).VizType)

	code, out, stderr = e.run(t, "migrate-viz", "downgrade", "-t", "treemap")
	require.Equal(t, ExitOK, code, stderr)
	assert.Contains(t, out, "Migrated treemap (downgrade): 1 processed")
	restored := e.row(t, 1)
	assert.Equal(t, "treemap", restored.VizType)
	assert.Equal(t, `{"metrics":["count"],"order_desc":true}`, restored.Params)
}

func TestMigrateVizReportsRowFailures(t *testing.T) {
	e := newEnv(t, types.Slice{VizType: "treemap_v2", Params: `{"metric":"count"}`})

	code, out, _ := e.run(t, "migrate-viz", "downgrade", "--viz_type", "treemap")

	assert.Equal(t, ExitOK, code)
	assert.Contains(t, out, "0 processed, 0 skipped, 1 failed")
	assert.Contains(t, out, "slice 1 (treemap_v2) [downgrade_unsupported]")
	assert.Contains(t, out, "Failure details")
	assert.Contains(t, out, filepath.Join(e.dir, "vizmigrate.log"))
}

func TestMigrateVizDryRunFlag(t *testing.T) {
	e := newEnv(t, types.Slice{VizType: "sunburst", Params: `{"groupby":["a"]}`})

	code, out, stderr := e.run(t, "migrate-viz", "upgrade", "--viz_type", "sunburst", "--dry-run")
	require.Equal(t, ExitOK, code, stderr)
	assert.Contains(t, out, "[DRY RUN] Would migrate sunburst (upgrade): 1 processed")
	assert.Equal(t, "sunburst", e.row(t, 1).VizType)
}

func TestMigrateVizInitSchema(t *testing.T) {
	e := newEnv(t)

	code, out, stderr := e.run(t, "migrate-viz", "upgrade", "--viz_type", "line", "--init-schema")
	require.Equal(t, ExitOK, code, stderr)
	assert.Contains(t, out, "0 processed")
}

func TestMigrateVizValidation(t *testing.T) {
	e := newEnv(t)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"unknown type", []string{"migrate-viz", "upgrade", "--viz_type", "pie"}, "unknown viz type"},
		{"target type", []string{"migrate-viz", "upgrade", "--viz_type", "treemap_v2"}, "unknown viz type"},
		{"missing type", []string{"migrate-viz", "upgrade"}, "viz_type"},
		{"negative batch", []string{"migrate-viz", "upgrade", "--viz_type", "line", "--batch-size", "-1"}, "must not be negative"},
		{"bad id", []string{"generate-query-context", "run", "--id", "0"}, "--id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _, stderr := e.run(t, tt.args...)
			assert.Equal(t, ExitValidation, code)
			assert.Contains(t, stderr, tt.want)
		})
	}
}

func TestInvalidConfig(t *testing.T) {
	e := newEnv(t)
	require.NoError(t, os.WriteFile(e.config, []byte("database:\n  type: oracle\n"), 0o644))

	code, _, stderr := e.run(t, "migrate-viz", "upgrade", "--viz_type", "line")
	assert.Equal(t, ExitValidation, code)
	assert.Contains(t, stderr, "not supported")
}

func TestRenameCollisionIsFatal(t *testing.T) {
	e := newEnv(t,
		types.Slice{VizType: "bubble", Params: `{"limit":1}`},
		types.Slice{VizType: "bubble", Params: `{"limit":1,"row_limit":2}`},
	)

	code, _, stderr := e.run(t, "migrate-viz", "upgrade", "--viz_type", "bubble")

	assert.Equal(t, ExitFatal, code)
	assert.Contains(t, stderr, "FATAL:")
	assert.Contains(t, stderr, "rename")
	assert.Equal(t, "bubble", e.row(t, 1).VizType)
}

func TestGenerateQueryContext(t *testing.T) {
	stale := `{"queries": [{"metrics": []}]}`
	e := newEnv(t,
		types.Slice{VizType: "treemap", Params: `{"metrics":["count"]}`, QueryContext: &stale},
		types.Slice{VizType: "treemap", Params: `{"metrics":["count"]}`},
	)

	code, out, stderr := e.run(t, "generate-query-context", "run")
	require.Equal(t, ExitOK, code, stderr)
	assert.Contains(t, out, "Checked 1 slices: 1 mismatches, 0 errors")

	reports, err := filepath.Glob(filepath.Join(e.dir, "reports", "query_context_*.csv"))
	require.NoError(t, err)
	assert.Len(t, reports, 1)

	code, out, stderr = e.run(t, "generate-query-context", "run", "--id", "2")
	require.Equal(t, ExitOK, code, stderr)
	assert.Contains(t, out, "Checked 0 slices")
}
