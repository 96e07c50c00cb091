package migrateviz

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func queryContext(t *testing.T, vizType, params string) map[string]any {
	t.Helper()
	ctx, err := BuildRegistry().QueryContext(decode(t, vizType, params))
	require.NoError(t, err)
	return ctx
}

func firstQuery(t *testing.T, ctx map[string]any) map[string]any {
	t.Helper()
	queries, ok := ctx["queries"].([]any)
	require.True(t, ok)
	require.NotEmpty(t, queries)
	return queries[0].(map[string]any)
}

func TestQueryContextTreeMap(t *testing.T) {
	params := `{
		"datasource": "3__table",
		"metrics": ["count"],
		"groupby": ["region"],
		"order_desc": true,
		"row_limit": 10,
		"adhoc_filters": [
			{"clause": "WHERE", "subject": "a", "operator": "==", "comparator": "x", "expressionType": "SIMPLE"},
			{"clause": "HAVING", "sqlExpression": "SUM(x) > 1", "expressionType": "SQL"},
			{"clause": "WHERE", "sqlExpression": "b IS NOT NULL", "expressionType": "SQL"}
		]
	}`
	cfg := decode(t, "treemap", params)
	before := encode(t, cfg)

	ctx, err := BuildRegistry().QueryContext(cfg)
	require.NoError(t, err)

	assert.Equal(t, map[string]any{"type": "table", "id": 3}, ctx["datasource"])
	assert.Equal(t, "json", ctx["result_format"])
	assert.Equal(t, "full", ctx["result_type"])
	assert.NotContains(t, ctx["form_data"], "form_data_bak")

	q := firstQuery(t, ctx)
	assert.Equal(t, []any{"region"}, q["columns"])
	assert.Equal(t, []any{"count"}, q["metrics"])
	assert.Equal(t, []any{[]any{"count", false}}, q["orderby"])
	assert.Equal(t, 10, q["row_limit"])
	assert.Equal(t, []any{map[string]any{"col": "a", "op": "==", "val": "x"}}, q["filters"])
	extras := q["extras"].(map[string]any)
	assert.Equal(t, "(SUM(x) > 1)", extras["having"])
	assert.Equal(t, "(b IS NOT NULL)", extras["where"])

	assert.Equal(t, "treemap", cfg.Type)
	assert.Equal(t, before, encode(t, cfg))
}

func TestQueryContextTimeseries(t *testing.T) {
	ctx := queryContext(t, "line", `{
		"datasource": "1__table",
		"granularity_sqla": "ds",
		"time_range": "Last week",
		"time_grain_sqla": "day",
		"metrics": ["count"],
		"groupby": ["g"],
		"rolling_type": "mean",
		"rolling_periods": 7,
		"contribution": true
	}`)
	q := firstQuery(t, ctx)

	columns := q["columns"].([]any)
	require.Len(t, columns, 2)
	assert.Equal(t, map[string]any{
		"columnType":     "BASE_AXIS",
		"timeGrain":      "P1D",
		"expressionType": "SQL",
		"sqlExpression":  "ds",
		"label":          "ds",
	}, columns[0])
	assert.Equal(t, "g", columns[1])
	assert.Equal(t, []any{"g"}, q["series_columns"])
	assert.Equal(t, []any{map[string]any{"col": "ds", "op": TemporalRange, "val": "Last week"}}, q["filters"])

	var ops []string
	for _, op := range q["post_processing"].([]any) {
		ops = append(ops, op.(map[string]any)["operation"].(string))
	}
	assert.Equal(t, []string{"pivot", "rolling", "contribution", "flatten"}, ops)
}

func TestQueryContextTimeColumnGrain(t *testing.T) {
	ctx := queryContext(t, "line", `{"granularity_sqla": "ds", "time_grain_sqla": "Time Column", "metrics": ["count"]}`)
	axis := firstQuery(t, ctx)["columns"].([]any)[0].(map[string]any)
	assert.Nil(t, axis["timeGrain"])
}

func TestQueryContextMixedTimeseries(t *testing.T) {
	ctx := queryContext(t, "dual_line", `{"metric": "a", "metric_2": "b", "granularity_sqla": "ds"}`)
	queries := ctx["queries"].([]any)
	require.Len(t, queries, 2)

	assert.Equal(t, []any{"a"}, queries[0].(map[string]any)["metrics"])
	assert.Equal(t, []any{"b"}, queries[1].(map[string]any)["metrics"])
	assert.Equal(t, queries[0].(map[string]any)["filters"], queries[1].(map[string]any)["filters"])
}

func TestQueryContextAlreadyMigrated(t *testing.T) {
	ctx := queryContext(t, "sunburst_v2", `{"columns": ["a", "b"], "metric": "m", "secondary_metric": "s"}`)
	q := firstQuery(t, ctx)

	assert.Equal(t, []any{"a", "b"}, q["columns"])
	assert.Equal(t, []any{"m", "s"}, q["metrics"])
	assert.Equal(t, map[string]any{}, ctx["datasource"])
}

func TestQueryContextPivotDedupesColumns(t *testing.T) {
	q := firstQuery(t, queryContext(t, "pivot_table", `{"columns": ["a", "b"], "groupby": ["b", "c"], "metrics": ["m"]}`))
	assert.Equal(t, []any{"a", "b", "c"}, q["columns"])
}

func TestQueryContextBubble(t *testing.T) {
	q := firstQuery(t, queryContext(t, "bubble", `{"entity": "e", "series": "s", "x": "mx", "y": "my", "size": "ms", "limit": 5}`))
	assert.Equal(t, []any{"e", "s"}, q["columns"])
	assert.Equal(t, []any{"mx", "my", "ms"}, q["metrics"])
	assert.Equal(t, 5, q["row_limit"])
}

func TestQueryContextUnknownType(t *testing.T) {
	_, err := BuildRegistry().QueryContext(decode(t, "pie", `{}`))
	assert.ErrorIs(t, err, ErrUnknownVizType)
}

func TestQueryContextIsDeterministic(t *testing.T) {
	params := `{"metrics": ["x"], "groupby": ["g"], "pandas_aggfunc": "sum", "columns": ["c"]}`
	first, err := json.Marshal(queryContext(t, "pivot_table", params))
	require.NoError(t, err)
	second, err := json.Marshal(queryContext(t, "pivot_table", params))
	require.NoError(t, err)
	assert.Equal(t, string(first), string(second))
}
