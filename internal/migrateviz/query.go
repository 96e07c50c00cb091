package migrateviz

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"vizmigrate/internal/dialect"
	"vizmigrate/internal/formdata"
)

// ErrNoQueryBuilder is returned for types whose query payload cannot be synthesised.
var ErrNoQueryBuilder = errors.New("no query builder for viz type")

type queryBuilder func(b *formdata.Blob) []any

var queryBuilders = map[string]queryBuilder{
	"treemap_v2":                buildTreeMapQuery,
	"pivot_table_v2":            buildPivotQuery,
	"mixed_timeseries":          buildMixedTimeseriesQuery,
	"sunburst_v2":               buildSunburstQuery,
	"echarts_timeseries_line":   buildTimeseriesQuery,
	"echarts_timeseries_smooth": buildTimeseriesQuery,
	"echarts_timeseries_step":   buildTimeseriesQuery,
	"echarts_area":              buildTimeseriesQuery,
	"bubble_v2":                 buildBubbleQuery,
}

// QueryContext synthesises the query payload the current renderer of cfg's
// chart would send. Legacy types are upgraded on a copy first; cfg itself is
// never modified.
func (r *Registry) QueryContext(cfg *formdata.Blob) (map[string]any, error) {
	blob := cfg
	if t, ok := r.BySource(cfg.Type); ok {
		clone, err := cfg.Clone()
		if err != nil {
			return nil, err
		}
		if err := UpgradeBlob(t, clone); err != nil {
			return nil, err
		}
		blob = clone
	} else if !r.Contains(cfg.Type) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownVizType, cfg.Type)
	}

	build, ok := queryBuilders[blob.Type]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNoQueryBuilder, blob.Type)
	}

	formData := make(map[string]any, blob.Params.Len())
	for pair := blob.Params.Oldest(); pair != nil; pair = pair.Next() {
		if pair.Key != formdata.BackupKey {
			formData[pair.Key] = pair.Value
		}
	}

	return map[string]any{
		"datasource":    datasourceRef(blob.Value("datasource")),
		"force":         false,
		"queries":       build(blob),
		"form_data":     formData,
		"result_format": "json",
		"result_type":   "full",
	}, nil
}

// datasourceRef splits the "<id>__<type>" datasource key.
func datasourceRef(v any) map[string]any {
	key, _ := v.(string)
	id, kind, found := strings.Cut(key, "__")
	if !found {
		return map[string]any{}
	}
	ref := map[string]any{"type": kind}
	if n, err := strconv.Atoi(id); err == nil {
		ref["id"] = n
	} else {
		ref["id"] = id
	}
	return ref
}

func baseQuery(b *formdata.Blob, filtersKey string) map[string]any {
	filters, where, having := splitAdhocFilters(b.Value(filtersKey))

	granularity := b.Value("granularity_sqla")
	if !formdata.Truthy(granularity) {
		granularity = b.Value("granularity")
	}

	q := map[string]any{
		"time_range":  b.Value("time_range"),
		"granularity": granularity,
		"filters":     filters,
		"extras": map[string]any{
			"having":          having,
			"where":           where,
			"time_grain_sqla": timeGrain(b),
		},
		"applied_time_extras": map[string]any{},
		"columns":             []any{},
		"metrics":             []any{},
		"orderby":             []any{},
		"annotation_layers":   formdata.AsList(b.Value("annotation_layers")),
		"series_limit":        0,
		"order_desc":          formdata.Truthy(b.Value("order_desc")),
		"url_params":          mapOrEmpty(b.Value("url_params")),
		"custom_params":       map[string]any{},
		"custom_form_data":    map[string]any{},
	}
	if n, ok := formdata.AsInt(b.Value("row_limit")); ok {
		q["row_limit"] = n
	}
	return q
}

func timeGrain(b *formdata.Blob) any {
	grain, ok := b.Value("time_grain_sqla").(string)
	if !ok || grain == "" {
		return nil
	}
	if d := dialect.Impala.NormalizeGrain(grain); d != "" {
		return d
	}
	return nil
}

// splitAdhocFilters turns adhoc filters into simple filters plus the
// free-form WHERE and HAVING clauses.
func splitAdhocFilters(v any) ([]any, string, string) {
	filters := []any{}
	var where, having []string
	list, _ := v.([]any)
	for _, item := range list {
		f, ok := item.(map[string]any)
		if !ok {
			continue
		}
		clause, _ := f["clause"].(string)
		switch f["expressionType"] {
		case "SIMPLE":
			if clause != "" && clause != "WHERE" {
				continue
			}
			filter := map[string]any{"col": f["subject"], "op": f["operator"]}
			if val, ok := f["comparator"]; ok && val != nil {
				filter["val"] = val
			}
			filters = append(filters, filter)
		case "SQL":
			sql, _ := f["sqlExpression"].(string)
			if sql == "" {
				continue
			}
			if clause == "HAVING" {
				having = append(having, "("+sql+")")
			} else {
				where = append(where, "("+sql+")")
			}
		}
	}
	return filters, strings.Join(where, " AND "), strings.Join(having, " AND ")
}

func buildTreeMapQuery(b *formdata.Blob) []any {
	q := baseQuery(b, "adhoc_filters")
	metric := b.Value("metric")
	q["columns"] = formdata.AsList(b.Value("groupby"))
	q["metrics"] = singleton(metric)
	if formdata.Truthy(b.Value("sort_by_metric")) && metric != nil {
		q["orderby"] = []any{[]any{metric, false}}
	}
	return []any{q}
}

func buildPivotQuery(b *formdata.Blob) []any {
	q := baseQuery(b, "adhoc_filters")
	columns := []any{}
	seen := map[string]bool{}
	for _, col := range append(formdata.AsList(b.Value("groupbyColumns")), formdata.AsList(b.Value("groupbyRows"))...) {
		label := columnLabel(col)
		if seen[label] {
			continue
		}
		seen[label] = true
		columns = append(columns, col)
	}
	q["columns"] = columns
	q["metrics"] = formdata.AsList(b.Value("metrics"))
	if n, ok := formdata.AsInt(b.Value("series_limit")); ok {
		q["series_limit"] = n
	}
	if m := b.Value("series_limit_metric"); formdata.Truthy(m) {
		q["orderby"] = []any{[]any{m, !formdata.Truthy(b.Value("order_desc"))}}
	}
	return []any{q}
}

func buildSunburstQuery(b *formdata.Blob) []any {
	q := baseQuery(b, "adhoc_filters")
	metric := b.Value("metric")
	metrics := singleton(metric)
	if secondary := b.Value("secondary_metric"); formdata.Truthy(secondary) && metricLabel(secondary) != metricLabel(metric) {
		metrics = append(metrics, secondary)
	}
	q["columns"] = formdata.AsList(b.Value("columns"))
	q["metrics"] = metrics
	if metric != nil {
		q["orderby"] = []any{[]any{metric, false}}
	}
	return []any{q}
}

func buildBubbleQuery(b *formdata.Blob) []any {
	q := baseQuery(b, "adhoc_filters")
	columns := []any{}
	for _, key := range []string{"entity", "series"} {
		if v := b.Value(key); formdata.Truthy(v) {
			columns = append(columns, v)
		}
	}
	metrics := []any{}
	for _, key := range []string{"x", "y", "size"} {
		if v := b.Value(key); formdata.Truthy(v) {
			metrics = append(metrics, v)
		}
	}
	q["columns"] = columns
	q["metrics"] = metrics
	if orderby := b.Value("orderby"); formdata.Truthy(orderby) {
		q["orderby"] = []any{[]any{orderby, !formdata.Truthy(b.Value("order_desc"))}}
	}
	return []any{q}
}

func buildTimeseriesQuery(b *formdata.Blob) []any {
	return []any{timeseriesQuery(b, "")}
}

func buildMixedTimeseriesQuery(b *formdata.Blob) []any {
	return []any{timeseriesQuery(b, ""), timeseriesQuery(b, "_b")}
}

// timeseriesQuery builds the query for one series set; suffix selects the
// secondary set of a mixed chart.
func timeseriesQuery(b *formdata.Blob, suffix string) map[string]any {
	q := baseQuery(b, "adhoc_filters"+suffix)
	xAxis := b.Value("x_axis")
	groupby := formdata.AsList(b.Value("groupby" + suffix))
	metrics := formdata.AsList(b.Value("metrics" + suffix))

	columns := []any{}
	if formdata.Truthy(xAxis) {
		columns = append(columns, baseAxisColumn(xAxis, timeGrain(b)))
	}
	columns = append(columns, groupby...)

	q["columns"] = columns
	q["metrics"] = metrics
	q["series_columns"] = groupby
	if n, ok := formdata.AsInt(b.Value("limit" + suffix)); ok {
		q["series_limit"] = n
	}
	if m := b.Value("timeseries_limit_metric" + suffix); formdata.Truthy(m) {
		q["series_limit_metric"] = m
		q["orderby"] = []any{[]any{m, !formdata.Truthy(b.Value("order_desc" + suffix))}}
	}
	if compare := b.Value("time_compare" + suffix); formdata.Truthy(compare) {
		q["time_offsets"] = formdata.AsList(compare)
	}
	q["post_processing"] = timeseriesPostProcessing(b, suffix, xAxis, groupby, metrics)
	return q
}

func baseAxisColumn(xAxis, grain any) map[string]any {
	col := map[string]any{"columnType": "BASE_AXIS", "timeGrain": grain}
	if adhoc, ok := xAxis.(map[string]any); ok {
		for k, v := range adhoc {
			col[k] = v
		}
		return col
	}
	col["expressionType"] = "SQL"
	col["sqlExpression"] = xAxis
	col["label"] = xAxis
	return col
}

func timeseriesPostProcessing(b *formdata.Blob, suffix string, xAxis any, groupby, metrics []any) []any {
	if !formdata.Truthy(xAxis) {
		return []any{}
	}

	labels := make([]any, 0, len(metrics))
	aggregates := map[string]any{}
	for _, m := range metrics {
		label := metricLabel(m)
		labels = append(labels, label)
		aggregates[label] = map[string]any{"operator": "mean"}
	}
	groupLabels := make([]any, 0, len(groupby))
	for _, g := range groupby {
		groupLabels = append(groupLabels, columnLabel(g))
	}

	ops := []any{map[string]any{
		"operation": "pivot",
		"options": map[string]any{
			"index":                []any{columnLabel(xAxis)},
			"columns":              groupLabels,
			"aggregates":           aggregates,
			"drop_missing_columns": !formdata.Truthy(b.Value("show_empty_columns" + suffix)),
		},
	}}

	if rolling, ok := b.Value("rolling_type" + suffix).(string); ok && rolling != "" && rolling != "None" {
		columns := map[string]any{}
		for _, l := range labels {
			columns[l.(string)] = l
		}
		ops = append(ops, map[string]any{
			"operation": "rolling",
			"options": map[string]any{
				"rolling_type": rolling,
				"window":       b.Value("rolling_periods" + suffix),
				"min_periods":  b.Value("min_periods" + suffix),
				"columns":      columns,
			},
		})
	}

	if mode := b.Value("contributionMode" + suffix); formdata.Truthy(mode) {
		ops = append(ops, map[string]any{
			"operation": "contribution",
			"options":   map[string]any{"orientation": mode},
		})
	}

	return append(ops, map[string]any{"operation": "flatten"})
}

// metricLabel mirrors how the renderer names a metric's result column.
func metricLabel(m any) string {
	switch t := m.(type) {
	case string:
		return t
	case map[string]any:
		if label, ok := t["label"].(string); ok && label != "" {
			return label
		}
		if t["expressionType"] == "SQL" {
			sql, _ := t["sqlExpression"].(string)
			return sql
		}
		agg, _ := t["aggregate"].(string)
		col, _ := t["column"].(map[string]any)
		name, _ := col["column_name"].(string)
		return fmt.Sprintf("%s(%s)", agg, name)
	default:
		return fmt.Sprint(m)
	}
}

func columnLabel(c any) string {
	switch t := c.(type) {
	case string:
		return t
	case map[string]any:
		if label, ok := t["label"].(string); ok && label != "" {
			return label
		}
		sql, _ := t["sqlExpression"].(string)
		return sql
	default:
		return fmt.Sprint(c)
	}
}

func mapOrEmpty(v any) map[string]any {
	if m, ok := v.(map[string]any); ok {
		return m
	}
	return map[string]any{}
}
