package migrateviz

import (
	"github.com/sirupsen/logrus"

	"vizmigrate/internal/dialect"
	"vizmigrate/internal/formdata"
)

// TreeMap migrates treemap to treemap_v2.
type TreeMap struct{ Hooks }

func (TreeMap) Recipe() Recipe {
	return Recipe{
		Source:     "treemap",
		Target:     "treemap_v2",
		RemoveKeys: []string{"metrics"},
		RenameKeys: []Rename{{"order_desc", "sort_by_metric"}},
	}
}

// Pre keeps the first metric; treemap_v2 takes a single one.
func (TreeMap) Pre(m *Migration) error {
	if metrics, ok := m.Value("metrics").([]any); ok && len(metrics) > 0 {
		m.Set("metric", metrics[0])
	}
	return nil
}

// PivotTable migrates pivot_table to pivot_table_v2.
type PivotTable struct{ Hooks }

var pivotAggregations = map[string]string{
	"sum":    "Sum",
	"mean":   "Average",
	"median": "Median",
	"min":    "Minimum",
	"max":    "Maximum",
	"std":    "Sample Standard Deviation",
	"var":    "Sample Variance",
}

func (PivotTable) Recipe() Recipe {
	return Recipe{
		Source:     "pivot_table",
		Target:     "pivot_table_v2",
		RemoveKeys: []string{"pivot_margins"},
		RenameKeys: []Rename{
			{"columns", "groupbyColumns"},
			{"combine_metric", "combineMetric"},
			{"groupby", "groupbyRows"},
			{"number_format", "valueFormat"},
			{"pandas_aggfunc", "aggregateFunction"},
			{"row_limit", "series_limit"},
			{"timeseries_limit_metric", "series_limit_metric"},
			{"transpose_pivot", "transposePivot"},
		},
	}
}

func (PivotTable) Pre(m *Migration) error {
	if margins := m.Value("pivot_margins"); formdata.Truthy(margins) {
		m.Set("colTotals", margins)
		m.Set("colSubTotals", margins)
	}

	if fn, ok := m.Value("pandas_aggfunc").(string); ok {
		if mapped, ok := pivotAggregations[fn]; ok {
			m.Set("pandas_aggfunc", mapped)
		}
	}

	// order_desc is not consulted; rows are always sorted by value, descending.
	m.Set("rowOrder", "value_z_to_a")
	return nil
}

// DualLine migrates dual_line to mixed_timeseries.
type DualLine struct{ Hooks }

func (DualLine) Recipe() Recipe {
	return Recipe{
		Source:     "dual_line",
		Target:     "mixed_timeseries",
		RemoveKeys: []string{"metric", "metric_2"},
		RenameKeys: []Rename{
			{"x_axis_format", "x_axis_time_format"},
			{"y_axis_2_format", "y_axis_format_secondary"},
			{"y_axis_2_bounds", "y_axis_bounds_secondary"},
		},
		HasXAxisControl: true,
		MirrorFiltersB:  true,
	}
}

func (DualLine) Pre(m *Migration) error {
	m.Set("metrics", singleton(m.Value("metric")))
	m.Set("metrics_b", singleton(m.Value("metric_2")))
	m.Set("yAxisIndex", 0)
	m.Set("yAxisIndexB", 1)
	m.Set("truncateYAxis", true)
	return nil
}

// Sunburst migrates sunburst to sunburst_v2.
type Sunburst struct{ Hooks }

func (Sunburst) Recipe() Recipe {
	return Recipe{
		Source:     "sunburst",
		Target:     "sunburst_v2",
		RenameKeys: []Rename{{"groupby", "columns"}},
	}
}

// Post flags charts that relied on the legacy renderer colouring by the
// primary metric when no secondary metric was chosen.
func (Sunburst) Post(m *Migration) error {
	if !formdata.Truthy(m.Value("secondary_metric")) {
		logrus.WithFields(logrus.Fields{
			"viz_type": "sunburst",
			"metric":   m.Value("metric"),
		}).Warn("sunburst has no secondary_metric; colouring falls back to the renderer default")
	}
	return nil
}

// timeseries holds the behaviour shared by the NVD3 line and area charts.
type timeseries struct{ Hooks }

func timeseriesRecipe(source, target string, alt []string, remove ...string) Recipe {
	return Recipe{
		Source:     source,
		Target:     target,
		AltTargets: alt,
		RemoveKeys: append([]string{
			"contribution",
			"line_interpolation",
			"reduce_x_ticks",
			"show_brush",
			"show_markers",
		}, remove...),
		RenameKeys: []Rename{
			{"bottom_margin", "x_axis_title_margin"},
			{"left_margin", "y_axis_title_margin"},
			{"show_controls", "show_extra_controls"},
			{"x_axis_label", "x_axis_title"},
			{"x_axis_format", "x_axis_time_format"},
			{"x_axis_showminmax", "truncateXAxis"},
			{"x_ticks_layout", "xAxisLabelRotation"},
			{"y_axis_label", "y_axis_title"},
			{"y_axis_showminmax", "truncateYAxis"},
			{"y_log_scale", "logAxis"},
		},
		HasXAxisControl: true,
	}
}

func (timeseries) Pre(m *Migration) error {
	if formdata.Truthy(m.Value("contribution")) {
		m.Set("contributionMode", "row")
	} else {
		m.Set("contributionMode", nil)
	}
	m.Set("zoomable", m.Value("show_brush") == "yes")
	if markers := m.Value("show_markers"); formdata.Truthy(markers) {
		m.Set("markerEnabled", markers)
	} else {
		m.Set("markerEnabled", false)
	}
	m.Set("y_axis_showminmax", true)

	defaultMargin(m, "x_axis_label", "bottom_margin")
	defaultMargin(m, "y_axis_label", "left_margin")

	if m.Value("rolling_type") == "None" {
		m.Delete("rolling_type")
	}

	if compare := m.Value("time_compare"); formdata.Truthy(compare) {
		m.Set("time_compare", agoSuffixed(compare))
	}

	switch comparison := m.Value("comparison_type"); {
	case !formdata.Truthy(comparison):
		m.Set("comparison_type", "values")
	case comparison == "absolute":
		m.Set("comparison_type", "difference")
	}

	rotateTicks(m)

	if grain, ok := m.Value("time_grain_sqla").(string); ok && grain != "" {
		if dialect.Impala.Supports(grain) {
			// The raw time column has no duration.
			if d := dialect.Impala.NormalizeGrain(grain); d != "" {
				m.Set("time_grain_sqla", d)
			} else {
				m.Set("time_grain_sqla", nil)
			}
		} else {
			logrus.WithField("time_grain_sqla", grain).Debug("Time grain kept as stored")
		}
	}
	return nil
}

// LineChart migrates line to one of the echarts time-series line types,
// depending on its interpolation.
type LineChart struct{ timeseries }

func (LineChart) Recipe() Recipe {
	return timeseriesRecipe("line", "echarts_timeseries_line",
		[]string{"echarts_timeseries_smooth", "echarts_timeseries_step"})
}

func (l LineChart) Pre(m *Migration) error {
	if err := l.timeseries.Pre(m); err != nil {
		return err
	}
	switch m.Value("line_interpolation") {
	case "cardinal":
		m.Target = "echarts_timeseries_smooth"
	case "step-before":
		m.Target = "echarts_timeseries_step"
		m.Set("seriesType", "start")
	case "step-after":
		m.Target = "echarts_timeseries_step"
		m.Set("seriesType", "end")
	}
	return nil
}

// AreaChart migrates area to echarts_area.
type AreaChart struct{ timeseries }

var stackedStyles = map[string]string{
	"expand": "Expand",
	"stack":  "Stack",
	"stream": "Stream",
}

func (AreaChart) Recipe() Recipe {
	return timeseriesRecipe("area", "echarts_area", nil, "stacked_style")
}

func (a AreaChart) Pre(m *Migration) error {
	if err := a.timeseries.Pre(m); err != nil {
		return err
	}
	stack, ok := stackedStyles[m.GetString("stacked_style")]
	if !ok {
		stack = "Stack"
	}
	m.Set("stack", stack)
	m.Set("opacity", 0.7)
	return nil
}

// BubbleChart migrates bubble to bubble_v2.
type BubbleChart struct{ Hooks }

func (BubbleChart) Recipe() Recipe {
	return Recipe{
		Source:     "bubble",
		Target:     "bubble_v2",
		RemoveKeys: []string{"x_axis_showminmax"},
		RenameKeys: []Rename{
			{"bottom_margin", "x_axis_title_margin"},
			{"left_margin", "y_axis_title_margin"},
			{"limit", "row_limit"},
			{"x_axis_format", "xAxisFormat"},
			{"x_log_scale", "logXAxis"},
			{"x_ticks_layout", "xAxisLabelRotation"},
			{"y_axis_showminmax", "truncateYAxis"},
			{"y_log_scale", "logYAxis"},
		},
	}
}

func (BubbleChart) Pre(m *Migration) error {
	defaultMargin(m, "x_axis_label", "bottom_margin")
	rotateTicks(m)
	m.Set("y_axis_showminmax", true)
	return nil
}

// defaultMargin gives a titled axis room for its title when the margin was
// left to the renderer.
func defaultMargin(m *Migration, labelKey, marginKey string) {
	if !formdata.Truthy(m.Value(labelKey)) {
		return
	}
	margin := m.Value(marginKey)
	if !formdata.Truthy(margin) || margin == "auto" {
		m.Set(marginKey, 30)
	}
}

func rotateTicks(m *Migration) {
	layout := m.Value("x_ticks_layout")
	if !formdata.Truthy(layout) {
		return
	}
	if layout == "45°" {
		m.Set("x_ticks_layout", 45)
	} else {
		m.Set("x_ticks_layout", 0)
	}
}

func agoSuffixed(v any) []any {
	out := []any{}
	for _, item := range formdata.AsList(v) {
		if s, ok := item.(string); ok && s != "" {
			out = append(out, s+" ago")
		}
	}
	return out
}

func singleton(v any) []any {
	if v == nil {
		return []any{}
	}
	return []any{v}
}
