package migrateviz

import (
	"vizmigrate/internal/formdata"
)

const (
	// TemporalRange is the adhoc filter operator for a time range predicate.
	TemporalRange = "TEMPORAL_RANGE"
	// NoFilter is the time range applied when a chart stored none.
	NoFilter = "No filter"
)

// TemporalFilter is an explicit time predicate on one column.
type TemporalFilter struct {
	Column     string
	Comparator string
}

// AdhocFilter renders the filter the way charts store it in adhoc_filters.
func (f TemporalFilter) AdhocFilter() map[string]any {
	return map[string]any{
		"clause":         "WHERE",
		"subject":        f.Column,
		"operator":       TemporalRange,
		"comparator":     f.Comparator,
		"expressionType": "SIMPLE",
	}
}

// promoteTemporalFilter turns the datasource-level time column and range into
// an explicit x_axis and a TEMPORAL_RANGE adhoc filter. Existing temporal
// filters are kept; the new one is appended.
func promoteTemporalFilter(b *formdata.Blob, mirror bool) {
	granularity, _ := b.Delete("granularity_sqla")
	timeRange, _ := b.Delete("time_range")

	if list, ok := granularity.([]any); ok {
		granularity = nil
		if len(list) > 0 {
			granularity = list[0]
		}
	}

	if column, ok := granularity.(string); ok && column != "" {
		comparator, _ := timeRange.(string)
		if comparator == "" {
			comparator = NoFilter
		}
		b.Set("x_axis", column)

		filters := adhocFilters(b.Value("adhoc_filters"))
		filters = append(filters, TemporalFilter{Column: column, Comparator: comparator}.AdhocFilter())
		b.Set("adhoc_filters", filters)
	}

	if mirror {
		b.Set("adhoc_filters_b", adhocFilters(b.Value("adhoc_filters")))
	}
}

func adhocFilters(v any) []any {
	if list, ok := v.([]any); ok {
		return append([]any{}, list...)
	}
	return []any{}
}
