// Package dialect carries the SQL dialect details chart migrations need for
// time grains.
package dialect

import (
	"fmt"
	"strings"
)

// Grain is one time bucket a dialect can truncate a timestamp to.
type Grain struct {
	// Duration is the ISO-8601 identifier stored in time_grain_sqla.
	Duration string
	// Name is the label older charts stored instead of the duration.
	Name       string
	Expression string
}

// Engine is a SQL dialect's time-grain table.
type Engine struct {
	Name   string
	grains []Grain
}

// Impala is the Cloudera Impala dialect.
var Impala = Engine{
	Name: "impala",
	grains: []Grain{
		{Duration: "", Name: "Time Column", Expression: "{col}"},
		{Duration: "PT1M", Name: "minute", Expression: "TRUNC({col}, 'MI')"},
		{Duration: "PT1H", Name: "hour", Expression: "TRUNC({col}, 'HH')"},
		{Duration: "P1D", Name: "day", Expression: "TRUNC({col}, 'DD')"},
		{Duration: "P1W", Name: "week", Expression: "TRUNC({col}, 'WW')"},
		{Duration: "P1M", Name: "month", Expression: "TRUNC({col}, 'MONTH')"},
		{Duration: "P3M", Name: "quarter", Expression: "TRUNC({col}, 'Q')"},
		{Duration: "P1Y", Name: "year", Expression: "TRUNC({col}, 'YYYY')"},
	},
}

// Grains returns the dialect's grains in ascending size.
func (e Engine) Grains() []Grain {
	return append([]Grain(nil), e.grains...)
}

func (e Engine) lookup(grain string) (Grain, bool) {
	for _, g := range e.grains {
		if grain == g.Duration || strings.EqualFold(grain, g.Name) {
			return g, true
		}
	}
	return Grain{}, false
}

// NormalizeGrain maps a legacy grain name to its ISO-8601 duration. Values the
// dialect does not know are returned unchanged.
func (e Engine) NormalizeGrain(grain string) string {
	if g, ok := e.lookup(grain); ok {
		return g.Duration
	}
	return grain
}

// Supports reports whether grain is a known duration or legacy name.
func (e Engine) Supports(grain string) bool {
	_, ok := e.lookup(grain)
	return ok
}

// TimeGrainExpression returns the SQL truncating col to grain.
func (e Engine) TimeGrainExpression(col, grain string) (string, error) {
	g, ok := e.lookup(grain)
	if !ok {
		return "", fmt.Errorf("%s: unsupported time grain %q", e.Name, grain)
	}
	return strings.ReplaceAll(g.Expression, "{col}", col), nil
}
