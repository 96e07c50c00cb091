// Package migrateviz rewrites saved chart params from retired chart types to
// their replacements and back.
package migrateviz

import (
	"fmt"

	"vizmigrate/internal/formdata"
)

// Rename moves the value stored under From to To.
type Rename struct {
	From string
	To   string
}

// Recipe is the declarative half of a transformer.
type Recipe struct {
	Source string
	Target string
	// AltTargets are other types a pre hook may retarget the chart to.
	AltTargets []string

	RemoveKeys []string
	RenameKeys []Rename

	// HasXAxisControl promotes granularity_sqla/time_range into an explicit
	// x_axis and temporal adhoc filter.
	HasXAxisControl bool
	// MirrorFiltersB copies adhoc_filters to adhoc_filters_b for charts with a
	// second query.
	MirrorFiltersB bool
}

// Targets returns every type the recipe can produce.
func (r Recipe) Targets() []string {
	return append([]string{r.Target}, r.AltTargets...)
}

func (r Recipe) producesType(vizType string) bool {
	for _, t := range r.Targets() {
		if t == vizType {
			return true
		}
	}
	return false
}

// Validate checks the recipe's static invariants.
func (r Recipe) Validate() error {
	if r.Source == "" || r.Target == "" {
		return fmt.Errorf("recipe needs a source and a target type")
	}
	for _, t := range r.Targets() {
		if t == r.Source {
			return fmt.Errorf("%s: target type equals source type", r.Source)
		}
	}
	removed := make(map[string]bool, len(r.RemoveKeys))
	for _, k := range r.RemoveKeys {
		removed[k] = true
	}
	seen := make(map[string]bool, len(r.RenameKeys))
	for _, rn := range r.RenameKeys {
		if rn.From == "" || rn.To == "" {
			return fmt.Errorf("%s: empty rename key", r.Source)
		}
		if removed[rn.From] {
			return fmt.Errorf("%s: key %q is both removed and renamed", r.Source, rn.From)
		}
		if seen[rn.From] {
			return fmt.Errorf("%s: key %q renamed twice", r.Source, rn.From)
		}
		seen[rn.From] = true
	}
	return nil
}

// Migration is the working state handed to hooks.
type Migration struct {
	*formdata.Blob

	// Target is the type the chart ends up as. Pre hooks may switch it to one
	// of the recipe's AltTargets.
	Target string

	overwrites map[string]bool
}

// Overwrite stores value under a rename target key, marking it as intended so
// the declarative rename drops the value it would have moved there.
func (m *Migration) Overwrite(key string, value any) {
	if m.overwrites == nil {
		m.overwrites = make(map[string]bool)
	}
	m.overwrites[key] = true
	m.Set(key, value)
}

// Transformer migrates one chart type. Hooks run around the declarative
// remove/rename pass described by Recipe.
type Transformer interface {
	Recipe() Recipe
	Pre(m *Migration) error
	Post(m *Migration) error
	DowngradePre(m *Migration) error
	DowngradePost(m *Migration) error
}

// Hooks is embedded by transformers that leave some hooks empty.
type Hooks struct{}

func (Hooks) Pre(*Migration) error           { return nil }
func (Hooks) Post(*Migration) error          { return nil }
func (Hooks) DowngradePre(*Migration) error  { return nil }
func (Hooks) DowngradePost(*Migration) error { return nil }
