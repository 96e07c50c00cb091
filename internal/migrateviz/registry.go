package migrateviz

import (
	"fmt"
	"sort"
)

// Registry maps legacy chart types to their transformer, and every type a
// transformer produces back to it. It is read-only once built.
type Registry struct {
	bySource map[string]Transformer
	byTarget map[string]Transformer
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		bySource: make(map[string]Transformer),
		byTarget: make(map[string]Transformer),
	}
}

// BuildRegistry registers every shipped recipe.
func BuildRegistry() *Registry {
	r := NewRegistry()
	for _, t := range []Transformer{
		AreaChart{},
		BubbleChart{},
		DualLine{},
		LineChart{},
		PivotTable{},
		Sunburst{},
		TreeMap{},
	} {
		if err := r.Register(t); err != nil {
			panic(err)
		}
	}
	return r
}

// Register adds t after validating its recipe.
func (r *Registry) Register(t Transformer) error {
	recipe := t.Recipe()
	if err := recipe.Validate(); err != nil {
		return err
	}
	if _, dup := r.bySource[recipe.Source]; dup {
		return fmt.Errorf("source type %q already registered", recipe.Source)
	}
	for _, target := range recipe.Targets() {
		if _, dup := r.byTarget[target]; dup {
			return fmt.Errorf("target type %q already registered", target)
		}
		if _, clash := r.bySource[target]; clash {
			return fmt.Errorf("target type %q is a registered source type", target)
		}
	}
	if _, clash := r.byTarget[recipe.Source]; clash {
		return fmt.Errorf("source type %q is a registered target type", recipe.Source)
	}

	r.bySource[recipe.Source] = t
	for _, target := range recipe.Targets() {
		r.byTarget[target] = t
	}
	return nil
}

// BySource returns the transformer migrating from vizType.
func (r *Registry) BySource(vizType string) (Transformer, bool) {
	t, ok := r.bySource[vizType]
	return t, ok
}

// ByTarget returns the transformer that produces vizType.
func (r *Registry) ByTarget(vizType string) (Transformer, bool) {
	t, ok := r.byTarget[vizType]
	return t, ok
}

// Lookup resolves the transformer for a source type, returning
// ErrUnknownVizType for anything else.
func (r *Registry) Lookup(vizType string) (Transformer, error) {
	t, ok := r.bySource[vizType]
	if !ok {
		return nil, fmt.Errorf("%w: %q (known: %v)", ErrUnknownVizType, vizType, r.SourceTypes())
	}
	return t, nil
}

// SourceTypes returns the legacy types in sorted order.
func (r *Registry) SourceTypes() []string {
	return sortedKeys(r.bySource)
}

// TargetTypes returns every produced type in sorted order.
func (r *Registry) TargetTypes() []string {
	return sortedKeys(r.byTarget)
}

// Types returns every source and target type in sorted order.
func (r *Registry) Types() []string {
	types := append(r.SourceTypes(), r.TargetTypes()...)
	sort.Strings(types)
	return types
}

// Contains reports whether vizType is a source or target type.
func (r *Registry) Contains(vizType string) bool {
	_, src := r.bySource[vizType]
	_, dst := r.byTarget[vizType]
	return src || dst
}

// MatchTypes returns the row types a batch in direction d must visit. A
// downgrade also visits source-typed rows so that downgrading them again is
// reported instead of skipped.
func MatchTypes(t Transformer, d Direction) []string {
	recipe := t.Recipe()
	if d == Downgrade {
		return append(recipe.Targets(), recipe.Source)
	}
	return []string{recipe.Source}
}

func sortedKeys(m map[string]Transformer) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
