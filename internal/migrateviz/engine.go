package migrateviz

import (
	"fmt"
	"runtime/debug"

	"vizmigrate/internal/formdata"
)

// Direction selects upgrade or downgrade.
type Direction string

const (
	Upgrade   Direction = "upgrade"
	Downgrade Direction = "downgrade"
)

// ParseDirection validates a direction name.
func ParseDirection(s string) (Direction, error) {
	switch Direction(s) {
	case Upgrade, Downgrade:
		return Direction(s), nil
	}
	return "", fmt.Errorf("unknown direction %q (upgrade, downgrade)", s)
}

// Apply runs t on cfg in direction d.
func (d Direction) Apply(t Transformer, cfg *formdata.Blob) error {
	if d == Downgrade {
		return DowngradeBlob(t, cfg)
	}
	return UpgradeBlob(t, cfg)
}

// UpgradeBlob migrates cfg from the recipe's source type to its target type.
// On error cfg is left unchanged.
func UpgradeBlob(t Transformer, cfg *formdata.Blob) error {
	r := t.Recipe()
	if cfg.Type != r.Source {
		return fmt.Errorf("%w: %s is not %s", ErrNotApplicable, cfg.Type, r.Source)
	}

	// The sidecar is captured before any hook runs and attached last.
	bak, err := cfg.Snapshot()
	if err != nil {
		return fmt.Errorf("snapshot params: %w", err)
	}

	m := &Migration{Blob: cfg.ShallowCopy(), Target: r.Target}
	if err := runHook("pre", t.Pre, m); err != nil {
		return err
	}
	if !r.producesType(m.Target) {
		return &HookError{Hook: "pre", Err: fmt.Errorf("retargeted to %q which %s does not produce", m.Target, r.Source)}
	}
	if err := applyKeys(r, m); err != nil {
		return err
	}
	if r.HasXAxisControl {
		promoteTemporalFilter(m.Blob, r.MirrorFiltersB)
	}
	if err := runHook("post", t.Post, m); err != nil {
		return err
	}

	if m.Has("viz_type") {
		m.Set("viz_type", m.Target)
	}
	m.Set(formdata.BackupKey, bak)
	m.Blob.Type = m.Target
	*cfg = *m.Blob
	return nil
}

// DowngradeBlob restores cfg from its sidecar backup. On error cfg is left
// unchanged.
func DowngradeBlob(t Transformer, cfg *formdata.Blob) error {
	r := t.Recipe()
	if cfg.Type == r.Source {
		return fmt.Errorf("%w: %s is already downgraded", ErrDowngradeUnsupported, cfg.Type)
	}
	if !r.producesType(cfg.Type) {
		return fmt.Errorf("%w: %s is not produced by %s", ErrNotApplicable, cfg.Type, r.Source)
	}
	bak, ok := cfg.Backup()
	if !ok {
		return fmt.Errorf("%w: %s has no %s", ErrDowngradeUnsupported, cfg.Type, formdata.BackupKey)
	}

	m := &Migration{Blob: cfg.ShallowCopy(), Target: r.Source}
	if err := runHook("downgrade_pre", t.DowngradePre, m); err != nil {
		return err
	}

	restored, err := formdata.Decode(r.Source, string(bak))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDowngradeUnsupported, err)
	}
	m.Blob = restored
	if err := runHook("downgrade_post", t.DowngradePost, m); err != nil {
		return err
	}

	m.Blob.Type = r.Source
	*cfg = *m.Blob
	return nil
}

func runHook(name string, hook func(*Migration) error, m *Migration) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = &HookError{Hook: name, Err: fmt.Errorf("panic: %v", p), Stack: debug.Stack()}
		}
	}()
	if err := hook(m); err != nil {
		return &HookError{Hook: name, Err: err}
	}
	return nil
}

// applyKeys is the declarative pass: removed keys are dropped, renamed keys
// move to their new name in place.
func applyKeys(r Recipe, m *Migration) error {
	removed := make(map[string]bool, len(r.RemoveKeys))
	for _, k := range r.RemoveKeys {
		removed[k] = true
	}
	renames := make(map[string]string, len(r.RenameKeys))
	for _, rn := range r.RenameKeys {
		renames[rn.From] = rn.To
	}

	out := formdata.NewParams()
	for pair := m.Params.Oldest(); pair != nil; pair = pair.Next() {
		key := pair.Key
		if removed[key] {
			continue
		}
		if to, ok := renames[key]; ok {
			if m.overwrites[to] {
				continue
			}
			if _, taken := m.Params.Get(to); taken && !removed[to] && renames[to] == "" {
				return &RenameCollisionError{VizType: r.Source, From: key, To: to}
			}
			key = to
		}
		out.Set(key, pair.Value)
	}
	m.Replace(out)
	return nil
}
