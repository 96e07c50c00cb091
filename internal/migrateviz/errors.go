package migrateviz

import (
	"errors"
	"fmt"
)

var (
	// ErrNotApplicable is returned when a blob is not of the type a
	// transformer migrates from (or, on downgrade, to).
	ErrNotApplicable = errors.New("transformer not applicable")

	// ErrDowngradeUnsupported is returned when the sidecar backup is missing
	// or malformed.
	ErrDowngradeUnsupported = errors.New("downgrade unsupported")

	// ErrRenameCollision marks a recipe that would overwrite an existing key.
	ErrRenameCollision = errors.New("rename collision")

	// ErrUnknownVizType is returned for chart types with no registered recipe.
	ErrUnknownVizType = errors.New("unknown viz type")
)

// HookError is returned when a pre or post hook fails or panics.
type HookError struct {
	Hook  string
	Err   error
	Stack []byte
}

func (e *HookError) Error() string { return fmt.Sprintf("%s hook: %v", e.Hook, e.Err) }
func (e *HookError) Unwrap() error { return e.Err }

// RenameCollisionError names the keys involved in a rename collision.
type RenameCollisionError struct {
	VizType string
	From    string
	To      string
}

func (e *RenameCollisionError) Error() string {
	return fmt.Sprintf("%s: renaming %q to %q would overwrite an existing key", e.VizType, e.From, e.To)
}

func (e *RenameCollisionError) Is(target error) bool { return target == ErrRenameCollision }
