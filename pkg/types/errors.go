package types

import (
	"errors"
	"fmt"
)

// Closed error taxonomy. Every operation failure wraps exactly one of these
// sentinels so callers can match with errors.Is.
var (
	ErrInvalidArgument = errors.New("strata: invalid argument")
	ErrNotFound        = errors.New("strata: not found")
	ErrAlreadyExists   = errors.New("strata: already exists")
	ErrInvalidState    = errors.New("strata: invalid state")
	ErrNotImplemented  = errors.New("strata: not implemented")
	ErrDurability      = errors.New("strata: durability failure")
	ErrCorruption      = errors.New("strata: corruption")
	ErrIO              = errors.New("strata: io failure")
)

// InvalidArgumentf builds an ErrInvalidArgument with detail.
func InvalidArgumentf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}

// NotFoundf builds an ErrNotFound with detail.
func NotFoundf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

// AlreadyExistsf builds an ErrAlreadyExists with detail.
func AlreadyExistsf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrAlreadyExists, fmt.Sprintf(format, args...))
}

// InvalidStatef builds an ErrInvalidState with detail.
func InvalidStatef(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidState, fmt.Sprintf(format, args...))
}

// NotImplemented builds an ErrNotImplemented carrying the feature name.
func NotImplemented(feature string) error {
	return fmt.Errorf("%w: %s", ErrNotImplemented, feature)
}

// Corruptionf builds an ErrCorruption with detail.
func Corruptionf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrCorruption, fmt.Sprintf(format, args...))
}

// Durabilityf builds an ErrDurability wrapping an underlying cause.
func Durabilityf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrDurability, fmt.Sprintf(format, args...))
}
