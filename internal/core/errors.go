package core

import (
	"errors"
	"fmt"
)

// Kind names one entry of the ledger error taxonomy.
type Kind string

const (
	KindNotFound            Kind = "not_found"
	KindInvalidInput        Kind = "invalid_input"
	KindConflict            Kind = "conflict"
	KindStoreUnavailable    Kind = "store_unavailable"
	KindConstraintViolation Kind = "constraint_violation"
	KindInternal            Kind = "internal"
)

// Taxonomy sentinels. Every error leaving the store or the engine wraps one of them.
var (
	ErrNotFound            = errors.New("not found")
	ErrInvalidInput        = errors.New("invalid input")
	ErrConflict            = errors.New("conflict")
	ErrStoreUnavailable    = errors.New("store unavailable")
	ErrConstraintViolation = errors.New("constraint violation")
)

// Validation errors, all of kind InvalidInput.
var (
	ErrInvalidAmount         = fmt.Errorf("%w: invalid amount", ErrInvalidInput)
	ErrInvalidPeriod         = fmt.Errorf("%w: invalid period", ErrInvalidInput)
	ErrInvalidDate           = fmt.Errorf("%w: invalid date", ErrInvalidInput)
	ErrEmptyName             = fmt.Errorf("%w: empty name", ErrInvalidInput)
	ErrMissingField          = fmt.Errorf("%w: missing required field", ErrInvalidInput)
	ErrCategoryGroupRequired = fmt.Errorf("%w: category group required to create category", ErrInvalidInput)
)

// KindOf reports the taxonomy kind carried by err.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrInvalidInput):
		return KindInvalidInput
	case errors.Is(err, ErrConflict):
		return KindConflict
	case errors.Is(err, ErrStoreUnavailable):
		return KindStoreUnavailable
	case errors.Is(err, ErrConstraintViolation):
		return KindConstraintViolation
	default:
		return KindInternal
	}
}

// NotFoundf wraps ErrNotFound with a formatted description of the missing entity.
func NotFoundf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

// Invalidf wraps ErrInvalidInput with a formatted reason.
func Invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}
