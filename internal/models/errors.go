package models

import (
	"errors"
	"fmt"
)

// Error taxonomy shared by the store, the query engine and the request layer.
// Callers match with errors.Is.
var (
	ErrNotFound           = errors.New("record not found")
	ErrInvalidIndex       = errors.New("invalid index")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrCoercion           = errors.New("numeric coercion failed")
	ErrBackendUnavailable = errors.New("backend unavailable")
)

// Unavailable wraps a backend driver error so that it matches ErrBackendUnavailable
// while keeping the driver error in the chain.
func Unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrBackendUnavailable, op, err)
}
