package domain

import (
	"errors"
	"fmt"
)

// ErrNotFound marks an expected miss (unknown id or name). It is a normal
// outcome, not logged as an error.
var ErrNotFound = errors.New("not found")

// UnresolvedError reports which side of a distance query could not be
// resolved to a place, so callers can tell the two inputs apart.
type UnresolvedError struct {
	Name string
}

func (e *UnresolvedError) Error() string {
	return fmt.Sprintf("city %q could not be resolved", e.Name)
}

func (e *UnresolvedError) Unwrap() error { return ErrNotFound }
