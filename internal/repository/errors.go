package repository

import (
	"errors"
	"fmt"
)

// ErrEmptyResult is matched by errors.Is when a query that must produce a
// row produced none, e.g. the measurement table is empty.
var ErrEmptyResult = errors.New("empty result")

// EmptyResultError reports which query came back without rows
type EmptyResultError struct {
	Query string
}

func (e *EmptyResultError) Error() string {
	return fmt.Sprintf("%s: %v", e.Query, ErrEmptyResult)
}

func (e *EmptyResultError) Unwrap() error {
	return ErrEmptyResult
}

// IsTransient returns false as an empty dataset does not fix itself on retry
func (e *EmptyResultError) IsTransient() bool {
	return false
}
