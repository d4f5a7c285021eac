package framework

import "errors"

var (
	// ErrBranchPanic wraps a panic recovered at a fan-out branch boundary.
	ErrBranchPanic = errors.New("framework: branch panicked")

	// ErrRetryExhausted is returned when every attempt of a retried call failed.
	ErrRetryExhausted = errors.New("framework: retry attempts exhausted")

	// ErrNoBranches is returned when a fan-out is declared without branches.
	ErrNoBranches = errors.New("framework: fan-out has no branches")
)
