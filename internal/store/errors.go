package store

import "errors"

var (
	// ErrNotFound is returned when a requested task, process log, or output
	// log does not exist.
	ErrNotFound = errors.New("store: not found")

	// ErrValidation is returned when a task's command or trigger_args fail
	// validation before the row would ever be written.
	ErrValidation = errors.New("store: validation failed")
)
