// Package fault defines the error taxonomy shared by the allocation core.
// None of these errors is fatal: callers recover locally by requeueing the
// module, dropping the command, or logging and moving on.
package fault

import "errors"

var (
	// ErrNotFound means a module, worker or bench id does not exist or is not available.
	ErrNotFound = errors.New("not found")

	// ErrResourceBusy means the worker or bench is already allocated.
	ErrResourceBusy = errors.New("resource busy")

	// ErrQueueFull means the command channel is saturated.
	ErrQueueFull = errors.New("command queue full")

	// ErrInvalidCommand means operator input could not be parsed.
	ErrInvalidCommand = errors.New("invalid command")
)
