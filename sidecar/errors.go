package sidecar

import "errors"

var (
	// ErrPortInUse is returned by Start when the configured address is already bound.
	ErrPortInUse = errors.New("port already in use")
	// ErrRuntimeNotFound is returned when the runtime binary cannot be located.
	ErrRuntimeNotFound = errors.New("runtime not found")
	// ErrClosed is returned when writing to a process whose stdin has been closed.
	ErrClosed = errors.New("process stdin closed")
	// ErrStdinFull is returned when writing to a process that has stopped reading its stdin.
	ErrStdinFull = errors.New("process stdin full")
)
