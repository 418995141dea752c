package queue

import "errors"

// Sentinel errors returned by Queue implementations.
var (
	ErrClosed        = errors.New("queue closed")
	ErrFull          = errors.New("queue full")
	ErrStageMismatch = errors.New("task stage does not match queue")
)
