package render

import "errors"

var (
	// ErrNoPages is returned when a document renders to zero slides.
	ErrNoPages = errors.New("document has no pages")
	// ErrBinaryNotFound is returned when the renderer binary is not on PATH.
	ErrBinaryNotFound = errors.New("renderer binary not found")
)
