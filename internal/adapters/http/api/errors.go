package api

import "errors"

var (
	// ErrBadRequest wraps a submission body that is not valid JSON or
	// carries unknown fields.
	ErrBadRequest = errors.New("bad request")
	// ErrMissingID is a submission or domain route reached without its {id}.
	ErrMissingID = errors.New("missing path id")
)
