package ratelimit

import "errors"

// Sentinel kinds for limiter errors.
var (
	ErrInvalidWindow   = errors.New("invalid rate limit window")
	ErrUnexpectedReply = errors.New("unexpected store reply")
)
