package repository

import "errors"

var (
	// ErrNotFound is returned for an unknown submission, evaluation or domain id.
	ErrNotFound = errors.New("record not found")
	// ErrConflict is a compare-and-set status transition that lost a race.
	ErrConflict = errors.New("status changed concurrently")
	// ErrDuplicate is a submission id or evaluation that already exists.
	ErrDuplicate = errors.New("record already exists")
	// ErrInactive rejects submissions to a domain that is switched off.
	ErrInactive = errors.New("domain is not active")
)
