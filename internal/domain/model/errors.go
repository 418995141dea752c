package model

import "errors"

// Sentinel kinds for model validation errors.
var (
	ErrInvalidWeights    = errors.New("invalid weight distribution")
	ErrContractViolation = errors.New("judge response violates contract")
	ErrInvalidTransition = errors.New("invalid status transition")
)
