package models

import "errors"

var (
	// ErrInvalidObservation marks malformed ingress input. Rejected at the
	// API boundary; never reaches the decision engine.
	ErrInvalidObservation = errors.New("invalid observation")

	// ErrUnknownSource is returned for stats lookups on a source the engine
	// has never seen.
	ErrUnknownSource = errors.New("unknown source")

	// ErrInsufficientData is the scorer's sentinel for windows below the
	// minimum sample size. A state, not a failure.
	ErrInsufficientData = errors.New("insufficient data for scoring")
)
