package core

import "errors"

// ReasonMapUnavailable is the ErrorResult reason for any failed map lookup.
const ReasonMapUnavailable = "could not load map"

var (
	// ErrStopped is returned when the coordinator is no longer running.
	ErrStopped = errors.New("coordinator stopped")
	// ErrUnknownClient is logged for messages from ids that never identified.
	ErrUnknownClient = errors.New("client not in registry")
)
