package model

import "errors"

// Sentinel errors for the platform. Handlers map these onto HTTP statuses;
// services wrap them with %w so callers can errors.Is against them.
var (
	// ErrNotFound means the addressed entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidState means the operation is illegal for the entity's
	// current state, such as acting on a closed conversation.
	ErrInvalidState = errors.New("invalid state")

	// ErrValidation means the input was malformed.
	ErrValidation = errors.New("validation failed")

	// ErrVersionConflict means an optimistic-concurrency token did not
	// match on update; the caller should re-read and retry once.
	ErrVersionConflict = errors.New("version conflict")

	// ErrDelivery means an outbound channel call failed. It is recorded on
	// the send result and never propagated out of the dispatcher.
	ErrDelivery = errors.New("delivery failed")
)
