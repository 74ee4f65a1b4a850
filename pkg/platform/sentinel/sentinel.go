package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores and infrastructure layers
// return these (optionally wrapped) so services can translate them into coded
// domain errors.
//
// These represent factual states about resources, not validation failures:
// - ErrNotFound: entity does not exist in store
// - ErrExpired: token or proposal window has expired
// - ErrAlreadyUsed: resource (token, proposal slot) already consumed
// - ErrInvalidState: entity in wrong state for requested operation
// - ErrCapacity: append-only structure is at its configured capacity
// - ErrUnavailable: service or resource temporarily unavailable
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrExpired      = errors.New("expired")
	ErrAlreadyUsed  = errors.New("already used")
	ErrInvalidState = errors.New("invalid state")
	ErrCapacity     = errors.New("capacity exhausted")
	ErrUnavailable  = errors.New("unavailable")
)
