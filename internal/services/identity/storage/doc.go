// Package storage defines the persistence contracts for the identity core.
//
// The interfaces here are the only seam between domain services and durable
// state. Implementations must return ErrNotFound for missing rows so callers
// can distinguish absence from infrastructure failure.
package storage
