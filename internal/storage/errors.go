package storage

import "errors"

var (
	// ErrNoOpenPosition is returned when no mutable position matches a
	// composite natural key.
	ErrNoOpenPosition = errors.New("no open position for key")
	// ErrPositionNotFound is returned when a position id does not exist.
	ErrPositionNotFound = errors.New("position not found")
	// ErrPositionNotMutable is returned when a trade targets a position
	// whose status has become CLOSED or ROLLED. The whole transaction rolls
	// back; callers surface it as a stale-target warning.
	ErrPositionNotMutable = errors.New("position is no longer mutable")
	// ErrDuplicateTrade is returned when an insert collides with the trade
	// natural-key uniqueness constraint.
	ErrDuplicateTrade = errors.New("duplicate trade")
)
