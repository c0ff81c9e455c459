package store

import "errors"

var (
	// ErrRoomNotFound is returned when the room record does not exist.
	ErrRoomNotFound = errors.New("room not found")

	// ErrRoomExists is returned when creating a room whose code is taken.
	ErrRoomExists = errors.New("room already exists")

	// ErrCASMismatch is returned by ConditionalWrite when another writer
	// got there first. Losing this race is a normal outcome, not a
	// failure.
	ErrCASMismatch = errors.New("compare-and-set mismatch")

	// ErrConflict is returned by WriteAtomic when its retries run out
	// under sustained write contention.
	ErrConflict = errors.New("write conflict not resolved")
)
