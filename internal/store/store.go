// Package store defines the replicated room store port and its two
// adapters: a NATS JetStream key-value implementation for production and
// an in-memory fake for tests. The store gives eventual, at-least-once,
// per-key-ordered delivery; nothing stronger. Uniqueness (win
// arbitration) therefore rides on compare-and-set, and every multi-field
// transition ships as one combined write.
package store

import (
	"context"

	"github.com/make24/make24/internal/room"
)

// Mutation transforms the current room record in place. Returning an
// error aborts the write with nothing applied; the record handed in is a
// private copy, never the adapter's cached value.
type Mutation func(*room.Room) error

// Deferred is the disconnect cleanup recorded when a player connects: if
// the player's presence expires ungracefully, observers persist their
// score into history by name and drop them from the roster. Cancelled on
// graceful leave.
type Deferred struct {
	PlayerID string `json:"playerId"`
	Name     string `json:"name"`
}

// CancelFunc tears down a subscription.
type CancelFunc func()

// Store is the replicated store port shared by all clients of a room.
type Store interface {
	// CreateRoom writes a brand-new record; fails if the code is taken.
	CreateRoom(ctx context.Context, r *room.Room) error

	// ReadOnce fetches the current record.
	ReadOnce(ctx context.Context, roomID string) (*room.Room, error)

	// Subscribe delivers every observed change in per-key order. A nil
	// record signals room deletion.
	Subscribe(ctx context.Context, roomID string, onChange func(*room.Room)) (CancelFunc, error)

	// WriteAtomic applies mutate through a read-modify-write loop with a
	// revision compare-and-set, retrying on concurrent-writer conflicts.
	// The whole mutated record lands in one write.
	WriteAtomic(ctx context.Context, roomID string, mutate Mutation) error

	// ConditionalWrite is a single compare-and-set attempt: no retry. A
	// concurrent writer surfaces as ErrCASMismatch, which callers treat
	// as losing the race, not as a failure.
	ConditionalWrite(ctx context.Context, roomID string, mutate Mutation) error

	// DeleteRoom clears the record.
	DeleteRoom(ctx context.Context, roomID string) error

	// RegisterDeferred records the disconnect cleanup for a player and
	// CancelDeferred removes it on graceful teardown, preventing stale
	// firing.
	RegisterDeferred(ctx context.Context, roomID string, d Deferred) error
	CancelDeferred(ctx context.Context, roomID, playerID string) error

	// Heartbeat refreshes the player's presence; a presence left
	// unrefreshed past the liveness window fires the deferred cleanup.
	Heartbeat(ctx context.Context, roomID, playerID string) error
}
