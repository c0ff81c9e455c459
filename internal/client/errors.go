package client

import "errors"

var (
	// ErrInvalidName rejects empty display names.
	ErrInvalidName = errors.New("invalid player name")

	// ErrInvalidCapacity rejects capacities outside 2..6.
	ErrInvalidCapacity = errors.New("capacity must be between 2 and 6")

	// ErrRoomFull is returned when the active roster already fills the
	// room. Checked at join time only.
	ErrRoomFull = errors.New("room is full")

	// ErrNotJoined is returned by operations that need a joined room.
	ErrNotJoined = errors.New("not in a room")

	// ErrNotHost guards host-only operations (kick, close, advance).
	ErrNotHost = errors.New("only the host may do that")

	// ErrNotWinner guards the clock: only the round's winner starts it.
	ErrNotWinner = errors.New("only the winner may start the clock")

	// ErrKickSelf forbids the host kicking themselves.
	ErrKickSelf = errors.New("cannot kick yourself")

	// ErrGameInProgress is returned when closing a room after the game
	// has started.
	ErrGameInProgress = errors.New("game already in progress")
)

// errStale aborts an advance write whose precondition no longer holds
// (round already advanced by an earlier trigger, or the barrier broke).
// Purely internal: a stale advance is a normal outcome.
var errStale = errors.New("advance precondition no longer holds")
