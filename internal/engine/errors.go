package engine

import "errors"

var (
	// ErrInvalidMove is returned when a combine targets the same card
	// twice or references a card that is not on the board.
	ErrInvalidMove = errors.New("invalid move")

	// ErrDivisionByZero is returned when a combine would divide by a
	// zero-valued card.
	ErrDivisionByZero = errors.New("division by zero")

	// ErrFrozen is returned once the clocked countdown has expired for a
	// non-winner; the board no longer accepts combine, undo or reset.
	ErrFrozen = errors.New("board frozen")
)
