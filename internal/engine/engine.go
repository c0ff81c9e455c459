// Package engine is the per-client move engine: selection, combines, undo
// and reset against the board of the current round. All state is local to
// one client and never replicated; the caller provides any locking.
package engine

import (
	"math"

	"github.com/google/uuid"

	"github.com/make24/make24/internal/cards"
	"github.com/make24/make24/internal/fraction"
	"github.com/make24/make24/internal/solver"
)

// Op is a binary operator applied by a combine.
type Op string

const (
	OpAdd Op = "+"
	OpSub Op = "-"
	OpMul Op = "*"
	OpDiv Op = "/"
)

// Move records one consummated combine for the local history panel.
type Move struct {
	Left   cards.Card `json:"left"`
	Right  cards.Card `json:"right"`
	Op     Op         `json:"op"`
	Result cards.Card `json:"result"`
}

// snapshot is an undo stack entry: the board and history exactly as they
// were before a combine.
type snapshot struct {
	board []cards.Card
	moves []Move
}

// Engine drives one player's board through a round.
type Engine struct {
	originals []cards.Card
	board     []cards.Card
	moves     []Move
	undo      []snapshot

	selectedCard string
	selectedOp   Op

	frozen bool
}

// New returns an engine with an empty board; call SetBoard when a round
// arrives.
func New() *Engine {
	return &Engine{}
}

// SetBoard snaps the engine onto a new round's original cards, discarding
// every bit of local progress including the frozen flag.
func (e *Engine) SetBoard(originals []cards.Card) {
	e.originals = cloneBoard(originals)
	e.board = cloneBoard(originals)
	e.moves = nil
	e.undo = nil
	e.frozen = false
	e.clearSelection()
}

// Board returns the current cards in play.
func (e *Engine) Board() []cards.Card {
	return cloneBoard(e.board)
}

// Moves returns the local move history for the current round.
func (e *Engine) Moves() []Move {
	out := make([]Move, len(e.moves))
	copy(out, e.moves)
	return out
}

// SelectedCard returns the id of the currently selected card, if any.
func (e *Engine) SelectedCard() string { return e.selectedCard }

// SelectedOp returns the currently selected operator, if any.
func (e *Engine) SelectedOp() Op { return e.selectedOp }

// Freeze disables combine, undo and reset; used on non-winners' boards
// when the clocked countdown expires.
func (e *Engine) Freeze() { e.frozen = true }

// Frozen reports whether the board is frozen.
func (e *Engine) Frozen() bool { return e.frozen }

// SelectCard advances the selection state machine. Tapping the selected
// card again deselects it; tapping a different card with no operator
// pending replaces the selection; tapping a second card once an operator
// is pending consummates the combine. The returned card is the derived
// result when a combine fired, nil otherwise.
func (e *Engine) SelectCard(id string) (*cards.Card, bool, error) {
	if e.frozen {
		return nil, false, ErrFrozen
	}
	switch {
	case e.selectedCard == "":
		e.selectedCard = id
		return nil, false, nil
	case e.selectedCard == id:
		// Same unconsummated card toggles off. With an operator pending
		// this is the same-card combine the rules forbid.
		if e.selectedOp != "" {
			e.clearSelection()
			return nil, false, ErrInvalidMove
		}
		e.selectedCard = ""
		return nil, false, nil
	case e.selectedOp == "":
		e.selectedCard = id
		return nil, false, nil
	default:
		first, op := e.selectedCard, e.selectedOp
		result, won, err := e.Combine(first, id, op)
		if err != nil {
			return nil, false, err
		}
		return result, won, nil
	}
}

// SelectOp picks the operator for the pending combine. Re-selecting the
// same operator toggles it off. Ignored until a card is selected.
func (e *Engine) SelectOp(op Op) {
	if e.frozen || e.selectedCard == "" {
		return
	}
	if e.selectedOp == op {
		e.selectedOp = ""
		return
	}
	e.selectedOp = op
}

// Combine consumes two distinct cards and replaces them with the derived
// result. Validation runs before any mutation: a failed combine leaves
// the board and history untouched (only the selection is cleared). The
// bool result reports a win — exactly one card left within epsilon of 24.
func (e *Engine) Combine(aID, bID string, op Op) (*cards.Card, bool, error) {
	if e.frozen {
		return nil, false, ErrFrozen
	}
	defer e.clearSelection()

	if aID == bID {
		return nil, false, ErrInvalidMove
	}
	ai := e.indexOf(aID)
	bi := e.indexOf(bID)
	if ai < 0 || bi < 0 {
		return nil, false, ErrInvalidMove
	}
	a, b := e.board[ai], e.board[bi]
	if op == OpDiv && b.Value == 0 {
		return nil, false, ErrDivisionByZero
	}

	e.undo = append(e.undo, snapshot{
		board: cloneBoard(e.board),
		moves: append([]Move(nil), e.moves...),
	})

	value := apply(a.Value, b.Value, op)
	// Whole values show as plain integers; non-integer divisions (and the
	// rare non-integer carried through +, - or *, which can only have come
	// from an earlier division) show as exact fractions.
	result := cards.NewDerived(uuid.New().String(), fraction.Display(value), value)

	next := make([]cards.Card, 0, len(e.board)-1)
	for i, c := range e.board {
		if i == ai || i == bi {
			continue
		}
		next = append(next, c)
	}
	next = append(next, result)
	e.board = next
	e.moves = append(e.moves, Move{Left: a, Right: b, Op: op, Result: result})

	won := len(e.board) == 1 && math.Abs(e.board[0].Value-solver.Target) < solver.Epsilon
	return &result, won, nil
}

// Undo restores the board and history exactly as they were before the
// last combine. No-op when there is nothing to undo.
func (e *Engine) Undo() error {
	if e.frozen {
		return ErrFrozen
	}
	e.clearSelection()
	if len(e.undo) == 0 {
		return nil
	}
	last := e.undo[len(e.undo)-1]
	e.undo = e.undo[:len(e.undo)-1]
	e.board = last.board
	e.moves = last.moves
	return nil
}

// Reset restores the round's original cards and clears the undo stack and
// move history unconditionally.
func (e *Engine) Reset() error {
	if e.frozen {
		return ErrFrozen
	}
	e.board = cloneBoard(e.originals)
	e.moves = nil
	e.undo = nil
	e.clearSelection()
	return nil
}

func (e *Engine) clearSelection() {
	e.selectedCard = ""
	e.selectedOp = ""
}

func (e *Engine) indexOf(id string) int {
	for i, c := range e.board {
		if c.ID == id {
			return i
		}
	}
	return -1
}

func apply(a, b float64, op Op) float64 {
	switch op {
	case OpAdd:
		return a + b
	case OpSub:
		return a - b
	case OpMul:
		return a * b
	case OpDiv:
		return a / b
	}
	return 0
}

func cloneBoard(board []cards.Card) []cards.Card {
	out := make([]cards.Card, len(board))
	copy(out, board)
	return out
}
