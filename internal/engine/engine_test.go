package engine

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/make24/make24/internal/cards"
)

func testBoard(ranks ...string) []cards.Card {
	now := time.Unix(1700000000, 0)
	board := make([]cards.Card, 0, len(ranks))
	for i, r := range ranks {
		board = append(board, cards.NewOriginal(r, cards.Suits[i%len(cards.Suits)], i, now))
	}
	return board
}

func newEngine(ranks ...string) *Engine {
	e := New()
	e.SetBoard(testBoard(ranks...))
	return e
}

func TestCombineSameCardFails(t *testing.T) {
	for _, op := range []Op{OpAdd, OpSub, OpMul, OpDiv} {
		t.Run(string(op), func(t *testing.T) {
			e := newEngine("4", "A", "8", "7")
			id := e.Board()[0].ID
			before := e.Board()

			_, _, err := e.Combine(id, id, op)
			if !errors.Is(err, ErrInvalidMove) {
				t.Fatalf("Combine(X, X, %s) error = %v, want ErrInvalidMove", op, err)
			}
			if !reflect.DeepEqual(e.Board(), before) {
				t.Fatalf("board mutated by failed combine")
			}
		})
	}
}

func TestCombineDivisionByZero(t *testing.T) {
	e := newEngine("4", "4", "8", "7")
	board := e.Board()

	// Derive a zero: 4 - 4.
	zero, _, err := e.Combine(board[0].ID, board[1].ID, OpSub)
	if err != nil {
		t.Fatalf("setup combine failed: %v", err)
	}
	if zero.Value != 0 {
		t.Fatalf("expected zero-valued card, got %v", zero.Value)
	}

	before := e.Board()
	eight := before[0] // remaining cards: 8, 7, derived 0
	_, _, err = e.Combine(eight.ID, zero.ID, OpDiv)
	if !errors.Is(err, ErrDivisionByZero) {
		t.Fatalf("divide by zero error = %v, want ErrDivisionByZero", err)
	}
	if !reflect.DeepEqual(e.Board(), before) {
		t.Fatalf("board mutated by failed division")
	}
	if e.SelectedCard() != "" || e.SelectedOp() != "" {
		t.Fatalf("selection not cleared after failed combine")
	}
}

func TestCombineWin(t *testing.T) {
	e := newEngine("4", "A", "8", "7")
	b := e.Board()

	// (8-4) * (7-1) = 24
	four, _, err := e.Combine(b[2].ID, b[0].ID, OpSub) // 8-4
	if err != nil {
		t.Fatalf("combine: %v", err)
	}
	six, _, err := e.Combine(b[3].ID, b[1].ID, OpSub) // 7-1
	if err != nil {
		t.Fatalf("combine: %v", err)
	}
	result, won, err := e.Combine(four.ID, six.ID, OpMul)
	if err != nil {
		t.Fatalf("combine: %v", err)
	}
	if !won {
		t.Fatalf("expected win, got result %v", result.Value)
	}
	if result.Rank != "24" {
		t.Fatalf("result display = %q, want %q", result.Rank, "24")
	}
}

func TestCombineFractionDisplay(t *testing.T) {
	e := newEngine("7", "3", "8", "8")
	b := e.Board()

	result, _, err := e.Combine(b[0].ID, b[1].ID, OpDiv)
	if err != nil {
		t.Fatalf("combine: %v", err)
	}
	if result.Rank != "7/3" {
		t.Fatalf("display = %q, want %q", result.Rank, "7/3")
	}
	if result.Original {
		t.Fatalf("derived card marked original")
	}
}

func TestUndoRestoresExactly(t *testing.T) {
	e := newEngine("4", "A", "8", "7")
	original := e.Board()

	for k := 1; k <= 3; k++ {
		// k combines then k undos must restore the original four cards.
		for i := 0; i < k; i++ {
			b := e.Board()
			if _, _, err := e.Combine(b[0].ID, b[1].ID, OpAdd); err != nil {
				t.Fatalf("combine %d: %v", i, err)
			}
		}
		if len(e.Board()) != 4-k {
			t.Fatalf("after %d combines: %d cards, want %d", k, len(e.Board()), 4-k)
		}
		for i := 0; i < k; i++ {
			if err := e.Undo(); err != nil {
				t.Fatalf("undo %d: %v", i, err)
			}
		}
		if !reflect.DeepEqual(e.Board(), original) {
			t.Fatalf("after %d combines + %d undos board = %+v, want original", k, k, e.Board())
		}
		if len(e.Moves()) != 0 {
			t.Fatalf("move history not emptied by undos")
		}
	}
}

func TestUndoOnEmptyStack(t *testing.T) {
	e := newEngine("4", "A", "8", "7")
	before := e.Board()
	if err := e.Undo(); err != nil {
		t.Fatalf("undo on empty stack: %v", err)
	}
	if !reflect.DeepEqual(e.Board(), before) {
		t.Fatalf("undo on empty stack mutated board")
	}
}

func TestResetRestoresOriginals(t *testing.T) {
	e := newEngine("4", "A", "8", "7")
	original := e.Board()

	for i := 0; i < 3; i++ {
		b := e.Board()
		if _, _, err := e.Combine(b[0].ID, b[1].ID, OpMul); err != nil {
			t.Fatalf("combine: %v", err)
		}
	}
	if err := e.Reset(); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if !reflect.DeepEqual(e.Board(), original) {
		t.Fatalf("reset board = %+v, want original", e.Board())
	}
	if len(e.Moves()) != 0 {
		t.Fatalf("reset left move history")
	}
	if err := e.Undo(); err != nil {
		t.Fatalf("undo after reset: %v", err)
	}
	if !reflect.DeepEqual(e.Board(), original) {
		t.Fatalf("undo after reset mutated board: stack not cleared")
	}
}

func TestSelectionToggles(t *testing.T) {
	e := newEngine("4", "A", "8", "7")
	b := e.Board()

	// Select then re-select deselects.
	if _, _, err := e.SelectCard(b[0].ID); err != nil {
		t.Fatalf("select: %v", err)
	}
	if _, _, err := e.SelectCard(b[0].ID); err != nil {
		t.Fatalf("deselect: %v", err)
	}
	if e.SelectedCard() != "" {
		t.Fatalf("card still selected after toggle")
	}

	// Selecting a different card before an operator replaces.
	e.SelectCard(b[0].ID)
	e.SelectCard(b[1].ID)
	if e.SelectedCard() != b[1].ID {
		t.Fatalf("selection not replaced: %q", e.SelectedCard())
	}

	// Operator toggles off on re-select.
	e.SelectOp(OpAdd)
	e.SelectOp(OpAdd)
	if e.SelectedOp() != "" {
		t.Fatalf("operator still selected after toggle")
	}

	// Full flow: card, op, second card combines.
	e.SelectOp(OpAdd)
	result, _, err := e.SelectCard(b[2].ID)
	if err != nil {
		t.Fatalf("combining select: %v", err)
	}
	if result == nil || result.Value != 9 { // A + 8
		t.Fatalf("combine via selection = %+v, want value 9", result)
	}
}

func TestFrozenBoardRejectsMutation(t *testing.T) {
	e := newEngine("4", "A", "8", "7")
	b := e.Board()
	e.Freeze()

	if _, _, err := e.Combine(b[0].ID, b[1].ID, OpAdd); !errors.Is(err, ErrFrozen) {
		t.Fatalf("combine on frozen board error = %v, want ErrFrozen", err)
	}
	if err := e.Undo(); !errors.Is(err, ErrFrozen) {
		t.Fatalf("undo on frozen board error = %v, want ErrFrozen", err)
	}
	if err := e.Reset(); !errors.Is(err, ErrFrozen) {
		t.Fatalf("reset on frozen board error = %v, want ErrFrozen", err)
	}

	// A new round thaws the board.
	e.SetBoard(testBoard("3", "3", "8", "8"))
	if e.Frozen() {
		t.Fatalf("SetBoard did not clear frozen flag")
	}
}
