// Package puzzle deals solvable four-card boards.
package puzzle

import (
	"math/rand"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/make24/make24/internal/cards"
	"github.com/make24/make24/internal/solver"
)

// maxAttempts bounds the rejection loop before falling back to a board
// that is known solvable.
const maxAttempts = 100

// fallbackRanks is 3,3,8,8 — reachable via 8/(3-8/3).
var fallbackRanks = [4]string{"3", "3", "8", "8"}

// Generator deals boards from an injected rand source and clock so tests
// stay deterministic.
type Generator struct {
	rand  *rand.Rand
	clock clockwork.Clock
}

// NewGenerator creates a Generator. In production pass
// rand.New(rand.NewSource(time.Now().UnixNano())) and
// clockwork.NewRealClock().
func NewGenerator(r *rand.Rand, clock clockwork.Clock) *Generator {
	return &Generator{rand: r, clock: clock}
}

// Deal draws four ranks independently with replacement (not a depleting
// deck: duplicate ranks are legal) until the solver accepts the board.
// After maxAttempts it returns the fixed fallback so callers always get a
// solvable board.
func (g *Generator) Deal() []cards.Card {
	for attempt := 0; attempt < maxAttempts; attempt++ {
		board := g.draw()
		if solver.Solvable(values(board)) {
			return board
		}
	}

	log.Warn().
		Int("attempts", maxAttempts).
		Msg("puzzle generation exhausted attempts, dealing fallback board")
	now := g.clock.Now()
	board := make([]cards.Card, 0, 4)
	for i, rank := range fallbackRanks {
		board = append(board, cards.NewOriginal(rank, cards.Suits[i], i, now))
	}
	return board
}

func (g *Generator) draw() []cards.Card {
	now := g.clock.Now()
	board := make([]cards.Card, 0, 4)
	for i := 0; i < 4; i++ {
		rank := cards.Ranks[g.rand.Intn(len(cards.Ranks))]
		suit := cards.Suits[g.rand.Intn(len(cards.Suits))]
		board = append(board, cards.NewOriginal(rank, suit, i, now))
	}
	return board
}

func values(board []cards.Card) []float64 {
	vals := make([]float64, len(board))
	for i, c := range board {
		vals[i] = c.Value
	}
	return vals
}
