package cards

import (
	"fmt"
	"time"
)

// Ranks is the 13-symbol face set puzzles draw from, with replacement.
var Ranks = []string{"A", "2", "3", "4", "5", "6", "7", "8", "9", "10", "J", "Q", "K"}

// Suits uses single-letter codes: spades, hearts, diamonds, clubs.
var Suits = []string{"s", "h", "d", "c"}

var rankValues = map[string]float64{
	"A": 1, "2": 2, "3": 3, "4": 4, "5": 5, "6": 6, "7": 7,
	"8": 8, "9": 9, "10": 10, "J": 11, "Q": 12, "K": 13,
}

// Card is either an original dealt card (Rank is a face symbol, Suit set)
// or a derived result of a combine (Rank is a display string, Suit empty).
type Card struct {
	ID       string  `json:"id"`
	Rank     string  `json:"rank"`
	Suit     string  `json:"suit,omitempty"`
	Value    float64 `json:"value"`
	Original bool    `json:"isOriginal"`
}

// RankValue maps a face symbol to its numeric value (A=1 .. K=13).
func RankValue(rank string) (float64, bool) {
	v, ok := rankValues[rank]
	return v, ok
}

// NewOriginal builds a dealt card. The id mixes rank, suit, deal time and
// draw index so duplicate ranks stay distinct within and across puzzles.
func NewOriginal(rank, suit string, drawIndex int, dealtAt time.Time) Card {
	return Card{
		ID:       fmt.Sprintf("%s%s-%d-%d", rank, suit, dealtAt.UnixNano(), drawIndex),
		Rank:     rank,
		Suit:     suit,
		Value:    rankValues[rank],
		Original: true,
	}
}

// NewDerived builds the result card of a combine. Display is what the
// player sees (a plain integer or an exact fraction), value is what the
// next combine computes with.
func NewDerived(id, display string, value float64) Card {
	return Card{
		ID:    id,
		Rank:  display,
		Value: value,
	}
}
