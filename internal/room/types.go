// Package room holds the shared room record that every client replicates,
// plus the pure rules evaluated against it. Nothing here talks to the
// store; mutation happens through store write callbacks so that every
// transition ships as one combined write.
package room

import (
	"time"

	"github.com/make24/make24/internal/cards"
)

// Capacity bounds for a room, checked at creation and join time.
const (
	MinCapacity = 2
	MaxCapacity = 6
)

// Player is one seat in the room. Ready resets every round; SittingOut
// players keep their seat but are excluded from the ready barrier.
type Player struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Score      int       `json:"score"`
	Ready      bool      `json:"ready"`
	SittingOut bool      `json:"sittingOut"`
	JoinedAt   time.Time `json:"joinedAt"`
}

// Room is the whole shared record, stored as one value so multi-field
// transitions replicate atomically. Winner is empty while the round is
// open and set exactly once per round via compare-and-set.
type Room struct {
	ID            string            `json:"id"`
	Host          string            `json:"host"`
	Capacity      int               `json:"capacity"`
	Players       map[string]Player `json:"players"`
	OriginalCards []cards.Card      `json:"originalCards"`
	GameStarted   bool              `json:"gameStarted"`
	Winner        string            `json:"winner,omitempty"`
	WinTime       *time.Time        `json:"winTime,omitempty"`
	RoundNumber   int               `json:"roundNumber"`
	Clocked       bool              `json:"clocked"`
	ScoreHistory  map[string]int    `json:"scoreHistory"`
	CreatedAt     time.Time         `json:"createdAt"`
}

// Clone deep-copies the record so store mutate callbacks never alias the
// adapter's cached value.
func (r *Room) Clone() *Room {
	out := *r
	out.Players = make(map[string]Player, len(r.Players))
	for id, p := range r.Players {
		out.Players[id] = p
	}
	out.ScoreHistory = make(map[string]int, len(r.ScoreHistory))
	for name, s := range r.ScoreHistory {
		out.ScoreHistory[name] = s
	}
	out.OriginalCards = make([]cards.Card, len(r.OriginalCards))
	copy(out.OriginalCards, r.OriginalCards)
	if r.WinTime != nil {
		t := *r.WinTime
		out.WinTime = &t
	}
	return &out
}
