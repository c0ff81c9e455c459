package room

import (
	"math/rand"
	"sort"
)

const (
	codeLength = 6
	codeChars  = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789" // no 0/O/1/I
)

// NewCode draws a join code from an ambiguity-free alphabet.
func NewCode(r *rand.Rand) string {
	code := make([]byte, codeLength)
	for i := range code {
		code[i] = codeChars[r.Intn(len(codeChars))]
	}
	return string(code)
}

// ActivePlayers returns every player not sitting out, ordered by join
// time so rosters render stably on every client.
func (r *Room) ActivePlayers() []Player {
	var out []Player
	for _, p := range r.Players {
		if !p.SittingOut {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].JoinedAt.Before(out[j].JoinedAt) })
	return out
}

// ActiveCount counts players not sitting out.
func (r *Room) ActiveCount() int {
	n := 0
	for _, p := range r.Players {
		if !p.SittingOut {
			n++
		}
	}
	return n
}

// Full reports whether the room has no seat left for a new joiner. The
// bound applies at join time only; a player sitting back in never
// re-checks it.
func (r *Room) Full() bool {
	return r.ActiveCount() >= r.Capacity
}

// ReadyBarrierMet reports whether the round may advance: at least one
// active player, and every active player ready. Sitting-out players count
// on neither side of the comparison.
func (r *Room) ReadyBarrierMet() bool {
	active := 0
	for _, p := range r.Players {
		if p.SittingOut {
			continue
		}
		active++
		if !p.Ready {
			return false
		}
	}
	return active > 0
}

// RemovePlayer takes a player out of the roster, persisting their score
// into ScoreHistory by name first so a later rejoin restores it. When the
// host leaves, the earliest-joined remaining player inherits hosting so
// the room can still advance rounds. Safe to apply more than once.
func (r *Room) RemovePlayer(playerID string) {
	p, ok := r.Players[playerID]
	if !ok {
		return
	}
	if r.ScoreHistory == nil {
		r.ScoreHistory = map[string]int{}
	}
	r.ScoreHistory[p.Name] = p.Score
	delete(r.Players, playerID)

	if r.Host == playerID {
		r.Host = ""
		var earliest *Player
		for id := range r.Players {
			q := r.Players[id]
			if earliest == nil || q.JoinedAt.Before(earliest.JoinedAt) {
				earliest = &q
			}
		}
		if earliest != nil {
			r.Host = earliest.ID
		}
	}
}

// RestoredScore looks up the score a returning player left behind.
// Rejoin is keyed by display name; reusing someone else's name inherits
// their score. That matches the shipped behavior and is deliberately
// left as-is.
func (r *Room) RestoredScore(name string) int {
	return r.ScoreHistory[name]
}
