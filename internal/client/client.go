// Package client is the library one player runs: it wires the local move
// engine to the replicated room record and drives the shared round
// lifecycle — join and leave, win arbitration, the ready barrier, the
// clocked countdown and round advancement.
//
// There is no server arbitrating any of this. Every mutation goes through
// the store's compare-and-set primitives; observing a stale intermediate
// record is expected and never corrupts the eventual state. Remote
// mutations are fire-and-forget: the exported methods validate locally,
// hand the write to a goroutine and report failures through the log, so
// callers never block on replication.
package client

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/make24/make24/internal/cards"
	"github.com/make24/make24/internal/engine"
	"github.com/make24/make24/internal/puzzle"
	"github.com/make24/make24/internal/room"
	"github.com/make24/make24/internal/store"
)

// createRetries bounds join-code regeneration when a code collides.
const createRetries = 5

// Config tunes the per-client timers.
type Config struct {
	// ClockDuration is the countdown non-winners face once the winner
	// starts the clock.
	ClockDuration time.Duration
	// HeartbeatInterval paces presence refreshes; it must stay well
	// under the store's liveness window.
	HeartbeatInterval time.Duration
}

// DefaultConfig returns the production timer defaults.
func DefaultConfig() Config {
	return Config{
		ClockDuration:     10 * time.Second,
		HeartbeatInterval: 5 * time.Second,
	}
}

// Snapshot is what a UI renders: the last-observed shared record plus
// this player's private board state.
type Snapshot struct {
	PlayerID string        `json:"playerId"`
	Room     *room.Room    `json:"room,omitempty"`
	Board    []cards.Card  `json:"board"`
	Moves    []engine.Move `json:"moves"`
	Frozen   bool          `json:"frozen"`
	Won      bool          `json:"won"`
}

// Client is one player's handle on one room.
type Client struct {
	store store.Store
	clock clockwork.Clock
	cfg   Config

	genMu sync.Mutex
	rand  *rand.Rand
	gen   *puzzle.Generator

	mu       sync.Mutex
	roomID   string
	playerID string
	name     string
	snap     *room.Room
	engine   *engine.Engine
	won      bool
	onChange func(Snapshot)

	countdown *countdown
	cancelSub store.CancelFunc
	stopBeat  context.CancelFunc
}

// New creates a detached client; CreateRoom or JoinRoom attaches it.
func New(s store.Store, clock clockwork.Clock, r *rand.Rand, cfg Config) *Client {
	return &Client{
		store:     s,
		clock:     clock,
		cfg:       cfg,
		rand:      r,
		gen:       puzzle.NewGenerator(r, clock),
		engine:    engine.New(),
		countdown: newCountdown(clock),
	}
}

// OnChange registers the snapshot callback the gateway renders from.
func (c *Client) OnChange(fn func(Snapshot)) {
	c.mu.Lock()
	c.onChange = fn
	c.mu.Unlock()
}

// Snapshot returns the current view of the room and board.
func (c *Client) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Client) snapshotLocked() Snapshot {
	snap := Snapshot{
		PlayerID: c.playerID,
		Board:    c.engine.Board(),
		Moves:    c.engine.Moves(),
		Frozen:   c.engine.Frozen(),
		Won:      c.won,
	}
	if c.snap != nil {
		snap.Room = c.snap.Clone()
	}
	return snap
}

// CreateRoom generates a solvable first round, commits the new record
// under a fresh join code and attaches this client as host.
func (c *Client) CreateRoom(ctx context.Context, name string, capacity int) (string, error) {
	if name == "" {
		return "", ErrInvalidName
	}
	if capacity < room.MinCapacity || capacity > room.MaxCapacity {
		return "", ErrInvalidCapacity
	}

	playerID := uuid.New().String()
	now := c.clock.Now()

	c.genMu.Lock()
	board := c.gen.Deal()
	c.genMu.Unlock()

	var roomID string
	for attempt := 0; attempt < createRetries; attempt++ {
		c.genMu.Lock()
		code := room.NewCode(c.rand)
		c.genMu.Unlock()

		r := &room.Room{
			ID:       code,
			Host:     playerID,
			Capacity: capacity,
			Players: map[string]room.Player{
				playerID: {ID: playerID, Name: name, JoinedAt: now},
			},
			OriginalCards: board,
			RoundNumber:   1,
			ScoreHistory:  map[string]int{},
			CreatedAt:     now,
		}
		err := c.store.CreateRoom(ctx, r)
		if err == nil {
			roomID = code
			break
		}
		if !errors.Is(err, store.ErrRoomExists) {
			return "", err
		}
	}
	if roomID == "" {
		return "", store.ErrRoomExists
	}

	if err := c.attach(ctx, roomID, playerID, name); err != nil {
		return "", err
	}
	log.Info().Str("room_id", roomID).Str("player_id", playerID).Msg("room created")
	return roomID, nil
}

// JoinRoom adds this client to an existing room, restoring any score a
// previous run left under the same name. The capacity check happens at
// join time only.
func (c *Client) JoinRoom(ctx context.Context, code, name string) (string, int, error) {
	if name == "" {
		return "", 0, ErrInvalidName
	}

	playerID := uuid.New().String()
	restored := 0
	err := c.store.WriteAtomic(ctx, code, func(r *room.Room) error {
		if r.Full() {
			return ErrRoomFull
		}
		restored = r.RestoredScore(name)
		r.Players[playerID] = room.Player{
			ID:       playerID,
			Name:     name,
			Score:    restored,
			JoinedAt: c.clock.Now(),
		}
		return nil
	})
	if err != nil {
		return "", 0, err
	}

	if err := c.attach(ctx, code, playerID, name); err != nil {
		return "", 0, err
	}
	log.Info().
		Str("room_id", code).
		Str("player_id", playerID).
		Int("restored_score", restored).
		Msg("joined room")
	return playerID, restored, nil
}

// attach wires the subscription, the deferred disconnect record and the
// heartbeat loop. The deferred record is what peers replay if our
// heartbeats stop without a graceful leave.
func (c *Client) attach(ctx context.Context, roomID, playerID, name string) error {
	if err := c.store.RegisterDeferred(ctx, roomID, store.Deferred{PlayerID: playerID, Name: name}); err != nil {
		return err
	}

	c.mu.Lock()
	c.roomID = roomID
	c.playerID = playerID
	c.name = name
	c.snap = nil
	c.won = false
	c.mu.Unlock()

	cancel, err := c.store.Subscribe(ctx, roomID, c.handleChange)
	if err != nil {
		return err
	}

	beatCtx, stopBeat := context.WithCancel(context.Background())
	go c.heartbeatLoop(beatCtx, roomID, playerID)

	c.mu.Lock()
	c.cancelSub = cancel
	c.stopBeat = stopBeat
	c.mu.Unlock()
	return nil
}

func (c *Client) heartbeatLoop(ctx context.Context, roomID, playerID string) {
	ticker := c.clock.NewTicker(c.cfg.HeartbeatInterval)
	defer ticker.Stop()

	if err := c.store.Heartbeat(ctx, roomID, playerID); err != nil {
		log.Error().Err(err).Str("room_id", roomID).Msg("heartbeat failed")
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			if err := c.store.Heartbeat(ctx, roomID, playerID); err != nil {
				log.Error().Err(err).Str("room_id", roomID).Msg("heartbeat failed")
			}
		}
	}
}

// handleChange is the subscription callback: reconcile the local board
// with the observed record, arm the countdown when the clock appears,
// and trigger the advance check.
func (c *Client) handleChange(r *room.Room) {
	c.mu.Lock()
	if r == nil {
		// Room cleared by the host.
		c.snap = nil
		c.mu.Unlock()
		c.notify()
		return
	}

	prev := c.snap
	c.snap = r
	newRound := prev == nil || prev.RoundNumber != r.RoundNumber
	if newRound {
		c.engine.SetBoard(r.OriginalCards)
		c.won = false
		c.countdown.cancel(r.ID)
	}
	if r.Clocked && (newRound || !prev.Clocked) && r.Winner != c.playerID {
		c.countdown.start(r.ID, c.cfg.ClockDuration, c.freezeBoard)
	}
	isHost := r.Host == c.playerID
	barrier := r.ReadyBarrierMet()
	roundNumber := r.RoundNumber
	roomID := c.roomID
	c.mu.Unlock()

	// Every client evaluates the barrier; only the host's write counts.
	if isHost && barrier {
		go c.maybeAdvance(context.Background(), roomID, roundNumber)
	}
	c.notify()
}

// freezeBoard fires when the countdown elapses: a non-winner's board
// stops accepting combine, undo and reset until the next round.
func (c *Client) freezeBoard() {
	c.mu.Lock()
	if c.snap != nil && c.snap.Winner != c.playerID {
		c.engine.Freeze()
		log.Info().Str("room_id", c.roomID).Msg("countdown elapsed, board frozen")
	}
	c.mu.Unlock()
	c.notify()
}

// maybeAdvance commits the next round when every active player is ready.
// The mutation re-checks both the round number and the barrier against
// the record it is about to replace, so redundant triggers — several
// snapshots observing the same barrier — collapse into one advance.
func (c *Client) maybeAdvance(ctx context.Context, roomID string, fromRound int) {
	c.genMu.Lock()
	board := c.gen.Deal()
	c.genMu.Unlock()

	err := c.store.WriteAtomic(ctx, roomID, func(r *room.Room) error {
		if r.RoundNumber != fromRound {
			return errStale
		}
		if !r.ReadyBarrierMet() {
			return errStale
		}
		r.OriginalCards = board
		r.Winner = ""
		r.WinTime = nil
		r.Clocked = false
		r.RoundNumber++
		for id, p := range r.Players {
			p.Ready = false
			r.Players[id] = p
		}
		return nil
	})
	switch {
	case err == nil:
		log.Info().Str("room_id", roomID).Int("round", fromRound+1).Msg("round advanced")
	case errors.Is(err, errStale):
		log.Debug().Str("room_id", roomID).Msg("advance already committed")
	default:
		log.Error().Err(err).Str("room_id", roomID).Msg("round advance failed")
	}
}

// --- local board operations (synchronous, never replicated) ---

// SubmitMove combines two cards. A finishing combine that lands on 24
// claims the win in the background.
func (c *Client) SubmitMove(aID, bID string, op engine.Op) (*cards.Card, bool, error) {
	c.mu.Lock()
	result, won, err := c.engine.Combine(aID, bID, op)
	if won {
		c.won = true
	}
	c.mu.Unlock()
	if err != nil {
		return nil, false, err
	}
	if won {
		c.ClaimWin()
	}
	c.notify()
	return result, won, nil
}

// SelectCard advances the tap-selection state machine; a combine fired
// through it behaves exactly like SubmitMove.
func (c *Client) SelectCard(id string) (*cards.Card, bool, error) {
	c.mu.Lock()
	result, won, err := c.engine.SelectCard(id)
	if won {
		c.won = true
	}
	c.mu.Unlock()
	if err != nil {
		return nil, false, err
	}
	if won {
		c.ClaimWin()
	}
	c.notify()
	return result, won, nil
}

// SelectOp picks or toggles the pending operator.
func (c *Client) SelectOp(op engine.Op) {
	c.mu.Lock()
	c.engine.SelectOp(op)
	c.mu.Unlock()
	c.notify()
}

// Undo reverts the last combine.
func (c *Client) Undo() error {
	c.mu.Lock()
	err := c.engine.Undo()
	c.mu.Unlock()
	if err != nil {
		return err
	}
	c.notify()
	return nil
}

// Reset restores the round's original cards.
func (c *Client) Reset() error {
	c.mu.Lock()
	err := c.engine.Reset()
	c.mu.Unlock()
	if err != nil {
		return err
	}
	c.notify()
	return nil
}

// --- shared room operations (fire-and-forget) ---

// ClaimWin races the compare-and-set on the winner field. Exactly one
// claimant per round gets the score credit; losing the race is silent —
// the player still finishes locally, they just earn nothing.
func (c *Client) ClaimWin() {
	c.fireAndForget("claim win", c.doClaimWin)
}

func (c *Client) doClaimWin(ctx context.Context) error {
	c.mu.Lock()
	roomID, playerID := c.roomID, c.playerID
	c.mu.Unlock()
	if roomID == "" {
		return ErrNotJoined
	}

	now := c.clock.Now()
	err := c.store.ConditionalWrite(ctx, roomID, func(r *room.Room) error {
		if r.Winner != "" {
			return store.ErrCASMismatch
		}
		p, ok := r.Players[playerID]
		if !ok {
			return ErrNotJoined
		}
		r.Winner = playerID
		r.WinTime = &now
		p.Score++
		r.Players[playerID] = p
		return nil
	})
	if errors.Is(err, store.ErrCASMismatch) {
		log.Debug().Str("room_id", roomID).Msg("win already claimed by another player")
		return nil
	}
	return err
}

// StartClock puts the round into its clocked sub-state. Winner only;
// every other client starts its own countdown when it observes the flag.
func (c *Client) StartClock() error {
	c.mu.Lock()
	snap, playerID := c.snap, c.playerID
	c.mu.Unlock()
	if snap == nil {
		return ErrNotJoined
	}
	if snap.Winner != playerID {
		return ErrNotWinner
	}

	c.fireAndForget("start clock", c.doStartClock)
	return nil
}

func (c *Client) doStartClock(ctx context.Context) error {
	c.mu.Lock()
	roomID, playerID := c.roomID, c.playerID
	c.mu.Unlock()
	if roomID == "" {
		return ErrNotJoined
	}
	return c.store.WriteAtomic(ctx, roomID, func(r *room.Room) error {
		if r.Winner != playerID {
			return ErrNotWinner
		}
		r.Clocked = true
		return nil
	})
}

// ReadyUp signals readiness for the next round. Ignored while sitting
// out.
func (c *Client) ReadyUp() {
	c.fireAndForget("ready up", c.doReadyUp)
}

func (c *Client) doReadyUp(ctx context.Context) error {
	return c.withSelf(ctx, func(r *room.Room, p *room.Player) error {
		if p.SittingOut {
			return nil
		}
		p.Ready = true
		return nil
	})
}

// SitOut benches this player: they keep their seat and score but leave
// the ready barrier.
func (c *Client) SitOut() {
	c.fireAndForget("sit out", c.doSitOut)
}

func (c *Client) doSitOut(ctx context.Context) error {
	return c.withSelf(ctx, func(r *room.Room, p *room.Player) error {
		p.SittingOut = true
		p.Ready = false
		return nil
	})
}

// JoinBack returns a benched player to play, snapping the local board to
// the round's current cards; any in-progress local state is discarded.
func (c *Client) JoinBack() {
	c.mu.Lock()
	if c.snap != nil {
		c.engine.SetBoard(c.snap.OriginalCards)
	}
	c.mu.Unlock()

	c.fireAndForget("join back", c.doJoinBack)
	c.notify()
}

func (c *Client) doJoinBack(ctx context.Context) error {
	return c.withSelf(ctx, func(r *room.Room, p *room.Player) error {
		p.SittingOut = false
		return nil
	})
}

// KickPlayer removes another player. Host only; self-kick is forbidden.
// The kicked player's score lands in history like any other removal.
func (c *Client) KickPlayer(targetID string) error {
	c.mu.Lock()
	snap, playerID := c.snap, c.playerID
	c.mu.Unlock()
	if snap == nil {
		return ErrNotJoined
	}
	if snap.Host != playerID {
		return ErrNotHost
	}
	if targetID == playerID {
		return ErrKickSelf
	}

	c.fireAndForget("kick player", func(ctx context.Context) error {
		return c.doKick(ctx, targetID)
	})
	return nil
}

func (c *Client) doKick(ctx context.Context, targetID string) error {
	c.mu.Lock()
	roomID, playerID := c.roomID, c.playerID
	c.mu.Unlock()
	if roomID == "" {
		return ErrNotJoined
	}
	return c.store.WriteAtomic(ctx, roomID, func(r *room.Room) error {
		if r.Host != playerID {
			return ErrNotHost
		}
		if targetID == playerID {
			return ErrKickSelf
		}
		r.RemovePlayer(targetID)
		return nil
	})
}

// StartGame marks the room as playing. Host only.
func (c *Client) StartGame() error {
	c.mu.Lock()
	snap, playerID := c.snap, c.playerID
	c.mu.Unlock()
	if snap == nil {
		return ErrNotJoined
	}
	if snap.Host != playerID {
		return ErrNotHost
	}

	c.fireAndForget("start game", c.doStartGame)
	return nil
}

func (c *Client) doStartGame(ctx context.Context) error {
	c.mu.Lock()
	roomID := c.roomID
	c.mu.Unlock()
	if roomID == "" {
		return ErrNotJoined
	}
	return c.store.WriteAtomic(ctx, roomID, func(r *room.Room) error {
		r.GameStarted = true
		return nil
	})
}

// LeaveRoom is the graceful exit: cancel the deferred disconnect record
// first so it cannot fire later, persist the score into history, drop
// the seat and tear the subscription down.
func (c *Client) LeaveRoom(ctx context.Context) error {
	c.mu.Lock()
	roomID, playerID := c.roomID, c.playerID
	cancelSub, stopBeat := c.cancelSub, c.stopBeat
	c.mu.Unlock()
	if roomID == "" {
		return ErrNotJoined
	}

	if err := c.store.CancelDeferred(ctx, roomID, playerID); err != nil {
		log.Error().Err(err).Str("room_id", roomID).Msg("cancel deferred failed")
	}
	err := c.store.WriteAtomic(ctx, roomID, func(r *room.Room) error {
		r.RemovePlayer(playerID)
		return nil
	})
	if err != nil && !errors.Is(err, store.ErrRoomNotFound) {
		log.Error().Err(err).Str("room_id", roomID).Msg("leave write failed")
	}

	c.detach(cancelSub, stopBeat)
	log.Info().Str("room_id", roomID).Str("player_id", playerID).Msg("left room")
	return nil
}

// CloseRoom clears the shared record. Host only, and only while the room
// is still waiting to start.
func (c *Client) CloseRoom(ctx context.Context) error {
	c.mu.Lock()
	snap, playerID := c.snap, c.playerID
	cancelSub, stopBeat := c.cancelSub, c.stopBeat
	c.mu.Unlock()
	if snap == nil {
		return ErrNotJoined
	}
	if snap.Host != playerID {
		return ErrNotHost
	}
	if snap.GameStarted {
		return ErrGameInProgress
	}

	if err := c.store.CancelDeferred(ctx, snap.ID, playerID); err != nil {
		log.Error().Err(err).Str("room_id", snap.ID).Msg("cancel deferred failed")
	}
	if err := c.store.DeleteRoom(ctx, snap.ID); err != nil && !errors.Is(err, store.ErrRoomNotFound) {
		return err
	}
	c.detach(cancelSub, stopBeat)
	log.Info().Str("room_id", snap.ID).Msg("room closed")
	return nil
}

func (c *Client) detach(cancelSub store.CancelFunc, stopBeat context.CancelFunc) {
	if cancelSub != nil {
		cancelSub()
	}
	if stopBeat != nil {
		stopBeat()
	}
	c.mu.Lock()
	c.countdown.cancel(c.roomID)
	c.roomID = ""
	c.playerID = ""
	c.snap = nil
	c.won = false
	c.engine.SetBoard(nil)
	c.cancelSub = nil
	c.stopBeat = nil
	c.mu.Unlock()
}

// withSelf applies a mutation to this player's own roster entry.
func (c *Client) withSelf(ctx context.Context, fn func(*room.Room, *room.Player) error) error {
	c.mu.Lock()
	roomID, playerID := c.roomID, c.playerID
	c.mu.Unlock()
	if roomID == "" {
		return ErrNotJoined
	}
	return c.store.WriteAtomic(ctx, roomID, func(r *room.Room) error {
		p, ok := r.Players[playerID]
		if !ok {
			return ErrNotJoined
		}
		if err := fn(r, &p); err != nil {
			return err
		}
		r.Players[playerID] = p
		return nil
	})
}

// fireAndForget runs a remote mutation off the caller's goroutine. No
// store failure is fatal: local state keeps its last-known-good view and
// the operation stays retryable.
func (c *Client) fireAndForget(op string, fn func(context.Context) error) {
	go func() {
		if err := fn(context.Background()); err != nil {
			log.Error().Err(err).Str("op", op).Msg("room write failed")
		}
	}()
}

func (c *Client) notify() {
	c.mu.Lock()
	fn := c.onChange
	var snap Snapshot
	if fn != nil {
		snap = c.snapshotLocked()
	}
	c.mu.Unlock()
	if fn != nil {
		fn(snap)
	}
}
