package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"

	"github.com/make24/make24/internal/room"
)

// maxWriteRetries caps the read-modify-write loop in WriteAtomic. Rooms
// hold at most six writers, so contention clears fast.
const maxWriteRetries = 5

// NATSConfig holds bucket names and liveness windows for the KV adapter.
type NATSConfig struct {
	RoomsBucket    string
	PresenceBucket string
	// PresenceTTL lets the server GC stale presence values; liveness
	// detection itself runs on ExpireAfter below, not on bucket TTL.
	PresenceTTL   time.Duration
	ExpireAfter   time.Duration
	SweepInterval time.Duration
	Replicas      int
}

// DefaultNATSConfig returns the production defaults.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		RoomsBucket:    "MAKE24_ROOMS",
		PresenceBucket: "MAKE24_PRESENCE",
		PresenceTTL:    time.Hour,
		ExpireAfter:    15 * time.Second,
		SweepInterval:  5 * time.Second,
		Replicas:       1,
	}
}

// NATS replicates room records through two JetStream key-value buckets:
// one key per room in the rooms bucket (whole record as JSON, so every
// multi-field transition is one write and revisions give us
// compare-and-set), and one heartbeat key per player in the presence
// bucket. Deferred disconnect records live in the rooms bucket under a
// "deferred." prefix; a sweeper started with each subscription fires them
// when a heartbeat lapses past the liveness window. Firing is idempotent,
// so several clients sweeping the same room is harmless.
type NATS struct {
	rooms    jetstream.KeyValue
	presence jetstream.KeyValue
	clock    clockwork.Clock
	cfg      NATSConfig
}

var _ Store = (*NATS)(nil)

// NewNATS binds (or creates) the buckets on an existing JetStream
// context.
func NewNATS(ctx context.Context, js jetstream.JetStream, cfg NATSConfig, clock clockwork.Clock) (*NATS, error) {
	rooms, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      cfg.RoomsBucket,
		Description: "make24 room records",
		Replicas:    cfg.Replicas,
	})
	if err != nil {
		return nil, fmt.Errorf("bind rooms bucket: %w", err)
	}
	presence, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      cfg.PresenceBucket,
		Description: "make24 player heartbeats",
		TTL:         cfg.PresenceTTL,
		Replicas:    cfg.Replicas,
	})
	if err != nil {
		return nil, fmt.Errorf("bind presence bucket: %w", err)
	}
	return &NATS{rooms: rooms, presence: presence, clock: clock, cfg: cfg}, nil
}

func roomKey(roomID string) string { return "room." + roomID }

func deferredKey(roomID, playerID string) string {
	return "deferred." + roomID + "." + playerID
}

func presenceKey(roomID, playerID string) string {
	return roomID + "." + playerID
}

func (n *NATS) CreateRoom(ctx context.Context, r *room.Room) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal room: %w", err)
	}
	if _, err := n.rooms.Create(ctx, roomKey(r.ID), data); err != nil {
		if errors.Is(err, jetstream.ErrKeyExists) {
			return ErrRoomExists
		}
		return fmt.Errorf("create room %s: %w", r.ID, err)
	}
	return nil
}

func (n *NATS) ReadOnce(ctx context.Context, roomID string) (*room.Room, error) {
	entry, err := n.rooms.Get(ctx, roomKey(roomID))
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, ErrRoomNotFound
		}
		return nil, fmt.Errorf("read room %s: %w", roomID, err)
	}
	var r room.Room
	if err := json.Unmarshal(entry.Value(), &r); err != nil {
		return nil, fmt.Errorf("unmarshal room %s: %w", roomID, err)
	}
	return &r, nil
}

func (n *NATS) Subscribe(ctx context.Context, roomID string, onChange func(*room.Room)) (CancelFunc, error) {
	watchCtx, cancel := context.WithCancel(ctx)
	watcher, err := n.rooms.Watch(watchCtx, roomKey(roomID))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("watch room %s: %w", roomID, err)
	}

	go func() {
		for entry := range watcher.Updates() {
			if entry == nil {
				continue // end-of-initial-values marker
			}
			switch entry.Operation() {
			case jetstream.KeyValuePut:
				var r room.Room
				if err := json.Unmarshal(entry.Value(), &r); err != nil {
					log.Error().Err(err).Str("room_id", roomID).Msg("dropping undecodable room update")
					continue
				}
				onChange(&r)
			case jetstream.KeyValueDelete, jetstream.KeyValuePurge:
				onChange(nil)
			}
		}
	}()

	go n.sweepPresence(watchCtx, roomID)

	return func() {
		_ = watcher.Stop()
		cancel()
	}, nil
}

func (n *NATS) WriteAtomic(ctx context.Context, roomID string, mutate Mutation) error {
	for attempt := 0; attempt < maxWriteRetries; attempt++ {
		entry, err := n.rooms.Get(ctx, roomKey(roomID))
		if err != nil {
			if errors.Is(err, jetstream.ErrKeyNotFound) {
				return ErrRoomNotFound
			}
			return fmt.Errorf("read room %s: %w", roomID, err)
		}
		var r room.Room
		if err := json.Unmarshal(entry.Value(), &r); err != nil {
			return fmt.Errorf("unmarshal room %s: %w", roomID, err)
		}
		if err := mutate(&r); err != nil {
			return err
		}
		data, err := json.Marshal(&r)
		if err != nil {
			return fmt.Errorf("marshal room %s: %w", roomID, err)
		}
		_, err = n.rooms.Update(ctx, roomKey(roomID), data, entry.Revision())
		if err == nil {
			return nil
		}
		if !isCASConflict(err) {
			return fmt.Errorf("write room %s: %w", roomID, err)
		}
		log.Debug().Str("room_id", roomID).Int("attempt", attempt+1).Msg("write conflict, retrying")
	}
	return ErrConflict
}

func (n *NATS) ConditionalWrite(ctx context.Context, roomID string, mutate Mutation) error {
	entry, err := n.rooms.Get(ctx, roomKey(roomID))
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return ErrRoomNotFound
		}
		return fmt.Errorf("read room %s: %w", roomID, err)
	}
	var r room.Room
	if err := json.Unmarshal(entry.Value(), &r); err != nil {
		return fmt.Errorf("unmarshal room %s: %w", roomID, err)
	}
	if err := mutate(&r); err != nil {
		return err
	}
	data, err := json.Marshal(&r)
	if err != nil {
		return fmt.Errorf("marshal room %s: %w", roomID, err)
	}
	if _, err := n.rooms.Update(ctx, roomKey(roomID), data, entry.Revision()); err != nil {
		if isCASConflict(err) {
			return ErrCASMismatch
		}
		return fmt.Errorf("write room %s: %w", roomID, err)
	}
	return nil
}

func (n *NATS) DeleteRoom(ctx context.Context, roomID string) error {
	if err := n.rooms.Delete(ctx, roomKey(roomID)); err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return ErrRoomNotFound
		}
		return fmt.Errorf("delete room %s: %w", roomID, err)
	}
	return nil
}

func (n *NATS) RegisterDeferred(ctx context.Context, roomID string, d Deferred) error {
	data, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("marshal deferred: %w", err)
	}
	if _, err := n.rooms.Put(ctx, deferredKey(roomID, d.PlayerID), data); err != nil {
		return fmt.Errorf("register deferred for %s: %w", d.PlayerID, err)
	}
	return nil
}

func (n *NATS) CancelDeferred(ctx context.Context, roomID, playerID string) error {
	if err := n.rooms.Delete(ctx, deferredKey(roomID, playerID)); err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
		return fmt.Errorf("cancel deferred for %s: %w", playerID, err)
	}
	if err := n.presence.Delete(ctx, presenceKey(roomID, playerID)); err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
		return fmt.Errorf("drop presence for %s: %w", playerID, err)
	}
	return nil
}

func (n *NATS) Heartbeat(ctx context.Context, roomID, playerID string) error {
	beat := strconv.FormatInt(n.clock.Now().UnixNano(), 10)
	if _, err := n.presence.Put(ctx, presenceKey(roomID, playerID), []byte(beat)); err != nil {
		return fmt.Errorf("heartbeat %s: %w", playerID, err)
	}
	return nil
}

// sweepPresence watches for lapsed heartbeats in one room and fires their
// deferred cleanups. Every subscribed client runs one of these; the
// cleanup mutation is idempotent, so duplicate firing across clients (or
// across at-least-once deliveries) converges to the same roster.
func (n *NATS) sweepPresence(ctx context.Context, roomID string) {
	ticker := n.clock.NewTicker(n.cfg.SweepInterval)
	defer ticker.Stop()

	prefix := roomID + "."
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
		}

		lister, err := n.presence.ListKeys(ctx)
		if err != nil {
			log.Error().Err(err).Str("room_id", roomID).Msg("presence sweep failed to list keys")
			continue
		}
		var lapsed []string
		for key := range lister.Keys() {
			if !strings.HasPrefix(key, prefix) {
				continue
			}
			entry, err := n.presence.Get(ctx, key)
			if err != nil {
				continue // expired between list and get
			}
			beat, err := strconv.ParseInt(string(entry.Value()), 10, 64)
			if err != nil {
				continue
			}
			if n.clock.Now().Sub(time.Unix(0, beat)) > n.cfg.ExpireAfter {
				lapsed = append(lapsed, strings.TrimPrefix(key, prefix))
			}
		}
		for _, playerID := range lapsed {
			n.fireDeferred(ctx, roomID, playerID)
		}
	}
}

func (n *NATS) fireDeferred(ctx context.Context, roomID, playerID string) {
	entry, err := n.rooms.Get(ctx, deferredKey(roomID, playerID))
	if err != nil {
		// No record: cancelled by a graceful leave or already fired by
		// another sweeper. Just drop the stale presence key.
		_ = n.presence.Delete(ctx, presenceKey(roomID, playerID))
		return
	}
	var d Deferred
	if err := json.Unmarshal(entry.Value(), &d); err != nil {
		log.Error().Err(err).Str("player_id", playerID).Msg("dropping undecodable deferred record")
		_ = n.rooms.Delete(ctx, deferredKey(roomID, playerID))
		return
	}

	log.Info().
		Str("room_id", roomID).
		Str("player_id", playerID).
		Msg("presence lapsed, firing deferred disconnect cleanup")

	err = n.WriteAtomic(ctx, roomID, func(r *room.Room) error {
		r.RemovePlayer(d.PlayerID)
		return nil
	})
	if err != nil && !errors.Is(err, ErrRoomNotFound) {
		log.Error().Err(err).Str("player_id", playerID).Msg("deferred cleanup write failed, will retry next sweep")
		return
	}
	_ = n.rooms.Delete(ctx, deferredKey(roomID, playerID))
	_ = n.presence.Delete(ctx, presenceKey(roomID, playerID))
}

func isCASConflict(err error) bool {
	if errors.Is(err, jetstream.ErrKeyExists) {
		return true
	}
	var apiErr *jetstream.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode == jetstream.JSErrCodeStreamWrongLastSequence
}
