package store

import (
	"context"
	"sync"

	"github.com/make24/make24/internal/room"
)

// Memory is the in-process Store used by tests. It honors the same
// contract as the NATS adapter — per-room ordered delivery, CAS-guarded
// conditional writes, deferred disconnect records — with synchronous
// delivery so tests need no sleeps. The mutex makes concurrent writers
// serialize the same way KV revisions do.
type Memory struct {
	mu       sync.Mutex
	rooms    map[string]*room.Room
	subs     map[string]map[int]func(*room.Room)
	nextSub  int
	deferred map[string]map[string]Deferred
	presence map[string]map[string]bool
}

var _ Store = (*Memory)(nil)

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		rooms:    map[string]*room.Room{},
		subs:     map[string]map[int]func(*room.Room){},
		deferred: map[string]map[string]Deferred{},
		presence: map[string]map[string]bool{},
	}
}

func (m *Memory) CreateRoom(ctx context.Context, r *room.Room) error {
	m.mu.Lock()
	if _, exists := m.rooms[r.ID]; exists {
		m.mu.Unlock()
		return ErrRoomExists
	}
	m.rooms[r.ID] = r.Clone()
	m.mu.Unlock()

	m.notify(r.ID)
	return nil
}

func (m *Memory) ReadOnce(ctx context.Context, roomID string) (*room.Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rooms[roomID]
	if !ok {
		return nil, ErrRoomNotFound
	}
	return r.Clone(), nil
}

func (m *Memory) Subscribe(ctx context.Context, roomID string, onChange func(*room.Room)) (CancelFunc, error) {
	m.mu.Lock()
	if m.subs[roomID] == nil {
		m.subs[roomID] = map[int]func(*room.Room){}
	}
	id := m.nextSub
	m.nextSub++
	m.subs[roomID][id] = onChange
	r, ok := m.rooms[roomID]
	var initial *room.Room
	if ok {
		initial = r.Clone()
	}
	m.mu.Unlock()

	if initial != nil {
		onChange(initial)
	}
	return func() {
		m.mu.Lock()
		delete(m.subs[roomID], id)
		m.mu.Unlock()
	}, nil
}

func (m *Memory) WriteAtomic(ctx context.Context, roomID string, mutate Mutation) error {
	if err := m.apply(roomID, mutate); err != nil {
		return err
	}
	m.notify(roomID)
	return nil
}

// ConditionalWrite and WriteAtomic coincide here: the mutex serializes
// writers, so the mutation's own precondition check is the CAS.
func (m *Memory) ConditionalWrite(ctx context.Context, roomID string, mutate Mutation) error {
	return m.WriteAtomic(ctx, roomID, mutate)
}

func (m *Memory) DeleteRoom(ctx context.Context, roomID string) error {
	m.mu.Lock()
	if _, ok := m.rooms[roomID]; !ok {
		m.mu.Unlock()
		return ErrRoomNotFound
	}
	delete(m.rooms, roomID)
	delete(m.deferred, roomID)
	delete(m.presence, roomID)
	subs := m.snapshotSubs(roomID)
	m.mu.Unlock()

	for _, fn := range subs {
		fn(nil)
	}
	return nil
}

func (m *Memory) RegisterDeferred(ctx context.Context, roomID string, d Deferred) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deferred[roomID] == nil {
		m.deferred[roomID] = map[string]Deferred{}
	}
	m.deferred[roomID][d.PlayerID] = d
	return nil
}

func (m *Memory) CancelDeferred(ctx context.Context, roomID, playerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.deferred[roomID], playerID)
	delete(m.presence[roomID], playerID)
	return nil
}

func (m *Memory) Heartbeat(ctx context.Context, roomID, playerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.presence[roomID] == nil {
		m.presence[roomID] = map[string]bool{}
	}
	m.presence[roomID][playerID] = true
	return nil
}

// ExpirePresence simulates an ungraceful disconnect: the liveness window
// for the player lapses and the recorded deferred cleanup fires, exactly
// as the NATS adapter's sweeper would run it.
func (m *Memory) ExpirePresence(roomID, playerID string) {
	m.mu.Lock()
	d, ok := m.deferred[roomID][playerID]
	if ok {
		delete(m.deferred[roomID], playerID)
	}
	delete(m.presence[roomID], playerID)
	m.mu.Unlock()

	if !ok {
		return // cancelled gracefully; nothing to fire
	}
	_ = m.WriteAtomic(context.Background(), roomID, func(r *room.Room) error {
		r.RemovePlayer(d.PlayerID)
		return nil
	})
}

// HasDeferred reports whether a deferred cleanup is registered; test
// helper.
func (m *Memory) HasDeferred(roomID, playerID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.deferred[roomID][playerID]
	return ok
}

func (m *Memory) apply(roomID string, mutate Mutation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rooms[roomID]
	if !ok {
		return ErrRoomNotFound
	}
	next := r.Clone()
	if err := mutate(next); err != nil {
		return err
	}
	m.rooms[roomID] = next
	return nil
}

// notify delivers the current record to subscribers outside the lock so
// callbacks may call back into the store.
func (m *Memory) notify(roomID string) {
	m.mu.Lock()
	r, ok := m.rooms[roomID]
	if !ok {
		m.mu.Unlock()
		return
	}
	snap := r.Clone()
	subs := m.snapshotSubs(roomID)
	m.mu.Unlock()

	for _, fn := range subs {
		fn(snap.Clone())
	}
}

func (m *Memory) snapshotSubs(roomID string) []func(*room.Room) {
	out := make([]func(*room.Room), 0, len(m.subs[roomID]))
	for _, fn := range m.subs[roomID] {
		out = append(out, fn)
	}
	return out
}
