package store

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/make24/make24/internal/room"
)

func seedRoom(t *testing.T, m *Memory, id string) {
	t.Helper()
	err := m.CreateRoom(context.Background(), &room.Room{
		ID:       id,
		Capacity: 4,
		Players: map[string]room.Player{
			"p1": {ID: "p1", Name: "alice"},
			"p2": {ID: "p2", Name: "bob"},
		},
		RoundNumber:  1,
		ScoreHistory: map[string]int{},
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func TestConditionalWriteFirstWriterWins(t *testing.T) {
	m := NewMemory()
	seedRoom(t, m, "R1")

	var mismatches int
	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, claimant := range []string{"p1", "p2"} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			err := m.ConditionalWrite(context.Background(), "R1", func(r *room.Room) error {
				if r.Winner != "" {
					return ErrCASMismatch
				}
				r.Winner = id
				return nil
			})
			if errors.Is(err, ErrCASMismatch) {
				mu.Lock()
				mismatches++
				mu.Unlock()
			} else if err != nil {
				t.Errorf("conditional write: %v", err)
			}
		}(claimant)
	}
	wg.Wait()

	if mismatches != 1 {
		t.Fatalf("%d mismatches, want exactly 1", mismatches)
	}
	r, _ := m.ReadOnce(context.Background(), "R1")
	if r.Winner != "p1" && r.Winner != "p2" {
		t.Fatalf("winner = %q", r.Winner)
	}
}

func TestSubscribeDeliversEveryWrite(t *testing.T) {
	m := NewMemory()
	seedRoom(t, m, "R1")

	var rounds []int
	cancel, err := m.Subscribe(context.Background(), "R1", func(r *room.Room) {
		if r != nil {
			rounds = append(rounds, r.RoundNumber)
		}
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	for i := 0; i < 3; i++ {
		err := m.WriteAtomic(context.Background(), "R1", func(r *room.Room) error {
			r.RoundNumber++
			return nil
		})
		if err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
	}

	want := []int{1, 2, 3, 4} // initial snapshot plus three writes, in order
	if len(rounds) != len(want) {
		t.Fatalf("delivered %v, want %v", rounds, want)
	}
	for i := range want {
		if rounds[i] != want[i] {
			t.Fatalf("delivered %v, want %v", rounds, want)
		}
	}
}

func TestWriteAtomicMutationErrorAborts(t *testing.T) {
	m := NewMemory()
	seedRoom(t, m, "R1")

	boom := errors.New("precondition failed")
	err := m.WriteAtomic(context.Background(), "R1", func(r *room.Room) error {
		r.RoundNumber = 99
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("error = %v, want %v", err, boom)
	}
	r, _ := m.ReadOnce(context.Background(), "R1")
	if r.RoundNumber != 1 {
		t.Fatalf("aborted mutation leaked: round = %d", r.RoundNumber)
	}
}

func TestDeleteRoomNotifiesNil(t *testing.T) {
	m := NewMemory()
	seedRoom(t, m, "R1")

	gotNil := false
	cancel, err := m.Subscribe(context.Background(), "R1", func(r *room.Room) {
		if r == nil {
			gotNil = true
		}
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	if err := m.DeleteRoom(context.Background(), "R1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if !gotNil {
		t.Fatalf("deletion not delivered as nil record")
	}
	if _, err := m.ReadOnce(context.Background(), "R1"); !errors.Is(err, ErrRoomNotFound) {
		t.Fatalf("read after delete error = %v, want ErrRoomNotFound", err)
	}
}
