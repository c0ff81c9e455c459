package client

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// countdown runs at most one timer per key. Each client counts down
// locally from the moment it observes the clocked flag; there is no
// shared absolute deadline.
type countdown struct {
	clock clockwork.Clock

	mu     sync.Mutex
	timers map[string]*timerEntry
}

type timerEntry struct {
	timer clockwork.Timer
	done  chan struct{}
}

func newCountdown(clock clockwork.Clock) *countdown {
	return &countdown{clock: clock, timers: map[string]*timerEntry{}}
}

// start arms (or re-arms) the timer for key; fire runs once when it
// elapses unless cancel gets there first.
func (cd *countdown) start(key string, d time.Duration, fire func()) {
	entry := &timerEntry{timer: cd.clock.NewTimer(d), done: make(chan struct{})}

	cd.mu.Lock()
	if prev, ok := cd.timers[key]; ok {
		stopAndDrainTimer(prev.timer)
		close(prev.done)
	}
	cd.timers[key] = entry
	cd.mu.Unlock()

	go func() {
		select {
		case <-entry.timer.Chan():
			cd.remove(key, entry)
			fire()
		case <-entry.done:
		}
	}()
}

// cancel disarms the timer for key, if any.
func (cd *countdown) cancel(key string) {
	cd.mu.Lock()
	defer cd.mu.Unlock()
	if entry, ok := cd.timers[key]; ok {
		stopAndDrainTimer(entry.timer)
		close(entry.done)
		delete(cd.timers, key)
	}
}

func (cd *countdown) remove(key string, entry *timerEntry) {
	cd.mu.Lock()
	defer cd.mu.Unlock()
	if cd.timers[key] == entry {
		delete(cd.timers, key)
	}
}

// stopAndDrainTimer stops a timer and drains its channel so a fired-but-
// unread tick cannot leak into a later arm of the same key.
func stopAndDrainTimer(t clockwork.Timer) {
	if !t.Stop() {
		select {
		case <-t.Chan():
		default:
		}
	}
}
