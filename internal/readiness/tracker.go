// Package readiness tracks each room member's most recent ready report so
// the Host Command Pipeline can answer "how many members are ready right
// now" without a round trip to the Ephemeral State Store. It mirrors the
// teacher's presence-manager TTL idiom, but keeps the freshness window as
// coordinator-local process state rather than a Redis key: the window is
// only ever consulted by the room's own connection, never cross-process.
package readiness

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Tracker records the last time each room member reported ready=true.
type Tracker struct {
	mu    sync.Mutex
	rooms map[uuid.UUID]map[uuid.UUID]time.Time
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{rooms: make(map[uuid.UUID]map[uuid.UUID]time.Time)}
}

// Report records userID's ready status in roomID at time now. A ready=false
// report clears any previous ready timestamp rather than storing a
// not-ready mark, since ReadyCount only ever needs to know the last time
// a member was ready.
func (t *Tracker) Report(roomID, userID uuid.UUID, ready bool, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	members, ok := t.rooms[roomID]
	if !ok {
		if !ready {
			return
		}
		members = make(map[uuid.UUID]time.Time)
		t.rooms[roomID] = members
	}
	if ready {
		members[userID] = now
	} else {
		delete(members, userID)
	}
}

// ReadyCount returns the number of members in roomID whose last ready
// report falls within window of now.
func (t *Tracker) ReadyCount(roomID uuid.UUID, window time.Duration, now time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	members, ok := t.rooms[roomID]
	if !ok {
		return 0
	}
	count := 0
	for _, at := range members {
		if now.Sub(at) <= window {
			count++
		}
	}
	return count
}

// Forget drops all tracked state for roomID. The tracker never drops a
// room's state on its own, including when the room goes INACTIVE; a room's
// entries stay until Forget is called for it.
func (t *Tracker) Forget(roomID uuid.UUID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.rooms, roomID)
}
