package hub

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"listenify.dev/syncengine/internal/utils"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestHub(capacity int) *RoomHub {
	return NewRoomHub(uuid.New(), capacity, utils.NewLogger())
}

func TestBroadcastDeliversToAllSubscribers(t *testing.T) {
	h := newTestHub(4)
	frameA, _ := h.Attach(uuid.New())
	frameB, _ := h.Attach(uuid.New())

	h.Broadcast([]byte("hello"))

	assert.Equal(t, []byte("hello"), <-frameA)
	assert.Equal(t, []byte("hello"), <-frameB)
}

func TestDetachStopsDelivery(t *testing.T) {
	h := newTestHub(4)
	conn := uuid.New()
	frames, reason := h.Attach(conn)

	h.Detach(conn)

	r, ok := <-reason
	require.True(t, ok)
	assert.Equal(t, "", r)
	_, ok = <-frames
	assert.False(t, ok, "frame channel should be closed after detach")
	assert.Equal(t, 0, h.Count())
}

func TestBroadcastReapsSlowSubscriber(t *testing.T) {
	h := newTestHub(1)
	var reaped string
	h.SetReapHook(func(reason string) { reaped = reason })

	conn := uuid.New()
	frames, reasonCh := h.Attach(conn)

	// Fill the bounded queue, then overflow it so the next broadcast
	// finds tryEnqueue failing and reaps the subscriber.
	h.Broadcast([]byte("one"))
	h.Broadcast([]byte("two"))

	r := <-reasonCh
	assert.Equal(t, "slow_subscriber", r)
	assert.Equal(t, "slow_subscriber", reaped)
	assert.Equal(t, 0, h.Count())

	// The already-queued frame is still readable even after the
	// subscriber is reaped; the queue itself isn't drained on close.
	assert.Equal(t, []byte("one"), <-frames)
}

// TestConcurrentBroadcastAndDetach is the regression test for the
// send-on-closed-channel race: one goroutine keeps broadcasting while
// another concurrently detaches the same subscriber. Before
// subscriber.tryEnqueue/close were guarded by the same mutex, this could
// panic with "send on closed channel" under -race.
func TestConcurrentBroadcastAndDetach(t *testing.T) {
	h := newTestHub(8)
	conn := uuid.New()
	frames, _ := h.Attach(conn)

	// Drain in the background so Broadcast's non-blocking send keeps
	// succeeding instead of immediately reaping the subscriber, which
	// would end the race before Detach gets a chance to run concurrently.
	drainDone := make(chan struct{})
	go func() {
		defer close(drainDone)
		for range frames {
		}
	}()

	var wg sync.WaitGroup
	wg.Add(2)
	deadline := time.Now().Add(20 * time.Millisecond)

	go func() {
		defer wg.Done()
		for time.Now().Before(deadline) {
			h.Broadcast([]byte("payload"))
		}
	}()

	go func() {
		defer wg.Done()
		time.Sleep(time.Millisecond)
		h.Detach(conn)
	}()

	wg.Wait()
	<-drainDone
}
