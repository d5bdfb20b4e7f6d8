package relay

import (
	"errors"
	"sync"

	"gossipwatch/gossip"
)

// OverflowPolicy selects what Push does when the channel is full.
type OverflowPolicy string

const (
	// DropOldest evicts the oldest queued record in favor of the newest.
	// This is the default: the pipeline's product value is freshness.
	DropOldest OverflowPolicy = "drop_oldest"
	// Block suspends the producer until space frees up, trading capture
	// latency for completeness.
	Block OverflowPolicy = "block"
)

const defaultCapacity = 1024

// ErrChannelClosed is returned by Push after Close.
var ErrChannelClosed = errors.New("relay: channel closed")

// Channel is the bounded FIFO queue decoupling the capture path from the
// delivery path. It preserves arrival order, so per-peer order holds.
// The only synchronization between the two paths lives here.
type Channel struct {
	mu       sync.Mutex
	notEmpty *sync.Cond
	notFull  *sync.Cond

	buf      []gossip.CapturedRecord
	capacity int
	policy   OverflowPolicy
	closed   bool
	dropped  uint64

	metrics *relayMetrics
}

// NewChannel builds a channel of the given capacity. Non-positive capacity
// and unknown policies select the defaults.
func NewChannel(capacity int, policy OverflowPolicy) *Channel {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	if policy != Block {
		policy = DropOldest
	}
	ch := &Channel{
		buf:      make([]gossip.CapturedRecord, 0, capacity),
		capacity: capacity,
		policy:   policy,
		metrics:  newRelayMetrics(),
	}
	ch.notEmpty = sync.NewCond(&ch.mu)
	ch.notFull = sync.NewCond(&ch.mu)
	return ch
}

// Push enqueues a record. Under DropOldest a full channel sheds its oldest
// record (counted, never silent); under Block the caller suspends until space
// frees up or the channel closes.
func (ch *Channel) Push(rec gossip.CapturedRecord) error {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if ch.closed {
		return ErrChannelClosed
	}
	if len(ch.buf) >= ch.capacity {
		switch ch.policy {
		case Block:
			for len(ch.buf) >= ch.capacity && !ch.closed {
				ch.notFull.Wait()
			}
			if ch.closed {
				return ErrChannelClosed
			}
		default:
			ch.buf = ch.buf[1:]
			ch.dropped++
			ch.metrics.dropped.Inc()
		}
	}
	ch.buf = append(ch.buf, rec)
	ch.metrics.queueDepth.Set(float64(len(ch.buf)))
	ch.notEmpty.Signal()
	return nil
}

// Pop blocks until a record is available or the channel is closed and empty.
// The second return is false only in the latter case, which is the
// forwarder's signal to exit after the drain completes.
func (ch *Channel) Pop() (gossip.CapturedRecord, bool) {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	for len(ch.buf) == 0 {
		if ch.closed {
			return gossip.CapturedRecord{}, false
		}
		ch.notEmpty.Wait()
	}
	rec := ch.buf[0]
	ch.buf = ch.buf[1:]
	ch.metrics.queueDepth.Set(float64(len(ch.buf)))
	ch.notFull.Signal()
	return rec, true
}

// Close rejects further pushes. Queued records remain poppable so the
// forwarder can drain to empty.
func (ch *Channel) Close() {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if ch.closed {
		return
	}
	ch.closed = true
	ch.notEmpty.Broadcast()
	ch.notFull.Broadcast()
}

// Len reports the queued record count.
func (ch *Channel) Len() int {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return len(ch.buf)
}

// Dropped reports the total records shed under backpressure. Monotonic.
func (ch *Channel) Dropped() uint64 {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.dropped
}

// Policy reports the configured overflow policy.
func (ch *Channel) Policy() OverflowPolicy {
	return ch.policy
}
