package chat

import (
	"sync"
	"sync/atomic"
	"time"
)

// retryBackoff is the pause between enqueue attempts when a retry budget
// is configured.
const retryBackoff = time.Millisecond

// Endpoint is the bounded sink installed in a fabric for one peer. The
// fabric enqueues into it; the peer's session writer drains the matching
// Handle. Capacity is fixed at construction and the buffer never grows.
type Endpoint struct {
	mu      sync.Mutex
	ch      chan *Message
	closed  bool
	dropped atomic.Uint64
}

func newEndpoint(capacity int) *Endpoint {
	return &Endpoint{ch: make(chan *Message, capacity)}
}

// TrySend enqueues msg without blocking past the retry budget: one
// attempt plus retries more, a millisecond apart. It returns false when
// the sink is still full after the last attempt or has been closed. A
// send racing an eviction is reported as a failure, never a panic.
func (e *Endpoint) TrySend(msg *Message, retries int) bool {
	for attempt := 0; ; attempt++ {
		e.mu.Lock()
		if e.closed {
			e.mu.Unlock()
			return false
		}
		select {
		case e.ch <- msg:
			e.mu.Unlock()
			return true
		default:
		}
		e.mu.Unlock()

		if attempt >= retries {
			return false
		}
		time.Sleep(retryBackoff)
	}
}

// Close stops future sends. The draining writer still sees whatever was
// buffered, then its channel closes. Safe to call more than once.
func (e *Endpoint) Close() {
	e.mu.Lock()
	if !e.closed {
		e.closed = true
		close(e.ch)
	}
	e.mu.Unlock()
}

// markDropped records one message lost to a full sink. The bus fabric
// uses it for lag accounting.
func (e *Endpoint) markDropped() {
	e.dropped.Add(1)
}

// Handle is the peer side of an endpoint.
type Handle struct {
	ep *Endpoint
}

// C is the stream of messages for this peer. It closes on eviction.
func (h *Handle) C() <-chan *Message {
	return h.ep.ch
}

// TakeLagged returns and resets the number of messages dropped for this
// peer since the last call.
func (h *Handle) TakeLagged() uint64 {
	return h.ep.dropped.Swap(0)
}
