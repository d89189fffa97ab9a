// Package chunkqueue provides a bounded FIFO of byte chunks, used by the
// dispatcher's WebSocket connection adapter to hold outbound frames the
// socket has not accepted yet. It wraps github.com/eapache/queue, a ring-backed
// queue the rest of the retrieved pack's messaging-adjacent services use
// for the same amortized-growth FIFO shape, instead of a hand-rolled
// slice-based queue.
package chunkqueue

import (
	"github.com/eapache/queue"

	"github.com/arvo-systems/chanhttp/api"
)

// Queue is a FIFO of byte chunks bounded by total buffered bytes rather
// than chunk count, matching the backpressure signal spec.md's HTTP and
// WS pub nodes operate on (bytes pending, not message count).
type Queue struct {
	q       *queue.Queue
	byteCap int
	byteLen int
}

// New constructs a Queue that rejects pushes once the buffered byte total
// would exceed byteCap. byteCap <= 0 means unbounded.
func New(byteCap int) *Queue {
	return &Queue{q: queue.New(), byteCap: byteCap}
}

// Push appends a chunk, copying it. Returns api.ErrRingFull if byteCap
// would be exceeded — the same backpressure sentinel the ring buffer uses,
// since both are "this buffer is full" signals.
func (c *Queue) Push(chunk []byte) error {
	if c.byteCap > 0 && c.byteLen+len(chunk) > c.byteCap {
		return api.ErrRingFull
	}
	cp := make([]byte, len(chunk))
	copy(cp, chunk)
	c.q.Add(cp)
	c.byteLen += len(cp)
	return nil
}

// Pop removes and returns the oldest chunk. ok is false if the queue is
// empty.
func (c *Queue) Pop() (chunk []byte, ok bool) {
	if c.q.Length() == 0 {
		return nil, false
	}
	v := c.q.Peek()
	c.q.Remove()
	b := v.([]byte)
	c.byteLen -= len(b)
	return b, true
}

// Peek returns the oldest chunk without removing it.
func (c *Queue) Peek() (chunk []byte, ok bool) {
	if c.q.Length() == 0 {
		return nil, false
	}
	return c.q.Peek().([]byte), true
}

// Len returns the number of buffered chunks.
func (c *Queue) Len() int {
	return c.q.Length()
}

// ByteLen returns the total bytes currently buffered.
func (c *Queue) ByteLen() int {
	return c.byteLen
}

// Drain removes every buffered chunk, invoking fn for each in FIFO order.
func (c *Queue) Drain(fn func(chunk []byte)) {
	for {
		chunk, ok := c.Pop()
		if !ok {
			return
		}
		fn(chunk)
	}
}
