// Package ringbuf implements the bounded FIFO ring buffer with cursors
// required by the WS publish node (spec.md §4.A). It generalizes the
// teacher's lock-free pool.RingBuffer[T] (head/tail monotonic counters over
// a power-of-two backing array) to carry variable-length byte payloads and
// to expose stable, multi-reader cursors instead of a single consuming
// Dequeue.
//
// The ring is accessed from exactly one goroutine (the dispatcher's worker
// thread, per spec.md §5); no internal locking is performed.
package ringbuf

import "github.com/arvo-systems/chanhttp/api"

// Position is a monotonically increasing slot index. It never wraps in
// practice (a uint64 counter advancing once per push exhausts at a rate no
// real deployment reaches). Position values are comparable with ==: a
// cursor referenced the slot a pop drops iff it equals the Begin() value
// captured just before that pop (Begin() itself moves one past it).
type Position uint64

// Ring is a bounded FIFO of opaque byte payloads with a fixed slot count
// and a fixed total payload byte budget.
type Ring struct {
	slots   [][]byte // backing array, len == slotCap, indexed by pos % slotCap
	slotCap int
	dataCap int
	dataLen int
	head    Position // Begin(): position of the oldest live slot
	tail    Position // End(): one past the newest live slot

	opened bool // true once the owning node has completed Open; forbids Resize/ResizeData
}

// New allocates a ring with the given slot and data capacities.
func New(slotCap, dataCap int) *Ring {
	if slotCap <= 0 {
		slotCap = DefaultSlotCap
	}
	if dataCap <= 0 {
		dataCap = DefaultDataCap
	}
	return &Ring{
		slots:   make([][]byte, slotCap),
		slotCap: slotCap,
		dataCap: dataCap,
	}
}

const (
	DefaultSlotCap = 1024
	DefaultDataCap = 1 << 20
)

// Begin returns the position of the oldest live slot, or equal to End() if
// the ring is empty.
func (r *Ring) Begin() Position { return r.head }

// End returns the position one past the newest live slot. It advances by
// one on each push and is not moved by pops; a value saved before a push
// equals the position of the slot that push creates. It marks "caught up"
// for a freshly attached subscriber.
func (r *Ring) End() Position { return r.tail }

// DataCapacity returns the configured byte budget.
func (r *Ring) DataCapacity() int { return r.dataCap }

// SlotCapacity returns the configured slot count.
func (r *Ring) SlotCapacity() int { return r.slotCap }

// Len returns the number of live slots.
func (r *Ring) Len() int { return int(r.tail - r.head) }

// PushBack appends a copy of payload. It returns the new slot's position
// and a nil error on success, or api.ErrRingFull if either the slot count or the
// data-capacity budget would be exceeded; the caller does not advance.
func (r *Ring) PushBack(payload []byte) (Position, error) {
	if int(r.tail-r.head) >= r.slotCap {
		return 0, api.ErrRingFull
	}
	if r.dataLen+len(payload) > r.dataCap {
		return 0, api.ErrRingFull
	}
	cp := make([]byte, len(payload))
	copy(cp, payload)

	idx := int(r.tail) % r.slotCap
	r.slots[idx] = cp
	r.dataLen += len(cp)
	pos := r.tail
	r.tail++
	return pos, nil
}

// PopFront removes the oldest live slot; a no-op on an empty ring.
func (r *Ring) PopFront() {
	if r.head == r.tail {
		return
	}
	idx := int(r.head) % r.slotCap
	r.dataLen -= len(r.slots[idx])
	r.slots[idx] = nil
	r.head++
}

// At dereferences a cursor. ok is false if pos is not currently live (it
// equals End(), or it referenced a slot since popped, or it is otherwise
// out of [Begin(), End())).
func (r *Ring) At(pos Position) (payload []byte, ok bool) {
	if pos < r.head || pos >= r.tail {
		return nil, false
	}
	return r.slots[int(pos)%r.slotCap], true
}

// Clear empties the ring without changing its capacities.
func (r *Ring) Clear() {
	for i := range r.slots {
		r.slots[i] = nil
	}
	r.head = 0
	r.tail = 0
	r.dataLen = 0
}

// MarkOpened freezes the ring's capacities; subsequent Resize/ResizeData
// calls fail. node.NewPubNode calls it right after allocating the ring,
// so a pub node's ring can never be resized, per the Open Question
// decision in SPEC_FULL.md (a subscriber could otherwise observe a
// capacity change mid-subscription).
func (r *Ring) MarkOpened() { r.opened = true }

// Resize changes the slot capacity. Only valid before MarkOpened; it
// clears the ring, discarding any live slots.
func (r *Ring) Resize(slots int) error {
	if r.opened {
		return api.ErrResizeAfterOpen
	}
	if slots <= 0 {
		return api.ErrInvalidRingSize
	}
	r.Clear()
	r.slots = make([][]byte, slots)
	r.slotCap = slots
	return nil
}

// ResizeData changes the byte-capacity budget. Only valid before
// MarkOpened; it clears the ring, discarding any live slots.
func (r *Ring) ResizeData(bytes int) error {
	if r.opened {
		return api.ErrResizeAfterOpen
	}
	if bytes <= 0 {
		return api.ErrInvalidRingSize
	}
	r.Clear()
	r.dataCap = bytes
	return nil
}
