// Package session implements the per-node address→handle table (spec.md
// §4.B). It generalizes the teacher's sharded, mutex-guarded
// internal/session.SessionManager: the sharding and per-shard RWMutex
// existed there to support cross-goroutine access, which this module's
// single-threaded cooperative model (spec.md §5) never needs — every
// table here is touched only by its owning node on the dispatcher's one
// worker thread. What is kept from the teacher is the Manager-style
// interface and the monotonic-ID-minting idea.
package session

import "github.com/arvo-systems/chanhttp/api"

// Table maps api.Address to an opaque per-kind connection handle H. The
// zero value is not usable; construct with New.
type Table[H any] struct {
	next    api.Address
	entries map[api.Address]H
}

// New constructs an empty table. Addresses are minted starting at 1 so the
// zero Address is never a live session, making a zero-valued Address a
// safe "no session" sentinel for callers that need one.
func New[H any]() *Table[H] {
	return &Table[H]{entries: make(map[api.Address]H)}
}

// Mint allocates the next address for this table. Panics on the
// practically unreachable 64-bit wraparound, per spec.md §3.
func (t *Table[H]) Mint() api.Address {
	t.next++
	if t.next == 0 {
		panic("session: address space exhausted")
	}
	return t.next
}

// Insert adds a handle under addr. Returns api.ErrDuplicateAddress if addr
// is already present (should not happen given Mint's monotonicity, but
// guards against misuse).
func (t *Table[H]) Insert(addr api.Address, h H) error {
	if _, exists := t.entries[addr]; exists {
		return api.ErrDuplicateAddress
	}
	t.entries[addr] = h
	return nil
}

// Get fetches the handle for addr.
func (t *Table[H]) Get(addr api.Address) (H, bool) {
	h, ok := t.entries[addr]
	return h, ok
}

// Delete removes addr from the table; a no-op if absent.
func (t *Table[H]) Delete(addr api.Address) {
	delete(t.entries, addr)
}

// Len reports the number of live sessions.
func (t *Table[H]) Len() int {
	return len(t.entries)
}

// Range calls fn for every live session. fn may delete the session it was
// just called with (or any other); Go's map iteration tolerates deletion
// mid-range, which is how eviction during a broadcast is implemented.
func (t *Table[H]) Range(fn func(api.Address, H)) {
	for addr, h := range t.entries {
		fn(addr, h)
	}
}

// CloseAll calls closeFn for every live session and empties the table. The
// table never outlives its owning node (spec.md §4.B): this is the only
// path a node's Close should use to tear down sessions.
func (t *Table[H]) CloseAll(closeFn func(api.Address, H)) {
	for addr, h := range t.entries {
		closeFn(addr, h)
	}
	t.entries = make(map[api.Address]H)
}
