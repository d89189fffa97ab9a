// Package reactor is the event-loop integration shim (spec.md §4.H /
// design notes §9 "treat the loop as an injected dependency"). It exposes
// exactly one readable file descriptor to a host scheduler; the host never
// drives callbacks directly, it only signals "the loop's fd is readable"
// and calls Poll to advance one non-blocking iteration.
//
// Two backends exist, matching spec.md §4.H: epoll on Linux (the real
// poll-mode backend, grounded on the teacher's reactor/reactor_linux.go),
// and a timer-driven fallback elsewhere, polled at a fixed cadence.
package reactor

// EventType is a bitmask of readiness conditions a registered descriptor
// can be polled for.
type EventType int

const (
	EventRead EventType = 1 << iota
	EventWrite
	EventError
)

// Callback is invoked by Poll for each ready descriptor.
type Callback func(fd int, events EventType)

// Reactor multiplexes readiness notifications for a set of registered file
// descriptors behind a single fd exposed to the host via FD().
type Reactor interface {
	// FD returns the single descriptor the host scheduler polls. Becomes
	// -1 once Close has returned, per spec.md §8 invariant 5.
	FD() int

	// Register starts watching fd for events, invoking cb on readiness.
	Register(fd int, events EventType, cb Callback) error

	// Unregister stops watching fd. A no-op if fd was never registered.
	Unregister(fd int) error

	// Poll advances the loop by one non-blocking iteration (timeoutMs < 0
	// blocks until at least one event or a signal interrupts it).
	Poll(timeoutMs int) error

	// Close releases the backend's resources. Idempotent.
	Close() error
}
