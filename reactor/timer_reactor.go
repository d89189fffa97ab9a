//go:build !linux

package reactor

import (
	"os"
	"sync"
	"time"
)

// tickInterval matches the 100ms cadence used by the original
// implementation's timer-fd fallback (spec.md §4.H).
const tickInterval = 100 * time.Millisecond

// timerReactor is the non-Linux fallback backend: a self-pipe ticked at a
// fixed cadence instead of a real epoll/kqueue readiness fd. The host still
// only ever sees one fd and calls Poll on it; registered callbacks are
// expected to perform their own non-blocking I/O attempt on each tick
// rather than relying on a readiness notification, exactly as spec.md
// §4.H's backend (ii) describes.
type timerReactor struct {
	mu     sync.Mutex
	r, w   *os.File
	cbs    map[int]Callback
	ticker *time.Ticker
	done   chan struct{}
	closed bool
}

// New constructs the timer-driven fallback Reactor.
func New() (Reactor, error) {
	r, w, err := os.Pipe()
	if err != nil {
		return nil, err
	}
	tr := &timerReactor{
		r:      r,
		w:      w,
		cbs:    make(map[int]Callback),
		ticker: time.NewTicker(tickInterval),
		done:   make(chan struct{}),
	}
	go tr.tick()
	return tr, nil
}

func (r *timerReactor) tick() {
	for {
		select {
		case <-r.done:
			return
		case <-r.ticker.C:
			_, _ = r.w.Write([]byte{0})
		}
	}
}

func (r *timerReactor) FD() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return -1
	}
	return int(r.r.Fd())
}

func (r *timerReactor) Register(fd int, events EventType, cb Callback) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cbs[fd] = cb
	return nil
}

func (r *timerReactor) Unregister(fd int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.cbs, fd)
	return nil
}

// Poll drains the self-pipe's pending ticks and invokes every registered
// callback with EventRead, letting each attempt its own non-blocking I/O.
func (r *timerReactor) Poll(timeoutMs int) error {
	buf := make([]byte, 64)
	_ = r.r.SetReadDeadline(time.Now().Add(time.Duration(max(timeoutMs, 0)) * time.Millisecond))
	_, _ = r.r.Read(buf)

	r.mu.Lock()
	cbs := make([]Callback, 0, len(r.cbs))
	fds := make([]int, 0, len(r.cbs))
	for fd, cb := range r.cbs {
		fds = append(fds, fd)
		cbs = append(cbs, cb)
	}
	r.mu.Unlock()

	for i, cb := range cbs {
		fd := fds[i]
		func() {
			defer func() { _ = recover() }()
			cb(fd, EventRead)
		}()
	}
	return nil
}

func (r *timerReactor) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	close(r.done)
	r.ticker.Stop()
	_ = r.w.Close()
	return r.r.Close()
}
