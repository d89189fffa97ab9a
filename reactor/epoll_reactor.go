//go:build linux

package reactor

import (
	"fmt"
	"sync"

	"golang.org/x/sys/unix"
)

// epollReactor is the Linux backend, grounded on the teacher's
// reactor/reactor_linux.go (golang.org/x/sys/unix.EpollCreate1/EpollCtl/
// EpollWait) generalized to expose FD() and per-fd event masks/callbacks
// instead of hardcoding EPOLLIN|EPOLLOUT on every Register call.
type epollReactor struct {
	mu    sync.Mutex
	epfd  int
	cbs   map[int]Callback
	closed bool
}

// New constructs the Linux epoll-backed Reactor.
func New() (Reactor, error) {
	epfd, err := unix.EpollCreate1(0)
	if err != nil {
		return nil, fmt.Errorf("reactor: epoll_create1: %w", err)
	}
	return &epollReactor{epfd: epfd, cbs: make(map[int]Callback)}, nil
}

func (r *epollReactor) FD() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return -1
	}
	return r.epfd
}

func toEpollMask(events EventType) uint32 {
	var m uint32
	if events&EventRead != 0 {
		m |= unix.EPOLLIN
	}
	if events&EventWrite != 0 {
		m |= unix.EPOLLOUT
	}
	return m
}

func (r *epollReactor) Register(fd int, events EventType, cb Callback) error {
	ev := &unix.EpollEvent{Events: toEpollMask(events), Fd: int32(fd)}
	if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_ADD, fd, ev); err != nil {
		return fmt.Errorf("reactor: epoll_ctl add: %w", err)
	}
	r.mu.Lock()
	r.cbs[fd] = cb
	r.mu.Unlock()
	return nil
}

func (r *epollReactor) Unregister(fd int) error {
	r.mu.Lock()
	_, ok := r.cbs[fd]
	delete(r.cbs, fd)
	r.mu.Unlock()
	if !ok {
		return nil
	}
	if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_DEL, fd, nil); err != nil {
		return fmt.Errorf("reactor: epoll_ctl del: %w", err)
	}
	return nil
}

func (r *epollReactor) Poll(timeoutMs int) error {
	const maxEvents = 128
	var raw [maxEvents]unix.EpollEvent

	n, err := unix.EpollWait(r.epfd, raw[:], timeoutMs)
	if err != nil {
		if err == unix.EINTR {
			return nil
		}
		return fmt.Errorf("reactor: epoll_wait: %w", err)
	}

	for i := 0; i < n; i++ {
		fd := int(raw[i].Fd)

		r.mu.Lock()
		cb, ok := r.cbs[fd]
		r.mu.Unlock()
		if !ok {
			continue
		}

		var events EventType
		if raw[i].Events&unix.EPOLLIN != 0 {
			events |= EventRead
		}
		if raw[i].Events&unix.EPOLLOUT != 0 {
			events |= EventWrite
		}
		if raw[i].Events&(unix.EPOLLERR|unix.EPOLLHUP) != 0 {
			events |= EventError
		}

		func() {
			defer func() { _ = recover() }()
			cb(fd, events)
		}()
	}
	return nil
}

func (r *epollReactor) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	epfd := r.epfd
	r.mu.Unlock()
	return unix.Close(epfd)
}
