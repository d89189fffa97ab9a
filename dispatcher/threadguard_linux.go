//go:build linux

package dispatcher

import "golang.org/x/sys/unix"

// currentThreadID returns the calling OS thread's id. Used by Dispatcher
// to enforce "at most one dispatcher per worker thread" (spec.md §5)
// without a hidden thread-local, per the design note in spec.md §9: an
// explicit identity recorded by Open and checked by Process.
func currentThreadID() int {
	return unix.Gettid()
}
