//go:build !linux

package dispatcher

// currentThreadID has no portable equivalent of gettid outside Linux; the
// cross-thread rule degrades to "always permitted" off Linux rather than
// failing open against a guess. Go's goroutine scheduler also makes OS
// thread identity an unstable concept unless the caller has pinned itself
// with runtime.LockOSThread, which this module does not require of its
// callers.
func currentThreadID() int {
	return 0
}
