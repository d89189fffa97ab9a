package ringbuf

import (
	"errors"
	"testing"

	"github.com/arvo-systems/chanhttp/api"
)

func TestPushBackPopFrontBasic(t *testing.T) {
	r := New(2, 64)

	begin := r.Begin()
	p1, err := r.PushBack([]byte("aaaa"))
	if err != nil {
		t.Fatalf("push 1: %v", err)
	}
	if p1 != begin {
		t.Fatalf("first push position = %d, want %d", p1, begin)
	}

	p2, err := r.PushBack([]byte("bbbb"))
	if err != nil {
		t.Fatalf("push 2: %v", err)
	}
	if p2 != p1+1 {
		t.Fatalf("second push position = %d, want %d", p2, p1+1)
	}

	// Ring is at slot capacity (2); a third push must fail until a pop.
	if _, err := r.PushBack([]byte("cccc")); !errors.Is(err, api.ErrRingFull) {
		t.Fatalf("push at capacity: got %v, want ErrRingFull", err)
	}

	first := r.Begin()
	r.PopFront()
	if r.Begin() != first+1 {
		t.Fatalf("Begin after pop = %d, want %d", r.Begin(), first+1)
	}
	if r.Begin() != p2 {
		t.Fatalf("Begin after single pop should equal second slot's position")
	}
}

func TestCursorInvalidationOnPop(t *testing.T) {
	r := New(2, 64)
	p1, _ := r.PushBack([]byte("x"))
	p2, _ := r.PushBack([]byte("y"))

	// A cursor at the slot about to be dropped must equal Begin() *before*
	// the pop; that snapshot stays the comparison key after the pop, and
	// At() reports the dropped slot as no longer live (spec.md §4.E's
	// eviction rule compares cursors with the pre-pop snapshot).
	first := r.Begin()
	if p1 != first {
		t.Fatalf("p1 should equal pre-pop Begin()")
	}
	r.PopFront()
	if p1 != first {
		t.Fatalf("snapshot must remain stable")
	}
	if _, ok := r.At(p1); ok {
		t.Fatalf("At(p1) should be invalidated after pop")
	}
	if _, ok := r.At(p2); !ok {
		t.Fatalf("At(p2) should still be live")
	}
}

func TestEndStableAcrossPushes(t *testing.T) {
	r := New(4, 256)
	end0 := r.End()
	r.PushBack([]byte("a"))
	if r.End() == end0 {
		t.Fatalf("End() should have advanced after a push")
	}
	// A subscriber snapshotting End() before a push, then comparing after,
	// detects "caught up at the instant of push" per spec.md §4.E step 2/4.
	sub := r.End()
	posPushed, _ := r.PushBack([]byte("b"))
	if sub != posPushed {
		t.Fatalf("pre-push End() snapshot should equal the new slot's position")
	}
}

func TestOversizeRejectedByDataCapacity(t *testing.T) {
	r := New(4, 8)
	if _, err := r.PushBack([]byte("123456789")); !errors.Is(err, api.ErrRingFull) {
		t.Fatalf("push exceeding data capacity: got %v, want ErrRingFull", err)
	}
}

func TestResizeForbiddenAfterOpen(t *testing.T) {
	r := New(4, 64)
	r.MarkOpened()
	if err := r.Resize(8); !errors.Is(err, api.ErrResizeAfterOpen) {
		t.Fatalf("Resize after open: got %v, want ErrResizeAfterOpen", err)
	}
	if err := r.ResizeData(128); !errors.Is(err, api.ErrResizeAfterOpen) {
		t.Fatalf("ResizeData after open: got %v, want ErrResizeAfterOpen", err)
	}
}

func TestClearResetsState(t *testing.T) {
	r := New(4, 64)
	r.PushBack([]byte("a"))
	r.PushBack([]byte("b"))
	r.Clear()
	if r.Len() != 0 {
		t.Fatalf("Len after clear = %d, want 0", r.Len())
	}
	if r.Begin() != r.End() {
		t.Fatalf("Begin != End after clear")
	}
}
