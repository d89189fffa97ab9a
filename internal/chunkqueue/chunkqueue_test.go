package chunkqueue

import (
	"bytes"
	"errors"
	"testing"

	"github.com/arvo-systems/chanhttp/api"
)

func TestPushPopFIFO(t *testing.T) {
	q := New(0)
	if err := q.Push([]byte("a")); err != nil {
		t.Fatalf("push: %v", err)
	}
	if err := q.Push([]byte("bb")); err != nil {
		t.Fatalf("push: %v", err)
	}
	if q.Len() != 2 || q.ByteLen() != 3 {
		t.Fatalf("len=%d byteLen=%d, want 2,3", q.Len(), q.ByteLen())
	}

	c1, ok := q.Pop()
	if !ok || !bytes.Equal(c1, []byte("a")) {
		t.Fatalf("first pop = %q, want a", c1)
	}
	c2, ok := q.Pop()
	if !ok || !bytes.Equal(c2, []byte("bb")) {
		t.Fatalf("second pop = %q, want bb", c2)
	}
	if _, ok := q.Pop(); ok {
		t.Fatalf("pop on empty queue should report ok=false")
	}
}

func TestPushRejectedOverByteCap(t *testing.T) {
	q := New(4)
	if err := q.Push([]byte("abcd")); err != nil {
		t.Fatalf("push within cap: %v", err)
	}
	if err := q.Push([]byte("x")); !errors.Is(err, api.ErrRingFull) {
		t.Fatalf("push over cap err = %v, want ErrRingFull", err)
	}
}

func TestPeekDoesNotRemove(t *testing.T) {
	q := New(0)
	_ = q.Push([]byte("only"))
	v, ok := q.Peek()
	if !ok || !bytes.Equal(v, []byte("only")) {
		t.Fatalf("peek = %q, want only", v)
	}
	if q.Len() != 1 {
		t.Fatalf("peek must not remove, len = %d", q.Len())
	}
}

func TestDrainVisitsAllInOrder(t *testing.T) {
	q := New(0)
	_ = q.Push([]byte("1"))
	_ = q.Push([]byte("2"))
	_ = q.Push([]byte("3"))

	var got []byte
	q.Drain(func(chunk []byte) { got = append(got, chunk...) })

	if !bytes.Equal(got, []byte("123")) {
		t.Fatalf("drain order = %q, want 123", got)
	}
	if q.Len() != 0 || q.ByteLen() != 0 {
		t.Fatalf("queue not empty after drain")
	}
}
