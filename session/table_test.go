package session

import (
	"errors"
	"testing"

	"github.com/arvo-systems/chanhttp/api"
)

func TestMintIsMonotonicAndNonZero(t *testing.T) {
	tbl := New[string]()
	a1 := tbl.Mint()
	a2 := tbl.Mint()
	if a1 == 0 || a2 == 0 {
		t.Fatalf("minted addresses must be non-zero: %d, %d", a1, a2)
	}
	if a2 <= a1 {
		t.Fatalf("addresses must be strictly increasing: %d, %d", a1, a2)
	}
}

func TestInsertGetDelete(t *testing.T) {
	tbl := New[string]()
	addr := tbl.Mint()
	if err := tbl.Insert(addr, "conn-handle"); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := tbl.Insert(addr, "other"); !errors.Is(err, api.ErrDuplicateAddress) {
		t.Fatalf("duplicate insert: got %v, want ErrDuplicateAddress", err)
	}
	h, ok := tbl.Get(addr)
	if !ok || h != "conn-handle" {
		t.Fatalf("get = %q, %v", h, ok)
	}
	tbl.Delete(addr)
	if _, ok := tbl.Get(addr); ok {
		t.Fatalf("session should be absent after delete")
	}
}

func TestCloseAllEmptiesTable(t *testing.T) {
	tbl := New[int]()
	a1, a2 := tbl.Mint(), tbl.Mint()
	tbl.Insert(a1, 1)
	tbl.Insert(a2, 2)

	var closed []api.Address
	tbl.CloseAll(func(addr api.Address, h int) {
		closed = append(closed, addr)
	})
	if len(closed) != 2 {
		t.Fatalf("expected 2 sessions closed, got %d", len(closed))
	}
	if tbl.Len() != 0 {
		t.Fatalf("table should be empty after CloseAll, len=%d", tbl.Len())
	}
}
