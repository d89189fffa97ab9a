package control

import "testing"

func TestErrorWithoutContext(t *testing.T) {
	err := NewError(CodeConfig, "bad listen addr")
	if err.Error() != "bad listen addr" {
		t.Fatalf("Error() = %q", err.Error())
	}
}

func TestErrorWithContext(t *testing.T) {
	err := NewError(CodeInvariant, "node_remove mismatch").
		WithContext("path", "/p").
		WithContext("kind", 2)
	if err.Code != CodeInvariant {
		t.Fatalf("Code = %v, want CodeInvariant", err.Code)
	}
	got := err.Error()
	if got == "node_remove mismatch" {
		t.Fatalf("Error() did not include context: %q", got)
	}
}
