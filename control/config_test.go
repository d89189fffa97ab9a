package control

import "testing"

func TestParseSize(t *testing.T) {
	cases := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"1048576", 1048576, false},
		{"64K", 64 << 10, false},
		{"2M", 2 << 20, false},
		{"2m", 2 << 20, false},
		{" 8k ", 8 << 10, false},
		{"", 0, true},
		{"nope", 0, true},
		{"-1", 0, true},
	}
	for _, c := range cases {
		got, err := ParseSize(c.in)
		if c.wantErr {
			if err == nil {
				t.Fatalf("ParseSize(%q): expected error", c.in)
			}
			continue
		}
		if err != nil {
			t.Fatalf("ParseSize(%q): %v", c.in, err)
		}
		if got != c.want {
			t.Fatalf("ParseSize(%q) = %d, want %d", c.in, got, c.want)
		}
	}
}

func TestNormalizePath(t *testing.T) {
	cases := map[string]string{
		"":        "/",
		"/":       "/",
		"/foo":    "/foo",
		"foo":     "/foo",
		"foo/bar": "/foo/bar",
	}
	for in, want := range cases {
		if got := NormalizePath(in); got != want {
			t.Fatalf("NormalizePath(%q) = %q, want %q", in, got, want)
		}
	}
}
