package control

import "net/http"

// StatusText returns the IANA reason phrase for code, or "" if code is not
// registered. This is the Go standard library's own 1xx-5xx table — the
// same table the original C++ implementation hand-rolled in
// http-status.h — so it is used directly rather than re-implemented.
func StatusText(code int) string {
	return http.StatusText(code)
}
