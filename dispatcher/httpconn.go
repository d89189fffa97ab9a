package dispatcher

import (
	"bufio"
	"bytes"
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/arvo-systems/chanhttp/api"
	"github.com/arvo-systems/chanhttp/control"
	"github.com/arvo-systems/chanhttp/protocol"
)

// httpConnAdapter implements node.HTTPConn over a plain net.Conn,
// grounded on the teacher's direct-write response path but without its
// buffer-pool plumbing: this module copies the reply body once into the
// status-line+headers+body write. done, when set, fires exactly once
// after the connection is closed, so the owning wireConn can unregister
// the fd from the reactor the moment the node is finished with it
// instead of waiting for the peer to notice the close first.
type httpConnAdapter struct {
	conn     net.Conn
	done     func()
	doneOnce sync.Once
}

func (h *httpConnAdapter) fireDone() {
	if h.done != nil {
		h.doneOnce.Do(h.done)
	}
}

func (h *httpConnAdapter) WriteResponse(body []byte) error {
	head := fmt.Sprintf("HTTP/1.1 200 OK\r\nContent-Type: application/octet-stream\r\nContent-Length: %d\r\nConnection: close\r\n\r\n", len(body))
	_, werr := h.conn.Write([]byte(head))
	if werr == nil {
		_, werr = h.conn.Write(body)
	}
	closeErr := h.conn.Close()
	h.fireDone()
	if werr != nil {
		return werr
	}
	return closeErr
}

func (h *httpConnAdapter) WriteStatus(code int, body string) error {
	phrase := control.StatusText(code)
	head := fmt.Sprintf("HTTP/1.1 %d %s\r\nContent-Type: text/plain; charset=utf-8\r\nContent-Length: %d\r\nConnection: close\r\n\r\n",
		code, phrase, len(body))
	_, werr := h.conn.Write([]byte(head))
	if werr == nil {
		_, werr = h.conn.Write([]byte(body))
	}
	closeErr := h.conn.Close()
	h.fireDone()
	if werr != nil {
		return werr
	}
	return closeErr
}

func (h *httpConnAdapter) Close() error {
	err := h.conn.Close()
	h.fireDone()
	return err
}

// parsedRequest is the subset of an inbound HTTP/1.1 request the routing
// callbacks in spec.md §4.F need.
type parsedRequest struct {
	method        api.Method
	path          string
	headers       []api.Header
	contentLength int64
	isUpgrade     bool
	rawHeader     http.Header
	bodyPrefix    []byte // any body bytes already read past the header boundary
}

// tryParseRequest attempts to parse a complete HTTP/1.1 request line and
// header block from buf. ok is false if buf does not yet hold a complete
// header block, matching the non-blocking accumulate-and-retry shape
// used throughout this module's wire-facing code.
func tryParseRequest(buf []byte) (req *parsedRequest, consumed int, ok bool, err error) {
	idx := bytes.Index(buf, []byte("\r\n\r\n"))
	if idx < 0 {
		return nil, 0, false, nil
	}
	headerEnd := idx + 4

	br := bufio.NewReader(bytes.NewReader(buf[:headerEnd]))
	r, perr := http.ReadRequest(br)
	if perr != nil {
		return nil, 0, false, perr
	}

	headers := make([]api.Header, 0, len(r.Header))
	for k, vs := range r.Header {
		for _, v := range vs {
			headers = append(headers, api.Header{Name: k, Value: v})
		}
	}

	return &parsedRequest{
		method:        api.MethodFromString(r.Method),
		path:          r.URL.Path,
		headers:       headers,
		contentLength: r.ContentLength,
		isUpgrade:     protocol.IsUpgradeRequest(r.Header),
		rawHeader:     r.Header,
		bodyPrefix:    buf[headerEnd:],
	}, headerEnd, true, nil
}
