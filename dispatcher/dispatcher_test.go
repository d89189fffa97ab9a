package dispatcher

import (
	"bytes"
	"net"
	"testing"
	"time"

	"github.com/arvo-systems/chanhttp/api"
	"github.com/arvo-systems/chanhttp/node"
	"github.com/arvo-systems/chanhttp/protocol"
	"github.com/arvo-systems/chanhttp/reactor"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// recordingUpstream posts a fixed reply as soon as a session connects,
// and records every lifecycle call it sees.
type recordingUpstream struct {
	poster   api.Poster
	reply    []byte
	connects []api.ConnectRecord
	data     [][]byte
	closed   []api.DisconnectRecord
}

func (u *recordingUpstream) OnConnect(addr api.Address, rec api.ConnectRecord, encoded []byte) {
	u.connects = append(u.connects, rec)
	if u.reply != nil {
		_ = u.poster.Post(addr, u.reply)
	}
}

func (u *recordingUpstream) OnData(addr api.Address, payload []byte) {
	u.data = append(u.data, append([]byte(nil), payload...))
	_ = u.poster.Post(addr, payload)
}

func (u *recordingUpstream) OnDisconnect(addr api.Address, rec api.DisconnectRecord, encoded []byte) {
	u.closed = append(u.closed, rec)
}

func newTestDispatcher(t *testing.T) *Dispatcher {
	t.Helper()
	cfg := DefaultConfig()
	cfg.ListenAddr = "127.0.0.1:0"
	d := New(cfg)
	r, err := reactor.New()
	if err != nil {
		t.Fatalf("reactor.New: %v", err)
	}
	if err := d.Open(r); err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })
	return d
}

// pump calls Process repeatedly until cond reports true or the attempt
// budget is exhausted.
func pump(t *testing.T, d *Dispatcher, cond func() bool) {
	t.Helper()
	for i := 0; i < 500; i++ {
		if err := d.Process(5); err != nil {
			t.Fatalf("Process: %v", err)
		}
		if cond() {
			return
		}
	}
	t.Fatalf("condition never satisfied after pumping")
}

// readWithRetry performs one best-effort non-blocking read, returning 0
// on a read timeout rather than failing the test: the caller is expected
// to call this repeatedly from inside pump's condition function.
func readWithRetry(t *testing.T, conn net.Conn, buf []byte) int {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Millisecond))
	n, err := conn.Read(buf)
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return n
		}
	}
	return n
}

func TestRoutingTableAddRemove(t *testing.T) {
	rt := newRoutingTable()
	hnA := node.NewHTTPNode("/a", &recordingUpstream{}, nil)
	hnB := node.NewHTTPNode("/b", &recordingUpstream{}, nil)

	if err := rt.add("/a", &routeEntry{kind: api.KindHTTP, http: hnA}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := rt.add("/a", &routeEntry{kind: api.KindHTTP, http: hnB}); err != api.ErrDuplicatePath {
		t.Fatalf("expected ErrDuplicatePath, got %v", err)
	}
	if err := rt.remove("/missing", hnA); err != api.ErrUnknownPath {
		t.Fatalf("expected ErrUnknownPath, got %v", err)
	}
	if err := rt.remove("/a", hnB); err != api.ErrNodeMismatch {
		t.Fatalf("expected ErrNodeMismatch, got %v", err)
	}
	if err := rt.remove("/a", hnA); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, ok := rt.lookup("/a"); ok {
		t.Fatalf("expected /a to be gone after remove")
	}
}

func TestHTTPRoundTrip(t *testing.T) {
	d := newTestDispatcher(t)
	up := &recordingUpstream{reply: []byte("pong")}
	hn := node.NewHTTPNode("/ping", up, nil)
	up.poster = hn
	if err := d.AddNode(hn); err != nil {
		t.Fatalf("AddNode: %v", err)
	}

	conn, err := net.Dial("tcp", d.Addr().String())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte("GET /ping HTTP/1.1\r\nHost: x\r\n\r\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	var resp []byte
	buf := make([]byte, 4096)
	pump(t, d, func() bool {
		n := readWithRetry(t, conn, buf)
		resp = append(resp, buf[:n]...)
		return bytes.Contains(resp, []byte("pong"))
	})

	if !bytes.HasPrefix(resp, []byte("HTTP/1.1 200")) {
		t.Fatalf("unexpected response head: %q", resp)
	}
	if !bytes.HasSuffix(resp, []byte("pong")) {
		t.Fatalf("expected body to end in pong, got %q", resp)
	}
}

func TestAddNodeWiresMetrics(t *testing.T) {
	d := newTestDispatcher(t)
	up := &recordingUpstream{reply: []byte("pong")}
	hn := node.NewHTTPNode("/ping", up, nil)
	up.poster = hn
	if err := d.AddNode(hn); err != nil {
		t.Fatalf("AddNode: %v", err)
	}

	conn, err := net.Dial("tcp", d.Addr().String())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()
	if _, err := conn.Write([]byte("GET /ping HTTP/1.1\r\nHost: x\r\n\r\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	var resp []byte
	buf := make([]byte, 4096)
	pump(t, d, func() bool {
		n := readWithRetry(t, conn, buf)
		resp = append(resp, buf[:n]...)
		return bytes.Contains(resp, []byte("pong"))
	})

	if got := testutil.ToFloat64(d.cfg.Metrics.SessionsOpened.WithLabelValues("http")); got != 1 {
		t.Fatalf("SessionsOpened{http} = %v, want 1", got)
	}
}

func TestRouteErrorsCountedOn404(t *testing.T) {
	d := newTestDispatcher(t)

	conn, err := net.Dial("tcp", d.Addr().String())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()
	if _, err := conn.Write([]byte("GET /nope HTTP/1.1\r\nHost: x\r\n\r\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	var resp []byte
	buf := make([]byte, 4096)
	pump(t, d, func() bool {
		n := readWithRetry(t, conn, buf)
		resp = append(resp, buf[:n]...)
		return bytes.Contains(resp, []byte("404"))
	})

	if got := testutil.ToFloat64(d.cfg.Metrics.RouteErrors.WithLabelValues("404")); got != 1 {
		t.Fatalf("RouteErrors{404} = %v, want 1", got)
	}
}

func TestUnknownPathReturns404(t *testing.T) {
	d := newTestDispatcher(t)

	conn, err := net.Dial("tcp", d.Addr().String())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()
	if _, err := conn.Write([]byte("GET /nope HTTP/1.1\r\nHost: x\r\n\r\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	var resp []byte
	buf := make([]byte, 4096)
	pump(t, d, func() bool {
		n := readWithRetry(t, conn, buf)
		resp = append(resp, buf[:n]...)
		return bytes.Contains(resp, []byte("404"))
	})
	if !bytes.Contains(resp, []byte("Requested url not found")) {
		t.Fatalf("expected 404 body, got %q", resp)
	}
}

func TestUpgradeAgainstHTTPNodeRejected(t *testing.T) {
	d := newTestDispatcher(t)
	up := &recordingUpstream{}
	hn := node.NewHTTPNode("/api", up, nil)
	up.poster = hn
	if err := d.AddNode(hn); err != nil {
		t.Fatalf("AddNode: %v", err)
	}

	conn, err := net.Dial("tcp", d.Addr().String())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	req := "GET /api HTTP/1.1\r\nHost: x\r\nConnection: Upgrade\r\nUpgrade: websocket\r\n" +
		"Sec-WebSocket-Key: dGhlIHNhbXBsZSBub25jZQ==\r\nSec-WebSocket-Version: 13\r\n\r\n"
	if _, err := conn.Write([]byte(req)); err != nil {
		t.Fatalf("Write: %v", err)
	}

	var resp []byte
	buf := make([]byte, 4096)
	pump(t, d, func() bool {
		n := readWithRetry(t, conn, buf)
		resp = append(resp, buf[:n]...)
		return bytes.Contains(resp, []byte("400"))
	})
	if !bytes.Contains(resp, []byte("HTTP node")) {
		t.Fatalf("expected 'HTTP node' body, got %q", resp)
	}
}

func TestWSEchoRoundTrip(t *testing.T) {
	d := newTestDispatcher(t)
	up := &recordingUpstream{}
	en := node.NewEchoNode("/ws", up, nil)
	up.poster = en
	if err := d.AddNode(en); err != nil {
		t.Fatalf("AddNode: %v", err)
	}

	conn, err := net.Dial("tcp", d.Addr().String())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	req := "GET /ws HTTP/1.1\r\nHost: x\r\nConnection: Upgrade\r\nUpgrade: websocket\r\n" +
		"Sec-WebSocket-Key: dGhlIHNhbXBsZSBub25jZQ==\r\nSec-WebSocket-Version: 13\r\n\r\n"
	if _, err := conn.Write([]byte(req)); err != nil {
		t.Fatalf("Write: %v", err)
	}

	var resp []byte
	buf := make([]byte, 4096)
	pump(t, d, func() bool {
		n := readWithRetry(t, conn, buf)
		resp = append(resp, buf[:n]...)
		return bytes.Contains(resp, []byte("101 Switching Protocols"))
	})
	if !bytes.Contains(resp, []byte("s3pPLMBiTxaQ9kYGzzhZRbK+xOo=")) {
		t.Fatalf("unexpected accept header, response: %q", resp)
	}

	// client-to-server frames must be masked (RFC 6455 §5.1)
	frame, err := protocol.EncodeFrame(protocol.OpcodeText, []byte("hi"), true)
	if err != nil {
		t.Fatalf("EncodeFrame: %v", err)
	}
	if _, err := conn.Write(frame); err != nil {
		t.Fatalf("Write frame: %v", err)
	}

	var echoed []byte
	pump(t, d, func() bool {
		n := readWithRetry(t, conn, buf)
		echoed = append(echoed, buf[:n]...)
		fr := protocol.NewFrameReader(0)
		fr.Feed(echoed)
		f, ok, err := fr.Next()
		return err == nil && ok && f.Opcode == protocol.OpcodeText && string(f.Payload) == "hi"
	})

	if len(up.data) != 1 || string(up.data[0]) != "hi" {
		t.Fatalf("expected upstream to observe one Data(\"hi\") call, got %v", up.data)
	}
}
