// Package node implements the three node kinds bound to a dispatcher's
// routing table (spec.md §4.C/§4.D/§4.E): a request-reply HTTP node, a
// WebSocket echo node, and a WebSocket publish node. Each node owns a
// session.Table of its own connection handles and reports lifecycle
// events to an api.Upstream; outbound traffic flows back in through the
// api.Poster half of api.Node.
//
// Grounded on the teacher's server/server.go connection-handling loop
// (accept → per-connection read loop → handler dispatch), adapted from
// goroutine-per-connection to the single dispatcher-thread, callback-
// driven shape spec.md §5 requires: nodes never spawn goroutines or
// block: every method here is called synchronously from the
// dispatcher's event-loop tick.
package node

import (
	"sync"

	"github.com/arvo-systems/chanhttp/api"
	"github.com/arvo-systems/chanhttp/control"
	"github.com/arvo-systems/chanhttp/scheme"
	"github.com/arvo-systems/chanhttp/session"
)

const metricsKindHTTP = "http"

// HTTPConn is the wire-side handle an HTTP node uses to reply to one
// request. The dispatcher supplies the concrete implementation (backed by
// a net.Conn); the node never touches the socket directly.
type HTTPConn interface {
	// WriteResponse sends the full reply (status 200, the fixed content
	// type spec.md §4.C mandates) and closes the connection afterward.
	WriteResponse(body []byte) error
	// WriteStatus sends a bare status line with a plain-text body, used
	// for the dispatcher's routing errors.
	WriteStatus(code int, body string) error
	// Close aborts the connection without writing a reply.
	Close() error
}

type httpSession struct {
	conn  HTTPConn
	state httpState
}

type httpState int

const (
	httpOpen httpState = iota
	httpWrote
	httpClosed
)

// HTTPNode is the request-reply node (spec.md §4.C).
type HTTPNode struct {
	path     string
	upstream api.Upstream
	tracer   api.Tracer

	mu      sync.Mutex
	table   *session.Table[*httpSession]
	metrics *control.Metrics
}

// NewHTTPNode constructs an HTTPNode bound to path, reporting lifecycle
// events to upstream.
func NewHTTPNode(path string, upstream api.Upstream, tracer api.Tracer) *HTTPNode {
	if tracer == nil {
		tracer = noTracer{}
	}
	return &HTTPNode{
		path:     path,
		upstream: upstream,
		tracer:   tracer,
		table:    session.New[*httpSession](),
	}
}

func (n *HTTPNode) Path() string       { return n.path }
func (n *HTTPNode) Kind() api.NodeKind { return api.KindHTTP }

// SetMetrics attaches the dispatcher-wide Prometheus counter set (spec.md's
// ambient observability stack, SPEC_FULL.md's DOMAIN STACK). Called once by
// the dispatcher when the node is added; nil-safe, so a node built outside a
// dispatcher (e.g. in a unit test) never needs one.
func (n *HTTPNode) SetMetrics(m *control.Metrics) { n.metrics = m }

// Accept is called by the dispatcher once request headers have been
// parsed and routed to this node (CONNECTING → OPEN in spec.md §4.C's
// state machine). It mints an address, registers the session, and
// reports Connect upstream.
func (n *HTTPNode) Accept(conn HTTPConn, rec api.ConnectRecord) api.Address {
	n.mu.Lock()
	addr := n.table.Mint()
	_ = n.table.Insert(addr, &httpSession{conn: conn, state: httpOpen})
	n.mu.Unlock()

	n.upstream.OnConnect(addr, rec, scheme.EncodeConnect(rec))
	if n.metrics != nil {
		n.metrics.SessionsOpened.WithLabelValues(metricsKindHTTP).Inc()
		n.metrics.ActiveSessions.WithLabelValues(metricsKindHTTP).Inc()
	}
	return addr
}

// OnBodyChunk reports one inbound request-body chunk. A no-op if addr is
// unknown or already terminated.
func (n *HTTPNode) OnBodyChunk(addr api.Address, chunk []byte) {
	n.mu.Lock()
	s, ok := n.table.Get(addr)
	n.mu.Unlock()
	if !ok || s.state != httpOpen {
		return
	}
	if n.metrics != nil {
		n.metrics.BytesIn.WithLabelValues(metricsKindHTTP).Add(float64(len(chunk)))
	}
	n.upstream.OnData(addr, chunk)
}

func (n *HTTPNode) recordClosed(reason string) {
	if n.metrics == nil {
		return
	}
	n.metrics.SessionsClosed.WithLabelValues(metricsKindHTTP, reason).Inc()
	n.metrics.ActiveSessions.WithLabelValues(metricsKindHTTP).Dec()
}

// OnAbort reports the peer aborting before a reply was posted
// (OPEN → ABORTED). Emits Disconnect upstream and removes the session.
func (n *HTTPNode) OnAbort(addr api.Address, rec api.DisconnectRecord) {
	n.mu.Lock()
	s, ok := n.table.Get(addr)
	if ok {
		n.table.Delete(addr)
	}
	n.mu.Unlock()
	if !ok || s.state == httpClosed {
		return
	}
	n.recordClosed("aborted")
	n.upstream.OnDisconnect(addr, rec, scheme.EncodeDisconnect(rec))
}

// Post writes payload as the response body (OPEN → WROTE → CLOSED) and
// closes the session. Only one Post is accepted per session; a second
// call returns api.ErrNoSuchSession, satisfying the "at most one outbound
// Data" invariant (spec.md §8 invariant 2).
func (n *HTTPNode) Post(addr api.Address, payload []byte) error {
	n.mu.Lock()
	s, ok := n.table.Get(addr)
	if !ok || s.state != httpOpen {
		n.mu.Unlock()
		return api.ErrNoSuchSession
	}
	s.state = httpWrote
	n.table.Delete(addr)
	n.mu.Unlock()

	if n.metrics != nil {
		n.metrics.BytesOut.WithLabelValues(metricsKindHTTP).Add(float64(len(payload)))
	}
	err := s.conn.WriteResponse(payload)
	s.state = httpClosed
	n.recordClosed("replied")
	return err
}

// Disconnect cancels the reply and closes the connection (OPEN →
// CLOSED).
func (n *HTTPNode) Disconnect(addr api.Address, rec api.DisconnectRecord) error {
	n.mu.Lock()
	s, ok := n.table.Get(addr)
	if ok {
		n.table.Delete(addr)
	}
	n.mu.Unlock()
	if !ok {
		return api.ErrNoSuchSession
	}
	_ = rec
	n.recordClosed("disconnected")
	return s.conn.Close()
}

// Close tears down every live session (spec.md §4.B).
func (n *HTTPNode) Close() error {
	n.mu.Lock()
	var conns []HTTPConn
	n.table.CloseAll(func(_ api.Address, s *httpSession) {
		conns = append(conns, s.conn)
	})
	n.mu.Unlock()
	// Closed outside n.mu: a connection's close hook may call back into
	// OnAbort, which takes n.mu.
	for _, c := range conns {
		_ = c.Close()
		n.recordClosed("node_closed")
	}
	return nil
}

var _ api.Node = (*HTTPNode)(nil)

type noTracer struct{}

func (noTracer) Debugf(string, ...any) {}
func (noTracer) Infof(string, ...any)  {}
func (noTracer) Errorf(string, ...any) {}
