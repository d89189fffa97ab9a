package node

import (
	"sync"

	"github.com/arvo-systems/chanhttp/api"
	"github.com/arvo-systems/chanhttp/control"
	"github.com/arvo-systems/chanhttp/scheme"
	"github.com/arvo-systems/chanhttp/session"
)

const metricsKindWSEcho = "ws"

// WSConn is the wire-side handle a WS node uses to send frames and close
// the connection. The dispatcher supplies the concrete implementation.
type WSConn interface {
	// Send transmits one payload as a single text frame (spec.md §4.D/E).
	// Returns api.ErrRingFull-shaped backpressure only through
	// BufferedAmount; Send itself either succeeds or the connection is
	// considered dead.
	Send(payload []byte) error
	// BufferedAmount reports pending outbound bytes not yet flushed to
	// the socket; zero means the connection can accept another Send
	// without blocking (spec.md §4.E drain loop).
	BufferedAmount() int
	// Close closes the connection with a WS close code and reason.
	Close(code int, reason string) error
}

type echoSession struct {
	conn WSConn
}

// EchoNode bridges a persistent upgraded connection to bidirectional
// data messages (spec.md §4.D).
type EchoNode struct {
	path     string
	upstream api.Upstream
	tracer   api.Tracer

	mu      sync.Mutex
	table   *session.Table[*echoSession]
	metrics *control.Metrics
}

// NewEchoNode constructs a WS echo node bound to path.
func NewEchoNode(path string, upstream api.Upstream, tracer api.Tracer) *EchoNode {
	if tracer == nil {
		tracer = noTracer{}
	}
	return &EchoNode{
		path:     path,
		upstream: upstream,
		tracer:   tracer,
		table:    session.New[*echoSession](),
	}
}

func (n *EchoNode) Path() string       { return n.path }
func (n *EchoNode) Kind() api.NodeKind { return api.KindWSEcho }

// SetMetrics attaches the dispatcher-wide Prometheus counter set; nil-safe.
func (n *EchoNode) SetMetrics(m *control.Metrics) { n.metrics = m }

func (n *EchoNode) recordClosed(reason string) {
	if n.metrics == nil {
		return
	}
	n.metrics.SessionsClosed.WithLabelValues(metricsKindWSEcho, reason).Inc()
	n.metrics.ActiveSessions.WithLabelValues(metricsKindWSEcho).Dec()
}

// Accept registers a newly upgraded connection and reports Connect
// upstream.
func (n *EchoNode) Accept(conn WSConn, rec api.ConnectRecord) api.Address {
	n.mu.Lock()
	addr := n.table.Mint()
	_ = n.table.Insert(addr, &echoSession{conn: conn})
	n.mu.Unlock()

	n.upstream.OnConnect(addr, rec, scheme.EncodeConnect(rec))
	if n.metrics != nil {
		n.metrics.SessionsOpened.WithLabelValues(metricsKindWSEcho).Inc()
		n.metrics.ActiveSessions.WithLabelValues(metricsKindWSEcho).Inc()
	}
	return addr
}

// OnFrame reports one inbound text/binary frame as a Data message.
func (n *EchoNode) OnFrame(addr api.Address, payload []byte) {
	n.mu.Lock()
	_, ok := n.table.Get(addr)
	n.mu.Unlock()
	if !ok {
		return
	}
	if n.metrics != nil {
		n.metrics.BytesIn.WithLabelValues(metricsKindWSEcho).Add(float64(len(payload)))
	}
	n.upstream.OnData(addr, payload)
}

// OnClose reports the wire connection closing (peer close, idle timeout,
// or abort) and removes the session.
func (n *EchoNode) OnClose(addr api.Address, rec api.DisconnectRecord) {
	n.mu.Lock()
	_, ok := n.table.Get(addr)
	if ok {
		n.table.Delete(addr)
	}
	n.mu.Unlock()
	if !ok {
		return
	}
	n.recordClosed("peer_closed")
	n.upstream.OnDisconnect(addr, rec, scheme.EncodeDisconnect(rec))
}

// Post sends payload as a single text frame.
func (n *EchoNode) Post(addr api.Address, payload []byte) error {
	n.mu.Lock()
	s, ok := n.table.Get(addr)
	n.mu.Unlock()
	if !ok {
		return api.ErrNoSuchSession
	}
	if n.metrics != nil {
		n.metrics.BytesOut.WithLabelValues(metricsKindWSEcho).Add(float64(len(payload)))
	}
	return s.conn.Send(payload)
}

// Disconnect closes the session's wire connection.
func (n *EchoNode) Disconnect(addr api.Address, rec api.DisconnectRecord) error {
	n.mu.Lock()
	s, ok := n.table.Get(addr)
	if ok {
		n.table.Delete(addr)
	}
	n.mu.Unlock()
	if !ok {
		return api.ErrNoSuchSession
	}
	n.recordClosed("disconnected")
	return s.conn.Close(rec.Code, rec.Error)
}

// Close tears down every live session.
func (n *EchoNode) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.table.CloseAll(func(_ api.Address, s *echoSession) {
		_ = s.conn.Close(1001, "node closing")
		n.recordClosed("node_closed")
	})
	return nil
}

var _ api.Node = (*EchoNode)(nil)
