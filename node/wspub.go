package node

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/arvo-systems/chanhttp/api"
	"github.com/arvo-systems/chanhttp/control"
	"github.com/arvo-systems/chanhttp/ringbuf"
	"github.com/arvo-systems/chanhttp/scheme"
	"github.com/arvo-systems/chanhttp/session"
)

const metricsKindWSPub = "ws+pub"

type pubSession struct {
	conn WSConn
	pos  ringbuf.Position
}

// PubNode owns a ring buffer (spec.md §4.A) broadcast to all subscribers
// with per-subscriber cursors, slow-subscriber eviction, and
// backpressure-aware drain (spec.md §4.E). Subscribers never post; Post
// is the single producer-side publish operation.
type PubNode struct {
	path     string
	upstream api.Upstream
	tracer   api.Tracer

	mu      sync.Mutex
	ring    *ringbuf.Ring
	table   *session.Table[*pubSession]
	metrics *control.Metrics
}

// NewPubNode constructs a WS publish node bound to path with the given
// ring capacities (spec.md §6 pub node options: ring-size, data-size).
func NewPubNode(path string, ringSlots, ringDataBytes int, upstream api.Upstream, tracer api.Tracer) *PubNode {
	if tracer == nil {
		tracer = noTracer{}
	}
	r := ringbuf.New(ringSlots, ringDataBytes)
	r.MarkOpened()
	return &PubNode{
		path:     path,
		upstream: upstream,
		tracer:   tracer,
		ring:     r,
		table:    session.New[*pubSession](),
	}
}

// NewPubNodeFromOptions constructs a PubNode from the string-keyed
// "ring-size"/"data-size" options spec.md §6 defines, applying their
// documented defaults and parsing data-size's K/M suffix via
// control.ParseSize. An empty or absent option falls back to its default.
func NewPubNodeFromOptions(path string, opts map[string]string, upstream api.Upstream, tracer api.Tracer) (*PubNode, error) {
	ringSlots := control.DefaultPubRingSize
	if v, ok := opts["ring-size"]; ok && v != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return nil, fmt.Errorf("ring-size: %w", err)
		}
		ringSlots = n
	}
	dataSize := control.DefaultPubDataSize
	if v, ok := opts["data-size"]; ok && v != "" {
		n, err := control.ParseSize(v)
		if err != nil {
			return nil, fmt.Errorf("data-size: %w", err)
		}
		dataSize = n
	}
	return NewPubNode(path, ringSlots, dataSize, upstream, tracer), nil
}

func (n *PubNode) Path() string       { return n.path }
func (n *PubNode) Kind() api.NodeKind { return api.KindWSPub }

// SetMetrics attaches the dispatcher-wide Prometheus counter set; nil-safe.
func (n *PubNode) SetMetrics(m *control.Metrics) { n.metrics = m }

func (n *PubNode) recordClosed(reason string) {
	if n.metrics == nil {
		return
	}
	n.metrics.SessionsClosed.WithLabelValues(metricsKindWSPub, reason).Inc()
	n.metrics.ActiveSessions.WithLabelValues(metricsKindWSPub).Dec()
}

// Accept subscribes a newly upgraded connection. Its initial cursor is
// ring.End() at upgrade time: it receives only messages published
// afterward (spec.md §4.E "Connect").
func (n *PubNode) Accept(conn WSConn, rec api.ConnectRecord) api.Address {
	n.mu.Lock()
	addr := n.table.Mint()
	pos := n.ring.End()
	_ = n.table.Insert(addr, &pubSession{conn: conn, pos: pos})
	n.mu.Unlock()

	n.upstream.OnConnect(addr, rec, scheme.EncodeConnect(rec))
	if n.metrics != nil {
		n.metrics.SessionsOpened.WithLabelValues(metricsKindWSPub).Inc()
		n.metrics.ActiveSessions.WithLabelValues(metricsKindWSPub).Inc()
	}
	n.Drain(addr)
	return addr
}

// OnClose removes a subscriber, reporting Disconnect upstream. Pub
// subscribers never emit Data (they do not post inbound messages).
func (n *PubNode) OnClose(addr api.Address, rec api.DisconnectRecord) {
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

// Post publishes payload to every subscriber via the ring (spec.md
// §4.E's outbound publish algorithm). addr is accepted for interface
// symmetry with api.Poster but is otherwise unused: pub is a broadcast
// node, the publish feed is not one of the node's subscriber sessions, so
// there is no per-address "no such session" check here.
func (n *PubNode) Post(addr api.Address, payload []byte) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	_ = addr

	if len(payload) > n.ring.DataCapacity()/2 {
		return api.ErrOversizePayload
	}

	last := n.ring.End()

	for {
		if _, err := n.ring.PushBack(payload); err == nil {
			break
		}
		first := n.ring.Begin()
		n.ring.PopFront()

		n.table.Range(func(subAddr api.Address, s *pubSession) {
			if s.pos == first {
				n.evictLocked(subAddr, s)
			}
		})
	}

	n.table.Range(func(subAddr api.Address, s *pubSession) {
		if s.pos == last {
			n.drainLocked(subAddr, s)
		}
	})

	return nil
}

// evictLocked closes a subscriber that lost data to an eviction. Caller
// holds n.mu. The session is removed immediately; OnClose is not called
// here since the wire layer drives that callback once Close completes —
// this only initiates the close.
func (n *PubNode) evictLocked(addr api.Address, s *pubSession) {
	n.table.Delete(addr)
	_ = s.conn.Close(api.CloseCodeEvicted, "slow consumer evicted")
	if n.metrics != nil {
		n.metrics.PubEvictions.Inc()
	}
	n.recordClosed("evicted")
}

// Drain advances a subscriber's cursor as far as its outbound buffer
// allows, per the drain loop in spec.md §4.E. Called after Accept, after
// a producer Post leaves a subscriber caught up, and whenever the wire
// layer reports the connection's send buffer has emptied.
func (n *PubNode) Drain(addr api.Address) {
	n.mu.Lock()
	defer n.mu.Unlock()
	s, ok := n.table.Get(addr)
	if !ok {
		return
	}
	n.drainLocked(addr, s)
}

func (n *PubNode) drainLocked(addr api.Address, s *pubSession) {
	for s.conn.BufferedAmount() == 0 && s.pos != n.ring.End() {
		payload, ok := n.ring.At(s.pos)
		if !ok {
			// The cursor's slot was evicted between checks; treat like
			// any other eviction.
			n.evictLocked(addr, s)
			return
		}
		s.pos++
		if err := s.conn.Send(payload); err != nil {
			n.table.Delete(addr)
			n.recordClosed("send_error")
			return
		}
		if n.metrics != nil {
			n.metrics.BytesOut.WithLabelValues(metricsKindWSPub).Add(float64(len(payload)))
		}
	}
}

// Disconnect closes a subscriber's connection on upstream request.
func (n *PubNode) Disconnect(addr api.Address, rec api.DisconnectRecord) error {
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

// Close tears down every live subscriber and clears the ring.
func (n *PubNode) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.table.CloseAll(func(_ api.Address, s *pubSession) {
		_ = s.conn.Close(1001, "node closing")
		n.recordClosed("node_closed")
	})
	n.ring.Clear()
	return nil
}

var _ api.Node = (*PubNode)(nil)
