// Package dispatcher implements the listener/routing component (spec.md
// §4.F): it owns the TCP acceptor, the event-loop integration, and the
// path→node routing table, and drives every other component (ring,
// session table, nodes, control encoder) from the reactor's single
// exposed file descriptor.
//
// Grounded on the teacher's server/server.go (NewServer/Serve/Shutdown
// shape, functional options) generalized from a goroutine-per-connection
// accept loop to a single-threaded, reactor-driven one: the dispatcher
// layers its own epoll reactor over net.Listener/net.Conn (obtained via
// SyscallConn) instead of hand-rolling socket()/bind()/listen(), since
// spec.md §5's single-thread contract is about how many goroutines drive
// callbacks, not whether the standard library's internal netpoller also
// watches the same descriptor.
package dispatcher

import (
	"errors"
	"net"
	"sync"
	"syscall"
	"time"

	"github.com/arvo-systems/chanhttp/api"
	"github.com/arvo-systems/chanhttp/control"
	"github.com/arvo-systems/chanhttp/node"
	"github.com/arvo-systems/chanhttp/reactor"
)

// Dispatcher is the listener/routing component. Exactly one may be open
// per worker thread (spec.md §5's cross-thread rule).
type Dispatcher struct {
	cfg    *Config
	tracer api.Tracer

	mu       sync.Mutex
	reactor  reactor.Reactor
	listener net.Listener
	routes   *routingTable
	conns    map[int]*wireConn

	threadID int
	opened   bool
	closed   bool
}

// New constructs a Dispatcher. It does not open the listening socket;
// call Open for that.
func New(cfg *Config, opts ...Option) *Dispatcher {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = control.NewMetrics()
	}
	d := &Dispatcher{
		cfg:    cfg,
		tracer: cfg.Tracer,
		routes: newRoutingTable(),
		conns:  make(map[int]*wireConn),
	}
	for _, o := range opts {
		o(d)
	}
	if d.tracer == nil {
		d.tracer = control.NoopTracer
	}
	return d
}

// Open binds and listens on cfg.ListenAddr and registers with r. Fails
// with api.ErrAlreadyRunning if already open, or api.ErrWrongThread if a
// Dispatcher is already open on this OS thread (spec.md §5).
func (d *Dispatcher) Open(r reactor.Reactor) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.opened {
		return api.ErrAlreadyRunning
	}
	if err := parseListenAddr(d.cfg.ListenAddr); err != nil {
		return err
	}

	tid := currentThreadID()
	if tid != 0 {
		if !openThreads.claim(tid) {
			return api.ErrWrongThread
		}
	}
	d.threadID = tid

	ln, err := net.Listen("tcp", d.cfg.ListenAddr)
	if err != nil {
		if tid != 0 {
			openThreads.release(tid)
		}
		return err
	}

	fd, err := rawFD(ln)
	if err != nil {
		_ = ln.Close()
		if tid != 0 {
			openThreads.release(tid)
		}
		return err
	}

	if err := r.Register(fd, reactor.EventRead, d.onListenerReadable); err != nil {
		_ = ln.Close()
		if tid != 0 {
			openThreads.release(tid)
		}
		return err
	}

	d.listener = ln
	d.reactor = r
	d.opened = true
	return nil
}

// FD returns the single file descriptor a host scheduler should poll for
// readability (spec.md §4.H), delegating to the underlying reactor. -1
// before Open or after Close.
func (d *Dispatcher) FD() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.reactor == nil {
		return -1
	}
	return d.reactor.FD()
}

// Addr returns the bound listen address (useful after an ":0" open).
func (d *Dispatcher) Addr() net.Addr {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.listener == nil {
		return nil
	}
	return d.listener.Addr()
}

// metricsSetter is implemented by every concrete node kind, letting the
// dispatcher attach its Prometheus counter set (SPEC_FULL.md's DOMAIN
// STACK) without each node constructor needing a *control.Metrics
// parameter of its own.
type metricsSetter interface {
	SetMetrics(*control.Metrics)
}

// AddNode implements node_add: binds n at its normalized Path() in the
// routing table. Fails with api.ErrDuplicatePath if the prefix is taken.
func (d *Dispatcher) AddNode(n api.Node) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	prefix := control.NormalizePath(n.Path())
	entry := &routeEntry{kind: n.Kind()}
	switch v := n.(type) {
	case *node.HTTPNode:
		entry.http = v
	case *node.EchoNode:
		entry.wsEcho = v
	case *node.PubNode:
		entry.wsPub = v
	}
	if err := d.routes.add(prefix, entry); err != nil {
		return err
	}
	if ms, ok := n.(metricsSetter); ok {
		ms.SetMetrics(d.cfg.Metrics)
	}
	return nil
}

// RemoveNode implements node_remove. A mismatch (the prefix is bound to a
// different node than n) is the "defensive" invariant violation spec.md
// §7 calls for: it is logged as a structured control.Error at info level
// in addition to returning the api.ErrNodeMismatch sentinel, so a host's
// logs carry the offending path even though callers compare the sentinel
// directly with errors.Is.
func (d *Dispatcher) RemoveNode(path string, n api.Node) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	prefix := control.NormalizePath(path)
	err := d.routes.remove(prefix, n)
	if errors.Is(err, api.ErrNodeMismatch) {
		d.tracer.Infof("%s", control.NewError(control.CodeInvariant, "node_remove against a different node").
			WithContext("path", prefix).WithContext("kind", n.Kind()))
	}
	return err
}

// Process advances the event loop by one non-blocking iteration: polls
// the reactor, then opportunistically flushes buffered WebSocket writes
// and checks idle timeouts. Returns api.ErrWrongThread if called from a
// different OS thread than Open was called on.
func (d *Dispatcher) Process(timeoutMs int) error {
	d.mu.Lock()
	if !d.opened || d.closed {
		d.mu.Unlock()
		return api.ErrAlreadyRunning
	}
	tid := currentThreadID()
	if tid != 0 && d.threadID != 0 && tid != d.threadID {
		d.mu.Unlock()
		return api.ErrWrongThread
	}
	r := d.reactor
	d.mu.Unlock()

	if err := r.Poll(timeoutMs); err != nil {
		return err
	}

	d.mu.Lock()
	now := time.Now()
	var toClose []*wireConn
	for _, c := range d.conns {
		if c.phase != phaseWS {
			continue
		}
		_ = c.wsConn.flush()
		if c.wsKind == api.KindWSPub {
			c.wsPub.Drain(c.wsAddr)
		}
		if d.cfg.WSIdleTimeout > 0 && now.Sub(c.wsConn.lastActive) > d.cfg.WSIdleTimeout {
			toClose = append(toClose, c)
		}
	}
	d.mu.Unlock()

	for _, c := range toClose {
		c.closeWS(1001, "idle timeout")
	}
	return nil
}

// Close stops accepting new connections, closes every bound node (which
// closes their sessions), drains the loop up to cfg.CloseDrainTicks
// iterations to let pending close frames flush, and tears down. Idempotent.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	ln := d.listener
	r := d.reactor
	tid := d.threadID
	d.mu.Unlock()

	if ln != nil {
		_ = ln.Close()
	}

	// Nodes are closed outside d.mu: an HTTP connection's close hook
	// re-enters teardownConn, which takes d.mu itself.
	d.mu.Lock()
	var nodes []api.Node
	for _, e := range d.routes.byPath {
		if n := e.asNode(); n != nil {
			nodes = append(nodes, n)
		}
	}
	d.mu.Unlock()
	for _, n := range nodes {
		_ = n.Close()
	}

	for i := 0; i < d.cfg.CloseDrainTicks && r != nil; i++ {
		if err := r.Poll(1); err != nil {
			break
		}
		d.mu.Lock()
		n := len(d.conns)
		d.mu.Unlock()
		if n == 0 {
			break
		}
	}

	d.mu.Lock()
	d.routes.clear()
	for _, c := range d.conns {
		_ = c.nc.Close()
	}
	d.conns = make(map[int]*wireConn)
	d.mu.Unlock()

	if r != nil {
		_ = r.Close()
	}
	if tid != 0 {
		openThreads.release(tid)
	}
	return nil
}

// countRouteError increments the router's rejection counter for status,
// one of "400"/"404" (spec.md §6's synthesized HTTP responses).
func (d *Dispatcher) countRouteError(status string) {
	if d.cfg.Metrics != nil {
		d.cfg.Metrics.RouteErrors.WithLabelValues(status).Inc()
	}
}

func (d *Dispatcher) onListenerReadable(int, reactor.EventType) {
	for {
		nc, err := d.listener.Accept()
		if err != nil {
			return
		}
		d.registerConn(nc)
	}
}

func (d *Dispatcher) registerConn(nc net.Conn) {
	fd, err := rawFD(nc)
	if err != nil {
		_ = nc.Close()
		return
	}
	c := &wireConn{d: d, nc: nc, fd: fd}

	d.mu.Lock()
	r := d.reactor
	d.conns[fd] = c
	d.mu.Unlock()

	if err := r.Register(fd, reactor.EventRead, func(int, reactor.EventType) { c.onReadable() }); err != nil {
		d.mu.Lock()
		delete(d.conns, fd)
		d.mu.Unlock()
		_ = nc.Close()
	}
}

func (d *Dispatcher) teardownConn(c *wireConn, err error) {
	d.mu.Lock()
	r := d.reactor
	delete(d.conns, c.fd)
	d.mu.Unlock()

	if r != nil {
		_ = r.Unregister(c.fd)
	}
	_ = c.nc.Close()

	switch c.phase {
	case phaseHTTPBody, phaseHeaders:
		if c.httpNode != nil {
			c.httpNode.OnAbort(c.httpAddr, api.DisconnectRecord{Code: 1006, Error: "peer aborted"})
		}
	case phaseWS:
		d.onWSClosed(c, api.DisconnectRecord{Code: 1006, Error: "peer aborted"})
	}
	_ = err
}

func (d *Dispatcher) onWSClosed(c *wireConn, rec api.DisconnectRecord) {
	d.mu.Lock()
	r := d.reactor
	delete(d.conns, c.fd)
	d.mu.Unlock()

	if r != nil {
		_ = r.Unregister(c.fd)
	}

	switch c.wsKind {
	case api.KindWSEcho:
		if c.wsEcho != nil {
			c.wsEcho.OnClose(c.wsAddr, rec)
		}
	case api.KindWSPub:
		if c.wsPub != nil {
			c.wsPub.OnClose(c.wsAddr, rec)
		}
	}
}

func rawFD(c any) (int, error) {
	sc, ok := c.(syscall.Conn)
	if !ok {
		return -1, errNotSyscallConn
	}
	rc, err := sc.SyscallConn()
	if err != nil {
		return -1, err
	}
	var fd int
	var ctrlErr error
	err = rc.Control(func(p uintptr) {
		fd = int(p)
	})
	if err != nil {
		ctrlErr = err
	}
	return fd, ctrlErr
}
