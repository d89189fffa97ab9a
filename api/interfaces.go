package api

// Upstream is the external, message-oriented channel framework consuming
// this module's output. A node calls Upstream once per session lifecycle
// event, handing it both the structured record and the control-scheme
// encoded bytes (scheme.EncodeConnect/EncodeDisconnect) for that record —
// the node itself fills the Connect/Disconnect wire layout (spec.md §4.G)
// before the framework ever sees it; encoded is the exact byte slice a
// scheme-aware consumer on the other end of upstream's channel reads.
type Upstream interface {
	// OnConnect reports a freshly accepted session. addr was minted by the
	// node and is final for the lifetime of the session. encoded is the
	// scheme.EncodeConnect output for rec.
	OnConnect(addr Address, rec ConnectRecord, encoded []byte)

	// OnData reports one inbound payload chunk, strictly between OnConnect
	// and any OnDisconnect for the same address.
	OnData(addr Address, payload []byte)

	// OnDisconnect reports session termination initiated by the wire side
	// (peer close, abort, idle timeout). At most one call per address, and
	// no further OnData calls for that address follow it. encoded is the
	// scheme.EncodeDisconnect output for rec.
	OnDisconnect(addr Address, rec DisconnectRecord, encoded []byte)
}

// Poster is the inbound-from-upstream side of a node: operations the
// upstream channel framework invokes to drive outbound wire traffic.
type Poster interface {
	// Post delivers one outbound Data payload addressed to a live session.
	// Returns ErrNoSuchSession if addr is unknown or already terminated.
	Post(addr Address, payload []byte) error

	// Disconnect closes a session's wire connection on the next event-loop
	// tick and returns ErrNoSuchSession if addr is unknown.
	Disconnect(addr Address, rec DisconnectRecord) error
}

// Node is a handler bound to exactly one URL path prefix within a
// Dispatcher's routing table.
type Node interface {
	Poster

	// Path returns the node's normalized path prefix.
	Path() string

	// Kind reports which of {http, ws echo, ws pub} this node is.
	Kind() NodeKind

	// Close tears down every live session on the node and empties its
	// session table. Idempotent.
	Close() error
}

// Tracer is the minimal structured-logging seam every component logs
// through; control.StdTracer is the default implementation wrapping the
// standard library's log.Logger.
type Tracer interface {
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Errorf(format string, args ...any)
}
