package dispatcher

import (
	"github.com/arvo-systems/chanhttp/api"
	"github.com/arvo-systems/chanhttp/node"
)

// routeEntry is the tagged node reference spec.md §9's design notes call
// for: a variant holding exactly one of the three concrete node kinds,
// never a bare interface the dispatcher would need pointer equality
// across threads to compare. Only the field matching Kind is non-nil.
type routeEntry struct {
	kind   api.NodeKind
	http   *node.HTTPNode
	wsEcho *node.EchoNode
	wsPub  *node.PubNode
}

func (e *routeEntry) asNode() api.Node {
	switch e.kind {
	case api.KindHTTP:
		return e.http
	case api.KindWSEcho:
		return e.wsEcho
	case api.KindWSPub:
		return e.wsPub
	default:
		return nil
	}
}

func (e *routeEntry) sameNode(n api.Node) bool {
	return e.asNode() == n
}

// routingTable maps a normalized path prefix to its bound node. Created
// on node open, destroyed on dispatcher close (spec.md §3).
type routingTable struct {
	byPath map[string]*routeEntry
}

func newRoutingTable() *routingTable {
	return &routingTable{byPath: make(map[string]*routeEntry)}
}

// add implements node_add: fails with api.ErrDuplicatePath if prefix is
// already bound.
func (t *routingTable) add(prefix string, e *routeEntry) error {
	if _, exists := t.byPath[prefix]; exists {
		return api.ErrDuplicatePath
	}
	t.byPath[prefix] = e
	return nil
}

// remove implements node_remove: fails with api.ErrUnknownPath if prefix
// is unbound, or api.ErrNodeMismatch if it is bound to a different node
// (the "defensive" check spec.md §4.F calls for).
func (t *routingTable) remove(prefix string, n api.Node) error {
	e, ok := t.byPath[prefix]
	if !ok {
		return api.ErrUnknownPath
	}
	if !e.sameNode(n) {
		return api.ErrNodeMismatch
	}
	delete(t.byPath, prefix)
	return nil
}

func (t *routingTable) lookup(prefix string) (*routeEntry, bool) {
	e, ok := t.byPath[prefix]
	return e, ok
}

func (t *routingTable) clear() {
	t.byPath = make(map[string]*routeEntry)
}
