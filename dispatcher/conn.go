package dispatcher

import (
	"net"
	"time"

	"github.com/arvo-systems/chanhttp/api"
	"github.com/arvo-systems/chanhttp/control"
	"github.com/arvo-systems/chanhttp/node"
	"github.com/arvo-systems/chanhttp/protocol"
)

type connPhase int

const (
	phaseHeaders connPhase = iota
	phaseHTTPBody
	phaseWS
	phaseDone
)

// wireConn is one accepted TCP connection, tracked from the moment it is
// accepted until it is either routed to an HTTP node (and closed after
// one reply) or upgraded to a WebSocket node (and tracked for its whole
// session lifetime).
type wireConn struct {
	d     *Dispatcher
	nc    net.Conn
	fd    int
	phase connPhase
	buf   []byte

	httpNode      *node.HTTPNode
	httpAddr      api.Address
	bodyRemaining int64

	wsKind      api.NodeKind
	wsEcho      *node.EchoNode
	wsPub       *node.PubNode
	wsAddr      api.Address
	wsConn      *wsConnAdapter
	frameReader *protocol.FrameReader
}

func (c *wireConn) onReadable() {
	var buf [4096]byte
	n, closed, err := readAvailable(c.nc, buf[:])
	if n > 0 {
		c.buf = append(c.buf, buf[:n]...)
	}
	if err != nil || closed {
		c.d.teardownConn(c, err)
		return
	}
	c.advance()
}

func (c *wireConn) advance() {
	switch c.phase {
	case phaseHeaders:
		c.advanceHeaders()
	case phaseHTTPBody:
		c.advanceHTTPBody()
	case phaseWS:
		c.advanceWS()
	}
}

func (c *wireConn) advanceHeaders() {
	req, _, ok, err := tryParseRequest(c.buf)
	if err != nil {
		c.d.countRouteError("400")
		_ = (&httpConnAdapter{conn: c.nc}).WriteStatus(400, "Bad Request")
		c.d.teardownConn(c, err)
		return
	}
	if !ok {
		return
	}

	route, found := c.d.routes.lookup(req.path)
	if !found {
		c.d.countRouteError("404")
		_ = (&httpConnAdapter{conn: c.nc}).WriteStatus(404, "Requested url not found")
		c.d.teardownConn(c, nil)
		return
	}

	if req.isUpgrade {
		if route.kind == api.KindHTTP {
			c.d.countRouteError("400")
			_ = (&httpConnAdapter{conn: c.nc}).WriteStatus(400, "HTTP node")
			c.d.teardownConn(c, nil)
			return
		}
		c.completeUpgrade(req, route)
		return
	}

	if route.kind != api.KindHTTP {
		c.d.countRouteError("400")
		_ = (&httpConnAdapter{conn: c.nc}).WriteStatus(400, "WebSocket node")
		c.d.teardownConn(c, nil)
		return
	}

	c.httpNode = route.http
	adapter := &httpConnAdapter{conn: c.nc}
	adapter.done = func() { c.d.teardownConn(c, nil) }
	c.bodyRemaining = req.contentLength
	if c.bodyRemaining < 0 {
		c.bodyRemaining = 0
	}
	rec := api.ConnectRecord{Method: req.method, Path: req.path, Headers: req.headers, Size: c.bodyRemaining}
	c.d.tracer.Debugf("trace=%s connect path=%s method=%s", control.NewTraceID(), req.path, req.method)
	c.httpAddr = c.httpNode.Accept(adapter, rec)
	c.phase = phaseHTTPBody
	c.buf = req.bodyPrefix
	c.advanceHTTPBody()
}

func (c *wireConn) advanceHTTPBody() {
	if len(c.buf) == 0 || c.bodyRemaining <= 0 {
		return
	}
	chunk := c.buf
	if int64(len(chunk)) > c.bodyRemaining {
		chunk = chunk[:c.bodyRemaining]
	}
	c.httpNode.OnBodyChunk(c.httpAddr, chunk)
	c.bodyRemaining -= int64(len(chunk))
	c.buf = c.buf[len(chunk):]
}

func (c *wireConn) completeUpgrade(req *parsedRequest, route *routeEntry) {
	respHeaders, err := protocol.AcceptHeaders(req.rawHeader)
	if err != nil {
		c.d.countRouteError("400")
		_ = (&httpConnAdapter{conn: c.nc}).WriteStatus(400, "Bad Request")
		c.d.teardownConn(c, err)
		return
	}

	head := "HTTP/1.1 101 Switching Protocols\r\n"
	for _, k := range []string{"Upgrade", "Connection", "Sec-WebSocket-Accept"} {
		head += k + ": " + respHeaders.Get(k) + "\r\n"
	}
	head += "\r\n"
	if _, err := c.nc.Write([]byte(head)); err != nil {
		c.d.teardownConn(c, err)
		return
	}

	c.wsConn = newWSConnAdapter(c.nc, c.d.cfg.WSBackpressure, c.d.cfg.WSIdleTimeout)
	c.wsConn.lastActive = time.Now()
	c.frameReader = protocol.NewFrameReader(c.d.cfg.WSPayloadCap)
	c.wsKind = route.kind
	c.phase = phaseWS

	rec := api.ConnectRecord{Method: req.method, Path: req.path, Headers: req.headers}
	c.d.tracer.Debugf("trace=%s ws-connect path=%s kind=%s", control.NewTraceID(), req.path, route.kind)
	switch route.kind {
	case api.KindWSEcho:
		c.wsEcho = route.wsEcho
		c.wsAddr = c.wsEcho.Accept(c.wsConn, rec)
	case api.KindWSPub:
		c.wsPub = route.wsPub
		c.wsAddr = c.wsPub.Accept(c.wsConn, rec)
	}

	c.buf = req.bodyPrefix
	c.advanceWS()
}

func (c *wireConn) advanceWS() {
	if len(c.buf) > 0 {
		c.frameReader.Feed(c.buf)
		c.buf = nil
	}
	for {
		frame, ok, err := c.frameReader.Next()
		if err != nil {
			c.closeWS(protocol.CloseProtocolError, "frame decode error")
			return
		}
		if !ok {
			return
		}
		c.wsConn.lastActive = time.Now()

		switch frame.Opcode {
		case protocol.OpcodeText, protocol.OpcodeBinary:
			if c.wsKind == api.KindWSEcho {
				c.wsEcho.OnFrame(c.wsAddr, frame.Payload)
			}
		case protocol.OpcodeClose:
			c.closeWS(protocol.CloseNormalClosure, "")
			return
		case protocol.OpcodePing:
			pong, err := protocol.EncodeFrame(protocol.OpcodePong, frame.Payload, false)
			if err == nil {
				_ = c.wsConn.out.Push(pong)
				_ = c.wsConn.flush()
			}
		case protocol.OpcodePong:
		}
	}
}

func (c *wireConn) closeWS(code int, reason string) {
	c.phase = phaseDone
	_ = c.wsConn.Close(code, reason)
	c.d.onWSClosed(c, api.DisconnectRecord{Code: int16(code), Error: reason})
}
