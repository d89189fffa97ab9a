package dispatcher

import (
	"errors"
	"net"
	"time"

	"github.com/arvo-systems/chanhttp/internal/chunkqueue"
	"github.com/arvo-systems/chanhttp/protocol"
)

// wsConnAdapter implements node.WSConn over a plain net.Conn. Outbound
// frames are queued in a chunkqueue.Queue and flushed opportunistically
// (on every Send call and on every dispatcher Process tick) rather than
// written synchronously to completion, so a slow client's full TCP send
// buffer is visible to the pub node's drain algorithm as a nonzero
// BufferedAmount instead of blocking the whole event loop.
type wsConnAdapter struct {
	conn        net.Conn
	out         *chunkqueue.Queue
	frontOffset int
	lastActive  time.Time
	idleTimeout time.Duration
}

func newWSConnAdapter(conn net.Conn, backpressureCap int, idleTimeout time.Duration) *wsConnAdapter {
	return &wsConnAdapter{
		conn:        conn,
		out:         chunkqueue.New(backpressureCap),
		lastActive:  time.Time{},
		idleTimeout: idleTimeout,
	}
}

func (c *wsConnAdapter) Send(payload []byte) error {
	frame, err := protocol.EncodeFrame(protocol.OpcodeText, payload, false)
	if err != nil {
		return err
	}
	if err := c.out.Push(frame); err != nil {
		return err
	}
	return c.flush()
}

// BufferedAmount approximates pending outbound bytes as the queue's total
// byte length minus whatever's already been written off the front chunk.
func (c *wsConnAdapter) BufferedAmount() int {
	n := c.out.ByteLen() - c.frontOffset
	if n < 0 {
		return 0
	}
	return n
}

func (c *wsConnAdapter) Close(code int, reason string) error {
	frame, err := protocol.EncodeCloseFrame(code, reason)
	if err == nil {
		_ = c.out.Push(frame)
		_ = c.flush()
	}
	return c.conn.Close()
}

// flush attempts a non-blocking write of whatever is queued. A deadline
// of "now" makes Write return immediately with a timeout error instead
// of blocking when the kernel send buffer is full.
func (c *wsConnAdapter) flush() error {
	for {
		payload, ok := c.out.Peek()
		if !ok {
			return nil
		}
		_ = c.conn.SetWriteDeadline(time.Now())
		n, err := c.conn.Write(payload[c.frontOffset:])
		if n > 0 {
			c.frontOffset += n
		}
		if c.frontOffset >= len(payload) {
			c.out.Pop()
			c.frontOffset = 0
			continue
		}
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				return nil
			}
			return err
		}
		return nil
	}
}

// readAvailable performs a best-effort non-blocking read: a read with a
// one-millisecond deadline either returns whatever bytes are already buffered by the kernel
// or a timeout error, which this module treats as "nothing more right
// now" rather than a failure.
func readAvailable(conn net.Conn, buf []byte) (n int, closed bool, err error) {
	_ = conn.SetReadDeadline(time.Now().Add(time.Millisecond))
	n, err = conn.Read(buf)
	if err == nil {
		return n, false, nil
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return n, false, nil
	}
	return n, true, err
}
