// Package transport is the byte-stream boundary of the client: blocking
// send and receive with per-operation deadlines.
package transport

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"
)

const receiveChunk = 16 * 1024

// DefaultTimeout applies to connect, read and write when nothing else is configured
const DefaultTimeout = 4 * time.Second

// Timeouts is the connect/read/write deadline triple
type Timeouts struct {
	Connect time.Duration
	Read    time.Duration
	Write   time.Duration
}

// DefaultTimeouts returns 4s for every operation
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Connect: DefaultTimeout,
		Read:    DefaultTimeout,
		Write:   DefaultTimeout,
	}
}

// Transport is an open connection
type Transport interface {
	// Send writes the whole slice or fails
	Send(b []byte) error

	// Receive blocks until some bytes arrive or the read timeout fires
	Receive() ([]byte, error)

	Close() error

	// Timeouts returns the deadlines this transport was opened with
	Timeouts() Timeouts
}

// Dialer opens transports
type Dialer interface {
	Dial(host string, port int, t Timeouts) (Transport, error)
}

// Error is a failure of the transport itself, as opposed to a protocol error
type Error struct {
	Op   string // dial, send, receive
	Addr string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Addr, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Timeout reports whether the failure was a deadline
func (e *Error) Timeout() bool {
	var ne net.Error
	if errors.As(e.Err, &ne) {
		return ne.Timeout()
	}
	return errors.Is(e.Err, os.ErrDeadlineExceeded)
}

// TCPDialer dials plain TCP connections
type TCPDialer struct{}

// Dial connects to host:port within t.Connect
func (TCPDialer) Dial(host string, port int, t Timeouts) (Transport, error) {
	addr := net.JoinHostPort(host, strconv.Itoa(port))

	d := net.Dialer{Timeout: t.Connect}
	conn, err := d.Dial("tcp", addr)
	if err != nil {
		return nil, &Error{Op: "dial", Addr: addr, Err: err}
	}

	return NewConn(conn, t), nil
}

// Conn adapts a net.Conn to Transport
type Conn struct {
	conn     net.Conn
	addr     string
	timeouts Timeouts
	buf      []byte
}

// NewConn wraps an established connection
func NewConn(conn net.Conn, t Timeouts) *Conn {
	return &Conn{
		conn:     conn,
		addr:     conn.RemoteAddr().String(),
		timeouts: t,
		buf:      make([]byte, receiveChunk),
	}
}

// Send writes b within the write timeout
func (c *Conn) Send(b []byte) error {
	if err := c.conn.SetWriteDeadline(deadline(c.timeouts.Write)); err != nil {
		return &Error{Op: "send", Addr: c.addr, Err: err}
	}
	for len(b) > 0 {
		n, err := c.conn.Write(b)
		if err != nil {
			return &Error{Op: "send", Addr: c.addr, Err: err}
		}
		b = b[n:]
	}
	return nil
}

// Receive returns the next chunk read within the read timeout.
// The returned slice is only valid until the next call
func (c *Conn) Receive() ([]byte, error) {
	if err := c.conn.SetReadDeadline(deadline(c.timeouts.Read)); err != nil {
		return nil, &Error{Op: "receive", Addr: c.addr, Err: err}
	}
	n, err := c.conn.Read(c.buf)
	if n > 0 {
		return c.buf[:n], nil
	}
	if err == nil {
		err = errors.New("empty read")
	}
	return nil, &Error{Op: "receive", Addr: c.addr, Err: err}
}

func (c *Conn) Close() error {
	return c.conn.Close()
}

func (c *Conn) Timeouts() Timeouts {
	return c.timeouts
}

// deadline turns a zero timeout into "no deadline"
func deadline(d time.Duration) time.Time {
	if d <= 0 {
		return time.Time{}
	}
	return time.Now().Add(d)
}

// Hostname resolves the local host name
func Hostname() (string, error) {
	name, err := os.Hostname()
	if err != nil {
		return "", fmt.Errorf("resolve hostname: %w", err)
	}
	if name == "" {
		return "", errors.New("resolve hostname: empty name")
	}
	return name, nil
}
