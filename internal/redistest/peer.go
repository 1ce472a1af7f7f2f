package redistest

import (
	"net"
	"sync"

	"github.com/eternalApril/moonlink/resp"
)

// queuedCommand is a command received between MULTI and EXEC
type queuedCommand struct {
	name string
	args []string
}

// peer represents a connected client.
// Writes are synchronized because published messages are delivered from
// the publisher's goroutine
type peer struct {
	conn   net.Conn
	reader *resp.Decoder
	writer *resp.Encoder
	mu     sync.Mutex

	// connection state, touched only under the engine lock
	db            int
	authenticated bool
	inMulti       bool
	dirty         bool // a command failed to queue, EXEC aborts
	queue         []queuedCommand
	channels      map[string]struct{}
	patterns      map[string]struct{}
	closing       bool
}

func newPeer(conn net.Conn) *peer {
	return &peer{
		conn:     conn,
		reader:   resp.NewDecoder(conn),
		writer:   resp.NewEncoder(conn),
		channels: make(map[string]struct{}),
		patterns: make(map[string]struct{}),
	}
}

// send encodes a value into the output buffer
func (p *peer) send(v resp.Value) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.writer.Write(v)
}

// push writes a value and flushes it at once
func (p *peer) push(v resp.Value) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.writer.Write(v); err != nil {
		return err
	}
	return p.writer.Flush()
}

// sendRaw flushes pending replies and writes b untouched
func (p *peer) sendRaw(b []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.writer.Flush(); err != nil {
		return err
	}
	_, err := p.conn.Write(b)
	return err
}

func (p *peer) readCommand() (resp.Value, error) {
	return p.reader.Read()
}

func (p *peer) flush() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.writer.Flush()
}

// inputBuffered returns the number of received bytes not decoded yet
func (p *peer) inputBuffered() int {
	return p.reader.Buffered()
}

func (p *peer) subscriptions() int {
	return len(p.channels) + len(p.patterns)
}

func (p *peer) close() error {
	return p.conn.Close()
}

func (p *peer) addr() string {
	return p.conn.RemoteAddr().String()
}
