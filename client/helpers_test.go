package client

import (
	"bytes"
	"io"
	"testing"
	"time"

	"github.com/eternalApril/moonlink/internal/redistest"
	"github.com/eternalApril/moonlink/transport"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

var testTimeouts = transport.Timeouts{
	Connect: time.Second,
	Read:    time.Second,
	Write:   time.Second,
}

func staticOwner(name string) OwnerResolver {
	return func() (string, error) {
		return name, nil
	}
}

func serverOptions(srv *redistest.Server, configure ...func(*Options)) Options {
	opts := Options{
		Host:     srv.Host(),
		Port:     srv.Port(),
		Timeouts: testTimeouts,
		Owner:    staticOwner("test-host"),
	}
	for _, fn := range configure {
		fn(&opts)
	}
	return opts
}

// connect opens a session to srv and closes it on cleanup
func connect(t *testing.T, srv *redistest.Server, configure ...func(*Options)) *Session {
	t.Helper()

	s := New(serverOptions(srv, configure...))
	require.NoError(t, s.Connect())
	t.Cleanup(func() {
		s.Close() //nolint:errcheck
	})
	return s
}

// inspect returns an independent client to check server state
func inspect(t *testing.T, srv *redistest.Server, db int) *redis.Client {
	t.Helper()

	rdb := redis.NewClient(&redis.Options{
		Addr:            srv.Addr(),
		DB:              db,
		Protocol:        2,
		DisableIdentity: true,
	})
	t.Cleanup(func() {
		rdb.Close() //nolint:errcheck
	})
	return rdb
}

// scriptedTransport replays canned chunks and records what was sent
type scriptedTransport struct {
	chunks [][]byte
	sent   bytes.Buffer
	closed bool
}

func (tr *scriptedTransport) Send(b []byte) error {
	tr.sent.Write(b)
	return nil
}

func (tr *scriptedTransport) Receive() ([]byte, error) {
	if len(tr.chunks) == 0 {
		return nil, &transport.Error{Op: "receive", Addr: "scripted", Err: io.EOF}
	}
	chunk := tr.chunks[0]
	tr.chunks = tr.chunks[1:]
	return chunk, nil
}

func (tr *scriptedTransport) Close() error {
	tr.closed = true
	return nil
}

func (tr *scriptedTransport) Timeouts() transport.Timeouts {
	return testTimeouts
}

// feed appends chunks to be returned by Receive
func (tr *scriptedTransport) feed(chunks ...string) {
	for _, c := range chunks {
		tr.chunks = append(tr.chunks, []byte(c))
	}
}

type scriptedDialer struct {
	tr    *scriptedTransport
	dials []string
}

func (d *scriptedDialer) Dial(host string, port int, _ transport.Timeouts) (transport.Transport, error) {
	d.dials = append(d.dials, Options{Host: host, Port: port}.Addr())
	return d.tr, nil
}

// scripted returns a connected session whose transport is tr.
// The SELECT of the handshake is answered and cleared from the sent log
func scripted(t *testing.T) (*Session, *scriptedTransport) {
	t.Helper()

	tr := &scriptedTransport{}
	tr.feed("+OK\r\n")

	s := New(Options{Host: "scripted", Dialer: &scriptedDialer{tr: tr}, Timeouts: testTimeouts})
	require.NoError(t, s.Connect())
	tr.sent.Reset()

	return s, tr
}
