// Package redistest runs an in-process redis compatible server for tests.
//
// It speaks RESP2 and implements the subset of commands the client relies on:
// strings with expiry, sets, hashes, MULTI/EXEC, pub/sub with glob patterns,
// AUTH, SELECT and SENTINEL MASTERS. A fault hook replaces replies with raw
// bytes to exercise error paths.
package redistest

import (
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/eternalApril/moonlink/resp"
	"go.uber.org/zap"
)

// DefaultDatabases is the number of logical databases, as in redis
const DefaultDatabases = 16

// Master is a monitored master reported by SENTINEL MASTERS
type Master struct {
	Name string
	Host string
	Port int
}

func (m Master) fields() resp.Value {
	return resp.MakeBulkStrings(
		"name", m.Name,
		"ip", m.Host,
		"port", strconv.Itoa(m.Port),
		"flags", "master",
		"num-slaves", "0",
		"quorum", "2",
	)
}

// FaultFunc intercepts a command before execution. When handled is true,
// raw is written to the client verbatim instead of the real reply; a nil raw
// sends nothing at all
type FaultFunc func(name string, args []string) (raw []byte, handled bool)

// Options configures a Server. Zero fields fall back to defaults
type Options struct {
	// Password enables AUTH. Username defaults to "default"
	Username string
	Password string

	Databases int
	Masters   []Master
	Fault     FaultFunc
	Logger    *zap.Logger
	Now       func() time.Time
}

func (o Options) withDefaults() Options {
	if o.Databases <= 0 {
		o.Databases = DefaultDatabases
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// Server is a listening test server
type Server struct {
	listener net.Listener
	engine   *Engine
	log      *zap.Logger

	mu     sync.Mutex
	peers  map[*peer]struct{}
	fault  FaultFunc
	closed bool

	wg sync.WaitGroup
}

// New starts a server on a random local port
func New(opts Options) (*Server, error) {
	opts = opts.withDefaults()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("redistest: listen: %w", err)
	}

	s := &Server{
		listener: listener,
		engine:   newEngine(opts, opts.Logger),
		log:      opts.Logger,
		peers:    make(map[*peer]struct{}),
		fault:    opts.Fault,
	}

	s.log.Info("listening on", zap.String("address", listener.Addr().String()))

	s.wg.Add(1)
	go s.acceptLoop()

	return s, nil
}

// Start is New for tests: it fails tb on error and closes the server on cleanup
func Start(tb testing.TB, opts Options) *Server {
	tb.Helper()

	s, err := New(opts)
	if err != nil {
		tb.Fatalf("start redis test server: %v", err)
	}
	tb.Cleanup(s.Close)

	return s
}

// Addr returns host:port of the listener
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Host returns the listening IP
func (s *Server) Host() string {
	return s.listener.Addr().(*net.TCPAddr).IP.String()
}

// Port returns the listening port
func (s *Server) Port() int {
	return s.listener.Addr().(*net.TCPAddr).Port
}

// URL returns a redis:// URL for database db
func (s *Server) URL(db int) string {
	return fmt.Sprintf("redis://%s/%d", s.Addr(), db)
}

// SetFault replaces the fault hook, nil removes it
func (s *Server) SetFault(f FaultFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fault = f
}

func (s *Server) currentFault() FaultFunc {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fault
}

// Clients returns the number of open connections
func (s *Server) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.peers)
}

// Close stops accepting, drops every connection and waits for the handlers
func (s *Server) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.listener.Close() //nolint:errcheck
	for p := range s.peers {
		p.close() //nolint:errcheck
	}
	s.mu.Unlock()

	s.wg.Wait()
	s.log.Info("redis test server stopped")
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.log.Error("accept error", zap.Error(err))
			continue
		}

		p := newPeer(conn)

		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			conn.Close() //nolint:errcheck
			return
		}
		s.peers[p] = struct{}{}
		s.wg.Add(1)
		s.mu.Unlock()

		go func() {
			defer s.wg.Done()
			s.handleConnection(p)
		}()
	}
}

// handleConnection handles a connection for a single client
func (s *Server) handleConnection(p *peer) {
	addr := p.addr()
	if s.log.Core().Enabled(zap.DebugLevel) {
		s.log.Debug("client connected", zap.String("addr", addr))
	}

	defer func() {
		s.engine.disconnect(p)
		p.close() //nolint:errcheck

		s.mu.Lock()
		delete(s.peers, p)
		s.mu.Unlock()

		if s.log.Core().Enabled(zap.DebugLevel) {
			s.log.Debug("client disconnected", zap.String("addr", addr))
		}
	}()

	for {
		cmdValue, err := p.readCommand()
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				s.log.Warn("read command failed", zap.String("addr", addr), zap.Error(err))
			}
			return
		}

		if cmdValue.Type != resp.TypeArray || len(cmdValue.Array) == 0 {
			s.log.Error("invalid request type", zap.String("addr", addr))
			continue
		}

		name := strings.ToUpper(string(cmdValue.Array[0].String))
		args := make([]string, len(cmdValue.Array)-1)
		for i, v := range cmdValue.Array[1:] {
			args[i] = string(v.String)
		}

		if fault := s.currentFault(); fault != nil {
			if raw, handled := fault(name, args); handled {
				if raw != nil {
					if err = p.sendRaw(raw); err != nil {
						return
					}
				}
				continue
			}
		}

		result := s.engine.execute(p, name, args)

		if err = p.send(result); err != nil {
			s.log.Error("error writing response", zap.Error(err))
			return
		}

		if p.closing {
			p.flush() //nolint:errcheck
			return
		}

		if p.inputBuffered() == 0 {
			if err = p.flush(); err != nil {
				return
			}
		}
	}
}
