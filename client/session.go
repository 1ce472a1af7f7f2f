package client

import (
	"errors"
	"fmt"
	"net"
	"strconv"

	"github.com/eternalApril/moonlink/resp"
	"github.com/eternalApril/moonlink/transport"
	"go.uber.org/zap"
)

// mode is what Do does with a request
type mode uint8

const (
	modeNone     mode = iota // send and wait for the reply
	modePipeline             // buffer locally, replies are read by Pipelined
	modeMulti                // send, the reply must be QUEUED
)

func (m mode) String() string {
	switch m {
	case modePipeline:
		return "pipeline"
	case modeMulti:
		return "multi"
	}
	return "none"
}

// Enqueued returns the placeholder Do gives back while pipelining. It is not
// a server reply. Every call returns a fresh value
func Enqueued() resp.Value {
	return resp.MakeSimpleString("enqueued to buffer")
}

// Session is a single connection to a redis server.
// It is not safe for concurrent use: run one Session per goroutine
type Session struct {
	opts Options
	log  *zap.Logger

	tr   transport.Transport
	addr string // address of the server actually connected to

	in  []byte // received, not parsed yet
	out []byte // encoded, not sent yet

	mode    mode
	pending int // requests buffered in pipeline mode

	channels map[string]struct{}
	patterns map[string]struct{}
}

// New creates a disconnected Session
func New(opts Options) *Session {
	opts = opts.withDefaults()
	return &Session{
		opts:     opts,
		log:      opts.Logger.With(zap.String("redis", opts.Addr())),
		channels: make(map[string]struct{}),
		patterns: make(map[string]struct{}),
	}
}

// NewFromURL parses rawURL and applies the given overrides before creating the Session.
// See ParseURL for the accepted format
func NewFromURL(rawURL string, configure ...func(*Options)) (*Session, error) {
	opts, err := ParseURL(rawURL)
	if err != nil {
		return nil, err
	}
	for _, fn := range configure {
		fn(&opts)
	}
	return New(opts), nil
}

// Options returns the effective options, defaults applied
func (s *Session) Options() Options {
	return s.opts
}

// Connected reports whether the session holds a live transport
func (s *Session) Connected() bool {
	return s.tr != nil
}

// Addr returns the address of the connected server, which differs from the
// configured one in sentinel mode. Empty when disconnected
func (s *Session) Addr() string {
	return s.addr
}

// Connect resolves the master (sentinel mode), opens the connection,
// authenticates and selects the database. On failure the session stays disconnected
func (s *Session) Connect() error {
	if s.tr != nil {
		return ErrAlreadyConnected
	}

	host, port, err := s.masterAddr()
	if err != nil {
		return err
	}

	tr, err := s.opts.Dialer.Dial(host, port, s.opts.Timeouts)
	if err != nil {
		return fmt.Errorf("socket error while connecting to redis: %w", err)
	}

	s.tr = tr
	s.addr = net.JoinHostPort(host, strconv.Itoa(port))
	s.mode = modeNone
	s.pending = 0
	s.ResetBuffers()

	if err = s.handshake(); err != nil {
		s.drop()
		return err
	}

	if s.log.Core().Enabled(zap.DebugLevel) {
		s.log.Debug("connected", zap.String("addr", s.addr), zap.Int("db", s.opts.DB))
	}

	return nil
}

func (s *Session) handshake() error {
	switch {
	case s.opts.Username != "":
		if _, err := s.call("AUTH", s.opts.Username, s.opts.Password); err != nil {
			return fmt.Errorf("redis auth: %w", err)
		}
	case s.opts.Password != "":
		if _, err := s.call("AUTH", s.opts.Password); err != nil {
			return fmt.Errorf("redis auth: %w", err)
		}
	}

	if _, err := s.call("SELECT", strconv.Itoa(s.opts.DB)); err != nil {
		return fmt.Errorf("redis select db %d: %w", s.opts.DB, err)
	}

	return nil
}

// Close sends QUIT (best effort), closes the transport and clears both buffers
func (s *Session) Close() error {
	var err error
	if s.tr != nil {
		s.mode = modeNone
		s.pending = 0
		s.out = s.out[:0]
		_, _ = s.Do("QUIT") //nolint:errcheck
		err = s.tr.Close()
		s.tr = nil
		s.addr = ""

		if s.log.Core().Enabled(zap.DebugLevel) {
			s.log.Debug("disconnected")
		}
	}

	s.ResetBuffers()
	clear(s.channels)
	clear(s.patterns)

	return err
}

// drop closes a half-open connection without talking to the server
func (s *Session) drop() {
	if s.tr != nil {
		s.tr.Close() //nolint:errcheck
		s.tr = nil
	}
	s.addr = ""
	s.ResetBuffers()
}

// ResetBuffers discards unparsed input and unsent output
func (s *Session) ResetBuffers() {
	s.in = s.in[:0]
	s.out = s.out[:0]
}

// Do sends one command and waits for its reply.
// While pipelining the command is only buffered and Enqueued is returned.
// Inside Multi the reply must be QUEUED, otherwise a *ProtocolError is returned.
// A server error reply is returned as a value; use its accessors or Err
func (s *Session) Do(name string, args ...string) (resp.Value, error) {
	if s.mode != modePipeline && s.tr == nil {
		return resp.Value{}, ErrNotConnected
	}

	s.out = resp.AppendCommand(s.out, name, args...)

	if s.log.Core().Enabled(zap.DebugLevel) {
		s.log.Debug("request",
			zap.String("cmd", name),
			zap.Int("args_count", len(args)),
			zap.Stringer("mode", s.mode),
		)
	}

	if s.mode == modePipeline {
		s.pending++
		return Enqueued(), nil
	}

	if err := s.flush(); err != nil {
		return resp.Value{}, err
	}
	s.in = s.in[:0]

	return s.readReply()
}

// call is Do that also turns an error reply into an error
func (s *Session) call(name string, args ...string) (resp.Value, error) {
	reply, err := s.Do(name, args...)
	if err != nil {
		return reply, err
	}
	return reply, reply.Err()
}

// flush sends the output buffer. The buffer is emptied even on failure,
// a partially written request cannot be resumed
func (s *Session) flush() error {
	if s.tr == nil {
		return ErrNotConnected
	}

	err := s.tr.Send(s.out)
	s.out = s.out[:0]
	if err != nil {
		return fmt.Errorf("socket error while sending request: %w", err)
	}
	return nil
}

// readReply parses one value out of the input buffer, receiving more bytes
// as long as the buffered data is incomplete
func (s *Session) readReply() (resp.Value, error) {
	if s.tr == nil {
		return resp.Value{}, ErrNotConnected
	}

	for {
		if len(s.in) > 0 {
			val, n, err := resp.Parse(s.in)
			switch {
			case err == nil:
				s.consume(n)
				return s.accept(val)
			case errors.Is(err, resp.ErrIncomplete):
			default:
				return resp.Value{}, fmt.Errorf("invalid redis response: %w", err)
			}
		}

		chunk, err := s.tr.Receive()
		if err != nil {
			return resp.Value{}, fmt.Errorf("socket error while reading response: %w", err)
		}
		s.in = append(s.in, chunk...)

		if s.log.Core().Enabled(zap.DebugLevel) {
			s.log.Debug("received", zap.Int("bytes", len(chunk)), zap.Int("buffered", len(s.in)))
		}
	}
}

func (s *Session) accept(val resp.Value) (resp.Value, error) {
	if s.log.Core().Enabled(zap.DebugLevel) {
		s.log.Debug("reply", zap.String("value", val.Text()))
	}

	if s.mode == modeMulti && !isStatus(val, "QUEUED") {
		return val, &ProtocolError{Msg: "unexpected redis response inside transaction", Reply: val}
	}
	return val, nil
}

func (s *Session) consume(n int) {
	rest := copy(s.in, s.in[n:])
	s.in = s.in[:rest]
}

// isStatus reports whether v is the simple string status
func isStatus(v resp.Value, status string) bool {
	return v.Type == resp.TypeSimpleString && string(v.String) == status
}
