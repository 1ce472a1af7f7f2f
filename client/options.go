package client

import (
	"net"
	"strconv"
	"time"

	"github.com/eternalApril/moonlink/transport"
	"go.uber.org/zap"
)

const (
	DefaultPort        = 6379
	DefaultLockExpire  = 60 * time.Second
	DefaultLockTimeout = 10 * time.Second
)

// OwnerResolver returns the identity written into lock keys
type OwnerResolver func() (string, error)

// Options configures a Session. Zero fields fall back to defaults
type Options struct {
	Host     string
	Port     int
	DB       int
	Sentinel bool // Host:Port is a sentinel that knows the master

	// Username is sent only together with Password (AUTH user pass)
	Username string
	Password string

	Timeouts transport.Timeouts
	Dialer   transport.Dialer
	Logger   *zap.Logger

	// Owner provides the default lock owner, the local hostname when nil
	Owner       OwnerResolver
	LockExpire  time.Duration
	LockTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.Port == 0 {
		o.Port = DefaultPort
	}

	def := transport.DefaultTimeouts()
	if o.Timeouts.Connect == 0 {
		o.Timeouts.Connect = def.Connect
	}
	if o.Timeouts.Read == 0 {
		o.Timeouts.Read = def.Read
	}
	if o.Timeouts.Write == 0 {
		o.Timeouts.Write = def.Write
	}

	if o.Dialer == nil {
		o.Dialer = transport.TCPDialer{}
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Owner == nil {
		o.Owner = transport.Hostname
	}
	if o.LockExpire <= 0 {
		o.LockExpire = DefaultLockExpire
	}
	if o.LockTimeout < 0 {
		o.LockTimeout = 0
	} else if o.LockTimeout == 0 {
		o.LockTimeout = DefaultLockTimeout
	}

	return o
}

// Addr returns host:port as configured (the sentinel address in sentinel mode)
func (o Options) Addr() string {
	return net.JoinHostPort(o.Host, strconv.Itoa(o.Port))
}

// SameServer reports whether both options point at the same server and database
func (o Options) SameServer(other Options) bool {
	return o.Host == other.Host && o.Port == other.Port && o.DB == other.DB && o.Sentinel == other.Sentinel
}
