package client

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/eternalApril/moonlink/resp"
	"github.com/eternalApril/moonlink/transport"
	"go.uber.org/zap"
)

// masterAddr returns where the main connection goes. In sentinel mode the
// configured endpoint is asked for the master over a short-lived connection
func (s *Session) masterAddr() (string, int, error) {
	if !s.opts.Sentinel {
		return s.opts.Host, s.opts.Port, nil
	}

	tr, err := s.opts.Dialer.Dial(s.opts.Host, s.opts.Port, s.opts.Timeouts)
	if err != nil {
		return "", 0, fmt.Errorf("socket error while querying sentinel: %w", err)
	}

	conn := &Session{opts: s.opts, log: s.log, tr: tr}
	reply, err := conn.Do("SENTINEL", "MASTERS")
	if err == nil {
		_, _ = conn.Do("QUIT") //nolint:errcheck
	}
	conn.drop()

	if err != nil {
		var trErr *transport.Error
		if errors.As(err, &trErr) {
			return "", 0, fmt.Errorf("socket error while querying sentinel: %w", trErr)
		}
		return "", 0, fmt.Errorf("query sentinel: %w", err)
	}

	host, port, err := masterFromSentinel(reply)
	if err != nil {
		return "", 0, err
	}

	s.log.Info("resolved master from sentinel",
		zap.String("sentinel", s.opts.Addr()),
		zap.String("host", host),
		zap.Int("port", port),
	)

	return host, port, nil
}

// masterFromSentinel reads ip and port of the first master in a
// SENTINEL MASTERS reply. Only one monitored master is expected
func masterFromSentinel(reply resp.Value) (string, int, error) {
	if err := reply.Err(); err != nil {
		return "", 0, fmt.Errorf("query sentinel: %w", err)
	}

	masters, err := reply.Items()
	if err != nil {
		return "", 0, fmt.Errorf("%w: %v", ErrSentinelMalformed, err)
	}
	if len(masters) == 0 {
		return "", 0, ErrSentinelEmpty
	}

	info, err := masters[0].StringMap()
	if err != nil {
		return "", 0, fmt.Errorf("%w: %v", ErrSentinelMalformed, err)
	}

	host, port := info["ip"], info["port"]
	if host == "" {
		return "", 0, fmt.Errorf("%w: master without ip", ErrSentinelMalformed)
	}
	n, err := strconv.Atoi(port)
	if err != nil || n < 1 || n > 65535 {
		return "", 0, fmt.Errorf("%w: invalid master port %q", ErrSentinelMalformed, port)
	}

	return host, n, nil
}
