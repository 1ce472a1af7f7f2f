package client

import (
	"github.com/eternalApril/moonlink/resp"
	"go.uber.org/zap"
)

// Pipelined buffers every command fn issues, sends them in one write and
// returns their replies in submission order.
// If fn fails nothing is sent and the buffered requests are dropped
func (s *Session) Pipelined(fn func(*Session) error) ([]resp.Value, error) {
	if s.mode != modeNone {
		return nil, ErrModeConflict
	}

	s.mode = modePipeline
	s.pending = 0

	defer func() {
		s.pending = 0
		if s.mode == modePipeline {
			s.mode = modeNone
			s.out = s.out[:0]
		}
	}()

	if err := fn(s); err != nil {
		return nil, err
	}

	s.mode = modeNone
	if s.pending == 0 {
		return []resp.Value{}, nil
	}

	if s.log.Core().Enabled(zap.DebugLevel) {
		s.log.Debug("flushing pipeline", zap.Int("commands", s.pending), zap.Int("bytes", len(s.out)))
	}

	if err := s.flush(); err != nil {
		return nil, err
	}
	s.in = s.in[:0]

	replies := make([]resp.Value, 0, s.pending)
	for s.pending > 0 {
		reply, err := s.readReply()
		if err != nil {
			return nil, err
		}
		replies = append(replies, reply)
		s.pending--
	}

	return replies, nil
}
