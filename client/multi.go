package client

import (
	"github.com/eternalApril/moonlink/resp"
	"go.uber.org/zap"
)

// Multi runs fn inside MULTI/EXEC and returns the EXEC reply as is.
// Every command fn sends must be acknowledged with QUEUED. If fn fails, or
// Multi returns early for any other reason, DISCARD is sent so the server
// never keeps the transaction open
func (s *Session) Multi(fn func(*Session) error) (resp.Value, error) {
	if s.mode != modeNone {
		return resp.Value{}, ErrModeConflict
	}

	defer func() {
		if s.mode == modeMulti {
			s.mode = modeNone
			if s.log.Core().Enabled(zap.DebugLevel) {
				s.log.Debug("discarding transaction")
			}
			_, _ = s.Do("DISCARD") //nolint:errcheck
		}
	}()

	reply, err := s.Do("MULTI")
	if err != nil {
		return resp.Value{}, err
	}
	if !isStatus(reply, "OK") {
		return resp.Value{}, &ProtocolError{Msg: "unexpected redis response to MULTI", Reply: reply}
	}

	s.mode = modeMulti
	if err = fn(s); err != nil {
		return resp.Value{}, err
	}
	s.mode = modeNone

	return s.Do("EXEC")
}
