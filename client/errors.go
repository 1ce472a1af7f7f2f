package client

import (
	"errors"
	"fmt"

	"github.com/eternalApril/moonlink/resp"
)

var (
	ErrNotConnected     = errors.New("moonlink: redis not connected")
	ErrAlreadyConnected = errors.New("moonlink: redis already connected")
	// ErrModeConflict is returned when a pipeline, transaction or
	// subscription call starts while another pipeline or transaction is open
	ErrModeConflict  = errors.New("moonlink: pipeline and transaction cannot be nested")
	ErrNotSubscribed = errors.New("moonlink: not subscribed to any channel or pattern")
	ErrEmptyLockID   = errors.New("moonlink: empty lock id")

	ErrSentinelEmpty     = errors.New("moonlink: empty response from sentinel")
	ErrSentinelMalformed = errors.New("moonlink: failed to parse response from sentinel")
)

// ProtocolError is a reply that is well formed but not what the exchange requires,
// e.g. anything but QUEUED inside MULTI
type ProtocolError struct {
	Msg   string
	Reply resp.Value
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("moonlink: %s: %q", e.Msg, e.Reply.Text())
}

// Unwrap exposes a server error reply, so errors.As(err, **resp.ServerError) works
func (e *ProtocolError) Unwrap() error {
	return e.Reply.Err()
}
