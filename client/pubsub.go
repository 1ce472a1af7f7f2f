package client

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/eternalApril/moonlink/resp"
	"github.com/eternalApril/moonlink/transport"
	"go.uber.org/zap"
)

// Message is a published message received on a subscribed channel.
// Pattern is set only for messages matched by PSubscribe
type Message struct {
	Channel string
	Pattern string
	Payload string
}

// Subscribe subscribes to each channel in turn
func (s *Session) Subscribe(channels ...string) error {
	return s.subscribe("SUBSCRIBE", s.channels, channels)
}

// PSubscribe subscribes to each glob pattern in turn
func (s *Session) PSubscribe(patterns ...string) error {
	return s.subscribe("PSUBSCRIBE", s.patterns, patterns)
}

// Unsubscribe leaves the given channels. Channels not subscribed are skipped
func (s *Session) Unsubscribe(channels ...string) error {
	return s.unsubscribe("UNSUBSCRIBE", s.channels, channels)
}

// PUnsubscribe leaves the given patterns. Patterns not subscribed are skipped
func (s *Session) PUnsubscribe(patterns ...string) error {
	return s.unsubscribe("PUNSUBSCRIBE", s.patterns, patterns)
}

func (s *Session) subscribe(cmd string, set map[string]struct{}, names []string) error {
	if s.mode != modeNone {
		return ErrModeConflict
	}

	for _, name := range names {
		reply, err := s.Do(cmd, name)
		if err != nil {
			return err
		}
		if err = checkAck(reply, strings.ToLower(cmd), name); err != nil {
			return err
		}
		set[name] = struct{}{}
	}
	return nil
}

func (s *Session) unsubscribe(cmd string, set map[string]struct{}, names []string) error {
	if s.mode != modeNone {
		return ErrModeConflict
	}

	for _, name := range names {
		if _, ok := set[name]; !ok {
			continue
		}
		reply, err := s.Do(cmd, name)
		if err != nil {
			return err
		}
		if err = checkAck(reply, strings.ToLower(cmd), name); err != nil {
			return err
		}
		delete(set, name)
	}
	return nil
}

// checkAck validates [kind, name, count]
func checkAck(reply resp.Value, kind, name string) error {
	items, err := reply.Items()
	if err != nil {
		var srvErr *resp.ServerError
		if errors.As(err, &srvErr) {
			return err
		}
		return &ProtocolError{Msg: "unexpected redis response to " + kind, Reply: reply}
	}
	if len(items) != 3 {
		return &ProtocolError{Msg: "unexpected redis response to " + kind, Reply: reply}
	}

	gotKind, err1 := items[0].Str()
	gotName, err2 := items[1].Str()
	if err1 != nil || err2 != nil || gotKind != kind || gotName != name {
		return &ProtocolError{Msg: "unexpected " + kind + " acknowledgement", Reply: reply}
	}
	return nil
}

// Publish posts message to channel and returns the number of receivers
func (s *Session) Publish(channel, message string) (int64, error) {
	reply, err := s.Do("PUBLISH", channel, message)
	if err != nil {
		return 0, err
	}
	return reply.Int()
}

// Subscribed reports whether any channel or pattern is subscribed
func (s *Session) Subscribed() bool {
	return len(s.channels) > 0 || len(s.patterns) > 0
}

// Channels returns the subscribed channels, sorted
func (s *Session) Channels() []string {
	return sortedKeys(s.channels)
}

// Patterns returns the subscribed patterns, sorted
func (s *Session) Patterns() []string {
	return sortedKeys(s.patterns)
}

// Message waits for the next published message.
// It returns (nil, nil) when nothing arrived within the read timeout.
// Whether a transport failure is a timeout is decided by the time spent
// waiting, so only failures faster than the read timeout are returned
func (s *Session) Message() (*Message, error) {
	if s.mode != modeNone {
		return nil, ErrModeConflict
	}
	if !s.Subscribed() {
		return nil, ErrNotSubscribed
	}

	start := time.Now()
	reply, err := s.readReply()
	if err != nil {
		var trErr *transport.Error
		if errors.As(err, &trErr) {
			limit := s.opts.Timeouts.Read
			if s.tr != nil {
				limit = s.tr.Timeouts().Read
			}
			if limit > 0 && time.Since(start) >= limit {
				if s.log.Core().Enabled(zap.DebugLevel) {
					s.log.Debug("no message within read timeout", zap.Duration("timeout", limit))
				}
				return nil, nil
			}
		}
		return nil, fmt.Errorf("moonlink: failed to receive message: %w", err)
	}

	return parseMessage(reply)
}

func parseMessage(reply resp.Value) (*Message, error) {
	items, err := reply.Items()
	if err != nil || len(items) == 0 {
		return nil, &ProtocolError{Msg: "unexpected redis response, expected message or pmessage", Reply: reply}
	}

	parts := make([]string, len(items))
	for i, item := range items {
		if parts[i], err = item.Str(); err != nil {
			return nil, &ProtocolError{Msg: "unexpected redis response, expected message or pmessage", Reply: reply}
		}
	}

	switch {
	case parts[0] == "message" && len(parts) == 3:
		return &Message{Channel: parts[1], Payload: parts[2]}, nil
	case parts[0] == "pmessage" && len(parts) == 4:
		return &Message{Pattern: parts[1], Channel: parts[2], Payload: parts[3]}, nil
	}
	return nil, &ProtocolError{Msg: "unexpected redis response, expected message or pmessage", Reply: reply}
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
