package client

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/eternalApril/moonlink/internal/redistest"
	"github.com/eternalApril/moonlink/resp"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPipelined_RepliesInOrder(t *testing.T) {
	srv := redistest.Start(t, redistest.Options{})
	s := connect(t, srv)

	replies, err := s.Pipelined(func(p *Session) error {
		for _, cmd := range [][]string{{"SET", "k", "3"}, {"INCR", "k"}, {"GET", "k"}} {
			reply, err := p.Do(cmd[0], cmd[1:]...)
			if err != nil {
				return err
			}
			if !reply.Equal(Enqueued()) {
				return fmt.Errorf("unexpected reply while pipelining: %s", reply.Text())
			}
		}
		return nil
	})
	require.NoError(t, err)

	want := []resp.Value{
		resp.MakeSimpleString("OK"),
		resp.MakeInteger(4),
		resp.MakeBulkString("4"),
	}
	require.Len(t, replies, len(want))
	for i := range want {
		assert.True(t, want[i].Equal(replies[i]), "reply %d: got %s", i, replies[i].Text())
	}
}

func TestPipelined_PlaceholderIsNotShared(t *testing.T) {
	s, _ := scripted(t)

	_, err := s.Pipelined(func(p *Session) error {
		first, err := p.Do("PING")
		if err != nil {
			return err
		}
		first.String[0] = 'X'

		second, err := p.Do("PING")
		if err != nil {
			return err
		}
		assert.True(t, second.Equal(Enqueued()), "got %s", second.Text())
		assert.False(t, first.Equal(Enqueued()))
		return errors.New("stop before flushing")
	})
	assert.EqualError(t, err, "stop before flushing")
}

func TestPipelined_Many(t *testing.T) {
	srv := redistest.Start(t, redistest.Options{})
	s := connect(t, srv)

	const count = 500
	replies, err := s.Pipelined(func(p *Session) error {
		for i := 0; i < count; i++ {
			if _, err := p.Do("SET", fmt.Sprintf("pipe_key_%d", i), fmt.Sprintf("val_%d", i)); err != nil {
				return err
			}
		}
		for i := 0; i < count; i++ {
			if _, err := p.Do("GET", fmt.Sprintf("pipe_key_%d", i)); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)
	require.Len(t, replies, 2*count)

	for i := 0; i < count; i++ {
		val, err := replies[count+i].Str()
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("val_%d", i), val)
	}
}

func TestPipelined_Empty(t *testing.T) {
	s, tr := scripted(t)

	replies, err := s.Pipelined(func(*Session) error { return nil })
	require.NoError(t, err)
	assert.NotNil(t, replies)
	assert.Empty(t, replies)
	assert.Zero(t, tr.sent.Len(), "nothing is sent for an empty pipeline")
}

func TestPipelined_FailureDropsBuffer(t *testing.T) {
	srv := redistest.Start(t, redistest.Options{})
	s := connect(t, srv)
	boom := errors.New("boom")

	_, err := s.Pipelined(func(p *Session) error {
		if _, err := p.Do("SET", "dropped", "1"); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	reply, err := s.Do("PING")
	require.NoError(t, err)
	assert.Equal(t, "PONG", string(reply.String), "the next command sees its own reply")

	_, err = inspect(t, srv, 0).Get(context.Background(), "dropped").Result()
	assert.ErrorIs(t, err, redis.Nil)
}

func TestPipelined_ServerErrorsAreReplies(t *testing.T) {
	srv := redistest.Start(t, redistest.Options{})
	s := connect(t, srv)

	replies, err := s.Pipelined(func(p *Session) error {
		p.Do("SADD", "set", "a")      //nolint:errcheck
		p.Do("GET", "set")            //nolint:errcheck
		p.Do("SISMEMBER", "set", "a") //nolint:errcheck
		return nil
	})
	require.NoError(t, err)
	require.Len(t, replies, 3)

	assert.True(t, replies[1].IsError())
	isMember, err := replies[2].Bool()
	require.NoError(t, err)
	assert.True(t, isMember)
}

func TestPipelined_ModeConflicts(t *testing.T) {
	srv := redistest.Start(t, redistest.Options{})
	s := connect(t, srv)

	tests := []struct {
		name string
		fn   func(p *Session) error
	}{
		{"nested pipeline", func(p *Session) error {
			_, err := p.Pipelined(func(*Session) error { return nil })
			return err
		}},
		{"multi inside pipeline", func(p *Session) error {
			_, err := p.Multi(func(*Session) error { return nil })
			return err
		}},
		{"subscribe inside pipeline", func(p *Session) error {
			return p.Subscribe("ch")
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Pipelined(tt.fn)
			assert.ErrorIs(t, err, ErrModeConflict)

			reply, err := s.Do("PING")
			require.NoError(t, err)
			assert.Equal(t, "PONG", string(reply.String))
		})
	}
}

func TestPipelined_NotConnected(t *testing.T) {
	s := New(Options{Host: "127.0.0.1"})

	_, err := s.Pipelined(func(p *Session) error {
		_, err := p.Do("PING")
		return err
	})
	assert.ErrorIs(t, err, ErrNotConnected)
}
