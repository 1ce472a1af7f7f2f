package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/eternalApril/moonlink/internal/redistest"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

// runCLI executes the CLI against srv with the log output discarded
func runCLI(ctx context.Context, t *testing.T, srv *redistest.Server, stdin string, args ...string) (int, string) {
	t.Helper()

	var stdout, stderr bytes.Buffer
	full := append([]string{"--config", t.TempDir(), "--url", srv.URL(0), "--log-level", "error"}, args...)
	code := run(ctx, full, strings.NewReader(stdin), &stdout, &stderr)
	return code, stdout.String()
}

func TestRun_Commands(t *testing.T) {
	srv := redistest.Start(t, redistest.Options{})
	ctx := context.Background()

	tests := []struct {
		name     string
		stdin    string
		args     []string
		wantCode int
		wantOut  string
	}{
		{name: "do", args: []string{"do", "SET", "k", "v"}, wantOut: "OK\n"},
		{name: "do negative argument", args: []string{"do", "SET", "n", "-1"}, wantOut: "OK\n"},
		{name: "do get", args: []string{"do", "GET", "k"}, wantOut: "\"v\"\n"},
		{name: "do server error", args: []string{"do", "GET"}, wantOut: "(error) ERR wrong number of arguments for 'get' command\n"},
		{
			name:    "pipe",
			stdin:   "SET c 3\n\nINCR c\nGET c\n",
			args:    []string{"pipe"},
			wantOut: "OK\n(integer) 4\n\"4\"\n",
		},
		{
			name:    "multi",
			stdin:   "SET m 3\nINCR m\nGET m\n",
			args:    []string{"multi"},
			wantOut: "1) OK\n2) (integer) 4\n3) \"4\"\n",
		},
		{name: "publish", args: []string{"publish", "news", "hi"}, wantOut: "(integer) 0\n"},
		{name: "raw status", args: []string{"--raw", "do", "SET", "r", "1"}, wantOut: "+OK\r\n"},
		{name: "raw null", args: []string{"--raw", "do", "GET", "missing"}, wantOut: "$-1\r\n"},
		{
			name:    "raw pipe",
			stdin:   "INCR r\nGET r\n",
			args:    []string{"--raw", "pipe"},
			wantOut: ":2\r\n$1\r\n2\r\n",
		},
		{
			name:    "raw multi",
			stdin:   "SADD s a\nSMEMBERS s\n",
			args:    []string{"--raw", "multi"},
			wantOut: "*2\r\n:1\r\n*1\r\n$1\r\na\r\n",
		},
		{name: "no command", wantCode: 2},
		{name: "unknown command", args: []string{"frobnicate"}, wantCode: 2},
		{name: "do without name", args: []string{"do"}, wantCode: 2},
		{name: "bad lock kind", args: []string{"lock", "shared", "doc"}, wantCode: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, out := runCLI(ctx, t, srv, tt.stdin, tt.args...)
			assert.Equal(t, tt.wantCode, code)
			assert.Equal(t, tt.wantOut, out)
		})
	}
}

func TestRun_Locks(t *testing.T) {
	srv := redistest.Start(t, redistest.Options{})
	ctx := context.Background()

	code, out := runCLI(ctx, t, srv, "", "--owner", "alice", "lock", "write", "doc")
	require.Equal(t, 0, code)
	assert.Equal(t, "OK\n", out)

	code, out = runCLI(ctx, t, srv, "", "--raw", "--owner", "alice", "refresh", "write", "doc")
	require.Equal(t, 0, code)
	assert.Equal(t, "+OK\r\n", out)

	code, _ = runCLI(ctx, t, srv, "", "--owner", "bob", "--lock-timeout", "150ms", "lock", "write", "doc")
	assert.Equal(t, 1, code, "held by alice")

	code, _ = runCLI(ctx, t, srv, "", "--owner", "bob", "unlock", "write", "doc")
	assert.Equal(t, 1, code, "bob does not hold it")

	code, _ = runCLI(ctx, t, srv, "", "--owner", "alice", "refresh", "write", "doc")
	assert.Equal(t, 0, code)

	code, _ = runCLI(ctx, t, srv, "", "--owner", "alice", "unlock", "write", "doc")
	assert.Equal(t, 0, code)

	code, _ = runCLI(ctx, t, srv, "", "--owner", "bob", "lock", "read", "doc")
	assert.Equal(t, 0, code)
}

func TestRun_Subscribe(t *testing.T) {
	srv := redistest.Start(t, redistest.Options{})

	rdb := redis.NewClient(&redis.Options{Addr: srv.Addr(), Protocol: 2, DisableIdentity: true})
	t.Cleanup(func() {
		rdb.Close() //nolint:errcheck
	})

	tests := []struct {
		name    string
		flags   []string
		pattern string
		channel string
		wantOut string
	}{
		{
			name:    "text",
			pattern: "news.*",
			channel: "news.today",
			wantOut: "news.* news.today hello\n",
		},
		{
			name:    "raw",
			flags:   []string{"--raw"},
			pattern: "sport.*",
			channel: "sport.f1",
			wantOut: "*4\r\n$8\r\npmessage\r\n$7\r\nsport.*\r\n$8\r\nsport.f1\r\n$5\r\nhello\r\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()

			var (
				g    errgroup.Group
				code int
				out  string
			)
			g.Go(func() error {
				args := append(append([]string{}, tt.flags...), "--read-timeout", "100ms", "psubscribe", tt.pattern)
				code, out = runCLI(ctx, t, srv, "", args...)
				return nil
			})
			g.Go(func() error {
				for ctx.Err() == nil {
					n, err := rdb.Publish(context.Background(), tt.channel, "hello").Result()
					if err != nil {
						return err
					}
					if n > 0 {
						return nil
					}
					time.Sleep(20 * time.Millisecond)
				}
				return ctx.Err()
			})

			require.NoError(t, g.Wait())
			assert.Equal(t, 0, code)
			assert.Equal(t, tt.wantOut, out)
		})
	}
}

func TestRun_ConnectFailure(t *testing.T) {
	srv, err := redistest.New(redistest.Options{})
	require.NoError(t, err)
	srv.Close()

	code, _ := runCLI(context.Background(), t, srv, "", "do", "PING")
	assert.Equal(t, 1, code)
}
