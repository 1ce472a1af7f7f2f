package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/eternalApril/moonlink/client"
	"github.com/eternalApril/moonlink/internal/config"
	"github.com/eternalApril/moonlink/internal/logger"
	"github.com/eternalApril/moonlink/resp"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

const usage = `usage: moonlink [flags] <command> [args]

commands:
  do CMD [ARGS...]                run one command
  pipe                            send stdin lines as one pipeline
  multi                           send stdin lines inside MULTI/EXEC
  publish CHANNEL MESSAGE         publish a message
  subscribe CHANNEL...            print messages until interrupted
  psubscribe PATTERN...           same, for glob patterns
  lock read|write ID              acquire a lock
  refresh read|write ID           renew a held lock
  unlock read|write ID            release a held lock

flags:
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	os.Exit(run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

// run parses flags, connects and executes one command, returning the exit code
func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := pflag.NewFlagSet("moonlink", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.SetInterspersed(false)
	fs.Usage = func() {
		fmt.Fprint(stderr, usage) //nolint:errcheck
		fs.PrintDefaults()
	}
	configPath := fs.String("config", ".", "directory holding moonlink.yaml")
	raw := fs.Bool("raw", false, "print replies in RESP wire format")
	config.Flags(fs)

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return 2
	}

	cfg, err := config.Load(*configPath, fs)
	if err != nil {
		fmt.Fprintf(stderr, "load config: %v\n", err) //nolint:errcheck
		return 1
	}

	log, err := logger.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintf(stderr, "init logger: %v\n", err) //nolint:errcheck
		return 1
	}
	defer log.Sync() //nolint:errcheck

	opts, err := cfg.ClientOptions()
	if err != nil {
		log.Error("invalid configuration", zap.Error(err))
		return 1
	}
	opts.Logger = log

	s := client.New(opts)
	if err = s.Connect(); err != nil {
		log.Error("connect failed", zap.String("addr", opts.Addr()), zap.Error(err))
		return 1
	}
	defer func() {
		if err := s.Close(); err != nil {
			log.Warn("close failed", zap.Error(err))
		}
	}()

	if log.Core().Enabled(zap.DebugLevel) {
		log.Debug("connected", zap.String("addr", s.Addr()), zap.Int("db", opts.DB))
	}

	cmd := &command{session: s, in: stdin, out: stdout, log: log}
	if *raw {
		cmd.enc = resp.NewEncoder(stdout)
	}
	if err = cmd.execute(ctx, fs.Args()); err != nil {
		if errors.Is(err, errUsage) {
			fs.Usage()
			return 2
		}
		log.Error("command failed", zap.String("command", fs.Arg(0)), zap.Error(err))
		return 1
	}

	return 0
}
