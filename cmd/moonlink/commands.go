package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/eternalApril/moonlink/client"
	"github.com/eternalApril/moonlink/resp"
	"go.uber.org/zap"
)

var errUsage = errors.New("usage")

// command runs one CLI verb over a connected session
type command struct {
	session *client.Session
	in      io.Reader
	out     io.Writer
	enc     *resp.Encoder // set in raw mode
	log     *zap.Logger
}

func (c *command) execute(ctx context.Context, args []string) error {
	name, rest := strings.ToLower(args[0]), args[1:]

	switch name {
	case "do":
		if len(rest) == 0 {
			return errUsage
		}
		reply, err := c.session.Do(rest[0], rest[1:]...)
		if err != nil {
			return err
		}
		return c.print(reply)

	case "pipe":
		return c.pipe()

	case "multi":
		return c.multi()

	case "publish":
		if len(rest) != 2 {
			return errUsage
		}
		n, err := c.session.Publish(rest[0], rest[1])
		if err != nil {
			return err
		}
		return c.print(resp.MakeInteger(n))

	case "subscribe", "psubscribe":
		if len(rest) == 0 {
			return errUsage
		}
		return c.subscribe(ctx, name == "psubscribe", rest)

	case "lock", "refresh", "unlock":
		if len(rest) != 2 {
			return errUsage
		}
		return c.lock(name, rest[0], rest[1])
	}

	return errUsage
}

func (c *command) print(v resp.Value) error {
	if c.enc != nil {
		if err := c.enc.Write(v); err != nil {
			return err
		}
		return c.enc.Flush()
	}

	_, err := fmt.Fprintln(c.out, v.Text())
	return err
}

// readCommands splits stdin into commands, one per non-empty line, arguments separated by blanks
func (c *command) readCommands() ([][]string, error) {
	var cmds [][]string

	scanner := bufio.NewScanner(c.in)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		cmds = append(cmds, fields)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read commands: %w", err)
	}

	return cmds, nil
}

func (c *command) pipe() error {
	cmds, err := c.readCommands()
	if err != nil {
		return err
	}

	replies, err := c.session.Pipelined(func(p *client.Session) error {
		for _, cmd := range cmds {
			if _, err := p.Do(cmd[0], cmd[1:]...); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	for _, reply := range replies {
		if err = c.print(reply); err != nil {
			return err
		}
	}
	return nil
}

func (c *command) multi() error {
	cmds, err := c.readCommands()
	if err != nil {
		return err
	}

	reply, err := c.session.Multi(func(tx *client.Session) error {
		for _, cmd := range cmds {
			if _, err := tx.Do(cmd[0], cmd[1:]...); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	return c.print(reply)
}

// subscribe prints messages until ctx is done. Cancellation is noticed
// between reads, at the latest after one read timeout
func (c *command) subscribe(ctx context.Context, patterns bool, names []string) error {
	var err error
	if patterns {
		err = c.session.PSubscribe(names...)
	} else {
		err = c.session.Subscribe(names...)
	}
	if err != nil {
		return err
	}

	for ctx.Err() == nil {
		msg, err := c.session.Message()
		if err != nil {
			return err
		}
		if msg == nil {
			continue
		}

		if err = c.printMessage(msg); err != nil {
			return err
		}
	}

	c.log.Info("subscription stopped", zap.Strings("names", names))
	return nil
}

// printMessage writes a pub/sub message, as the server frame in raw mode
func (c *command) printMessage(msg *client.Message) error {
	if c.enc != nil {
		frame := resp.MakeBulkStrings("message", msg.Channel, msg.Payload)
		if msg.Pattern != "" {
			frame = resp.MakeBulkStrings("pmessage", msg.Pattern, msg.Channel, msg.Payload)
		}
		return c.print(frame)
	}

	var err error
	if msg.Pattern != "" {
		_, err = fmt.Fprintf(c.out, "%s %s %s\n", msg.Pattern, msg.Channel, msg.Payload)
	} else {
		_, err = fmt.Fprintf(c.out, "%s %s\n", msg.Channel, msg.Payload)
	}
	return err
}

func (c *command) lock(verb, kind, id string) error {
	type lockFunc func(string, ...client.LockOption) (bool, error)

	ops := map[string]map[string]lockFunc{
		"lock":    {"read": c.session.LockRead, "write": c.session.LockWrite},
		"refresh": {"read": c.session.LockReadRefresh, "write": c.session.LockWriteRefresh},
		"unlock":  {"read": c.session.UnlockRead, "write": c.session.UnlockWrite},
	}

	op, ok := ops[verb][strings.ToLower(kind)]
	if !ok {
		return errUsage
	}

	held, err := op(id)
	if err != nil {
		return err
	}
	if !held {
		return fmt.Errorf("%s %s lock %q: not held", verb, kind, id)
	}

	return c.print(resp.MakeSimpleString("OK"))
}
