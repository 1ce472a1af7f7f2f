package redistest

import (
	"strconv"

	"github.com/eternalApril/moonlink/resp"
)

// cmdContext is what a handler sees of the connection and the selected database
type cmdContext struct {
	name   string
	args   []string
	db     *keyspace
	peer   *peer
	engine *Engine
}

type handler func(ctx *cmdContext) resp.Value

// command is one registry entry
type command struct {
	name     string
	arity    int      // includes the command name itself, negative means at least
	flags    []string // readonly, write, fast, pubsub, etc
	firstKey int      // 1-based index of the first key
	lastKey  int      // 1-based index of the last key
	step     int      // step count for finding keys
	handle   handler
}

func (c *command) arityOK(args int) bool {
	n := args + 1
	if c.arity < 0 {
		return n >= -c.arity
	}
	return n == c.arity
}

func (c *command) hasFlag(flag string) bool {
	for _, f := range c.flags {
		if f == flag {
			return true
		}
	}
	return false
}

// info renders the entry the way COMMAND INFO does
func (c *command) info() resp.Value {
	flags := make([]resp.Value, len(c.flags))
	for i, f := range c.flags {
		flags[i] = resp.MakeSimpleString(f)
	}
	return resp.MakeArray([]resp.Value{
		resp.MakeBulkString(c.name),
		resp.MakeInteger(int64(c.arity)),
		resp.MakeArray(flags),
		resp.MakeInteger(int64(c.firstKey)),
		resp.MakeInteger(int64(c.lastKey)),
		resp.MakeInteger(int64(c.step)),
	})
}

func ok() resp.Value {
	return resp.MakeSimpleString("OK")
}

func errorReply(err error) resp.Value {
	return resp.MakeError(err.Error())
}

func boolReply(b bool) resp.Value {
	if b {
		return resp.MakeInteger(1)
	}
	return resp.MakeInteger(0)
}

func parseInt(s string) (int64, bool) {
	n, err := strconv.ParseInt(s, 10, 64)
	return n, err == nil
}
