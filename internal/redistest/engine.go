package redistest

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/eternalApril/moonlink/resp"
	"go.uber.org/zap"
)

// Engine executes commands against the in-memory databases.
// All commands, including a whole EXEC, run under one lock, so every
// command and every transaction is atomic
type Engine struct {
	mu       sync.Mutex
	commands map[string]*command // key is the command name in uppercase
	dbs      []*keyspace
	pubsub   *broker
	opts     Options
	logger   *zap.Logger
}

func newEngine(opts Options, logger *zap.Logger) *Engine {
	e := &Engine{
		commands: make(map[string]*command),
		dbs:      make([]*keyspace, opts.Databases),
		pubsub:   newBroker(logger),
		opts:     opts,
		logger:   logger,
	}
	for i := range e.dbs {
		e.dbs[i] = newKeyspace(opts.Now)
	}

	e.registerConnectionCommands()
	e.registerKeyCommands()
	e.registerSetCommands()
	e.registerHashCommands()
	e.registerTransactionCommands()
	e.registerPubSubCommands()

	return e
}

// register adds a new command to the engine. The command name is uppercase
func (e *Engine) register(cmd *command) {
	cmd.name = strings.ToLower(cmd.name)
	e.commands[strings.ToUpper(cmd.name)] = cmd
}

// allowed while authentication is pending
func preAuth(name string) bool {
	switch name {
	case "AUTH", "HELLO", "QUIT":
		return true
	}
	return false
}

// allowed on a connection with active subscriptions
func inSubscribedContext(name string) bool {
	switch name {
	case "SUBSCRIBE", "PSUBSCRIBE", "UNSUBSCRIBE", "PUNSUBSCRIBE", "PING", "QUIT":
		return true
	}
	return false
}

// not queued between MULTI and EXEC
func controlsTransaction(name string) bool {
	switch name {
	case "MULTI", "EXEC", "DISCARD", "QUIT":
		return true
	}
	return false
}

// execute finds the command by name and executes it for the peer.
// Errors are returned as RESP error values
func (e *Engine) execute(p *peer, name string, args []string) resp.Value {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.logger.Core().Enabled(zap.DebugLevel) {
		e.logger.Debug("executing command",
			zap.String("cmd", name),
			zap.Int("args_count", len(args)),
			zap.String("addr", p.addr()),
		)
	}

	if e.opts.Password != "" && !p.authenticated && !preAuth(name) {
		return resp.MakeError("NOAUTH Authentication required.")
	}

	cmd, found := e.commands[name]
	if !found {
		p.dirty = p.inMulti
		return unknownCommand(name, args)
	}
	if !cmd.arityOK(len(args)) {
		p.dirty = p.inMulti
		return resp.MakeErrorWrongNumberOfArguments(cmd.name)
	}

	if p.subscriptions() > 0 && !inSubscribedContext(name) {
		return resp.MakeError(fmt.Sprintf(
			"ERR Can't execute '%s': only (P)SUBSCRIBE / (P)UNSUBSCRIBE / PING / QUIT are allowed in this context",
			cmd.name,
		))
	}

	if p.inMulti && !controlsTransaction(name) {
		if cmd.hasFlag("pubsub") && name != "PUBLISH" {
			p.dirty = true
			return resp.MakeError("ERR Command not allowed inside a transaction")
		}
		p.queue = append(p.queue, queuedCommand{name: name, args: args})
		return resp.MakeSimpleString("QUEUED")
	}

	return e.run(p, cmd, args)
}

// run executes a resolved command, the caller holds the lock
func (e *Engine) run(p *peer, cmd *command, args []string) resp.Value {
	ctx := &cmdContext{
		name:   cmd.name,
		args:   args,
		db:     e.dbs[p.db],
		peer:   p,
		engine: e,
	}
	return cmd.handle(ctx)
}

// disconnect drops the state a closed connection leaves behind
func (e *Engine) disconnect(p *peer) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pubsub.unsubscribeAll(p)
}

func unknownCommand(name string, args []string) resp.Value {
	quoted := make([]string, len(args))
	for i, a := range args {
		quoted[i] = "'" + a + "'"
	}
	return resp.MakeError(fmt.Sprintf(
		"ERR unknown command '%s', with args beginning with: %s",
		strings.ToLower(name), strings.Join(quoted, " "),
	))
}

func (e *Engine) registerConnectionCommands() {
	e.register(&command{name: "PING", arity: -1, flags: []string{"fast", "stale"}, handle: ping})
	e.register(&command{name: "ECHO", arity: 2, flags: []string{"fast"}, handle: echo})
	e.register(&command{name: "AUTH", arity: -2, flags: []string{"noscript", "loading", "stale", "fast"}, handle: auth})
	e.register(&command{name: "HELLO", arity: -1, flags: []string{"noscript", "loading", "stale", "fast"}, handle: hello})
	e.register(&command{name: "SELECT", arity: 2, flags: []string{"loading", "stale", "fast"}, handle: selectDB})
	e.register(&command{name: "QUIT", arity: -1, flags: []string{"fast"}, handle: quit})
	e.register(&command{name: "CLIENT", arity: -2, flags: []string{"noscript", "loading", "stale"}, handle: clientCmd})
	e.register(&command{name: "COMMAND", arity: -1, flags: []string{"random", "loading", "stale"}, handle: commandInfo})
	e.register(&command{name: "SENTINEL", arity: -2, flags: []string{"admin"}, handle: sentinel})
	e.register(&command{name: "FLUSHDB", arity: -1, flags: []string{"write"}, handle: flushDB})
}

func ping(ctx *cmdContext) resp.Value {
	switch len(ctx.args) {
	case 0:
		if ctx.peer.subscriptions() > 0 {
			return resp.MakeBulkStrings("pong", "")
		}
		return resp.MakeSimpleString("PONG")
	case 1:
		return resp.MakeBulkString(ctx.args[0])
	}
	return resp.MakeErrorWrongNumberOfArguments(ctx.name)
}

func echo(ctx *cmdContext) resp.Value {
	return resp.MakeBulkString(ctx.args[0])
}

func auth(ctx *cmdContext) resp.Value {
	opts := ctx.engine.opts

	var user, pass string
	switch len(ctx.args) {
	case 1:
		user, pass = "default", ctx.args[0]
	case 2:
		user, pass = ctx.args[0], ctx.args[1]
	default:
		return resp.MakeError("ERR syntax error")
	}

	if opts.Password == "" && len(ctx.args) == 1 {
		return resp.MakeError("ERR AUTH <password> called without any password configured for the default user. Are you sure your configuration is correct?")
	}

	wantUser := opts.Username
	if wantUser == "" {
		wantUser = "default"
	}
	if user != wantUser || pass != opts.Password {
		return resp.MakeError("WRONGPASS invalid username-password pair or user is disabled.")
	}

	ctx.peer.authenticated = true
	return ok()
}

// hello is refused so clients fall back to RESP2
func hello(ctx *cmdContext) resp.Value {
	return unknownCommand("HELLO", ctx.args)
}

func selectDB(ctx *cmdContext) resp.Value {
	n, valid := parseInt(ctx.args[0])
	if !valid {
		return resp.MakeError("ERR value is not an integer or out of range")
	}
	if n < 0 || n >= int64(len(ctx.engine.dbs)) {
		return resp.MakeError("ERR DB index is out of range")
	}
	ctx.peer.db = int(n)
	return ok()
}

func quit(ctx *cmdContext) resp.Value {
	ctx.peer.closing = true
	return ok()
}

func clientCmd(ctx *cmdContext) resp.Value {
	switch strings.ToUpper(ctx.args[0]) {
	case "SETNAME", "SETINFO":
		return ok()
	case "GETNAME":
		return resp.MakeNilBulkString()
	}
	return resp.MakeError(fmt.Sprintf("ERR unknown subcommand '%s'. Try CLIENT HELP.", ctx.args[0]))
}

func commandInfo(ctx *cmdContext) resp.Value {
	cmds := ctx.engine.commands

	if len(ctx.args) > 0 {
		switch strings.ToUpper(ctx.args[0]) {
		case "COUNT":
			return resp.MakeInteger(int64(len(cmds)))
		case "INFO":
			out := make([]resp.Value, 0, len(ctx.args)-1)
			for _, name := range ctx.args[1:] {
				if cmd, found := cmds[strings.ToUpper(name)]; found {
					out = append(out, cmd.info())
				} else {
					out = append(out, resp.MakeNilArray())
				}
			}
			return resp.MakeArray(out)
		}
		return resp.MakeError(fmt.Sprintf("ERR unknown subcommand '%s'. Try COMMAND HELP.", ctx.args[0]))
	}

	names := make([]string, 0, len(cmds))
	for name := range cmds {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]resp.Value, 0, len(names))
	for _, name := range names {
		out = append(out, cmds[name].info())
	}
	return resp.MakeArray(out)
}

func sentinel(ctx *cmdContext) resp.Value {
	masters := ctx.engine.opts.Masters

	switch strings.ToUpper(ctx.args[0]) {
	case "MASTERS":
		out := make([]resp.Value, len(masters))
		for i, m := range masters {
			out[i] = m.fields()
		}
		return resp.MakeArray(out)
	case "GET-MASTER-ADDR-BY-NAME":
		if len(ctx.args) != 2 {
			return resp.MakeErrorWrongNumberOfArguments("sentinel|get-master-addr-by-name")
		}
		for _, m := range masters {
			if m.Name == ctx.args[1] {
				return resp.MakeBulkStrings(m.Host, fmt.Sprint(m.Port))
			}
		}
		return resp.MakeNilArray()
	}
	return resp.MakeError(fmt.Sprintf("ERR unknown sentinel subcommand '%s'", ctx.args[0]))
}

func flushDB(ctx *cmdContext) resp.Value {
	ctx.db.flush()
	return ok()
}
