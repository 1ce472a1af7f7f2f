package redistest

import (
	"github.com/eternalApril/moonlink/resp"
)

func (e *Engine) registerTransactionCommands() {
	e.register(&command{name: "MULTI", arity: 1, flags: []string{"noscript", "loading", "stale", "fast"}, handle: multi})
	e.register(&command{name: "EXEC", arity: 1, flags: []string{"noscript", "loading", "stale"}, handle: exec})
	e.register(&command{name: "DISCARD", arity: 1, flags: []string{"noscript", "loading", "stale", "fast"}, handle: discard})
}

func multi(ctx *cmdContext) resp.Value {
	p := ctx.peer
	if p.inMulti {
		return resp.MakeError("ERR MULTI calls can not be nested")
	}
	p.inMulti = true
	p.dirty = false
	p.queue = p.queue[:0]
	return ok()
}

// exec runs the queue without releasing the engine lock
func exec(ctx *cmdContext) resp.Value {
	p := ctx.peer
	if !p.inMulti {
		return resp.MakeError("ERR EXEC without MULTI")
	}

	// reset transaction state before executing
	queue, dirty := p.queue, p.dirty
	p.inMulti, p.dirty, p.queue = false, false, nil

	if dirty {
		return resp.MakeError("EXECABORT Transaction discarded because of previous errors.")
	}

	results := make([]resp.Value, len(queue))
	for i, qc := range queue {
		results[i] = ctx.engine.run(p, ctx.engine.commands[qc.name], qc.args)
	}
	return resp.MakeArray(results)
}

func discard(ctx *cmdContext) resp.Value {
	p := ctx.peer
	if !p.inMulti {
		return resp.MakeError("ERR DISCARD without MULTI")
	}
	p.inMulti, p.dirty, p.queue = false, false, nil
	return ok()
}
