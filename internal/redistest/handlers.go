package redistest

import (
	"fmt"
	"strings"
	"time"

	"github.com/eternalApril/moonlink/resp"
)

func (e *Engine) registerKeyCommands() {
	e.register(&command{name: "GET", arity: 2, flags: []string{"readonly", "fast"}, firstKey: 1, lastKey: 1, step: 1, handle: get})
	e.register(&command{name: "SET", arity: -3, flags: []string{"write", "denyoom"}, firstKey: 1, lastKey: 1, step: 1, handle: set})
	e.register(&command{name: "SETEX", arity: 4, flags: []string{"write", "denyoom"}, firstKey: 1, lastKey: 1, step: 1, handle: setex})
	e.register(&command{name: "INCR", arity: 2, flags: []string{"write", "denyoom", "fast"}, firstKey: 1, lastKey: 1, step: 1, handle: incr})
	e.register(&command{name: "DEL", arity: -2, flags: []string{"write"}, firstKey: 1, lastKey: -1, step: 1, handle: del})
	e.register(&command{name: "EXISTS", arity: -2, flags: []string{"readonly", "fast"}, firstKey: 1, lastKey: -1, step: 1, handle: exists})
	e.register(&command{name: "EXPIRE", arity: 3, flags: []string{"write", "fast"}, firstKey: 1, lastKey: 1, step: 1, handle: expire})
	e.register(&command{name: "TTL", arity: 2, flags: []string{"readonly", "fast"}, firstKey: 1, lastKey: 1, step: 1, handle: ttl})
	e.register(&command{name: "PTTL", arity: 2, flags: []string{"readonly", "fast"}, firstKey: 1, lastKey: 1, step: 1, handle: pttl})
	e.register(&command{name: "PERSIST", arity: 2, flags: []string{"write", "fast"}, firstKey: 1, lastKey: 1, step: 1, handle: persist})
	e.register(&command{name: "TYPE", arity: 2, flags: []string{"readonly", "fast"}, firstKey: 1, lastKey: 1, step: 1, handle: typeCmd})
}

func (e *Engine) registerSetCommands() {
	e.register(&command{name: "SADD", arity: -3, flags: []string{"write", "denyoom", "fast"}, firstKey: 1, lastKey: 1, step: 1, handle: sadd})
	e.register(&command{name: "SREM", arity: -3, flags: []string{"write", "fast"}, firstKey: 1, lastKey: 1, step: 1, handle: srem})
	e.register(&command{name: "SISMEMBER", arity: 3, flags: []string{"readonly", "fast"}, firstKey: 1, lastKey: 1, step: 1, handle: sismember})
	e.register(&command{name: "SCARD", arity: 2, flags: []string{"readonly", "fast"}, firstKey: 1, lastKey: 1, step: 1, handle: scard})
	e.register(&command{name: "SMEMBERS", arity: 2, flags: []string{"readonly", "sort_for_script"}, firstKey: 1, lastKey: 1, step: 1, handle: smembers})
}

func (e *Engine) registerHashCommands() {
	e.register(&command{name: "HSET", arity: -4, flags: []string{"write", "denyoom", "fast"}, firstKey: 1, lastKey: 1, step: 1, handle: hset})
	e.register(&command{name: "HGET", arity: 3, flags: []string{"readonly", "fast"}, firstKey: 1, lastKey: 1, step: 1, handle: hget})
	e.register(&command{name: "HGETALL", arity: 2, flags: []string{"readonly", "random"}, firstKey: 1, lastKey: 1, step: 1, handle: hgetall})
}

func get(ctx *cmdContext) resp.Value {
	val, found, err := ctx.db.get(ctx.args[0])
	if err != nil {
		return errorReply(err)
	}
	if !found {
		return resp.MakeNilBulkString()
	}
	return resp.MakeBulkString(val)
}

// set parses SET key value [NX | XX] [EX s | PX ms | EXAT ts | PXAT ts | KEEPTTL]
func set(ctx *cmdContext) resp.Value {
	key, value := ctx.args[0], ctx.args[1]
	opts := setOptions{}
	ttlSet := false

	for i := 2; i < len(ctx.args); i++ {
		arg := strings.ToUpper(ctx.args[i])

		switch arg {
		case "NX":
			if opts.XX {
				return resp.MakeError("ERR NX cannot use with XX")
			}
			opts.NX = true
		case "XX":
			if opts.NX {
				return resp.MakeError("ERR XX cannot use with NX")
			}
			opts.XX = true
		case "KEEPTTL":
			if ttlSet {
				return resp.MakeError("ERR TTL already specified")
			}
			ttlSet = true
			opts.KeepTTL = true
		case "EX", "PX", "EXAT", "PXAT":
			if ttlSet {
				return resp.MakeError("ERR TTL already specified")
			}
			if i+1 >= len(ctx.args) {
				return resp.MakeError("ERR syntax error")
			}
			i++
			n, valid := parseInt(ctx.args[i])
			if !valid {
				return resp.MakeError("ERR value TTL is not integer")
			}
			ttl := ttlFromArg(arg, n, ctx.db.now())
			if n <= 0 || ttl <= 0 {
				return resp.MakeError("ERR invalid expire time in 'set' command")
			}
			ttlSet = true
			opts.TTL = ttl
		default:
			return resp.MakeError(fmt.Sprintf("ERR syntax error with command argument '%s'", ctx.args[i]))
		}
	}

	if !ctx.db.set(key, value, opts) {
		return resp.MakeNilBulkString()
	}
	return ok()
}

func ttlFromArg(unit string, n int64, now time.Time) time.Duration {
	switch unit {
	case "EX":
		return time.Duration(n) * time.Second
	case "PX":
		return time.Duration(n) * time.Millisecond
	case "EXAT":
		return time.Unix(n, 0).Sub(now)
	}
	return time.UnixMilli(n).Sub(now)
}

func setex(ctx *cmdContext) resp.Value {
	n, valid := parseInt(ctx.args[1])
	if !valid {
		return resp.MakeError("ERR value is not an integer or out of range")
	}
	if n <= 0 {
		return resp.MakeError("ERR invalid expire time in 'setex' command")
	}
	ctx.db.set(ctx.args[0], ctx.args[2], setOptions{TTL: time.Duration(n) * time.Second})
	return ok()
}

func incr(ctx *cmdContext) resp.Value {
	n, err := ctx.db.incrBy(ctx.args[0], 1)
	if err != nil {
		return errorReply(err)
	}
	return resp.MakeInteger(n)
}

func del(ctx *cmdContext) resp.Value {
	var n int64
	for _, key := range ctx.args {
		if ctx.db.delete(key) {
			n++
		}
	}
	return resp.MakeInteger(n)
}

func exists(ctx *cmdContext) resp.Value {
	var n int64
	for _, key := range ctx.args {
		if ctx.db.exists(key) {
			n++
		}
	}
	return resp.MakeInteger(n)
}

func expire(ctx *cmdContext) resp.Value {
	n, valid := parseInt(ctx.args[1])
	if !valid {
		return resp.MakeError("ERR value is not an integer or out of range")
	}
	return boolReply(ctx.db.expire(ctx.args[0], time.Duration(n)*time.Second))
}

func ttl(ctx *cmdContext) resp.Value {
	left, status := ctx.db.expiry(ctx.args[0])
	if status != expActive {
		return resp.MakeInteger(int64(status))
	}
	// round to the nearest second like redis does
	return resp.MakeInteger(int64((left + 500*time.Millisecond) / time.Second))
}

func pttl(ctx *cmdContext) resp.Value {
	left, status := ctx.db.expiry(ctx.args[0])
	if status != expActive {
		return resp.MakeInteger(int64(status))
	}
	return resp.MakeInteger(left.Milliseconds())
}

func persist(ctx *cmdContext) resp.Value {
	return boolReply(ctx.db.persist(ctx.args[0]))
}

func typeCmd(ctx *cmdContext) resp.Value {
	return resp.MakeSimpleString(ctx.db.typeOf(ctx.args[0]).String())
}

func sadd(ctx *cmdContext) resp.Value {
	n, err := ctx.db.sAdd(ctx.args[0], ctx.args[1:])
	if err != nil {
		return errorReply(err)
	}
	return resp.MakeInteger(n)
}

func srem(ctx *cmdContext) resp.Value {
	n, err := ctx.db.sRem(ctx.args[0], ctx.args[1:])
	if err != nil {
		return errorReply(err)
	}
	return resp.MakeInteger(n)
}

func sismember(ctx *cmdContext) resp.Value {
	found, err := ctx.db.sIsMember(ctx.args[0], ctx.args[1])
	if err != nil {
		return errorReply(err)
	}
	return boolReply(found)
}

func scard(ctx *cmdContext) resp.Value {
	members, err := ctx.db.sMembers(ctx.args[0])
	if err != nil {
		return errorReply(err)
	}
	return resp.MakeInteger(int64(len(members)))
}

func smembers(ctx *cmdContext) resp.Value {
	members, err := ctx.db.sMembers(ctx.args[0])
	if err != nil {
		return errorReply(err)
	}
	return resp.MakeBulkStrings(members...)
}

func hset(ctx *cmdContext) resp.Value {
	if len(ctx.args[1:])%2 != 0 {
		return resp.MakeErrorWrongNumberOfArguments(ctx.name)
	}
	n, err := ctx.db.hSet(ctx.args[0], ctx.args[1:])
	if err != nil {
		return errorReply(err)
	}
	return resp.MakeInteger(n)
}

func hget(ctx *cmdContext) resp.Value {
	val, found, err := ctx.db.hGet(ctx.args[0], ctx.args[1])
	if err != nil {
		return errorReply(err)
	}
	if !found {
		return resp.MakeNilBulkString()
	}
	return resp.MakeBulkString(val)
}

func hgetall(ctx *cmdContext) resp.Value {
	pairs, err := ctx.db.hGetAll(ctx.args[0])
	if err != nil {
		return errorReply(err)
	}
	return resp.MakeBulkStrings(pairs...)
}
