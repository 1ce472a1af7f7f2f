package redistest

import (
	"path"
	"sort"

	"github.com/eternalApril/moonlink/resp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// broker tracks subscriptions. It is guarded by the engine lock
type broker struct {
	channels map[string]map[*peer]struct{}
	patterns map[string]map[*peer]struct{}
	logger   *zap.Logger
}

func newBroker(logger *zap.Logger) *broker {
	return &broker{
		channels: make(map[string]map[*peer]struct{}),
		patterns: make(map[string]map[*peer]struct{}),
		logger:   logger,
	}
}

func (b *broker) add(index map[string]map[*peer]struct{}, name string, p *peer) {
	subs, found := index[name]
	if !found {
		subs = make(map[*peer]struct{})
		index[name] = subs
	}
	subs[p] = struct{}{}
}

func (b *broker) remove(index map[string]map[*peer]struct{}, name string, p *peer) {
	if subs, found := index[name]; found {
		delete(subs, p)
		if len(subs) == 0 {
			delete(index, name)
		}
	}
}

func (b *broker) unsubscribeAll(p *peer) {
	for ch := range p.channels {
		b.remove(b.channels, ch, p)
	}
	for pat := range p.patterns {
		b.remove(b.patterns, pat, p)
	}
	clear(p.channels)
	clear(p.patterns)
}

// publish delivers message to every matching subscriber and returns how many
// deliveries were made. A peer subscribed both to the channel and to a
// matching pattern receives it twice
func (b *broker) publish(channel, message string) int64 {
	type delivery struct {
		to  *peer
		msg resp.Value
	}

	var out []delivery
	for p := range b.channels[channel] {
		out = append(out, delivery{p, resp.MakeBulkStrings("message", channel, message)})
	}
	for pattern, subs := range b.patterns {
		if matched, err := path.Match(pattern, channel); err != nil || !matched {
			continue
		}
		for p := range subs {
			out = append(out, delivery{p, resp.MakeBulkStrings("pmessage", pattern, channel, message)})
		}
	}

	var g errgroup.Group
	for _, d := range out {
		d := d
		g.Go(func() error {
			return d.to.push(d.msg)
		})
	}
	if err := g.Wait(); err != nil {
		b.logger.Warn("publish delivery failed", zap.String("channel", channel), zap.Error(err))
	}

	return int64(len(out))
}

func (e *Engine) registerPubSubCommands() {
	e.register(&command{name: "SUBSCRIBE", arity: -2, flags: []string{"pubsub", "noscript", "loading", "stale"}, handle: subscribe})
	e.register(&command{name: "PSUBSCRIBE", arity: -2, flags: []string{"pubsub", "noscript", "loading", "stale"}, handle: psubscribe})
	e.register(&command{name: "UNSUBSCRIBE", arity: -1, flags: []string{"pubsub", "noscript", "loading", "stale"}, handle: unsubscribe})
	e.register(&command{name: "PUNSUBSCRIBE", arity: -1, flags: []string{"pubsub", "noscript", "loading", "stale"}, handle: punsubscribe})
	e.register(&command{name: "PUBLISH", arity: 3, flags: []string{"pubsub", "loading", "stale", "fast"}, handle: publish})
}

func ack(kind, name string, count int) resp.Value {
	return resp.MakeArray([]resp.Value{
		resp.MakeBulkString(kind),
		resp.MakeBulkString(name),
		resp.MakeInteger(int64(count)),
	})
}

// acks sends all but the last acknowledgement directly and returns the last one
func acks(p *peer, replies []resp.Value) resp.Value {
	for _, r := range replies[:len(replies)-1] {
		p.send(r) //nolint:errcheck
	}
	return replies[len(replies)-1]
}

func subscribe(ctx *cmdContext) resp.Value {
	return subscribeTo(ctx, ctx.engine.pubsub.channels, ctx.peer.channels)
}

func psubscribe(ctx *cmdContext) resp.Value {
	return subscribeTo(ctx, ctx.engine.pubsub.patterns, ctx.peer.patterns)
}

func subscribeTo(ctx *cmdContext, index map[string]map[*peer]struct{}, own map[string]struct{}) resp.Value {
	replies := make([]resp.Value, 0, len(ctx.args))
	for _, name := range ctx.args {
		ctx.engine.pubsub.add(index, name, ctx.peer)
		own[name] = struct{}{}
		replies = append(replies, ack(ctx.name, name, ctx.peer.subscriptions()))
	}
	return acks(ctx.peer, replies)
}

func unsubscribe(ctx *cmdContext) resp.Value {
	return unsubscribeFrom(ctx, ctx.engine.pubsub.channels, ctx.peer.channels)
}

func punsubscribe(ctx *cmdContext) resp.Value {
	return unsubscribeFrom(ctx, ctx.engine.pubsub.patterns, ctx.peer.patterns)
}

// unsubscribeFrom without arguments leaves everything of that kind
func unsubscribeFrom(ctx *cmdContext, index map[string]map[*peer]struct{}, own map[string]struct{}) resp.Value {
	names := ctx.args
	if len(names) == 0 {
		for name := range own {
			names = append(names, name)
		}
		sort.Strings(names)
	}

	if len(names) == 0 {
		return resp.MakeArray([]resp.Value{
			resp.MakeBulkString(ctx.name),
			resp.MakeNilBulkString(),
			resp.MakeInteger(int64(ctx.peer.subscriptions())),
		})
	}

	replies := make([]resp.Value, 0, len(names))
	for _, name := range names {
		ctx.engine.pubsub.remove(index, name, ctx.peer)
		delete(own, name)
		replies = append(replies, ack(ctx.name, name, ctx.peer.subscriptions()))
	}
	return acks(ctx.peer, replies)
}

func publish(ctx *cmdContext) resp.Value {
	n := ctx.engine.pubsub.publish(ctx.args[0], ctx.args[1])

	if ctx.engine.logger.Core().Enabled(zap.DebugLevel) {
		ctx.engine.logger.Debug("published",
			zap.String("channel", ctx.args[0]),
			zap.Int64("receivers", n),
		)
	}
	return resp.MakeInteger(n)
}
