// Package redispub fans streampass lifecycle events out to a Redis stream.
//
// Every event becomes one XADD entry whose fields are the event's
// flattened Fields. Consumers read the stream with XREAD or a consumer
// group; the publisher never reads.
package redispub

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/xraph/streampass/plugin"
)

// DefaultStream is the stream key used when WithStream is not given.
const DefaultStream = "streampass:events"

// Compile-time interface checks.
var (
	_ plugin.Plugin                 = (*Publisher)(nil)
	_ plugin.OnShutdown             = (*Publisher)(nil)
	_ plugin.OnPassMinted           = (*Publisher)(nil)
	_ plugin.OnPassActivated        = (*Publisher)(nil)
	_ plugin.OnPassDeactivated      = (*Publisher)(nil)
	_ plugin.OnPassTransferred      = (*Publisher)(nil)
	_ plugin.OnTTVAccrued           = (*Publisher)(nil)
	_ plugin.OnScheduleUpdated      = (*Publisher)(nil)
	_ plugin.OnOwnershipTransferred = (*Publisher)(nil)
	_ plugin.OnFlowRejected         = (*Publisher)(nil)
)

// Streamer is the subset of redis.Cmdable the publisher needs.
type Streamer interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
}

// Publisher writes events to a Redis stream.
type Publisher struct {
	client Streamer
	stream string
	maxLen int64
	skip   map[string]bool
	closer func() error
	logger *slog.Logger
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithStream sets the stream key.
func WithStream(stream string) Option {
	return func(p *Publisher) { p.stream = stream }
}

// WithMaxLen caps the stream with approximate trimming.
func WithMaxLen(n int64) Option {
	return func(p *Publisher) { p.maxLen = n }
}

// WithoutEvents drops the named events.
func WithoutEvents(names ...string) Option {
	return func(p *Publisher) {
		for _, n := range names {
			p.skip[n] = true
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) { p.logger = logger }
}

// New creates a Publisher over an existing client.
func New(client Streamer, opts ...Option) *Publisher {
	p := &Publisher{
		client: client,
		stream: DefaultStream,
		skip:   make(map[string]bool),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Dial connects to the Redis server at url ("redis://host:6379/0").
// The client is closed on engine shutdown.
func Dial(url string, opts ...Option) (*Publisher, error) {
	o, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redispub: parse url: %w", err)
	}
	client := redis.NewClient(o)
	p := New(client, opts...)
	p.closer = client.Close
	return p, nil
}

// Name implements plugin.Plugin.
func (p *Publisher) Name() string { return "redis-publisher" }

// OnShutdown implements plugin.OnShutdown.
func (p *Publisher) OnShutdown(context.Context) error {
	if p.closer == nil {
		return nil
	}
	return p.closer()
}

func (p *Publisher) OnPassMinted(ctx context.Context, e plugin.PassEvent) error {
	return p.publish(ctx, e)
}

func (p *Publisher) OnPassActivated(ctx context.Context, e plugin.PassEvent) error {
	return p.publish(ctx, e)
}

func (p *Publisher) OnPassDeactivated(ctx context.Context, e plugin.PassEvent) error {
	return p.publish(ctx, e)
}

func (p *Publisher) OnPassTransferred(ctx context.Context, e plugin.TransferEvent) error {
	return p.publish(ctx, e)
}

func (p *Publisher) OnTTVAccrued(ctx context.Context, e plugin.AccrualEvent) error {
	return p.publish(ctx, e)
}

func (p *Publisher) OnScheduleUpdated(ctx context.Context, e plugin.ScheduleEvent) error {
	return p.publish(ctx, e)
}

func (p *Publisher) OnOwnershipTransferred(ctx context.Context, e plugin.OwnershipEvent) error {
	return p.publish(ctx, e)
}

func (p *Publisher) OnFlowRejected(ctx context.Context, e plugin.RejectionEvent) error {
	return p.publish(ctx, e)
}

func (p *Publisher) publish(ctx context.Context, e plugin.Event) error {
	if p.skip[e.EventName()] {
		return nil
	}
	args := &redis.XAddArgs{
		Stream: p.stream,
		ID:     "*",
		Values: e.Fields(),
	}
	if p.maxLen > 0 {
		args.MaxLen = p.maxLen
		args.Approx = true
	}
	if err := p.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("redispub: xadd %s: %w", e.EventName(), err)
	}
	p.logger.Debug("event published",
		"stream", p.stream,
		"event", e.EventName(),
		"event_id", e.EventMeta().EventID.String(),
	)
	return nil
}
