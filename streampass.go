package streampass

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/xraph/streampass/flow"
	"github.com/xraph/streampass/id"
	"github.com/xraph/streampass/pass"
	"github.com/xraph/streampass/plugin"
	"github.com/xraph/streampass/store"
	"github.com/xraph/streampass/tier"
)

// Defaults applied by New when Config leaves them empty.
const (
	DefaultName   = "StreamPass"
	DefaultSymbol = "PASS"
)

// TracerName is the instrumentation scope of engine spans.
const TracerName = "github.com/xraph/streampass"

// Config identifies the engine on the streaming protocol and seeds the
// owner configuration on first start.
type Config struct {
	// Address is the engine's own receiving address.
	Address pass.Address
	// Host is the protocol host allowed to deliver notifications.
	Host pass.Address
	// Token is the only streamed token accepted.
	Token pass.Address

	Name   string
	Symbol string

	// Owner and Schedule are written on first Start only. Later starts
	// keep whatever the store holds.
	Owner    pass.Address
	Schedule tier.Schedule
}

// Validate checks that every required field is set.
func (c Config) Validate() error {
	switch {
	case c.Address.IsZero():
		return invalid("address", "engine address is required")
	case c.Host.IsZero():
		return invalid("host", "protocol host is required")
	case c.Token.IsZero():
		return invalid("token", "accepted token is required")
	case c.Owner.IsZero():
		return invalid("owner", "owner is required")
	}
	if err := c.Schedule.Validate(); err != nil {
		return invalid("schedule", "%v", err)
	}
	return nil
}

// Engine is the streaming-payment pass engine. It receives stream lifecycle
// notifications, keeps passes and accrued value in a store, and answers
// tier queries.
type Engine struct {
	store    store.Store
	protocol flow.Protocol
	cfg      Config
	plugins  *plugin.Registry
	logger   *slog.Logger
	tracer   trace.Tracer
	clock    func() time.Time

	skipMigrate bool

	// mu serializes every mutating entry point.
	mu sync.Mutex
}

// Compile-time interface check.
var _ flow.Receiver = (*Engine)(nil)

// New creates an Engine. Call Start before serving notifications.
func New(s store.Store, protocol flow.Protocol, cfg Config, opts ...Option) (*Engine, error) {
	if s == nil {
		return nil, invalid("store", "store is required")
	}
	if protocol == nil {
		return nil, invalid("protocol", "protocol is required")
	}
	if cfg.Name == "" {
		cfg.Name = DefaultName
	}
	if cfg.Symbol == "" {
		cfg.Symbol = DefaultSymbol
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.Schedule = cfg.Schedule.Clone()

	e := &Engine{
		store:    s,
		protocol: protocol,
		cfg:      cfg,
		plugins:  plugin.NewRegistry(),
		logger:   slog.Default(),
		tracer:   otel.Tracer(TracerName),
		clock:    time.Now,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e, nil
}

// Option configures an Engine instance.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
		e.plugins.WithLogger(logger)
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Engine) {
		_ = e.plugins.Register(p) //nolint:errcheck // best-effort plugin registration during init
	}
}

// WithPluginTimeout bounds each plugin hook call.
func WithPluginTimeout(d time.Duration) Option {
	return func(e *Engine) { e.plugins.WithTimeout(d) }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.clock = now }
}

// WithTracer replaces the global tracer.
func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) { e.tracer = t }
}

// WithoutMigrate skips store migrations on Start.
func WithoutMigrate() Option {
	return func(e *Engine) { e.skipMigrate = true }
}

// Config returns the engine configuration.
func (e *Engine) Config() Config { return e.cfg }

// Plugins returns the plugin registry.
func (e *Engine) Plugins() *plugin.Registry { return e.plugins }

// Store returns the backing store.
func (e *Engine) Store() store.Store { return e.store }

// Start migrates the store, seeds the owner configuration when the store
// has none, and initializes plugins.
func (e *Engine) Start(ctx context.Context) error {
	if !e.skipMigrate {
		if err := e.store.Migrate(ctx); err != nil {
			return err
		}
	}

	var seeded bool
	err := e.atomic(ctx, "start", func(ctx context.Context, ts *txState) error {
		sched, err := e.seedSchedule(ctx, ts.tx)
		if err != nil {
			return err
		}
		owner, err := e.seedOwner(ctx, ts.tx)
		if err != nil {
			return err
		}
		seeded = sched || owner
		return nil
	})
	if err != nil {
		return fmt.Errorf("streampass: start: %w", err)
	}

	e.plugins.EmitInit(ctx, e)

	e.logger.Info("streampass started",
		"name", e.cfg.Name,
		"address", e.cfg.Address,
		"token", e.cfg.Token,
		"seeded", seeded,
		"plugins", e.plugins.Count(),
	)

	return nil
}

func (e *Engine) seedSchedule(ctx context.Context, tx store.Tx) (bool, error) {
	_, err := tx.GetSchedule(ctx)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, ErrNotConfigured) {
		return false, err
	}
	return true, tx.SetSchedule(ctx, e.cfg.Schedule)
}

func (e *Engine) seedOwner(ctx context.Context, tx store.Tx) (bool, error) {
	_, err := tx.GetOwner(ctx)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, ErrNotConfigured) {
		return false, err
	}
	return true, tx.SetOwner(ctx, e.cfg.Owner)
}

// Stop shuts down plugins and closes the store.
func (e *Engine) Stop(ctx context.Context) error {
	e.plugins.EmitShutdown(ctx)
	return e.store.Close()
}

// ──────────────────────────────────────────────────
// Transactions
// ──────────────────────────────────────────────────

type txKey struct{}

// txState is carried on the context for the lifetime of one engine
// transaction. Protocol callbacks made from inside it join it.
type txState struct {
	tx      store.Tx
	receipt id.ReceiptID
	now     time.Time
	done    bool
	emits   []func(ctx context.Context)
}

func (ts *txState) meta() plugin.Meta { return plugin.NewMeta(ts.receipt, ts.now) }

// after queues fn to run once the transaction has committed.
func (ts *txState) after(fn func(ctx context.Context)) {
	ts.emits = append(ts.emits, fn)
}

func joined(ctx context.Context) (*txState, bool) {
	ts, ok := ctx.Value(txKey{}).(*txState)
	if !ok || ts.done {
		return nil, false
	}
	return ts, true
}

func (e *Engine) now() time.Time { return e.clock().UTC().Truncate(time.Second) }

// atomic runs fn in one serialized store transaction. A call made while a
// transaction is already open on ctx runs inside it.
func (e *Engine) atomic(ctx context.Context, op string, fn func(ctx context.Context, ts *txState) error) error {
	if ts, ok := joined(ctx); ok {
		return fn(ctx, ts)
	}

	ctx, span := e.tracer.Start(ctx, "streampass."+op, trace.WithSpanKind(trace.SpanKindInternal))
	defer span.End()

	ts := &txState{receipt: id.NewReceiptID()}
	span.SetAttributes(attribute.String("streampass.receipt_id", ts.receipt.String()))

	// The lock covers the transaction only; plugins run after it is released.
	err := func() error {
		e.mu.Lock()
		defer e.mu.Unlock()

		ts.now = e.now()
		return e.store.Atomic(ctx, func(ctx context.Context, tx store.Tx) error {
			// A store may retry fn; only the committed attempt's events go out.
			ts.tx = tx
			ts.emits = nil
			return fn(context.WithValue(ctx, txKey{}, ts), ts)
		})
	}()
	ts.done = true
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	ctx = plugin.ContextWithReceipt(ctx, ts.receipt)
	for _, emit := range ts.emits {
		emit(ctx)
	}
	return nil
}

// view runs fn against a read snapshot, or inside the open transaction.
func (e *Engine) view(ctx context.Context, fn func(ctx context.Context, tx store.Tx, now time.Time) error) error {
	if ts, ok := joined(ctx); ok {
		return fn(ctx, ts.tx, ts.now)
	}
	now := e.now()
	return e.store.View(ctx, func(ctx context.Context, tx store.Tx) error {
		return fn(ctx, tx, now)
	})
}

func annotate(ctx context.Context, kv ...attribute.KeyValue) {
	trace.SpanFromContext(ctx).SetAttributes(kv...)
}
