package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"
)

// DefaultTimeout bounds a single hook call.
const DefaultTimeout = 5 * time.Second

// Registry manages all registered plugins and provides efficient dispatch.
// It uses type-cached discovery so emission never type-asserts.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  *slog.Logger
	timeout time.Duration

	// Type-cached plugin lists for efficient dispatch
	onInit                 []OnInit
	onShutdown             []OnShutdown
	onPassMinted           []OnPassMinted
	onPassActivated        []OnPassActivated
	onPassDeactivated      []OnPassDeactivated
	onPassTransferred      []OnPassTransferred
	onTTVAccrued           []OnTTVAccrued
	onScheduleUpdated      []OnScheduleUpdated
	onOwnershipTransferred []OnOwnershipTransferred
	onFlowRejected         []OnFlowRejected
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		logger:  slog.Default(),
		timeout: DefaultTimeout,
	}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// WithTimeout overrides DefaultTimeout.
func (r *Registry) WithTimeout(d time.Duration) *Registry {
	if d > 0 {
		r.timeout = d
	}
	return r
}

// Register adds a plugin to the registry and caches its interfaces.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin: duplicate registration: %s", p.Name())
		}
	}

	r.plugins = append(r.plugins, p)

	if v, ok := p.(OnInit); ok {
		r.onInit = append(r.onInit, v)
	}
	if v, ok := p.(OnShutdown); ok {
		r.onShutdown = append(r.onShutdown, v)
	}
	if v, ok := p.(OnPassMinted); ok {
		r.onPassMinted = append(r.onPassMinted, v)
	}
	if v, ok := p.(OnPassActivated); ok {
		r.onPassActivated = append(r.onPassActivated, v)
	}
	if v, ok := p.(OnPassDeactivated); ok {
		r.onPassDeactivated = append(r.onPassDeactivated, v)
	}
	if v, ok := p.(OnPassTransferred); ok {
		r.onPassTransferred = append(r.onPassTransferred, v)
	}
	if v, ok := p.(OnTTVAccrued); ok {
		r.onTTVAccrued = append(r.onTTVAccrued, v)
	}
	if v, ok := p.(OnScheduleUpdated); ok {
		r.onScheduleUpdated = append(r.onScheduleUpdated, v)
	}
	if v, ok := p.(OnOwnershipTransferred); ok {
		r.onOwnershipTransferred = append(r.onOwnershipTransferred, v)
	}
	if v, ok := p.(OnFlowRejected); ok {
		r.onFlowRejected = append(r.onFlowRejected, v)
	}

	r.logger.Info("plugin registered",
		"name", p.Name(),
		"interfaces", implementedInterfaces(p),
	)

	return nil
}

var hookTypes = []struct {
	name string
	typ  reflect.Type
}{
	{"OnInit", reflect.TypeOf((*OnInit)(nil)).Elem()},
	{"OnShutdown", reflect.TypeOf((*OnShutdown)(nil)).Elem()},
	{"OnPassMinted", reflect.TypeOf((*OnPassMinted)(nil)).Elem()},
	{"OnPassActivated", reflect.TypeOf((*OnPassActivated)(nil)).Elem()},
	{"OnPassDeactivated", reflect.TypeOf((*OnPassDeactivated)(nil)).Elem()},
	{"OnPassTransferred", reflect.TypeOf((*OnPassTransferred)(nil)).Elem()},
	{"OnTTVAccrued", reflect.TypeOf((*OnTTVAccrued)(nil)).Elem()},
	{"OnScheduleUpdated", reflect.TypeOf((*OnScheduleUpdated)(nil)).Elem()},
	{"OnOwnershipTransferred", reflect.TypeOf((*OnOwnershipTransferred)(nil)).Elem()},
	{"OnFlowRejected", reflect.TypeOf((*OnFlowRejected)(nil)).Elem()},
}

// implementedInterfaces returns the hook names implemented by the plugin.
func implementedInterfaces(p Plugin) []string {
	var interfaces []string
	v := reflect.TypeOf(p)
	for _, h := range hookTypes {
		if v.Implements(h.typ) {
			interfaces = append(interfaces, h.name)
		}
	}
	return interfaces
}

// Get returns a plugin by name.
func (r *Registry) Get(name string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// List returns all registered plugins.
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Plugin, len(r.plugins))
	copy(result, r.plugins)
	return result
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// ──────────────────────────────────────────────────
// Event emission methods
// ──────────────────────────────────────────────────

// EmitInit calls OnInit for all plugins that implement it.
func (r *Registry) EmitInit(ctx context.Context, engine any) {
	r.mu.RLock()
	plugins := r.onInit
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, "OnInit", p, func() error { return p.OnInit(ctx, engine) })
	}
}

// EmitShutdown calls OnShutdown for all plugins that implement it.
func (r *Registry) EmitShutdown(ctx context.Context) {
	r.mu.RLock()
	plugins := r.onShutdown
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, "OnShutdown", p, func() error { return p.OnShutdown(ctx) })
	}
}

// EmitPassMinted emits a pass minted event.
func (r *Registry) EmitPassMinted(ctx context.Context, e PassEvent) {
	r.mu.RLock()
	plugins := r.onPassMinted
	r.mu.RUnlock()

	e.Name = EventPassMinted
	for _, p := range plugins {
		r.dispatch(ctx, "OnPassMinted", p, func() error { return p.OnPassMinted(ctx, e) })
	}
}

// EmitPassActivated emits a pass activated event.
func (r *Registry) EmitPassActivated(ctx context.Context, e PassEvent) {
	r.mu.RLock()
	plugins := r.onPassActivated
	r.mu.RUnlock()

	e.Name = EventPassActivated
	for _, p := range plugins {
		r.dispatch(ctx, "OnPassActivated", p, func() error { return p.OnPassActivated(ctx, e) })
	}
}

// EmitPassDeactivated emits a pass deactivated event.
func (r *Registry) EmitPassDeactivated(ctx context.Context, e PassEvent) {
	r.mu.RLock()
	plugins := r.onPassDeactivated
	r.mu.RUnlock()

	e.Name = EventPassDeactivated
	for _, p := range plugins {
		r.dispatch(ctx, "OnPassDeactivated", p, func() error { return p.OnPassDeactivated(ctx, e) })
	}
}

// EmitPassTransferred emits a pass transferred event.
func (r *Registry) EmitPassTransferred(ctx context.Context, e TransferEvent) {
	r.mu.RLock()
	plugins := r.onPassTransferred
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, "OnPassTransferred", p, func() error { return p.OnPassTransferred(ctx, e) })
	}
}

// EmitTTVAccrued emits a TTV accrued event.
func (r *Registry) EmitTTVAccrued(ctx context.Context, e AccrualEvent) {
	r.mu.RLock()
	plugins := r.onTTVAccrued
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, "OnTTVAccrued", p, func() error { return p.OnTTVAccrued(ctx, e) })
	}
}

// EmitScheduleUpdated emits a schedule updated event.
func (r *Registry) EmitScheduleUpdated(ctx context.Context, e ScheduleEvent) {
	r.mu.RLock()
	plugins := r.onScheduleUpdated
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, "OnScheduleUpdated", p, func() error { return p.OnScheduleUpdated(ctx, e) })
	}
}

// EmitOwnershipTransferred emits an ownership transferred event.
func (r *Registry) EmitOwnershipTransferred(ctx context.Context, e OwnershipEvent) {
	r.mu.RLock()
	plugins := r.onOwnershipTransferred
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, "OnOwnershipTransferred", p, func() error { return p.OnOwnershipTransferred(ctx, e) })
	}
}

// EmitFlowRejected emits a flow rejected event.
func (r *Registry) EmitFlowRejected(ctx context.Context, e RejectionEvent) {
	r.mu.RLock()
	plugins := r.onFlowRejected
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, "OnFlowRejected", p, func() error { return p.OnFlowRejected(ctx, e) })
	}
}

func (r *Registry) dispatch(ctx context.Context, hook string, p Plugin, fn func() error) {
	if err := r.callWithTimeout(ctx, p.Name(), fn); err != nil {
		r.logger.Warn("plugin "+hook+" failed",
			"plugin", p.Name(),
			"error", err,
		)
	}
}

// callWithTimeout calls a plugin function with a timeout.
// Plugins should never block the callback pipeline.
func (r *Registry) callWithTimeout(ctx context.Context, pluginName string, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		done <- fn()
	}()

	timer := time.NewTimer(r.timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		return fmt.Errorf("plugin timeout: %s", pluginName)
	case <-ctx.Done():
		return ctx.Err()
	}
}
