// Package observability provides a metrics extension for streampass that
// records lifecycle event counts through an OpenTelemetry Meter.
package observability

import (
	"context"
	"errors"
	"math/big"

	"github.com/holiman/uint256"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/xraph/streampass/plugin"
	"github.com/xraph/streampass/types"
)

// ScopeName is the instrumentation scope used by Default.
const ScopeName = "github.com/xraph/streampass"

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin                 = (*MetricsExtension)(nil)
	_ plugin.OnPassMinted           = (*MetricsExtension)(nil)
	_ plugin.OnPassActivated        = (*MetricsExtension)(nil)
	_ plugin.OnPassDeactivated      = (*MetricsExtension)(nil)
	_ plugin.OnPassTransferred      = (*MetricsExtension)(nil)
	_ plugin.OnTTVAccrued           = (*MetricsExtension)(nil)
	_ plugin.OnScheduleUpdated      = (*MetricsExtension)(nil)
	_ plugin.OnOwnershipTransferred = (*MetricsExtension)(nil)
	_ plugin.OnFlowRejected         = (*MetricsExtension)(nil)
)

// MetricsExtension records system-wide lifecycle metrics.
// Register it as a streampass plugin to track pass activity.
type MetricsExtension struct {
	// Pass metrics
	PassMinted      metric.Int64Counter
	PassActivated   metric.Int64Counter
	PassDeactivated metric.Int64Counter
	PassTransferred metric.Int64Counter
	PassesActive    metric.Int64UpDownCounter

	// Value metrics
	TTVAccrued   metric.Float64Counter
	AccrualDelta metric.Float64Histogram

	// Owner metrics
	ScheduleUpdated      metric.Int64Counter
	OwnershipTransferred metric.Int64Counter

	// Error metrics
	FlowRejected metric.Int64Counter
}

// NewMetricsExtension creates every instrument on meter.
func NewMetricsExtension(meter metric.Meter) (*MetricsExtension, error) {
	m := &MetricsExtension{}
	var errs []error
	counter := func(name, desc string) metric.Int64Counter {
		c, err := meter.Int64Counter(name, metric.WithDescription(desc), metric.WithUnit("{event}"))
		errs = append(errs, err)
		return c
	}

	m.PassMinted = counter("streampass.pass.minted", "Passes issued on first subscription")
	m.PassActivated = counter("streampass.pass.activated", "Passes that became their owner's active pass")
	m.PassDeactivated = counter("streampass.pass.deactivated", "Passes that stopped accruing")
	m.PassTransferred = counter("streampass.pass.transferred", "Pass ownership changes")
	m.ScheduleUpdated = counter("streampass.schedule.updated", "Tier schedule replacements")
	m.OwnershipTransferred = counter("streampass.ownership.transferred", "Engine owner changes")
	m.FlowRejected = counter("streampass.flow.rejected", "Refused lifecycle notifications")

	var err error
	m.PassesActive, err = meter.Int64UpDownCounter("streampass.pass.active",
		metric.WithDescription("Passes currently accruing"),
		metric.WithUnit("{pass}"),
	)
	errs = append(errs, err)

	m.TTVAccrued, err = meter.Float64Counter("streampass.ttv.accrued",
		metric.WithDescription("Streamed value folded into passes, in whole tokens"),
		metric.WithUnit("{token}"),
	)
	errs = append(errs, err)

	m.AccrualDelta, err = meter.Float64Histogram("streampass.ttv.accrual",
		metric.WithDescription("Value folded into a pass per accrual, in whole tokens"),
		metric.WithUnit("{token}"),
	)
	errs = append(errs, err)

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return m, nil
}

// Default builds the extension on the global MeterProvider.
func Default() (*MetricsExtension, error) {
	return NewMetricsExtension(otel.Meter(ScopeName))
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// ──────────────────────────────────────────────────
// Pass lifecycle hooks
// ──────────────────────────────────────────────────

// OnPassMinted implements plugin.OnPassMinted.
func (m *MetricsExtension) OnPassMinted(ctx context.Context, _ plugin.PassEvent) error {
	m.PassMinted.Add(ctx, 1)
	return nil
}

// OnPassActivated implements plugin.OnPassActivated.
func (m *MetricsExtension) OnPassActivated(ctx context.Context, e plugin.PassEvent) error {
	attrs := metric.WithAttributes(attribute.String("reason", e.Reason))
	m.PassActivated.Add(ctx, 1, attrs)
	m.PassesActive.Add(ctx, 1)
	return nil
}

// OnPassDeactivated implements plugin.OnPassDeactivated.
func (m *MetricsExtension) OnPassDeactivated(ctx context.Context, e plugin.PassEvent) error {
	attrs := metric.WithAttributes(attribute.String("reason", e.Reason))
	m.PassDeactivated.Add(ctx, 1, attrs)
	m.PassesActive.Add(ctx, -1)
	return nil
}

// OnPassTransferred implements plugin.OnPassTransferred.
func (m *MetricsExtension) OnPassTransferred(ctx context.Context, e plugin.TransferEvent) error {
	m.PassTransferred.Add(ctx, 1, metric.WithAttributes(attribute.Bool("was_active", e.WasActive)))
	return nil
}

// ──────────────────────────────────────────────────
// Value hooks
// ──────────────────────────────────────────────────

// OnTTVAccrued implements plugin.OnTTVAccrued.
func (m *MetricsExtension) OnTTVAccrued(ctx context.Context, e plugin.AccrualEvent) error {
	v := tokens(e.Delta)
	m.TTVAccrued.Add(ctx, v)
	m.AccrualDelta.Record(ctx, v)
	return nil
}

// ──────────────────────────────────────────────────
// Owner and protocol hooks
// ──────────────────────────────────────────────────

// OnScheduleUpdated implements plugin.OnScheduleUpdated.
func (m *MetricsExtension) OnScheduleUpdated(ctx context.Context, _ plugin.ScheduleEvent) error {
	m.ScheduleUpdated.Add(ctx, 1)
	return nil
}

// OnOwnershipTransferred implements plugin.OnOwnershipTransferred.
func (m *MetricsExtension) OnOwnershipTransferred(ctx context.Context, _ plugin.OwnershipEvent) error {
	m.OwnershipTransferred.Add(ctx, 1)
	return nil
}

// OnFlowRejected implements plugin.OnFlowRejected.
func (m *MetricsExtension) OnFlowRejected(ctx context.Context, e plugin.RejectionEvent) error {
	m.FlowRejected.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", string(e.Kind))))
	return nil
}

var tokenScale = new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(types.TokenDecimals), nil))

// tokens converts base units to whole tokens.
func tokens(v *uint256.Int) float64 {
	if v == nil {
		return 0
	}
	f, _ := new(big.Float).Quo(new(big.Float).SetInt(v.ToBig()), tokenScale).Float64()
	return f
}
