package streampass_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/xraph/streampass"
	"github.com/xraph/streampass/flow/sim"
	"github.com/xraph/streampass/pass"
	"github.com/xraph/streampass/plugin"
	"github.com/xraph/streampass/store"
	"github.com/xraph/streampass/store/memory"
	"github.com/xraph/streampass/tier"
)

var (
	hostAddr  = pass.MustParseAddress("0xeb796bdb90ffa0f28255275e16936d25d3418603")
	tokenAddr = pass.MustParseAddress("0x5d8b4c2554aeb7e86f387b4d6c00ac33499ed01f")
	appAddr   = pass.MustParseAddress("0x00000000000000000000000000000000000000aa")
	deployer  = pass.MustParseAddress("0x00000000000000000000000000000000000000d0")
	user1     = pass.MustParseAddress("0x00000000000000000000000000000000000000a1")
	user2     = pass.MustParseAddress("0x00000000000000000000000000000000000000a2")

	epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
)

// testSchedule is [0, 1e18, 2e18, 3e18].
func testSchedule() tier.Schedule {
	return tier.MustParseSchedule([]string{"0", "1", "2", "3"}, 18)
}

func rate(v uint64) *uint256.Int { return uint256.NewInt(v) }

// baseRate is 110000000 base units per second.
var baseRate = rate(110000000)

type harness struct {
	t      *testing.T
	ctx    context.Context
	engine *streampass.Engine
	host   *sim.Host
	clock  *sim.Clock
	events *eventLog
}

func newHarness(t *testing.T, opts ...streampass.Option) *harness {
	t.Helper()
	return newHarnessOn(t, memory.New(), opts...)
}

// newHarnessOn wires an engine over s to a fresh simulated host.
func newHarnessOn(t *testing.T, s store.Store, opts ...streampass.Option) *harness {
	t.Helper()
	ctx := context.Background()

	host := sim.New(hostAddr)
	clock := sim.NewClock(epoch)
	events := &eventLog{}

	opts = append([]streampass.Option{
		streampass.WithClock(clock.Now),
		streampass.WithPlugin(events),
	}, opts...)

	engine, err := streampass.New(s, host, streampass.Config{
		Address:  appAddr,
		Host:     hostAddr,
		Token:    tokenAddr,
		Name:     "TestSub",
		Symbol:   "TESU",
		Owner:    deployer,
		Schedule: testSchedule(),
	}, opts...)
	require.NoError(t, err)
	host.Register(appAddr, engine)
	require.NoError(t, engine.Start(ctx))
	t.Cleanup(func() { _ = engine.Stop(ctx) })

	return &harness{t: t, ctx: ctx, engine: engine, host: host, clock: clock, events: events}
}

func (h *harness) create(sender pass.Address, r *uint256.Int) error {
	return h.host.CreateFlow(h.ctx, tokenAddr, sender, appAddr, r, nil)
}

func (h *harness) mustCreate(sender pass.Address) {
	h.t.Helper()
	require.NoError(h.t, h.create(sender, baseRate))
}

func (h *harness) update(sender pass.Address, r *uint256.Int) error {
	return h.host.UpdateFlow(h.ctx, tokenAddr, sender, appAddr, r, nil)
}

func (h *harness) delete(sender pass.Address) error {
	return h.host.DeleteFlow(h.ctx, tokenAddr, sender, appAddr)
}

func (h *harness) advance(seconds int64) {
	h.clock.Advance(time.Duration(seconds) * time.Second)
}

func (h *harness) flowRate(sender pass.Address) *uint256.Int {
	h.t.Helper()
	f, err := h.host.GetFlow(h.ctx, tokenAddr, sender, appAddr)
	require.NoError(h.t, err)
	return f.FlowRate
}

func (h *harness) activePass(subscriber pass.Address) pass.ID {
	h.t.Helper()
	got, err := h.engine.ActivePass(h.ctx, subscriber)
	require.NoError(h.t, err)
	return got
}

func (h *harness) ttv(passID pass.ID) *uint256.Int {
	h.t.Helper()
	got, err := h.engine.TTV(h.ctx, passID)
	require.NoError(h.t, err)
	return got
}

func (h *harness) state(passID pass.ID) bool {
	h.t.Helper()
	got, err := h.engine.PassState(h.ctx, passID)
	require.NoError(h.t, err)
	return got
}

func (h *harness) ownerOf(passID pass.ID) pass.Address {
	h.t.Helper()
	got, err := h.engine.OwnerOf(h.ctx, passID)
	require.NoError(h.t, err)
	return got
}

func (h *harness) tier(subscriber pass.Address) int {
	h.t.Helper()
	got, err := h.engine.ActiveTier(h.ctx, subscriber)
	require.NoError(h.t, err)
	return got
}

// eventLog records every plugin event name in emission order.
type eventLog struct {
	mu     sync.Mutex
	names  []string
	events []plugin.Event
}

func (l *eventLog) Name() string { return "event-log" }

func (l *eventLog) add(e plugin.Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.names = append(l.names, e.EventName())
	l.events = append(l.events, e)
	return nil
}

func (l *eventLog) OnPassMinted(_ context.Context, e plugin.PassEvent) error      { return l.add(e) }
func (l *eventLog) OnPassActivated(_ context.Context, e plugin.PassEvent) error   { return l.add(e) }
func (l *eventLog) OnPassDeactivated(_ context.Context, e plugin.PassEvent) error { return l.add(e) }
func (l *eventLog) OnPassTransferred(_ context.Context, e plugin.TransferEvent) error {
	return l.add(e)
}
func (l *eventLog) OnTTVAccrued(_ context.Context, e plugin.AccrualEvent) error { return l.add(e) }
func (l *eventLog) OnScheduleUpdated(_ context.Context, e plugin.ScheduleEvent) error {
	return l.add(e)
}
func (l *eventLog) OnOwnershipTransferred(_ context.Context, e plugin.OwnershipEvent) error {
	return l.add(e)
}
func (l *eventLog) OnFlowRejected(_ context.Context, e plugin.RejectionEvent) error { return l.add(e) }

func (l *eventLog) Names() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.names...)
}

func (l *eventLog) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.names = nil
	l.events = nil
}

func (l *eventLog) Last() plugin.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.events) == 0 {
		return nil
	}
	return l.events[len(l.events)-1]
}
