package audithook_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	audithook "github.com/xraph/streampass/audit_hook"
	"github.com/xraph/streampass/flow"
	"github.com/xraph/streampass/id"
	"github.com/xraph/streampass/pass"
	"github.com/xraph/streampass/plugin"
	"github.com/xraph/streampass/tier"
)

var (
	alice = pass.MustParseAddress("0x00000000000000000000000000000000000000a1")
	bob   = pass.MustParseAddress("0x00000000000000000000000000000000000000b0")
	now   = time.Unix(1700000000, 0).UTC()
)

func capture() (*[]*audithook.AuditEvent, audithook.RecorderFunc) {
	var got []*audithook.AuditEvent
	return &got, func(_ context.Context, ev *audithook.AuditEvent) error {
		got = append(got, ev)
		return nil
	}
}

func TestPassEventsAreRecorded(t *testing.T) {
	got, rec := capture()
	ext := audithook.New(rec)
	ctx := context.Background()
	p := pass.New(7, alice, uint256.NewInt(110000000), now)
	meta := plugin.NewMeta(id.NewReceiptID(), now)

	require.NoError(t, ext.OnPassMinted(ctx, plugin.PassEvent{Meta: meta, Pass: p, Subscriber: alice, Reason: plugin.ReasonCreated}))
	require.NoError(t, ext.OnPassTransferred(ctx, plugin.TransferEvent{Meta: meta, PassID: 7, From: alice, To: bob, WasActive: true}))

	require.Len(t, *got, 2)
	minted := (*got)[0]
	assert.Equal(t, audithook.ActionPassMinted, minted.Action)
	assert.Equal(t, audithook.ResourcePass, minted.Resource)
	assert.Equal(t, "7", minted.ResourceID)
	assert.Equal(t, audithook.OutcomeSuccess, minted.Outcome)
	assert.Equal(t, "110000000", minted.Metadata["flow_rate"])
	assert.Equal(t, plugin.ReasonCreated, minted.Metadata["reason"])
	assert.Equal(t, meta.ReceiptID.String(), minted.Metadata["receipt_id"])

	transfer := (*got)[1]
	assert.Equal(t, audithook.ActionPassTransferred, transfer.Action)
	assert.Equal(t, bob.String(), transfer.Metadata["to"])
	assert.Equal(t, true, transfer.Metadata["was_active"])
}

func TestOwnerEventsAreGovernance(t *testing.T) {
	got, rec := capture()
	ext := audithook.New(rec)
	ctx := context.Background()

	require.NoError(t, ext.OnScheduleUpdated(ctx, plugin.ScheduleEvent{
		Caller:   alice,
		Previous: tier.MustParseSchedule([]string{"0", "1"}, 18),
		Current:  tier.MustParseSchedule([]string{"0", "2"}, 18),
	}))
	require.NoError(t, ext.OnOwnershipTransferred(ctx, plugin.OwnershipEvent{Previous: alice, Current: bob}))

	require.Len(t, *got, 2)
	assert.Equal(t, audithook.CategoryGovernance, (*got)[0].Category)
	assert.Equal(t, "[0 2000000000000000000]", (*got)[0].Metadata["current"])
	assert.Equal(t, audithook.SeverityCritical, (*got)[1].Severity)
	assert.Equal(t, bob.String(), (*got)[1].ResourceID)
}

func TestFlowRejectedCarriesReason(t *testing.T) {
	got, rec := capture()
	ext := audithook.New(rec)

	require.NoError(t, ext.OnFlowRejected(context.Background(), plugin.RejectionEvent{
		Kind:   flow.KindUpdated,
		Sender: alice,
		Err:    errors.New("No stream active"),
	}))

	require.Len(t, *got, 1)
	assert.Equal(t, audithook.OutcomeFailure, (*got)[0].Outcome)
	assert.Equal(t, "No stream active", (*got)[0].Reason)
	assert.Equal(t, "updated", (*got)[0].Metadata["kind"])
}

func TestEnabledActionsFilter(t *testing.T) {
	got, rec := capture()
	ext := audithook.New(rec, audithook.WithEnabledActions(audithook.ActionPassMinted))
	ctx := context.Background()

	require.NoError(t, ext.OnPassMinted(ctx, plugin.PassEvent{}))
	require.NoError(t, ext.OnPassActivated(ctx, plugin.PassEvent{}))

	require.Len(t, *got, 1)
	assert.Equal(t, audithook.ActionPassMinted, (*got)[0].Action)
}

func TestWithoutAccruals(t *testing.T) {
	got, rec := capture()
	ext := audithook.New(rec, audithook.WithoutAccruals())
	ctx := context.Background()

	require.NoError(t, ext.OnTTVAccrued(ctx, plugin.AccrualEvent{Delta: uint256.NewInt(1), Total: uint256.NewInt(1)}))
	require.NoError(t, ext.OnPassDeactivated(ctx, plugin.PassEvent{}))

	require.Len(t, *got, 1)
	assert.Equal(t, audithook.ActionPassDeactivated, (*got)[0].Action)
}

func TestRecorderFailureIsSwallowed(t *testing.T) {
	ext := audithook.New(audithook.RecorderFunc(func(context.Context, *audithook.AuditEvent) error {
		return errors.New("backend down")
	}))
	assert.NoError(t, ext.OnPassMinted(context.Background(), plugin.PassEvent{}))
}
