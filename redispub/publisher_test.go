package redispub_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/streampass/id"
	"github.com/xraph/streampass/pass"
	"github.com/xraph/streampass/plugin"
	"github.com/xraph/streampass/redispub"
)

type fakeStreamer struct {
	calls []*redis.XAddArgs
	err   error
}

func (f *fakeStreamer) XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd {
	f.calls = append(f.calls, a)
	return redis.NewStringResult("1700000000000-0", f.err)
}

var alice = pass.MustParseAddress("0x00000000000000000000000000000000000000a1")

func TestPublishesFlattenedEvent(t *testing.T) {
	fake := &fakeStreamer{}
	p := redispub.New(fake, redispub.WithStream("passes"), redispub.WithMaxLen(1000))

	now := time.Unix(1700000000, 0).UTC()
	meta := plugin.NewMeta(id.NewReceiptID(), now)
	err := p.OnTTVAccrued(context.Background(), plugin.AccrualEvent{
		Meta:       meta,
		PassID:     4,
		Subscriber: alice,
		Delta:      uint256.NewInt(110000000),
		Total:      uint256.NewInt(220000000),
	})
	require.NoError(t, err)

	require.Len(t, fake.calls, 1)
	args := fake.calls[0]
	assert.Equal(t, "passes", args.Stream)
	assert.Equal(t, "*", args.ID)
	assert.Equal(t, int64(1000), args.MaxLen)
	assert.True(t, args.Approx)

	values, ok := args.Values.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, plugin.EventTTVAccrued, values["event"])
	assert.Equal(t, meta.EventID.String(), values["event_id"])
	assert.Equal(t, "110000000", values["delta"])
	assert.Equal(t, "220000000", values["total"])
	assert.Equal(t, uint64(4), values["pass_id"])
}

func TestDefaultsToStreamWithoutTrim(t *testing.T) {
	fake := &fakeStreamer{}
	p := redispub.New(fake)
	require.NoError(t, p.OnPassMinted(context.Background(), plugin.PassEvent{Name: plugin.EventPassMinted}))

	require.Len(t, fake.calls, 1)
	assert.Equal(t, redispub.DefaultStream, fake.calls[0].Stream)
	assert.Zero(t, fake.calls[0].MaxLen)
	assert.False(t, fake.calls[0].Approx)
}

func TestSkipsFilteredEvents(t *testing.T) {
	fake := &fakeStreamer{}
	p := redispub.New(fake, redispub.WithoutEvents(plugin.EventTTVAccrued))

	ctx := context.Background()
	require.NoError(t, p.OnTTVAccrued(ctx, plugin.AccrualEvent{Delta: uint256.NewInt(1), Total: uint256.NewInt(1)}))
	require.NoError(t, p.OnOwnershipTransferred(ctx, plugin.OwnershipEvent{Previous: alice}))

	require.Len(t, fake.calls, 1)
	values := fake.calls[0].Values.(map[string]any)
	assert.Equal(t, plugin.EventOwnershipTransferred, values["event"])
}

func TestXAddErrorIsReturned(t *testing.T) {
	fake := &fakeStreamer{err: errors.New("READONLY")}
	p := redispub.New(fake)

	err := p.OnFlowRejected(context.Background(), plugin.RejectionEvent{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "READONLY")
	assert.Contains(t, err.Error(), plugin.EventFlowRejected)
}

func TestDialRejectsBadURL(t *testing.T) {
	_, err := redispub.Dial("not a url")
	require.Error(t, err)
}

func TestShutdownWithoutDialIsNoop(t *testing.T) {
	p := redispub.New(&fakeStreamer{})
	assert.NoError(t, p.OnShutdown(context.Background()))
	assert.Equal(t, "redis-publisher", p.Name())
}
