package coordinator

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/signaling-coordinator/events"
)

func newTestModule(t *testing.T) (*Module, *recordingDispatcher) {
	t.Helper()
	d := &recordingDispatcher{}
	m, err := NewModuleWithClock(DefaultConfig(), clock.NewMock(), d, newMockLogger())
	require.NoError(t, err)
	return m, d
}

func TestNewModule(t *testing.T) {
	m, err := NewModule(Config{}, nil, newMockLogger())
	require.NoError(t, err)

	assert.Equal(t, "coordinator", m.Name())
	assert.NotNil(t, m.Engine())
	assert.Equal(t, DefaultConfig().DefaultChannels, m.cfg.DefaultChannels)
	assert.Len(t, m.EmitEvents(), 5)
}

func TestModule_StartStop(t *testing.T) {
	m, d := newTestModule(t)
	ctx := context.Background()

	require.NoError(t, m.Start(ctx))
	assert.Error(t, m.Start(ctx), "second start fails")

	m.Engine().Register("c1", RegisterRequest{Identity: "alice"})
	_, err := m.Engine().Stats(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, deliveriesTo(d.snapshot(), "c1"))

	health := m.Health(ctx)
	assert.True(t, health.Healthy)
	assert.Equal(t, 1, health.Details["participants"])

	stopCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	require.NoError(t, m.Stop(stopCtx))
	require.NoError(t, m.Stop(stopCtx), "second stop is a no-op")

	assert.False(t, m.Health(ctx).Healthy)
}

func TestModule_PublishWithoutEventBus(t *testing.T) {
	m, _ := newTestModule(t)

	assert.NoError(t, m.publishEvent(events.ParticipantJoinedEvent{Identity: "alice"}))
	assert.NoError(t, m.publishEvent("unknown"), "events are skipped while no bus is set")
}

func TestModule_PublishQueueFull(t *testing.T) {
	m, _ := newTestModule(t)

	// Not started: nothing drains the queue.
	for i := 0; i < publishQueueSize+10; i++ {
		m.Publish(events.SweepCompletedEvent{})
	}
	assert.Len(t, m.publishCh, publishQueueSize)
}

func TestModule_Services(t *testing.T) {
	m, _ := newTestModule(t)
	ctx := context.Background()
	require.NoError(t, m.Start(ctx))
	t.Cleanup(func() { _ = m.Stop(context.Background()) })

	m.Engine().Register("c1", RegisterRequest{Identity: "alice"})
	m.Engine().JoinChannel("c1", JoinChannelRequest{ChannelID: "recon"})
	m.Engine().SendPrivate("c1", PrivateMessageRequest{To: "bob", Text: "hi"})

	participants, err := m.listParticipants(ctx, ListParticipantsRequest{}, nil)
	require.NoError(t, err)
	require.Len(t, participants.Participants, 1)
	assert.Equal(t, "recon", *participants.Participants[0].CurrentChannel)

	channels, err := m.listChannels(ctx, ListChannelsRequest{}, nil)
	require.NoError(t, err)
	assert.Len(t, channels.Channels, 4)
	assert.Equal(t, 1, channels.Stats["recon"])

	members, err := m.channelMembers(ctx, ChannelMembersRequest{ChannelID: "recon"}, nil)
	require.NoError(t, err)
	assert.True(t, members.Found)
	assert.Equal(t, []string{"alice"}, members.Members)

	missing, err := m.channelMembers(ctx, ChannelMembersRequest{ChannelID: "nope"}, nil)
	require.NoError(t, err)
	assert.False(t, missing.Found)

	st, err := m.stats(ctx, StatsRequest{}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Participants)
	assert.Equal(t, 1, st.PrivateMessages)

	history, err := m.privateHistory(ctx, PrivateHistoryRequest{A: "bob", B: "alice"}, nil)
	require.NoError(t, err)
	assert.Len(t, history.Messages, 1)

	_, err = m.privateHistory(ctx, PrivateHistoryRequest{A: "bob"}, nil)
	assert.ErrorIs(t, err, ErrRecipientEmpty)
}

func TestNewCoordinatorAdapter_NilContainer(t *testing.T) {
	assert.Panics(t, func() {
		NewCoordinatorAdapter(nil)
	})
}
