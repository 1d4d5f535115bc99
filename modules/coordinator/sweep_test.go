package coordinator

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/signaling-coordinator/events"
)

func TestSweep_ChannelAgeBoundary(t *testing.T) {
	s, clk := newTestState(t)
	mustRegister(t, s, "c1", "alice")
	mustRegister(t, s, "c2", "bob")
	id := mustCreate(t, s, "c1", "Ops")

	clk.Add(s.cfg.ChannelIdleTTL)
	report, fx := s.Sweep()
	assert.Zero(t, report.ChannelsDeleted, "a channel exactly at the threshold survives")
	assert.Empty(t, deliveriesTo(fx, "c1"))
	_, found := s.MembersOf(id)
	assert.True(t, found)

	clk.Add(time.Minute)
	report, fx = s.Sweep()
	assert.Equal(t, 1, report.ChannelsDeleted)
	for _, conn := range []string{"c1", "c2"} {
		assert.Equal(t, 1, countType(fx, conn, TypeChannelDeleted), conn)
		assert.Equal(t, 1, countType(fx, conn, TypeChannelsList), conn)
		assert.Equal(t, 1, countType(fx, conn, TypeChannelStats), conn)
	}
	d, _ := firstOfType(fx, "c2", TypeChannelDeleted)
	assert.Equal(t, ChannelDeletedPayload{ChannelID: id, ChannelName: "Ops", Reason: reasonIdle}, d.Payload)

	_, found = s.MembersOf(id)
	assert.False(t, found)
	assert.NotContains(t, s.ChannelStatsSnapshot(), id)

	require.Len(t, fx.Events, 2)
	assert.IsType(t, events.ChannelDeletedEvent{}, fx.Events[0])
	assert.IsType(t, events.SweepCompletedEvent{}, fx.Events[1])

	report, fx = s.Sweep()
	assert.Zero(t, report.ChannelsDeleted)
	assert.Zero(t, countType(fx, "c1", TypeChannelDeleted), "deletion is broadcast exactly once")
}

func TestSweep_ChannelsKept(t *testing.T) {
	s, clk := newTestState(t)
	mustRegister(t, s, "c1", "alice")

	keep := false
	pinned, _, err := s.CreateChannel("c1", CreateChannelRequest{Name: "pinned", AutoDelete: &keep})
	require.NoError(t, err)
	occupied := mustCreate(t, s, "c1", "occupied")
	mustJoin(t, s, "c1", occupied)

	clk.Add(48 * time.Hour)
	report, _ := s.Sweep()

	assert.Zero(t, report.ChannelsDeleted)
	for _, id := range []string{pinned.ID, occupied, "general", "emergency", "recon", "logistics"} {
		_, found := s.MembersOf(id)
		assert.True(t, found, id)
	}
}

func TestSweep_MultipleDeletionsOneListBroadcast(t *testing.T) {
	s, clk := newTestState(t)
	mustRegister(t, s, "c1", "alice")
	mustCreate(t, s, "c1", "one")
	mustCreate(t, s, "c1", "two")

	clk.Add(2 * time.Hour)
	report, fx := s.Sweep()

	assert.Equal(t, 2, report.ChannelsDeleted)
	assert.Equal(t, 2, countType(fx, "c1", TypeChannelDeleted))
	assert.Equal(t, 1, countType(fx, "c1", TypeChannelsList))
	assert.Equal(t, 1, countType(fx, "c1", TypeChannelStats))
}

func TestSweep_MessageRetention(t *testing.T) {
	s, clk := newTestState(t)
	mustRegister(t, s, "c1", "alice")
	_, _, err := s.SendPrivate("c1", PrivateMessageRequest{To: "bob", Text: "old"})
	require.NoError(t, err)
	clk.Add(time.Hour)
	_, _, err = s.SendPrivate("c1", PrivateMessageRequest{To: "carol", Text: "newer"})
	require.NoError(t, err)

	clk.Add(s.cfg.MessageRetention - time.Hour - time.Second)
	report, _ := s.Sweep()
	assert.Zero(t, report.MessagesPruned)

	clk.Add(time.Second)
	report, _ = s.Sweep()
	assert.Equal(t, 1, report.MessagesPruned)
	assert.Equal(t, 1, report.ConversationsDeleted)
	assert.Empty(t, s.History("alice", "bob", 0))
	assert.Len(t, s.History("alice", "carol", 0), 1)
}

func TestSweep_PrunesWithinConversation(t *testing.T) {
	s, clk := newTestState(t)
	mustRegister(t, s, "c1", "alice")
	_, _, err := s.SendPrivate("c1", PrivateMessageRequest{To: "bob", Text: "old"})
	require.NoError(t, err)
	clk.Add(12 * time.Hour)
	_, _, err = s.SendPrivate("c1", PrivateMessageRequest{To: "bob", Text: "new"})
	require.NoError(t, err)

	clk.Add(12 * time.Hour)
	report, _ := s.Sweep()

	assert.Equal(t, 1, report.MessagesPruned)
	assert.Zero(t, report.ConversationsDeleted)
	history := s.History("alice", "bob", 0)
	require.Len(t, history, 1)
	assert.Equal(t, "new", history[0].Text)
}

func TestSweep_ExpiresSessions(t *testing.T) {
	s, clk := newTestState(t)
	mustRegister(t, s, "c1", "alice")
	mustRegister(t, s, "c2", "bob")
	mustJoin(t, s, "c1", "general")
	mustJoin(t, s, "c2", "general")
	s.Relay("c1", SignalOffer, SignalRequest{Payload: json.RawMessage(`{}`)})

	clk.Add(s.cfg.NegotiationTTL - time.Second)
	report, _ := s.Sweep()
	assert.Zero(t, report.SessionsExpired)

	clk.Add(time.Second)
	report, _ = s.Sweep()
	assert.Equal(t, 1, report.SessionsExpired)
	assert.Zero(t, s.sessions.len())
}

func TestSweep_ClearsOrphanTyping(t *testing.T) {
	s, _ := newTestState(t)
	mustRegister(t, s, "c1", "alice")
	mustRegister(t, s, "c2", "bob")
	s.SetTyping("c1", "ghost", true)
	s.SetTyping("c2", "alice", true)

	report, _ := s.Sweep()

	assert.Equal(t, 1, report.TypingCleared)
	assert.NotContains(t, s.messages.typing, "alice")
	assert.Contains(t, s.messages.typing, "bob")
}

func TestSweep_RepairsDanglingMember(t *testing.T) {
	s, clk := newTestState(t)
	mustRegister(t, s, "c1", "alice")
	id := mustCreate(t, s, "c1", "Ops")

	rec, _ := s.channels.get(id)
	rec.members = map[string]struct{}{"ghost": {}}
	s.channels.memberOf["ghost"] = id

	clk.Add(2 * time.Hour)
	report, _ := s.Sweep()
	assert.Equal(t, 1, report.ItemErrors)
	assert.Zero(t, report.ChannelsDeleted, "a repaired channel waits for the next sweep")
	assert.NotContains(t, s.channels.memberOf, "ghost")

	report, _ = s.Sweep()
	assert.Zero(t, report.ItemErrors)
	assert.Equal(t, 1, report.ChannelsDeleted)
}

func TestSweepReport_Empty(t *testing.T) {
	assert.True(t, SweepReport{StartedAt: testEpoch}.Empty())
	assert.False(t, SweepReport{MessagesPruned: 1}.Empty())
	assert.False(t, SweepReport{ItemErrors: 1}.Empty())
}
