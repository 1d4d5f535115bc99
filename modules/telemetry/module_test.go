package telemetry

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/go-monolith/mono/pkg/types"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/signaling-coordinator/events"
	"github.com/example/signaling-coordinator/modules/coordinator"
)

type mockLogger struct{}

func (m *mockLogger) Debug(_ string, _ ...any) {}
func (m *mockLogger) Info(_ string, _ ...any)  {}
func (m *mockLogger) Warn(_ string, _ ...any)  {}
func (m *mockLogger) Error(_ string, _ ...any) {}
func (m *mockLogger) With(_ ...any) types.Logger {
	return m
}
func (m *mockLogger) WithModule(_ string) types.Logger {
	return m
}
func (m *mockLogger) WithError(_ error) types.Logger {
	return m
}

func newMockLogger() types.Logger {
	return &mockLogger{}
}

type fakeStats struct {
	mu    sync.Mutex
	stats coordinator.Stats
	err   error
	calls int
}

func (f *fakeStats) Stats(_ context.Context) (*coordinator.Stats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	st := f.stats
	return &st, nil
}

func (f *fakeStats) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestModule_Basics(t *testing.T) {
	m := NewModule(0, newMockLogger())

	assert.Equal(t, "telemetry", m.Name())
	assert.Equal(t, []string{"coordinator"}, m.Dependencies())
	assert.Equal(t, 5*time.Minute, m.interval)
	assert.Error(t, m.Start(context.Background()), "start without stats source fails")
	assert.NoError(t, m.Stop(context.Background()))
	assert.False(t, m.Health(context.Background()).Healthy)
}

func TestModule_EventCounters(t *testing.T) {
	m := NewModule(time.Minute, newMockLogger())
	ctx := context.Background()

	require.NoError(t, m.handleParticipantJoined(ctx, events.ParticipantJoinedEvent{Identity: "alice"}, nil))
	require.NoError(t, m.handleParticipantJoined(ctx, events.ParticipantJoinedEvent{Identity: "bob"}, nil))
	require.NoError(t, m.handleParticipantLeft(ctx, events.ParticipantLeftEvent{Identity: "bob"}, nil))
	require.NoError(t, m.handleChannelCreated(ctx, events.ChannelCreatedEvent{ChannelID: "custom_1"}, nil))
	require.NoError(t, m.handleChannelDeleted(ctx, events.ChannelDeletedEvent{ChannelID: "custom_1"}, nil))
	require.NoError(t, m.handleSweepCompleted(ctx, events.SweepCompletedEvent{MessagesPruned: 7}, nil))
	require.NoError(t, m.handleSweepCompleted(ctx, events.SweepCompletedEvent{}, nil))

	metrics := m.Metrics()
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.participantsJoined))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.participantsLeft))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.channelsCreated))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.channelsDeleted))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.sweeps))
	assert.Equal(t, 7.0, testutil.ToFloat64(metrics.messagesPruned))
}

func TestModule_PeriodicRefresh(t *testing.T) {
	clk := clock.NewMock()
	m := NewModuleWithClock(time.Minute, clk, newMockLogger())
	source := &fakeStats{stats: coordinator.Stats{
		Participants:        4,
		CustomChannels:      2,
		Conversations:       3,
		NegotiationSessions: 1,
	}}
	m.stats = source

	require.NoError(t, m.Start(context.Background()))
	t.Cleanup(func() { _ = m.Stop(context.Background()) })
	assert.True(t, m.Health(context.Background()).Healthy)

	clk.Add(time.Minute)
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(m.metrics.participantsOnline) == 4
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.metrics.customChannels))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.metrics.conversations))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.metrics.negotiationSessions))
}

func TestModule_RefreshErrorKeepsGauges(t *testing.T) {
	m := NewModule(time.Minute, newMockLogger())
	source := &fakeStats{stats: coordinator.Stats{Participants: 2}}
	m.stats = source

	m.refresh(context.Background())
	source.err = errors.New("no responders")
	m.refresh(context.Background())

	assert.Equal(t, 2, source.callCount())
	assert.Equal(t, 2.0, testutil.ToFloat64(m.metrics.participantsOnline))
}

func TestMetrics_Handler(t *testing.T) {
	metrics := NewMetrics()
	metrics.sweeps.Inc()

	rec := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	for _, name := range []string{
		"coordinator_participants_joined_total",
		"coordinator_participants_left_total",
		"coordinator_channels_created_total",
		"coordinator_channels_deleted_total",
		"coordinator_sweeps_total 1",
		"coordinator_messages_pruned_total",
		"coordinator_participants_online",
		"coordinator_custom_channels",
		"coordinator_private_conversations",
		"coordinator_negotiation_sessions",
	} {
		assert.Contains(t, body, name)
	}
}
