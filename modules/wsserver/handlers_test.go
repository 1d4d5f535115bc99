package wsserver

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/go-monolith/mono/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/signaling-coordinator/modules/broadcast"
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

type call struct {
	name string
	arg  any
}

type fakeCoordinator struct {
	mu    sync.Mutex
	calls []call
}

func (f *fakeCoordinator) record(name string, arg any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{name: name, arg: arg})
}

func (f *fakeCoordinator) last() call {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.calls) == 0 {
		return call{}
	}
	return f.calls[len(f.calls)-1]
}

func (f *fakeCoordinator) Register(_ string, req coordinator.RegisterRequest) {
	f.record("register", req)
}
func (f *fakeCoordinator) CreateChannel(_ string, req coordinator.CreateChannelRequest) {
	f.record("create", req)
}
func (f *fakeCoordinator) JoinChannel(_ string, req coordinator.JoinChannelRequest) {
	f.record("join", req)
}
func (f *fakeCoordinator) LeaveChannel(_ string) {
	f.record("leave", nil)
}
func (f *fakeCoordinator) Relay(_ string, kind coordinator.SignalKind, req coordinator.SignalRequest) {
	f.record("relay:"+string(kind), req)
}
func (f *fakeCoordinator) ChannelMessage(_ string, req coordinator.SignalRequest) {
	f.record("channel-message", req)
}
func (f *fakeCoordinator) Emergency(_ string, req coordinator.EmergencyRequest) {
	f.record("emergency", req)
}
func (f *fakeCoordinator) SendPrivate(_ string, req coordinator.PrivateMessageRequest) {
	f.record("private", req)
}
func (f *fakeCoordinator) Typing(_ string, req coordinator.TypingRequest, typing bool) {
	f.record("typing", typing)
}
func (f *fakeCoordinator) RequestHistory(_ string, req coordinator.HistoryRequest) {
	f.record("history", req)
}
func (f *fakeCoordinator) RequestSnapshot(_ string, kind coordinator.SnapshotKind) {
	f.record("snapshot", kind)
}
func (f *fakeCoordinator) Ping(_ string) {
	f.record("ping", nil)
}
func (f *fakeCoordinator) Reject(_ string, err error) {
	f.record("reject", err)
}
func (f *fakeCoordinator) Disconnect(_ string) {
	f.record("disconnect", nil)
}

func newTestHandlers() (*Handlers, *fakeCoordinator) {
	fc := &fakeCoordinator{}
	h := NewHandlers(fc, broadcast.NewHub(8, newMockLogger()), RateConfig{PerSecond: 20, Burst: 40}, newMockLogger())
	return h, fc
}

func TestHandleMessage_Routing(t *testing.T) {
	tests := []struct {
		msgType string
		payload string
		want    string
		wantArg any
	}{
		{TypeRegister, `{"identity":"alice"}`, "register", coordinator.RegisterRequest{Identity: "alice"}},
		{TypeCreateChannel, `{"name":"Ops","maxMembers":4}`, "create", coordinator.CreateChannelRequest{Name: "Ops", MaxMembers: 4}},
		{TypeJoinChannel, `{"channelId":"recon"}`, "join", coordinator.JoinChannelRequest{ChannelID: "recon"}},
		{TypeLeaveChannel, ``, "leave", nil},
		{TypeOffer, `{"payload":{"sdp":"v=0"}}`, "relay:offer", nil},
		{TypeAnswer, `{"payload":{}}`, "relay:answer", nil},
		{TypeICECandidate, `{"to":"bob","payload":{}}`, "relay:ice-candidate", nil},
		{TypeChannelMessage, `{"payload":"hello"}`, "channel-message", nil},
		{TypePrivateMessage, `{"to":"bob","text":"hi"}`, "private", coordinator.PrivateMessageRequest{To: "bob", Text: "hi"}},
		{TypeTypingStart, `{"to":"bob"}`, "typing", true},
		{TypeTypingStop, `{"to":"bob"}`, "typing", false},
		{TypeGetPrivate, `{"with":"bob","limit":5}`, "history", coordinator.HistoryRequest{With: "bob", Limit: 5}},
		{TypeGetParticipants, ``, "snapshot", coordinator.SnapshotParticipants},
		{TypeGetChannels, `null`, "snapshot", coordinator.SnapshotChannels},
		{TypeGetStats, ``, "snapshot", coordinator.SnapshotStats},
		{TypeEmergency, `{"text":"contact"}`, "emergency", coordinator.EmergencyRequest{Text: "contact"}},
		{TypePing, ``, "ping", nil},
	}

	for _, tt := range tests {
		t.Run(tt.msgType, func(t *testing.T) {
			h, fc := newTestHandlers()
			err := h.handleMessage("c1", broadcast.Envelope{Type: tt.msgType, Payload: json.RawMessage(tt.payload)})
			require.NoError(t, err)

			got := fc.last()
			assert.Equal(t, tt.want, got.name)
			if tt.wantArg != nil {
				assert.Equal(t, tt.wantArg, got.arg)
			}
		})
	}
}

func TestHandleMessage_RelayKeepsBlobOpaque(t *testing.T) {
	h, fc := newTestHandlers()
	blob := `{"type":"offer","sdp":"v=0\r\n"}`

	require.NoError(t, h.handleMessage("c1", broadcast.Envelope{
		Type:    TypeOffer,
		Payload: json.RawMessage(`{"channelId":"general","payload":` + blob + `}`),
	}))

	req, ok := fc.last().arg.(coordinator.SignalRequest)
	require.True(t, ok)
	assert.Equal(t, "general", req.ChannelID)
	assert.JSONEq(t, blob, string(req.Payload))
}

func TestHandleMessage_Errors(t *testing.T) {
	h, fc := newTestHandlers()

	err := h.handleMessage("c1", broadcast.Envelope{Type: "teleport"})
	assert.ErrorIs(t, err, ErrUnknownType)
	assert.Contains(t, err.Error(), "teleport")

	err = h.handleMessage("c1", broadcast.Envelope{Type: TypeJoinChannel, Payload: json.RawMessage(`[1,2]`)})
	assert.ErrorIs(t, err, ErrInvalidPayload)

	err = h.handleMessage("c1", broadcast.Envelope{Type: TypeRegister, Payload: json.RawMessage(`{"identity":"a","joinedAt":true}`)})
	assert.ErrorIs(t, err, ErrInvalidPayload)

	assert.Empty(t, fc.calls)
}

func TestParseJoinedAt(t *testing.T) {
	want := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		raw     string
		want    time.Time
		wantErr bool
	}{
		{"absent", ``, time.Time{}, false},
		{"null", `null`, time.Time{}, false},
		{"epoch millis", `1740819600000`, want, false},
		{"rfc3339", `"2025-03-01T09:00:00Z"`, want, false},
		{"garbage", `"yesterday"`, time.Time{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseJoinedAt(json.RawMessage(tt.raw))
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidPayload)
				return
			}
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "got %s", got)
		})
	}
}
