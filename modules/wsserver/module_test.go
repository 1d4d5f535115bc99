package wsserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/signaling-coordinator/modules/broadcast"
	"github.com/example/signaling-coordinator/modules/coordinator"
)

type testServer struct {
	url string
	hub *broadcast.Hub
}

func startTestServer(t *testing.T, rc RateConfig) *testServer {
	t.Helper()
	logger := newMockLogger()

	hub := broadcast.NewHub(64, logger)
	coord, err := coordinator.NewModule(coordinator.DefaultConfig(), hub, logger)
	require.NoError(t, err)
	require.NoError(t, coord.Start(context.Background()))

	m := NewModule(Config{Addr: "127.0.0.1:0", Rate: rc}, coord.Engine(), hub, logger)
	m.app = m.newApp()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = m.app.Listener(ln) }()

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = m.Stop(ctx)
		_ = coord.Stop(ctx)
	})

	return &testServer{url: "ws://" + ln.Addr().String() + "/ws", hub: hub}
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, msgType string, payload any) {
	t.Helper()
	env := map[string]any{"type": msgType}
	if payload != nil {
		env["payload"] = payload
	}
	require.NoError(t, conn.WriteJSON(env))
}

// readUntil reads frames until one of msgType arrives.
func readUntil(t *testing.T, conn *websocket.Conn, msgType string) broadcast.Envelope {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	require.NoError(t, conn.SetReadDeadline(deadline))
	for {
		var env broadcast.Envelope
		err := conn.ReadJSON(&env)
		require.NoError(t, err, "waiting for %s", msgType)
		if env.Type == msgType {
			return env
		}
	}
}

func TestWebSocket_NegotiationRoundTrip(t *testing.T) {
	srv := startTestServer(t, RateConfig{PerSecond: 100, Burst: 100})

	alice := dial(t, srv.url)
	bob := dial(t, srv.url)

	send(t, alice, TypeRegister, map[string]any{"identity": "alice"})
	readUntil(t, alice, coordinator.TypeChannelStats)
	send(t, bob, TypeRegister, map[string]any{"identity": "bob"})
	readUntil(t, bob, coordinator.TypeChannelStats)

	send(t, alice, TypeJoinChannel, map[string]any{"channelId": "general"})
	readUntil(t, alice, coordinator.TypeChannelJoined)
	send(t, bob, TypeJoinChannel, map[string]any{"channelId": "general"})
	joined := readUntil(t, bob, coordinator.TypeChannelJoined)

	var jp coordinator.ChannelJoinedPayload
	require.NoError(t, json.Unmarshal(joined.Payload, &jp))
	assert.Equal(t, 2, jp.MemberCount)

	send(t, alice, TypeOffer, map[string]any{"payload": map[string]string{"sdp": "v=0"}})
	offer := readUntil(t, bob, TypeOffer)

	var sp coordinator.SignalPayload
	require.NoError(t, json.Unmarshal(offer.Payload, &sp))
	assert.Equal(t, "alice", sp.From)
	assert.Equal(t, "general", sp.ChannelID)
	assert.JSONEq(t, `{"sdp":"v=0"}`, string(sp.Payload))

	require.NoError(t, bob.Close())
	left := readUntil(t, alice, coordinator.TypeParticipantLeftChannel)

	var lp coordinator.MemberLeftPayload
	require.NoError(t, json.Unmarshal(left.Payload, &lp))
	assert.Equal(t, "bob", lp.Identity)
}

func TestWebSocket_DisconnectWithQueuedFrames(t *testing.T) {
	srv := startTestServer(t, RateConfig{PerSecond: 1000, Burst: 1000})

	for i := 0; i < 20; i++ {
		conn := dial(t, srv.url)
		send(t, conn, TypeRegister, map[string]any{"identity": fmt.Sprintf("peer-%d", i)})
		for j := 0; j < 40; j++ {
			send(t, conn, TypeGetParticipants, nil)
		}
		require.NoError(t, conn.UnderlyingConn().Close())
	}

	require.Eventually(t, func() bool {
		return srv.hub.ClientCount() == 0
	}, 5*time.Second, 10*time.Millisecond)

	conn := dial(t, srv.url)
	send(t, conn, TypeRegister, map[string]any{"identity": "alice"})
	readUntil(t, conn, coordinator.TypeChannelStats)
	send(t, conn, TypePing, nil)
	readUntil(t, conn, coordinator.TypePong)
}

func TestWebSocket_ErrorsAnsweredToCaller(t *testing.T) {
	srv := startTestServer(t, RateConfig{PerSecond: 100, Burst: 100})
	conn := dial(t, srv.url)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	env := readUntil(t, conn, coordinator.TypeError)
	assert.Equal(t, ErrInvalidFrame.Error(), env.Error)

	send(t, conn, TypeRegister, map[string]any{"identity": ""})
	env = readUntil(t, conn, coordinator.TypeError)
	assert.Equal(t, coordinator.ErrIdentityEmpty.Error(), env.Error)

	send(t, conn, "teleport", nil)
	env = readUntil(t, conn, coordinator.TypeError)
	assert.Contains(t, env.Error, ErrUnknownType.Error())
}

func TestWebSocket_RateLimit(t *testing.T) {
	srv := startTestServer(t, RateConfig{PerSecond: 0.01, Burst: 1})
	conn := dial(t, srv.url)

	send(t, conn, TypePing, nil)
	send(t, conn, TypePing, nil)

	readUntil(t, conn, coordinator.TypePong)
	env := readUntil(t, conn, coordinator.TypeError)
	assert.Equal(t, ErrRateLimited.Error(), env.Error)
}

func TestWebSocket_ShutdownNotice(t *testing.T) {
	srv := startTestServer(t, RateConfig{PerSecond: 100, Burst: 100})
	conn := dial(t, srv.url)

	send(t, conn, TypePing, nil)
	readUntil(t, conn, coordinator.TypePong)

	ctx, cancel := context.WithCancel(context.Background())
	go srv.hub.Run(ctx)
	cancel()

	readUntil(t, conn, coordinator.TypeServerShutdown)
	srv.hub.Wait()
}

func TestModule_Lifecycle(t *testing.T) {
	hub := broadcast.NewHub(8, newMockLogger())
	m := NewModule(Config{Addr: "127.0.0.1:0"}, &fakeCoordinator{}, hub, newMockLogger())

	assert.Equal(t, "ws-server", m.Name())
	assert.False(t, m.Health(context.Background()).Healthy)
	assert.Equal(t, 20.0, m.cfg.Rate.PerSecond)
	assert.Equal(t, 40, m.cfg.Rate.Burst)

	require.NoError(t, m.Start(context.Background()))
	assert.True(t, m.Health(context.Background()).Healthy)
	require.NoError(t, m.Stop(context.Background()))
}
