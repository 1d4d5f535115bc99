package coordinator

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/go-monolith/mono/pkg/types"
	"github.com/stretchr/testify/require"
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

var testEpoch = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

func newTestState(t *testing.T) (*State, *clock.Mock) {
	t.Helper()
	return newTestStateWithConfig(t, DefaultConfig())
}

func newTestStateWithConfig(t *testing.T, cfg Config) (*State, *clock.Mock) {
	t.Helper()
	clk := clock.NewMock()
	clk.Set(testEpoch)
	s, err := NewState(cfg, clk, newMockLogger())
	require.NoError(t, err)

	seq := 0
	s.newID = func() string {
		seq++
		return fmt.Sprintf("%08x", seq)
	}
	return s, clk
}

func mustRegister(t *testing.T, s *State, connID, identity string) Effects {
	t.Helper()
	_, fx, err := s.Register(connID, identity, time.Time{})
	require.NoError(t, err)
	return fx
}

func mustJoin(t *testing.T, s *State, connID, channelID string) Effects {
	t.Helper()
	_, fx, err := s.Join(connID, channelID)
	require.NoError(t, err)
	return fx
}

func mustCreate(t *testing.T, s *State, connID, name string) string {
	t.Helper()
	ch, _, err := s.CreateChannel(connID, CreateChannelRequest{Name: name})
	require.NoError(t, err)
	return ch.ID
}

// deliveriesTo returns the deliveries addressed to connID, in order.
func deliveriesTo(fx Effects, connID string) []Delivery {
	var out []Delivery
	for _, d := range fx.Deliveries {
		for _, c := range d.ConnIDs {
			if c == connID {
				out = append(out, d)
				break
			}
		}
	}
	return out
}

func typesTo(fx Effects, connID string) []string {
	var out []string
	for _, d := range deliveriesTo(fx, connID) {
		out = append(out, d.Type)
	}
	return out
}

func countType(fx Effects, connID, msgType string) int {
	n := 0
	for _, t := range typesTo(fx, connID) {
		if t == msgType {
			n++
		}
	}
	return n
}

func firstOfType(fx Effects, connID, msgType string) (Delivery, bool) {
	for _, d := range deliveriesTo(fx, connID) {
		if d.Type == msgType {
			return d, true
		}
	}
	return Delivery{}, false
}

// recordingDispatcher collects dispatched deliveries for engine tests.
type recordingDispatcher struct {
	mu         sync.Mutex
	deliveries []Delivery
}

func (r *recordingDispatcher) Dispatch(deliveries []Delivery) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deliveries = append(r.deliveries, deliveries...)
}

func (r *recordingDispatcher) snapshot() Effects {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Delivery, len(r.deliveries))
	copy(out, r.deliveries)
	return Effects{Deliveries: out}
}

// recordingPublisher collects published events.
type recordingPublisher struct {
	mu     sync.Mutex
	events []any
}

func (r *recordingPublisher) Publish(event any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recordingPublisher) all() []any {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]any, len(r.events))
	copy(out, r.events)
	return out
}
