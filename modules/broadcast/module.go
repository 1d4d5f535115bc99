package broadcast

import (
	"context"

	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/types"
)

// BroadcastModule runs the connection hub that carries coordinator
// deliveries to websocket clients.
type BroadcastModule struct {
	hub       *Hub
	cancelHub context.CancelFunc
	logger    types.Logger
}

// Compile-time interface checks.
var _ mono.Module = (*BroadcastModule)(nil)
var _ mono.HealthCheckableModule = (*BroadcastModule)(nil)

// NewModule creates a new BroadcastModule with per-client queues of queueSize.
func NewModule(queueSize int, logger types.Logger) *BroadcastModule {
	return &BroadcastModule{
		hub:    NewHub(queueSize, logger),
		logger: logger,
	}
}

// Name returns the module name.
func (m *BroadcastModule) Name() string {
	return "broadcast"
}

// Start initializes the module and starts the hub.
func (m *BroadcastModule) Start(_ context.Context) error {
	ctx, cancel := context.WithCancel(context.Background())
	m.cancelHub = cancel
	go m.hub.Run(ctx)
	m.logger.Info("Broadcast module started", "queueSize", m.hub.queueSize)
	return nil
}

// Stop sends the shutdown notice to every client and closes them.
func (m *BroadcastModule) Stop(_ context.Context) error {
	clientCount := m.hub.ClientCount()
	if m.cancelHub != nil {
		m.cancelHub()
		m.hub.Wait()
	}
	sent, dropped := m.hub.Counters()
	m.logger.Info("Broadcast module stopped",
		"clients", clientCount,
		"sent", sent,
		"dropped", dropped)
	return nil
}

// Health returns the health status.
func (m *BroadcastModule) Health(_ context.Context) mono.HealthStatus {
	sent, dropped := m.hub.Counters()
	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: map[string]any{
			"connected_clients": m.hub.ClientCount(),
			"messages_sent":     sent,
			"messages_dropped":  dropped,
		},
	}
}

// Hub returns the connection hub.
func (m *BroadcastModule) Hub() *Hub {
	return m.hub
}
