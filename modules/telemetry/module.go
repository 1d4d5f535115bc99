package telemetry

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
	"github.com/go-monolith/mono/pkg/types"

	"github.com/example/signaling-coordinator/events"
	"github.com/example/signaling-coordinator/modules/coordinator"
)

const refreshTimeout = 5 * time.Second

// StatsSource returns the current coordinator statistics.
type StatsSource interface {
	Stats(ctx context.Context) (*coordinator.Stats, error)
}

// Module counts coordinator events and periodically refreshes gauges from
// the coordinator stats service.
type Module struct {
	metrics  *Metrics
	stats    StatsSource
	clock    clock.Clock
	interval time.Duration
	logger   types.Logger

	cancel  context.CancelFunc
	done    chan struct{}
	running atomic.Bool
}

// Compile-time interface checks
var (
	_ mono.Module                = (*Module)(nil)
	_ mono.EventConsumerModule   = (*Module)(nil)
	_ mono.DependentModule       = (*Module)(nil)
	_ mono.HealthCheckableModule = (*Module)(nil)
)

// NewModule creates a telemetry module that logs statistics every interval.
func NewModule(interval time.Duration, logger types.Logger) *Module {
	return NewModuleWithClock(interval, clock.New(), logger)
}

// NewModuleWithClock is NewModule with an injected clock.
func NewModuleWithClock(interval time.Duration, clk clock.Clock, logger types.Logger) *Module {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Module{
		metrics:  NewMetrics(),
		clock:    clk,
		interval: interval,
		logger:   logger,
	}
}

// Name returns the module name.
func (m *Module) Name() string {
	return "telemetry"
}

// Dependencies returns the list of module dependencies.
func (m *Module) Dependencies() []string {
	return []string{"coordinator"}
}

// SetDependencyServiceContainer receives service containers from dependencies.
func (m *Module) SetDependencyServiceContainer(dependency string, container mono.ServiceContainer) {
	switch dependency {
	case "coordinator":
		m.stats = coordinator.NewCoordinatorAdapter(container)
	}
}

// RegisterEventConsumers subscribes to coordinator events.
func (m *Module) RegisterEventConsumers(registry mono.EventRegistry) error {
	if err := helper.RegisterTypedEventConsumer(registry, events.ParticipantJoinedV1, m.handleParticipantJoined, m); err != nil {
		return fmt.Errorf("failed to register ParticipantJoined consumer: %w", err)
	}
	if err := helper.RegisterTypedEventConsumer(registry, events.ParticipantLeftV1, m.handleParticipantLeft, m); err != nil {
		return fmt.Errorf("failed to register ParticipantLeft consumer: %w", err)
	}
	if err := helper.RegisterTypedEventConsumer(registry, events.ChannelCreatedV1, m.handleChannelCreated, m); err != nil {
		return fmt.Errorf("failed to register ChannelCreated consumer: %w", err)
	}
	if err := helper.RegisterTypedEventConsumer(registry, events.ChannelDeletedV1, m.handleChannelDeleted, m); err != nil {
		return fmt.Errorf("failed to register ChannelDeleted consumer: %w", err)
	}
	if err := helper.RegisterTypedEventConsumer(registry, events.SweepCompletedV1, m.handleSweepCompleted, m); err != nil {
		return fmt.Errorf("failed to register SweepCompleted consumer: %w", err)
	}

	m.logger.Info("Registered event consumers",
		"events", []string{"ParticipantJoined", "ParticipantLeft", "ChannelCreated", "ChannelDeleted", "SweepCompleted"})
	return nil
}

func (m *Module) handleParticipantJoined(_ context.Context, evt events.ParticipantJoinedEvent, _ *mono.Msg) error {
	m.metrics.participantsJoined.Inc()
	m.logger.Debug("Participant joined", "identity", evt.Identity)
	return nil
}

func (m *Module) handleParticipantLeft(_ context.Context, evt events.ParticipantLeftEvent, _ *mono.Msg) error {
	m.metrics.participantsLeft.Inc()
	m.logger.Debug("Participant left", "identity", evt.Identity, "channelID", evt.ChannelID)
	return nil
}

func (m *Module) handleChannelCreated(_ context.Context, evt events.ChannelCreatedEvent, _ *mono.Msg) error {
	m.metrics.channelsCreated.Inc()
	m.logger.Debug("Channel created", "channelID", evt.ChannelID, "creator", evt.CreatedBy)
	return nil
}

func (m *Module) handleChannelDeleted(_ context.Context, evt events.ChannelDeletedEvent, _ *mono.Msg) error {
	m.metrics.channelsDeleted.Inc()
	m.logger.Debug("Channel deleted", "channelID", evt.ChannelID, "reason", evt.Reason)
	return nil
}

func (m *Module) handleSweepCompleted(_ context.Context, evt events.SweepCompletedEvent, _ *mono.Msg) error {
	m.metrics.sweeps.Inc()
	m.metrics.messagesPruned.Add(float64(evt.MessagesPruned))
	return nil
}

// Start begins the periodic statistics refresh.
func (m *Module) Start(_ context.Context) error {
	if m.stats == nil {
		return errors.New("coordinator adapter dependency not set")
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.done = make(chan struct{})
	ticker := m.clock.Ticker(m.interval)
	m.running.Store(true)
	go m.loop(ctx, ticker)

	m.logger.Info("Telemetry module started", "interval", m.interval.String())
	return nil
}

// Stop halts the refresh loop.
func (m *Module) Stop(ctx context.Context) error {
	if m.cancel == nil {
		return nil
	}
	m.cancel()
	select {
	case <-m.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	m.cancel = nil
	m.running.Store(false)
	m.logger.Info("Telemetry module stopped")
	return nil
}

// Health returns the health status.
func (m *Module) Health(_ context.Context) mono.HealthStatus {
	return mono.HealthStatus{
		Healthy: m.running.Load(),
		Message: "operational",
		Details: map[string]any{
			"interval": m.interval.String(),
		},
	}
}

// Metrics returns the collectors.
func (m *Module) Metrics() *Metrics {
	return m.metrics
}

func (m *Module) loop(ctx context.Context, ticker *clock.Ticker) {
	defer close(m.done)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.refresh(ctx)
		}
	}
}

// refresh pulls stats, updates the gauges and logs one summary line.
func (m *Module) refresh(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, refreshTimeout)
	defer cancel()

	st, err := m.stats.Stats(ctx)
	if err != nil {
		m.logger.Warn("Failed to refresh coordinator stats", "error", err)
		return
	}
	m.metrics.observeStats(st)

	m.logger.Info("Coordinator statistics",
		"participants", st.Participants,
		"channels", st.Channels,
		"customChannels", st.CustomChannels,
		"conversations", st.Conversations,
		"privateMessages", st.PrivateMessages,
		"negotiationSessions", st.NegotiationSessions,
		"offersDropped", st.OffersDropped,
		"uptime", st.Uptime)
}
