package coordinator

import (
	"context"
	"fmt"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/types"

	"github.com/example/signaling-coordinator/events"
)

const publishQueueSize = 512

// Module runs the coordinator engine as a mono module. It owns the State,
// exposes read services to other modules and publishes domain events.
type Module struct {
	cfg      Config
	state    *State
	engine   *Engine
	eventBus mono.EventBus
	logger   types.Logger

	cancel    context.CancelFunc
	publishCh chan any
	publishWG sync.WaitGroup
	mu        sync.Mutex
	started   bool
}

// Compile-time interface checks
var (
	_ mono.Module                = (*Module)(nil)
	_ mono.ServiceProviderModule = (*Module)(nil)
	_ mono.EventBusAwareModule   = (*Module)(nil)
	_ mono.EventEmitterModule    = (*Module)(nil)
	_ mono.HealthCheckableModule = (*Module)(nil)
	_ EventPublisher             = (*Module)(nil)
)

// NewModule creates a coordinator module that hands deliveries to dispatcher.
func NewModule(cfg Config, dispatcher Dispatcher, logger types.Logger) (*Module, error) {
	return NewModuleWithClock(cfg, clock.New(), dispatcher, logger)
}

// NewModuleWithClock creates a coordinator module driven by clk.
func NewModuleWithClock(cfg Config, clk clock.Clock, dispatcher Dispatcher, logger types.Logger) (*Module, error) {
	state, err := NewState(cfg, clk, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create coordinator state: %w", err)
	}
	m := &Module{
		cfg:       state.cfg,
		state:     state,
		logger:    logger,
		publishCh: make(chan any, publishQueueSize),
	}
	m.engine = NewEngine(state, dispatcher, m, logger)
	return m, nil
}

// Name returns the module name.
func (m *Module) Name() string {
	return "coordinator"
}

// SetEventBus receives the EventBus from the framework.
func (m *Module) SetEventBus(bus mono.EventBus) {
	m.eventBus = bus
}

// EmitEvents declares the events this module can emit.
func (m *Module) EmitEvents() []mono.BaseEventDefinition {
	return []mono.BaseEventDefinition{
		events.ParticipantJoinedV1.ToBase(),
		events.ParticipantLeftV1.ToBase(),
		events.ChannelCreatedV1.ToBase(),
		events.ChannelDeletedV1.ToBase(),
		events.SweepCompletedV1.ToBase(),
	}
}

// Start runs the engine loop and the event publisher.
func (m *Module) Start(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return fmt.Errorf("coordinator is already running")
	}
	m.started = true

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel

	m.publishWG.Add(1)
	go func() {
		defer m.publishWG.Done()
		m.publishLoop()
	}()
	go m.engine.Run(ctx)

	m.logger.Info("Coordinator module started",
		"defaultChannels", len(m.cfg.DefaultChannels),
		"channelIdleTTL", m.cfg.ChannelIdleTTL.String(),
		"messageRetention", m.cfg.MessageRetention.String(),
		"negotiationTTL", m.cfg.NegotiationTTL.String())
	return nil
}

// Stop cancels the engine loop and drains pending events.
func (m *Module) Stop(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.started {
		return nil
	}
	m.started = false

	m.cancel()
	select {
	case <-m.engine.Done():
	case <-ctx.Done():
		return fmt.Errorf("timeout waiting for coordinator engine: %w", ctx.Err())
	}

	close(m.publishCh)
	m.publishWG.Wait()
	m.logger.Info("Coordinator module stopped")
	return nil
}

// Health returns the health status.
func (m *Module) Health(_ context.Context) mono.HealthStatus {
	running := m.engine.Running()
	message := "operational"
	if !running {
		message = "engine not running"
	}
	return mono.HealthStatus{
		Healthy: running,
		Message: message,
		Details: map[string]any{
			"participants":     m.engine.Online(),
			"sweeping":         m.engine.sweeping.Load(),
			"recovered_panics": m.engine.panics.Load(),
		},
	}
}

// Engine returns the engine connection handlers submit commands to.
func (m *Module) Engine() *Engine {
	return m.engine
}

// Publish enqueues a domain event. Events are dropped when the queue is full
// so the engine loop never waits on the EventBus.
func (m *Module) Publish(event any) {
	select {
	case m.publishCh <- event:
	default:
		m.logger.Warn("Event queue full, dropping event", "event", fmt.Sprintf("%T", event))
	}
}

func (m *Module) publishLoop() {
	for evt := range m.publishCh {
		if err := m.publishEvent(evt); err != nil {
			m.logger.Warn("Failed to publish event", "event", fmt.Sprintf("%T", evt), "error", err)
		}
	}
}

func (m *Module) publishEvent(evt any) error {
	if m.eventBus == nil {
		return nil
	}
	switch e := evt.(type) {
	case events.ParticipantJoinedEvent:
		return events.ParticipantJoinedV1.Publish(m.eventBus, e, nil)
	case events.ParticipantLeftEvent:
		return events.ParticipantLeftV1.Publish(m.eventBus, e, nil)
	case events.ChannelCreatedEvent:
		return events.ChannelCreatedV1.Publish(m.eventBus, e, nil)
	case events.ChannelDeletedEvent:
		return events.ChannelDeletedV1.Publish(m.eventBus, e, nil)
	case events.SweepCompletedEvent:
		return events.SweepCompletedV1.Publish(m.eventBus, e, nil)
	default:
		return fmt.Errorf("unknown event type %T", evt)
	}
}
