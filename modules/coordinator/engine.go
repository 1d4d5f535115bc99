package coordinator

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync/atomic"

	"github.com/benbjohnson/clock"
	"github.com/go-monolith/mono/pkg/types"

	"github.com/example/signaling-coordinator/domain/presence"
)

// Dispatcher hands deliveries to the transport. Dispatch must not block on
// network I/O; it is called from the engine loop.
type Dispatcher interface {
	Dispatch(deliveries []Delivery)
}

// EventPublisher publishes domain events produced by state transitions.
type EventPublisher interface {
	Publish(event any)
}

type command struct {
	name   string
	connID string
	apply  func(s *State) Effects
	done   chan struct{}
}

// Engine serializes every mutation of State through one goroutine. Connection
// handlers submit commands in arrival order; sweeps run on a ticker inside the
// same loop.
type Engine struct {
	state      *State
	clock      clock.Clock
	dispatcher Dispatcher
	publisher  EventPublisher
	logger     types.Logger

	cmds    chan command
	stopped chan struct{}

	running  atomic.Bool
	sweeping atomic.Bool
	online   atomic.Int64
	panics   atomic.Int64
}

// NewEngine creates an engine around state. dispatcher and publisher may be nil.
func NewEngine(state *State, dispatcher Dispatcher, publisher EventPublisher, logger types.Logger) *Engine {
	return &Engine{
		state:      state,
		clock:      state.clock,
		dispatcher: dispatcher,
		publisher:  publisher,
		logger:     logger,
		cmds:       make(chan command, state.cfg.CommandQueueSize),
		stopped:    make(chan struct{}),
	}
}

// Run processes commands and sweeps until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) {
	e.running.Store(true)
	defer func() {
		e.running.Store(false)
		close(e.stopped)
	}()

	ticker := e.clock.Ticker(e.state.cfg.SweepInterval)
	defer ticker.Stop()

	e.logger.Info("Coordinator engine started", "sweepInterval", e.state.cfg.SweepInterval.String())
	for {
		select {
		case <-ctx.Done():
			e.logger.Info("Coordinator engine stopping")
			return
		case cmd := <-e.cmds:
			e.apply(cmd)
		case <-ticker.C:
			e.runSweep()
		}
	}
}

// Done is closed when Run returns.
func (e *Engine) Done() <-chan struct{} {
	return e.stopped
}

// Running reports whether the engine loop is active.
func (e *Engine) Running() bool {
	return e.running.Load()
}

// Online returns the participant count as of the last applied command.
func (e *Engine) Online() int {
	return int(e.online.Load())
}

func (e *Engine) apply(cmd command) {
	defer func() {
		if r := recover(); r != nil {
			e.panics.Add(1)
			e.logger.Error("Command panicked",
				"command", cmd.name,
				"connID", cmd.connID,
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()))
		}
		if cmd.done != nil {
			close(cmd.done)
		}
	}()

	fx := cmd.apply(e.state)
	e.online.Store(int64(e.state.participants.count()))
	e.flush(fx)
}

func (e *Engine) runSweep() {
	e.sweeping.Store(true)
	defer e.sweeping.Store(false)
	e.apply(command{name: "sweep", apply: func(s *State) Effects {
		report, fx := s.Sweep()
		if !report.Empty() {
			e.logger.Info("Sweep completed",
				"channelsDeleted", report.ChannelsDeleted,
				"messagesPruned", report.MessagesPruned,
				"conversationsDeleted", report.ConversationsDeleted,
				"sessionsExpired", report.SessionsExpired,
				"typingCleared", report.TypingCleared,
				"itemErrors", report.ItemErrors)
		}
		return fx
	}})
}

func (e *Engine) flush(fx Effects) {
	if len(fx.Deliveries) > 0 && e.dispatcher != nil {
		e.dispatcher.Dispatch(fx.Deliveries)
	}
	if e.publisher == nil {
		return
	}
	for _, evt := range fx.Events {
		e.publisher.Publish(evt)
	}
}

// submit enqueues a command. It returns false once the engine has stopped.
func (e *Engine) submit(cmd command) bool {
	select {
	case <-e.stopped:
		return false
	default:
	}
	select {
	case e.cmds <- cmd:
		return true
	case <-e.stopped:
		return false
	}
}

// query runs fn inside the engine loop and waits for its result. The result
// travels over a buffered channel, so a caller that gave up never shares
// memory with a closure that runs later.
func query[T any](ctx context.Context, e *Engine, name string, fn func(s *State) (T, Effects)) (T, error) {
	var zero T
	result := make(chan T, 1)
	done := make(chan struct{})
	cmd := command{name: name, done: done, apply: func(s *State) Effects {
		v, fx := fn(s)
		result <- v
		return fx
	}}
	if !e.submit(cmd) {
		return zero, ErrEngineStopped
	}
	select {
	case <-done:
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-e.stopped:
		return zero, ErrEngineStopped
	}
	select {
	case v := <-result:
		return v, nil
	default:
		return zero, ErrQueryFailed
	}
}

// Connection-facing commands. Each one is applied asynchronously in the order
// it was submitted; caller input errors are answered on the connection.

// Register binds connID to an identity.
func (e *Engine) Register(connID string, req RegisterRequest) {
	e.submit(command{name: "register", connID: connID, apply: func(s *State) Effects {
		_, fx, err := s.Register(connID, req.Identity, req.JoinedAt)
		return withError(fx, connID, err)
	}})
}

// CreateChannel creates a custom channel owned by the connection's participant.
func (e *Engine) CreateChannel(connID string, req CreateChannelRequest) {
	e.submit(command{name: "create-channel", connID: connID, apply: func(s *State) Effects {
		_, fx, err := s.CreateChannel(connID, req)
		return withError(fx, connID, err)
	}})
}

// JoinChannel moves the participant into a channel. An empty id falls back
// to the channel name.
func (e *Engine) JoinChannel(connID string, req JoinChannelRequest) {
	channelID := req.ChannelID
	if channelID == "" {
		channelID = req.ChannelName
	}
	e.submit(command{name: "join-channel", connID: connID, apply: func(s *State) Effects {
		_, fx, err := s.Join(connID, channelID)
		return withError(fx, connID, err)
	}})
}

// LeaveChannel removes the participant from its channel.
func (e *Engine) LeaveChannel(connID string) {
	e.submit(command{name: "leave-channel", connID: connID, apply: func(s *State) Effects {
		return s.Leave(connID)
	}})
}

// Relay forwards a negotiation message to co-members.
func (e *Engine) Relay(connID string, kind SignalKind, req SignalRequest) {
	e.submit(command{name: string(kind), connID: connID, apply: func(s *State) Effects {
		_, fx := s.Relay(connID, kind, req)
		return fx
	}})
}

// ChannelMessage forwards a fallback chat payload to co-members.
func (e *Engine) ChannelMessage(connID string, req SignalRequest) {
	e.submit(command{name: "channel-message", connID: connID, apply: func(s *State) Effects {
		_, fx := s.RelayChannelMessage(connID, req)
		return fx
	}})
}

// Emergency broadcasts an alert to every other participant.
func (e *Engine) Emergency(connID string, req EmergencyRequest) {
	e.submit(command{name: "emergency-message", connID: connID, apply: func(s *State) Effects {
		fx, err := s.Emergency(connID, req)
		return withError(fx, connID, err)
	}})
}

// SendPrivate stores and forwards a private message.
func (e *Engine) SendPrivate(connID string, req PrivateMessageRequest) {
	e.submit(command{name: "private-message", connID: connID, apply: func(s *State) Effects {
		_, fx, err := s.SendPrivate(connID, req)
		return withError(fx, connID, err)
	}})
}

// Typing sets or clears the participant's composing indicator.
func (e *Engine) Typing(connID string, req TypingRequest, typing bool) {
	e.submit(command{name: "typing", connID: connID, apply: func(s *State) Effects {
		return s.SetTyping(connID, req.To, typing)
	}})
}

// RequestHistory answers a private history request on the connection.
func (e *Engine) RequestHistory(connID string, req HistoryRequest) {
	e.submit(command{name: "get-private-messages", connID: connID, apply: func(s *State) Effects {
		fx, err := s.RequestHistory(connID, req)
		return withError(fx, connID, err)
	}})
}

// RequestSnapshot answers an on-demand snapshot request on the connection.
func (e *Engine) RequestSnapshot(connID string, kind SnapshotKind) {
	e.submit(command{name: "snapshot", connID: connID, apply: func(s *State) Effects {
		fx, err := s.Snapshot(connID, kind)
		return withError(fx, connID, err)
	}})
}

// Ping answers a keepalive.
func (e *Engine) Ping(connID string) {
	e.submit(command{name: "ping", connID: connID, apply: func(s *State) Effects {
		return s.Ping(connID)
	}})
}

// Reject answers a malformed request on the connection.
func (e *Engine) Reject(connID string, err error) {
	e.submit(command{name: "reject", connID: connID, apply: func(_ *State) Effects {
		return withError(Effects{}, connID, err)
	}})
}

// Disconnect tears down the participant bound to connID.
func (e *Engine) Disconnect(connID string) {
	e.submit(command{name: "disconnect", connID: connID, apply: func(s *State) Effects {
		return s.Disconnect(connID)
	}})
}

// Read-side queries. They run inside the loop and never mutate.

// Participants returns the participant snapshot.
func (e *Engine) Participants(ctx context.Context) ([]presence.ParticipantEntry, error) {
	return query(ctx, e, "participants", func(s *State) ([]presence.ParticipantEntry, Effects) {
		return s.ParticipantsSnapshot(), Effects{}
	})
}

type channelsResult struct {
	channels []presence.ChannelEntry
	stats    presence.ChannelStats
}

// Channels returns the channel snapshot and channel stats.
func (e *Engine) Channels(ctx context.Context) ([]presence.ChannelEntry, presence.ChannelStats, error) {
	res, err := query(ctx, e, "channels", func(s *State) (channelsResult, Effects) {
		return channelsResult{channels: s.ChannelsSnapshot(), stats: s.ChannelStatsSnapshot()}, Effects{}
	})
	return res.channels, res.stats, err
}

type membersResult struct {
	members []string
	found   bool
}

// Members returns the members of a channel and whether it exists.
func (e *Engine) Members(ctx context.Context, channelID string) ([]string, bool, error) {
	res, err := query(ctx, e, "members", func(s *State) (membersResult, Effects) {
		members, found := s.MembersOf(channelID)
		return membersResult{members: members, found: found}, Effects{}
	})
	return res.members, res.found, err
}

// History returns up to limit messages between a and b, oldest first.
func (e *Engine) History(ctx context.Context, a, b string, limit int) ([]presence.Message, error) {
	return query(ctx, e, "history", func(s *State) ([]presence.Message, Effects) {
		return s.History(a, b, limit), Effects{}
	})
}

// Stats returns a summary of the coordinator state.
func (e *Engine) Stats(ctx context.Context) (Stats, error) {
	return query(ctx, e, "stats", func(s *State) (Stats, Effects) {
		return s.Stats(), Effects{}
	})
}

// SweepNow runs one eviction sweep immediately and returns its report.
func (e *Engine) SweepNow(ctx context.Context) (SweepReport, error) {
	return query(ctx, e, "sweep", func(s *State) (SweepReport, Effects) {
		return s.Sweep()
	})
}
