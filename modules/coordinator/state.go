package coordinator

import (
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/go-monolith/mono/pkg/types"
	gonanoid "github.com/jaevor/go-nanoid"

	"github.com/example/signaling-coordinator/domain/presence"
	"github.com/example/signaling-coordinator/events"
)

// Generated channel and message ids are short lowercase tokens.
const (
	idAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
	idLength   = 10
)

type counters struct {
	offersRelayed   uint64
	offersDropped   uint64
	signalsRelayed  uint64
	privateMessages uint64
	emergencies     uint64
}

// State is the coordinator's in-memory model. It is not safe for concurrent
// use; the Engine owns it and applies every mutation from one goroutine.
type State struct {
	cfg    Config
	clock  clock.Clock
	logger types.Logger

	participants *participantRegistry
	channels     *channelRegistry
	sessions     *sessionTable
	messages     *messageStore

	counters  counters
	startedAt time.Time
	lastSweep time.Time

	newID func() string
}

// NewState creates the coordinator state with the default channels in place.
func NewState(cfg Config, clk clock.Clock, logger types.Logger) (*State, error) {
	cfg = cfg.withDefaults()
	if clk == nil {
		clk = clock.New()
	}
	messages, err := newMessageStore(cfg.MaxConversations, cfg.MaxConversationMessages)
	if err != nil {
		return nil, err
	}
	newID, err := gonanoid.CustomASCII(idAlphabet, idLength)
	if err != nil {
		return nil, fmt.Errorf("id generator: %w", err)
	}
	now := clk.Now()
	return &State{
		cfg:          cfg,
		clock:        clk,
		logger:       logger,
		participants: newParticipantRegistry(),
		channels:     newChannelRegistry(cfg.DefaultChannels, now),
		sessions:     newSessionTable(),
		messages:     messages,
		startedAt:    now,
		newID:        newID,
	}, nil
}

// Lookup returns a copy of the participant with its current channel filled in.
func (s *State) Lookup(identity string) (presence.Participant, bool) {
	p, ok := s.participants.lookup(identity)
	if !ok {
		return presence.Participant{}, false
	}
	out := *p
	out.CurrentChannel = s.channels.channelOf(identity)
	return out, true
}

// MembersOf returns the sorted members of a channel and whether it exists.
func (s *State) MembersOf(channelID string) ([]string, bool) {
	if !s.channels.exists(channelID) {
		return nil, false
	}
	return s.channels.membersOf(channelID), true
}

// Register binds a connection to an identity. A known identity is treated as
// a reconnect: it keeps its join time and channel and nobody else is told.
func (s *State) Register(connID, identity string, joinedAt time.Time) (presence.Participant, Effects, error) {
	var fx Effects
	if err := ValidateIdentity(identity); err != nil {
		return presence.Participant{}, fx, err
	}

	if prev, ok := s.participants.identityOf(connID); ok && prev != identity {
		fx.merge(s.teardown(prev))
	}

	now := s.clock.Now()
	if joinedAt.IsZero() || joinedAt.After(now) {
		joinedAt = now
	}
	_, reconnected, replaced := s.participants.register(connID, identity, joinedAt)
	if replaced != "" {
		s.logger.Info("Participant handle replaced", "identity", identity, "connID", connID, "previous", replaced)
	}

	reason := ReasonRegistered
	if reconnected {
		reason = ReasonReconnected
	}
	participants := s.ParticipantsSnapshot()
	fx.reply(connID, TypeParticipantsList, ParticipantsListPayload{
		Reason:       reason,
		Identity:     identity,
		Participants: participants,
	})
	fx.reply(connID, TypeChannelsList, ChannelsListPayload{Channels: s.ChannelsSnapshot()})
	fx.reply(connID, TypeChannelStats, s.ChannelStatsSnapshot())

	if !reconnected {
		fx.send(s.participants.connIDs(identity), TypeParticipantsList, ParticipantsListPayload{
			Reason:       ReasonJoined,
			Identity:     identity,
			Participants: participants,
		})
		fx.emit(events.ParticipantJoinedEvent{Identity: identity, Timestamp: now})
		s.logger.Info("Participant registered", "identity", identity, "connID", connID)
	}

	p, _ := s.Lookup(identity)
	return p, fx, nil
}

// Remove deletes a participant and its channel membership without notifying
// anyone. It returns the channel the participant occupied.
func (s *State) Remove(identity string) (string, bool) {
	if _, ok := s.participants.lookup(identity); !ok {
		return "", false
	}
	channelID, _ := s.channels.leave(identity)
	s.participants.remove(identity)
	return channelID, true
}

// Disconnect tears down whatever participant is bound to connID. A handle
// that was replaced by a reconnect is only forgotten.
func (s *State) Disconnect(connID string) Effects {
	identity, ok := s.participants.identityOf(connID)
	if !ok {
		return Effects{}
	}
	if conn, _ := s.participants.connOf(identity); conn != connID {
		s.participants.forgetConn(connID)
		return Effects{}
	}
	return s.teardown(identity)
}

// teardown removes identity and every structure referencing it, notifying
// co-members and all participants once.
func (s *State) teardown(identity string) Effects {
	var fx Effects
	fx.merge(s.clearTypingFor(identity))

	channelID, ok := s.Remove(identity)
	if !ok {
		return fx
	}
	s.sessions.dropIdentity(identity)

	if channelID != "" {
		members := s.channels.membersOf(channelID)
		fx.send(s.participants.connsOf(members), TypeParticipantLeftChannel, MemberLeftPayload{
			ChannelID: channelID,
			Identity:  identity,
		})
	}
	all := s.participants.connIDs("")
	fx.send(all, TypeParticipantsList, ParticipantsListPayload{
		Reason:       ReasonLeft,
		Identity:     identity,
		Participants: s.ParticipantsSnapshot(),
	})
	if channelID != "" {
		fx.send(all, TypeChannelStats, s.ChannelStatsSnapshot())
	}
	fx.emit(events.ParticipantLeftEvent{
		Identity:  identity,
		ChannelID: channelID,
		Timestamp: s.clock.Now(),
	})
	s.logger.Info("Participant disconnected", "identity", identity, "channelID", channelID)
	return fx
}

// CreateChannel creates a custom channel owned by the caller.
func (s *State) CreateChannel(connID string, req CreateChannelRequest) (presence.Channel, Effects, error) {
	var fx Effects
	identity, ok := s.participants.identityOf(connID)
	if !ok {
		return presence.Channel{}, fx, ErrNotRegistered
	}
	if err := ValidateChannelName(req.Name); err != nil {
		return presence.Channel{}, fx, err
	}

	id := "custom_" + s.newID()
	for s.channels.exists(id) {
		id = "custom_" + s.newID()
	}
	autoDelete := true
	if req.AutoDelete != nil {
		autoDelete = *req.AutoDelete
	}
	now := s.clock.Now()
	rec := s.channels.createCustom(presence.Channel{
		ID:          id,
		Name:        channelName(req.Name, id),
		Creator:     identity,
		CreatedAt:   now,
		AutoDelete:  autoDelete,
		MaxMembers:  req.MaxMembers,
		Visibility:  req.Visibility,
		Description: req.Description,
		HasPassword: req.HasPassword || req.Password != "",
	})

	entry := s.channelEntry(rec)
	fx.send(s.participants.connIDs(identity), TypeChannelCreated, entry)
	fx.reply(connID, TypeChannelCreationConfirmed, CreationConfirmedPayload{
		ChannelID: id,
		Success:   true,
		Channel:   entry,
	})
	fx.emit(events.ChannelCreatedEvent{
		ChannelID:   id,
		ChannelName: rec.info.Name,
		CreatedBy:   identity,
		Timestamp:   now,
	})
	s.logger.Info("Channel created", "channelID", id, "identity", identity)
	return rec.info, fx, nil
}

// Join moves the caller into channelID, leaving its previous channel in the
// same step. Joining the current channel again only confirms to the caller.
func (s *State) Join(connID, channelID string) (int, Effects, error) {
	var fx Effects
	identity, ok := s.participants.identityOf(connID)
	if !ok {
		return 0, fx, nil
	}
	if channelID == "" {
		return 0, fx, ErrChannelIDEmpty
	}

	prev := s.channels.channelOf(identity)
	count, changed, err := s.channels.join(identity, channelID)
	if err != nil {
		return 0, fx, fmt.Errorf("join %q: %w", channelID, err)
	}
	rec, _ := s.channels.get(channelID)
	joined := ChannelJoinedPayload{
		ChannelID:   channelID,
		ChannelName: rec.info.Name,
		MemberCount: count,
	}
	if !changed {
		fx.reply(connID, TypeChannelJoined, joined)
		return count, fx, nil
	}

	if prev != "" {
		s.sessions.dropIdentityInChannel(identity, prev)
		fx.send(s.participants.connsOf(s.channels.membersOf(prev)), TypeParticipantLeftChannel, MemberLeftPayload{
			ChannelID: prev,
			Identity:  identity,
		})
	}
	fx.reply(connID, TypeChannelJoined, joined)
	members := s.channels.membersOf(channelID)
	fx.send(s.participants.connsOf(members), TypeChannelMembers, ChannelMembersPayload{
		ChannelID: channelID,
		Joined:    identity,
		Members:   members,
	})
	fx.merge(s.membershipChanged(identity))
	return count, fx, nil
}

// Leave removes the caller from its current channel. The channel is kept
// even when it becomes empty.
func (s *State) Leave(connID string) Effects {
	var fx Effects
	identity, ok := s.participants.identityOf(connID)
	if !ok {
		return fx
	}
	prev, ok := s.channels.leave(identity)
	if !ok {
		return fx
	}
	s.sessions.dropIdentityInChannel(identity, prev)
	fx.send(s.participants.connsOf(s.channels.membersOf(prev)), TypeParticipantLeftChannel, MemberLeftPayload{
		ChannelID: prev,
		Identity:  identity,
	})
	fx.reply(connID, TypeChannelLeft, ChannelLeftPayload{ChannelID: prev})
	fx.merge(s.membershipChanged(identity))
	return fx
}

// membershipChanged broadcasts the participant list and channel stats after
// a join or leave.
func (s *State) membershipChanged(identity string) Effects {
	var fx Effects
	all := s.participants.connIDs("")
	fx.send(all, TypeParticipantsList, ParticipantsListPayload{
		Reason:       ReasonChannelChanged,
		Identity:     identity,
		Participants: s.ParticipantsSnapshot(),
	})
	fx.send(all, TypeChannelStats, s.ChannelStatsSnapshot())
	return fx
}

// Emergency pushes a text alert to every other registered participant.
func (s *State) Emergency(connID string, req EmergencyRequest) (Effects, error) {
	var fx Effects
	identity, ok := s.participants.identityOf(connID)
	if !ok {
		return fx, ErrNotRegistered
	}
	if err := ValidateMessage(req.Text); err != nil {
		return fx, err
	}
	s.counters.emergencies++
	fx.send(s.participants.connIDs(identity), TypeEmergencyMessage, EmergencyPayload{
		From:      identity,
		Text:      req.Text,
		Timestamp: s.clock.Now(),
	})
	s.logger.Warn("Emergency message broadcast", "identity", identity)
	return fx, nil
}

// Snapshot answers an on-demand snapshot request to the caller only.
func (s *State) Snapshot(connID string, kind SnapshotKind) (Effects, error) {
	var fx Effects
	switch kind {
	case SnapshotParticipants:
		fx.reply(connID, TypeParticipantsList, ParticipantsListPayload{
			Reason:       ReasonRequested,
			Participants: s.ParticipantsSnapshot(),
		})
	case SnapshotChannels:
		fx.reply(connID, TypeChannelsList, ChannelsListPayload{Channels: s.ChannelsSnapshot()})
	case SnapshotStats:
		fx.reply(connID, TypeChannelStats, s.ChannelStatsSnapshot())
	default:
		return fx, fmt.Errorf("%w: %s", errUnknownSnapshot, kind)
	}
	return fx, nil
}

// Ping answers a keepalive.
func (s *State) Ping(connID string) Effects {
	var fx Effects
	fx.reply(connID, TypePong, struct {
		Timestamp time.Time `json:"timestamp"`
	}{Timestamp: s.clock.Now()})
	return fx
}
