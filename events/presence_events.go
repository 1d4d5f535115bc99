package events

import (
	"time"

	"github.com/go-monolith/mono/pkg/helper"
)

// ParticipantJoinedEvent is emitted when a new identity registers.
// Reconnects of a known identity do not emit it.
type ParticipantJoinedEvent struct {
	Identity  string    `json:"identity"`
	Timestamp time.Time `json:"timestamp"`
}

// ParticipantLeftEvent is emitted when a participant is torn down.
type ParticipantLeftEvent struct {
	Identity  string    `json:"identity"`
	ChannelID string    `json:"channel_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ChannelCreatedEvent is emitted when a custom channel is created.
type ChannelCreatedEvent struct {
	ChannelID   string    `json:"channel_id"`
	ChannelName string    `json:"channel_name"`
	CreatedBy   string    `json:"created_by"`
	Timestamp   time.Time `json:"timestamp"`
}

// ChannelDeletedEvent is emitted when the sweep evicts a custom channel.
type ChannelDeletedEvent struct {
	ChannelID   string    `json:"channel_id"`
	ChannelName string    `json:"channel_name"`
	Reason      string    `json:"reason"`
	Timestamp   time.Time `json:"timestamp"`
}

// SweepCompletedEvent summarizes one eviction sweep.
type SweepCompletedEvent struct {
	ChannelsDeleted      int       `json:"channels_deleted"`
	MessagesPruned       int       `json:"messages_pruned"`
	ConversationsDeleted int       `json:"conversations_deleted"`
	SessionsExpired      int       `json:"sessions_expired"`
	TypingCleared        int       `json:"typing_cleared"`
	ItemErrors           int       `json:"item_errors"`
	Timestamp            time.Time `json:"timestamp"`
}

// Event definitions for the coordinator domain.
var (
	ParticipantJoinedV1 = helper.EventDefinition[ParticipantJoinedEvent](
		"coordinator",
		"ParticipantJoined",
		"v1",
	)

	ParticipantLeftV1 = helper.EventDefinition[ParticipantLeftEvent](
		"coordinator",
		"ParticipantLeft",
		"v1",
	)

	ChannelCreatedV1 = helper.EventDefinition[ChannelCreatedEvent](
		"coordinator",
		"ChannelCreated",
		"v1",
	)

	ChannelDeletedV1 = helper.EventDefinition[ChannelDeletedEvent](
		"coordinator",
		"ChannelDeleted",
		"v1",
	)

	SweepCompletedV1 = helper.EventDefinition[SweepCompletedEvent](
		"coordinator",
		"SweepCompleted",
		"v1",
	)
)
