package coordinator

import (
	"encoding/json"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/example/signaling-coordinator/domain/presence"
)

// Validation constants
const (
	MaxIdentityLength    = 50
	MaxChannelNameLength = 100
	MaxMessageLength     = 5000
)

// Caller input errors. They are reported to the requesting connection only.
var (
	ErrIdentityEmpty   = errors.New("identity cannot be empty")
	ErrIdentityTooLong = errors.New("identity exceeds maximum length")
	ErrIdentityInvalid = errors.New("identity contains invalid characters")
	ErrNotRegistered   = errors.New("connection is not registered")
	ErrChannelIDEmpty  = errors.New("channel id is required")
	ErrUnknownChannel  = errors.New("unknown channel")
	ErrChannelName     = errors.New("channel name contains invalid characters")
	ErrRecipientEmpty  = errors.New("recipient is required")
	ErrMessageEmpty    = errors.New("message text cannot be empty")
	ErrMessageTooLong  = errors.New("message exceeds maximum length")
	ErrEngineStopped   = errors.New("coordinator engine is not running")
	ErrQueryFailed     = errors.New("coordinator query failed")
	errDanglingMember  = errors.New("channel member is not a registered participant")
	errMembershipDrift = errors.New("membership index disagrees with channel member set")
	errUnknownSnapshot = errors.New("unknown snapshot kind")
)

// SignalKind is one of the three negotiation message kinds.
type SignalKind string

const (
	SignalOffer     SignalKind = "offer"
	SignalAnswer    SignalKind = "answer"
	SignalCandidate SignalKind = "ice-candidate"
)

// DeliveryOutcome is reported to the sender of a private message.
type DeliveryOutcome string

const (
	OutcomeDelivered        DeliveryOutcome = "delivered"
	OutcomeRecipientOffline DeliveryOutcome = "recipientOffline"
)

// SnapshotKind selects an on-demand snapshot.
type SnapshotKind string

const (
	SnapshotParticipants SnapshotKind = "participants"
	SnapshotChannels     SnapshotKind = "channels"
	SnapshotStats        SnapshotKind = "stats"
)

// Reasons attached to participant list broadcasts.
const (
	ReasonRegistered     = "registered"
	ReasonReconnected    = "reconnected"
	ReasonJoined         = "joined"
	ReasonLeft           = "left"
	ReasonChannelChanged = "channel-changed"
	ReasonRequested      = "requested"
)

// Inbound requests

// RegisterRequest is the payload of a register event.
type RegisterRequest struct {
	Identity string    `json:"identity"`
	JoinedAt time.Time `json:"joinedAt"`
}

// CreateChannelRequest describes a custom channel. Visibility and password
// fields are opaque metadata; the coordinator never enforces them.
type CreateChannelRequest struct {
	Name        string `json:"name"`
	Visibility  string `json:"visibility,omitempty"`
	Description string `json:"description,omitempty"`
	Password    string `json:"password,omitempty"`
	HasPassword bool   `json:"hasPassword,omitempty"`
	AutoDelete  *bool  `json:"autoDelete,omitempty"`
	MaxMembers  int    `json:"maxMembers,omitempty"`
}

// JoinChannelRequest is the payload of a join-channel event.
type JoinChannelRequest struct {
	ChannelID   string `json:"channelId"`
	ChannelName string `json:"channelName,omitempty"`
}

// SignalRequest carries an opaque negotiation blob.
type SignalRequest struct {
	ChannelID string          `json:"channelId,omitempty"`
	To        string          `json:"to,omitempty"`
	Payload   json.RawMessage `json:"payload"`
}

// PrivateMessageRequest is the payload of a private-message event.
type PrivateMessageRequest struct {
	To   string `json:"to"`
	Text string `json:"text"`
	ID   string `json:"id,omitempty"`
}

// TypingRequest is the payload of typing-start and typing-stop events.
type TypingRequest struct {
	To string `json:"to"`
}

// HistoryRequest is the payload of a get-private-messages event.
type HistoryRequest struct {
	With  string `json:"with"`
	Limit int    `json:"limit,omitempty"`
}

// EmergencyRequest is the payload of an emergency-message event.
type EmergencyRequest struct {
	Text string `json:"text"`
}

// Outbound payloads

// ParticipantsListPayload is pushed whenever the participant list changes.
type ParticipantsListPayload struct {
	Reason       string                      `json:"reason"`
	Identity     string                      `json:"identity,omitempty"`
	Participants []presence.ParticipantEntry `json:"participants"`
}

// ChannelsListPayload carries the channel snapshot.
type ChannelsListPayload struct {
	Channels []presence.ChannelEntry `json:"channels"`
}

// CreationConfirmedPayload answers a create-channel request.
type CreationConfirmedPayload struct {
	ChannelID string                `json:"channelId"`
	Success   bool                  `json:"success"`
	Channel   presence.ChannelEntry `json:"channel"`
}

// ChannelDeletedPayload is broadcast once per evicted channel.
type ChannelDeletedPayload struct {
	ChannelID   string `json:"channelId"`
	ChannelName string `json:"channelName"`
	Reason      string `json:"reason"`
}

// ChannelJoinedPayload confirms a join to the caller.
type ChannelJoinedPayload struct {
	ChannelID   string `json:"channelId"`
	ChannelName string `json:"channelName"`
	MemberCount int    `json:"memberCount"`
}

// ChannelLeftPayload confirms a leave to the caller.
type ChannelLeftPayload struct {
	ChannelID string `json:"channelId"`
}

// ChannelMembersPayload is sent to the members of a channel after a join.
type ChannelMembersPayload struct {
	ChannelID string   `json:"channelId"`
	Joined    string   `json:"joined"`
	Members   []string `json:"members"`
}

// MemberLeftPayload is sent to the remaining members of a channel.
type MemberLeftPayload struct {
	ChannelID string `json:"channelId"`
	Identity  string `json:"identity"`
}

// SignalPayload is a relayed negotiation or fallback channel message.
type SignalPayload struct {
	From      string          `json:"from"`
	ChannelID string          `json:"channelId"`
	To        string          `json:"to,omitempty"`
	Payload   json.RawMessage `json:"payload"`
}

// PrivateMessagePayload is pushed to an online recipient.
type PrivateMessagePayload struct {
	ID        string    `json:"id"`
	From      string    `json:"from"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// DeliveryStatusPayload reports the outcome of a private message.
type DeliveryStatusPayload struct {
	MessageID string          `json:"messageId"`
	To        string          `json:"to"`
	Outcome   DeliveryOutcome `json:"outcome"`
	At        time.Time       `json:"at"`
}

// TypingPayload carries a composing indicator.
type TypingPayload struct {
	From string `json:"from"`
}

// HistoryPayload answers a get-private-messages request.
type HistoryPayload struct {
	With     string             `json:"with"`
	Messages []presence.Message `json:"messages"`
}

// EmergencyPayload is broadcast to every other participant.
type EmergencyPayload struct {
	From      string    `json:"from"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Request-reply service types

// ListParticipantsRequest is the request for the list-participants service.
type ListParticipantsRequest struct{}

// ListParticipantsResponse is the response for the list-participants service.
type ListParticipantsResponse struct {
	Participants []presence.ParticipantEntry `json:"participants"`
}

// ListChannelsRequest is the request for the list-channels service.
type ListChannelsRequest struct{}

// ListChannelsResponse is the response for the list-channels service.
type ListChannelsResponse struct {
	Channels []presence.ChannelEntry `json:"channels"`
	Stats    presence.ChannelStats  `json:"stats"`
}

// ChannelMembersRequest is the request for the channel-members service.
type ChannelMembersRequest struct {
	ChannelID string `json:"channel_id"`
}

// ChannelMembersResponse is the response for the channel-members service.
type ChannelMembersResponse struct {
	Found   bool     `json:"found"`
	Members []string `json:"members"`
}

// StatsRequest is the request for the coordinator-stats service.
type StatsRequest struct{}

// PrivateHistoryRequest is the request for the private-history service.
type PrivateHistoryRequest struct {
	A     string `json:"a"`
	B     string `json:"b"`
	Limit int    `json:"limit"`
}

// PrivateHistoryResponse is the response for the private-history service.
type PrivateHistoryResponse struct {
	Messages []presence.Message `json:"messages"`
}

// ValidateIdentity validates a participant identity.
func ValidateIdentity(identity string) error {
	if identity == "" {
		return ErrIdentityEmpty
	}
	if len(identity) > MaxIdentityLength {
		return ErrIdentityTooLong
	}
	if !utf8.ValidString(identity) {
		return ErrIdentityInvalid
	}
	return nil
}

// ValidateMessage validates private and emergency message text.
func ValidateMessage(text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrMessageEmpty
	}
	if len(text) > MaxMessageLength {
		return ErrMessageTooLong
	}
	return nil
}

// ValidateChannelName rejects display names that are not valid UTF-8.
func ValidateChannelName(name string) error {
	if !utf8.ValidString(name) {
		return ErrChannelName
	}
	return nil
}

// channelName trims and bounds a valid display name on a rune boundary,
// falling back to the id.
func channelName(name, id string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return id
	}
	if len(name) > MaxChannelNameLength {
		name = name[:MaxChannelNameLength]
		for !utf8.ValidString(name) {
			name = name[:len(name)-1]
		}
	}
	return name
}
