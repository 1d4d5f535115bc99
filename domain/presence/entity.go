package presence

import "time"

// StatusOnline is the only status a registered participant can have.
// Disconnected participants are removed, not marked offline.
const StatusOnline = "online"

// ChannelKind distinguishes permanent channels from user-created ones.
type ChannelKind string

const (
	ChannelKindDefault ChannelKind = "default"
	ChannelKindCustom  ChannelKind = "custom"
)

// Participant represents a registered endpoint.
type Participant struct {
	Identity       string    `json:"identity"`
	ConnID         string    `json:"-"`
	Status         string    `json:"status"`
	CurrentChannel string    `json:"current_channel,omitempty"`
	JoinedAt       time.Time `json:"joined_at"`
}

// Channel represents a default or custom channel.
type Channel struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Kind        ChannelKind `json:"kind"`
	Creator     string      `json:"creator,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	AutoDelete  bool        `json:"auto_delete"`
	MaxMembers  int         `json:"max_members,omitempty"`
	Visibility  string      `json:"visibility,omitempty"`
	Description string      `json:"description,omitempty"`
	HasPassword bool        `json:"has_password"`
}

// Message is one entry of a private conversation.
type Message struct {
	ID        string    `json:"id"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
	Delivered bool      `json:"delivered"`
}

// ParticipantEntry is one row of the participant snapshot.
type ParticipantEntry struct {
	Identity       string    `json:"identity"`
	Status         string    `json:"status"`
	CurrentChannel *string   `json:"currentChannel"`
	ConnectedSince time.Time `json:"connectedSince"`
}

// ChannelEntry is one row of the channel snapshot.
type ChannelEntry struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Kind        ChannelKind `json:"kind"`
	MemberCount int         `json:"memberCount"`
	CreatedAt   time.Time   `json:"createdAt"`
	Creator     string      `json:"creator,omitempty"`
	AutoDelete  bool        `json:"autoDelete"`
	MaxMembers  int         `json:"maxMembers,omitempty"`
	Visibility  string      `json:"visibility,omitempty"`
	Description string      `json:"description,omitempty"`
	HasPassword bool        `json:"hasPassword"`
}

// ChannelStats maps a channel id to its member count.
type ChannelStats map[string]int
