package coordinator

// Outbound message types pushed to connections.
const (
	TypeParticipantsList         = "participants-list"
	TypeChannelsList             = "channels-list"
	TypeChannelStats             = "channel-stats"
	TypeChannelCreated           = "channel-created"
	TypeChannelCreationConfirmed = "channel-creation-confirmed"
	TypeChannelDeleted           = "channel-deleted"
	TypeChannelJoined            = "channel-joined"
	TypeChannelLeft              = "channel-left"
	TypeChannelMembers           = "channel-members"
	TypeParticipantLeftChannel   = "participant-left-channel"
	TypePrivateMessage           = "private-message"
	TypePrivateMessageStatus     = "private-message-status"
	TypeTypingStart              = "private-typing-start"
	TypeTypingStop               = "private-typing-stop"
	TypePrivateHistory           = "private-messages-history"
	TypeChannelMessage           = "channel-message"
	TypeEmergencyMessage         = "emergency-message"
	TypePong                     = "pong"
	TypeError                    = "error"
	TypeServerShutdown           = "server-shutdown"
)

// Delivery is one outbound message addressed to a set of connections.
type Delivery struct {
	ConnIDs []string
	Type    string
	Payload any
	Error   string
}

// Effects is the outcome of one state transition: what to push to which
// connections and which domain events to publish. Effects are produced under
// the engine's serialized path and carried out after it.
type Effects struct {
	Deliveries []Delivery
	Events     []any
}

func (fx *Effects) send(connIDs []string, msgType string, payload any) {
	if len(connIDs) == 0 {
		return
	}
	fx.Deliveries = append(fx.Deliveries, Delivery{
		ConnIDs: connIDs,
		Type:    msgType,
		Payload: payload,
	})
}

func (fx *Effects) reply(connID, msgType string, payload any) {
	if connID == "" {
		return
	}
	fx.send([]string{connID}, msgType, payload)
}

func (fx *Effects) fail(connID string, err error) {
	if connID == "" || err == nil {
		return
	}
	fx.Deliveries = append(fx.Deliveries, Delivery{
		ConnIDs: []string{connID},
		Type:    TypeError,
		Error:   err.Error(),
	})
}

func (fx *Effects) emit(event any) {
	fx.Events = append(fx.Events, event)
}

func (fx *Effects) merge(other Effects) {
	fx.Deliveries = append(fx.Deliveries, other.Deliveries...)
	fx.Events = append(fx.Events, other.Events...)
}

// Empty reports whether the effects carry nothing.
func (fx Effects) Empty() bool {
	return len(fx.Deliveries) == 0 && len(fx.Events) == 0
}

// withError appends err as an error reply to connID.
func withError(fx Effects, connID string, err error) Effects {
	fx.fail(connID, err)
	return fx
}
