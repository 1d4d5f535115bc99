package coordinator

import (
	"time"

	"github.com/example/signaling-coordinator/domain/presence"
)

// ParticipantsSnapshot returns all participants ordered by identity.
func (s *State) ParticipantsSnapshot() []presence.ParticipantEntry {
	ids := s.participants.identities()
	out := make([]presence.ParticipantEntry, 0, len(ids))
	for _, id := range ids {
		p, _ := s.participants.lookup(id)
		entry := presence.ParticipantEntry{
			Identity:       p.Identity,
			Status:         p.Status,
			ConnectedSince: p.JoinedAt,
		}
		if ch := s.channels.channelOf(id); ch != "" {
			entry.CurrentChannel = &ch
		}
		out = append(out, entry)
	}
	return out
}

// ChannelsSnapshot returns default channels in configured order followed by
// custom channels in creation order.
func (s *State) ChannelsSnapshot() []presence.ChannelEntry {
	ids := s.channels.orderedIDs()
	out := make([]presence.ChannelEntry, 0, len(ids))
	for _, id := range ids {
		if rec, ok := s.channels.get(id); ok {
			out = append(out, s.channelEntry(rec))
		}
	}
	return out
}

// ChannelStatsSnapshot returns the member count of every channel.
func (s *State) ChannelStatsSnapshot() presence.ChannelStats {
	return s.channels.stats()
}

func (s *State) channelEntry(rec *channelRecord) presence.ChannelEntry {
	return presence.ChannelEntry{
		ID:          rec.info.ID,
		Name:        rec.info.Name,
		Kind:        rec.info.Kind,
		MemberCount: rec.count(),
		CreatedAt:   rec.info.CreatedAt,
		Creator:     rec.info.Creator,
		AutoDelete:  rec.info.AutoDelete,
		MaxMembers:  rec.info.MaxMembers,
		Visibility:  rec.info.Visibility,
		Description: rec.info.Description,
		HasPassword: rec.info.HasPassword,
	}
}

// Stats is a point-in-time summary of the coordinator.
type Stats struct {
	Participants        int                   `json:"participants"`
	Channels            int                   `json:"channels"`
	CustomChannels      int                   `json:"customChannels"`
	ChannelStats        presence.ChannelStats `json:"channelStats"`
	Conversations       int                   `json:"conversations"`
	PrivateMessages     int                   `json:"privateMessages"`
	ActiveTyping        int                   `json:"activeTyping"`
	NegotiationSessions int                   `json:"negotiationSessions"`
	OffersRelayed       uint64                `json:"offersRelayed"`
	OffersDropped       uint64                `json:"offersDropped"`
	SignalsRelayed      uint64                `json:"signalsRelayed"`
	MessagesSent        uint64                `json:"messagesSent"`
	Emergencies         uint64                `json:"emergencies"`
	LastSweep           *time.Time            `json:"lastSweep,omitempty"`
	Uptime              string                `json:"uptime"`
}

// Stats summarizes the current state.
func (s *State) Stats() Stats {
	conversations, messages := s.messages.totals()
	st := Stats{
		Participants:        s.participants.count(),
		Channels:            len(s.channels.channels),
		CustomChannels:      len(s.channels.customIDs()),
		ChannelStats:        s.ChannelStatsSnapshot(),
		Conversations:       conversations,
		PrivateMessages:     messages,
		ActiveTyping:        len(s.messages.typing),
		NegotiationSessions: s.sessions.len(),
		OffersRelayed:       s.counters.offersRelayed,
		OffersDropped:       s.counters.offersDropped,
		SignalsRelayed:      s.counters.signalsRelayed,
		MessagesSent:        s.counters.privateMessages,
		Emergencies:         s.counters.emergencies,
		Uptime:              s.clock.Since(s.startedAt).Truncate(time.Second).String(),
	}
	if !s.lastSweep.IsZero() {
		last := s.lastSweep
		st.LastSweep = &last
	}
	return st
}
