package coordinator

import (
	"time"
)

// pairKey identifies a negotiation between two participants in one channel.
// a and b are stored in sorted order so the key is direction independent.
type pairKey struct {
	channel string
	a, b    string
}

func newPairKey(channel, x, y string) pairKey {
	if y < x {
		x, y = y, x
	}
	return pairKey{channel: channel, a: x, b: y}
}

func (k pairKey) involves(identity string) bool {
	return k.a == identity || k.b == identity
}

// NegotiationSession marks an in-flight offer between a pair.
type NegotiationSession struct {
	ChannelID string
	Initiator string
	Peer      string
	CreatedAt time.Time
}

type sessionTable struct {
	sessions map[pairKey]*NegotiationSession
}

func newSessionTable() *sessionTable {
	return &sessionTable{sessions: make(map[pairKey]*NegotiationSession)}
}

// active reports whether an unexpired session exists for key.
func (t *sessionTable) active(key pairKey, now time.Time, ttl time.Duration) bool {
	s, ok := t.sessions[key]
	if !ok {
		return false
	}
	return now.Sub(s.CreatedAt) < ttl
}

func (t *sessionTable) open(key pairKey, s *NegotiationSession) {
	t.sessions[key] = s
}

// dropIdentity removes every session the identity takes part in.
func (t *sessionTable) dropIdentity(identity string) int {
	dropped := 0
	for k := range t.sessions {
		if k.involves(identity) {
			delete(t.sessions, k)
			dropped++
		}
	}
	return dropped
}

// dropIdentityInChannel removes the identity's sessions scoped to one channel.
func (t *sessionTable) dropIdentityInChannel(identity, channelID string) int {
	dropped := 0
	for k := range t.sessions {
		if k.channel == channelID && k.involves(identity) {
			delete(t.sessions, k)
			dropped++
		}
	}
	return dropped
}

// expire removes sessions older than ttl.
func (t *sessionTable) expire(now time.Time, ttl time.Duration) int {
	expired := 0
	for k, s := range t.sessions {
		if now.Sub(s.CreatedAt) >= ttl {
			delete(t.sessions, k)
			expired++
		}
	}
	return expired
}

func (t *sessionTable) len() int {
	return len(t.sessions)
}

// relayScope resolves the sender and target channel of a relayed message.
// An empty channelID means the sender's current channel. ok is false when
// the sender is unregistered or not a member of the channel.
func (s *State) relayScope(connID, channelID string) (identity, channel string, ok bool) {
	identity, ok = s.participants.identityOf(connID)
	if !ok {
		return "", "", false
	}
	current := s.channels.channelOf(identity)
	if current == "" {
		return "", "", false
	}
	if channelID == "" {
		channelID = current
	}
	if channelID != current {
		return "", "", false
	}
	return identity, channelID, true
}

// relayTargets returns the co-members addressed by a relay. A non-empty to
// narrows the set to that one member.
func (s *State) relayTargets(identity, channelID, to string) []string {
	members := s.channels.membersOf(channelID)
	targets := make([]string, 0, len(members))
	for _, m := range members {
		if m == identity {
			continue
		}
		if to != "" && m != to {
			continue
		}
		targets = append(targets, m)
	}
	return targets
}

// Relay forwards an offer, answer or ICE candidate to co-members of the
// sender's channel. Offers are suppressed per pair while a negotiation
// session between the two is active; answers and candidates always pass.
// It returns the number of connections the message was forwarded to.
func (s *State) Relay(connID string, kind SignalKind, req SignalRequest) (int, Effects) {
	var fx Effects
	identity, channelID, ok := s.relayScope(connID, req.ChannelID)
	if !ok {
		return 0, fx
	}
	targets := s.relayTargets(identity, channelID, req.To)

	if kind == SignalOffer {
		now := s.clock.Now()
		admitted := targets[:0:0]
		for _, peer := range targets {
			key := newPairKey(channelID, identity, peer)
			if s.sessions.active(key, now, s.cfg.NegotiationTTL) {
				s.counters.offersDropped++
				continue
			}
			s.sessions.open(key, &NegotiationSession{
				ChannelID: channelID,
				Initiator: identity,
				Peer:      peer,
				CreatedAt: now,
			})
			admitted = append(admitted, peer)
		}
		targets = admitted
	}

	conns := s.participants.connsOf(targets)
	if len(conns) == 0 {
		return 0, fx
	}
	fx.send(conns, string(kind), SignalPayload{
		From:      identity,
		ChannelID: channelID,
		To:        req.To,
		Payload:   req.Payload,
	})
	if kind == SignalOffer {
		s.counters.offersRelayed += uint64(len(conns))
	}
	s.counters.signalsRelayed += uint64(len(conns))
	return len(conns), fx
}

// RelayChannelMessage forwards a fallback text message to the other members
// of the sender's channel.
func (s *State) RelayChannelMessage(connID string, req SignalRequest) (int, Effects) {
	var fx Effects
	identity, channelID, ok := s.relayScope(connID, req.ChannelID)
	if !ok {
		return 0, fx
	}
	conns := s.participants.connsOf(s.relayTargets(identity, channelID, req.To))
	fx.send(conns, TypeChannelMessage, SignalPayload{
		From:      identity,
		ChannelID: channelID,
		To:        req.To,
		Payload:   req.Payload,
	})
	return len(conns), fx
}
