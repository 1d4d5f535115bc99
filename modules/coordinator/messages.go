package coordinator

import (
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/example/signaling-coordinator/domain/presence"
)

// conversationKey is the unordered pair key of a private conversation.
func conversationKey(x, y string) string {
	if y < x {
		x, y = y, x
	}
	return x + "\x1f" + y
}

type typingState struct {
	To    string
	Since time.Time
}

// messageStore holds capped private conversations and typing indicators.
// The number of conversations is bounded by an LRU; the least recently
// used conversation is dropped when the bound is reached.
type messageStore struct {
	conversations *lru.Cache[string, []presence.Message]
	maxMessages   int
	typing        map[string]typingState
}

func newMessageStore(maxConversations, maxMessages int) (*messageStore, error) {
	cache, err := lru.New[string, []presence.Message](maxConversations)
	if err != nil {
		return nil, fmt.Errorf("failed to create conversation cache: %w", err)
	}
	return &messageStore{
		conversations: cache,
		maxMessages:   maxMessages,
		typing:        make(map[string]typingState),
	}, nil
}

// append stores msg and drops the oldest entries beyond the cap.
func (m *messageStore) append(msg presence.Message) (dropped int) {
	key := conversationKey(msg.From, msg.To)
	msgs, _ := m.conversations.Get(key)
	msgs = append(msgs, msg)
	if over := len(msgs) - m.maxMessages; over > 0 {
		msgs = append([]presence.Message(nil), msgs[over:]...)
		dropped = over
	}
	m.conversations.Add(key, msgs)
	return dropped
}

// history returns up to limit of the most recent messages, oldest first.
func (m *messageStore) history(a, b string, limit int) []presence.Message {
	msgs, ok := m.conversations.Peek(conversationKey(a, b))
	if !ok || len(msgs) == 0 {
		return []presence.Message{}
	}
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]presence.Message, len(msgs))
	copy(out, msgs)
	return out
}

// prune drops messages with age >= retention and deletes conversations left empty.
func (m *messageStore) prune(now time.Time, retention time.Duration) (pruned, deleted int) {
	for _, key := range m.conversations.Keys() {
		msgs, ok := m.conversations.Peek(key)
		if !ok {
			continue
		}
		kept := msgs[:0:0]
		for _, msg := range msgs {
			if now.Sub(msg.Timestamp) < retention {
				kept = append(kept, msg)
			}
		}
		pruned += len(msgs) - len(kept)
		if len(kept) == 0 {
			m.conversations.Remove(key)
			deleted++
			continue
		}
		if len(kept) != len(msgs) {
			m.conversations.Add(key, kept)
		}
	}
	return pruned, deleted
}

func (m *messageStore) totals() (conversations, messages int) {
	for _, key := range m.conversations.Keys() {
		if msgs, ok := m.conversations.Peek(key); ok {
			messages += len(msgs)
		}
	}
	return m.conversations.Len(), messages
}

func (m *messageStore) setTyping(from, to string, now time.Time) {
	m.typing[from] = typingState{To: to, Since: now}
}

func (m *messageStore) clearTyping(from string) (typingState, bool) {
	st, ok := m.typing[from]
	if ok {
		delete(m.typing, from)
	}
	return st, ok
}

// SendPrivate stores a private message and pushes it to the recipient when
// online. The sender always gets exactly one status reply or error.
func (s *State) SendPrivate(connID string, req PrivateMessageRequest) (DeliveryOutcome, Effects, error) {
	var fx Effects
	identity, ok := s.participants.identityOf(connID)
	if !ok {
		return "", fx, ErrNotRegistered
	}
	if req.To == "" {
		return "", fx, ErrRecipientEmpty
	}
	if err := ValidateMessage(req.Text); err != nil {
		return "", fx, err
	}

	now := s.clock.Now()
	id := req.ID
	if id == "" {
		id = s.newID()
	}
	recipientConn, online := s.participants.connOf(req.To)
	msg := presence.Message{
		ID:        id,
		From:      identity,
		To:        req.To,
		Text:      req.Text,
		Timestamp: now,
		Delivered: online,
	}
	if dropped := s.messages.append(msg); dropped > 0 {
		s.logger.Debug("Conversation cap reached", "from", identity, "to", req.To, "dropped", dropped)
	}
	s.messages.clearTyping(identity)
	s.counters.privateMessages++

	outcome := OutcomeRecipientOffline
	if online {
		outcome = OutcomeDelivered
		fx.reply(recipientConn, TypePrivateMessage, PrivateMessagePayload{
			ID:        id,
			From:      identity,
			Text:      req.Text,
			Timestamp: now,
		})
	}
	fx.reply(connID, TypePrivateMessageStatus, DeliveryStatusPayload{
		MessageID: id,
		To:        req.To,
		Outcome:   outcome,
		At:        now,
	})
	return outcome, fx, nil
}

// SetTyping records or clears a composing indicator and notifies the target
// when online. Indicators are never persisted as messages.
func (s *State) SetTyping(connID, to string, typing bool) Effects {
	var fx Effects
	identity, ok := s.participants.identityOf(connID)
	if !ok || to == "" {
		return fx
	}
	msgType := TypeTypingStop
	if typing {
		s.messages.setTyping(identity, to, s.clock.Now())
		msgType = TypeTypingStart
	} else {
		s.messages.clearTyping(identity)
	}
	if conn, online := s.participants.connOf(to); online {
		fx.reply(conn, msgType, TypingPayload{From: identity})
	}
	return fx
}

// History returns up to limit messages between a and b, oldest first.
// A non-positive limit selects the configured default.
func (s *State) History(a, b string, limit int) []presence.Message {
	if limit <= 0 {
		limit = s.cfg.DefaultHistoryLimit
	}
	return s.messages.history(a, b, limit)
}

// RequestHistory answers a get-private-messages request from a connection.
func (s *State) RequestHistory(connID string, req HistoryRequest) (Effects, error) {
	var fx Effects
	identity, ok := s.participants.identityOf(connID)
	if !ok {
		return fx, ErrNotRegistered
	}
	if req.With == "" {
		return fx, ErrRecipientEmpty
	}
	fx.reply(connID, TypePrivateHistory, HistoryPayload{
		With:     req.With,
		Messages: s.History(identity, req.With, req.Limit),
	})
	return fx, nil
}

// clearTypingFor drops every indicator owned by or aimed at identity. Targets
// still online get a stop notice for indicators identity owned.
func (s *State) clearTypingFor(identity string) Effects {
	var fx Effects
	if st, ok := s.messages.clearTyping(identity); ok {
		if conn, online := s.participants.connOf(st.To); online {
			fx.reply(conn, TypeTypingStop, TypingPayload{From: identity})
		}
	}
	for from, st := range s.messages.typing {
		if st.To == identity {
			delete(s.messages.typing, from)
		}
	}
	return fx
}
