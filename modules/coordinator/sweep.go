package coordinator

import (
	"fmt"
	"time"

	"github.com/example/signaling-coordinator/domain/presence"
	"github.com/example/signaling-coordinator/events"
)

const reasonIdle = "idle"

// SweepReport summarizes one eviction sweep.
type SweepReport struct {
	StartedAt            time.Time
	ChannelsDeleted      int
	MessagesPruned       int
	ConversationsDeleted int
	SessionsExpired      int
	TypingCleared        int
	ItemErrors           int
}

// Empty reports whether the sweep removed nothing and hit no errors.
func (r SweepReport) Empty() bool {
	return r.ChannelsDeleted == 0 && r.MessagesPruned == 0 && r.ConversationsDeleted == 0 &&
		r.SessionsExpired == 0 && r.TypingCleared == 0 && r.ItemErrors == 0
}

// Sweep runs one eviction pass: idle custom channels, aged messages, expired
// negotiation sessions and orphan typing states, in that order.
func (s *State) Sweep() (SweepReport, Effects) {
	var fx Effects
	now := s.clock.Now()
	report := SweepReport{StartedAt: now}

	fx.merge(s.sweepChannels(now, &report))
	report.MessagesPruned, report.ConversationsDeleted = s.messages.prune(now, s.cfg.MessageRetention)
	report.SessionsExpired = s.sessions.expire(now, s.cfg.NegotiationTTL)
	report.TypingCleared = s.sweepTyping()

	s.lastSweep = now
	fx.emit(events.SweepCompletedEvent{
		ChannelsDeleted:      report.ChannelsDeleted,
		MessagesPruned:       report.MessagesPruned,
		ConversationsDeleted: report.ConversationsDeleted,
		SessionsExpired:      report.SessionsExpired,
		TypingCleared:        report.TypingCleared,
		ItemErrors:           report.ItemErrors,
		Timestamp:            now,
	})
	return report, fx
}

func (s *State) sweepChannels(now time.Time, report *SweepReport) Effects {
	var fx Effects
	var deleted []presence.Channel

	for _, id := range s.channels.customIDs() {
		rec, ok := s.channels.get(id)
		if !ok {
			continue
		}
		if err := s.verifyMembers(rec); err != nil {
			report.ItemErrors++
			s.logger.Warn("Sweep skipped channel", "channelID", id, "error", err)
			continue
		}
		if !rec.info.AutoDelete || rec.count() > 0 {
			continue
		}
		if now.Sub(rec.info.CreatedAt) <= s.cfg.ChannelIdleTTL {
			continue
		}
		s.channels.remove(id)
		deleted = append(deleted, rec.info)
	}
	if len(deleted) == 0 {
		return fx
	}

	all := s.participants.connIDs("")
	for _, ch := range deleted {
		fx.send(all, TypeChannelDeleted, ChannelDeletedPayload{
			ChannelID:   ch.ID,
			ChannelName: ch.Name,
			Reason:      reasonIdle,
		})
		fx.emit(events.ChannelDeletedEvent{
			ChannelID:   ch.ID,
			ChannelName: ch.Name,
			Reason:      reasonIdle,
			Timestamp:   now,
		})
		s.logger.Info("Channel deleted", "channelID", ch.ID, "reason", reasonIdle)
	}
	fx.send(all, TypeChannelsList, ChannelsListPayload{Channels: s.ChannelsSnapshot()})
	fx.send(all, TypeChannelStats, s.ChannelStatsSnapshot())
	report.ChannelsDeleted = len(deleted)
	return fx
}

// verifyMembers checks the channel's member set against the participant
// registry and the membership index, repairing dangling entries. A repaired
// channel is reported as an error and left for the next sweep.
func (s *State) verifyMembers(rec *channelRecord) error {
	var firstErr error
	for id := range rec.members {
		if _, ok := s.participants.lookup(id); !ok {
			delete(rec.members, id)
			if s.channels.memberOf[id] == rec.info.ID {
				delete(s.channels.memberOf, id)
			}
			if firstErr == nil {
				firstErr = fmt.Errorf("%w: %s", errDanglingMember, id)
			}
			continue
		}
		if s.channels.memberOf[id] != rec.info.ID {
			delete(rec.members, id)
			if firstErr == nil {
				firstErr = fmt.Errorf("%w: %s", errMembershipDrift, id)
			}
		}
	}
	return firstErr
}

// sweepTyping clears typing states whose owner or target is gone.
func (s *State) sweepTyping() int {
	cleared := 0
	for from, st := range s.messages.typing {
		_, ownerOnline := s.participants.lookup(from)
		_, targetOnline := s.participants.lookup(st.To)
		if !ownerOnline || !targetOnline {
			delete(s.messages.typing, from)
			cleared++
		}
	}
	return cleared
}
