package coordinator

import (
	"sort"
	"time"

	"github.com/example/signaling-coordinator/domain/presence"
)

type channelRecord struct {
	info    presence.Channel
	members map[string]struct{}
}

func (c *channelRecord) count() int {
	return len(c.members)
}

// channelRegistry owns channel metadata and membership. memberOf is the
// reverse index that guarantees a participant is in at most one channel.
type channelRegistry struct {
	channels map[string]*channelRecord
	defaults []string
	memberOf map[string]string
}

func newChannelRegistry(defaults []string, now time.Time) *channelRegistry {
	r := &channelRegistry{
		channels: make(map[string]*channelRecord),
		memberOf: make(map[string]string),
	}
	for _, id := range defaults {
		if id == "" {
			continue
		}
		if _, exists := r.channels[id]; exists {
			continue
		}
		r.defaults = append(r.defaults, id)
		r.channels[id] = &channelRecord{info: presence.Channel{
			ID:        id,
			Name:      id,
			Kind:      presence.ChannelKindDefault,
			CreatedAt: now,
		}}
	}
	return r
}

func (r *channelRegistry) get(channelID string) (*channelRecord, bool) {
	rec, ok := r.channels[channelID]
	return rec, ok
}

func (r *channelRegistry) exists(channelID string) bool {
	_, ok := r.channels[channelID]
	return ok
}

func (r *channelRegistry) createCustom(info presence.Channel) *channelRecord {
	info.Kind = presence.ChannelKindCustom
	rec := &channelRecord{info: info}
	r.channels[info.ID] = rec
	return rec
}

// join moves identity into channelID. changed is false when the identity was
// already a member of that channel.
func (r *channelRegistry) join(identity, channelID string) (count int, changed bool, err error) {
	rec, ok := r.channels[channelID]
	if !ok {
		return 0, false, ErrUnknownChannel
	}
	prev := r.memberOf[identity]
	if prev == channelID {
		if _, member := rec.members[identity]; member {
			return rec.count(), false, nil
		}
	}
	if prev != "" {
		if prevRec, ok := r.channels[prev]; ok {
			delete(prevRec.members, identity)
		}
	}
	if rec.members == nil {
		rec.members = make(map[string]struct{})
	}
	rec.members[identity] = struct{}{}
	r.memberOf[identity] = channelID
	return rec.count(), true, nil
}

// leave removes identity from its current channel, if any.
func (r *channelRegistry) leave(identity string) (string, bool) {
	prev, ok := r.memberOf[identity]
	if !ok {
		return "", false
	}
	delete(r.memberOf, identity)
	if rec, ok := r.channels[prev]; ok {
		delete(rec.members, identity)
	}
	return prev, true
}

func (r *channelRegistry) channelOf(identity string) string {
	return r.memberOf[identity]
}

// membersOf returns the sorted member identities of a channel.
func (r *channelRegistry) membersOf(channelID string) []string {
	rec, ok := r.channels[channelID]
	if !ok {
		return nil
	}
	members := make([]string, 0, len(rec.members))
	for id := range rec.members {
		members = append(members, id)
	}
	sort.Strings(members)
	return members
}

func (r *channelRegistry) count(channelID string) int {
	if rec, ok := r.channels[channelID]; ok {
		return rec.count()
	}
	return 0
}

// remove deletes a channel and any membership still pointing at it.
func (r *channelRegistry) remove(channelID string) {
	rec, ok := r.channels[channelID]
	if !ok {
		return
	}
	for id := range rec.members {
		if r.memberOf[id] == channelID {
			delete(r.memberOf, id)
		}
	}
	delete(r.channels, channelID)
}

func (r *channelRegistry) stats() presence.ChannelStats {
	stats := make(presence.ChannelStats, len(r.channels))
	for id, rec := range r.channels {
		stats[id] = rec.count()
	}
	return stats
}

// orderedIDs returns default channels in configured order followed by
// custom channels ordered by creation time.
func (r *channelRegistry) orderedIDs() []string {
	ids := make([]string, 0, len(r.channels))
	ids = append(ids, r.defaults...)
	return append(ids, r.customIDs()...)
}

func (r *channelRegistry) customIDs() []string {
	custom := make([]*channelRecord, 0, len(r.channels))
	for _, rec := range r.channels {
		if rec.info.Kind == presence.ChannelKindCustom {
			custom = append(custom, rec)
		}
	}
	sort.Slice(custom, func(i, j int) bool {
		a, b := custom[i].info, custom[j].info
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	ids := make([]string, len(custom))
	for i, rec := range custom {
		ids[i] = rec.info.ID
	}
	return ids
}
