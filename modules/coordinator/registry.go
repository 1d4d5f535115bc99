package coordinator

import (
	"sort"
	"time"

	"github.com/example/signaling-coordinator/domain/presence"
)

// participantRegistry maps identities to their live connection handle.
// Current channel is not stored here; it is read from the channel registry.
type participantRegistry struct {
	byIdentity map[string]*presence.Participant
	byConn     map[string]string
}

func newParticipantRegistry() *participantRegistry {
	return &participantRegistry{
		byIdentity: make(map[string]*presence.Participant),
		byConn:     make(map[string]string),
	}
}

// register binds connID to identity. A known identity keeps its JoinedAt and
// gets the new handle; replaced is the previous handle when it differs.
func (r *participantRegistry) register(connID, identity string, joinedAt time.Time) (p *presence.Participant, reconnected bool, replaced string) {
	if existing, ok := r.byIdentity[identity]; ok {
		if existing.ConnID != connID {
			replaced = existing.ConnID
			delete(r.byConn, existing.ConnID)
			existing.ConnID = connID
		}
		r.byConn[connID] = identity
		return existing, true, replaced
	}

	p = &presence.Participant{
		Identity: identity,
		ConnID:   connID,
		Status:   presence.StatusOnline,
		JoinedAt: joinedAt,
	}
	r.byIdentity[identity] = p
	r.byConn[connID] = identity
	return p, false, ""
}

func (r *participantRegistry) lookup(identity string) (*presence.Participant, bool) {
	p, ok := r.byIdentity[identity]
	return p, ok
}

func (r *participantRegistry) identityOf(connID string) (string, bool) {
	identity, ok := r.byConn[connID]
	return identity, ok
}

func (r *participantRegistry) connOf(identity string) (string, bool) {
	p, ok := r.byIdentity[identity]
	if !ok {
		return "", false
	}
	return p.ConnID, true
}

// remove deletes the participant and its handle mapping.
func (r *participantRegistry) remove(identity string) bool {
	p, ok := r.byIdentity[identity]
	if !ok {
		return false
	}
	if r.byConn[p.ConnID] == identity {
		delete(r.byConn, p.ConnID)
	}
	delete(r.byIdentity, identity)
	return true
}

func (r *participantRegistry) forgetConn(connID string) {
	delete(r.byConn, connID)
}

func (r *participantRegistry) count() int {
	return len(r.byIdentity)
}

// identities returns all registered identities in sorted order.
func (r *participantRegistry) identities() []string {
	ids := make([]string, 0, len(r.byIdentity))
	for id := range r.byIdentity {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// connIDs returns the handles of every participant except the given identity.
func (r *participantRegistry) connIDs(except string) []string {
	conns := make([]string, 0, len(r.byIdentity))
	for _, id := range r.identities() {
		if id == except {
			continue
		}
		conns = append(conns, r.byIdentity[id].ConnID)
	}
	return conns
}

// connsOf maps identities to handles, skipping unregistered ones.
func (r *participantRegistry) connsOf(identities []string) []string {
	conns := make([]string, 0, len(identities))
	for _, id := range identities {
		if p, ok := r.byIdentity[id]; ok {
			conns = append(conns, p.ConnID)
		}
	}
	return conns
}
