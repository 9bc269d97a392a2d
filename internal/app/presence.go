package app

import (
	"time"

	"live-quiz-engine/internal/domain"
)

type presenceRecord struct {
	status domain.PresenceStatus
	member Member
	since  time.Time
	// generation invalidates grace timers scheduled before the latest transition.
	generation uint64
}

// Presence tracks connected / disconnected_grace / left per participant.
// Timers are not owned here: Disconnect hands back a generation that the
// caller schedules, and Expire ignores stale generations. It is owned by a
// session actor and is not safe for concurrent use.
type Presence struct {
	records map[string]*presenceRecord
}

func NewPresence() *Presence {
	return &Presence{records: make(map[string]*presenceRecord)}
}

// Connect attaches member to userID and returns the member it replaced, if any.
// A participant already marked left keeps that status until Promote is called.
func (p *Presence) Connect(userID string, member Member, now time.Time) Member {
	rec, ok := p.records[userID]
	if !ok {
		p.records[userID] = &presenceRecord{status: domain.PresenceConnected, member: member, since: now}
		return nil
	}
	previous := rec.member
	rec.member = member
	rec.generation++
	if rec.status != domain.PresenceLeft {
		rec.status = domain.PresenceConnected
		rec.since = now
	}
	return previous
}

// Disconnect detaches member if it is still the current one. It reports the
// generation to schedule a grace expiry for, and whether one is needed.
func (p *Presence) Disconnect(userID string, member Member, now time.Time) (uint64, bool) {
	rec, ok := p.records[userID]
	if !ok || rec.member == nil || rec.member != member {
		return 0, false
	}
	rec.member = nil
	rec.generation++
	if rec.status != domain.PresenceConnected {
		return 0, false
	}
	rec.status = domain.PresenceDisconnectedGrace
	rec.since = now
	return rec.generation, true
}

// Expire moves a participant whose grace window elapsed to left. Stale
// generations are no-ops.
func (p *Presence) Expire(userID string, generation uint64, now time.Time) bool {
	rec, ok := p.records[userID]
	if !ok || rec.status != domain.PresenceDisconnectedGrace || rec.generation != generation {
		return false
	}
	rec.status = domain.PresenceLeft
	rec.since = now
	return true
}

// Leave marks userID as left immediately and returns the detached member.
func (p *Presence) Leave(userID string, now time.Time) Member {
	rec, ok := p.records[userID]
	if !ok {
		return nil
	}
	previous := rec.member
	rec.member = nil
	rec.generation++
	rec.status = domain.PresenceLeft
	rec.since = now
	return previous
}

// Promote turns participants that reconnected after their grace window back
// into connected ones. Called when a new question opens.
func (p *Presence) Promote(now time.Time) {
	for _, rec := range p.records {
		if rec.status == domain.PresenceLeft && rec.member != nil {
			rec.status = domain.PresenceConnected
			rec.since = now
		}
	}
}

// Present reports whether userID counts toward "everyone has submitted".
func (p *Presence) Present(userID string) bool {
	rec, ok := p.records[userID]
	return ok && rec.status != domain.PresenceLeft
}

func (p *Presence) Status(userID string) domain.PresenceStatus {
	if rec, ok := p.records[userID]; ok {
		return rec.status
	}
	return ""
}

// Member returns the live connection for userID, or nil.
func (p *Presence) Member(userID string) Member {
	if rec, ok := p.records[userID]; ok {
		return rec.member
	}
	return nil
}
