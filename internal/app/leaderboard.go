package app

import (
	"sort"
	"time"

	"live-quiz-engine/internal/domain"
)

type standing struct {
	userID      string
	displayName string
	score       int
	reachedAt   time.Time
}

// less orders by score desc, then by who reached the score first, then by user id.
func less(a, b *standing) bool {
	if a.score != b.score {
		return a.score > b.score
	}
	if !a.reachedAt.Equal(b.reachedAt) {
		return a.reachedAt.Before(b.reachedAt)
	}
	return a.userID < b.userID
}

// Leaderboard is an ordered view over participant scores, kept sorted
// incrementally. It is owned by a session actor and is not safe for
// concurrent use.
type Leaderboard struct {
	order []*standing
	byID  map[string]*standing
}

func NewLeaderboard() *Leaderboard {
	return &Leaderboard{byID: make(map[string]*standing)}
}

// Add inserts a participant with zero points. joinedAt is the time they
// reached that score. Adding a known user only refreshes the name, and
// reports the entry when the name changed.
func (l *Leaderboard) Add(userID, displayName string, joinedAt time.Time) []domain.LeaderboardEntry {
	if s, ok := l.byID[userID]; ok {
		if s.displayName == displayName {
			return nil
		}
		s.displayName = displayName
		rank := l.position(s) + 1
		return []domain.LeaderboardEntry{{UserID: userID, DisplayName: displayName, Score: s.score, Rank: rank, PreviousRank: rank}}
	}
	s := &standing{userID: userID, displayName: displayName, reachedAt: joinedAt}
	l.byID[userID] = s
	pos := l.insert(s)
	return l.shifted(pos, len(l.order)-1, -1)
}

// Award adds points earned at time at and returns the entries whose rank or score changed.
func (l *Leaderboard) Award(userID string, points int, at time.Time) []domain.LeaderboardEntry {
	s, ok := l.byID[userID]
	if !ok || points <= 0 {
		return nil
	}
	from := l.position(s)
	l.order = append(l.order[:from], l.order[from+1:]...)
	s.score += points
	s.reachedAt = at
	to := l.insert(s)
	return l.shifted(to, from, from)
}

// Snapshot returns the full board in rank order.
func (l *Leaderboard) Snapshot() []domain.LeaderboardEntry {
	entries := make([]domain.LeaderboardEntry, len(l.order))
	for i, s := range l.order {
		entries[i] = domain.LeaderboardEntry{UserID: s.userID, DisplayName: s.displayName, Score: s.score, Rank: i + 1}
	}
	return entries
}

// Rank returns the 1-based rank of userID, or 0 if unknown.
func (l *Leaderboard) Rank(userID string) int {
	s, ok := l.byID[userID]
	if !ok {
		return 0
	}
	return l.position(s) + 1
}

func (l *Leaderboard) Len() int { return len(l.order) }

func (l *Leaderboard) position(s *standing) int {
	return sort.Search(len(l.order), func(i int) bool { return !less(l.order[i], s) })
}

func (l *Leaderboard) insert(s *standing) int {
	pos := sort.Search(len(l.order), func(i int) bool { return less(s, l.order[i]) })
	l.order = append(l.order, nil)
	copy(l.order[pos+1:], l.order[pos:])
	l.order[pos] = s
	return pos
}

// shifted describes positions [to, from] after the entry at to moved up from
// position moved (or was inserted when moved < 0). Everyone else in the range
// slid down by one.
func (l *Leaderboard) shifted(to, from, moved int) []domain.LeaderboardEntry {
	if to > from {
		return nil
	}
	delta := make([]domain.LeaderboardEntry, 0, from-to+1)
	for i := to; i <= from; i++ {
		s := l.order[i]
		entry := domain.LeaderboardEntry{UserID: s.userID, DisplayName: s.displayName, Score: s.score, Rank: i + 1}
		switch {
		case i == to && moved >= 0:
			entry.PreviousRank = moved + 1
		case i == to:
			// newly added, no previous rank
		default:
			entry.PreviousRank = i
		}
		delta = append(delta, entry)
	}
	return delta
}
