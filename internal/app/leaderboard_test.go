package app_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"live-quiz-engine/internal/app"
	"live-quiz-engine/internal/domain"
)

func TestLeaderboardOrdersByScoreThenTimeThenID(t *testing.T) {
	lb := app.NewLeaderboard()
	lb.Add("carol", "Carol", epoch)
	lb.Add("alice", "Alice", epoch)
	lb.Add("bob", "Bob", epoch.Add(time.Second))

	require.Equal(t, []string{"alice", "carol", "bob"}, userIDs(lb.Snapshot()), "equal times fall back to user id")

	delta := lb.Award("bob", 100, epoch.Add(5*time.Second))
	require.Equal(t, []domain.LeaderboardEntry{
		{UserID: "bob", DisplayName: "Bob", Score: 100, Rank: 1, PreviousRank: 3},
		{UserID: "alice", DisplayName: "Alice", Score: 0, Rank: 2, PreviousRank: 1},
		{UserID: "carol", DisplayName: "Carol", Score: 0, Rank: 3, PreviousRank: 2},
	}, delta)

	// Alice ties Bob but reached the score later, so she stays second.
	delta = lb.Award("alice", 100, epoch.Add(6*time.Second))
	require.Equal(t, []domain.LeaderboardEntry{
		{UserID: "alice", DisplayName: "Alice", Score: 100, Rank: 2, PreviousRank: 2},
	}, delta)

	require.Nil(t, lb.Award("carol", 0, epoch.Add(7*time.Second)))
	require.Nil(t, lb.Award("nobody", 10, epoch))
	require.Equal(t, 1, lb.Rank("bob"))
	require.Equal(t, 3, lb.Rank("carol"))
	require.Equal(t, 0, lb.Rank("nobody"))
	require.Equal(t, 3, lb.Len())
}

func TestLeaderboardAddReportsShiftedEntries(t *testing.T) {
	lb := app.NewLeaderboard()
	lb.Add("a", "A", epoch.Add(2*time.Second))
	delta := lb.Add("b", "B", epoch)

	require.Equal(t, []domain.LeaderboardEntry{
		{UserID: "b", DisplayName: "B", Rank: 1},
		{UserID: "a", DisplayName: "A", Rank: 2, PreviousRank: 1},
	}, delta)
	require.Equal(t, []domain.LeaderboardEntry{
		{UserID: "b", DisplayName: "Bee", Rank: 1, PreviousRank: 1},
	}, lb.Add("b", "Bee", epoch), "re-adding only renames")
	require.Equal(t, "Bee", lb.Snapshot()[0].DisplayName)
	require.Nil(t, lb.Add("b", "Bee", epoch), "same name, nothing changed")
}

func TestLeaderboardScoresNeverDecrease(t *testing.T) {
	lb := app.NewLeaderboard()
	lb.Add("u1", "U1", epoch)
	lb.Award("u1", 50, epoch.Add(time.Second))
	require.Nil(t, lb.Award("u1", -20, epoch.Add(2*time.Second)))
	require.Equal(t, 50, lb.Snapshot()[0].Score)
}
