package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetAggregate(t *testing.T) {
	db := testDB(t)
	u := testUser(t, db, "alice")

	t.Run("nil before first merge", func(t *testing.T) {
		agg, err := db.GetAggregate(u.ID)
		require.NoError(t, err)
		assert.Nil(t, agg)
	})

	_, err := db.MergeSubmission(u.ID, "device-a", submission(
		contributionDay("2025-06-01", source("claude", "claude-sonnet-4-5", 100, 50, 1.0)),
	))
	require.NoError(t, err)

	t.Run("round-trips after merge", func(t *testing.T) {
		agg, err := db.GetAggregate(u.ID)
		require.NoError(t, err)
		require.NotNil(t, agg)
		assert.Equal(t, int64(150), agg.TotalTokens)
		assert.Equal(t, []string{"claude"}, agg.Sources)
		assert.Equal(t, []string{"claude-sonnet-4-5"}, agg.Models)
		assert.Equal(t, "2025-06-01", agg.FirstDate)
	})
}

func TestGetUserDays(t *testing.T) {
	db := testDB(t)
	u := testUser(t, db, "alice")

	_, err := db.MergeSubmission(u.ID, "device-a", submission(
		contributionDay("2025-06-01", source("claude", "claude-sonnet-4-5", 100, 0, 1.0)),
		contributionDay("2025-06-02", source("claude", "claude-sonnet-4-5", 200, 0, 2.0)),
		contributionDay("2025-06-03", source("codex", "gpt-5", 300, 0, 3.0)),
	))
	require.NoError(t, err)
	_, err = db.MergeSubmission(u.ID, "device-b", submission(
		contributionDay("2025-06-02", source("claude", "claude-sonnet-4-5", 50, 0, 0.5)),
	))
	require.NoError(t, err)

	t.Run("full range", func(t *testing.T) {
		days, err := db.GetUserDays(u.ID, "", "")
		require.NoError(t, err)
		require.Len(t, days, 3)

		assert.Equal(t, "2025-06-01", days[0].Date)
		// Device partitions collapse into one source entry
		assert.Equal(t, int64(250), days[1].Totals.Tokens)
		require.Len(t, days[1].Sources, 1)
		assert.Equal(t, int64(250), days[1].Sources[0].Tokens.Sum())
	})

	t.Run("bounded range", func(t *testing.T) {
		days, err := db.GetUserDays(u.ID, "2025-06-02", "2025-06-02")
		require.NoError(t, err)
		require.Len(t, days, 1)
		assert.Equal(t, "2025-06-02", days[0].Date)
	})

	t.Run("empty range", func(t *testing.T) {
		days, err := db.GetUserDays(u.ID, "2025-07-01", "2025-07-31")
		require.NoError(t, err)
		assert.Nil(t, days)
	})
}

func TestLeaderboard(t *testing.T) {
	db := testDB(t)
	alice := testUser(t, db, "alice")
	bob := testUser(t, db, "bob")
	carol := testUser(t, db, "carol")

	for _, tc := range []struct {
		user   *User
		tokens int64
	}{
		{alice, 100},
		{bob, 500},
		{carol, 100},
	} {
		_, err := db.MergeSubmission(tc.user.ID, "dev", submission(
			contributionDay("2025-06-01", source("claude", "claude-sonnet-4-5", tc.tokens, 0, 0.01)),
		))
		require.NoError(t, err)
	}

	entries, err := db.Leaderboard(10)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	// Descending by tokens, username breaks the alice/carol tie
	assert.Equal(t, "bob", entries[0].Username)
	assert.Equal(t, 1, entries[0].Rank)
	assert.Equal(t, "alice", entries[1].Username)
	assert.Equal(t, "carol", entries[2].Username)

	limited, err := db.Leaderboard(2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}
