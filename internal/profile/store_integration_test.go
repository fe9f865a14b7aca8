//go:build integration
// +build integration

package profile_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solace-labs/solace/internal/log"
	"github.com/solace-labs/solace/internal/profile"
	"github.com/solace-labs/solace/internal/testutil"
)

func TestFactsSessionPrecedence(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := profile.NewStore(db.Pool, log.NewNop())

	var sessionID uuid.UUID
	require.NoError(t, db.Pool.QueryRow(ctx,
		`INSERT INTO sessions (user_id) VALUES ('user-1') RETURNING id`).Scan(&sessionID))

	require.NoError(t, store.UpsertFact(ctx, "user-1", nil, "workplace", "hospital"))
	require.NoError(t, store.UpsertFact(ctx, "user-1", nil, "pet", "dog"))
	require.NoError(t, store.UpsertFact(ctx, "user-1", &sessionID, "workplace", "on sabbatical"))

	facts, err := store.Facts(ctx, "user-1", &sessionID)
	require.NoError(t, err)
	assert.Equal(t, "on sabbatical", facts["workplace"], "session fact shadows global")
	assert.Equal(t, "dog", facts["pet"])

	// Without the session, only globals apply.
	facts, err = store.Facts(ctx, "user-1", nil)
	require.NoError(t, err)
	assert.Equal(t, "hospital", facts["workplace"])
}

func TestUpsertFactSkipsAnonymousUsers(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := profile.NewStore(db.Pool, log.NewNop())

	require.NoError(t, store.UpsertFact(ctx, "anon-a1b2c3d4e5f6", nil, "pet", "dog"))

	var count int
	require.NoError(t, db.Pool.QueryRow(ctx, `SELECT count(*) FROM user_facts`).Scan(&count))
	assert.Zero(t, count)
}

func TestPsychMergeAccumulates(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := profile.NewStore(db.Pool, log.NewNop())

	require.NoError(t, store.Merge(ctx, "user-1", profile.Profile{
		CoreDesire:      "autonomy",
		LimitingBeliefs: []string{"not good enough"},
		Goals:           map[string]string{"career": "promotion"},
	}))
	require.NoError(t, store.Merge(ctx, "user-1", profile.Profile{
		CoreDesire:      "recognition",
		LimitingBeliefs: []string{"not good enough", "too late"},
		Goals:           map[string]string{"health": "sleep"},
	}))

	p, err := store.Get(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "autonomy", p.CoreDesire)
	assert.Equal(t, []string{"not good enough", "too late"}, p.LimitingBeliefs)
	assert.Equal(t, map[string]string{"career": "promotion", "health": "sleep"}, p.Goals)
}
