package data

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/console-gate/internal/audit"
	"github.com/target/console-gate/internal/testutil"
)

func TestAuditRepoInsertAndList(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := NewAuditRepo(db, nil)
	ctx := context.Background()

	events := []audit.Event{
		{Type: audit.TypeLoginSuccess, Subject: "alice", SessionID: "sess-1", IP: "198.51.100.4", Success: true},
		{Type: audit.TypeLoginFailure, Subject: "alice", IP: "198.51.100.4", Reason: "bad_credentials"},
		{Type: audit.TypeLoginFailure, Subject: "bob", IP: "203.0.113.9", Reason: "bad_credentials",
			Metadata: map[string]string{"method": "oauth"}},
	}
	for _, e := range events {
		require.NoError(t, repo.Insert(ctx, e))
	}

	records, err := repo.ListRecent(ctx, AuditQuery{Subject: "alice"})
	require.NoError(t, err)
	require.Len(t, records, 2)
	// Newest first.
	assert.Equal(t, audit.TypeLoginFailure, records[0].EventType)
	assert.Equal(t, audit.TypeLoginSuccess, records[1].EventType)
	assert.Equal(t, "sess-1", records[1].SessionID)

	records, err = repo.ListRecent(ctx, AuditQuery{EventType: audit.TypeLoginFailure})
	require.NoError(t, err)
	require.Len(t, records, 2)

	records, err = repo.ListRecent(ctx, AuditQuery{Subject: "bob"})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, map[string]string{"method": "oauth"}, records[0].Metadata)
	assert.NotEmpty(t, records[0].ID)
	assert.False(t, records[0].OccurredAt.IsZero())
}

func TestAuditRepoAssignsClockTimestamp(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := NewAuditRepo(db, nil)
	ctx := context.Background()

	pinned := time.Date(2026, time.March, 14, 9, 26, 53, 0, time.UTC)
	repo.clock = NewFrozenClock(pinned)

	require.NoError(t, repo.Insert(ctx, audit.Event{Type: audit.TypeLoginSuccess, Subject: "alice", Success: true}))

	records, err := repo.ListRecent(ctx, AuditQuery{Subject: "alice"})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.True(t, records[0].OccurredAt.Equal(pinned), "event without a timestamp takes the clock's")
}

func TestAuditRepoCountFailuresSince(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := NewAuditRepo(db, nil)
	ctx := context.Background()

	old := audit.Event{
		Type: audit.TypeLoginFailure, Subject: "alice", Reason: "bad_credentials",
		Timestamp: time.Now().UTC().Add(-2 * time.Hour),
	}
	require.NoError(t, repo.Insert(ctx, old))
	require.NoError(t, repo.Insert(ctx, audit.Event{Type: audit.TypeLoginFailure, Subject: "alice"}))
	require.NoError(t, repo.Insert(ctx, audit.Event{Type: audit.TypeLoginSuccess, Subject: "alice", Success: true}))

	count, err := repo.CountFailuresSince(ctx, "alice", time.Now().UTC().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestAuditRepoPurge(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := NewAuditRepo(db, nil)
	ctx := context.Background()

	stale := audit.Event{
		Type: audit.TypeSessionRevoked, Subject: "alice",
		Timestamp: time.Now().UTC().Add(-91 * 24 * time.Hour),
	}
	require.NoError(t, repo.Insert(ctx, stale))
	require.NoError(t, repo.Insert(ctx, audit.Event{Type: audit.TypeSessionCreated, Subject: "alice", Success: true}))

	purged, err := repo.PurgeOlderThan(ctx, time.Now().UTC().Add(-90*24*time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 1, purged)

	records, err := repo.ListRecent(ctx, AuditQuery{Subject: "alice"})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, audit.TypeSessionCreated, records[0].EventType)
}

func TestAuditRepoEmitSwallowsFailure(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := NewAuditRepo(db, nil)

	// A canceled context fails the insert; Emit must not panic or error.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	repo.Emit(ctx, audit.Event{Type: audit.TypeLoginFailure, Subject: "alice"})

	records, err := repo.ListRecent(context.Background(), AuditQuery{Subject: "alice"})
	require.NoError(t, err)
	assert.Empty(t, records)
}
