package database

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) Store {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { CloseDB(db) })
	return NewStore(db, nil)
}

func TestMigrationsAreIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	db, err := NewDB(path)
	require.NoError(t, err)
	CloseDB(db)

	db, err = NewDB(path)
	require.NoError(t, err)
	CloseDB(db)
}

func TestRecordSubmission(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	for i, outcome := range []string{"accepted", "rejected", "accepted"} {
		sub := &Submission{
			AccountID:     1,
			ChatID:        10,
			MessageID:     int64(100 + i),
			StatsID:       "abc12345678",
			Outcome:       outcome,
			RecordEntries: i + 1,
			ReceivedAt:    base.Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, store.RecordSubmission(ctx, sub))
		require.NotZero(t, sub.ID)
	}

	counts, err := store.SubmissionCounts(ctx)
	require.NoError(t, err)
	require.Equal(t, map[string]int{"accepted": 2, "rejected": 1}, counts)

	recent, err := store.RecentSubmissions(ctx, "abc12345678", 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	require.EqualValues(t, 102, recent[0].MessageID)
	require.EqualValues(t, 101, recent[1].MessageID)
}

func TestRecordSubmissionValidation(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.Error(t, store.RecordSubmission(ctx, nil))
	require.Error(t, store.RecordSubmission(ctx, &Submission{MessageID: 1}))

	_, err := store.RecentSubmissions(ctx, "", 10)
	require.Error(t, err)
}

func TestRecordCleanup(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	c := &Cleanup{
		AccountID:       1,
		ChatID:          42,
		MessageID:       7,
		FinalState:      "done",
		ContactsTotal:   3,
		ContactsDeleted: 1,
		ContactsSkipped: 1,
		ContactsFailed:  1,
	}
	require.NoError(t, store.RecordCleanup(ctx, c))
	require.NotZero(t, c.ID)
	require.False(t, c.CompletedAt.IsZero())
}

func TestRunSQLMaintenance(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Ping(context.Background()))
	require.NoError(t, store.RunSQLMaintenance(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, store.RunSQLMaintenance(ctx), context.Canceled)
}
