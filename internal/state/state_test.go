package state

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLite(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestScoutStateMarkSeen(t *testing.T) {
	s := &ScoutState{}

	s.MarkSeen([]string{"a", "b", "c"})
	assert.Equal(t, []string{"a", "b", "c"}, s.SeenNoticeIDs)

	// Duplicates keep their original position.
	s.MarkSeen([]string{"b", "d"})
	assert.Equal(t, []string{"a", "b", "c", "d"}, s.SeenNoticeIDs)

	set := s.SeenSet()
	assert.Contains(t, set, "d")
	assert.NotContains(t, set, "z")
}

func TestScoutStateMarkSeenTrimsOldest(t *testing.T) {
	s := &ScoutState{}
	ids := make([]string, SeenIDCap+250)
	for i := range ids {
		ids[i] = fmt.Sprintf("id-%06d", i)
	}
	s.MarkSeen(ids)

	require.Len(t, s.SeenNoticeIDs, SeenIDCap)
	// The oldest 250 were trimmed; the most recent survive.
	assert.Equal(t, "id-000250", s.SeenNoticeIDs[0])
	assert.Equal(t, fmt.Sprintf("id-%06d", SeenIDCap+249), s.SeenNoticeIDs[len(s.SeenNoticeIDs)-1])
}

func TestScoutStateRecordRun(t *testing.T) {
	s := &ScoutState{}
	runAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	s.RecordRun(runAt, 40, 5)
	require.NotNil(t, s.LastRunAt)
	assert.Equal(t, runAt, *s.LastRunAt)
	assert.Equal(t, 40, s.TotalFetched)
	assert.Equal(t, 5, s.TotalNew)
	require.Len(t, s.Runs, 1)

	for i := 0; i < RunHistory+10; i++ {
		s.RecordRun(runAt.Add(time.Duration(i)*time.Hour), 1, 0)
	}
	assert.Len(t, s.Runs, RunHistory)
}

func TestBackfillStateMonths(t *testing.T) {
	b := NewBackfillState()
	assert.Equal(t, BackfillIdle, b.Status)
	assert.False(t, b.IsMonthDone("2025-05"))

	b.CurrentMonth = "2025-05"
	b.MarkMonthDone("2025-05")
	assert.True(t, b.IsMonthDone("2025-05"))
	assert.Empty(t, b.CurrentMonth)

	// Marking twice stays idempotent.
	b.MarkMonthDone("2025-05")
	assert.Len(t, b.MonthsDone, 1)
}

func TestBackfillStateProgressPct(t *testing.T) {
	b := NewBackfillState()
	assert.Equal(t, 0.0, b.ProgressPct())

	b.MonthsRequested = 4
	b.MarkMonthDone("2025-05")
	assert.Equal(t, 25.0, b.ProgressPct())
}

func TestSQLiteStoreRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	// Fresh load returns empty defaults.
	scout, err := store.LoadScout(ctx)
	require.NoError(t, err)
	assert.Nil(t, scout.LastRunAt)
	assert.Empty(t, scout.SeenNoticeIDs)

	backfill, err := store.LoadBackfill(ctx)
	require.NoError(t, err)
	assert.Equal(t, BackfillIdle, backfill.Status)

	// Save and reload.
	runAt := time.Date(2025, 6, 1, 6, 0, 0, 0, time.UTC)
	scout.MarkSeen([]string{"sam-1", "subnet:2"})
	scout.RecordRun(runAt, 12, 3)
	require.NoError(t, store.SaveScout(ctx, scout))

	backfill.Status = BackfillRunning
	backfill.MonthsRequested = 6
	backfill.ResumeMonth = "2025-04"
	backfill.MarkMonthDone("2025-05")
	require.NoError(t, store.SaveBackfill(ctx, backfill))

	scout2, err := store.LoadScout(ctx)
	require.NoError(t, err)
	require.NotNil(t, scout2.LastRunAt)
	assert.True(t, scout2.LastRunAt.Equal(runAt))
	assert.Equal(t, []string{"sam-1", "subnet:2"}, scout2.SeenNoticeIDs)
	assert.Equal(t, 12, scout2.TotalFetched)

	backfill2, err := store.LoadBackfill(ctx)
	require.NoError(t, err)
	assert.Equal(t, BackfillRunning, backfill2.Status)
	assert.Equal(t, "2025-04", backfill2.ResumeMonth)
	assert.True(t, backfill2.IsMonthDone("2025-05"))
}

func TestSQLiteStoreOverwrite(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	s := &ScoutState{SeenNoticeIDs: []string{"a"}}
	require.NoError(t, store.SaveScout(ctx, s))
	s.MarkSeen([]string{"b"})
	require.NoError(t, store.SaveScout(ctx, s))

	loaded, err := store.LoadScout(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, loaded.SeenNoticeIDs)
}
