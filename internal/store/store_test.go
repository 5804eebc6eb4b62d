package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t testing.TB) *Store {
	s, err := Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	base := time.Date(2025, 6, 10, 9, 0, 0, 0, time.UTC)
	n := 0
	s.now = func() time.Time {
		n++
		return base.Add(time.Duration(n) * time.Second)
	}
	return s
}

func TestRecordAndGet(t *testing.T) {
	s := setup(t)
	ctx := context.Background()

	m, err := s.Record(ctx, "42", "2025-06-10", "brought glasses", nil)
	require.NoError(t, err)
	_, err = uuid.Parse(m.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusOK, m.Status)

	got, err := s.Get(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, m, got)
}

func TestRecordFailure(t *testing.T) {
	s := setup(t)

	m, err := s.Record(context.Background(), "42", "", "late", errors.New("erp: memo modal did not open"))
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, m.Status)
	assert.Equal(t, "erp: memo modal did not open", m.Error)
}

func TestGetMissing(t *testing.T) {
	_, err := setup(t).Get(context.Background(), "nope")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestListByEventAndRecent(t *testing.T) {
	s := setup(t)
	ctx := context.Background()

	first, err := s.Record(ctx, "42", "", "one", nil)
	require.NoError(t, err)
	_, err = s.Record(ctx, "7", "", "other", nil)
	require.NoError(t, err)
	last, err := s.Record(ctx, "42", "", "two", nil)
	require.NoError(t, err)

	list, err := s.ListByEvent(ctx, "42")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, last.ID, list[0].ID)
	assert.Equal(t, first.ID, list[1].ID)

	recent, err := s.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, last.ID, recent[0].ID)
	assert.Equal(t, "7", recent[1].EventID)

	empty, err := s.ListByEvent(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestJournalPersistsAcrossOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "drivecal.db")
	ctx := context.Background()

	s, err := Open(ctx, path)
	require.NoError(t, err)
	m, err := s.Record(ctx, "42", "2025-06-10", "persist me", nil)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	reopened, err := Open(ctx, path)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Get(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, "persist me", got.Text)
	assert.True(t, m.CreatedAt.Equal(got.CreatedAt))
}
