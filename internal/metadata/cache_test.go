package metadata

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingStore struct {
	Store
	gets int
}

func (s *countingStore) Get(ctx context.Context, id string) (*Job, error) {
	s.gets++
	return s.Store.Get(ctx, id)
}

func TestCachedStore(t *testing.T) {
	runStoreSuite(t, func(t *testing.T) Store {
		store, err := NewCachedStore(NewMemoryStore(), 16)
		require.NoError(t, err)
		return store
	})
}

func TestCachedStore_CachesTerminalJobsOnly(t *testing.T) {
	inner := &countingStore{Store: NewMemoryStore()}
	store, err := NewCachedStore(inner, 16)
	require.NoError(t, err)
	tracker := NewTracker(store)
	ctx := context.Background()

	require.NoError(t, tracker.Create(ctx, &Job{ID: "job-1"}))
	_, err = tracker.Get(ctx, "job-1")
	require.NoError(t, err)
	_, err = tracker.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, 2, inner.gets)
	assert.Equal(t, 0, store.Len())

	_, err = tracker.MarkProcessing(ctx, "job-1")
	require.NoError(t, err)
	_, err = tracker.MarkCompleted(ctx, "job-1", "results/job-1")
	require.NoError(t, err)
	assert.Equal(t, 1, store.Len())

	before := inner.gets
	got, err := tracker.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Status)
	assert.Equal(t, before, inner.gets)

	got.Status = StatusFailed
	again, err := tracker.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, again.Status)
}

func TestNewCachedStore_InvalidSize(t *testing.T) {
	_, err := NewCachedStore(NewMemoryStore(), 0)
	assert.Error(t, err)
}
