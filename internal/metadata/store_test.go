package metadata

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestJob(id string, created time.Time) *Job {
	return &Job{
		ID:       id,
		UploadID: "upload-" + id,
		Config: JobConfig{
			TimeColumn:   "date",
			TargetColumn: "sales",
			Exogenous:    []string{"price"},
			Horizon:      14,
			Model:        "auto",
		},
		Status:    StatusPending,
		CreatedAt: created,
		UpdatedAt: created,
	}
}

// runStoreSuite checks the behaviour every Store backend must share.
func runStoreSuite(t *testing.T, newStore func(t *testing.T) Store) {
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	t.Run("CreateAndGet", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		require.NoError(t, store.Create(ctx, newTestJob("job-1", base)))

		got, err := store.Get(ctx, "job-1")
		require.NoError(t, err)
		assert.Equal(t, "job-1", got.ID)
		assert.Equal(t, "upload-job-1", got.UploadID)
		assert.Equal(t, StatusPending, got.Status)
		assert.Equal(t, []string{"price"}, got.Config.Exogenous)
		assert.True(t, got.CreatedAt.Equal(base))
	})

	t.Run("DuplicateCreate", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		require.NoError(t, store.Create(ctx, newTestJob("job-1", base)))
		err := store.Create(ctx, newTestJob("job-1", base))
		assert.ErrorIs(t, err, ErrJobExists)
	})

	t.Run("GetMissing", func(t *testing.T) {
		store := newStore(t)
		_, err := store.Get(context.Background(), "missing")
		assert.ErrorIs(t, err, ErrJobNotFound)
	})

	t.Run("ListNewestFirst", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		for i := 0; i < 5; i++ {
			job := newTestJob(fmt.Sprintf("job-%d", i), base.Add(time.Duration(i)*time.Minute))
			require.NoError(t, store.Create(ctx, job))
		}

		all, err := store.List(ctx, 10, 0)
		require.NoError(t, err)
		require.Len(t, all, 5)
		assert.Equal(t, "job-4", all[0].ID)
		assert.Equal(t, "job-0", all[4].ID)

		paged, err := store.List(ctx, 2, 1)
		require.NoError(t, err)
		require.Len(t, paged, 2)
		assert.Equal(t, "job-3", paged[0].ID)
		assert.Equal(t, "job-2", paged[1].ID)

		empty, err := store.List(ctx, 10, 10)
		require.NoError(t, err)
		assert.Empty(t, empty)
	})

	t.Run("Update", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		require.NoError(t, store.Create(ctx, newTestJob("job-1", base)))

		updated, err := store.Update(ctx, "job-1", func(job *Job) error {
			job.Status = StatusProcessing
			job.Attempts++
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, StatusProcessing, updated.Status)

		got, err := store.Get(ctx, "job-1")
		require.NoError(t, err)
		assert.Equal(t, StatusProcessing, got.Status)
		assert.Equal(t, 1, got.Attempts)
	})

	t.Run("UpdateAbort", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		require.NoError(t, store.Create(ctx, newTestJob("job-1", base)))

		_, err := store.Update(ctx, "job-1", func(job *Job) error {
			job.Status = StatusFailed
			return ErrInvalidTransition
		})
		assert.ErrorIs(t, err, ErrInvalidTransition)

		got, err := store.Get(ctx, "job-1")
		require.NoError(t, err)
		assert.Equal(t, StatusPending, got.Status)
	})

	t.Run("UpdateMissing", func(t *testing.T) {
		store := newStore(t)
		_, err := store.Update(context.Background(), "missing", func(*Job) error { return nil })
		assert.ErrorIs(t, err, ErrJobNotFound)
	})

	t.Run("ConcurrentUpdates", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		require.NoError(t, store.Create(ctx, newTestJob("job-1", base)))

		var wg sync.WaitGroup
		for i := 0; i < 5; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, _ = store.Update(ctx, "job-1", func(job *Job) error {
					job.Attempts++
					return nil
				})
			}()
		}
		wg.Wait()

		got, err := store.Get(ctx, "job-1")
		require.NoError(t, err)
		assert.Equal(t, 5, got.Attempts)
	})
}

func TestMemoryStore(t *testing.T) {
	runStoreSuite(t, func(t *testing.T) Store {
		return NewMemoryStore()
	})
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.Create(ctx, newTestJob("job-1", time.Now())))

	got, err := store.Get(ctx, "job-1")
	require.NoError(t, err)
	got.Status = StatusFailed
	got.Config.Exogenous[0] = "changed"

	again, err := store.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, again.Status)
	assert.Equal(t, "price", again.Config.Exogenous[0])
}
