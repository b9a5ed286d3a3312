package history

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vidconv/media"
	"vidconv/task"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "data", "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func finishedJob(id string, status task.Status, completed time.Time) task.Job {
	return task.Job{
		ID:          id,
		BatchID:     "batch-1",
		InputPath:   "/videos/" + id + ".mp4",
		OutputPath:  "/out/" + id + ".mkv",
		PresetName:  "Source settings",
		EncoderID:   "libx265",
		Source:      media.FileInfo{DurationSeconds: 61.5, FileSize: 2048},
		Status:      status,
		StartedAt:   completed.Add(-time.Minute),
		CompletedAt: completed,
	}
}

func TestStoreRecordAndList(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	failed := finishedJob("b", task.StatusError, base.Add(time.Hour))
	failed.Error = "Conversion failed!"

	require.NoError(t, store.Record(ctx, finishedJob("a", task.StatusCompleted, base)))
	require.NoError(t, store.Record(ctx, failed))

	records, err := store.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "b", records[0].JobID)
	assert.Equal(t, "error", records[0].Status)
	assert.Equal(t, "Conversion failed!", records[0].Error)
	assert.True(t, base.Add(time.Hour).Equal(records[0].CompletedAt))

	a := records[1]
	assert.Equal(t, "a", a.JobID)
	assert.Equal(t, "batch-1", a.BatchID)
	assert.Equal(t, "/out/a.mkv", a.OutputPath)
	assert.Equal(t, "Source settings", a.Preset)
	assert.Equal(t, "libx265", a.Encoder)
	assert.Equal(t, 61.5, a.DurationSeconds)
	assert.Equal(t, int64(2048), a.FileSize)
	assert.Empty(t, a.Error)
	assert.True(t, base.Add(-time.Minute).Equal(a.StartedAt))

	limited, err := store.List(ctx, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "b", limited[0].JobID)
}

func TestStoreRecordReplacesSameJob(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	now := time.Now()

	job := finishedJob("a", task.StatusCancelled, now)
	job.StartedAt = time.Time{}
	require.NoError(t, store.Record(ctx, job))

	job.Status = task.StatusCompleted
	require.NoError(t, store.Record(ctx, job))

	records, err := store.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "completed", records[0].Status)
	assert.True(t, records[0].StartedAt.IsZero())
}

func TestStorePrune(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, store.Record(ctx, finishedJob("old", task.StatusCompleted, now.Add(-48*time.Hour))))
	require.NoError(t, store.Record(ctx, finishedJob("new", task.StatusCompleted, now)))

	n, err := store.Prune(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	records, err := store.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "new", records[0].JobID)
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	first, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, first.Record(context.Background(), finishedJob("a", task.StatusCompleted, time.Now())))
	require.NoError(t, first.Close())

	second, err := Open(path)
	require.NoError(t, err)
	defer second.Close()
	assert.Equal(t, path, second.Path())

	records, err := second.List(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestStoreConcurrentRecords(t *testing.T) {
	store := openTestStore(t)
	assert.Equal(t, 1, store.db.Stats().MaxOpenConnections)

	ctx := context.Background()
	now := time.Now().UTC()
	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs <- store.Record(ctx, finishedJob(fmt.Sprintf("job-%d", i), task.StatusCompleted, now))
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}

	records, err := store.List(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, records, 8)
}
