package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/korostylevkirill70-stack/tgstat-parser/internal/scrape"
)

func newTask(id string) scrape.Task {
	return scrape.Task{
		ID:           id,
		Category:     "crypto",
		ListingTypes: []scrape.ListingType{scrape.ListingChannels},
		MaxPages:     3,
		Status:       scrape.TaskStatusPending,
		CreatedAt:    time.Now().UTC(),
	}
}

func TestTaskStoreLifecycle(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewTaskStore()

	require.NoError(t, store.Create(ctx, newTask("t1")))
	require.NoError(t, store.MarkRunning(ctx, "t1"))
	require.NoError(t, store.AddPlannedPages(ctx, "t1", 2))
	require.NoError(t, store.AddPlannedPages(ctx, "t1", 3))

	records := scrape.SyntheticPage("crypto", scrape.ListingChannels, 1)
	require.NoError(t, store.AppendResults(ctx, "t1", records))

	task, err := store.Get(ctx, "t1")
	require.NoError(t, err)
	require.Equal(t, scrape.TaskStatusRunning, task.Status)
	require.Equal(t, 5, task.TotalPages)
	require.Equal(t, len(records), task.Progress)
	require.Len(t, task.Results, len(records))

	done := time.Now().UTC()
	require.NoError(t, store.Complete(ctx, "t1", done))
	task, err = store.Get(ctx, "t1")
	require.NoError(t, err)
	require.Equal(t, scrape.TaskStatusCompleted, task.Status)
	require.NotNil(t, task.CompletedAt)
	require.Equal(t, done, *task.CompletedAt)
}

func TestTaskStoreUnknownID(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewTaskStore()

	_, err := store.Get(ctx, "nope")
	require.ErrorIs(t, err, scrape.ErrTaskNotFound)
	require.ErrorIs(t, store.MarkRunning(ctx, "nope"), scrape.ErrTaskNotFound)
	require.ErrorIs(t, store.AppendResults(ctx, "nope", nil), scrape.ErrTaskNotFound)
}

func TestTaskStoreDuplicateCreate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewTaskStore()

	require.NoError(t, store.Create(ctx, newTask("dup")))
	require.Error(t, store.Create(ctx, newTask("dup")))
}

func TestTaskStoreMonotonicTransitions(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewTaskStore()

	require.NoError(t, store.Create(ctx, newTask("t1")))
	// Only pending tasks can start.
	require.NoError(t, store.MarkRunning(ctx, "t1"))
	require.Error(t, store.MarkRunning(ctx, "t1"))

	require.NoError(t, store.Fail(ctx, "t1", "browser crashed", time.Now()))

	// Terminal tasks are frozen.
	require.Error(t, store.Complete(ctx, "t1", time.Now()))
	require.Error(t, store.Fail(ctx, "t1", "again", time.Now()))
	require.Error(t, store.AddPlannedPages(ctx, "t1", 1))
	require.Error(t, store.AppendResults(ctx, "t1", scrape.SyntheticPage("c", scrape.ListingChats, 1)))

	task, err := store.Get(ctx, "t1")
	require.NoError(t, err)
	require.Equal(t, scrape.TaskStatusFailed, task.Status)
	require.Equal(t, "browser crashed", task.ErrorMessage)
	require.Empty(t, task.Results)
}

func TestTaskStoreProgressTracksResults(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewTaskStore()

	require.NoError(t, store.Create(ctx, newTask("t1")))
	require.NoError(t, store.MarkRunning(ctx, "t1"))

	total := 0
	for page := 1; page <= 3; page++ {
		records := scrape.SyntheticPage("crypto", scrape.ListingChannels, page)
		total += len(records)
		require.NoError(t, store.AppendResults(ctx, "t1", records))

		task, err := store.Get(ctx, "t1")
		require.NoError(t, err)
		require.Equal(t, total, task.Progress)
		require.Len(t, task.Results, total)
	}
}

func TestTaskStoreGetReturnsCopies(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewTaskStore()

	require.NoError(t, store.Create(ctx, newTask("t1")))
	require.NoError(t, store.MarkRunning(ctx, "t1"))
	require.NoError(t, store.AppendResults(ctx, "t1", scrape.SyntheticPage("crypto", scrape.ListingChannels, 1)))

	task, err := store.Get(ctx, "t1")
	require.NoError(t, err)
	task.Results[0].Name = "mutated"

	again, err := store.Get(ctx, "t1")
	require.NoError(t, err)
	require.NotEqual(t, "mutated", again.Results[0].Name)
}

func TestTaskStoreConcurrentCreates(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewTaskStore()

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			require.NoError(t, store.Create(ctx, newTask(fmt.Sprintf("task-%d", i))))
		}(i)
	}
	wg.Wait()

	for i := 0; i < 32; i++ {
		_, err := store.Get(ctx, fmt.Sprintf("task-%d", i))
		require.NoError(t, err)
	}
}
