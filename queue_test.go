package medsync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	syncErrors "github.com/dosetrack/medsync/errors"
)

func testQueue(store QueueStore) *Queue {
	seq := 0
	return NewQueue(store,
		WithClock(func() time.Time { return t0 }),
		WithIDGenerator(func() string {
			seq++
			return fmt.Sprintf("item-%d", seq)
		}),
	)
}

func TestEnqueuePersistsImmediately(t *testing.T) {
	store := newMemoryQueueStore()
	q := testQueue(store)

	item, err := q.Enqueue(context.Background(), "log_medication", map[string]interface{}{
		"medication": "metformin",
		"status":     "taken",
	})
	if err != nil {
		t.Fatalf("Enqueue error: %v", err)
	}
	if item.ID == "" || item.CreatedAt.IsZero() {
		t.Fatalf("expected generated ID and timestamp, got %+v", item)
	}

	persisted, err := store.LoadItems(context.Background())
	if err != nil {
		t.Fatalf("LoadItems error: %v", err)
	}
	if len(persisted) != 1 || persisted[0].ID != item.ID {
		t.Fatalf("item not persisted: %+v", persisted)
	}
}

func TestEnqueueRejectsEmptyAction(t *testing.T) {
	q := testQueue(newMemoryQueueStore())
	if _, err := q.Enqueue(context.Background(), "", nil); err == nil {
		t.Fatal("expected error for empty action")
	}
}

func TestEnqueueSurfacesStorageFaults(t *testing.T) {
	store := newMemoryQueueStore()
	store.appendErr = errors.New("disk full")
	q := testQueue(store)

	_, err := q.Enqueue(context.Background(), "log_medication", nil)
	if err == nil {
		t.Fatal("expected storage fault to surface")
	}
	if !syncErrors.IsRetryable(err) {
		t.Fatalf("storage fault should be retryable: %v", err)
	}
	if q.Len() != 0 {
		t.Fatal("failed enqueue must not appear in memory")
	}
}

func TestLoadIsIdempotent(t *testing.T) {
	store := newMemoryQueueStore()
	q := testQueue(store)
	ctx := context.Background()

	if _, err := q.Enqueue(ctx, "log_medication", map[string]interface{}{"n": 1}); err != nil {
		t.Fatalf("Enqueue error: %v", err)
	}
	if _, err := q.Enqueue(ctx, "update_preference", map[string]interface{}{"n": 2}); err != nil {
		t.Fatalf("Enqueue error: %v", err)
	}

	first, err := q.Load(ctx)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	second, err := q.Load(ctx)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if len(first) != 2 || len(second) != 2 {
		t.Fatalf("Load not idempotent: %d then %d items", len(first), len(second))
	}
}

func TestOptimizeStorageDeduplicates(t *testing.T) {
	store := newMemoryQueueStore()
	q := testQueue(store)
	ctx := context.Background()

	payload := map[string]interface{}{"medication": "aspirin", "status": "taken"}
	if _, err := q.Enqueue(ctx, "log_medication", payload); err != nil {
		t.Fatalf("Enqueue error: %v", err)
	}
	if _, err := q.Enqueue(ctx, "log_medication", payload); err != nil {
		t.Fatalf("Enqueue error: %v", err)
	}
	// Same payload under a different action is a distinct intent.
	if _, err := q.Enqueue(ctx, "update_preference", payload); err != nil {
		t.Fatalf("Enqueue error: %v", err)
	}

	removed, err := q.OptimizeStorage(ctx)
	if err != nil {
		t.Fatalf("OptimizeStorage error: %v", err)
	}
	if removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}

	items := q.Items()
	if len(items) != 2 {
		t.Fatalf("expected 2 items after optimization, got %d", len(items))
	}
	if items[0].Action != "log_medication" || items[1].Action != "update_preference" {
		t.Fatalf("wrong representatives retained: %+v", items)
	}

	// The reduced queue is persisted, not only trimmed in memory.
	persisted, err := store.LoadItems(ctx)
	if err != nil {
		t.Fatalf("LoadItems error: %v", err)
	}
	if len(persisted) != 2 {
		t.Fatalf("expected persisted queue reduced to 2, got %d", len(persisted))
	}
}

func TestOptimizeStorageDistinctPayloadsSurvive(t *testing.T) {
	q := testQueue(newMemoryQueueStore())
	ctx := context.Background()

	if _, err := q.Enqueue(ctx, "log_medication", map[string]interface{}{"status": "taken"}); err != nil {
		t.Fatalf("Enqueue error: %v", err)
	}
	if _, err := q.Enqueue(ctx, "log_medication", map[string]interface{}{"status": "missed"}); err != nil {
		t.Fatalf("Enqueue error: %v", err)
	}

	removed, err := q.OptimizeStorage(ctx)
	if err != nil {
		t.Fatalf("OptimizeStorage error: %v", err)
	}
	if removed != 0 {
		t.Fatalf("distinct intents must not be deduplicated, removed %d", removed)
	}
	if q.Len() != 2 {
		t.Fatalf("queue depth = %d, want 2", q.Len())
	}
}

func TestOptimizeStorageKeepsQueueOnPersistFailure(t *testing.T) {
	store := newMemoryQueueStore()
	q := testQueue(store)
	ctx := context.Background()

	payload := map[string]interface{}{"n": 1}
	for i := 0; i < 3; i++ {
		if _, err := q.Enqueue(ctx, "log_medication", payload); err != nil {
			t.Fatalf("Enqueue error: %v", err)
		}
	}

	store.replaceErr = errors.New("io error")
	if _, err := q.OptimizeStorage(ctx); err == nil {
		t.Fatal("expected persist failure to surface")
	}
	if q.Len() != 3 {
		t.Fatalf("in-memory queue must be untouched on failure, got %d items", q.Len())
	}
}

func TestRemove(t *testing.T) {
	store := newMemoryQueueStore()
	q := testQueue(store)
	ctx := context.Background()

	item, err := q.Enqueue(ctx, "log_medication", nil)
	if err != nil {
		t.Fatalf("Enqueue error: %v", err)
	}
	if err := q.Remove(ctx, item.ID); err != nil {
		t.Fatalf("Remove error: %v", err)
	}
	if q.Len() != 0 {
		t.Fatalf("queue depth = %d, want 0", q.Len())
	}

	// Removing an unknown ID is not an error.
	if err := q.Remove(ctx, "missing"); err != nil {
		t.Fatalf("Remove unknown ID: %v", err)
	}
}

func TestQueueConcurrentEnqueue(t *testing.T) {
	store := newMemoryQueueStore()
	q := NewQueue(store)
	ctx := context.Background()

	var wg sync.WaitGroup
	const workers = 16
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			if _, err := q.Enqueue(ctx, "log_medication", map[string]interface{}{"n": n}); err != nil {
				t.Errorf("Enqueue error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if q.Len() != workers {
		t.Fatalf("queue depth = %d, want %d", q.Len(), workers)
	}
	persisted, err := store.LoadItems(ctx)
	if err != nil {
		t.Fatalf("LoadItems error: %v", err)
	}
	if len(persisted) != workers {
		t.Fatalf("persisted depth = %d, want %d", len(persisted), workers)
	}
}
