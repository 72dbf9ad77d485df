package medsync

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	syncErrors "github.com/dosetrack/medsync/errors"
	"github.com/dosetrack/medsync/logging"
)

// QueueItem is a durable, timestamped mutation intent. Action and payload
// are opaque to the reconciler; the payload is held in its serialized form
// so the dedupe signature is stable across rehydration.
type QueueItem struct {
	ID        string          `json:"id"`
	Action    string          `json:"action"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// signature identifies a mutation intent for deduplication: two items with
// the same action and identical payload serialization are the same intent.
func (i QueueItem) signature() string {
	return i.Action + "\x00" + string(i.Payload)
}

// Queue is the offline mutation queue: an append-only log of pending
// mutations backed by an injected durable store. All methods are safe for
// concurrent use; reads and writes of the underlying store are serialized
// behind a single mutex so a user action and a background retry cannot
// interleave.
type Queue struct {
	mu     sync.Mutex
	store  QueueStore
	items  []QueueItem
	logger *logging.Logger

	now   func() time.Time
	newID func() string
}

// QueueOption configures a Queue.
type QueueOption func(*Queue)

// WithQueueLogger sets the logger used by the queue.
func WithQueueLogger(logger *logging.Logger) QueueOption {
	return func(q *Queue) { q.logger = logger }
}

// WithClock overrides the timestamp source, for tests.
func WithClock(now func() time.Time) QueueOption {
	return func(q *Queue) { q.now = now }
}

// WithIDGenerator overrides the item ID source, for tests.
func WithIDGenerator(newID func() string) QueueOption {
	return func(q *Queue) { q.newID = newID }
}

// NewQueue creates a queue backed by the given durable store.
func NewQueue(store QueueStore, opts ...QueueOption) *Queue {
	q := &Queue{
		store: store,
		now:   time.Now,
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(q)
	}
	if q.logger == nil {
		q.logger = logging.WithComponent(logging.Component("queue"))
	}
	return q
}

// Enqueue appends a new mutation intent with a generated identifier and the
// current timestamp, persisting it immediately. It never performs network
// I/O, so it succeeds while disconnected; a storage fault is surfaced to the
// caller because silently dropping a queued clinical mutation is data loss.
func (q *Queue) Enqueue(ctx context.Context, action string, payload interface{}) (QueueItem, error) {
	if action == "" {
		return QueueItem{}, syncErrors.NewValidationError(syncErrors.OpEnqueue,
			fmt.Errorf("action must not be empty"))
	}

	var raw json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return QueueItem{}, syncErrors.NewValidationError(syncErrors.OpEnqueue,
				fmt.Errorf("marshal payload: %w", err))
		}
		raw = data
	}

	item := QueueItem{
		ID:        q.newID(),
		Action:    action,
		Payload:   raw,
		CreatedAt: q.now(),
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if err := q.store.AppendItem(ctx, item); err != nil {
		return QueueItem{}, syncErrors.NewStorageError(syncErrors.OpEnqueue, err).
			WithMetadata("action", action)
	}
	q.items = append(q.items, item)

	q.logger.DebugContext(ctx, "mutation enqueued",
		slog.String("item_id", item.ID),
		slog.String("action", item.Action),
		slog.Int("queue_depth", len(q.items)))

	return item, nil
}

// Load rehydrates the in-memory queue from the durable store. It is
// idempotent: repeated calls replace the in-memory view with the persisted
// one rather than appending to it.
func (q *Queue) Load(ctx context.Context) ([]QueueItem, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	items, err := q.store.LoadItems(ctx)
	if err != nil {
		return nil, syncErrors.NewStorageError(syncErrors.OpLoadQueue, err)
	}
	q.items = items

	q.logger.DebugContext(ctx, "queue rehydrated", slog.Int("queue_depth", len(items)))
	return q.snapshotLocked(), nil
}

// Items returns a copy of the in-memory queue in insertion order.
func (q *Queue) Items() []QueueItem {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.snapshotLocked()
}

// Len returns the number of pending items.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// OptimizeStorage removes duplicate entries sharing an identical
// (action, payload) signature, retaining the first representative of each,
// then persists the reduced queue. It bounds storage growth from repeated
// user taps without losing distinct mutation intents. Returns the number of
// duplicates removed.
func (q *Queue) OptimizeStorage(ctx context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	seen := make(map[string]struct{}, len(q.items))
	deduped := make([]QueueItem, 0, len(q.items))
	for _, item := range q.items {
		sig := item.signature()
		if _, dup := seen[sig]; dup {
			continue
		}
		seen[sig] = struct{}{}
		deduped = append(deduped, item)
	}

	removed := len(q.items) - len(deduped)
	if removed == 0 {
		return 0, nil
	}

	if err := q.store.ReplaceItems(ctx, deduped); err != nil {
		// In-memory queue is left untouched so no intent is lost.
		return 0, syncErrors.NewStorageError(syncErrors.OpOptimize, err)
	}
	q.items = deduped

	q.logger.InfoContext(ctx, "queue optimized",
		slog.Int("removed", removed),
		slog.Int("queue_depth", len(deduped)))

	return removed, nil
}

// Remove deletes an item after it has been successfully replayed against
// the server, or on explicit discard.
func (q *Queue) Remove(ctx context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if err := q.store.RemoveItem(ctx, id); err != nil {
		return syncErrors.NewStorageError(syncErrors.OpStore, err).
			WithMetadata("item_id", id)
	}
	for idx, item := range q.items {
		if item.ID == id {
			q.items = append(q.items[:idx], q.items[idx+1:]...)
			break
		}
	}
	return nil
}

func (q *Queue) snapshotLocked() []QueueItem {
	out := make([]QueueItem, len(q.items))
	copy(out, q.items)
	return out
}
