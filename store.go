package medsync

import "context"

// QueueStore provides durable persistence for the offline mutation queue.
// Implementations can use any storage backend; the core ships a SQLite
// implementation in storage/sqlite.
type QueueStore interface {
	// AppendItem persists a single new queue item.
	AppendItem(ctx context.Context, item QueueItem) error

	// LoadItems returns every persisted queue item in insertion order.
	LoadItems(ctx context.Context) ([]QueueItem, error)

	// ReplaceItems atomically replaces the persisted queue with items.
	ReplaceItems(ctx context.Context, items []QueueItem) error

	// RemoveItem deletes the item with the given ID. Removing an unknown
	// ID is not an error.
	RemoveItem(ctx context.Context, id string) error

	// Close releases the store's resources.
	Close() error
}

// SnapshotStore provides durable persistence for the cached domain snapshot.
type SnapshotStore interface {
	// SaveSnapshot overwrites the cached snapshot.
	SaveSnapshot(ctx context.Context, snapshot DomainSnapshot) error

	// LoadSnapshot returns the cached snapshot, or a zero snapshot when
	// nothing has been cached yet.
	LoadSnapshot(ctx context.Context) (DomainSnapshot, error)

	// Close releases the store's resources.
	Close() error
}

// Transport is the remote data collaborator. Implementations handle the
// actual network communication; the core ships an HTTP implementation in
// transport/httptransport.
type Transport interface {
	// FetchSnapshot retrieves the current server snapshot.
	FetchSnapshot(ctx context.Context) (DomainSnapshot, error)

	// SubmitMutation replays a queued mutation against the server.
	SubmitMutation(ctx context.Context, item QueueItem) error

	// PushSnapshot writes a merged snapshot back to the server.
	PushSnapshot(ctx context.Context, snapshot DomainSnapshot) error

	// Close closes the transport connection.
	Close() error
}
