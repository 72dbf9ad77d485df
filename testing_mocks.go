package medsync

import (
	"context"
	"sync"
)

// memoryQueueStore is an in-memory QueueStore used by tests and examples.
type memoryQueueStore struct {
	mu    sync.Mutex
	items []QueueItem

	appendErr  error
	loadErr    error
	replaceErr error
	removeErr  error
}

func newMemoryQueueStore() *memoryQueueStore {
	return &memoryQueueStore{}
}

func (s *memoryQueueStore) AppendItem(ctx context.Context, item QueueItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.appendErr != nil {
		return s.appendErr
	}
	s.items = append(s.items, item)
	return nil
}

func (s *memoryQueueStore) LoadItems(ctx context.Context) ([]QueueItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	out := make([]QueueItem, len(s.items))
	copy(out, s.items)
	return out, nil
}

func (s *memoryQueueStore) ReplaceItems(ctx context.Context, items []QueueItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.replaceErr != nil {
		return s.replaceErr
	}
	s.items = make([]QueueItem, len(items))
	copy(s.items, items)
	return nil
}

func (s *memoryQueueStore) RemoveItem(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.removeErr != nil {
		return s.removeErr
	}
	for idx, item := range s.items {
		if item.ID == id {
			s.items = append(s.items[:idx], s.items[idx+1:]...)
			return nil
		}
	}
	return nil
}

func (s *memoryQueueStore) Close() error { return nil }

// memorySnapshotStore is an in-memory SnapshotStore used by tests and examples.
type memorySnapshotStore struct {
	mu       sync.Mutex
	snapshot DomainSnapshot

	saveErr error
	loadErr error
}

func newMemorySnapshotStore() *memorySnapshotStore {
	return &memorySnapshotStore{}
}

func (s *memorySnapshotStore) SaveSnapshot(ctx context.Context, snapshot DomainSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.snapshot = snapshot.Clone()
	return nil
}

func (s *memorySnapshotStore) LoadSnapshot(ctx context.Context) (DomainSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loadErr != nil {
		return DomainSnapshot{}, s.loadErr
	}
	return s.snapshot.Clone(), nil
}

func (s *memorySnapshotStore) Close() error { return nil }

// mockTransport is a scriptable Transport used by manager tests.
type mockTransport struct {
	mu        sync.Mutex
	server    DomainSnapshot
	submitted []QueueItem
	pushed    []DomainSnapshot

	fetchErr     error
	submitErr    error // returned on every submit when set
	pushErr      error
	transientErr error // returned for the first failSubmits submits
	failSubmits  int
}

func (t *mockTransport) FetchSnapshot(ctx context.Context) (DomainSnapshot, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.fetchErr != nil {
		return DomainSnapshot{}, t.fetchErr
	}
	return t.server.Clone(), nil
}

func (t *mockTransport) SubmitMutation(ctx context.Context, item QueueItem) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.failSubmits > 0 {
		t.failSubmits--
		return t.transientErr
	}
	if t.submitErr != nil {
		return t.submitErr
	}
	t.submitted = append(t.submitted, item)
	return nil
}

func (t *mockTransport) PushSnapshot(ctx context.Context, snapshot DomainSnapshot) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.pushErr != nil {
		return t.pushErr
	}
	t.pushed = append(t.pushed, snapshot.Clone())
	return nil
}

func (t *mockTransport) Close() error { return nil }
