package medsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	syncErrors "github.com/dosetrack/medsync/errors"
	"github.com/dosetrack/medsync/logging"
)

// SyncResult summarizes one sync cycle.
type SyncResult struct {
	StartTime     time.Time
	Duration      time.Duration
	ItemsReplayed int
	ItemsDeduped  int
	Strategy      Strategy
	Errors        []error
}

// RetryConfig controls exponential backoff for retryable failures during a
// sync cycle.
type RetryConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// SyncOptions holds the tunable behavior of a Manager.
type SyncOptions struct {
	Strategy     Strategy
	Timeout      time.Duration
	SyncInterval time.Duration
	Retry        *RetryConfig
	Metrics      MetricsCollector
	Logger       *logging.Logger
}

// Manager drives the offline sync cycle: it drains the queue through the
// transport, fetches the server snapshot, resolves it against the cached
// local snapshot, and writes the merged result back to storage and to the
// server. Access to shared state is mutex-serialized.
type Manager struct {
	queue     *Queue
	snapshots SnapshotStore
	transport Transport
	options   SyncOptions
	logger    *logging.Logger

	mu           sync.RWMutex
	autoSyncStop chan struct{}
	subscribers  []func(*SyncResult)
	closed       bool
}

// NewManager wires a Manager from its collaborators. Most callers should use
// NewManagerBuilder instead.
func NewManager(queue *Queue, snapshots SnapshotStore, transport Transport, options SyncOptions) *Manager {
	if options.Strategy == "" {
		options.Strategy = StrategyMedicalPriority
	}
	if options.Metrics == nil {
		options.Metrics = &NoOpMetricsCollector{}
	}
	if options.Logger == nil {
		options.Logger = logging.WithComponent(logging.Component("manager"))
	}
	return &Manager{
		queue:     queue,
		snapshots: snapshots,
		transport: transport,
		options:   options,
		logger:    options.Logger,
	}
}

// Queue exposes the manager's mutation queue to the UI layer.
func (m *Manager) Queue() *Queue {
	return m.queue
}

// Sync performs one full cycle: optimize and replay the queue, fetch the
// server snapshot, resolve, and persist the merged snapshot locally and
// remotely. Partial failures are collected in the result; the first error
// that prevents the cycle from producing a merged snapshot aborts it.
func (m *Manager) Sync(ctx context.Context) (*SyncResult, error) {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return nil, syncErrors.New(syncErrors.OpReplay, fmt.Errorf("sync manager is closed"))
	}
	m.mu.RUnlock()

	start := time.Now()
	result := &SyncResult{
		StartTime: start,
		Strategy:  m.options.Strategy,
	}
	defer func() {
		result.Duration = time.Since(start)
		m.options.Metrics.RecordSyncDuration("full_sync", result.Duration)
		m.options.Metrics.RecordQueueDepth(m.queue.Len())
		m.notifySubscribers(result)
		if len(result.Errors) == 0 {
			m.logger.InfoContext(ctx, "sync cycle completed",
				slog.Duration("duration", result.Duration),
				slog.Int("items_replayed", result.ItemsReplayed),
				slog.Int("items_deduped", result.ItemsDeduped))
		} else {
			m.options.Metrics.RecordSyncErrors("full_sync", "sync_failure")
			m.logger.ErrorContext(ctx, "sync cycle completed with errors",
				slog.Duration("duration", result.Duration),
				slog.Int("error_count", len(result.Errors)))
		}
	}()

	opCtx, cancel := m.withTimeout(ctx)
	defer cancel()

	if _, err := m.queue.Load(opCtx); err != nil {
		result.Errors = append(result.Errors, err)
		return result, err
	}

	deduped, err := m.queue.OptimizeStorage(opCtx)
	if err != nil {
		// Optimization is a space concern, not a correctness one; replay
		// proceeds with the unreduced queue.
		m.logger.LogError(ctx, err, "queue optimization failed, replaying unreduced queue")
		result.Errors = append(result.Errors, err)
	}
	result.ItemsDeduped = deduped

	replayed, err := m.replay(opCtx)
	result.ItemsReplayed = replayed
	if err != nil {
		result.Errors = append(result.Errors, err)
		return result, err
	}
	m.options.Metrics.RecordReplay(replayed, deduped)

	if err := m.reconcile(opCtx, result); err != nil {
		result.Errors = append(result.Errors, err)
		return result, err
	}

	return result, nil
}

// replay submits every pending item in order, removing each from the queue
// only after the server accepted it. It stops at the first item that cannot
// be submitted so ordering is preserved for the next cycle.
func (m *Manager) replay(ctx context.Context) (int, error) {
	items := m.queue.Items()
	replayed := 0
	for _, item := range items {
		select {
		case <-ctx.Done():
			return replayed, ctx.Err()
		default:
		}

		submit := func() error {
			return m.transport.SubmitMutation(ctx, item)
		}
		if err := m.withRetry(ctx, submit); err != nil {
			m.options.Metrics.RecordSyncErrors("replay", "submit_failure")
			return replayed, syncErrors.NewNetworkError(syncErrors.OpSubmit, err).
				WithMetadata("item_id", item.ID).
				WithMetadata("action", item.Action)
		}
		if err := m.queue.Remove(ctx, item.ID); err != nil {
			return replayed, err
		}
		replayed++
	}
	return replayed, nil
}

// reconcile fetches the server snapshot, resolves it against the cached
// local one, and writes the merged snapshot back to storage and server.
func (m *Manager) reconcile(ctx context.Context, result *SyncResult) error {
	local, err := m.snapshots.LoadSnapshot(ctx)
	if err != nil {
		return syncErrors.NewStorageError(syncErrors.OpLoad, err)
	}

	var server DomainSnapshot
	fetch := func() error {
		var ferr error
		server, ferr = m.transport.FetchSnapshot(ctx)
		return ferr
	}
	if err := m.withRetry(ctx, fetch); err != nil {
		m.options.Metrics.RecordSyncErrors("reconcile", "fetch_failure")
		return syncErrors.NewNetworkError(syncErrors.OpFetch, err)
	}

	merged, err := Resolve(local, server, m.options.Strategy)
	if err != nil {
		return err
	}

	if err := m.snapshots.SaveSnapshot(ctx, merged); err != nil {
		return syncErrors.NewStorageError(syncErrors.OpStore, err)
	}

	push := func() error {
		return m.transport.PushSnapshot(ctx, merged)
	}
	if err := m.withRetry(ctx, push); err != nil {
		m.options.Metrics.RecordSyncErrors("reconcile", "push_failure")
		return syncErrors.NewNetworkError(syncErrors.OpPush, err)
	}

	return nil
}

type exponentialBackoff struct {
	initialDelay time.Duration
	maxDelay     time.Duration
	multiplier   float64
}

func (eb *exponentialBackoff) nextDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	delay := float64(eb.initialDelay)
	for i := 0; i < attempt; i++ {
		delay *= eb.multiplier
	}
	result := time.Duration(delay)
	if result > eb.maxDelay {
		result = eb.maxDelay
	}
	return result
}

// withRetry executes operation, retrying retryable errors with exponential
// backoff when a RetryConfig is set.
func (m *Manager) withRetry(ctx context.Context, operation func() error) error {
	if m.options.Retry == nil {
		return operation()
	}

	config := m.options.Retry
	eb := &exponentialBackoff{
		initialDelay: config.InitialDelay,
		maxDelay:     config.MaxDelay,
		multiplier:   config.Multiplier,
	}

	err := operation()
	if err == nil {
		return nil
	}
	if !retryable(err) {
		return err
	}

	for attempt := 1; attempt < config.MaxAttempts; attempt++ {
		delay := eb.nextDelay(attempt - 1)
		m.logger.Debug("retrying after failure",
			slog.Int("attempt", attempt+1),
			slog.Duration("delay", delay))

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		err = operation()
		if err == nil {
			return nil
		}
		if !retryable(err) {
			return err
		}
	}

	return err
}

// retryable treats structured retryable errors and raw transport failures as
// candidates for another attempt; context cancellation never is.
func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var syncErr *syncErrors.SyncError
	if errors.As(err, &syncErr) {
		return syncErr.Retryable
	}
	// Raw errors from a Transport implementation are assumed transient.
	return true
}

func (m *Manager) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if m.options.Timeout > 0 {
		return context.WithTimeout(ctx, m.options.Timeout)
	}
	return context.WithTimeout(ctx, 30*time.Second)
}

// StartAutoSync begins automatic synchronization at the configured interval.
func (m *Manager) StartAutoSync(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return syncErrors.New(syncErrors.OpReplay, fmt.Errorf("sync manager is closed"))
	}
	if m.options.SyncInterval <= 0 {
		return syncErrors.NewValidationError(syncErrors.OpReplay,
			fmt.Errorf("sync interval must be positive"))
	}
	if m.autoSyncStop != nil {
		return syncErrors.New(syncErrors.OpReplay, fmt.Errorf("auto sync is already running"))
	}

	stopChan := make(chan struct{})
	m.autoSyncStop = stopChan

	go func() {
		ticker := time.NewTicker(m.options.SyncInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-stopChan:
				return
			case <-ticker.C:
				syncCtx, cancel := m.withTimeout(ctx)
				_, err := m.Sync(syncCtx)
				cancel()
				if err != nil {
					m.logger.LogError(ctx, err, "auto sync cycle failed")
				}
			}
		}
	}()

	return nil
}

// StopAutoSync stops automatic synchronization.
func (m *Manager) StopAutoSync() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.autoSyncStop == nil {
		return syncErrors.New(syncErrors.OpReplay, fmt.Errorf("auto sync is not running"))
	}
	close(m.autoSyncStop)
	m.autoSyncStop = nil
	return nil
}

// Subscribe registers a handler notified after every sync cycle.
func (m *Manager) Subscribe(handler func(*SyncResult)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return syncErrors.New(syncErrors.OpReplay, fmt.Errorf("sync manager is closed"))
	}
	m.subscribers = append(m.subscribers, handler)
	return nil
}

// Close shuts down the manager, its transport, and its stores. Idempotent.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true

	if m.autoSyncStop != nil {
		close(m.autoSyncStop)
		m.autoSyncStop = nil
	}

	var errs []error
	if err := m.transport.Close(); err != nil {
		errs = append(errs, syncErrors.NewWithComponent(syncErrors.OpClose, "transport", err))
	}
	if err := m.snapshots.Close(); err != nil {
		errs = append(errs, syncErrors.NewWithComponent(syncErrors.OpClose, "store", err))
	}
	if len(errs) > 0 {
		return syncErrors.New(syncErrors.OpClose, fmt.Errorf("multiple close errors: %v", errs))
	}
	return nil
}

func (m *Manager) notifySubscribers(result *SyncResult) {
	m.mu.RLock()
	subscribers := make([]func(*SyncResult), len(m.subscribers))
	copy(subscribers, m.subscribers)
	m.mu.RUnlock()

	for _, handler := range subscribers {
		go func(h func(*SyncResult)) {
			defer func() {
				if r := recover(); r != nil {
					m.logger.Error("subscriber panic recovered", slog.Any("panic", r))
				}
			}()
			h(result)
		}(handler)
	}
}
