package medsync

import (
	"fmt"
	"time"

	"github.com/dosetrack/medsync/logging"
)

// ManagerBuilder provides a fluent interface for constructing Manager
// instances.
type ManagerBuilder struct {
	queue     *Queue
	snapshots SnapshotStore
	transport Transport
	options   SyncOptions
}

// NewManagerBuilder creates a new builder with default options.
func NewManagerBuilder() *ManagerBuilder {
	return &ManagerBuilder{
		options: SyncOptions{
			Strategy: StrategyMedicalPriority,
		},
	}
}

// WithQueue sets the mutation queue.
func (b *ManagerBuilder) WithQueue(queue *Queue) *ManagerBuilder {
	b.queue = queue
	return b
}

// WithSnapshotStore sets the cached snapshot store.
func (b *ManagerBuilder) WithSnapshotStore(store SnapshotStore) *ManagerBuilder {
	b.snapshots = store
	return b
}

// WithTransport sets the remote data collaborator.
func (b *ManagerBuilder) WithTransport(transport Transport) *ManagerBuilder {
	b.transport = transport
	return b
}

// WithStrategy sets the conflict resolution strategy.
func (b *ManagerBuilder) WithStrategy(strategy Strategy) *ManagerBuilder {
	b.options.Strategy = strategy
	return b
}

// WithTimeout sets the maximum duration for one sync cycle.
func (b *ManagerBuilder) WithTimeout(timeout time.Duration) *ManagerBuilder {
	b.options.Timeout = timeout
	return b
}

// WithSyncInterval sets the interval for automatic synchronization.
func (b *ManagerBuilder) WithSyncInterval(interval time.Duration) *ManagerBuilder {
	b.options.SyncInterval = interval
	return b
}

// WithRetry sets the retry policy for retryable failures.
func (b *ManagerBuilder) WithRetry(config RetryConfig) *ManagerBuilder {
	b.options.Retry = &config
	return b
}

// WithMetrics sets the metrics collector.
func (b *ManagerBuilder) WithMetrics(metrics MetricsCollector) *ManagerBuilder {
	b.options.Metrics = metrics
	return b
}

// WithLogger sets the logger.
func (b *ManagerBuilder) WithLogger(logger *logging.Logger) *ManagerBuilder {
	b.options.Logger = logger
	return b
}

// Build creates a new Manager instance with the configured options.
func (b *ManagerBuilder) Build() (*Manager, error) {
	if b.queue == nil {
		return nil, fmt.Errorf("queue is required")
	}
	if b.snapshots == nil {
		return nil, fmt.Errorf("snapshot store is required")
	}
	if b.transport == nil {
		return nil, fmt.Errorf("transport is required")
	}
	if _, err := ParseStrategy(string(b.options.Strategy)); err != nil {
		return nil, err
	}
	if b.options.Retry != nil {
		r := b.options.Retry
		if r.MaxAttempts <= 0 {
			return nil, fmt.Errorf("retry MaxAttempts must be positive, got %d", r.MaxAttempts)
		}
		if r.Multiplier < 1 {
			return nil, fmt.Errorf("retry Multiplier must be >= 1, got %v", r.Multiplier)
		}
	}

	return NewManager(b.queue, b.snapshots, b.transport, b.options), nil
}
