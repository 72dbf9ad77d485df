package medsync

import "time"

// MetricsCollector provides hooks for collecting sync operation metrics.
type MetricsCollector interface {
	// RecordSyncDuration records how long a sync operation took
	RecordSyncDuration(operation string, duration time.Duration)

	// RecordReplay records the number of queue items replayed and deduped
	RecordReplay(replayed, deduped int)

	// RecordSyncErrors records sync operation errors by type
	RecordSyncErrors(operation string, errorType string)

	// RecordQueueDepth records the pending queue depth after a sync cycle
	RecordQueueDepth(depth int)
}

// NoOpMetricsCollector is a default implementation that does nothing.
type NoOpMetricsCollector struct{}

func (n *NoOpMetricsCollector) RecordSyncDuration(operation string, duration time.Duration) {}
func (n *NoOpMetricsCollector) RecordReplay(replayed, deduped int)                           {}
func (n *NoOpMetricsCollector) RecordSyncErrors(operation string, errorType string)          {}
func (n *NoOpMetricsCollector) RecordQueueDepth(depth int)                                   {}
