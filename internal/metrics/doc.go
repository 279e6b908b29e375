// Package metrics collects failover metrics for the replica client.
//
// It uses a channel-based event pipeline to asynchronously collect:
//   - Logical request and exhaustion counts
//   - Health probes and probe failures per replica
//   - Attempts, evictions and failure kinds per replica
//   - Attempt latency with percentile calculations (P50, P95, P99)
//   - HTTP status code distribution
//
// The collector runs in a dedicated goroutine. Emit never blocks: when the
// buffer is full the event is dropped so the request path is not slowed down.
//
// Example usage:
//
//	collector := metrics.NewCollector(1000, logger)
//	collector.Start(ctx)
//
//	collector.Emit(metrics.MetricEvent{
//		Type:       metrics.EventAttempt,
//		Replica:    "http1",
//		Duration:   150 * time.Millisecond,
//		StatusCode: 200,
//	})
//
//	snapshot := collector.Snapshot("ordered")
//
// Emit is safe on a nil *Collector, so components can run without metrics.
package metrics
