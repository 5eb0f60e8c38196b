// Package metrics collects traffic counters for every tap.
//
// Interceptors emit events on a buffered channel without blocking; a single
// collector goroutine folds them into per-tap counters:
//   - Requests received
//   - Requests answered from a pinned response
//   - Responses forwarded from upstream, by status code, with P50/P95/P99 latency
//   - Forwarding failures
//
// Example usage:
//
//	collector := metrics.NewCollector(1000, logger)
//	collector.Start(ctx)
//
//	collector.Emit(metrics.MetricEvent{
//		Type:       metrics.EventResponseRecorded,
//		Tap:        "1",
//		Duration:   150 * time.Millisecond,
//		StatusCode: 200,
//	})
//
//	snapshot := collector.Snapshot()
//
// Pending events are drained when the collector's context is cancelled.
package metrics
