// Package bus routes sensor change events from producers to subscribed
// listeners.
//
// ARCHITECTURE:
//
// Every subscription owns an unbounded FIFO queue and a single worker
// goroutine. Publishing only enqueues, so a slow or failing listener never
// blocks the producer or its sibling listeners.
//
// Ordering:
//   - Deliveries for one (producer, sensor, listener) triple are strictly
//     FIFO in publish order. The attribute store publishes while it still
//     holds the (entity, sensor) lock, so queue order equals write order.
//   - Nothing is promised across sensors or across listeners; deliveries of
//     one event to different listeners run concurrently.
//
// Failure isolation:
// A listener that returns an error or panics is logged at the bus boundary
// and counted in metrics. Its siblings and the registry are unaffected, and
// the failing subscription stays live.
//
// Initial values:
// Subscribe reads the producer's current value under the same lock used for
// writes, registers, and enqueues one synthetic event before releasing it.
// The synthetic event therefore precedes every later real event, exactly once.
package bus
