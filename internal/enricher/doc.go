// Package enricher implements derived sensors.
//
// An enricher observes one or more source sensors on a producer entity and
// writes a computed value to a target sensor on the entity it is attached
// to. Three kinds are provided:
//
//   - Transformer: target = computing(source), with optional duplicate
//     suppression.
//   - UpdatingMap: maintains one key of a shared map-valued target sensor.
//     Several instances may share the same target, each owning its own key.
//   - Combiner: target = computing({source name: latest value, ...}) once
//     every source has a value.
//
// # Lifecycle
//
// Every enricher moves through Created → Initialized → Subscribed →
// Destroyed. Init resolves and validates configuration and subscribes with
// delivery of the current source value. Destroy is terminal and idempotent.
//
// CRITICAL: the liveness check and the store write happen under the same
// read lock that Destroy takes exclusively. Once Destroy returns, the
// enricher never writes again, even if a delivery was already in flight.
//
// # Computation results
//
// A Computation returns a tagged Result: a Value, Remove or Unchanged.
// Unchanged never writes. Remove clears the target (Transformer, Combiner)
// or deletes the key (UpdatingMap).
package enricher
