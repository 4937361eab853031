// Package harness runs scenario files against a live topology.
//
// A scenario builds a fresh world from a CUE topology, journals every
// sensor event to an in-memory SQLite store, applies its steps one at a
// time (waiting for propagation to settle after each) and then evaluates
// assertions against the final sensor values and the journal.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: counts
//	description: "Two updating maps share one target"
//	topology: ../topology       # directory, relative to the scenario file
//	steps:
//	  - set: {entity: app, sensor: a, value: 1}
//	  - parallel:
//	      - {entity: app, sensor: a, value: 2}
//	      - {entity: app, sensor: b, value: 3}
//	  - destroy_enricher: count_a
//	  - reconfigure:
//	      enricher: count_b
//	      option: suppress_duplicates
//	      value: true
//	      expect_error: true
//	assertions:
//	  - type: final_value
//	    entity: app
//	    sensor: counts
//	    value: {b: 3}
//	  - type: absent
//	    entity: app
//	    sensor: missing
//	  - type: write_count
//	    entity: app
//	    sensor: counts
//	    count: 3
//	  - type: trace_count
//	    entity: app
//	    count: 6
//
// # Assertion Types
//
//   - final_value: the sensor is present and equal to value
//   - absent: the sensor has never been set (or holds nothing)
//   - write_count: number of committed writes to the sensor
//   - trace_count: number of journaled events, optionally filtered by
//     entity and sensor
//
// # Deterministic Traces
//
// Trace events are grouped by step. Inside a step they are ordered by
// entity, sensor and per-sensor sequence, so a scenario without parallel
// steps yields a byte-identical trace on every run. Parallel steps may
// produce interleaving-dependent intermediate values; keep them out of
// golden scenarios.
package harness
