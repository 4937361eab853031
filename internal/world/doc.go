// Package world assembles a running set of entities and enrichers from a
// compiled topology.
//
// Build creates one bus, one entity per declared entity (parents before
// children), applies init values, then attaches every enricher in name
// order. A World is the unit that the CLI run command and the scenario
// harness drive: they set sensors, wait for propagation to settle and read
// the results back.
//
// Entity and enricher IDs are their topology names, so journals written by
// two runs of the same topology line up.
package world
