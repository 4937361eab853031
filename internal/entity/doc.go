// Package entity provides entities and their attribute stores.
//
// An Entity owns exactly one AttributeStore, a mapping from ir.Sensor to the
// sensor's current value. Every (entity, sensor) pair has its own slot with
// its own mutex. Writes through Set and Update are serialized on that mutex,
// and the resulting event is handed to the bus while the mutex is still held.
// Subscribers therefore see values in exactly the order they were written.
//
// Map sensors may be shared by several independent writers. They can only be
// changed through Update, which runs a read-modify-write function under the
// slot mutex. Set on a map sensor fails with ErrCompositeSensor.
//
// Entities form an ownership tree (Parent/Children). Enrichers attach to an
// entity with AddEnricher, which runs their Init hook, and are torn down by
// RemoveEnricher or Entity.Destroy.
package entity
