package store

import (
	"path/filepath"
	"testing"

	"github.com/roach88/attrflow/internal/bus"
	"github.com/roach88/attrflow/internal/ir"
)

// createTestStore creates a new store in a temporary directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// event creates a bus event with minimal fields.
func event(entityID, sensor string, kind ir.Kind, seq int64, v ir.Value) bus.Event {
	return bus.Event{
		Producer: entityID,
		Sensor:   ir.NewSensor(sensor, kind),
		Value:    v,
		Seq:      seq,
	}
}
