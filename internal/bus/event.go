package bus

import (
	"context"

	"github.com/roach88/attrflow/internal/ir"
)

// Event is a single sensor change published by a producer.
type Event struct {
	// Producer is the ID of the entity whose sensor changed.
	Producer string

	// Sensor identifies the attribute that changed.
	Sensor ir.Sensor

	// Value is the value written. Null means the sensor was cleared.
	Value ir.Value

	// Seq is the publish sequence number of this value for (Producer, Sensor).
	Seq int64

	// Initial marks the synthetic delivery of a pre-existing value at
	// subscribe time.
	Initial bool
}

// Listener receives events for a subscription.
// Returning an error only logs it; delivery continues with the next event.
type Listener interface {
	OnEvent(ctx context.Context, ev Event) error
}

// ListenerFunc adapts a function to the Listener interface.
type ListenerFunc func(ctx context.Context, ev Event) error

// OnEvent calls f.
func (f ListenerFunc) OnEvent(ctx context.Context, ev Event) error {
	return f(ctx, ev)
}

// Source is a producer that can be subscribed to.
//
// Observe must call fn exactly once while holding the mutual-exclusion
// domain that serializes writes and publications for (ID(), sensor).
type Source interface {
	ID() string
	Observe(sensor ir.Sensor, fn func(current ir.Value, seq int64, present bool))
}

// Journal records every published event. Record is called in publish order
// for any given (producer, sensor).
type Journal interface {
	Record(ctx context.Context, ev Event) error
}
