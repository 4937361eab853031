package enricher

import (
	"errors"
	"fmt"

	"github.com/roach88/attrflow/internal/ir"
)

// ComputationError is reported when a computing function fails or panics.
// The event is dropped; the enricher stays subscribed.
type ComputationError struct {
	Enricher string
	Entity   string
	Producer string
	Sensor   ir.Sensor
	Seq      int64
	Cause    error
}

// Error implements the error interface.
func (e *ComputationError) Error() string {
	return fmt.Sprintf("enricher %s on %s: computing %s from %s (seq %d): %v",
		e.Enricher, e.Entity, e.Sensor.Name, e.Producer, e.Seq, e.Cause)
}

// Unwrap returns the underlying cause.
func (e *ComputationError) Unwrap() error {
	return e.Cause
}

// IsComputationError returns true if err is a ComputationError.
// Uses errors.As to handle wrapped errors.
func IsComputationError(err error) bool {
	var ce *ComputationError
	return errors.As(err, &ce)
}

// StateError is returned when a lifecycle operation is invalid in the
// enricher's current state.
type StateError struct {
	Enricher string
	Op       string
	State    State
}

// Error implements the error interface.
func (e *StateError) Error() string {
	return fmt.Sprintf("enricher %s: cannot %s in state %s", e.Enricher, e.Op, e.State)
}
