package entity

import (
	"errors"
	"fmt"

	"github.com/roach88/attrflow/internal/ir"
)

// ErrCompositeSensor is returned by Set on a map sensor.
// Map sensors are shared between writers and must be changed with Update.
var ErrCompositeSensor = errors.New("composite sensor can only be changed with Update")

// EntityDestroyedError is returned when writing to a torn-down entity.
type EntityDestroyedError struct {
	EntityID string
	Sensor   ir.Sensor
}

// Error implements the error interface.
func (e *EntityDestroyedError) Error() string {
	if e.Sensor.Name == "" {
		return fmt.Sprintf("entity %s is destroyed", e.EntityID)
	}
	return fmt.Sprintf("entity %s is destroyed: cannot write %s", e.EntityID, e.Sensor)
}

// IsEntityDestroyed returns true if err is an EntityDestroyedError.
// Uses errors.As to handle wrapped errors.
func IsEntityDestroyed(err error) bool {
	var de *EntityDestroyedError
	return errors.As(err, &de)
}

// TypeMismatchError is returned when a value does not match the sensor's
// declared kind.
type TypeMismatchError struct {
	Sensor ir.Sensor
	Got    ir.Kind
}

// Error implements the error interface.
func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("sensor %s does not accept %s value", e.Sensor, e.Got)
}
