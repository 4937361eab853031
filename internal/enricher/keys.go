package enricher

import (
	"github.com/roach88/attrflow/internal/config"
	"github.com/roach88/attrflow/internal/entity"
	"github.com/roach88/attrflow/internal/ir"
)

// Configuration keys recognized by the enrichers in this package.
var (
	Producer = config.NewKey[*entity.Entity](
		"producer", "entity whose source sensor is observed; defaults to the owning entity")

	SourceSensor = config.NewRequiredKey[ir.Sensor](
		"sourceSensor", "sensor observed on the producer")

	SourceSensors = config.NewRequiredKey[[]ir.Sensor](
		"sourceSensors", "sensors observed on the producer by a combiner")

	TargetSensor = config.NewRequiredKey[ir.Sensor](
		"targetSensor", "sensor written on the owning entity")

	Computing = config.NewRequiredKey[Computation](
		"computing", "function from source value to result")

	SuppressDuplicates = config.NewKeyWithDefault(
		"suppressDuplicates", "skip writes equal to the last value this enricher wrote", true)

	KeyInTargetSensor = config.NewKey[string](
		"keyInTargetSensor", "map key owned by an updating map; defaults to the source sensor name")

	RemovingIfResultIsNull = config.NewKeyWithDefault(
		"removingIfResultIsNull", "remove the key when the computed value is null", true)
)
