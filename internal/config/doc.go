// Package config provides the typed configuration lookup used by enrichers.
//
// A Key[T] names one option together with its description, its default and
// whether it is required. Values live in a Bag. Vetoes registered on a Bag
// run before a value is stored, so a rejected change leaves the previous
// configuration intact.
//
//	var Target = config.NewRequiredKey[ir.Sensor]("enricher.targetSensor", "sensor to write")
//
//	bag := config.NewBag()
//	_ = config.Set(bag, Target, ir.NewSensor("total", ir.KindInt))
//	target, err := config.Require(bag, Target)
package config
