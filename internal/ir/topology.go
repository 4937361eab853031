package ir

import "slices"

// EnricherKind names an enricher implementation.
type EnricherKind string

const (
	EnricherTransformer EnricherKind = "transformer"
	EnricherUpdatingMap EnricherKind = "updating_map"
	EnricherCombiner    EnricherKind = "combiner"
)

// SensorSpec declares a sensor. TypeName is kept as written so that
// validation can report float and unknown types precisely.
type SensorSpec struct {
	Name     string `json:"name"`
	TypeName string `json:"type"`
}

// Sensor returns the declared sensor. An invalid type yields KindAny;
// validation reports it separately.
func (s SensorSpec) Sensor() Sensor {
	kind, err := ParseKind(s.TypeName)
	if err != nil {
		kind = KindAny
	}
	return NewSensor(s.Name, kind)
}

// EntitySpec declares an entity, its owner and its initial sensor values.
type EntitySpec struct {
	Name   string `json:"name"`
	Parent string `json:"parent,omitempty"`
	Init   Map    `json:"init,omitempty"`
}

// EnricherSpec declares an enricher attached to Entity.
type EnricherSpec struct {
	Name     string       `json:"name"`
	Kind     EnricherKind `json:"kind"`
	Entity   string       `json:"entity"`
	Producer string       `json:"producer,omitempty"`

	Source  string   `json:"source,omitempty"`
	Sources []string `json:"sources,omitempty"`
	Target  string   `json:"target"`

	// Computing is a CUE expression over `in`.
	Computing string `json:"computing"`

	Key                    string `json:"key,omitempty"`
	RemovingIfResultIsNull *bool  `json:"removing_if_result_is_null,omitempty"`
	SuppressDuplicates     *bool  `json:"suppress_duplicates,omitempty"`
}

// ProducerName returns the producer, defaulting to the owning entity.
func (e EnricherSpec) ProducerName() string {
	if e.Producer != "" {
		return e.Producer
	}
	return e.Entity
}

// SourceNames returns the observed sensor names for any kind.
func (e EnricherSpec) SourceNames() []string {
	if e.Kind == EnricherCombiner {
		return e.Sources
	}
	if e.Source == "" {
		return nil
	}
	return []string{e.Source}
}

// Topology is a compiled set of sensors, entities and enrichers.
// Each slice is sorted by name.
type Topology struct {
	Sensors   []SensorSpec   `json:"sensors"`
	Entities  []EntitySpec   `json:"entities"`
	Enrichers []EnricherSpec `json:"enrichers"`
}

// Sensor looks up a declared sensor by name.
func (t *Topology) Sensor(name string) (Sensor, bool) {
	i := slices.IndexFunc(t.Sensors, func(s SensorSpec) bool { return s.Name == name })
	if i < 0 {
		return Sensor{}, false
	}
	return t.Sensors[i].Sensor(), true
}

// Entity looks up a declared entity by name.
func (t *Topology) Entity(name string) (EntitySpec, bool) {
	i := slices.IndexFunc(t.Entities, func(e EntitySpec) bool { return e.Name == name })
	if i < 0 {
		return EntitySpec{}, false
	}
	return t.Entities[i], true
}

// Enricher looks up a declared enricher by name.
func (t *Topology) Enricher(name string) (EnricherSpec, bool) {
	i := slices.IndexFunc(t.Enrichers, func(e EnricherSpec) bool { return e.Name == name })
	if i < 0 {
		return EnricherSpec{}, false
	}
	return t.Enrichers[i], true
}
