package ir

import "fmt"

// Kind is the declared value kind of a sensor.
type Kind string

const (
	KindAny    Kind = "any"
	KindString Kind = "string"
	KindInt    Kind = "int"
	KindBool   Kind = "bool"
	KindList   Kind = "list"
	KindMap    Kind = "map"
)

// ParseKind converts a declared type name into a Kind.
// Floats are rejected so that sensor values stay canonically encodable.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindAny, KindString, KindInt, KindBool, KindList, KindMap:
		return Kind(s), nil
	case "":
		return KindAny, nil
	}
	switch s {
	case "float", "number":
		return "", fmt.Errorf("float sensors are not supported: %q", s)
	case "array":
		return KindList, nil
	case "object":
		return KindMap, nil
	}
	return "", fmt.Errorf("unknown sensor type %q", s)
}

// Sensor is a named, typed attribute slot. Identity is the (Name, Type) pair,
// so Sensor is comparable and used directly as a map key.
type Sensor struct {
	Name string `json:"name"`
	Type Kind   `json:"type"`
}

// NewSensor creates a sensor. An empty kind declares KindAny.
func NewSensor(name string, kind Kind) Sensor {
	if kind == "" {
		kind = KindAny
	}
	return Sensor{Name: name, Type: kind}
}

// String renders the sensor as "name:type".
func (s Sensor) String() string {
	return s.Name + ":" + string(s.Type)
}

// IsComposite reports whether the sensor holds a map value that may be shared
// between independent writers.
func (s Sensor) IsComposite() bool {
	return s.Type == KindMap
}

// Accepts reports whether v may be stored in this sensor.
// Null is accepted by every sensor.
func (s Sensor) Accepts(v Value) bool {
	if IsNull(v) || s.Type == KindAny || s.Type == "" {
		return true
	}
	return KindOf(v) == s.Type
}
