package compiler

import (
	"fmt"

	"github.com/roach88/attrflow/internal/compute"
	"github.com/roach88/attrflow/internal/ir"
)

// Validation error codes (E100-E199)
const (
	ErrUnknownSensor        = "E101" // sensor referenced but not declared
	ErrMissingField         = "E102" // required field is empty
	ErrUnknownEntity        = "E103" // entity referenced but not declared
	ErrInvalidKind          = "E104" // enricher kind not recognized
	ErrInvalidSensorType    = "E105" // sensor type not recognized
	ErrFloatTypeForbidden   = "E106" // float types not allowed
	ErrSuppressionForbidden = "E107" // suppress_duplicates on an updating map
	ErrParentCycle          = "E108" // entity is its own ancestor
	ErrTargetKindMismatch   = "E109" // target sensor kind does not fit the enricher
	ErrInvalidExpression    = "E110" // computing does not compile
	ErrInitTypeMismatch     = "E111" // init value not accepted by its sensor
	ErrDuplicateSource      = "E112" // combiner lists a source twice
)

// ValidationError represents a topology validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate checks cross references and enricher settings of a compiled
// topology. Returns all errors found (does not fail-fast), in declaration
// order: sensors, entities, enrichers.
func Validate(topo *ir.Topology) []ValidationError {
	var errs []ValidationError
	errs = append(errs, validateSensors(topo)...)
	errs = append(errs, validateEntities(topo)...)
	for _, spec := range topo.Enrichers {
		errs = append(errs, validateEnricher(topo, spec)...)
	}
	return errs
}

func validateSensors(topo *ir.Topology) []ValidationError {
	var errs []ValidationError
	for _, s := range topo.Sensors {
		field := "sensor." + s.Name
		if isFloatType(s.TypeName) {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("float type forbidden for sensor %q, use int instead", s.Name),
				Code:    ErrFloatTypeForbidden,
			})
			continue
		}
		if _, err := ir.ParseKind(s.TypeName); err != nil {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: err.Error(),
				Code:    ErrInvalidSensorType,
			})
		}
	}
	return errs
}

func validateEntities(topo *ir.Topology) []ValidationError {
	var errs []ValidationError
	for _, e := range topo.Entities {
		field := "entity." + e.Name

		if e.Parent != "" {
			if _, ok := topo.Entity(e.Parent); !ok {
				errs = append(errs, ValidationError{
					Field:   field + ".parent",
					Message: fmt.Sprintf("unknown parent entity %q", e.Parent),
					Code:    ErrUnknownEntity,
				})
			} else if parentCycle(topo, e.Name) {
				errs = append(errs, ValidationError{
					Field:   field + ".parent",
					Message: fmt.Sprintf("entity %q is its own ancestor", e.Name),
					Code:    ErrParentCycle,
				})
			}
		}

		for _, name := range e.Init.SortedKeys() {
			sensor, ok := topo.Sensor(name)
			if !ok {
				errs = append(errs, ValidationError{
					Field:   field + ".init." + name,
					Message: fmt.Sprintf("unknown sensor %q", name),
					Code:    ErrUnknownSensor,
				})
				continue
			}
			if v := e.Init[name]; !sensor.Accepts(v) {
				errs = append(errs, ValidationError{
					Field:   field + ".init." + name,
					Message: fmt.Sprintf("sensor %s does not accept %s", sensor, ir.Format(v)),
					Code:    ErrInitTypeMismatch,
				})
			}
		}
	}
	return errs
}

// parentCycle reports whether walking up from name returns to name.
func parentCycle(topo *ir.Topology, name string) bool {
	seen := map[string]bool{name: true}
	cur, _ := topo.Entity(name)
	for cur.Parent != "" {
		if cur.Parent == name {
			return true
		}
		if seen[cur.Parent] {
			// A cycle further up; reported on its own members.
			return false
		}
		seen[cur.Parent] = true
		next, ok := topo.Entity(cur.Parent)
		if !ok {
			return false
		}
		cur = next
	}
	return false
}

func validateEnricher(topo *ir.Topology, spec ir.EnricherSpec) []ValidationError {
	var errs []ValidationError
	field := "enricher." + spec.Name

	missing := func(name string) {
		errs = append(errs, ValidationError{
			Field:   field + "." + name,
			Message: fmt.Sprintf("%s is required", name),
			Code:    ErrMissingField,
		})
	}

	switch spec.Kind {
	case ir.EnricherTransformer, ir.EnricherUpdatingMap, ir.EnricherCombiner:
	case "":
		missing("kind")
	default:
		errs = append(errs, ValidationError{
			Field:   field + ".kind",
			Message: fmt.Sprintf("invalid enricher kind %q, must be \"transformer\", \"updating_map\" or \"combiner\"", spec.Kind),
			Code:    ErrInvalidKind,
		})
	}

	entityRef := func(name, value string) {
		if value == "" {
			return
		}
		if _, ok := topo.Entity(value); !ok {
			errs = append(errs, ValidationError{
				Field:   field + "." + name,
				Message: fmt.Sprintf("unknown entity %q", value),
				Code:    ErrUnknownEntity,
			})
		}
	}
	if spec.Entity == "" {
		missing("entity")
	}
	entityRef("entity", spec.Entity)
	entityRef("producer", spec.Producer)

	sensorRef := func(name, value string) (ir.Sensor, bool) {
		s, ok := topo.Sensor(value)
		if !ok {
			errs = append(errs, ValidationError{
				Field:   field + "." + name,
				Message: fmt.Sprintf("unknown sensor %q", value),
				Code:    ErrUnknownSensor,
			})
		}
		return s, ok
	}

	if spec.Kind == ir.EnricherCombiner {
		if len(spec.Sources) == 0 {
			missing("sources")
		}
		seen := make(map[string]bool, len(spec.Sources))
		for i, src := range spec.Sources {
			if seen[src] {
				errs = append(errs, ValidationError{
					Field:   fmt.Sprintf("%s.sources[%d]", field, i),
					Message: fmt.Sprintf("duplicate source sensor %q", src),
					Code:    ErrDuplicateSource,
				})
				continue
			}
			seen[src] = true
			sensorRef(fmt.Sprintf("sources[%d]", i), src)
		}
	} else if spec.Source == "" {
		missing("source")
	} else {
		sensorRef("source", spec.Source)
	}

	if spec.Target == "" {
		missing("target")
	} else if target, ok := sensorRef("target", spec.Target); ok {
		wantMap := spec.Kind == ir.EnricherUpdatingMap
		if target.IsComposite() != wantMap {
			msg := fmt.Sprintf("%s target %s must not be a map sensor", spec.Kind, target)
			if wantMap {
				msg = fmt.Sprintf("updating_map target %s must be a map sensor", target)
			}
			errs = append(errs, ValidationError{
				Field:   field + ".target",
				Message: msg,
				Code:    ErrTargetKindMismatch,
			})
		}
	}

	if spec.Computing == "" {
		missing("computing")
	} else if _, err := compute.Compile(spec.Computing); err != nil {
		errs = append(errs, ValidationError{
			Field:   field + ".computing",
			Message: err.Error(),
			Code:    ErrInvalidExpression,
		})
	}

	if spec.Kind == ir.EnricherUpdatingMap && spec.SuppressDuplicates != nil && *spec.SuppressDuplicates {
		errs = append(errs, ValidationError{
			Field:   field + ".suppress_duplicates",
			Message: "an updating map never suppresses duplicates",
			Code:    ErrSuppressionForbidden,
		})
	}

	return errs
}

// isFloatType checks if a type string represents a float type.
func isFloatType(t string) bool {
	floatTypes := map[string]bool{
		"float":   true,
		"float32": true,
		"float64": true,
		"number":  true,
		"double":  true,
	}
	return floatTypes[t]
}
