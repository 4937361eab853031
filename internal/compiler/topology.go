package compiler

import (
	"fmt"
	"slices"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/attrflow/internal/ir"
)

// CompileTopology parses a CUE value into a Topology.
// Uses CUE SDK's Go API directly (not CLI subprocess).
//
// The value is the root of a topology:
//
//	sensor: cpu: "int"
//	entity: app: {}
//	enricher: doubled: {kind: "transformer", entity: "app", source: "cpu", target: "cpu2", computing: "in * 2"}
//
// CompileTopology only checks structure. Cross references are checked by
// Validate.
func CompileTopology(v cue.Value) (*ir.Topology, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	topo := &ir.Topology{
		Sensors:   []ir.SensorSpec{},
		Entities:  []ir.EntitySpec{},
		Enrichers: []ir.EnricherSpec{},
	}

	if err := eachField(v, "sensor", func(name string, fv cue.Value) error {
		typeName, err := extractTypeName(fv)
		if err != nil {
			return err
		}
		topo.Sensors = append(topo.Sensors, ir.SensorSpec{Name: name, TypeName: typeName})
		return nil
	}); err != nil {
		return nil, err
	}

	if err := eachField(v, "entity", func(name string, fv cue.Value) error {
		spec, err := compileEntity(name, fv)
		if err != nil {
			return err
		}
		topo.Entities = append(topo.Entities, spec)
		return nil
	}); err != nil {
		return nil, err
	}

	if err := eachField(v, "enricher", func(name string, fv cue.Value) error {
		spec, err := compileEnricher(name, fv)
		if err != nil {
			return err
		}
		topo.Enrichers = append(topo.Enrichers, spec)
		return nil
	}); err != nil {
		return nil, err
	}

	slices.SortFunc(topo.Sensors, func(a, b ir.SensorSpec) int { return strings.Compare(a.Name, b.Name) })
	slices.SortFunc(topo.Entities, func(a, b ir.EntitySpec) int { return strings.Compare(a.Name, b.Name) })
	slices.SortFunc(topo.Enrichers, func(a, b ir.EnricherSpec) int { return strings.Compare(a.Name, b.Name) })

	return topo, nil
}

// eachField calls fn for every regular field of the struct at path.
// A missing path is not an error.
func eachField(v cue.Value, path string, fn func(name string, fv cue.Value) error) error {
	sv := v.LookupPath(cue.ParsePath(path))
	if !sv.Exists() {
		return nil
	}
	iter, err := sv.Fields()
	if err != nil {
		return &CompileError{Field: path, Message: "must be a struct", Pos: sv.Pos()}
	}
	for iter.Next() {
		if err := iter.Value().Err(); err != nil {
			return formatCUEError(err)
		}
		if err := fn(iter.Selector().Unquoted(), iter.Value()); err != nil {
			return err
		}
	}
	return nil
}

func compileEntity(name string, v cue.Value) (ir.EntitySpec, error) {
	spec := ir.EntitySpec{Name: name}

	var err error
	if spec.Parent, err = optString(v, "parent"); err != nil {
		return spec, err
	}

	initVal := v.LookupPath(cue.ParsePath("init"))
	if initVal.Exists() {
		var raw map[string]any
		if err := initVal.Decode(&raw); err != nil {
			return spec, &CompileError{Field: "init", Message: err.Error(), Pos: initVal.Pos()}
		}
		converted, err := ir.FromAny(raw)
		if err != nil {
			return spec, &CompileError{Field: "init", Message: err.Error(), Pos: initVal.Pos()}
		}
		spec.Init = converted.(ir.Map)
	}

	return spec, nil
}

func compileEnricher(name string, v cue.Value) (ir.EnricherSpec, error) {
	spec := ir.EnricherSpec{Name: name}

	fields := []struct {
		name string
		dst  *string
	}{
		{"entity", &spec.Entity},
		{"producer", &spec.Producer},
		{"source", &spec.Source},
		{"target", &spec.Target},
		{"computing", &spec.Computing},
		{"key", &spec.Key},
	}
	for _, f := range fields {
		s, err := optString(v, f.name)
		if err != nil {
			return spec, err
		}
		*f.dst = s
	}

	kind, err := optString(v, "kind")
	if err != nil {
		return spec, err
	}
	spec.Kind = ir.EnricherKind(kind)

	if spec.RemovingIfResultIsNull, err = optBool(v, "removing_if_result_is_null"); err != nil {
		return spec, err
	}
	if spec.SuppressDuplicates, err = optBool(v, "suppress_duplicates"); err != nil {
		return spec, err
	}

	sourcesVal := v.LookupPath(cue.ParsePath("sources"))
	if sourcesVal.Exists() {
		if err := sourcesVal.Decode(&spec.Sources); err != nil {
			return spec, &CompileError{Field: "sources", Message: "must be a list of sensor names", Pos: sourcesVal.Pos()}
		}
	}

	return spec, nil
}

func optString(v cue.Value, field string) (string, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return "", nil
	}
	s, err := fv.String()
	if err != nil {
		return "", &CompileError{Field: field, Message: "must be a string", Pos: fv.Pos()}
	}
	return s, nil
}

func optBool(v cue.Value, field string) (*bool, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return nil, nil
	}
	b, err := fv.Bool()
	if err != nil {
		return nil, &CompileError{Field: field, Message: "must be a bool", Pos: fv.Pos()}
	}
	return &b, nil
}

// extractTypeName reads a sensor declaration. Both a type name string
// ("int") and a CUE type (int) are accepted. Unknown names are left for
// Validate to report.
func extractTypeName(v cue.Value) (string, error) {
	if s, err := v.String(); err == nil {
		return s, nil
	}

	switch v.IncompleteKind() {
	case cue.StringKind:
		return string(ir.KindString), nil
	case cue.IntKind:
		return string(ir.KindInt), nil
	case cue.BoolKind:
		return string(ir.KindBool), nil
	case cue.ListKind:
		return string(ir.KindList), nil
	case cue.StructKind:
		return string(ir.KindMap), nil
	case cue.TopKind:
		return string(ir.KindAny), nil
	case cue.FloatKind, cue.NumberKind:
		return "float", nil
	default:
		return "", &CompileError{
			Field:   "type",
			Message: fmt.Sprintf("unsupported type kind: %v", v.IncompleteKind()),
			Pos:     v.Pos(),
		}
	}
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	// CUE errors may contain multiple errors
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return &CompileError{Field: "cue", Message: err.Error()}
	}

	// Report the first error, with its position when known
	first := errs[0]
	ce := &CompileError{Field: "cue", Message: first.Error()}
	if positions := errors.Positions(first); len(positions) > 0 {
		ce.Pos = positions[0]
	}
	return ce
}
