package world

import (
	"fmt"
	"strings"

	"github.com/roach88/attrflow/internal/compiler"
)

// InvalidTopologyError is returned by Build when validation fails.
type InvalidTopologyError struct {
	Errors []compiler.ValidationError
}

func (e *InvalidTopologyError) Error() string {
	msgs := make([]string, len(e.Errors))
	for i, ve := range e.Errors {
		msgs[i] = ve.Error()
	}
	return fmt.Sprintf("invalid topology (%d errors): %s", len(e.Errors), strings.Join(msgs, "; "))
}

// NotFoundError reports a name missing from the topology.
type NotFoundError struct {
	Kind string // "entity", "sensor", "enricher" or "option"
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("unknown %s %q", e.Kind, e.Name)
}
