package store

import (
	"fmt"

	"github.com/roach88/attrflow/internal/ir"
)

// marshalValue converts a sensor value to canonical JSON TEXT for storage.
// Uses RFC 8785 canonical JSON so identical values store identical bytes.
func marshalValue(v ir.Value) (string, error) {
	if v == nil {
		v = ir.Null{}
	}
	data, err := ir.MarshalCanonical(v)
	if err != nil {
		return "", fmt.Errorf("marshal value: %w", err)
	}
	return string(data), nil
}

// unmarshalValue parses stored JSON TEXT back into a sensor value.
// Large integers survive intact because decoding goes through json.Number.
func unmarshalValue(data string) (ir.Value, error) {
	v, err := ir.UnmarshalValue([]byte(data))
	if err != nil {
		return nil, fmt.Errorf("unmarshal value: %w", err)
	}
	return v, nil
}
