package message

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ParamsShape tells how arguments are bound to a method.
type ParamsShape int

const (
	ShapeNone       ParamsShape = iota // params member absent
	ShapePositional                    // JSON array, bound by position
	ShapeNamed                         // JSON object, bound by name
)

// Params holds call arguments in the shape the caller chose. The shape is carried
// unchanged from client to server.
type Params struct {
	Positional []json.RawMessage
	Named      map[string]json.RawMessage
	shape      ParamsShape
}

// errParamsShape is returned when params is neither an array nor an object.
var errParamsShape = errors.New("params must be an array or an object")

// PositionalParams marshals args into a positional parameter list.
func PositionalParams(args ...any) (Params, error) {
	raw := make([]json.RawMessage, 0, len(args))
	for i, a := range args {
		data, err := json.Marshal(a)
		if err != nil {
			return Params{}, fmt.Errorf("marshal param %d: %w", i, err)
		}
		raw = append(raw, data)
	}
	return Params{Positional: raw, shape: ShapePositional}, nil
}

// NamedParams marshals kwargs into a named parameter object.
func NamedParams(kwargs map[string]any) (Params, error) {
	raw := make(map[string]json.RawMessage, len(kwargs))
	for k, v := range kwargs {
		data, err := json.Marshal(v)
		if err != nil {
			return Params{}, fmt.Errorf("marshal param %q: %w", k, err)
		}
		raw[k] = data
	}
	return Params{Named: raw, shape: ShapeNamed}, nil
}

// Shape returns how the params were supplied.
func (p Params) Shape() ParamsShape {
	return p.shape
}

// Len returns the number of supplied arguments.
func (p Params) Len() int {
	if p.shape == ShapeNamed {
		return len(p.Named)
	}
	return len(p.Positional)
}

// MarshalJSON writes an array or an object. Absent params encode as an empty array.
func (p Params) MarshalJSON() ([]byte, error) {
	if p.shape == ShapeNamed {
		if p.Named == nil {
			return []byte("{}"), nil
		}
		return json.Marshal(p.Named)
	}
	if p.Positional == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(p.Positional)
}

// UnmarshalJSON accepts an array, an object or null.
func (p *Params) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*p = Params{}
		return nil
	}
	switch trimmed[0] {
	case '[':
		var raw []json.RawMessage
		if err := json.Unmarshal(trimmed, &raw); err != nil {
			return err
		}
		if raw == nil {
			raw = []json.RawMessage{}
		}
		*p = Params{Positional: raw, shape: ShapePositional}
	case '{':
		var raw map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &raw); err != nil {
			return err
		}
		*p = Params{Named: raw, shape: ShapeNamed}
	default:
		return errParamsShape
	}
	return nil
}
