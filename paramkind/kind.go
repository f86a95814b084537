package paramkind

import "fmt"

// ValueKind is the declared type of a parameter's value, per spec.md §3.
type ValueKind string

// The declared value kinds a parameter can carry.
const (
	Integer ValueKind = "integer"
	Float   ValueKind = "float"
	Bool    ValueKind = "bool"
	String  ValueKind = "string"
	Enum    ValueKind = "enum"
	JSON    ValueKind = "json" // free-form JSON value
)

// Coerce normalizes a decoded JSON value (float64/bool/string/[]any/map) to
// the Go type that matches kind, returning an error if the shapes don't
// match. Enum and JSON kinds pass values through unchanged: enum validity is
// checked by the Set validator, and JSON values are free-form by definition.
func Coerce(kind ValueKind, v any) (any, error) {
	switch kind {
	case Integer:
		switch n := v.(type) {
		case float64:
			if n != float64(int64(n)) {
				return nil, fmt.Errorf("paramkind: %v is not an integer", v)
			}
			return int64(n), nil
		case int64:
			return n, nil
		case int:
			return int64(n), nil
		default:
			return nil, fmt.Errorf("paramkind: %v is not an integer", v)
		}
	case Float:
		switch n := v.(type) {
		case float64:
			return n, nil
		case int64:
			return float64(n), nil
		default:
			return nil, fmt.Errorf("paramkind: %v is not a float", v)
		}
	case Bool:
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("paramkind: %v is not a bool", v)
		}
		return b, nil
	case String:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("paramkind: %v is not a string", v)
		}
		return s, nil
	case Enum, JSON:
		return v, nil
	default:
		return nil, fmt.Errorf("paramkind: unknown value kind %q", kind)
	}
}
