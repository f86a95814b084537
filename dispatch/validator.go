package dispatch

import (
	"fmt"

	"github.com/toolsforexperiments/instrumentserver/paramkind"
	"github.com/toolsforexperiments/instrumentserver/wire"
)

// decodeAddParameterSpec pulls add_parameter's declared kind, initial
// value, unit, and validator out of an instruction's kwargs map — the wire
// shape this dispatcher expects for the operation:
//
//	{"kind": "integer", "value": 40, "unit": "ns",
//	 "validator": {"kind": "range", "min": 0, "max": 100}}
//
// "kind" and "value" are required; "unit" and "validator" are optional, so
// an add_parameter with no validator is legal.
func decodeAddParameterSpec(instr wire.Instruction) (kind paramkind.ValueKind, value any, unit string, validator paramkind.Validator, err error) {
	kindStr, ok := instr.Kwargs["kind"].(string)
	if !ok || kindStr == "" {
		return "", nil, "", nil, fmt.Errorf("missing required kwarg: kind")
	}
	kind, err = parseValueKind(kindStr)
	if err != nil {
		return "", nil, "", nil, err
	}

	value, ok = instr.Kwargs["value"]
	if !ok {
		return "", nil, "", nil, fmt.Errorf("missing required kwarg: value")
	}

	if u, ok := instr.Kwargs["unit"]; ok {
		unit, _ = u.(string)
	}

	if spec, ok := instr.Kwargs["validator"]; ok && spec != nil {
		validatorSpec, ok := spec.(map[string]any)
		if !ok {
			return "", nil, "", nil, fmt.Errorf("validator kwarg must be an object")
		}
		validator, err = decodeValidatorSpec(validatorSpec)
		if err != nil {
			return "", nil, "", nil, err
		}
	}

	return kind, value, unit, validator, nil
}

func parseValueKind(s string) (paramkind.ValueKind, error) {
	switch paramkind.ValueKind(s) {
	case paramkind.Integer, paramkind.Float, paramkind.Bool, paramkind.String, paramkind.Enum, paramkind.JSON:
		return paramkind.ValueKind(s), nil
	default:
		return "", fmt.Errorf("unknown value kind: %q", s)
	}
}

// decodeValidatorSpec builds a paramkind.Validator from a decoded JSON
// object, mirroring wire.ValidatorBlueprint's own "kind" tag so a client
// can round-trip the same shape it would read back from a blueprint.
func decodeValidatorSpec(spec map[string]any) (paramkind.Validator, error) {
	kind, _ := spec["kind"].(string)
	switch kind {
	case "range":
		min, minOK := toFloat(spec["min"])
		max, maxOK := toFloat(spec["max"])
		if !minOK || !maxOK {
			return nil, fmt.Errorf("range validator requires numeric min and max")
		}
		return paramkind.RangeValidator{Min: min, Max: max}, nil
	case "set":
		allowed, ok := spec["allowed"].([]any)
		if !ok {
			return nil, fmt.Errorf("set validator requires an allowed array")
		}
		return paramkind.SetValidator{Allowed: allowed}, nil
	case "predicate":
		id, ok := spec["predicateId"].(string)
		if !ok || id == "" {
			id, ok = spec["id"].(string)
		}
		if !ok || id == "" {
			return nil, fmt.Errorf("predicate validator requires a predicateId")
		}
		return paramkind.PredicateValidator{ID: id}, nil
	default:
		return nil, fmt.Errorf("unknown validator kind: %q", kind)
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
