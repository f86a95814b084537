package parammanager

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/toolsforexperiments/instrumentserver/instrument"
	"github.com/toolsforexperiments/instrumentserver/paramkind"
	"github.com/toolsforexperiments/instrumentserver/serverr"
)

// profileEntry is the rich shape a profile entry can take on disk —
// {"value": V, "unit": U} — per spec.md §4.6/§6.
type profileEntry struct {
	Value json.RawMessage `json:"value"`
	Unit  string          `json:"unit,omitempty"`
}

// SaveProfile serializes every parameter in m to path as flat, dotted-path
// JSON and writes it atomically: the encoded profile is written to a
// temporary sibling file and then renamed over path, so a reader never
// observes a partially-written profile (spec.md §4.6/§9).
func SaveProfile(m *Manager, path string) error {
	out := make(map[string]profileEntry)
	var encodeErr error
	m.Base.ForEachParameter(func(path string, p *instrument.Parameter) {
		if encodeErr != nil {
			return
		}
		raw, err := json.Marshal(p.Value())
		if err != nil {
			encodeErr = err
			return
		}
		out[path] = profileEntry{Value: raw, Unit: p.Blueprint().Unit}
	})
	if encodeErr != nil {
		return serverr.WrapInternal(encodeErr, ClassPath, "SaveProfile")
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return serverr.WrapInternal(err, ClassPath, "SaveProfile")
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".profile-*.tmp")
	if err != nil {
		return serverr.WrapInternal(err, ClassPath, "SaveProfile")
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once the rename below succeeds

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return serverr.WrapInternal(err, ClassPath, "SaveProfile")
	}
	if err := tmp.Close(); err != nil {
		return serverr.WrapInternal(err, ClassPath, "SaveProfile")
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return serverr.WrapInternal(err, ClassPath, "SaveProfile")
	}
	return nil
}

// LoadProfile reads path and adds every parameter it names to m's tree,
// replacing any parameter already at that path; parameters the profile does
// not name are left in place.
// Both profile shapes are tolerated: {"path": {"value": V, "unit": U}} and
// the bare {"path": V}. Every loaded value's kind is inferred from its
// decoded JSON shape (whole-number floats become Integer, the rest Float;
// bool/string keep their native kind; arrays and objects become JSON) since
// a profile carries no explicit type tag of its own.
func LoadProfile(m *Manager, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return serverr.WrapInternal(err, ClassPath, "LoadProfile")
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return serverr.Protocolf(ClassPath, "LoadProfile", "malformed profile %s: %v", path, err)
	}

	for path, entryRaw := range raw {
		value, unit, err := decodeProfileEntry(entryRaw)
		if err != nil {
			return serverr.Protocolf(ClassPath, "LoadProfile", "%s: %v", path, err)
		}
		kind := inferKind(value)
		coerced, err := paramkind.Coerce(kind, value)
		if err != nil {
			return serverr.Protocolf(ClassPath, "LoadProfile", "%s: %v", path, err)
		}
		name := path
		if idx := lastDot(path); idx >= 0 {
			name = path[idx+1:]
		}
		p := instrument.NewParameter(name, kind, instrument.WithUnit(unit), instrument.WithInitialValue(coerced))
		m.Base.AddParameterAt(path, p)
	}
	return nil
}

// decodeProfileEntry accepts either profile shape for a single entry.
func decodeProfileEntry(raw json.RawMessage) (value any, unit string, err error) {
	var rich profileEntry
	if err := json.Unmarshal(raw, &rich); err == nil && rich.Value != nil {
		var v any
		if err := json.Unmarshal(rich.Value, &v); err != nil {
			return nil, "", fmt.Errorf("decoding value: %w", err)
		}
		return v, rich.Unit, nil
	}

	var bare any
	if err := json.Unmarshal(raw, &bare); err != nil {
		return nil, "", fmt.Errorf("decoding bare value: %w", err)
	}
	return bare, "", nil
}

func inferKind(v any) paramkind.ValueKind {
	switch n := v.(type) {
	case float64:
		if n == float64(int64(n)) {
			return paramkind.Integer
		}
		return paramkind.Float
	case bool:
		return paramkind.Bool
	case string:
		return paramkind.String
	default:
		return paramkind.JSON
	}
}
