package wire

import (
	"encoding/json"
	"fmt"
)

// Operation names one of the exhaustive dispatcher operations from
// spec.md §4.2.
type Operation string

// The full set of operations the dispatcher understands.
const (
	OpListInstruments   Operation = "list_instruments"
	OpGetBlueprint      Operation = "get_blueprint"
	OpGet               Operation = "get"
	OpSet               Operation = "set"
	OpCall              Operation = "call"
	OpCreateInstrument  Operation = "create_instrument"
	OpSnapshot          Operation = "snapshot"
	OpAddParameter      Operation = "add_parameter"
	OpRemoveParameter   Operation = "remove_parameter"
	OpSaveProfile       Operation = "save_profile"
)

// Instruction is a single, self-contained request. There is no session
// state beyond socket connectedness: every field needed to execute the
// request is carried on the instruction itself.
type Instruction struct {
	Operation Operation       `json:"operation"`
	Target    string          `json:"target,omitempty"`
	Path      string          `json:"path,omitempty"`
	Name      string          `json:"name,omitempty"`
	Args      []any           `json:"args,omitempty"`
	Kwargs    map[string]any  `json:"kwargs,omitempty"`
	Value     json.RawMessage `json:"value,omitempty"`
	ClassPath string          `json:"classPath,omitempty"`
	FindOrCreate bool         `json:"findOrCreate,omitempty"`
}

// FullParameterPath joins the optional sub-module path and the
// parameter/method name into the dotted path used as the lookup key within
// an instrument. The instrument target is not included; the broadcast topic
// is built by prefixing this path with the target.
func (i Instruction) FullParameterPath() string {
	segs := make([]string, 0, 3)
	if i.Path != "" {
		segs = append(segs, i.Path)
	}
	if i.Name != "" {
		segs = append(segs, i.Name)
	}
	if len(segs) == 0 {
		return ""
	}
	out := segs[0]
	for _, s := range segs[1:] {
		out = out + "." + s
	}
	return out
}

// Encode marshals an Instruction to its wire JSON form.
func Encode(i Instruction) ([]byte, error) {
	b, err := json.Marshal(i)
	if err != nil {
		return nil, fmt.Errorf("wire: encode instruction: %w", err)
	}
	return b, nil
}

// DecodeInstruction unmarshals a wire payload into an Instruction. Malformed
// payloads are the caller's signal to return a ProtocolError without
// touching the registry.
func DecodeInstruction(payload []byte) (Instruction, error) {
	var i Instruction
	if err := json.Unmarshal(payload, &i); err != nil {
		return Instruction{}, fmt.Errorf("wire: decode instruction: %w", err)
	}
	if i.Operation == "" {
		return Instruction{}, fmt.Errorf("wire: decode instruction: missing operation")
	}
	return i, nil
}
