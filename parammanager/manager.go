package parammanager

import (
	"github.com/toolsforexperiments/instrumentserver/instrument"
	"github.com/toolsforexperiments/instrumentserver/paramkind"
	"github.com/toolsforexperiments/instrumentserver/serverr"
)

// ClassPath identifies the parameter manager so it can be re-created from a
// profile's instrument listing the same way any other driver can.
const ClassPath = "instrumentserver.ParameterManager"

// DefaultName is the registry name the parameter manager is conventionally
// registered under (spec.md §4.6: "registered under a default name").
const DefaultName = "parameter_manager"

// Manager is a virtual instrument whose parameter tree is defined entirely
// at runtime. It embeds *instrument.Base for the read/write/call/describe
// machinery every instrument shares, adding only the add/remove operations
// and profile persistence (see profile.go) that make it "virtual".
//
// Like Base, Manager does no locking of its own — the owning registry's
// per-instrument lock covers every method here, same as any other
// instrument.
type Manager struct {
	*instrument.Base
}

// NewManager constructs an empty parameter manager.
func NewManager() *Manager {
	return &Manager{Base: instrument.NewBase(ClassPath)}
}

// NewFactory adapts NewManager to instrument.Factory, for registration in an
// instrument.Registry via RegisterFactory(ClassPath, ...).
func NewFactory() instrument.Factory {
	return func(args []any, kwargs map[string]any) (instrument.Instrument, error) {
		return NewManager(), nil
	}
}

// AddParameter declares a new parameter at a dotted path, implicitly
// creating any missing intermediate sub-modules (spec.md §4.6: "adding
// qubit.pi.length implicitly ensures the intermediate sub-module nodes
// exist").
func (m *Manager) AddParameter(path string, kind paramkind.ValueKind, initialValue any, unit string, validator paramkind.Validator) error {
	if path == "" {
		return serverr.Validationf(ClassPath, "AddParameter", "path must not be empty")
	}

	coerced, err := paramkind.Coerce(kind, initialValue)
	if err != nil {
		return serverr.Validationf(ClassPath, "AddParameter", "%s: %v", path, err)
	}
	if validator != nil {
		if err := validator.Validate(coerced); err != nil {
			return serverr.Validationf(ClassPath, "AddParameter", "%s: %v", path, err)
		}
	}

	opts := []instrument.ParameterOption{
		instrument.WithUnit(unit),
		instrument.WithInitialValue(coerced),
	}
	if validator != nil {
		opts = append(opts, instrument.WithValidator(validator))
	}

	name := path
	if idx := lastDot(path); idx >= 0 {
		name = path[idx+1:]
	}
	m.Base.AddParameterAt(path, instrument.NewParameter(name, kind, opts...))
	return nil
}

// RemoveParameter deletes the parameter at path and prunes any sub-module
// that becomes empty as a result.
func (m *Manager) RemoveParameter(path string) error {
	if !m.Base.RemoveParameterAt(path) {
		return serverr.NotFoundf(ClassPath, "RemoveParameter", "no such parameter: %s", path)
	}
	m.Base.PruneEmptySubmodules()
	return nil
}

func lastDot(s string) int {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == '.' {
			return i
		}
	}
	return -1
}
