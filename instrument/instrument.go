package instrument

import (
	"encoding/json"

	"github.com/toolsforexperiments/instrumentserver/wire"
)

// Instrument is the capability interface the dispatcher depends on. It
// never touches driver internals directly, only this interface — per
// spec.md §9's "expose this as an explicit capability" design note.
//
// path arguments are dotted, relative to the instrument's own root (e.g.
// "qubit.pi.length" or plain "voltage"); the instrument name itself is never
// part of a path, since it travels separately as the instruction's Target.
type Instrument interface {
	// ClassPath identifies the driver type, for blueprint metadata and for
	// re-creation from a profile.
	ClassPath() string

	// Describe reflects the full tree into a transport-safe snapshot. Must
	// be called with the instrument's lock held so the snapshot is
	// consistent.
	Describe() wire.InstrumentBlueprint

	// Get reads a parameter's current value.
	Get(path string) (any, error)

	// Set validates and writes a parameter, returning the value it
	// committed (coerced to the parameter's declared kind) and its unit, so
	// the dispatcher can publish an accurate broadcast.
	Set(path string, raw json.RawMessage) (value any, unit string, err error)

	// Call invokes the method named name, found at the (possibly empty)
	// dotted sub-module path modulePath, with positional args and keyword
	// args.
	Call(modulePath, name string, args []any, kwargs map[string]any) (any, error)

	// Snapshot returns every parameter's current value as a flat
	// dotted-path mapping.
	Snapshot() map[string]any
}
