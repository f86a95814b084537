package instrument

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/toolsforexperiments/instrumentserver/serverr"
	"github.com/toolsforexperiments/instrumentserver/wire"
)

// Base is an embeddable implementation of Instrument giving a driver a
// working parameter/method/sub-module tree. Drivers construct one in their
// factory and populate it with AddParameter/AddMethod/AddSubmodule; the
// dispatcher only ever sees the Instrument interface.
//
// Base performs no locking of its own: the owning Registry's per-instrument
// lock covers the whole tree, including nested sub-modules, matching
// spec.md §3's "Mutated only while its instrument's lock is held".
type Base struct {
	classPath  string
	parameters map[string]*Parameter
	methods    map[string]*Method
	submodules map[string]*Base
}

// NewBase constructs an empty instrument tree node identified by classPath.
// classPath is empty for a plain sub-module (only the root instrument is
// re-creatable from a class path).
func NewBase(classPath string) *Base {
	return &Base{
		classPath:  classPath,
		parameters: make(map[string]*Parameter),
		methods:    make(map[string]*Method),
		submodules: make(map[string]*Base),
	}
}

// AddParameter registers a parameter directly on this node (not dotted —
// use Submodule to reach a nested node first).
func (b *Base) AddParameter(p *Parameter) { b.parameters[p.Name()] = p }

// AddMethod registers a method directly on this node.
func (b *Base) AddMethod(m *Method) { b.methods[m.Name()] = m }

// AddSubmodule attaches a child node under name.
func (b *Base) AddSubmodule(name string, child *Base) { b.submodules[name] = child }

// Submodule returns the child node at name, creating an empty one if it
// doesn't yet exist — used by the parameter manager's implicit submodule
// creation (spec.md §4.6: "adding qubit.pi.length implicitly ensures the
// intermediate sub-module nodes exist").
func (b *Base) Submodule(name string) *Base {
	child, ok := b.submodules[name]
	if !ok {
		child = NewBase("")
		b.submodules[name] = child
	}
	return child
}

// ClassPath implements Instrument.
func (b *Base) ClassPath() string { return b.classPath }

// RemoveParameter deletes a directly-owned (non-dotted) parameter.
func (b *Base) RemoveParameter(name string) { delete(b.parameters, name) }

// AddParameterAt adds p at a dotted path, creating any missing intermediate
// sub-modules along the way — the implicit sub-module creation spec.md §4.6
// describes for the parameter manager's add_parameter operation.
func (b *Base) AddParameterAt(path string, p *Parameter) {
	node, leaf := b.resolveOrCreate(path)
	node.parameters[leaf] = p
}

// RemoveParameterAt deletes the parameter at a dotted path, reporting
// whether it existed.
func (b *Base) RemoveParameterAt(path string) bool {
	node, leaf, ok := b.resolve(path)
	if !ok {
		return false
	}
	if _, ok := node.parameters[leaf]; !ok {
		return false
	}
	delete(node.parameters, leaf)
	return true
}

// PruneEmptySubmodules recursively removes sub-modules that (after pruning
// their own children) hold no parameters, methods, or sub-modules of their
// own, mirroring the reference implementation's remove_empty_submodules.
func (b *Base) PruneEmptySubmodules() {
	for name, child := range b.submodules {
		child.PruneEmptySubmodules()
		if len(child.parameters) == 0 && len(child.methods) == 0 && len(child.submodules) == 0 {
			delete(b.submodules, name)
		}
	}
}

// ForEachParameter visits every parameter in the tree in deterministic
// (alphabetical) order, passing its full dotted path.
func (b *Base) ForEachParameter(fn func(path string, p *Parameter)) {
	b.forEachParameter("", fn)
}

func (b *Base) forEachParameter(prefix string, fn func(path string, p *Parameter)) {
	for _, name := range sortedKeys(b.parameters) {
		path := name
		if prefix != "" {
			path = prefix + "." + name
		}
		fn(path, b.parameters[name])
	}
	for _, name := range sortedSubmoduleKeys(b.submodules) {
		path := name
		if prefix != "" {
			path = prefix + "." + name
		}
		b.submodules[name].forEachParameter(path, fn)
	}
}

// resolveOrCreate is like resolve but creates any missing intermediate
// sub-modules instead of failing.
func (b *Base) resolveOrCreate(path string) (*Base, string) {
	if !strings.Contains(path, ".") {
		return b, path
	}
	segs := strings.Split(path, ".")
	node := b
	for _, seg := range segs[:len(segs)-1] {
		node = node.Submodule(seg)
	}
	return node, segs[len(segs)-1]
}

// resolve walks a dotted path down to the node owning its final segment,
// returning that node and the leaf name. An empty path resolves to (b, "").
func (b *Base) resolve(path string) (*Base, string, bool) {
	if path == "" {
		return b, "", true
	}
	segs := strings.Split(path, ".")
	node := b
	for _, seg := range segs[:len(segs)-1] {
		child, ok := node.submodules[seg]
		if !ok {
			return nil, "", false
		}
		node = child
	}
	return node, segs[len(segs)-1], true
}

// resolveModule walks a dotted sub-module path down to the node it names.
// An empty path resolves to b itself.
func (b *Base) resolveModule(path string) (*Base, bool) {
	if path == "" {
		return b, true
	}
	node := b
	for _, seg := range strings.Split(path, ".") {
		child, ok := node.submodules[seg]
		if !ok {
			return nil, false
		}
		node = child
	}
	return node, true
}

// Get implements Instrument.
func (b *Base) Get(path string) (any, error) {
	node, leaf, ok := b.resolve(path)
	if !ok {
		return nil, serverr.NotFoundf("instrument", "Get", "no such parameter: %s", path)
	}
	p, ok := node.parameters[leaf]
	if !ok {
		return nil, serverr.NotFoundf("instrument", "Get", "no such parameter: %s", path)
	}
	if !p.readable {
		return nil, serverr.Unsupportedf("instrument", "Get", "parameter %s is not readable", path)
	}
	return p.Value(), nil
}

// Set implements Instrument.
func (b *Base) Set(path string, raw json.RawMessage) (any, string, error) {
	node, leaf, ok := b.resolve(path)
	if !ok {
		return nil, "", serverr.NotFoundf("instrument", "Set", "no such parameter: %s", path)
	}
	p, ok := node.parameters[leaf]
	if !ok {
		return nil, "", serverr.NotFoundf("instrument", "Set", "no such parameter: %s", path)
	}
	if !p.settable {
		return nil, "", serverr.Unsupportedf("instrument", "Set", "parameter %s is not settable", path)
	}
	if err := p.Set(raw); err != nil {
		return nil, "", serverr.Validationf("instrument", "Set", "%s: %v", path, err)
	}
	return p.Value(), p.unit, nil
}

// Call implements Instrument.
func (b *Base) Call(modulePath, name string, args []any, kwargs map[string]any) (any, error) {
	node, ok := b.resolveModule(modulePath)
	if !ok {
		return nil, serverr.NotFoundf("instrument", "Call", "no such sub-module: %s", modulePath)
	}
	m, ok := node.methods[name]
	if !ok {
		return nil, serverr.NotFoundf("instrument", "Call", "no such method: %s", name)
	}
	if len(args) != len(m.argNames) {
		return nil, serverr.Validationf("instrument", "Call", "%s expects %d positional args, got %d", name, len(m.argNames), len(args))
	}
	for k := range kwargs {
		allowed := false
		for _, a := range m.keywordArgs {
			if a == k {
				allowed = true
				break
			}
		}
		if !allowed {
			return nil, serverr.Validationf("instrument", "Call", "%s does not accept keyword %q", name, k)
		}
	}
	return m.fn(args, kwargs)
}

// Snapshot implements Instrument.
func (b *Base) Snapshot() map[string]any {
	out := make(map[string]any)
	b.collectSnapshot("", out)
	return out
}

func (b *Base) collectSnapshot(prefix string, out map[string]any) {
	for name, p := range b.parameters {
		path := name
		if prefix != "" {
			path = prefix + "." + name
		}
		if p.readable {
			out[path] = p.Value()
		}
	}
	for name, child := range b.submodules {
		path := name
		if prefix != "" {
			path = prefix + "." + name
		}
		child.collectSnapshot(path, out)
	}
}

// Describe implements Instrument.
func (b *Base) Describe() wire.InstrumentBlueprint {
	return b.describe("")
}

func (b *Base) describe(name string) wire.InstrumentBlueprint {
	bp := wire.InstrumentBlueprint{
		Name:      name,
		ClassPath: b.classPath,
	}

	paramNames := sortedKeys(b.parameters)
	for _, n := range paramNames {
		bp.Parameters = append(bp.Parameters, b.parameters[n].Blueprint())
	}

	methodNames := sortedKeys(b.methods)
	for _, n := range methodNames {
		bp.Methods = append(bp.Methods, b.methods[n].Blueprint())
	}

	if len(b.submodules) > 0 {
		bp.Submodules = make(map[string]wire.InstrumentBlueprint, len(b.submodules))
		for _, n := range sortedSubmoduleKeys(b.submodules) {
			bp.Submodules[n] = b.submodules[n].describe(n)
		}
	}

	return bp
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedSubmoduleKeys(m map[string]*Base) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
