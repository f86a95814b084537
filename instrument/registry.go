package instrument

import (
	"encoding/json"
	"sort"
	"sync"

	"github.com/toolsforexperiments/instrumentserver/serverr"
	"github.com/toolsforexperiments/instrumentserver/wire"
)

// Factory constructs an Instrument from its class path, positional args,
// and keyword args. The registry does not know how to build any particular
// driver — that is delegated entirely to factories registered under a class
// path, per spec.md §4.3.
type Factory func(args []any, kwargs map[string]any) (Instrument, error)

// Registry is the process-wide map from instrument name to live Instrument,
// paired with a map from name to a dedicated mutual-exclusion lock.
//
// Invariant (spec.md §3): the two maps have identical key sets at all times
// except momentarily during creation (lock inserted first) and deletion
// (instrument removed first). Mutation of the registry itself — inserting
// or removing an entry — is guarded by mu, a lock distinct from any single
// instrument's lock.
//
// Grounded on component/registry.go's Registry: two parallel maps under one
// sync.RWMutex, factories keyed by name, Factory as a constructor function.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
	instances map[string]Instrument
	locks     map[string]*sync.Mutex
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
		instances: make(map[string]Instrument),
		locks:     make(map[string]*sync.Mutex),
	}
}

// RegisterFactory makes classPath instantiable via Create. Drivers call this
// from a Register(*Registry) function that the server's startup code calls
// explicitly, following the corpus's per-package registration convention.
func (r *Registry) RegisterFactory(classPath string, f Factory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[classPath]; exists {
		return serverr.Validationf("Registry", "RegisterFactory", "class path %q already registered", classPath)
	}
	r.factories[classPath] = f
	return nil
}

// List returns the names of every live instrument, sorted for determinism.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.instances))
	for name := range r.instances {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Get returns the named instrument and its lock. The caller must acquire
// the lock before invoking any Instrument method and release it before
// returning a response to the client (spec.md §4.2: "Release the lock
// before sending the reply").
func (r *Registry) Get(name string) (Instrument, *sync.Mutex, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	inst, ok := r.instances[name]
	if !ok {
		return nil, nil, serverr.NotFoundf("Registry", "Get", "no such instrument: %s", name)
	}
	return inst, r.locks[name], nil
}

// Create instantiates classPath under name and registers it. If
// findOrCreate is true and name already exists, the existing instrument is
// returned unless its class path conflicts, in which case Create fails with
// Validation — spec.md §9's resolution of the ambiguous reference behavior.
func (r *Registry) Create(name, classPath string, args []any, kwargs map[string]any, findOrCreate bool) (Instrument, error) {
	r.mu.Lock()
	if existing, ok := r.instances[name]; ok {
		r.mu.Unlock()
		if !findOrCreate {
			return nil, serverr.Validationf("Registry", "Create", "instrument %q already exists", name)
		}
		if existing.ClassPath() != classPath {
			return nil, serverr.Validationf("Registry", "Create", "instrument %q already exists with class path %q, requested %q", name, existing.ClassPath(), classPath)
		}
		return existing, nil
	}

	factory, ok := r.factories[classPath]
	if !ok {
		r.mu.Unlock()
		return nil, serverr.NotFoundf("Registry", "Create", "no factory registered for class path: %s", classPath)
	}
	r.mu.Unlock()

	inst, err := factory(args, kwargs)
	if err != nil {
		return nil, serverr.WrapInstrumentFailure(err, classPath, "Create")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	// Re-check under the write lock: another Create for the same name may
	// have completed while this factory call ran outside the lock.
	if existing, ok := r.instances[name]; ok {
		if !findOrCreate || existing.ClassPath() != classPath {
			return nil, serverr.Validationf("Registry", "Create", "instrument %q already exists", name)
		}
		return existing, nil
	}
	// Per the registry invariant, insert the lock before the instance.
	r.locks[name] = &sync.Mutex{}
	r.instances[name] = inst
	return inst, nil
}

// Close removes name from the registry. Per the invariant, the instance is
// removed before its lock, so a concurrent Get can never observe an
// instance with no matching lock.
func (r *Registry) Close(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.instances[name]; !ok {
		return serverr.NotFoundf("Registry", "Close", "no such instrument: %s", name)
	}
	delete(r.instances, name)
	delete(r.locks, name)
	return nil
}

// Blueprint builds the full blueprint tree for name, stamping the root
// node's name. The caller must already hold name's instrument lock, per
// spec.md §4.4: "Blueprint construction happens under the instrument lock
// to observe a consistent snapshot."
func Blueprint(inst Instrument, name string) wire.InstrumentBlueprint {
	bp := inst.Describe()
	bp.Name = name
	return bp
}

// EncodeSnapshot marshals a Snapshot() result for a wire.Response value.
func EncodeSnapshot(snapshot map[string]any) (json.RawMessage, error) {
	return json.Marshal(snapshot)
}
