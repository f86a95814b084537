package clientproxy

import (
	"context"
	"encoding/json"

	"github.com/toolsforexperiments/instrumentserver/serverr"
	"github.com/toolsforexperiments/instrumentserver/wire"
)

// Asker is the capability clientproxy needs from the transport-layer
// client: send an Instruction, await a Response. transport.Client
// satisfies this directly.
type Asker interface {
	Ask(ctx context.Context, instr wire.Instruction) (wire.Response, error)
}

// ParameterProxy mirrors one server-side parameter. It caches the
// blueprint metadata (unit, validator, settable/readable) but never a
// value — every Get/Set forwards through the owning client's Ask.
type ParameterProxy struct {
	target string // owning instrument's registry name
	path   string // dotted path within the instrument
	bp     wire.ParameterBlueprint
	asker  Asker
}

// Path is the full dotted path within the owning instrument.
func (p *ParameterProxy) Path() string { return p.path }

// Unit returns the parameter's declared unit.
func (p *ParameterProxy) Unit() string { return p.bp.Unit }

// Settable reports whether the parameter accepts Set.
func (p *ParameterProxy) Settable() bool { return p.bp.Settable }

// Readable reports whether the parameter accepts Get.
func (p *ParameterProxy) Readable() bool { return p.bp.Readable }

// Validator returns the parameter's validator description, if any.
func (p *ParameterProxy) Validator() *wire.ValidatorBlueprint { return p.bp.Validator }

// Get reads the parameter's current value from the server.
func (p *ParameterProxy) Get(ctx context.Context) (any, error) {
	resp, err := p.asker.Ask(ctx, wire.Instruction{
		Operation: wire.OpGet,
		Target:    p.target,
		Path:      parentPath(p.path),
		Name:      leafName(p.path),
	})
	if err != nil {
		return nil, err
	}
	if !resp.OK {
		return nil, serverError(resp)
	}
	var v any
	if err := resp.Unmarshal(&v); err != nil {
		return nil, serverr.Protocolf("clientproxy", "Get", "decode value: %v", err)
	}
	return v, nil
}

// Set validates and writes the parameter, returning the value the server
// committed.
func (p *ParameterProxy) Set(ctx context.Context, value any) (any, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, serverr.Protocolf("clientproxy", "Set", "encode value: %v", err)
	}
	resp, err := p.asker.Ask(ctx, wire.Instruction{
		Operation: wire.OpSet,
		Target:    p.target,
		Path:      parentPath(p.path),
		Name:      leafName(p.path),
		Value:     raw,
	})
	if err != nil {
		return nil, err
	}
	if !resp.OK {
		return nil, serverError(resp)
	}
	var committed any
	if err := resp.Unmarshal(&committed); err != nil {
		return nil, serverr.Protocolf("clientproxy", "Set", "decode committed value: %v", err)
	}
	return committed, nil
}

// MethodProxy mirrors one server-side callable method.
type MethodProxy struct {
	target string
	path   string // dotted sub-module path owning the method (may be empty)
	bp     wire.MethodBlueprint
	asker  Asker
}

// Name is the method's name.
func (m *MethodProxy) Name() string { return m.bp.Name }

// ArgNames lists the method's declared positional argument names.
func (m *MethodProxy) ArgNames() []string { return m.bp.ArgNames }

// Call invokes the method with positional and keyword arguments.
func (m *MethodProxy) Call(ctx context.Context, args []any, kwargs map[string]any) (any, error) {
	resp, err := m.asker.Ask(ctx, wire.Instruction{
		Operation: wire.OpCall,
		Target:    m.target,
		Path:      m.path,
		Name:      m.bp.Name,
		Args:      args,
		Kwargs:    kwargs,
	})
	if err != nil {
		return nil, err
	}
	if !resp.OK {
		return nil, serverError(resp)
	}
	var result any
	if err := resp.Unmarshal(&result); err != nil {
		return nil, serverr.Protocolf("clientproxy", "Call", "decode result: %v", err)
	}
	return result, nil
}

// InstrumentProxy is the client-side mirror of one instrument (or
// sub-module), built once from a wire.InstrumentBlueprint. It never holds
// a live reference back to the server — only the instrument's registry
// name, its path within it, and the owning Asker.
type InstrumentProxy struct {
	Target     string
	Path       string // dotted path of this node within the instrument; "" for the root
	ClassPath  string
	Parameters map[string]*ParameterProxy
	Methods    map[string]*MethodProxy
	Submodules map[string]*InstrumentProxy
}

// Snapshot fetches every parameter's current value as a flat mapping.
func (p *InstrumentProxy) Snapshot(ctx context.Context, asker Asker) (map[string]any, error) {
	resp, err := asker.Ask(ctx, wire.Instruction{Operation: wire.OpSnapshot, Target: p.Target})
	if err != nil {
		return nil, err
	}
	if !resp.OK {
		return nil, serverError(resp)
	}
	out := make(map[string]any)
	if err := resp.Unmarshal(&out); err != nil {
		return nil, serverr.Protocolf("clientproxy", "Snapshot", "decode snapshot: %v", err)
	}
	return out, nil
}

// BuildProxy materializes a full proxy tree from a blueprint, forwarding
// every leaf through asker. target is the instrument's registry name
// (the blueprint's own root node carries no registry name, only its
// shape).
func BuildProxy(asker Asker, target string, bp wire.InstrumentBlueprint) *InstrumentProxy {
	return buildNode(asker, target, "", bp)
}

func buildNode(asker Asker, target, path string, bp wire.InstrumentBlueprint) *InstrumentProxy {
	node := &InstrumentProxy{
		Target:     target,
		Path:       path,
		ClassPath:  bp.ClassPath,
		Parameters: make(map[string]*ParameterProxy, len(bp.Parameters)),
		Methods:    make(map[string]*MethodProxy, len(bp.Methods)),
		Submodules: make(map[string]*InstrumentProxy, len(bp.Submodules)),
	}

	for _, pbp := range bp.Parameters {
		full := joinPath(path, pbp.Path)
		node.Parameters[pbp.Path] = &ParameterProxy{target: target, path: full, bp: pbp, asker: asker}
	}
	for _, mbp := range bp.Methods {
		node.Methods[mbp.Name] = &MethodProxy{target: target, path: path, bp: mbp, asker: asker}
	}
	for name, sub := range bp.Submodules {
		node.Submodules[name] = buildNode(asker, target, joinPath(path, name), sub)
	}
	return node
}

func joinPath(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}

// parentPath and leafName split a dotted path into the sub-module path an
// Instruction carries separately from the final parameter name, mirroring
// wire.Instruction.FullParameterPath's inverse.
func parentPath(path string) string {
	idx := lastDot(path)
	if idx < 0 {
		return ""
	}
	return path[:idx]
}

func leafName(path string) string {
	idx := lastDot(path)
	if idx < 0 {
		return path
	}
	return path[idx+1:]
}

func lastDot(s string) int {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == '.' {
			return i
		}
	}
	return -1
}

func serverError(resp wire.Response) error {
	if resp.Error == nil {
		return serverr.WrapInternal(nil, "clientproxy", "ask")
	}
	kind := serverr.ParseKind(resp.Error.Kind)
	switch kind {
	case serverr.NotFound:
		return serverr.NotFoundf("clientproxy", "ask", "%s", resp.Error.Message)
	case serverr.Validation:
		return serverr.Validationf("clientproxy", "ask", "%s", resp.Error.Message)
	case serverr.Unsupported:
		return serverr.Unsupportedf("clientproxy", "ask", "%s", resp.Error.Message)
	case serverr.InstrumentFailure:
		return serverr.WrapInstrumentFailure(fakeCause(resp.Error.Message), "clientproxy", "ask")
	default:
		return serverr.Protocolf("clientproxy", "ask", "%s", resp.Error.Message)
	}
}

// fakeCause wraps a wire-carried message back into an error so
// WrapInstrumentFailure can preserve it verbatim (spec.md §7: "preserves
// the server message verbatim").
type fakeCause string

func (f fakeCause) Error() string { return string(f) }
