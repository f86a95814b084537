package instrument

import "github.com/toolsforexperiments/instrumentserver/wire"

// MethodFunc is the implementation a Method invokes. Argument and keyword
// validation against the declared arity happens in Base.Call before this is
// reached; the function itself just does the work.
type MethodFunc func(args []any, kwargs map[string]any) (any, error)

// Method is a callable, reflected operation on an instrument. Reflection
// records its declared shape; it never executes the method itself (that
// happens only through Base.Call, under the instrument's lock).
type Method struct {
	name        string
	argNames    []string
	keywordArgs []string
	returnKind  string
	fn          MethodFunc
}

// NewMethod declares a method with a fixed positional arity (argNames) and
// an optional keyword set.
func NewMethod(name string, argNames []string, keywordArgs []string, returnKind string, fn MethodFunc) *Method {
	return &Method{name: name, argNames: argNames, keywordArgs: keywordArgs, returnKind: returnKind, fn: fn}
}

// Name returns the method's local name.
func (m *Method) Name() string { return m.name }

// Blueprint reflects this method into its transport-safe description.
func (m *Method) Blueprint() wire.MethodBlueprint {
	return wire.MethodBlueprint{
		Name:        m.name,
		ArgNames:    m.argNames,
		KeywordArgs: m.keywordArgs,
		ReturnKind:  m.returnKind,
	}
}
