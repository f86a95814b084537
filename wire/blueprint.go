package wire

// ValidatorBlueprint describes a parameter's validator without the
// predicate closure itself — closures aren't serializable, so a predicate
// validator is carried as an opaque ID the client can display but not
// evaluate locally (per spec.md §9's tagged-descriptor design note).
type ValidatorBlueprint struct {
	Kind string `json:"kind"` // "range", "set", "predicate"

	// Kind == "range"
	Min *float64 `json:"min,omitempty"`
	Max *float64 `json:"max,omitempty"`

	// Kind == "set"
	Allowed []any `json:"allowed,omitempty"`

	// Kind == "predicate"
	PredicateID string `json:"predicateId,omitempty"`
}

// ParameterBlueprint is a transport-safe description of one parameter. It
// carries no current value: blueprints are pure metadata, never live state.
type ParameterBlueprint struct {
	Path      string              `json:"path"`
	ValueKind string              `json:"valueKind"`
	Unit      string              `json:"unit,omitempty"`
	Validator *ValidatorBlueprint `json:"validator,omitempty"`
	Readable  bool                `json:"readable"`
	Settable  bool                `json:"settable"`
}

// MethodBlueprint describes a callable method's declared shape. It records
// enough for a client to construct a call, not to execute the method.
type MethodBlueprint struct {
	Name        string   `json:"name"`
	ArgNames    []string `json:"argNames,omitempty"`
	KeywordArgs []string `json:"keywordArgs,omitempty"`
	ReturnKind  string   `json:"returnKind,omitempty"`
}

// InstrumentBlueprint is the full tree snapshot transmitted to a client for
// a single instrument (or sub-module): its parameters, its methods, and its
// nested sub-modules, in deterministic (alphabetical) order.
type InstrumentBlueprint struct {
	Name       string                          `json:"name"`
	ClassPath  string                          `json:"classPath,omitempty"`
	Parameters []ParameterBlueprint            `json:"parameters"`
	Methods    []MethodBlueprint               `json:"methods"`
	Submodules map[string]InstrumentBlueprint  `json:"submodules,omitempty"`
}
