package instrument

import (
	"encoding/json"

	"github.com/toolsforexperiments/instrumentserver/paramkind"
	"github.com/toolsforexperiments/instrumentserver/wire"
)

// Parameter is a typed, validated get/set cell. Its value is mutated only
// while the owning instrument's lock is held — Parameter itself does no
// locking; that discipline is the Registry's and the dispatcher's job.
type Parameter struct {
	name      string
	kind      paramkind.ValueKind
	unit      string
	validator paramkind.Validator
	readable  bool
	settable  bool
	value     any
}

// ParameterOption configures a Parameter at construction time.
type ParameterOption func(*Parameter)

// WithUnit sets the parameter's unit string (e.g. "V", "ns", "dBm").
func WithUnit(unit string) ParameterOption {
	return func(p *Parameter) { p.unit = unit }
}

// WithValidator attaches a validator; Set rejects values it refuses.
func WithValidator(v paramkind.Validator) ParameterOption {
	return func(p *Parameter) { p.validator = v }
}

// ReadOnly marks the parameter as not settable (get only).
func ReadOnly() ParameterOption {
	return func(p *Parameter) { p.settable = false }
}

// WriteOnly marks the parameter as not readable (set only).
func WriteOnly() ParameterOption {
	return func(p *Parameter) { p.readable = false }
}

// WithInitialValue seeds the parameter's cached value without going through
// Set's validation — used when loading a persisted profile or a config
// default that is trusted by construction.
func WithInitialValue(v any) ParameterOption {
	return func(p *Parameter) { p.value = v }
}

// NewParameter constructs a readable+settable parameter of the given kind.
func NewParameter(name string, kind paramkind.ValueKind, opts ...ParameterOption) *Parameter {
	p := &Parameter{name: name, kind: kind, readable: true, settable: true}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name returns the parameter's local (unqualified) name.
func (p *Parameter) Name() string { return p.name }

// Value returns the cached last value.
func (p *Parameter) Value() any { return p.value }

// Set validates and assigns v, decoded from raw JSON. It does not publish a
// broadcast; that is the dispatcher's responsibility once the handler
// commits successfully.
func (p *Parameter) Set(raw json.RawMessage) error {
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return err
	}
	coerced, err := paramkind.Coerce(p.kind, decoded)
	if err != nil {
		return err
	}
	if p.validator != nil {
		if err := p.validator.Validate(coerced); err != nil {
			return err
		}
	}
	p.value = coerced
	return nil
}

// Blueprint reflects this parameter into its transport-safe description.
func (p *Parameter) Blueprint() wire.ParameterBlueprint {
	bp := wire.ParameterBlueprint{
		Path:      p.name,
		ValueKind: string(p.kind),
		Unit:      p.unit,
		Readable:  p.readable,
		Settable:  p.settable,
	}
	if p.validator != nil {
		v := p.validator.Blueprint()
		bp.Validator = &v
	}
	return bp
}
