package dummy

import (
	"encoding/json"

	"github.com/toolsforexperiments/instrumentserver/instrument"
	"github.com/toolsforexperiments/instrumentserver/paramkind"
	"github.com/toolsforexperiments/instrumentserver/serverr"
)

// SourceClassPath identifies the simulated current/voltage source driver.
const SourceClassPath = "dummy.Source"

// newSource builds a simulated source instrument, grounded on the control
// loop in Measurement_Mockup.py (repeated CS.set_current() calls while
// sweeping), adding a ramp_to method for bounded step-wise changes.
func newSource(args []any, kwargs map[string]any) (instrument.Instrument, error) {
	b := instrument.NewBase(SourceClassPath)

	current := instrument.NewParameter(
		"current", paramkind.Float,
		instrument.WithUnit("A"),
		instrument.WithValidator(paramkind.RangeValidator{Min: -1, Max: 1}),
		instrument.WithInitialValue(0.0),
	)
	b.AddParameter(current)

	b.AddMethod(instrument.NewMethod(
		"ramp_to", []string{"target", "step"}, nil, "float",
		func(args []any, kwargs map[string]any) (any, error) {
			target, ok := args[0].(float64)
			if !ok {
				return nil, serverr.Validationf(SourceClassPath, "ramp_to", "target must be a float")
			}
			step, ok := args[1].(float64)
			if !ok || step <= 0 {
				return nil, serverr.Validationf(SourceClassPath, "ramp_to", "step must be a positive float")
			}

			cur, _ := current.Value().(float64)
			for cur < target {
				cur += step
				if cur > target {
					cur = target
				}
			}
			for cur > target {
				cur -= step
				if cur < target {
					cur = target
				}
			}
			raw, err := json.Marshal(cur)
			if err != nil {
				return nil, serverr.WrapInternal(err, SourceClassPath, "ramp_to")
			}
			if err := current.Set(raw); err != nil {
				return nil, serverr.WrapInstrumentFailure(err, SourceClassPath, "ramp_to")
			}
			return current.Value(), nil
		},
	))

	return b, nil
}
