package dummy

import (
	"math/rand"

	"github.com/toolsforexperiments/instrumentserver/instrument"
	"github.com/toolsforexperiments/instrumentserver/paramkind"
)

// MultimeterClassPath identifies the simulated multimeter driver.
const MultimeterClassPath = "dummy.Multimeter"

// newMultimeter builds a simulated multimeter, grounded on fakeCS.py's
// single current parameter, extended with the range/function settings a
// real multimeter exposes.
func newMultimeter(args []any, kwargs map[string]any) (instrument.Instrument, error) {
	b := instrument.NewBase(MultimeterClassPath)

	b.AddParameter(instrument.NewParameter(
		"current", paramkind.Float,
		instrument.WithUnit("A"),
		instrument.WithInitialValue(0.0),
	))
	b.AddParameter(instrument.NewParameter(
		"range", paramkind.Enum,
		instrument.WithValidator(paramkind.SetValidator{Allowed: []any{"auto", "2V", "20V", "200V"}}),
		instrument.WithInitialValue("auto"),
	))
	b.AddParameter(instrument.NewParameter(
		"function", paramkind.Enum,
		instrument.WithValidator(paramkind.SetValidator{Allowed: []any{"DCV", "DCI", "RES"}}),
		instrument.WithInitialValue("DCV"),
	))

	b.AddMethod(instrument.NewMethod(
		"measure", nil, nil, "float",
		func(args []any, kwargs map[string]any) (any, error) {
			return rand.NormFloat64()*1e-3 + 1.0, nil
		},
	))

	return b, nil
}
