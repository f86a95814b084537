package dummy

import (
	"math/rand"

	"github.com/toolsforexperiments/instrumentserver/instrument"
	"github.com/toolsforexperiments/instrumentserver/paramkind"
)

// VNAClassPath identifies the simulated vector network analyzer driver.
const VNAClassPath = "dummy.VNA"

const vnaTracePoints = 100

// newVNA builds a simulated VNA, grounded on fakeVNA.py's fstart/fstop/IFBW
// parameters and get_Trace method.
func newVNA(args []any, kwargs map[string]any) (instrument.Instrument, error) {
	b := instrument.NewBase(VNAClassPath)

	b.AddParameter(instrument.NewParameter(
		"fstart", paramkind.Float,
		instrument.WithUnit("Hz"),
		instrument.WithValidator(paramkind.RangeValidator{Min: 0, Max: 20e9}),
		instrument.WithInitialValue(6e9),
	))
	b.AddParameter(instrument.NewParameter(
		"fstop", paramkind.Float,
		instrument.WithUnit("Hz"),
		instrument.WithValidator(paramkind.RangeValidator{Min: 0, Max: 20e9}),
		instrument.WithInitialValue(8e9),
	))
	b.AddParameter(instrument.NewParameter(
		"IFBW", paramkind.Float,
		instrument.WithUnit("Hz"),
		instrument.WithValidator(paramkind.RangeValidator{Min: 1, Max: 1e6}),
		instrument.WithInitialValue(3e3),
	))

	b.AddMethod(instrument.NewMethod(
		"get_trace", nil, nil, "json",
		func(args []any, kwargs map[string]any) (any, error) {
			trace := make([]float64, vnaTracePoints)
			for i := range trace {
				trace[i] = rand.Float64()
			}
			return trace, nil
		},
	))
	b.AddMethod(instrument.NewMethod(
		"sweep", nil, nil, "json",
		func(args []any, kwargs map[string]any) (any, error) {
			trace := make([]float64, vnaTracePoints)
			for i := range trace {
				trace[i] = rand.Float64()
			}
			return trace, nil
		},
	))

	return b, nil
}
