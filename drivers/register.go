package drivers

import (
	"github.com/toolsforexperiments/instrumentserver/drivers/dummy"
	"github.com/toolsforexperiments/instrumentserver/instrument"
	"github.com/toolsforexperiments/instrumentserver/serverr"
)

// Register fans every built-in driver factory out into registry. No real
// hardware driver exists in this repo — talking to physical instruments is
// out of scope (spec.md §1) — so this only wires up the simulated drivers
// used for development and testing.
func Register(registry *instrument.Registry) error {
	if err := dummy.Register(registry); err != nil {
		return serverr.WrapInternal(err, "drivers", "Register")
	}
	return nil
}
