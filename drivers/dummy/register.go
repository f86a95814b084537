package dummy

import "github.com/toolsforexperiments/instrumentserver/instrument"

// Register wires every simulated driver's factory into registry under its
// class path.
func Register(registry *instrument.Registry) error {
	if err := registry.RegisterFactory(MultimeterClassPath, newMultimeter); err != nil {
		return err
	}
	if err := registry.RegisterFactory(VNAClassPath, newVNA); err != nil {
		return err
	}
	if err := registry.RegisterFactory(SourceClassPath, newSource); err != nil {
		return err
	}
	return nil
}
