// Package instrument defines the capability interface every instrument
// driver implements, the Base helper that gives a driver a working
// parameter/method/sub-module tree for free, and the process-wide Registry
// that owns the set of live instruments.
//
// Per spec.md §9's design note, the dispatcher depends only on the
// Instrument interface; it has no notion of any particular driver. Drivers
// implement Instrument (directly, or by embedding Base) and register a
// factory under a class path with the Registry.
package instrument
