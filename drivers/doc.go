// Package drivers fans out registration of every built-in instrument
// factory into a shared instrument.Registry, mirroring the corpus's
// per-subsystem Register(registry) convention (see
// drivers/dummy.Register).
package drivers
