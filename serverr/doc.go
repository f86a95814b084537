// Package serverr provides the structured error classification used across the
// dispatcher, the instrument registry, and the client runtime.
//
// Every error that reaches the wire is one of six server-side Kinds
// (ProtocolError, NotFound, Validation, Unsupported, InstrumentFailure,
// Internal). The client additionally surfaces two kinds that never cross the
// wire (Timeout, Disconnected) for failures that happen locally.
package serverr
