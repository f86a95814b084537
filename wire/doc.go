// Package wire defines the JSON payloads exchanged between clients and the
// server, and the broadcast frame published on every parameter change. It is
// pure data: no transport, no locking, no instrument semantics — just the
// shapes described in spec.md §6 and their encode/decode helpers.
package wire
