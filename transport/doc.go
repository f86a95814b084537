// Package transport realizes spec.md §4.1's router/dealer request-reply
// socket and publisher/subscriber broadcast socket over NATS core, per the
// substitution SPEC_FULL.md §2 documents: no ZeroMQ binding exists anywhere
// in the reference corpus, while github.com/nats-io/nats.go is already the
// corpus's message-bus library of choice, wired for exactly this shape of
// problem.
//
// Server answers one NATS subject per process with dispatcher-produced
// replies (nats.go's automatic reply-subject correlation stands in for
// ROUTER/DEALER's identity-preserving framing) and publishes broadcast
// events on a second subject namespace. Client wraps a connection with the
// corpus's reconnect/circuit-breaker bookkeeping, collapsed to the subset
// spec.md §4.1 asks for. Subscriber consumes the broadcast namespace with
// prefix filtering done by NATS itself, through a subject wildcard built
// from the topic prefix.
package transport
