// Package dispatch decodes an Instruction, routes it to the instrument
// registry or the parameter manager under the correct lock, and produces a
// Response. It is the only package that calls into instrument code, per
// spec.md §4.2: "The pool is the only component that calls into instrument
// code."
package dispatch
