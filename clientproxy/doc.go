// Package clientproxy builds a client-side mirror tree from a single
// wire.InstrumentBlueprint. A proxy node never caches a parameter's value
// (spec.md §4.7: "they never cache values") — it forwards get/set/call
// through the owning Client's Ask on every access, caching only the
// metadata a blueprint carries (unit, validator, settable/readable).
//
// Grounded on spec.md §9's design note ("model proxy nodes as tagged
// variants (Parameter / Method / Sub-module) with a shared address
// resolver that composes dotted paths") and on
// original_source/instrumentserver/client/proxy.py's ProxyMixin/
// ProxyParameter/ProxyInstrument split, adapted from qcodes Parameter
// subclassing (not idiomatic in Go) to three plain Go structs sharing one
// addressing helper.
//
// ClientStation groups named proxy trees sharing one Client into one
// namespace (spec.md §4.7's client-station, supplemented from
// original_source/instrumentserver/client/application.py's ClientStation).
package clientproxy
