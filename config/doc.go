// Package config loads the YAML startup configuration spec.md §6 describes:
// a top-level instruments: map (name -> class path, constructor args, and
// address) and a top-level networking: block (listening address, optional
// external broadcast address). Decoding uses gopkg.in/yaml.v3 — the reference
// corpus's own config package is JSON-oriented, but yaml.v3 appears
// elsewhere in the reference corpus (the "sett" repo) and is adopted here
// rather than hand-rolling a YAML reader.
//
// SafeConfig keeps the corpus's config package's read-copy-under-RWMutex
// pattern: callers always get back a deep copy, so holding onto a Config
// value never aliases live, concurrently-mutated state.
package config
