// Package paramkind models a parameter's declared type and its validator as
// small tagged variants rather than Go interfaces with closures, so that a
// parameter manager profile — and a blueprint — built from them is always
// plain, round-trippable JSON. See spec.md §9's design note on keeping
// validators as "small tagged descriptors (range, enum,
// custom-predicate-id) rather than closures".
package paramkind
