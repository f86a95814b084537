// Package dummy implements in-process simulated instruments used for
// development, demos, and tests. None of them talk to real hardware;
// they are the Go equivalent of the reference implementation's
// fakeCS/fakeVNA mock instruments.
package dummy
