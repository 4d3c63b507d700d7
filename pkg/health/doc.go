// Package health implements the post-boot diagnostics that run on the
// first boot of a newly applied firmware slot: is the cloud endpoint
// reachable, is the Persistent Store reachable, does a local self-test
// command exit cleanly. A Runner drives a fixed set of named Checkers
// within an overall deadline; if any checker fails, the firmware slot is
// marked invalid and a rollback to the previous slot is requested.
package health
