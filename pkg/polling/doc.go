// Package polling implements the register polling pipeline: one tick
// reads the active register selection over the register carrier
// protocol, recovers from transient faults, decodes the response into a
// Sample in caller order, and publishes it onto a bounded FIFO queue
// that drops the oldest entry rather than block when full.
package polling
