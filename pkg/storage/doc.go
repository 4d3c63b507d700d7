/*
Package storage implements the EcoWatt Persistent Store: a small,
namespaced key-value layer backed by bbolt, used for everything that must
survive a reboot — the replay counter, reconciled device configuration,
firmware update bookkeeping, and power-management state.

Sensor data itself is never persisted here; only the five namespaces named
in storage.Namespace* are durable (config, security, firmware, power,
diagnostics). Each namespace maps to one bbolt bucket.

# Write discipline

Every Put call takes BoltStore.writeMu before opening a bbolt write
transaction, so callers can reason about a single global write serialization
point exactly as spec'd, independent of bbolt's own internal writer lock.
Reads (Get*) never take writeMu and run as bbolt read-only transactions,
which are lock-free snapshots with respect to concurrent writers.

A failed write is returned to the caller; BoltStore never retries and never
panics on a write failure. The in-memory value the caller was holding before
the failed write remains whatever it was — this package has no opinion on
caller-side caching.
*/
package storage
