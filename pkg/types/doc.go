/*
Package types defines the data model shared by every EcoWatt component.

It holds the plain value types passed between tasks on the device: register
descriptors, samples read off the inverter, compressed packets, the security
envelope, firmware update bookkeeping, remote commands, and the reconciled
device configuration. Nothing in this package has behavior beyond simple
constructors; the packages that own a given entity (pkg/compression,
pkg/envelope, pkg/firmware, ...) define the operations on it.

Values here cross task boundaries on queues and through the Persistent
Store, never by shared pointer — see pkg/supervisor for the concurrency
rules this is meant to support.
*/
package types
