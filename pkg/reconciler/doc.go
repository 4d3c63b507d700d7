// Package reconciler implements the Configuration Reconciler: it polls the
// cloud endpoint for the device's desired configuration, validates any
// changed keys against the configuration range table, and persists
// accepted changes atomically (per key) into the Persistent Store.
//
// A pending change is either fully applied or fully rejected — the
// reconciler never persists a partially-valid DeviceConfig. After an
// accepted change is persisted, the reconciler passes the new config to
// every registered Notifier. The daemon registers only the polling
// pipeline's register selector; task periods are not updated.
package reconciler
