// Package config owns the device's two layers of configuration: Bootstrap,
// an immutable YAML file read once at process start (device identity,
// cloud URL, key material, storage path), and DeviceConfigStore, a
// Store-backed accessor for the runtime-mutable DeviceConfig that the
// configuration reconciler keeps in sync with the cloud.
package config
