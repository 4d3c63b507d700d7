package config

import (
	"time"

	"github.com/cuemby/ecowatt/pkg/storage"
	"github.com/cuemby/ecowatt/pkg/types"
)

// DefaultDeviceConfig is seeded into the Persistent Store the first time a
// device boots, before the configuration reconciler has ever heard from
// the cloud. Values sit comfortably inside the configuration range table
// so a freshly flashed device behaves reasonably even if it can never
// reach the network.
func DefaultDeviceConfig() types.DeviceConfig {
	return types.DeviceConfig{
		PollPeriod:          30 * time.Second,
		UploadPeriod:        60 * time.Second,
		CommandPollPeriod:   30 * time.Second,
		ConfigPollPeriod:    60 * time.Second,
		FirmwareCheckPeriod: time.Hour,
		ActiveRegisterSet:   DefaultActiveRegisterSet(),
		CompressionEnabled:  true,
	}
}

// DeviceConfigStore reads and writes the live DeviceConfig. It is a thin,
// named wrapper over storage.Store so callers outside pkg/reconciler (the
// CLI's `status`/`config show` subcommands, the task supervisor reading
// period settings) don't need to know the namespace/key the reconciler
// persists under.
type DeviceConfigStore struct {
	Store storage.Store
}

// NewDeviceConfigStore wraps store for DeviceConfig access.
func NewDeviceConfigStore(store storage.Store) *DeviceConfigStore {
	return &DeviceConfigStore{Store: store}
}

// Get returns the persisted DeviceConfig, or DefaultDeviceConfig if none
// has been persisted yet.
func (d *DeviceConfigStore) Get() (types.DeviceConfig, error) {
	var cfg types.DeviceConfig
	found, err := d.Store.GetJSON(storage.NamespaceConfig, storage.KeyDeviceConfig, &cfg)
	if err != nil {
		return types.DeviceConfig{}, err
	}
	if !found {
		return DefaultDeviceConfig(), nil
	}
	return cfg, nil
}

// Put persists cfg directly, bypassing reconciler validation. Used by the
// `ecowatt config set` CLI subcommand, which performs its own range-table
// validation before calling this.
func (d *DeviceConfigStore) Put(cfg types.DeviceConfig) error {
	return d.Store.PutJSON(storage.NamespaceConfig, storage.KeyDeviceConfig, cfg)
}
