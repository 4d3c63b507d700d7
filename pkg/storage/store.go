package storage

// Store is the persistent store contract: a keyed, durable map partitioned
// into namespaces, with atomic per-key writes serialized through a single
// writer and lock-free reads.
//
// Callers must not assume atomicity across namespaces or across keys within
// one Put call — each Put is a single key, single transaction.
type Store interface {
	// GetUint32 returns the persisted value for key in namespace, or
	// defaultValue if absent.
	GetUint32(namespace, key string, defaultValue uint32) (uint32, error)
	PutUint32(namespace, key string, value uint32) error

	GetUint64(namespace, key string, defaultValue uint64) (uint64, error)
	PutUint64(namespace, key string, value uint64) error

	GetBool(namespace, key string, defaultValue bool) (bool, error)
	PutBool(namespace, key string, value bool) error

	GetString(namespace, key string, defaultValue string) (string, error)
	PutString(namespace, key string, value string) error

	// GetJSON unmarshals the persisted value for key into out, leaving out
	// untouched (caller-supplied zero/default value) if the key is absent.
	GetJSON(namespace, key string, out interface{}) (bool, error)
	PutJSON(namespace, key string, value interface{}) error

	Close() error
}

// Namespaces partition the persistent keyspace by subsystem.
const (
	NamespaceConfig      = "config"
	NamespaceSecurity    = "security"
	NamespaceFirmware    = "firmware"
	NamespacePower       = "power"
	NamespaceDiagnostics = "diagnostics"
)

// Persistent key names used across namespaces.
const (
	KeySecurityCounter    = "counter"
	KeyFirmwareState      = "state"
	KeyFirmwareManifest   = "manifest"
	KeyFirmwareChunks     = "chunks-received"
	KeyPowerEnabled       = "enabled"
	KeyPowerTechniques    = "techniques"
	KeyPowerReportPeriod  = "energy-report-period"
	KeyDeviceConfig       = "device-config"

	// KeyPendingDiagnostics marks that the slot currently active was just
	// applied by a firmware update and has not yet passed a post-boot
	// diagnostics run. Set by Engine right before Applier.Apply; cleared
	// by Engine if Apply fails, and by the daemon after the post-boot
	// diagnostics run, whether it passed or failed. A boot that finds
	// this unset skips diagnostics entirely.
	KeyPendingDiagnostics = "pending-diagnostics"
)
