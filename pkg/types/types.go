package types

import "time"

// RegisterType classifies the physical quantity a Register carries. Codec
// tolerances in pkg/compression are keyed off this.
type RegisterType string

const (
	RegisterVoltage     RegisterType = "voltage"
	RegisterCurrent     RegisterType = "current"
	RegisterFrequency   RegisterType = "frequency"
	RegisterTemperature RegisterType = "temperature"
	RegisterPower       RegisterType = "power"
	RegisterPowerSet    RegisterType = "power-setpoint"
)

// Register is a stable, build-time-defined identifier for a 16-bit word in
// the inverter's address space.
type Register struct {
	ID      string
	Address uint16
	Type    RegisterType
}

// Sample is an unordered Register->value reading taken at one instant.
// Selection is the exact set of register IDs sampled; two Samples belong to
// the same SampleBatch only if their Selection is identical.
type Sample struct {
	Values        map[string]uint16
	Selection     []string
	AcquiredAtMS  int64 // milliseconds since boot
}

// CompressedPacket is the immutable output of the Adaptive Compression
// Engine for one SampleBatch.
type CompressedPacket struct {
	Codec         byte
	SampleCount   int
	Selection     []string
	Bytes         []byte // len <= 512; byte 0 == Codec
	RawSize       int    // pre-compression size
	PackedSize    int    // post-compression size (== len(Bytes))
	Verified      bool   // passed lossless self-check
}

// SecurityCounter is the persisted monotonic replay-protection counter.
// The value in storage is always >= the last value used in a successfully
// emitted envelope.
type SecurityCounter struct {
	Value uint32
}

// SecuredEnvelope is the wire record produced by pkg/envelope.Wrap.
type SecuredEnvelope struct {
	Counter     uint32
	Payload     []byte // ciphertext if Encrypted, else plaintext
	Authenticator [32]byte
	Encrypted   bool
}

// FirmwareManifest describes one OTA image. Immutable once fetched.
type FirmwareManifest struct {
	Version          string
	TotalSize        int64
	ChunkSize        int
	ChunkCount       int
	ContentHash      [32]byte
	HashSignature    []byte
	ChunkInitialVector [16]byte
}

// FirmwarePhase enumerates the Firmware Update Engine's state machine.
type FirmwarePhase string

const (
	FirmwareIdle        FirmwarePhase = "idle"
	FirmwareChecking    FirmwarePhase = "checking"
	FirmwareDownloading FirmwarePhase = "downloading"
	FirmwareVerifying   FirmwarePhase = "verifying"
	FirmwareApplying    FirmwarePhase = "applying"
	FirmwareCompleted   FirmwarePhase = "completed"
	FirmwareError       FirmwarePhase = "error"
	FirmwareRollback    FirmwarePhase = "rollback"
)

// FirmwareUpdateState is persisted after every phase transition so a reboot
// mid-update resumes at the last checkpoint.
type FirmwareUpdateState struct {
	Phase           FirmwarePhase
	ChunksReceived  int
	BytesReceived   int64
	Manifest        *FirmwareManifest
	ErrorDescription string
	LastActivity    time.Time
}

// CommandAction is the closed set of remote command action-names.
type CommandAction string

const (
	ActionWriteRegister      CommandAction = "write_register"
	ActionSetPower           CommandAction = "set_power"
	ActionSetPowerPercentage CommandAction = "set_power_percentage"
	ActionGetPowerStats      CommandAction = "get_power_stats"
	ActionResetPowerStats    CommandAction = "reset_power_stats"
	ActionGetPeripheralStats CommandAction = "get_peripheral_stats"
	ActionResetPeripheralStats CommandAction = "reset_peripheral_stats"
)

// Command is one remote-dispatched action, as received from
// /commands/{device-id}/poll.
type Command struct {
	CommandID   string
	Action      CommandAction
	Parameters  map[string]string
	ReceiptTime time.Time
}

// PowerManagementConfig is the power-management sub-block of DeviceConfig.
type PowerManagementConfig struct {
	Enabled            bool
	TechniquesBitmask  uint8
	EnergyReportPeriod time.Duration
}

// DeviceConfig is the authoritative, reconciler-managed runtime
// configuration. It lives in the Persistent Store under the "config"
// namespace.
type DeviceConfig struct {
	PollPeriod          time.Duration
	UploadPeriod        time.Duration
	CommandPollPeriod   time.Duration
	ConfigPollPeriod    time.Duration
	FirmwareCheckPeriod time.Duration
	ActiveRegisterSet   []string
	CompressionEnabled  bool
	PowerManagement     PowerManagementConfig
}

// FaultKind enumerates the exhaustive fault taxonomy the device can detect.
type FaultKind string

const (
	FaultTimeout               FaultKind = "timeout"
	FaultCRCError              FaultKind = "crc-error"
	FaultTruncated             FaultKind = "truncated"
	FaultMalformed             FaultKind = "malformed"
	FaultGarbage               FaultKind = "garbage"
	FaultBufferOverflow        FaultKind = "buffer-overflow"
	FaultExceptionTransient    FaultKind = "exception-transient"
	FaultExceptionRemote       FaultKind = "exception-remote"
	FaultExceptionNonRecoverable FaultKind = "exception-nonrecoverable"
)

// FaultEvent is emitted to the cloud fault-recovery endpoint on a
// best-effort basis; it is never persisted locally.
type FaultEvent struct {
	FaultKind     FaultKind
	RecoveryAction string
	Success       bool
	RetryCount    int
	Detail        string
	DeviceID      string
	Timestamp     time.Time
}
