package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/cuemby/ecowatt/pkg/log"
)

// Bootstrap is the immutable configuration read once at process start: the
// identity and connection details a device needs before it can reach the
// Persistent Store or the cloud endpoint at all. Everything that can change
// at runtime (poll periods, register selection, power management) lives in
// DeviceConfig instead, reconciled from the cloud and read through Store.
type Bootstrap struct {
	DeviceID     string `yaml:"device_id"`
	CloudBaseURL string `yaml:"cloud_base_url"`
	DataDir      string `yaml:"data_dir"`

	// HMACKeyHex and AESKeyHex are the device's pre-shared security
	// envelope key material, hex-encoded. AESKeyHex may be empty if the
	// device only authenticates outbound payloads and does not encrypt
	// them.
	HMACKeyHex     string `yaml:"hmac_key_hex"`
	AESKeyHex      string `yaml:"aes_key_hex"`
	AESIVHex       string `yaml:"aes_iv_hex"`
	EncryptPayload bool   `yaml:"encrypt_payload"`

	// RegisterDevicePath is the byte-stream device (serial port, bench
	// simulator socket) the register protocol is transacted over.
	RegisterDevicePath string `yaml:"register_device_path"`
	SlaveAddress       uint8  `yaml:"slave_address"`

	// FirmwareUpdateKeyHex is the AES-128 key chunk ciphertexts are
	// encrypted under; FirmwarePublicKeyPath points at a PEM-encoded RSA
	// public key used to verify the signed content hash. Both may be
	// empty on a bench build that never exercises firmware update.
	FirmwareUpdateKeyHex string `yaml:"firmware_update_key_hex"`
	FirmwarePublicKeyPath string `yaml:"firmware_public_key_path"`

	LogLevel string `yaml:"log_level"`
	LogJSON  bool   `yaml:"log_json"`
}

// DefaultDataDir is used when a bootstrap file omits data_dir.
const DefaultDataDir = "/var/lib/ecowatt"

// Load reads and parses a YAML bootstrap file from path.
func Load(path string) (*Bootstrap, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read bootstrap file: %w", err)
	}

	var b Bootstrap
	if err := yaml.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("config: parse bootstrap file: %w", err)
	}

	b.applyDefaults()
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return &b, nil
}

func (b *Bootstrap) applyDefaults() {
	if b.DataDir == "" {
		b.DataDir = DefaultDataDir
	}
	if b.LogLevel == "" {
		b.LogLevel = string(log.InfoLevel)
	}
	if b.SlaveAddress == 0 {
		b.SlaveAddress = 1
	}
}

// Validate checks that the fields a device cannot safely run without are
// present. Key material format is not checked here: the CLI hex-decodes
// the keys when it builds the daemon, and the envelope package checks
// their lengths.
func (b *Bootstrap) Validate() error {
	if b.DeviceID == "" {
		return fmt.Errorf("config: device_id is required")
	}
	if b.CloudBaseURL == "" {
		return fmt.Errorf("config: cloud_base_url is required")
	}
	if b.HMACKeyHex == "" {
		return fmt.Errorf("config: hmac_key_hex is required")
	}
	return nil
}

// Override applies non-empty command-line/environment overrides on top of
// a loaded Bootstrap, giving the CLI's persistent flags priority over the
// file without requiring every flag to be set.
func (b *Bootstrap) Override(logLevel string, logJSON *bool, dataDir string) {
	if logLevel != "" {
		b.LogLevel = logLevel
	}
	if logJSON != nil {
		b.LogJSON = *logJSON
	}
	if dataDir != "" {
		b.DataDir = dataDir
	}
}
