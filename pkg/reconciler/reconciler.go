package reconciler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/ecowatt/pkg/config"
	"github.com/cuemby/ecowatt/pkg/netclient"
	"github.com/cuemby/ecowatt/pkg/storage"
	"github.com/cuemby/ecowatt/pkg/types"
)

// wireConfig mirrors the desired-config response from /config/{device-id}.
// Nil fields mean "unchanged" — only fields present in the cloud's JSON
// are considered for diffing.
type wireConfig struct {
	PollPeriodSeconds          *int      `json:"poll_period_s,omitempty"`
	UploadPeriodSeconds        *int      `json:"upload_period_s,omitempty"`
	CommandPollPeriodSeconds   *int      `json:"command_poll_period_s,omitempty"`
	ConfigPollPeriodSeconds    *int      `json:"config_poll_period_s,omitempty"`
	FirmwareCheckPeriodSeconds *int      `json:"firmware_check_period_s,omitempty"`
	ActiveRegisterSet          *[]string `json:"active_register_set,omitempty"`
	CompressionEnabled         *bool     `json:"compression_enabled,omitempty"`
	PowerEnabled               *bool     `json:"power_enabled,omitempty"`
	PowerTechniquesBitmask     *int      `json:"power_techniques_bitmask,omitempty"`
	EnergyReportPeriodSeconds  *int      `json:"energy_report_period_s,omitempty"`
}

type ackEntry struct {
	Key      string `json:"key"`
	Accepted bool   `json:"accepted"`
	Reason   string `json:"reason,omitempty"`
}

type wireAck struct {
	Entries []ackEntry `json:"entries"`
}

// Notifier is implemented by subsystems that react to an accepted
// configuration change; Tick calls ConfigChanged on each one after the
// change is persisted. The daemon registers only the polling pipeline's
// register selector. The task supervisor is not a Notifier, so task
// periods keep the values they were started with.
type Notifier interface {
	ConfigChanged(cfg types.DeviceConfig)
}

// Reconciler fetches desired configuration, validates it against the
// range table, and persists accepted per-key changes into the Persistent
// Store. A pending change is either fully applied or fully rejected.
type Reconciler struct {
	Client    *netclient.Client
	Store     storage.Store
	DeviceID  string
	Catalog   map[string]types.Register // full register catalog; selections must be a subset
	Notifiers []Notifier
	Logger    zerolog.Logger
}

// Tick fetches the desired config, validates and applies accepted changes,
// and acknowledges the outcome. It returns the number of keys accepted.
func (r *Reconciler) Tick(ctx context.Context) (int, error) {
	desired, err := r.fetchDesired(ctx)
	if err != nil {
		return 0, fmt.Errorf("reconciler: fetch desired config: %w", err)
	}
	if desired == nil {
		return 0, nil
	}

	current, err := r.loadCurrent()
	if err != nil {
		return 0, fmt.Errorf("reconciler: load current config: %w", err)
	}

	candidate := current
	entries := r.applyFields(&candidate, current, *desired)

	accepted := 0
	for _, e := range entries {
		if e.Accepted {
			accepted++
		}
	}

	allAccepted := accepted == len(entries)
	if allAccepted && accepted > 0 {
		if err := r.persist(candidate); err != nil {
			return 0, fmt.Errorf("reconciler: persist config: %w", err)
		}
		for _, n := range r.Notifiers {
			n.ConfigChanged(candidate)
		}
	} else if accepted > 0 {
		// Mixed result: reject the whole batch so the ack reflects that
		// nothing was actually persisted.
		for i := range entries {
			if entries[i].Accepted {
				entries[i].Accepted = false
				entries[i].Reason = "rejected: batch contained an invalid key"
			}
		}
		accepted = 0
	}

	if err := r.acknowledge(ctx, entries); err != nil {
		r.Logger.Warn().Err(err).Msg("failed to acknowledge configuration change")
	}
	return accepted, nil
}

func (r *Reconciler) fetchDesired(ctx context.Context) (*wireConfig, error) {
	ctx, cancel := context.WithTimeout(ctx, netclient.ConfigTimeout)
	defer cancel()

	resp, err := r.Client.Do(ctx, http.MethodGet, "/config/"+r.DeviceID, nil, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNoContent {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("config endpoint returned status %d", resp.StatusCode)
	}

	var wire wireConfig
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, fmt.Errorf("decode desired config: %w", err)
	}
	return &wire, nil
}

func (r *Reconciler) loadCurrent() (types.DeviceConfig, error) {
	var cfg types.DeviceConfig
	found, err := r.Store.GetJSON(storage.NamespaceConfig, storage.KeyDeviceConfig, &cfg)
	if err != nil {
		return types.DeviceConfig{}, err
	}
	if !found {
		cfg = config.DefaultDeviceConfig()
	}
	return cfg, nil
}

func (r *Reconciler) persist(cfg types.DeviceConfig) error {
	return r.Store.PutJSON(storage.NamespaceConfig, storage.KeyDeviceConfig, cfg)
}

// applyFields diffs wire against current, validating each changed key
// against the range table and writing accepted values into candidate. It
// never mutates current.
func (r *Reconciler) applyFields(candidate *types.DeviceConfig, current types.DeviceConfig, wire wireConfig) []ackEntry {
	var entries []ackEntry

	durationField := func(key string, secPtr *int, min, max time.Duration, crossCheck func(time.Duration) (bool, string), set func(time.Duration)) {
		if secPtr == nil {
			return
		}
		d := time.Duration(*secPtr) * time.Second
		if d < min || d > max {
			entries = append(entries, ackEntry{Key: key, Accepted: false, Reason: fmt.Sprintf("out of range [%s, %s]", min, max)})
			return
		}
		if crossCheck != nil {
			if ok, reason := crossCheck(d); !ok {
				entries = append(entries, ackEntry{Key: key, Accepted: false, Reason: reason})
				return
			}
		}
		set(d)
		entries = append(entries, ackEntry{Key: key, Accepted: true})
	}

	durationField("poll-period", wire.PollPeriodSeconds, time.Second, time.Hour,
		func(d time.Duration) (bool, string) {
			effectiveUpload := current.UploadPeriod
			if wire.UploadPeriodSeconds != nil {
				effectiveUpload = time.Duration(*wire.UploadPeriodSeconds) * time.Second
			}
			if d > effectiveUpload {
				return false, "poll-period must be <= upload-period"
			}
			return true, ""
		},
		func(d time.Duration) { candidate.PollPeriod = d })

	durationField("upload-period", wire.UploadPeriodSeconds, 10*time.Second, time.Hour,
		func(d time.Duration) (bool, string) {
			effectivePoll := current.PollPeriod
			if wire.PollPeriodSeconds != nil {
				effectivePoll = time.Duration(*wire.PollPeriodSeconds) * time.Second
			}
			if d < effectivePoll {
				return false, "upload-period must be >= poll-period"
			}
			return true, ""
		},
		func(d time.Duration) { candidate.UploadPeriod = d })

	durationField("config-poll-period", wire.ConfigPollPeriodSeconds, time.Second, 5*time.Minute, nil, func(d time.Duration) { candidate.ConfigPollPeriod = d })
	durationField("command-poll-period", wire.CommandPollPeriodSeconds, 5*time.Second, 5*time.Minute, nil, func(d time.Duration) { candidate.CommandPollPeriod = d })
	durationField("firmware-check-period", wire.FirmwareCheckPeriodSeconds, 30*time.Second, 24*time.Hour, nil, func(d time.Duration) { candidate.FirmwareCheckPeriod = d })

	if wire.ActiveRegisterSet != nil {
		set := *wire.ActiveRegisterSet
		if len(set) < 3 || len(set) > 10 {
			entries = append(entries, ackEntry{Key: "active-register-set", Accepted: false, Reason: "register count must be 3..10"})
		} else if missing := r.firstUnknownRegister(set); missing != "" {
			entries = append(entries, ackEntry{Key: "active-register-set", Accepted: false, Reason: fmt.Sprintf("unknown register %q", missing)})
		} else {
			candidate.ActiveRegisterSet = set
			entries = append(entries, ackEntry{Key: "active-register-set", Accepted: true})
		}
	}

	if wire.CompressionEnabled != nil {
		candidate.CompressionEnabled = *wire.CompressionEnabled
		entries = append(entries, ackEntry{Key: "compression-enabled", Accepted: true})
	}

	if wire.PowerEnabled != nil {
		candidate.PowerManagement.Enabled = *wire.PowerEnabled
		entries = append(entries, ackEntry{Key: "power-enabled", Accepted: true})
	}

	if wire.PowerTechniquesBitmask != nil {
		v := *wire.PowerTechniquesBitmask
		if v < 0 || v > 0xF {
			entries = append(entries, ackEntry{Key: "power-techniques-bitmask", Accepted: false, Reason: "must fit in 4 bits"})
		} else {
			candidate.PowerManagement.TechniquesBitmask = uint8(v)
			entries = append(entries, ackEntry{Key: "power-techniques-bitmask", Accepted: true})
		}
	}

	durationField("energy-report-period", wire.EnergyReportPeriodSeconds, 60*time.Second, time.Hour, nil, func(d time.Duration) { candidate.PowerManagement.EnergyReportPeriod = d })

	return entries
}

func (r *Reconciler) firstUnknownRegister(selection []string) string {
	for _, id := range selection {
		if _, ok := r.Catalog[id]; !ok {
			return id
		}
	}
	return ""
}

func (r *Reconciler) acknowledge(ctx context.Context, entries []ackEntry) error {
	ctx, cancel := context.WithTimeout(ctx, netclient.ConfigTimeout)
	defer cancel()

	body, err := json.Marshal(wireAck{Entries: entries})
	if err != nil {
		return fmt.Errorf("encode ack: %w", err)
	}

	resp, err := r.Client.Do(ctx, http.MethodPost, "/config/"+r.DeviceID+"/ack", bytes.NewReader(body), map[string]string{"Content-Type": "application/json"})
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return nil
}
