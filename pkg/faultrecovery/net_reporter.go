package faultrecovery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/cuemby/ecowatt/pkg/netclient"
	"github.com/cuemby/ecowatt/pkg/types"
)

type wireFaultEvent struct {
	FaultKind      string `json:"fault_kind"`
	RecoveryAction string `json:"recovery_action"`
	Success        bool   `json:"success"`
	RetryCount     int    `json:"retry_count"`
	Detail         string `json:"detail,omitempty"`
	DeviceID       string `json:"device_id"`
	TimestampUTC   string `json:"timestamp_utc"`
}

// NetReporter posts FaultEvents to the cloud's /fault/recovery endpoint.
// It is the default Reporter wired into Recoverer by the CLI; tests use a
// fake Reporter instead so they don't depend on a live Client.
type NetReporter struct {
	Client *netclient.Client
}

// ReportFault posts event, best-effort: callers treat reporting failures as
// non-fatal and only log them.
func (n *NetReporter) ReportFault(ctx context.Context, event types.FaultEvent) error {
	body, err := json.Marshal(wireFaultEvent{
		FaultKind:      string(event.FaultKind),
		RecoveryAction: event.RecoveryAction,
		Success:        event.Success,
		RetryCount:     event.RetryCount,
		Detail:         event.Detail,
		DeviceID:       event.DeviceID,
		TimestampUTC:   event.Timestamp.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
	})
	if err != nil {
		return fmt.Errorf("faultrecovery: encode fault event: %w", err)
	}

	resp, err := n.Client.Do(ctx, http.MethodPost, "/fault/recovery", bytes.NewReader(body), map[string]string{"Content-Type": "application/json"})
	if err != nil {
		return fmt.Errorf("faultrecovery: post fault event: %w", err)
	}
	defer resp.Body.Close()
	return nil
}
