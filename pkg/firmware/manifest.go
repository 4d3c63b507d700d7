package firmware

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/cuemby/ecowatt/pkg/netclient"
	"github.com/cuemby/ecowatt/pkg/types"
)

type wireManifest struct {
	Version       string `json:"version"`
	TotalSize     int64  `json:"total_size"`
	ChunkSize     int    `json:"chunk_size"`
	ChunkCount    int    `json:"chunk_count"`
	ContentHash   string `json:"content_hash_sha256"` // hex
	HashSignature string `json:"hash_signature"`      // base64
	ChunkIV       string `json:"chunk_iv"`             // base64, 16 bytes
}

// FetchManifest checks /ota/check/{device-id} for a pending update. A 204
// No Content means the device is already current; FetchManifest returns
// (nil, nil) in that case.
func FetchManifest(ctx context.Context, client *netclient.Client, deviceID string) (*types.FirmwareManifest, error) {
	ctx, cancel := context.WithTimeout(ctx, netclient.FirmwareTimeout)
	defer cancel()

	resp, err := client.Do(ctx, http.MethodGet, "/ota/check/"+deviceID, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("firmware: fetch manifest: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		io.Copy(io.Discard, resp.Body)
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("firmware: manifest endpoint returned status %d", resp.StatusCode)
	}

	var wire wireManifest
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, fmt.Errorf("firmware: decode manifest: %w", err)
	}
	return decodeManifest(wire)
}

func decodeManifest(wire wireManifest) (*types.FirmwareManifest, error) {
	hashBytes, err := hex.DecodeString(wire.ContentHash)
	if err != nil || len(hashBytes) != 32 {
		return nil, fmt.Errorf("firmware: manifest content hash malformed")
	}
	sig, err := base64.StdEncoding.DecodeString(wire.HashSignature)
	if err != nil {
		return nil, fmt.Errorf("firmware: manifest signature malformed: %w", err)
	}
	ivBytes, err := base64.StdEncoding.DecodeString(wire.ChunkIV)
	if err != nil || len(ivBytes) != 16 {
		return nil, fmt.Errorf("firmware: manifest chunk iv malformed")
	}

	m := &types.FirmwareManifest{
		Version:       wire.Version,
		TotalSize:     wire.TotalSize,
		ChunkSize:     wire.ChunkSize,
		ChunkCount:    wire.ChunkCount,
		HashSignature: sig,
	}
	copy(m.ContentHash[:], hashBytes)
	copy(m.ChunkInitialVector[:], ivBytes)
	return m, nil
}

// fetchChunk downloads one encrypted chunk.
func fetchChunk(ctx context.Context, client *netclient.Client, deviceID string, index int) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, netclient.FirmwareTimeout)
	defer cancel()

	resp, err := client.Do(ctx, http.MethodGet, fmt.Sprintf("/ota/chunk/%s/%d", deviceID, index), nil, nil)
	if err != nil {
		return nil, fmt.Errorf("firmware: fetch chunk %d: %w", index, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("firmware: chunk %d endpoint returned status %d", index, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

type wireStatus struct {
	Phase   string `json:"phase"`
	Version string `json:"version,omitempty"`
	Error   string `json:"error,omitempty"`
}

// ReportStatus posts the current update phase to /ota/status/{device-id}
// on a best-effort basis; a reporting failure never aborts the update.
func ReportStatus(ctx context.Context, client *netclient.Client, deviceID string, phase types.FirmwarePhase, version, errDescription string) error {
	ctx, cancel := context.WithTimeout(ctx, netclient.FirmwareTimeout)
	defer cancel()

	body, err := json.Marshal(wireStatus{Phase: string(phase), Version: version, Error: errDescription})
	if err != nil {
		return fmt.Errorf("firmware: encode status: %w", err)
	}
	resp, err := client.Do(ctx, http.MethodPost, "/ota/status/"+deviceID, bytes.NewReader(body), map[string]string{"Content-Type": "application/json"})
	if err != nil {
		return fmt.Errorf("firmware: report status: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return nil
}
