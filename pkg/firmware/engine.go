package firmware

import (
	"context"
	"crypto"
	"crypto/rsa"
	"crypto/sha256"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/ecowatt/pkg/netclient"
	"github.com/cuemby/ecowatt/pkg/storage"
	"github.com/cuemby/ecowatt/pkg/types"
)

// Engine drives one device's firmware update state machine end to end.
type Engine struct {
	Store     storage.Store
	Client    *netclient.Client
	Applier   Applier
	DeviceID  string
	UpdateKey []byte // 16 bytes, AES-128
	PublicKey *rsa.PublicKey
	Logger    zerolog.Logger

	// Quiesce and Resume, if set, bracket the single call to
	// Applier.Apply. The task supervisor wires these to
	// SuspendAll/ResumeAll so no other task observes a half-applied
	// image.
	Quiesce func()
	Resume  func()
}

func (e *Engine) loadState() (types.FirmwareUpdateState, error) {
	var state types.FirmwareUpdateState
	found, err := e.Store.GetJSON(storage.NamespaceFirmware, storage.KeyFirmwareState, &state)
	if err != nil {
		return types.FirmwareUpdateState{}, err
	}
	if !found {
		state.Phase = types.FirmwareIdle
	}
	return state, nil
}

func (e *Engine) persistState(state types.FirmwareUpdateState) error {
	state.LastActivity = time.Now()
	return e.Store.PutJSON(storage.NamespaceFirmware, storage.KeyFirmwareState, state)
}

// RunUpdateCycle checks for a pending update and, if one exists, downloads,
// verifies, and applies it. It returns (false, nil) when the device is
// already current.
func (e *Engine) RunUpdateCycle(ctx context.Context) (bool, error) {
	state, err := e.loadState()
	if err != nil {
		return false, fmt.Errorf("firmware: load state: %w", err)
	}

	manifest := state.Manifest
	if manifest == nil || state.Phase == types.FirmwareIdle || state.Phase == types.FirmwareCompleted || state.Phase == types.FirmwareError {
		manifest, err = FetchManifest(ctx, e.Client, e.DeviceID)
		if err != nil {
			return false, fmt.Errorf("firmware: check for update: %w", err)
		}
		if manifest == nil {
			return false, nil
		}
		state = types.FirmwareUpdateState{Phase: types.FirmwareChecking, Manifest: manifest}
		if err := e.persistState(state); err != nil {
			return false, fmt.Errorf("firmware: persist checking state: %w", err)
		}
	}

	sink := NewMemorySink(manifest.ChunkCount)
	if err := e.download(ctx, manifest, &state, sink); err != nil {
		e.fail(ctx, state, err)
		return false, err
	}

	state.Phase = types.FirmwareVerifying
	if err := e.persistState(state); err != nil {
		return false, fmt.Errorf("firmware: persist verifying state: %w", err)
	}

	image, err := e.verify(manifest, sink)
	if err != nil {
		e.fail(ctx, state, err)
		return false, err
	}

	state.Phase = types.FirmwareApplying
	e.persistState(state)

	if err := e.Store.PutBool(storage.NamespaceFirmware, storage.KeyPendingDiagnostics, true); err != nil {
		e.Logger.Error().Err(err).Msg("failed to persist pending-diagnostics marker")
	}

	if e.Quiesce != nil {
		e.Quiesce()
	}
	applyErr := e.Applier.Apply(manifest.Version, image)
	if e.Resume != nil {
		e.Resume()
	}
	if applyErr != nil {
		if cerr := e.Store.PutBool(storage.NamespaceFirmware, storage.KeyPendingDiagnostics, false); cerr != nil {
			e.Logger.Error().Err(cerr).Msg("failed to clear pending-diagnostics marker after failed apply")
		}
		e.fail(ctx, state, fmt.Errorf("apply image: %w", applyErr))
		return false, applyErr
	}

	state.Phase = types.FirmwareCompleted
	e.persistState(state)
	e.Logger.Info().Str("version", manifest.Version).Msg("firmware update applied")
	if rerr := ReportStatus(ctx, e.Client, e.DeviceID, state.Phase, manifest.Version, ""); rerr != nil {
		e.Logger.Warn().Err(rerr).Msg("failed to report firmware status")
	}
	return true, nil
}

func (e *Engine) fail(ctx context.Context, state types.FirmwareUpdateState, err error) {
	state.Phase = types.FirmwareError
	state.ErrorDescription = err.Error()
	if perr := e.persistState(state); perr != nil {
		e.Logger.Error().Err(perr).Msg("failed to persist firmware error state")
	}
	e.Logger.Error().Err(err).Msg("firmware update failed")
	if rerr := ReportStatus(ctx, e.Client, e.DeviceID, state.Phase, "", state.ErrorDescription); rerr != nil {
		e.Logger.Warn().Err(rerr).Msg("failed to report firmware status")
	}
}

func (e *Engine) download(ctx context.Context, manifest *types.FirmwareManifest, state *types.FirmwareUpdateState, sink ChunkSink) error {
	start := state.ChunksReceived
	if state.Phase != types.FirmwareDownloading {
		start = 0
		state.ChunksReceived = 0
		state.BytesReceived = 0
	}
	state.Phase = types.FirmwareDownloading

	for i := start; i < manifest.ChunkCount; i++ {
		ciphertext, err := fetchChunk(ctx, e.Client, e.DeviceID, i)
		if err != nil {
			return err
		}
		iv, err := deriveChunkIV(manifest.ChunkInitialVector, uint32(i), e.UpdateKey)
		if err != nil {
			return err
		}
		plaintext, err := decryptChunk(e.UpdateKey, iv, ciphertext)
		if err != nil {
			return fmt.Errorf("firmware: decrypt chunk %d: %w", i, err)
		}
		if err := sink.WriteChunk(ctx, i, plaintext); err != nil {
			return fmt.Errorf("firmware: write chunk %d: %w", i, err)
		}

		state.ChunksReceived = i + 1
		state.BytesReceived += int64(len(plaintext))
		if err := e.persistState(*state); err != nil {
			return fmt.Errorf("firmware: checkpoint chunk %d: %w", i, err)
		}
	}
	return nil
}

func (e *Engine) verify(manifest *types.FirmwareManifest, sink ChunkSink) ([]byte, error) {
	image, err := sink.Assembled()
	if err != nil {
		return nil, fmt.Errorf("firmware: assemble image: %w", err)
	}

	digest := sha256.Sum256(image)
	if digest != manifest.ContentHash {
		return nil, fmt.Errorf("firmware: content hash mismatch")
	}

	if e.PublicKey != nil {
		if err := rsa.VerifyPSS(e.PublicKey, crypto.SHA256, digest[:], manifest.HashSignature, nil); err != nil {
			return nil, fmt.Errorf("firmware: signature verification failed: %w", err)
		}
	}

	return image, nil
}
