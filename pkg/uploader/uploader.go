package uploader

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/cuemby/ecowatt/pkg/batch"
	"github.com/cuemby/ecowatt/pkg/envelope"
	"github.com/cuemby/ecowatt/pkg/netclient"
	"github.com/cuemby/ecowatt/pkg/types"
)

// wirePacket is the JSON wire shape of one types.CompressedPacket.
type wirePacket struct {
	Codec       byte     `json:"codec"`
	SampleCount int      `json:"sample_count"`
	Selection   []string `json:"selection"`
	Bytes       []byte   `json:"bytes"`
}

type aggregatedBatch struct {
	Packets []wirePacket `json:"packets"`
}

// wireEnvelope is the JSON wire shape of one types.SecuredEnvelope.
type wireEnvelope struct {
	Counter       uint32 `json:"counter"`
	Payload       []byte `json:"payload"`
	Authenticator []byte `json:"authenticator"`
	Encrypted     bool   `json:"encrypted"`
}

// Uploader drains CompressedRing and ships its contents to the cloud.
type Uploader struct {
	Client   *netclient.Client
	Envelope *envelope.Envelope
	Ring     *batch.CompressedRing
	DeviceID string
	Logger   zerolog.Logger
}

// Run drains the ring and uploads its contents as one aggregated envelope.
// On any failure the drained packets are pushed back onto the ring, oldest
// first, so a future Run retries them.
func (u *Uploader) Run(ctx context.Context) error {
	packets := u.Ring.DrainAll()
	if len(packets) == 0 {
		return nil
	}

	body, err := u.encode(packets)
	if err != nil {
		u.requeue(packets)
		return fmt.Errorf("uploader: encode batch: %w", err)
	}

	resp, err := u.Client.DoWithAcquireTimeout(ctx, netclient.UploadTimeout, http.MethodPost, "/aggregated/"+u.DeviceID, bytes.NewReader(body),
		map[string]string{"Content-Type": "application/json"})
	if err != nil {
		u.requeue(packets)
		return fmt.Errorf("uploader: upload: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		u.requeue(packets)
		return fmt.Errorf("uploader: server rejected batch with status %d", resp.StatusCode)
	}

	u.Logger.Debug().Int("packets", len(packets)).Msg("uploaded aggregated batch")
	return nil
}

func (u *Uploader) encode(packets []types.CompressedPacket) ([]byte, error) {
	wire := make([]wirePacket, len(packets))
	for i, p := range packets {
		wire[i] = wirePacket{Codec: p.Codec, SampleCount: p.SampleCount, Selection: p.Selection, Bytes: p.Bytes}
	}
	plaintext, err := json.Marshal(aggregatedBatch{Packets: wire})
	if err != nil {
		return nil, fmt.Errorf("marshal aggregated batch: %w", err)
	}

	secured, err := u.Envelope.Wrap(plaintext)
	if err != nil {
		return nil, fmt.Errorf("wrap envelope: %w", err)
	}

	return json.Marshal(wireEnvelope{
		Counter:       secured.Counter,
		Payload:       secured.Payload,
		Authenticator: secured.Authenticator[:],
		Encrypted:     secured.Encrypted,
	})
}

func (u *Uploader) requeue(packets []types.CompressedPacket) {
	for _, p := range packets {
		if u.Ring.Push(p) {
			u.Logger.Warn().Msg("ring full while requeueing failed upload, oldest packet discarded")
		}
	}
}
