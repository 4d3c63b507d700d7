package uploader

import (
	"context"
	"crypto/aes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/ecowatt/pkg/batch"
	"github.com/cuemby/ecowatt/pkg/envelope"
	"github.com/cuemby/ecowatt/pkg/netclient"
	"github.com/cuemby/ecowatt/pkg/storage"
	"github.com/cuemby/ecowatt/pkg/types"
)

func newTestUploader(t *testing.T, serverURL string) (*Uploader, *batch.CompressedRing) {
	t.Helper()
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	hmacKey := make([]byte, 32)
	var iv [aes.BlockSize]byte
	env, err := envelope.New(store, hmacKey, nil, iv, false)
	require.NoError(t, err)

	ring := batch.NewCompressedRing(10)
	u := &Uploader{
		Client:   netclient.New(serverURL),
		Envelope: env,
		Ring:     ring,
		DeviceID: "device-1",
		Logger:   zerolog.Nop(),
	}
	return u, ring
}

func TestUploader_RunDrainsAndUploads(t *testing.T) {
	var received aggregatedBatch
	var receivedEnvelope wireEnvelope
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&receivedEnvelope))
		require.NoError(t, json.Unmarshal(receivedEnvelope.Payload, &received))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	u, ring := newTestUploader(t, server.URL)
	ring.Push(types.CompressedPacket{Codec: 0x00, SampleCount: 3, Selection: []string{"v1"}, Bytes: []byte{0x00, 1, 2}})

	err := u.Run(context.Background())
	require.NoError(t, err)
	require.True(t, ring.Empty())
	require.Len(t, received.Packets, 1)
	require.Equal(t, uint32(1), receivedEnvelope.Counter)
}

func TestUploader_RunWithEmptyRingIsNoop(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("server should not be called for an empty ring")
	}))
	defer server.Close()

	u, _ := newTestUploader(t, server.URL)
	require.NoError(t, u.Run(context.Background()))
}

func TestUploader_RequeuesOnServerFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	u, ring := newTestUploader(t, server.URL)
	ring.Push(types.CompressedPacket{Codec: 0x00, SampleCount: 1, Selection: []string{"v1"}, Bytes: []byte{0x00, 1, 2}})

	err := u.Run(context.Background())
	require.Error(t, err)
	require.False(t, ring.Empty())
	require.Equal(t, 1, ring.Size())
}
