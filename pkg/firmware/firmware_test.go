package firmware

import (
	"bytes"
	"context"
	"crypto"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/ecowatt/pkg/netclient"
	"github.com/cuemby/ecowatt/pkg/storage"
)

func TestDeriveChunkIV_DeterministicAndDistinct(t *testing.T) {
	key := make([]byte, 16)
	var base [16]byte
	iv0, err := deriveChunkIV(base, 0, key)
	require.NoError(t, err)
	iv0again, err := deriveChunkIV(base, 0, key)
	require.NoError(t, err)
	iv1, err := deriveChunkIV(base, 1, key)
	require.NoError(t, err)

	require.Equal(t, iv0, iv0again)
	require.NotEqual(t, iv0, iv1)
}

func encryptChunkForTest(t *testing.T, key []byte, iv [16]byte, plaintext []byte) []byte {
	t.Helper()
	block, err := aes.NewCipher(key)
	require.NoError(t, err)
	padLen := aes.BlockSize - len(plaintext)%aes.BlockSize
	padded := append(append([]byte(nil), plaintext...), bytes.Repeat([]byte{byte(padLen)}, padLen)...)
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv[:]).CryptBlocks(out, padded)
	return out
}

func TestDecryptChunk_RoundTrip(t *testing.T) {
	key := []byte("0123456789abcdef")
	var iv [16]byte
	copy(iv[:], []byte("fedcba9876543210"))

	plaintext := []byte("firmware image chunk payload, not block aligned")
	ciphertext := encryptChunkForTest(t, key, iv, plaintext)

	decrypted, err := decryptChunk(key, iv, ciphertext)
	require.NoError(t, err)
	require.Equal(t, plaintext, decrypted)
}

func TestMemorySink_ReassemblesOutOfOrder(t *testing.T) {
	sink := NewMemorySink(3)
	require.NoError(t, sink.WriteChunk(context.Background(), 2, []byte("ghi")))
	require.NoError(t, sink.WriteChunk(context.Background(), 0, []byte("abc")))
	require.NoError(t, sink.WriteChunk(context.Background(), 1, []byte("def")))

	image, err := sink.Assembled()
	require.NoError(t, err)
	require.Equal(t, []byte("abcdefghi"), image)
}

func TestMemorySink_AssembledFailsWhenIncomplete(t *testing.T) {
	sink := NewMemorySink(3)
	require.NoError(t, sink.WriteChunk(context.Background(), 0, []byte("abc")))
	_, err := sink.Assembled()
	require.Error(t, err)
}

func newTestApplier(t *testing.T) *SlotApplier {
	t.Helper()
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return &SlotApplier{Store: store}
}

func TestSlotApplier_FlipsActiveSlotOnApply(t *testing.T) {
	applier := newTestApplier(t)

	require.NoError(t, applier.Apply("1.0.0", []byte("image-a")))
	version, err := applier.ActiveVersion()
	require.NoError(t, err)
	require.Equal(t, "1.0.0", version)

	require.NoError(t, applier.Apply("1.1.0", []byte("image-b")))
	version, err = applier.ActiveVersion()
	require.NoError(t, err)
	require.Equal(t, "1.1.0", version)
}

func TestSlotApplier_RollbackReturnsToPreviousSlot(t *testing.T) {
	applier := newTestApplier(t)
	require.NoError(t, applier.Apply("1.0.0", []byte("image-a")))
	require.NoError(t, applier.Apply("1.1.0", []byte("image-b")))

	require.NoError(t, applier.Rollback())
	version, err := applier.ActiveVersion()
	require.NoError(t, err)
	require.Equal(t, "1.0.0", version)
}

// firmwareTestServer serves a manifest and its encrypted chunks for one
// image, signed and chunked exactly as the real cloud endpoint would.
func firmwareTestServer(t *testing.T, image []byte, updateKey []byte, privateKey *rsa.PrivateKey, chunkSize int) *httptest.Server {
	t.Helper()

	var baseIV [16]byte
	copy(baseIV[:], []byte("0123456789abcdef"))

	digest := sha256.Sum256(image)
	signature, err := rsa.SignPSS(rand.Reader, privateKey, crypto.SHA256, digest[:], nil)
	require.NoError(t, err)

	chunkCount := (len(image) + chunkSize - 1) / chunkSize
	if chunkCount == 0 {
		chunkCount = 1
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ota/check/", func(w http.ResponseWriter, r *http.Request) {
		manifest := wireManifest{
			Version:       "2.0.0",
			TotalSize:     int64(len(image)),
			ChunkSize:     chunkSize,
			ChunkCount:    chunkCount,
			ContentHash:   hex.EncodeToString(digest[:]),
			HashSignature: base64.StdEncoding.EncodeToString(signature),
			ChunkIV:       base64.StdEncoding.EncodeToString(baseIV[:]),
		}
		json.NewEncoder(w).Encode(manifest)
	})
	mux.HandleFunc("/ota/chunk/", func(w http.ResponseWriter, r *http.Request) {
		parts := strings.Split(r.URL.Path, "/")
		index, err := strconv.Atoi(parts[len(parts)-1])
		require.NoError(t, err)

		lo := index * chunkSize
		hi := lo + chunkSize
		if hi > len(image) {
			hi = len(image)
		}
		iv, err := deriveChunkIV(baseIV, uint32(index), updateKey)
		require.NoError(t, err)
		ciphertext := encryptChunkForTest(t, updateKey, iv, image[lo:hi])
		w.Write(ciphertext)
	})
	return httptest.NewServer(mux)
}

func TestEngine_RunUpdateCycleEndToEnd(t *testing.T) {
	updateKey := []byte("0123456789abcdef")
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	image := bytes.Repeat([]byte("ecowatt-firmware-payload-"), 50)

	server := firmwareTestServer(t, image, updateKey, privateKey, 64)
	defer server.Close()

	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	engine := &Engine{
		Store:     store,
		Client:    netclient.New(server.URL),
		Applier:   &SlotApplier{Store: store},
		DeviceID:  "device-1",
		UpdateKey: updateKey,
		PublicKey: &privateKey.PublicKey,
		Logger:    zerolog.Nop(),
	}

	updated, err := engine.RunUpdateCycle(context.Background())
	require.NoError(t, err)
	require.True(t, updated)

	applier := engine.Applier.(*SlotApplier)
	version, err := applier.ActiveVersion()
	require.NoError(t, err)
	require.Equal(t, "2.0.0", version)
}

func TestEngine_RunUpdateCycleNoUpdateAvailable(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/ota/check/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	engine := &Engine{
		Store:    store,
		Client:   netclient.New(server.URL),
		Applier:  &SlotApplier{Store: store},
		DeviceID: "device-1",
		Logger:   zerolog.Nop(),
	}

	updated, err := engine.RunUpdateCycle(context.Background())
	require.NoError(t, err)
	require.False(t, updated)
}

func TestEngine_RunUpdateCycleRejectsTamperedImage(t *testing.T) {
	updateKey := []byte("0123456789abcdef")
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	image := bytes.Repeat([]byte("x"), 32)

	mux := http.NewServeMux()
	digest := sha256.Sum256(image)
	signature, err := rsa.SignPSS(rand.Reader, privateKey, crypto.SHA256, digest[:], nil)
	require.NoError(t, err)
	var baseIV [16]byte

	mux.HandleFunc("/ota/check/", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(wireManifest{
			Version:       "3.0.0",
			TotalSize:     int64(len(image)),
			ChunkSize:     32,
			ChunkCount:    1,
			ContentHash:   hex.EncodeToString(digest[:]),
			HashSignature: base64.StdEncoding.EncodeToString(signature),
			ChunkIV:       base64.StdEncoding.EncodeToString(baseIV[:]),
		})
	})
	mux.HandleFunc("/ota/chunk/", func(w http.ResponseWriter, r *http.Request) {
		iv, _ := deriveChunkIV(baseIV, 0, updateKey)
		tampered := append([]byte(nil), image...)
		tampered[0] ^= 0xFF // corrupt the plaintext before it's ever encrypted
		w.Write(encryptChunkForTest(t, updateKey, iv, tampered))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	engine := &Engine{
		Store:     store,
		Client:    netclient.New(server.URL),
		Applier:   &SlotApplier{Store: store},
		DeviceID:  "device-1",
		UpdateKey: updateKey,
		PublicKey: &privateKey.PublicKey,
		Logger:    zerolog.Nop(),
	}

	_, err = engine.RunUpdateCycle(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "hash mismatch")
}
