package envelope

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/binary"
	"fmt"

	"github.com/cuemby/ecowatt/pkg/storage"
	"github.com/cuemby/ecowatt/pkg/types"
)

// ErrCounterRegressed is returned by Unwrap when the envelope's counter is
// not greater than the last value this device has accepted.
var ErrCounterRegressed = errNotGreater

var errNotGreater = fmt.Errorf("envelope: counter did not advance")

// ErrCounterExhausted is returned by Wrap once the replay counter has
// reached its maximum value. The counter must never wrap back to a value
// a receiver has already seen, so a device that hits this halts all
// outbound traffic rather than silently resetting to 0.
var ErrCounterExhausted = fmt.Errorf("envelope: replay counter exhausted, outbound traffic halted")

// Envelope wraps and unwraps SecuredEnvelope values against one device's
// pre-shared key material. Keys are immutable for the lifetime of an
// Envelope; rotation is out of scope.
type Envelope struct {
	store      storage.Store
	hmacKey    []byte // 32 bytes
	aesKey     []byte // 16 bytes, only used when Encrypt is true
	fixedIV    [aes.BlockSize]byte
	Encrypt    bool
	lastSeen   lastSeenCounter
}

type lastSeenCounter struct {
	value uint32
	valid bool
}

// New builds an Envelope. hmacKey must be 32 bytes; aesKey must be 16 bytes
// when encrypt is true (its length is not checked when encrypt is false).
func New(store storage.Store, hmacKey, aesKey []byte, iv [aes.BlockSize]byte, encrypt bool) (*Envelope, error) {
	if len(hmacKey) != sha256.Size {
		return nil, fmt.Errorf("envelope: hmac key must be %d bytes, got %d", sha256.Size, len(hmacKey))
	}
	if encrypt && len(aesKey) != 16 {
		return nil, fmt.Errorf("envelope: aes key must be 16 bytes, got %d", len(aesKey))
	}
	return &Envelope{
		store:   store,
		hmacKey: append([]byte(nil), hmacKey...),
		aesKey:  append([]byte(nil), aesKey...),
		fixedIV: iv,
		Encrypt: encrypt,
	}, nil
}

// Wrap increments and persists the replay counter, optionally encrypts
// plaintext, and returns the authenticated envelope ready to upload.
func (e *Envelope) Wrap(plaintext []byte) (types.SecuredEnvelope, error) {
	current, err := e.store.GetUint32(storage.NamespaceSecurity, storage.KeySecurityCounter, 0)
	if err != nil {
		return types.SecuredEnvelope{}, fmt.Errorf("envelope: read counter: %w", err)
	}
	if current == 0xFFFFFFFF {
		return types.SecuredEnvelope{}, ErrCounterExhausted
	}
	next := current + 1

	if err := e.store.PutUint32(storage.NamespaceSecurity, storage.KeySecurityCounter, next); err != nil {
		return types.SecuredEnvelope{}, fmt.Errorf("envelope: persist counter: %w", err)
	}

	payload := plaintext
	if e.Encrypt {
		payload, err = encryptCBC(e.aesKey, e.fixedIV, plaintext)
		if err != nil {
			return types.SecuredEnvelope{}, fmt.Errorf("envelope: encrypt: %w", err)
		}
	}

	return types.SecuredEnvelope{
		Counter:       next,
		Payload:       payload,
		Authenticator: e.authenticate(next, payload),
		Encrypted:     e.Encrypt,
	}, nil
}

// Unwrap verifies the authenticator, rejects a non-advancing counter, and
// decrypts the payload if needed. A gap in the counter sequence (missed
// envelopes) is accepted; only a repeat or regression is rejected.
func (e *Envelope) Unwrap(env types.SecuredEnvelope) ([]byte, error) {
	want := e.authenticate(env.Counter, env.Payload)
	if subtle.ConstantTimeCompare(want[:], env.Authenticator[:]) != 1 {
		return nil, fmt.Errorf("envelope: authenticator mismatch")
	}

	if e.lastSeen.valid && env.Counter <= e.lastSeen.value {
		return nil, ErrCounterRegressed
	}
	e.lastSeen = lastSeenCounter{value: env.Counter, valid: true}

	if !env.Encrypted {
		return env.Payload, nil
	}
	return decryptCBC(e.aesKey, e.fixedIV, env.Payload)
}

func (e *Envelope) authenticate(counter uint32, payload []byte) [32]byte {
	mac := hmac.New(sha256.New, e.hmacKey)
	var counterBuf [4]byte
	binary.BigEndian.PutUint32(counterBuf[:], counter)
	mac.Write(counterBuf[:])
	mac.Write(payload)
	var out [32]byte
	copy(out[:], mac.Sum(nil))
	return out
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padLen := blockSize - len(data)%blockSize
	padding := bytes.Repeat([]byte{byte(padLen)}, padLen)
	return append(append([]byte(nil), data...), padding...)
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, fmt.Errorf("envelope: ciphertext is not block-aligned")
	}
	padLen := int(data[len(data)-1])
	if padLen == 0 || padLen > blockSize || padLen > len(data) {
		return nil, fmt.Errorf("envelope: invalid pkcs7 padding")
	}
	for _, b := range data[len(data)-padLen:] {
		if int(b) != padLen {
			return nil, fmt.Errorf("envelope: invalid pkcs7 padding")
		}
	}
	return data[:len(data)-padLen], nil
}

func encryptCBC(key []byte, iv [aes.BlockSize]byte, plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	padded := pkcs7Pad(plaintext, aes.BlockSize)
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv[:]).CryptBlocks(out, padded)
	return out, nil
}

func decryptCBC(key []byte, iv [aes.BlockSize]byte, ciphertext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("ciphertext is not block-aligned")
	}
	out := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv[:]).CryptBlocks(out, ciphertext)
	return pkcs7Unpad(out, aes.BlockSize)
}
