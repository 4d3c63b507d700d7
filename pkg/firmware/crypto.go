package firmware

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"encoding/binary"
	"fmt"
)

// deriveChunkIV produces a distinct 16-byte IV per chunk index from the
// manifest's base IV: the index is folded into the last four bytes, then
// the whole block is run through one AES-ECB encryption under the update
// key so an attacker who knows the base IV still cannot predict the
// per-chunk IV without the key.
func deriveChunkIV(base [16]byte, index uint32, updateKey []byte) ([16]byte, error) {
	block, err := aes.NewCipher(updateKey)
	if err != nil {
		return [16]byte{}, fmt.Errorf("firmware: derive chunk iv: %w", err)
	}

	var mixed [16]byte
	copy(mixed[:], base[:])
	var idx [4]byte
	binary.BigEndian.PutUint32(idx[:], index)
	for i := 0; i < 4; i++ {
		mixed[12+i] ^= idx[i]
	}

	var out [16]byte
	block.Encrypt(out[:], mixed[:])
	return out, nil
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, fmt.Errorf("firmware: ciphertext is not block-aligned")
	}
	padLen := int(data[len(data)-1])
	if padLen == 0 || padLen > blockSize || padLen > len(data) {
		return nil, fmt.Errorf("firmware: invalid pkcs7 padding")
	}
	if !bytes.Equal(data[len(data)-padLen:], bytes.Repeat([]byte{byte(padLen)}, padLen)) {
		return nil, fmt.Errorf("firmware: invalid pkcs7 padding")
	}
	return data[:len(data)-padLen], nil
}

func decryptChunk(key []byte, iv [16]byte, ciphertext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("firmware: create cipher: %w", err)
	}
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("firmware: chunk ciphertext is not block-aligned")
	}
	out := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv[:]).CryptBlocks(out, ciphertext)
	return pkcs7Unpad(out, aes.BlockSize)
}
