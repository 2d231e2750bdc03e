package cachecoordinator

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"

	"encore.app/cacheerr"
)

// Cipher encrypts and decrypts cache bodies under the process-wide key.
type Cipher interface {
	// Encrypt returns ciphertext and the fresh IV used to produce it.
	Encrypt(plaintext []byte) (ciphertext, iv []byte, err error)
	Decrypt(ciphertext, iv []byte) ([]byte, error)
}

// cipherFactory builds a Cipher bound to a process-wide key.
type cipherFactory func(key []byte) (Cipher, error)

var cipherRegistry = map[string]cipherFactory{
	"aes-256-cbc": newAESCBCCipher,
	"aes-256-gcm": newAESGCMCipher,
}

// NewCipher resolves cipherID against the registry and binds it to key.
// Unknown cipher ids are InvalidConfiguration, surfaced at init time.
func NewCipher(cipherID string, key []byte) (Cipher, error) {
	factory, ok := cipherRegistry[cipherID]
	if !ok {
		return nil, cacheerr.New(cacheerr.InvalidConfiguration, "cachecoordinator.NewCipher",
			fmt.Errorf("unknown cipher %q", cipherID))
	}
	return factory(key)
}

// deriveRecordKey derives a per-write subkey from the process-wide key via
// HKDF-SHA256, keyed on that write's IV. Since a fresh IV is generated per
// write, every record gets distinct key material without any additional
// state, and decrypt re-derives the same subkey from the stored IV.
func deriveRecordKey(masterKey []byte, iv []byte, size int) ([]byte, error) {
	h := hkdf.New(sha256.New, masterKey, nil, append([]byte("cachedata/record/"), iv...))
	out := make([]byte, size)
	if _, err := io.ReadFull(h, out); err != nil {
		return nil, err
	}
	return out, nil
}

type aesCBCCipher struct{ key []byte }

func newAESCBCCipher(key []byte) (Cipher, error) {
	if len(key) == 0 {
		return nil, cacheerr.New(cacheerr.InvalidConfiguration, "cachecoordinator.newAESCBCCipher",
			fmt.Errorf("aes-256-cbc requires a non-empty key"))
	}
	return &aesCBCCipher{key: key}, nil
}

func (c *aesCBCCipher) Encrypt(plaintext []byte) ([]byte, []byte, error) {
	iv := make([]byte, aes.BlockSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return nil, nil, err
	}

	subkey, err := deriveRecordKey(c.key, iv, 32)
	if err != nil {
		return nil, nil, err
	}
	block, err := aes.NewCipher(subkey)
	if err != nil {
		return nil, nil, err
	}

	padded := pkcs7Pad(plaintext, aes.BlockSize)
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, padded)
	return out, iv, nil
}

func (c *aesCBCCipher) Decrypt(ciphertext, iv []byte) ([]byte, error) {
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, cacheerr.New(cacheerr.DecryptFailure, "aesCBCCipher.Decrypt",
			fmt.Errorf("ciphertext length %d is not a block multiple", len(ciphertext)))
	}
	if len(iv) != aes.BlockSize {
		return nil, cacheerr.New(cacheerr.DecryptFailure, "aesCBCCipher.Decrypt",
			fmt.Errorf("iv length %d, want %d", len(iv), aes.BlockSize))
	}
	subkey, err := deriveRecordKey(c.key, iv, 32)
	if err != nil {
		return nil, cacheerr.New(cacheerr.DecryptFailure, "aesCBCCipher.Decrypt", err)
	}
	block, err := aes.NewCipher(subkey)
	if err != nil {
		return nil, cacheerr.New(cacheerr.DecryptFailure, "aesCBCCipher.Decrypt", err)
	}

	out := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, ciphertext)
	unpadded, err := pkcs7Unpad(out, aes.BlockSize)
	if err != nil {
		return nil, cacheerr.New(cacheerr.DecryptFailure, "aesCBCCipher.Decrypt", err)
	}
	return unpadded, nil
}

type aesGCMCipher struct{ key []byte }

func newAESGCMCipher(key []byte) (Cipher, error) {
	if len(key) == 0 {
		return nil, cacheerr.New(cacheerr.InvalidConfiguration, "cachecoordinator.newAESGCMCipher",
			fmt.Errorf("aes-256-gcm requires a non-empty key"))
	}
	return &aesGCMCipher{key: key}, nil
}

func (c *aesGCMCipher) Encrypt(plaintext []byte) ([]byte, []byte, error) {
	block, err := aes.NewCipher(c.key[:minInt(len(c.key), 32)])
	if err != nil {
		return nil, nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, nil, err
	}
	iv := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return nil, nil, err
	}
	return gcm.Seal(nil, iv, plaintext, nil), iv, nil
}

func (c *aesGCMCipher) Decrypt(ciphertext, iv []byte) ([]byte, error) {
	block, err := aes.NewCipher(c.key[:minInt(len(c.key), 32)])
	if err != nil {
		return nil, cacheerr.New(cacheerr.DecryptFailure, "aesGCMCipher.Decrypt", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, cacheerr.New(cacheerr.DecryptFailure, "aesGCMCipher.Decrypt", err)
	}
	if len(iv) != gcm.NonceSize() {
		return nil, cacheerr.New(cacheerr.DecryptFailure, "aesGCMCipher.Decrypt",
			fmt.Errorf("nonce length %d, want %d", len(iv), gcm.NonceSize()))
	}
	out, err := gcm.Open(nil, iv, ciphertext, nil)
	if err != nil {
		return nil, cacheerr.New(cacheerr.DecryptFailure, "aesGCMCipher.Decrypt", err)
	}
	return out, nil
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padLen := blockSize - len(data)%blockSize
	padded := make([]byte, len(data)+padLen)
	copy(padded, data)
	for i := len(data); i < len(padded); i++ {
		padded[i] = byte(padLen)
	}
	return padded
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, fmt.Errorf("invalid padded length %d", len(data))
	}
	padLen := int(data[len(data)-1])
	if padLen == 0 || padLen > blockSize || padLen > len(data) {
		return nil, fmt.Errorf("invalid padding byte %d", padLen)
	}
	for _, b := range data[len(data)-padLen:] {
		if int(b) != padLen {
			return nil, fmt.Errorf("invalid padding content")
		}
	}
	return data[:len(data)-padLen], nil
}
