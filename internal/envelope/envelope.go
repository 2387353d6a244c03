// Package envelope implements the symmetric request envelope used by the
// login and register endpoints. Payloads are AES-256-CBC with PKCS#7
// padding, encoded as base64(iv) + ":" + base64(iv || ciphertext).
package envelope

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrMalformed is returned for payloads that cannot be decoded or unpadded.
var ErrMalformed = errors.New("envelope: malformed payload")

// Cipher encrypts and decrypts envelope payloads with one shared key.
type Cipher struct {
	block cipher.Block
}

// DeriveKey turns the configured secret into a 32-byte key. A 64-character
// hex string is used as the raw key; anything else is hashed with SHA-256.
func DeriveKey(secret string) []byte {
	if len(secret) == 64 {
		if raw, err := hex.DecodeString(secret); err == nil {
			return raw
		}
	}
	sum := sha256.Sum256([]byte(secret))
	return sum[:]
}

// New builds a cipher from the configured secret.
func New(secret string) (*Cipher, error) {
	if secret == "" {
		return nil, errors.New("envelope: empty key")
	}
	block, err := aes.NewCipher(DeriveKey(secret))
	if err != nil {
		return nil, fmt.Errorf("envelope: %w", err)
	}
	return &Cipher{block: block}, nil
}

// Encrypt seals plaintext under a fresh random IV.
func (c *Cipher) Encrypt(plaintext []byte) (string, error) {
	iv := make([]byte, aes.BlockSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return "", fmt.Errorf("envelope: iv: %w", err)
	}
	padded := pad(plaintext, aes.BlockSize)
	out := make([]byte, aes.BlockSize+len(padded))
	copy(out, iv)
	cipher.NewCBCEncrypter(c.block, iv).CryptBlocks(out[aes.BlockSize:], padded)
	return base64.StdEncoding.EncodeToString(iv) + ":" + base64.StdEncoding.EncodeToString(out), nil
}

// Decrypt opens a payload produced by Encrypt or a compatible client. The
// IV embedded in the combined blob is authoritative.
func (c *Cipher) Decrypt(payload string) ([]byte, error) {
	parts := strings.Split(payload, ":")
	if len(parts) != 2 {
		return nil, ErrMalformed
	}
	combined, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, ErrMalformed
	}
	if len(combined) < 2*aes.BlockSize || len(combined)%aes.BlockSize != 0 {
		return nil, ErrMalformed
	}
	iv, ct := combined[:aes.BlockSize], combined[aes.BlockSize:]
	plain := make([]byte, len(ct))
	cipher.NewCBCDecrypter(c.block, iv).CryptBlocks(plain, ct)
	return unpad(plain, aes.BlockSize)
}

func pad(b []byte, size int) []byte {
	n := size - len(b)%size
	return append(append([]byte{}, b...), bytes.Repeat([]byte{byte(n)}, n)...)
}

func unpad(b []byte, size int) ([]byte, error) {
	if len(b) == 0 {
		return nil, ErrMalformed
	}
	n := int(b[len(b)-1])
	if n == 0 || n > size || n > len(b) {
		return nil, ErrMalformed
	}
	for _, v := range b[len(b)-n:] {
		if int(v) != n {
			return nil, ErrMalformed
		}
	}
	return b[:len(b)-n], nil
}
