// Package secret encrypts provider credentials and API keys at rest.
package secret

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/nacl/secretbox"
)

const nonceSize = 24

var ErrDecrypt = errors.New("secret: unable to decrypt value")

// Box seals and opens strings with a symmetric key
type Box struct {
	key [32]byte
}

// NewBox derives a box from the configured passphrase. A passphrase that
// is the base64 encoding of exactly 32 bytes is used as the raw key.
func NewBox(passphrase string) (*Box, error) {
	if passphrase == "" {
		return nil, errors.New("secret: empty encryption key")
	}

	b := &Box{}
	if raw, err := base64.StdEncoding.DecodeString(passphrase); err == nil && len(raw) == len(b.key) {
		copy(b.key[:], raw)
		return b, nil
	}
	b.key = sha256.Sum256([]byte(passphrase))
	return b, nil
}

// Encrypt seals plaintext. The empty string stays empty.
func (b *Box) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}

	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := secretbox.Seal(nonce[:], []byte(plaintext), &nonce, &b.key)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a value produced by Encrypt. The empty string stays empty.
func (b *Box) Decrypt(ciphertext string) (string, error) {
	if ciphertext == "" {
		return "", nil
	}

	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil || len(raw) < nonceSize+secretbox.Overhead {
		return "", ErrDecrypt
	}

	var nonce [nonceSize]byte
	copy(nonce[:], raw[:nonceSize])

	plain, ok := secretbox.Open(nil, raw[nonceSize:], &nonce, &b.key)
	if !ok {
		return "", ErrDecrypt
	}
	return string(plain), nil
}
