// Package secret encrypts values stored at rest.
package secret

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"strings"

	"golang.org/x/crypto/nacl/secretbox"
)

const nonceSize = 24

var ErrMalformed = errors.New("malformed ciphertext")

// Box seals and opens strings with a key derived from a passphrase.
// Sealed form: hex(nonce) ":" hex(box).
type Box struct {
	key [32]byte
}

// New derives a 32-byte key from passphrase with SHA-256.
func New(passphrase string) (*Box, error) {
	if passphrase == "" {
		return nil, errors.New("empty encryption key")
	}
	return &Box{key: sha256.Sum256([]byte(passphrase))}, nil
}

func (b *Box) Encrypt(plain string) (string, error) {
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", err
	}
	sealed := secretbox.Seal(nil, []byte(plain), &nonce, &b.key)
	return hex.EncodeToString(nonce[:]) + ":" + hex.EncodeToString(sealed), nil
}

func (b *Box) Decrypt(data string) (string, error) {
	nonceHex, boxHex, ok := strings.Cut(data, ":")
	if !ok {
		return "", ErrMalformed
	}
	rawNonce, err := hex.DecodeString(nonceHex)
	if err != nil || len(rawNonce) != nonceSize {
		return "", ErrMalformed
	}
	sealed, err := hex.DecodeString(boxHex)
	if err != nil {
		return "", ErrMalformed
	}

	var nonce [nonceSize]byte
	copy(nonce[:], rawNonce)
	plain, ok := secretbox.Open(nil, sealed, &nonce, &b.key)
	if !ok {
		return "", errors.New("decryption failed")
	}
	return string(plain), nil
}
