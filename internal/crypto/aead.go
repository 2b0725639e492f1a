package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
)

const (
	// NonceSize is the AES-GCM nonce length in bytes.
	NonceSize = 12
	// TagSize is the AES-GCM authentication tag length in bytes.
	TagSize = 16
)

// ErrAuthFailed is returned when an AEAD open fails authentication.
var ErrAuthFailed = errors.New("aead: message authentication failed")

// Sealed holds one AES-256-GCM output with the tag split from the ciphertext.
type Sealed struct {
	Ciphertext []byte
	Nonce      []byte
	Tag        []byte
}

// Seal encrypts plaintext under key with a fresh random nonce.
func Seal(key []byte, plaintext []byte) (Sealed, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return Sealed{}, err
	}
	nonce := make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return Sealed{}, err
	}
	out := gcm.Seal(nil, nonce, plaintext, nil)
	split := len(out) - TagSize
	return Sealed{
		Ciphertext: out[:split],
		Nonce:      nonce,
		Tag:        out[split:],
	}, nil
}

// Open authenticates and decrypts s under key.
func Open(key []byte, s Sealed) ([]byte, error) {
	if len(s.Nonce) != NonceSize {
		return nil, fmt.Errorf("aead: nonce must be %d bytes", NonceSize)
	}
	if len(s.Tag) != TagSize {
		return nil, fmt.Errorf("aead: tag must be %d bytes", TagSize)
	}
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, 0, len(s.Ciphertext)+TagSize)
	buf = append(buf, s.Ciphertext...)
	buf = append(buf, s.Tag...)
	pt, err := gcm.Open(nil, s.Nonce, buf, nil)
	if err != nil {
		return nil, ErrAuthFailed
	}
	return pt, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("aead: key must be %d bytes", KeySize)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
