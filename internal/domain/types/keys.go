package types

import (
	"encoding/base64"
	"fmt"
	"time"
)

// AlgorithmX25519AESGCM identifies X25519 key agreement with AES-256-GCM payloads.
const AlgorithmX25519AESGCM = "x25519-aes-gcm"

// X25519Public is a Curve25519 public key.
type X25519Public [32]byte

// Slice returns the key as a []byte.
func (p X25519Public) Slice() []byte { return p[:] }

// String returns the standard base64 encoding used on the wire.
func (p X25519Public) String() string { return base64.StdEncoding.EncodeToString(p[:]) }

// ParseX25519Public decodes a base64 public key.
func ParseX25519Public(s string) (X25519Public, error) {
	var pub X25519Public
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return pub, fmt.Errorf("decode public key: %w", err)
	}
	if len(b) != len(pub) {
		return pub, fmt.Errorf("public key must be %d bytes, got %d", len(pub), len(b))
	}
	copy(pub[:], b)
	return pub, nil
}

// X25519Private is a Curve25519 private key.
type X25519Private [32]byte

// Slice returns the key as a []byte.
func (k X25519Private) Slice() []byte { return k[:] }

// KeyPair is the long-term device key. Only Public ever leaves the device.
type KeyPair struct {
	Private   X25519Private `json:"private"`
	Public    X25519Public  `json:"public"`
	Algorithm string        `json:"algorithm"`
	DeviceID  DeviceID      `json:"device_id"`
	CreatedAt time.Time     `json:"created_at"`
}

// PublicKeyRecord is an entry of the public-key directory.
type PublicKeyRecord struct {
	UserID       UserID    `json:"userId"`
	DeviceID     DeviceID  `json:"deviceId"`
	PublicKey    string    `json:"publicKey"`
	Algorithm    string    `json:"algorithm"`
	RegisteredAt time.Time `json:"registeredAt"`
}
