package crypto

import (
	"crypto/sha256"
	"io"

	"golang.org/x/crypto/hkdf"
)

// Domain-separation labels for HKDF.
const (
	LabelEnvelope = "envelope"
	LabelPayload  = "payload"
)

// KeySize is the length of every symmetric key in use.
const KeySize = 32

// DeriveKey expands secret into a 32-byte key bound to label.
// The salt is fixed at 32 zero bytes.
func DeriveKey(secret []byte, label string) ([KeySize]byte, error) {
	var out [KeySize]byte
	salt := make([]byte, sha256.Size)
	r := hkdf.New(sha256.New, secret, salt, []byte(label))
	if _, err := io.ReadFull(r, out[:]); err != nil {
		return out, err
	}
	return out, nil
}
