package store

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/scrypt"

	"courier/internal/util/memzero"
)

// sealedVersion is the on-disk format written by seal.
const sealedVersion = 2

// errWrongPassphrase covers both a bad passphrase and a modified file; the
// AEAD cannot tell them apart.
var errWrongPassphrase = errors.New("wrong passphrase or corrupted key file")

// kdfParams are the scrypt cost parameters recorded next to each sealed file
// so that they can be raised without breaking existing files.
type kdfParams struct {
	N int `json:"n"`
	R int `json:"r"`
	P int `json:"p"`
}

var defaultKDF = kdfParams{N: 1 << 15, R: 8, P: 1}

// sealedFile is the JSON document stored on disk. Purpose is bound into the
// AEAD so a file sealed for one use cannot be opened as another.
type sealedFile struct {
	Version int       `json:"v"`
	Purpose string    `json:"purpose"`
	KDF     kdfParams `json:"kdf"`
	Salt    []byte    `json:"salt"`
	Nonce   []byte    `json:"nonce"`
	Cipher  []byte    `json:"cipher"`
}

// seal encrypts raw under a key derived from passphrase with XChaCha20-Poly1305.
func seal(passphrase, purpose string, raw []byte, params kdfParams) ([]byte, error) {
	f := sealedFile{
		Version: sealedVersion,
		Purpose: purpose,
		KDF:     params,
		Salt:    make([]byte, 16),
		Nonce:   make([]byte, chacha20poly1305.NonceSizeX),
	}
	if _, err := rand.Read(f.Salt); err != nil {
		return nil, err
	}
	if _, err := rand.Read(f.Nonce); err != nil {
		return nil, err
	}

	aead, err := f.aead(passphrase)
	if err != nil {
		return nil, err
	}
	f.Cipher = aead.Seal(nil, f.Nonce, raw, f.additionalData())
	return json.Marshal(f)
}

// open reverses seal. A purpose mismatch fails like a wrong passphrase.
func open(passphrase, purpose string, b []byte) ([]byte, error) {
	var f sealedFile
	if err := json.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("decode sealed file: %w", err)
	}
	if f.Version != sealedVersion {
		return nil, fmt.Errorf("unsupported key file version %d", f.Version)
	}
	if f.Purpose != purpose || len(f.Nonce) != chacha20poly1305.NonceSizeX {
		return nil, errWrongPassphrase
	}

	aead, err := f.aead(passphrase)
	if err != nil {
		return nil, err
	}
	pt, err := aead.Open(nil, f.Nonce, f.Cipher, f.additionalData())
	if err != nil {
		return nil, errWrongPassphrase
	}
	return pt, nil
}

func (f *sealedFile) aead(passphrase string) (cipher.AEAD, error) {
	key, err := scrypt.Key([]byte(passphrase), f.Salt, f.KDF.N, f.KDF.R, f.KDF.P, chacha20poly1305.KeySize)
	if err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	defer memzero.Zero(key)
	return chacha20poly1305.NewX(key)
}

func (f *sealedFile) additionalData() []byte {
	return fmt.Appendf(nil, "courier/%s/v%d/%x", f.Purpose, f.Version, f.Salt)
}
