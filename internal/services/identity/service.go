package identity

import (
	"fmt"
	"time"
	"unicode"

	"courier/internal/crypto"
	"courier/internal/domain"
	"courier/internal/domain/types"
)

const (
	// minPassphraseLength defines the minimum number of characters required for a passphrase.
	minPassphraseLength = 12

	// DefaultDeviceID is used when the caller does not name a device.
	DefaultDeviceID domain.DeviceID = "cli-default"
)

var (
	// ErrWeakPassphrase is returned when the passphrase fails the strength policy.
	ErrWeakPassphrase = fmt.Errorf(
		"passphrase is too weak (must be at least %d characters and include upper, lower, "+
			"number, and symbol)",
		minPassphraseLength,
	)
)

// Service manages the device keypair using a backing store.
//
// The keypair is a single X25519 pair used for every envelope this device
// wraps or unwraps. Losing it makes earlier messages permanently unreadable.
type Service struct {
	store domain.KeyStore
	now   func() time.Time
}

// New returns an identity service backed by the given store.
func New(s domain.KeyStore) *Service { return &Service{store: s, now: time.Now} }

// LoadOrCreateKeyPair returns the persisted keypair, generating and saving a
// new one when none exists. created reports whether a new pair was made.
func (s *Service) LoadOrCreateKeyPair(
	passphrase string,
	device domain.DeviceID,
) (kp domain.KeyPair, created bool, err error) {
	kp, ok, err := s.store.LoadKeyPair(passphrase)
	if err != nil {
		return domain.KeyPair{}, false, err
	}
	if ok {
		return kp, false, nil
	}
	if !isSecurePassphrase(passphrase) {
		return domain.KeyPair{}, false, ErrWeakPassphrase
	}
	if device == "" {
		device = DefaultDeviceID
	}

	priv, pub, err := crypto.GenerateX25519()
	if err != nil {
		return domain.KeyPair{}, false, err
	}
	kp = domain.KeyPair{
		Private:   priv,
		Public:    pub,
		Algorithm: types.AlgorithmX25519AESGCM,
		DeviceID:  device,
		CreatedAt: s.now().UTC(),
	}
	if err := s.store.SaveKeyPair(passphrase, kp); err != nil {
		return domain.KeyPair{}, false, err
	}
	return kp, true, nil
}

// LoadKeyPair decrypts and returns the local keypair.
func (s *Service) LoadKeyPair(passphrase string) (domain.KeyPair, error) {
	kp, ok, err := s.store.LoadKeyPair(passphrase)
	if err != nil {
		return domain.KeyPair{}, types.CryptoFailure("identity.LoadKeyPair", "cannot open local keypair", err)
	}
	if !ok {
		return domain.KeyPair{}, types.KeyUnavailable("identity.LoadKeyPair")
	}
	return kp, nil
}

// FingerprintKeyPair returns a short fingerprint of the local public key.
func (s *Service) FingerprintKeyPair(passphrase string) (domain.Fingerprint, error) {
	kp, err := s.LoadKeyPair(passphrase)
	if err != nil {
		return "", err
	}
	return crypto.Fingerprint(kp.Public), nil
}

// isSecurePassphrase enforces a basic strength policy.
func isSecurePassphrase(passphrase string) bool {
	var hasUpper, hasLower, hasDigit, hasSymbol bool
	if len(passphrase) < minPassphraseLength {
		return false
	}
	for _, r := range passphrase {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsPunct(r), unicode.IsSymbol(r):
			hasSymbol = true
		}
	}
	return hasUpper && hasLower && hasDigit && hasSymbol
}

// Compile-time assertion that Service implements domain.IdentityService.
var _ domain.IdentityService = (*Service)(nil)
