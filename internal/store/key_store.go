package store

import (
	"encoding/json"
	"path/filepath"
	"sync"

	"courier/internal/domain"
	"courier/internal/util/memzero"
)

const (
	keyPairFilename = "keypair.json.enc"
	keyPairPurpose  = "keypair"
)

// KeyFileStore persists the device keypair to disk, sealed with a passphrase.
type KeyFileStore struct {
	dir string
	mu  sync.Mutex
}

// NewKeyFileStore returns a KeyFileStore rooted at dir.
func NewKeyFileStore(dir string) *KeyFileStore {
	return &KeyFileStore{dir: dir}
}

// SaveKeyPair writes the encrypted keypair to disk.
func (s *KeyFileStore) SaveKeyPair(passphrase string, kp domain.KeyPair) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := json.Marshal(kp)
	if err != nil {
		return err
	}
	defer memzero.Zero(raw)
	sealed, err := seal(passphrase, keyPairPurpose, raw, defaultKDF)
	if err != nil {
		return err
	}
	return writeFile(filepath.Join(s.dir, keyPairFilename), sealed)
}

// LoadKeyPair reads and decrypts the keypair. A missing file is ok=false.
func (s *KeyFileStore) LoadKeyPair(passphrase string) (domain.KeyPair, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, found, err := readFile(filepath.Join(s.dir, keyPairFilename))
	if err != nil || !found {
		return domain.KeyPair{}, false, err
	}
	pt, err := open(passphrase, keyPairPurpose, b)
	if err != nil {
		return domain.KeyPair{}, false, err
	}
	defer memzero.Zero(pt)

	var kp domain.KeyPair
	if err := json.Unmarshal(pt, &kp); err != nil {
		return domain.KeyPair{}, false, err
	}
	return kp, true, nil
}

// Compile-time assertion that KeyFileStore implements domain.KeyStore.
var _ domain.KeyStore = (*KeyFileStore)(nil)
