package store

import (
	"fmt"
	"path/filepath"
	"sync"

	"courier/internal/domain"
)

const profilesFile = "profiles.json"

// ProfileFileStore persists per-server account profiles to disk.
type ProfileFileStore struct {
	dir string
	mu  sync.Mutex
}

// NewProfileFileStore returns a ProfileFileStore rooted at dir.
func NewProfileFileStore(dir string) *ProfileFileStore {
	return &ProfileFileStore{dir: dir}
}

// SaveProfile stores or updates the given profile.
func (s *ProfileFileStore) SaveProfile(profile domain.AccountProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.dir, profilesFile)
	profiles := make(map[string]domain.AccountProfile)
	if _, err := readJSON(path, &profiles); err != nil {
		return err
	}
	profiles[profileKey(profile.ServerURL, profile.UserID)] = profile
	return writeJSON(path, profiles)
}

// LoadProfile retrieves a profile for (serverURL, user).
func (s *ProfileFileStore) LoadProfile(
	serverURL string,
	user domain.UserID,
) (domain.AccountProfile, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.dir, profilesFile)
	profiles := make(map[string]domain.AccountProfile)
	if _, err := readJSON(path, &profiles); err != nil {
		return domain.AccountProfile{}, false, err
	}
	profile, ok := profiles[profileKey(serverURL, user)]
	return profile, ok, nil
}

func profileKey(serverURL string, user domain.UserID) string {
	return fmt.Sprintf("%s|%s", serverURL, user.String())
}

// Compile-time assertion that ProfileFileStore implements domain.ProfileStore.
var _ domain.ProfileStore = (*ProfileFileStore)(nil)
