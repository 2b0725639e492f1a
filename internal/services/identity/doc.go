// Package identity manages creation, encryption and loading of the device keypair.
//
// It enforces passphrase policy on first creation, generates the X25519 pair,
// and persists it via the domain.KeyStore. Loading is idempotent.
package identity
