// Package crypto exposes the minimal primitives used by courier.
//
// Contents
//
//   - X25519 key generation, clamping and Diffie–Hellman (GenerateX25519, DH)
//   - HKDF-SHA256 key derivation with fixed labels (DeriveKey)
//   - AES-256-GCM sealing with the tag split from the ciphertext (Seal, Open)
//   - Short public-key fingerprints for display/logging (Fingerprint)
//
// # Notes
//
// Key types are the fixed-size arrays defined in internal/domain. Callers
// should treat returned secrets as sensitive and clear them with
// internal/util/memzero once used.
package crypto
