// Package store provides file-based persistence for the client's local data.
//
// It contains concrete implementations of the domain storage interfaces,
// serialising data as JSON on disk. All methods are concurrency-safe via
// internal locking. Stored files typically live under the user's configured
// home directory.
//
// The package includes stores for:
//   - The device keypair, sealed with scrypt + XChaCha20-Poly1305 (KeyFileStore)
//   - Per-server account profiles (ProfileFileStore)
package store
