// Package envelope implements hybrid envelope encryption for group messages.
//
// # Overview
//
// Each message gets a fresh random 32-byte session key. The plaintext is
// sealed once under a payload key derived from the session key, and the
// session key itself is wrapped once per target (every recipient plus the
// sender) under a key derived from X25519(senderPriv, targetPub).
//
// # Key schedule
//
//	payloadKey = HKDF-SHA256(ikm=sessionKey, salt=0^32, info="payload")
//	wrapKey_t  = HKDF-SHA256(ikm=X25519(a, B_t), salt=0^32, info="envelope")
//
// All AEAD operations are AES-256-GCM with a fresh 12-byte nonce and a 16-byte
// tag. Binary fields are standard base64 on the wire.
//
// # Errors
//
// Every failure is a types.Error of kind CRYPTO_ERROR. Encrypt resolves every
// target key before doing any crypto work, so a missing key never yields a
// partial result.
package envelope
