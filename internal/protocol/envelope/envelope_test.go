package envelope_test

import (
	"bytes"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"courier/internal/crypto"
	"courier/internal/domain"
	"courier/internal/domain/types"
	"courier/internal/protocol/envelope"
)

func makeKeyPair(t *testing.T) domain.KeyPair {
	t.Helper()
	priv, pub, err := crypto.GenerateX25519()
	require.NoError(t, err)
	return domain.KeyPair{Private: priv, Public: pub, Algorithm: types.AlgorithmX25519AESGCM}
}

func lookupFrom(keys map[domain.UserID]domain.KeyPair) envelope.KeyLookup {
	return func(id domain.UserID) (domain.X25519Public, bool) {
		kp, ok := keys[id]
		return kp.Public, ok
	}
}

// flipBit flips the lowest bit of the first byte of a base64 field.
func flipBit(t *testing.T, s string) string {
	t.Helper()
	b, err := base64.StdEncoding.DecodeString(s)
	require.NoError(t, err)
	require.NotEmpty(t, b)
	b[0] ^= 0x01
	return base64.StdEncoding.EncodeToString(b)
}

func TestEncryptDecrypt_RoundTripForEveryTarget(t *testing.T) {
	keys := map[domain.UserID]domain.KeyPair{
		"alice": makeKeyPair(t),
		"bob":   makeKeyPair(t),
		"carol": makeKeyPair(t),
	}
	plaintext := []byte("hello team")

	p, err := envelope.Encrypt(keys["alice"], "alice", []domain.UserID{"bob", "carol"}, lookupFrom(keys), plaintext)
	require.NoError(t, err)
	assert.Len(t, p.Envelopes, 3)
	assert.Equal(t, keys["alice"].Public.String(), p.SenderPublicKey)

	for id, kp := range keys {
		got, err := envelope.Decrypt(kp, id, p)
		require.NoError(t, err, "decrypt as %s", id)
		assert.True(t, bytes.Equal(plaintext, got), "plaintext mismatch for %s", id)
	}
}

func TestEncrypt_EmptyPlaintext(t *testing.T) {
	keys := map[domain.UserID]domain.KeyPair{"alice": makeKeyPair(t), "bob": makeKeyPair(t)}

	p, err := envelope.Encrypt(keys["alice"], "alice", []domain.UserID{"bob"}, lookupFrom(keys), nil)
	require.NoError(t, err)

	got, err := envelope.Decrypt(keys["bob"], "bob", p)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestEncrypt_NonceAndTagSizes(t *testing.T) {
	keys := map[domain.UserID]domain.KeyPair{"alice": makeKeyPair(t), "bob": makeKeyPair(t)}

	p, err := envelope.Encrypt(keys["alice"], "alice", []domain.UserID{"bob"}, lookupFrom(keys), []byte("x"))
	require.NoError(t, err)

	boxes := []domain.SealedBox{p.SealedBox, p.Envelopes["alice"], p.Envelopes["bob"]}
	seen := map[string]bool{}
	for _, b := range boxes {
		iv, err := base64.StdEncoding.DecodeString(b.IV)
		require.NoError(t, err)
		tag, err := base64.StdEncoding.DecodeString(b.AuthTag)
		require.NoError(t, err)
		assert.Len(t, iv, crypto.NonceSize)
		assert.Len(t, tag, crypto.TagSize)
		assert.False(t, seen[b.IV], "nonce reused")
		seen[b.IV] = true
	}
}

func TestEncrypt_FreshSessionKeyPerMessage(t *testing.T) {
	keys := map[domain.UserID]domain.KeyPair{"alice": makeKeyPair(t), "bob": makeKeyPair(t)}
	msg := []byte("same text")

	p1, err := envelope.Encrypt(keys["alice"], "alice", []domain.UserID{"bob"}, lookupFrom(keys), msg)
	require.NoError(t, err)
	p2, err := envelope.Encrypt(keys["alice"], "alice", []domain.UserID{"bob"}, lookupFrom(keys), msg)
	require.NoError(t, err)

	assert.NotEqual(t, p1.Ciphertext, p2.Ciphertext)
	assert.NotEqual(t, p1.Envelopes["bob"].Ciphertext, p2.Envelopes["bob"].Ciphertext)
}

func TestEncrypt_MissingRecipientKeyAborts(t *testing.T) {
	keys := map[domain.UserID]domain.KeyPair{"alice": makeKeyPair(t), "bob": makeKeyPair(t)}

	p, err := envelope.Encrypt(keys["alice"], "alice", []domain.UserID{"bob", "mallory"}, lookupFrom(keys), []byte("x"))
	require.Error(t, err)
	assert.True(t, types.IsKind(err, types.KindCrypto))
	assert.Empty(t, p.Envelopes)
	assert.Empty(t, p.Ciphertext)
}

func TestDecrypt_MissingOwnEnvelope(t *testing.T) {
	keys := map[domain.UserID]domain.KeyPair{
		"alice": makeKeyPair(t),
		"bob":   makeKeyPair(t),
		"eve":   makeKeyPair(t),
	}
	p, err := envelope.Encrypt(keys["alice"], "alice", []domain.UserID{"bob"}, lookupFrom(keys), []byte("secret"))
	require.NoError(t, err)

	_, err = envelope.Decrypt(keys["eve"], "eve", p)
	require.Error(t, err)
	assert.True(t, types.IsKind(err, types.KindCrypto))
}

func TestDecrypt_WrongKeyForEnvelope(t *testing.T) {
	keys := map[domain.UserID]domain.KeyPair{"alice": makeKeyPair(t), "bob": makeKeyPair(t)}
	p, err := envelope.Encrypt(keys["alice"], "alice", []domain.UserID{"bob"}, lookupFrom(keys), []byte("secret"))
	require.NoError(t, err)

	// A lost and regenerated key can no longer open old envelopes.
	_, err = envelope.Decrypt(makeKeyPair(t), "bob", p)
	require.Error(t, err)
	assert.True(t, types.IsKind(err, types.KindCrypto))
}

func TestDecrypt_TamperDetection(t *testing.T) {
	keys := map[domain.UserID]domain.KeyPair{"alice": makeKeyPair(t), "bob": makeKeyPair(t)}

	cases := map[string]func(p *domain.EncryptedPayload){
		"ciphertext": func(p *domain.EncryptedPayload) { p.Ciphertext = flipBit(t, p.Ciphertext) },
		"iv":         func(p *domain.EncryptedPayload) { p.IV = flipBit(t, p.IV) },
		"authTag":    func(p *domain.EncryptedPayload) { p.AuthTag = flipBit(t, p.AuthTag) },
		"envelope ciphertext": func(p *domain.EncryptedPayload) {
			b := p.Envelopes["bob"]
			b.Ciphertext = flipBit(t, b.Ciphertext)
			p.Envelopes["bob"] = b
		},
		"envelope iv": func(p *domain.EncryptedPayload) {
			b := p.Envelopes["bob"]
			b.IV = flipBit(t, b.IV)
			p.Envelopes["bob"] = b
		},
		"envelope tag": func(p *domain.EncryptedPayload) {
			b := p.Envelopes["bob"]
			b.AuthTag = flipBit(t, b.AuthTag)
			p.Envelopes["bob"] = b
		},
		"sender key": func(p *domain.EncryptedPayload) { p.SenderPublicKey = flipBit(t, p.SenderPublicKey) },
	}

	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			p, err := envelope.Encrypt(keys["alice"], "alice", []domain.UserID{"bob"}, lookupFrom(keys), []byte("integrity matters"))
			require.NoError(t, err)

			mutate(&p)

			got, err := envelope.Decrypt(keys["bob"], "bob", p)
			require.Error(t, err)
			assert.Nil(t, got)
			assert.True(t, types.IsKind(err, types.KindCrypto))
		})
	}
}

func TestDecrypt_MalformedEncoding(t *testing.T) {
	keys := map[domain.UserID]domain.KeyPair{"alice": makeKeyPair(t), "bob": makeKeyPair(t)}
	p, err := envelope.Encrypt(keys["alice"], "alice", []domain.UserID{"bob"}, lookupFrom(keys), []byte("x"))
	require.NoError(t, err)

	p.IV = "not base64!"
	_, err = envelope.Decrypt(keys["bob"], "bob", p)
	require.Error(t, err)
	assert.True(t, types.IsKind(err, types.KindCrypto))
}
