package envelope

import (
	"crypto/rand"

	"courier/internal/crypto"
	"courier/internal/domain"
	"courier/internal/domain/types"
	"courier/internal/util/memzero"
)

// KeyLookup returns the registered public key of a user, or ok=false.
type KeyLookup func(domain.UserID) (pub domain.X25519Public, ok bool)

// Encrypt seals plaintext for recipients and for the sender.
func Encrypt(
	sender domain.KeyPair,
	senderID domain.UserID,
	recipients []domain.UserID,
	lookup KeyLookup,
	plaintext []byte,
) (domain.EncryptedPayload, error) {
	const op = "envelope.Encrypt"

	targets, err := resolveTargets(sender, senderID, recipients, lookup)
	if err != nil {
		return domain.EncryptedPayload{}, err
	}

	sessionKey := make([]byte, crypto.KeySize)
	if _, err := rand.Read(sessionKey); err != nil {
		return domain.EncryptedPayload{}, types.CryptoFailure(op, "generate session key", err)
	}
	defer memzero.Zero(sessionKey)

	payloadKey, err := crypto.DeriveKey(sessionKey, crypto.LabelPayload)
	if err != nil {
		return domain.EncryptedPayload{}, types.CryptoFailure(op, "derive payload key", err)
	}
	defer memzero.Zero(payloadKey[:])

	body, err := crypto.Seal(payloadKey[:], plaintext)
	if err != nil {
		return domain.EncryptedPayload{}, types.CryptoFailure(op, "seal payload", err)
	}

	envelopes := make(map[domain.UserID]domain.SealedBox, len(targets))
	for id, pub := range targets {
		wrapKey, err := wrappingKey(sender.Private, pub)
		if err != nil {
			return domain.EncryptedPayload{}, types.CryptoFailure(op, "derive envelope key for "+id.String(), err)
		}
		wrapped, err := crypto.Seal(wrapKey[:], sessionKey)
		memzero.Zero(wrapKey[:])
		if err != nil {
			return domain.EncryptedPayload{}, types.CryptoFailure(op, "wrap session key for "+id.String(), err)
		}
		envelopes[id] = encodeBox(wrapped)
	}

	return domain.EncryptedPayload{
		SealedBox:       encodeBox(body),
		Envelopes:       envelopes,
		SenderPublicKey: sender.Public.String(),
	}, nil
}

// Decrypt opens the payload using self's envelope.
func Decrypt(self domain.KeyPair, selfID domain.UserID, p domain.EncryptedPayload) ([]byte, error) {
	const op = "envelope.Decrypt"

	box, ok := p.Envelopes[selfID]
	if !ok {
		return nil, types.CryptoFailure(op, "no envelope for "+selfID.String(), nil)
	}
	senderPub, err := types.ParseX25519Public(p.SenderPublicKey)
	if err != nil {
		return nil, types.CryptoFailure(op, "invalid sender public key", err)
	}
	wrapped, err := decodeBox(box)
	if err != nil {
		return nil, types.CryptoFailure(op, "malformed envelope", err)
	}
	body, err := decodeBox(p.SealedBox)
	if err != nil {
		return nil, types.CryptoFailure(op, "malformed payload", err)
	}

	wrapKey, err := wrappingKey(self.Private, senderPub)
	if err != nil {
		return nil, types.CryptoFailure(op, "derive envelope key", err)
	}
	sessionKey, err := crypto.Open(wrapKey[:], wrapped)
	memzero.Zero(wrapKey[:])
	if err != nil {
		return nil, types.CryptoFailure(op, "unwrap session key", err)
	}
	defer memzero.Zero(sessionKey)
	if len(sessionKey) != crypto.KeySize {
		return nil, types.CryptoFailure(op, "unwrapped session key has wrong length", nil)
	}

	payloadKey, err := crypto.DeriveKey(sessionKey, crypto.LabelPayload)
	if err != nil {
		return nil, types.CryptoFailure(op, "derive payload key", err)
	}
	defer memzero.Zero(payloadKey[:])

	pt, err := crypto.Open(payloadKey[:], body)
	if err != nil {
		return nil, types.CryptoFailure(op, "open payload", err)
	}
	return pt, nil
}

// resolveTargets maps every recipient and the sender to a public key, failing
// on the first unknown one.
func resolveTargets(
	sender domain.KeyPair,
	senderID domain.UserID,
	recipients []domain.UserID,
	lookup KeyLookup,
) (map[domain.UserID]domain.X25519Public, error) {
	targets := make(map[domain.UserID]domain.X25519Public, len(recipients)+1)
	for _, id := range recipients {
		if id == senderID {
			continue
		}
		if _, seen := targets[id]; seen {
			continue
		}
		var (
			pub domain.X25519Public
			ok  bool
		)
		if lookup != nil {
			pub, ok = lookup(id)
		}
		if !ok {
			return nil, types.CryptoFailure("envelope.Encrypt", "no public key for "+id.String(), nil)
		}
		targets[id] = pub
	}
	targets[senderID] = sender.Public
	return targets, nil
}

func wrappingKey(priv domain.X25519Private, pub domain.X25519Public) ([crypto.KeySize]byte, error) {
	shared, err := crypto.DH(priv, pub)
	if err != nil {
		return [crypto.KeySize]byte{}, err
	}
	defer memzero.Zero(shared[:])
	return crypto.DeriveKey(shared[:], crypto.LabelEnvelope)
}

func encodeBox(s crypto.Sealed) domain.SealedBox {
	return domain.SealedBox{
		Ciphertext: crypto.B64(s.Ciphertext),
		IV:         crypto.B64(s.Nonce),
		AuthTag:    crypto.B64(s.Tag),
	}
}

func decodeBox(b domain.SealedBox) (crypto.Sealed, error) {
	ct, err := crypto.UnB64(b.Ciphertext)
	if err != nil {
		return crypto.Sealed{}, err
	}
	nonce, err := crypto.UnB64(b.IV)
	if err != nil {
		return crypto.Sealed{}, err
	}
	tag, err := crypto.UnB64(b.AuthTag)
	if err != nil {
		return crypto.Sealed{}, err
	}
	return crypto.Sealed{Ciphertext: ct, Nonce: nonce, Tag: tag}, nil
}
