package types

import "time"

// SealedBox is one AEAD output with ciphertext, nonce and tag split apart,
// each standard base64 encoded.
type SealedBox struct {
	Ciphertext string `json:"ciphertext"`
	IV         string `json:"iv"`
	AuthTag    string `json:"authTag"`
}

// EncryptedPayload is what the sender produces for one message: the payload
// sealed once plus a wrapped session key per target.
type EncryptedPayload struct {
	SealedBox
	Envelopes       map[UserID]SealedBox `json:"envelopes"`
	SenderPublicKey string               `json:"senderPublicKey"`
}

// Message is the stored ciphertext record. Plaintext is never held here.
type Message struct {
	ID              MessageID            `json:"id"`
	ConversationID  ConversationID       `json:"conversationId"`
	SenderID        UserID               `json:"senderId"`
	Recipients      []UserID             `json:"recipients"`
	Ciphertext      string               `json:"ciphertext"`
	IV              string               `json:"iv"`
	AuthTag         string               `json:"authTag"`
	Envelopes       map[UserID]SealedBox `json:"envelopes"`
	SenderPublicKey string               `json:"senderPublicKey"`
	RetentionPolicy RetentionPolicy      `json:"retentionPolicy"`
	ExpiresAt       time.Time            `json:"expiresAt"`
	CreatedAt       time.Time            `json:"createdAt"`
}

// Payload returns the encrypted parts of m needed for decryption.
func (m Message) Payload() EncryptedPayload {
	return EncryptedPayload{
		SealedBox:       SealedBox{Ciphertext: m.Ciphertext, IV: m.IV, AuthTag: m.AuthTag},
		Envelopes:       m.Envelopes,
		SenderPublicKey: m.SenderPublicKey,
	}
}

// Expired reports whether m is logically invisible at now.
func (m Message) Expired(now time.Time) bool { return !now.Before(m.ExpiresAt) }

// PersistRequest is the input to the message store.
type PersistRequest struct {
	ConversationID  ConversationID       `json:"conversationId,omitempty"`
	Ciphertext      string               `json:"ciphertext"`
	IV              string               `json:"iv"`
	AuthTag         string               `json:"authTag"`
	Recipients      []UserID             `json:"recipients"`
	Envelopes       map[UserID]SealedBox `json:"envelopes"`
	SenderPublicKey string               `json:"senderPublicKey"`
}

// MessageQuery filters a conversation's history by metadata only.
// Zero values mean no constraint.
type MessageQuery struct {
	SenderID UserID
	From     time.Time
	To       time.Time
	Limit    int
}

// DecryptedMessage is a message as shown to the local user.
type DecryptedMessage struct {
	ID             MessageID      `json:"id"`
	ConversationID ConversationID `json:"conversationId"`
	SenderID       UserID         `json:"senderId"`
	Plaintext      string         `json:"plaintext,omitempty"`
	CreatedAt      time.Time      `json:"createdAt"`
	ExpiresAt      time.Time      `json:"expiresAt"`
	// Err is set when this single message could not be decrypted.
	Err error `json:"-"`
}

// ConversationExport is a full dump of a conversation's live ciphertext.
type ConversationExport struct {
	Conversation Conversation `json:"conversation"`
	Messages     []Message    `json:"messages"`
	ExportedAt   time.Time    `json:"exportedAt"`
}
