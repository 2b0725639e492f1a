package interfaces

import (
	"context"

	domaintypes "courier/internal/domain/types"
)

// IdentityService loads or creates the device keypair.
type IdentityService interface {
	LoadOrCreateKeyPair(passphrase string, device domaintypes.DeviceID) (
		domaintypes.KeyPair,
		bool,
		error,
	)
	LoadKeyPair(passphrase string) (domaintypes.KeyPair, error)
	FingerprintKeyPair(passphrase string) (domaintypes.Fingerprint, error)
}

// ConversationDirectory resolves conversations and their live membership.
type ConversationDirectory interface {
	EnsureAccess(
		ctx context.Context,
		p domaintypes.Principal,
		id domaintypes.ConversationID,
	) (domaintypes.Conversation, error)
	ResolveAllowedParticipants(
		ctx context.Context,
		c domaintypes.Conversation,
	) ([]domaintypes.UserID, error)
}

// MessagePublisher delivers a persisted message to realtime subscribers.
type MessagePublisher interface {
	PublishMessage(ctx context.Context, m domaintypes.Message) error
}
