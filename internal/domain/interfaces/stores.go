package interfaces

import (
	"context"
	"time"

	domaintypes "courier/internal/domain/types"
)

// KeyStore persists the device's long-term keypair, sealed with a passphrase.
type KeyStore interface {
	SaveKeyPair(passphrase string, kp domaintypes.KeyPair) error
	// LoadKeyPair returns ok=false when no keypair has been saved yet.
	LoadKeyPair(passphrase string) (kp domaintypes.KeyPair, ok bool, err error)
}

// ConversationRepository stores conversation records.
type ConversationRepository interface {
	CreateConversation(ctx context.Context, c domaintypes.Conversation) error
	GetConversation(ctx context.Context, id domaintypes.ConversationID) (domaintypes.Conversation, bool, error)
	// FindDirect returns the canonical direct conversation for the unordered pair.
	FindDirect(ctx context.Context, a, b domaintypes.UserID) (domaintypes.Conversation, bool, error)
	ListDirect(ctx context.Context, user domaintypes.UserID) ([]domaintypes.Conversation, error)
	// ListTeam returns team conversations for the given teams, or for every
	// team when all is true.
	ListTeam(ctx context.Context, teams []domaintypes.TeamID, all bool) ([]domaintypes.Conversation, error)
	UpdateRetention(
		ctx context.Context,
		id domaintypes.ConversationID,
		policy domaintypes.RetentionPolicy,
	) (domaintypes.Conversation, error)
	TouchLastMessage(ctx context.Context, id domaintypes.ConversationID, at time.Time) error
}

// MessageRepository stores ciphertext records.
type MessageRepository interface {
	InsertMessage(ctx context.Context, m domaintypes.Message) error
	// QueryMessages returns non-expired messages at now, ascending by CreatedAt.
	QueryMessages(
		ctx context.Context,
		id domaintypes.ConversationID,
		q domaintypes.MessageQuery,
		now time.Time,
	) ([]domaintypes.Message, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// KeyDirectory is the public-key directory: one registered key per user.
type KeyDirectory interface {
	RegisterKey(ctx context.Context, rec domaintypes.PublicKeyRecord) error
	LookupKey(ctx context.Context, user domaintypes.UserID) (domaintypes.PublicKeyRecord, bool, error)
}

// TeamRoster exposes live team membership and the global admin set.
type TeamRoster interface {
	TeamMembers(ctx context.Context, team domaintypes.TeamID) ([]domaintypes.UserID, error)
	Admins(ctx context.Context) ([]domaintypes.UserID, error)
	TeamsOf(ctx context.Context, user domaintypes.UserID) ([]domaintypes.TeamID, error)
}

// ProfileStore remembers which user and device were registered per server.
type ProfileStore interface {
	SaveProfile(profile domaintypes.AccountProfile) error
	LoadProfile(serverURL string, user domaintypes.UserID) (domaintypes.AccountProfile, bool, error)
}
