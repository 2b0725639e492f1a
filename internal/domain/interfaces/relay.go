package interfaces

import (
	"context"

	domaintypes "courier/internal/domain/types"
)

// RelayClient is how the client talks to the server's REST surface.
type RelayClient interface {
	RegisterKey(ctx context.Context, rec domaintypes.PublicKeyRecord) error
	LookupKey(ctx context.Context, user domaintypes.UserID) (domaintypes.PublicKeyRecord, error)

	ListConversations(ctx context.Context) ([]domaintypes.Conversation, error)
	CreateDirect(
		ctx context.Context,
		peer domaintypes.UserID,
		policy domaintypes.RetentionPolicy,
	) (domaintypes.Conversation, error)
	CreateTeam(
		ctx context.Context,
		team domaintypes.TeamID,
		policy domaintypes.RetentionPolicy,
	) (domaintypes.Conversation, error)
	UpdateRetention(
		ctx context.Context,
		id domaintypes.ConversationID,
		policy domaintypes.RetentionPolicy,
	) (domaintypes.Conversation, error)
	Participants(ctx context.Context, id domaintypes.ConversationID) ([]domaintypes.Participant, error)

	FetchMessages(
		ctx context.Context,
		id domaintypes.ConversationID,
		q domaintypes.MessageQuery,
	) ([]domaintypes.Message, error)
	SendMessage(ctx context.Context, req domaintypes.PersistRequest) (domaintypes.Message, error)
	Export(ctx context.Context, id domaintypes.ConversationID) (domaintypes.ConversationExport, error)
}

// RealtimeClient manages room subscriptions on the realtime connection.
type RealtimeClient interface {
	Join(ctx context.Context, id domaintypes.ConversationID) error
	Leave(ctx context.Context, id domaintypes.ConversationID) error
}
