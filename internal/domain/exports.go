package domain

import (
	interfaces "courier/internal/domain/interfaces"
	types "courier/internal/domain/types"
)

// Type aliases expose domain types from the types subpackage for compact imports.
type (
	UserID             = types.UserID
	DeviceID           = types.DeviceID
	TeamID             = types.TeamID
	ConversationID     = types.ConversationID
	MessageID          = types.MessageID
	Fingerprint        = types.Fingerprint
	Role               = types.Role
	Principal          = types.Principal
	X25519Public       = types.X25519Public
	X25519Private      = types.X25519Private
	KeyPair            = types.KeyPair
	PublicKeyRecord    = types.PublicKeyRecord
	ConversationType   = types.ConversationType
	RetentionPolicy    = types.RetentionPolicy
	Conversation       = types.Conversation
	Participant        = types.Participant
	SealedBox          = types.SealedBox
	EncryptedPayload   = types.EncryptedPayload
	Message            = types.Message
	PersistRequest     = types.PersistRequest
	MessageQuery       = types.MessageQuery
	DecryptedMessage   = types.DecryptedMessage
	ConversationExport = types.ConversationExport
	AccountProfile     = types.AccountProfile
	Error              = types.Error
	ErrorKind          = types.ErrorKind
	Frame              = types.Frame
)

// Interface aliases expose domain interfaces from the interfaces subpackage.
type (
	KeyStore               = interfaces.KeyStore
	ProfileStore           = interfaces.ProfileStore
	ConversationRepository = interfaces.ConversationRepository
	MessageRepository      = interfaces.MessageRepository
	KeyDirectory           = interfaces.KeyDirectory
	TeamRoster             = interfaces.TeamRoster
	IdentityService        = interfaces.IdentityService
	ConversationDirectory  = interfaces.ConversationDirectory
	MessagePublisher       = interfaces.MessagePublisher
	RelayClient            = interfaces.RelayClient
	RealtimeClient         = interfaces.RealtimeClient
)
