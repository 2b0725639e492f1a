package types

import (
	"encoding/json"
	"time"
)

// Realtime event names.
const (
	EventReady         = "ready"
	EventJoin          = "join"
	EventJoined        = "joined"
	EventLeave         = "leave"
	EventLeft          = "left"
	EventNewMessage    = "new-message"
	EventMessageNotice = "message-notice"
	EventPresence      = "presence"
	EventError         = "error"
)

// Frame is one realtime wire frame: an event name and its payload.
type Frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// NewFrame marshals data into a frame of type t.
func NewFrame(t string, data any) (Frame, error) {
	if data == nil {
		return Frame{Type: t, Data: json.RawMessage(`{}`)}, nil
	}
	b, err := json.Marshal(data)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Type: t, Data: b}, nil
}

// ConversationRef is the payload of join, leave and left.
type ConversationRef struct {
	ConversationID ConversationID `json:"conversationId"`
}

// JoinedEvent confirms a room subscription.
type JoinedEvent struct {
	ConversationID  ConversationID   `json:"conversationId"`
	RetentionPolicy RetentionPolicy  `json:"retentionPolicy"`
	Type            ConversationType `json:"type"`
}

// NewMessageEvent carries a full encrypted record to joined connections.
type NewMessageEvent struct {
	ConversationID  ConversationID       `json:"conversationId"`
	MessageID       MessageID            `json:"messageId"`
	SenderID        UserID               `json:"senderId"`
	Ciphertext      string               `json:"ciphertext"`
	IV              string               `json:"iv"`
	AuthTag         string               `json:"authTag"`
	Envelopes       map[UserID]SealedBox `json:"envelopes"`
	SenderPublicKey string               `json:"senderPublicKey"`
	Recipients      []UserID             `json:"recipients"`
	RetentionPolicy RetentionPolicy      `json:"retentionPolicy"`
	ExpiresAt       time.Time            `json:"expiresAt"`
	CreatedAt       time.Time            `json:"createdAt"`
}

// NewMessageEventFrom projects a stored message onto the wire event.
func NewMessageEventFrom(m Message) NewMessageEvent {
	return NewMessageEvent{
		ConversationID:  m.ConversationID,
		MessageID:       m.ID,
		SenderID:        m.SenderID,
		Ciphertext:      m.Ciphertext,
		IV:              m.IV,
		AuthTag:         m.AuthTag,
		Envelopes:       m.Envelopes,
		SenderPublicKey: m.SenderPublicKey,
		Recipients:      m.Recipients,
		RetentionPolicy: m.RetentionPolicy,
		ExpiresAt:       m.ExpiresAt,
		CreatedAt:       m.CreatedAt,
	}
}

// Message converts the event back into a stored-message shape.
func (e NewMessageEvent) Message() Message {
	return Message{
		ID:              e.MessageID,
		ConversationID:  e.ConversationID,
		SenderID:        e.SenderID,
		Recipients:      e.Recipients,
		Ciphertext:      e.Ciphertext,
		IV:              e.IV,
		AuthTag:         e.AuthTag,
		Envelopes:       e.Envelopes,
		SenderPublicKey: e.SenderPublicKey,
		RetentionPolicy: e.RetentionPolicy,
		ExpiresAt:       e.ExpiresAt,
		CreatedAt:       e.CreatedAt,
	}
}

// MessageNoticeEvent is pushed to a recipient's private channel.
type MessageNoticeEvent struct {
	ConversationID ConversationID `json:"conversationId"`
	MessageID      MessageID      `json:"messageId"`
	SenderID       UserID         `json:"senderId"`
}

// PresenceEvent lists every user with at least one open connection.
type PresenceEvent struct {
	OnlineUserIDs []UserID `json:"onlineUserIds"`
}

// ErrorEvent reports a failed realtime request.
type ErrorEvent struct {
	Message        string         `json:"message"`
	ConversationID ConversationID `json:"conversationId,omitempty"`
}
