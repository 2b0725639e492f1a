package types

import "time"

// ConversationType distinguishes pairwise chats from team channels.
type ConversationType string

const (
	ConversationDirect ConversationType = "direct"
	ConversationTeam   ConversationType = "team"
)

// RetentionPolicy is a named lifetime applied to messages at persist time.
type RetentionPolicy string

const (
	Retention7Days  RetentionPolicy = "7d"
	Retention30Days RetentionPolicy = "30d"

	// DefaultRetention applies when a conversation is created without a policy.
	DefaultRetention = Retention7Days
)

// Duration returns the lifetime of the policy, or false when unknown.
func (p RetentionPolicy) Duration() (time.Duration, bool) {
	switch p {
	case Retention7Days:
		return 7 * 24 * time.Hour, true
	case Retention30Days:
		return 30 * 24 * time.Hour, true
	}
	return 0, false
}

// Valid reports whether p is a supported policy.
func (p RetentionPolicy) Valid() bool {
	_, ok := p.Duration()
	return ok
}

// Conversation is a direct pair or a team channel.
//
// Team membership is never stored here; it is resolved from the roster on
// every access.
type Conversation struct {
	ID              ConversationID   `json:"id"`
	Type            ConversationType `json:"type"`
	Participants    []UserID         `json:"participants,omitempty"`
	TeamID          TeamID           `json:"teamId,omitempty"`
	RetentionPolicy RetentionPolicy  `json:"retentionPolicy"`
	LastMessageAt   *time.Time       `json:"lastMessageAt,omitempty"`
	CreatedAt       time.Time        `json:"createdAt"`
}

// HasParticipant reports whether u is one of the stored direct participants.
func (c Conversation) HasParticipant(u UserID) bool {
	for _, p := range c.Participants {
		if p == u {
			return true
		}
	}
	return false
}

// Participant is a resolved member together with their registered key, if any.
type Participant struct {
	UserID    UserID   `json:"userId"`
	DeviceID  DeviceID `json:"deviceId,omitempty"`
	PublicKey string   `json:"publicKey,omitempty"`
	Algorithm string   `json:"algorithm,omitempty"`
}
