package types

// UserID identifies an authenticated user.
type UserID string

// String returns the string form of the user identifier.
func (u UserID) String() string { return string(u) }

// DeviceID identifies the single registered device of a user.
type DeviceID string

// String returns the string form of the device identifier.
func (d DeviceID) String() string { return string(d) }

// TeamID identifies a team in the roster service.
type TeamID string

// String returns the string form of the team identifier.
func (t TeamID) String() string { return string(t) }

// ConversationID identifies a conversation.
type ConversationID string

// String returns the string form of the conversation identifier.
func (id ConversationID) String() string { return string(id) }

// MessageID identifies a persisted message.
type MessageID string

// String returns the string form of the message identifier.
func (id MessageID) String() string { return string(id) }

// Fingerprint is a short identifier for public keys presented to users.
type Fingerprint string

// String returns the string form of the fingerprint.
func (f Fingerprint) String() string { return string(f) }

// Role is the authorisation role attached to a verified identity.
type Role string

const (
	RoleMember Role = "member"
	RoleAdmin  Role = "admin"
)

// Principal is a verified user as supplied by the identity service.
type Principal struct {
	UserID UserID `json:"userId"`
	Role   Role   `json:"role"`
}

// IsAdmin reports whether the principal carries the admin role.
func (p Principal) IsAdmin() bool { return p.Role == RoleAdmin }
