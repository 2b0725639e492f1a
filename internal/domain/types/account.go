package types

import "time"

// AccountProfile records which identity this device registered on a server.
type AccountProfile struct {
	ServerURL    string      `json:"server_url"`
	UserID       UserID      `json:"user_id"`
	DeviceID     DeviceID    `json:"device_id"`
	Fingerprint  Fingerprint `json:"fingerprint"`
	RegisteredAt time.Time   `json:"registered_at"`
}
