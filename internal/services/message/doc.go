// Package message persists encrypted messages for the server.
//
// Persist enforces that the recipient list equals the conversation's live
// membership minus the sender, that envelopes exist for exactly those
// recipients plus the sender, and snapshots an expiry from the conversation's
// retention policy. Queries never return expired messages.
package message
