// Package realtime fans persisted messages out to connected clients.
//
// # Connections
//
// Every socket is modelled by a Conn with an explicit state machine:
//
//	Connecting -> Authenticated -> Ready -> Disconnected
//
// Room membership (joined conversations) is tracked per Conn and is only
// allowed in the Ready state. Disconnected is terminal. The transition
// methods return ErrInvalidTransition instead of silently ignoring misuse,
// which keeps the hub testable without a network.
//
// # Hub
//
// The Hub owns the room and private-user indexes, re-validates access on
// every join, publishes new-message frames to joined connections only, and
// broadcasts presence when a user's first connection opens or last one
// closes.
//
// # Wire
//
// Frames are JSON objects {"type": ..., "data": ...}. Inbound types are join
// and leave; outbound types are ready, joined, left, new-message,
// message-notice, presence and error.
package realtime
