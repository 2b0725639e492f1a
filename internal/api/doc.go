// Package api exposes the courier server over HTTP.
//
// Routes (all /v1 routes require a bearer token):
//
//	POST  /v1/keys                                register the caller's public key
//	GET   /v1/keys/{userId}                       look up a user's public key
//	GET   /v1/conversations                       list accessible conversations
//	POST  /v1/conversations/direct                get or create a direct conversation
//	POST  /v1/conversations/team                  create a team conversation
//	PATCH /v1/conversations/{id}/retention        change the retention policy
//	GET   /v1/conversations/{id}/participants     live membership with public keys
//	GET   /v1/conversations/{id}/messages         history (senderId, from, to, limit)
//	POST  /v1/conversations/{id}/messages         persist and fan out a message
//	GET   /v1/conversations/{id}/export           every visible message
//	GET   /ws                                     realtime socket
//	GET   /healthz, /metrics
//
// Errors are returned as {"error":{"code":"...","message":"..."}} where code
// is the domain error kind.
package api
