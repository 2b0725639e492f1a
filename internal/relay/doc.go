// Package relay is the client side of a courier server.
//
// HTTP implements domain.RelayClient over the server's /v1 REST surface. Every
// call carries the bearer token and a context. Error responses are decoded
// back into domain errors so callers can branch on the kind.
//
// Realtime holds the websocket used for room subscriptions, new-message and
// presence events. Messages are never sent over the socket; they go through
// HTTP.SendMessage and come back to subscribers as new-message events.
package relay
