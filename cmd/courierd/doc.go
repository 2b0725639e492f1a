// Package main runs the courier server.
//
// Commands
//
//	courierd serve   Serve the REST API at /v1, the realtime socket at /ws,
//	                 /healthz and /metrics until interrupted.
//	courierd purge   Delete expired messages once and exit.
//	courierd token   Mint a signed bearer token for a user (development).
//
// Configuration
//
// Settings come from an optional YAML file (--config), COURIER_* environment
// variables (e.g. COURIER_AUTH_JWT_SECRET, COURIER_DATABASE_URL,
// COURIER_REDIS_URL) and a .env file in the working directory. With no
// database URL all state is held in memory and lost on exit. With a Redis URL
// new messages fan out across nodes through Redis pub/sub and the expiry
// sweep runs as an asynq periodic task; otherwise an in-process ticker sweeps.
//
// The server never sees plaintext or private keys; it stores ciphertext,
// per-recipient envelopes and public keys only.
package main
