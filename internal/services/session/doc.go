// Package session is the client-side controller for encrypted conversations.
//
// A Controller owns the device keypair once bootstrapped, caches conversations
// and their participants, and keeps one ordered, de-duplicated plaintext
// thread per conversation. Messages reach a thread from three places: history
// fetched on join, realtime pushes, and the caller's own sends. Each is merged
// by message id so a message seen twice is stored once.
//
// Decryption failures on received messages are recorded on that message and
// never abort the rest of the thread. Encryption failures during Send abort
// the send before anything leaves the device.
package session
