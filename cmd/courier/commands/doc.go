// Package commands defines the courier CLI and wires dependencies for subcommands.
//
// Commands
//
//   - init           Create the local device keypair
//   - fingerprint    Print the public key fingerprint
//   - register       Publish your public key to the server
//   - conversations  List conversations you can access
//   - direct         Open the direct conversation with a user
//   - team           Open a conversation for a team
//   - retention      Change the retention policy of a conversation
//   - send           Encrypt and send a message
//   - history        Print and decrypt a conversation's history
//   - search         Filter history by sender and time range
//   - export         Write a decrypted export to a JSON file
//   - watch          Join conversations and print messages as they arrive
//
// # Configuration
//
// Every persistent flag can also be set through a COURIER_* environment
// variable, e.g. COURIER_SERVER, COURIER_TOKEN or COURIER_PASSPHRASE. The root
// command builds the dependency graph (key store, relay client, session
// controller) before any subcommand runs.
package commands
