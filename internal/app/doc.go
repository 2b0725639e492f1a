// Package app wires application dependencies.
//
// The server side loads Config through viper (YAML file, COURIER_* environment
// variables and an optional .env file), opens the in-memory or Postgres
// stores, and builds the REST router, realtime hub, optional Redis bridge and
// purge worker. NewServer returns the assembled node; Run serves it.
//
// The client side builds the key and profile file stores, the HTTP relay
// client and the session controller from ClientConfig.
package app
