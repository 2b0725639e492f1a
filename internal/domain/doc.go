// Package domain defines core data models and interfaces shared across the app.
// It contains plain types (wire/state) and contracts (interfaces) only.
//
// The types subpackage also carries the error taxonomy (types.Error) and the
// realtime frame definitions shared by the server hub and the client.
package domain
