// Package memory provides in-process implementations of the server storage
// interfaces. State is lost on exit. It backs tests and single-node
// development servers when no database URL is configured.
package memory
