// Package directory owns conversation records and resolves who may see them.
//
// Direct conversations store their two participants. Team conversations store
// only a team reference; their membership is recomputed from the roster and
// the admin set on every call, so roster changes apply immediately.
package directory
