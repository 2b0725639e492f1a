// Package memzero clears key material held in byte slices.
package memzero

import "runtime"

// Zero overwrites every slice with zeros. It is best-effort: copies made by
// the runtime or by callers are not reached.
//
//go:noinline
func Zero(bufs ...[]byte) {
	for _, b := range bufs {
		clear(b)
	}
	runtime.KeepAlive(bufs)
}
