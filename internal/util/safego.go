// safego.go — Panic-recovering goroutine launcher.
package util

import (
	"runtime/debug"

	"github.com/rs/zerolog"
)

// SafeGo launches fn in a goroutine with deferred panic recovery. A panic
// in a background goroutine must never take down the host application: it
// is logged through the caller's logger and swallowed.
func SafeGo(log zerolog.Logger, fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Error().
					Interface("panic", r).
					Bytes("stack", debug.Stack()).
					Msg("recovered panic in background goroutine")
			}
		}()
		fn()
	}()
}
