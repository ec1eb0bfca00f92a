package utils

import (
	"runtime/debug"

	"go.viam.com/arsession/logging"
)

// CallSafely runs fn and converts a panic into a logged error. It reports whether fn returned
// normally so callers can keep iterating over the remaining callbacks.
func CallSafely(logger logging.Logger, what string, fn func()) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			logger.Errorw("recovered from panic", "callback", what, "error", NewPanicError(what, r).Error(),
				"stack", string(debug.Stack()))
		}
	}()
	fn()
	return true
}
