// safego.go - Panic containment for fail-open boundaries and background goroutines.
package util

import (
	"fmt"
	"runtime/debug"

	"github.com/rs/zerolog"
)

// PanicError is returned by Catch when fn panicked.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Catch runs fn and converts a panic into a *PanicError.
// Errors returned by fn pass through unchanged.
func Catch(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return fn()
}

// SafeGo launches fn in a goroutine with deferred panic recovery.
// On panic: logs the stack trace. Does NOT exit, background panics
// must not take the test run down with them.
func SafeGo(log zerolog.Logger, fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Error().
					Interface("panic", r).
					Bytes("stack", debug.Stack()).
					Msg("panic in background goroutine")
			}
		}()
		fn()
	}()
}
