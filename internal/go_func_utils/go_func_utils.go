package go_func_utils

import (
	"fmt"
	"log"
	"runtime/debug"
)

// SafeGo runs fn on a new goroutine, logging any panic before re-raising it.
// The curses UI owns stdout, so without this a crash leaves no trace.
func SafeGo(logger *log.Logger, fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Printf("PANIC: %v\n%s", r, debug.Stack())
				panic(r)
			}
		}()
		fn()
	}()
}

// SafeGoRecover runs fn on a new goroutine and turns a panic into an error
// passed to onPanic instead of crashing the process.
func SafeGoRecover(logger *log.Logger, fn func(), onPanic func(err error)) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Printf("PANIC (recovered): %v\n%s", r, debug.Stack())
				if onPanic != nil {
					onPanic(fmt.Errorf("panic: %v", r))
				}
			}
		}()
		fn()
	}()
}
