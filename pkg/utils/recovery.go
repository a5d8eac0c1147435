package utils

import (
	"context"
	"fmt"
	"os"
	"runtime/debug"

	"gitlab.com/timkado/api/franchise-integration-hub/pkg/logger"
	"go.uber.org/zap"
)

// RecoverFn handles a recovered panic value and its stack.
type RecoverFn func(r interface{}, stack []byte)

func logPanic(ctx context.Context, msg string, r interface{}, stack []byte) {
	var log *zap.Logger
	if ctx != nil {
		log = logger.FromContext(ctx)
	} else {
		log = logger.Log
	}
	if log == nil {
		fmt.Fprintf(os.Stderr, "[PANIC] %s: %v\n%s\n", msg, r, stack)
		return
	}
	log.Error("[panic] "+msg, zap.Any("panic", r), zap.ByteString("stack", stack))
}

// SafeGo runs fn in a goroutine; a panic is passed to onPanic or logged.
func SafeGo(fn func(), onPanic RecoverFn) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				stack := debug.Stack()
				if onPanic != nil {
					onPanic(r, stack)
					return
				}
				logPanic(nil, "recovered from panic in goroutine", r, stack)
			}
		}()
		fn()
	}()
}

// RecoverWithLog must be deferred directly.
func RecoverWithLog(ctx context.Context, operation string) {
	if r := recover(); r != nil {
		logPanic(ctx, fmt.Sprintf("recovered from panic during %s", operation), r, debug.Stack())
	}
}

// WrapWithContextRecovery converts a panic inside fn into an error.
func WrapWithContextRecovery(fn func(ctx context.Context) error) func(ctx context.Context) (err error) {
	return func(ctx context.Context) (err error) {
		defer func() {
			if r := recover(); r != nil {
				logPanic(ctx, "recovered from panic", r, debug.Stack())
				err = fmt.Errorf("panic recovered: %v", r)
			}
		}()
		return fn(ctx)
	}
}
