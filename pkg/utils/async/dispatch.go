package async

import (
	"context"

	"github.com/caresim-lab/caseflow/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
)

// Detach returns a background context that keeps only the logger of ctx.
// The caller's request context may end before background work does.
func Detach(ctx context.Context) context.Context {
	bgCtx := context.Background()
	if logger := logging.From(ctx); logger != nil {
		bgCtx = logging.With(bgCtx, logger)
	}
	return bgCtx
}

// Run executes a handler function asynchronously in a new goroutine.
// Errors and panics are logged instead of crashing the process. Callers
// that need cancellation over the handler detach and derive the context
// themselves before handing it over.
func Run(ctx context.Context, handler func(ctx context.Context) error) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger := logging.From(ctx)
				logger.Error("panic in async handler", "panic", r)
			}
		}()

		if err := handler(ctx); err != nil {
			logger := logging.From(ctx)
			logger.Error("async handler failed", "error", goerr.Unwrap(err))
		}
	}()
}
