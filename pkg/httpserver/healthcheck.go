package httpserver

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/clubmaster/billing/pkg/logger"
)

// HealthCheckHandler answers liveness and readiness probes. With no checks
// registered it always answers 200 "OK". With checks, each one runs against
// the request context; the first failure answers 500 "NOT_READY" and is
// logged, so a failing Postgres or Redis dependency takes the instance out
// of rotation.
func HealthCheckHandler(log *slog.Logger, checks ...func(context.Context) error) http.HandlerFunc {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		for _, check := range checks {
			if err := check(ctx); err != nil {
				log.ErrorContext(ctx, "readiness check failed", logger.Error(err))
				w.WriteHeader(http.StatusInternalServerError)
				_, _ = w.Write([]byte("NOT_READY"))
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	}
}
