package middleware

import (
	"net/http"

	"github.com/platefare/restaurant-payouts/internal/api/problem"
	"go.uber.org/zap"
)

// RecoverMiddleware turns a panicking payout handler into an RFC 7807
// response so one bad request cannot take the sweep host down with it.
func RecoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rec),
						zap.String("route", routePattern(r)),
						zap.String("method", r.Method),
						zap.String("trace_id", TraceIDFromContext(r.Context())),
						zap.Stack("stack"),
					)

					problem.Write(
						w,
						r,
						http.StatusInternalServerError,
						problem.Type("internal-server-error"),
						http.StatusText(http.StatusInternalServerError),
						"unexpected server error",
					)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
