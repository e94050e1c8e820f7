package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// TraceHeader carries the trace id between the platform edge and this
// service. Problem responses echo the same header.
const TraceHeader = "X-Trace-ID"

// TraceMiddleware tags every request with a trace id so payout log
// lines, problem responses and gateway calls can be correlated across
// the settlement pipeline. An inbound id from the edge is reused;
// anything oversized or blank is replaced.
func TraceMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID := strings.TrimSpace(r.Header.Get(TraceHeader))
		if traceID == "" || len(traceID) > 64 {
			traceID = uuid.NewString()
		}
		ctx := context.WithValue(r.Context(), traceContextKey, traceID)
		w.Header().Set(TraceHeader, traceID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
