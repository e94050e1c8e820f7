package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/httprate"
	"github.com/platefare/restaurant-payouts/internal/api/problem"
)

// PublicRateLimiter limits unauthenticated traffic (health checks,
// misdirected requests) per source IP.
func PublicRateLimiter(rps int) func(http.Handler) http.Handler {
	return httprate.Limit(rps, time.Second,
		httprate.WithLimitHandler(rateLimitResponder("ip", rps)),
	)
}

// AuthRateLimiter limits dashboard and settlement traffic per
// restaurant, so one noisy tenant cannot starve the others; tokens
// without a restaurant claim (operator, service) fall back to IP keys.
func AuthRateLimiter(rps int) func(http.Handler) http.Handler {
	return httprate.Limit(rps, time.Second,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			if restaurantID := RestaurantIDFromContext(r.Context()); restaurantID != "" {
				return restaurantID, nil
			}
			return httprate.KeyByIP(r)
		}),
		httprate.WithLimitHandler(rateLimitResponder("restaurant", rps)),
	)
}

func rateLimitResponder(scope string, rps int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		problem.Write(
			w,
			r,
			http.StatusTooManyRequests,
			problem.Type("rate-limit/"+scope+"-exceeded"),
			http.StatusText(http.StatusTooManyRequests),
			fmt.Sprintf("Rate limit of %d req/s exceeded for this %s", rps, scope),
		)
	}
}
