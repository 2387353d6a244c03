package middleware

import (
	"log"
	"math"
	"net"
	"net/http"
	"strconv"

	"github.com/hongminglow/nova-be/internal/apperr"
	"github.com/hongminglow/nova-be/internal/http/respond"
	"github.com/hongminglow/nova-be/internal/metrics"
	"github.com/hongminglow/nova-be/internal/ratelimit"
)

// KeyFunc picks the bucket a request is counted against.
type KeyFunc func(r *http.Request) string

// ByIP keys requests on the client address.
func ByIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return "ip:" + r.RemoteAddr
	}
	return "ip:" + host
}

// ByUser keys requests on the authenticated user, falling back to the
// client address.
func ByUser(r *http.Request) string {
	if user, ok := UserFromContext(r.Context()); ok {
		return "user:" + user.ID
	}
	return ByIP(r)
}

// RateLimit rejects requests over rule with 429. A limiter error lets the
// request through and is logged.
func RateLimit(limiter ratelimit.Limiter, rule ratelimit.Rule, key KeyFunc, m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			decision, err := limiter.Allow(r.Context(), rule, key(r))
			if err != nil {
				log.Printf("[WARN] id=%s rate limiter unavailable: %v", RequestID(r.Context()), err)
				next.ServeHTTP(w, r)
				return
			}
			w.Header().Set("RateLimit-Limit", strconv.Itoa(decision.Limit))
			w.Header().Set("RateLimit-Remaining", strconv.Itoa(decision.Remaining))
			if !decision.Allowed {
				retry := int(math.Ceil(decision.RetryAfter.Seconds()))
				if retry < 1 {
					retry = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(retry))
				m.RateLimited(rule.Name)
				respond.Fail(w, apperr.ErrRateLimited, RequestID(r.Context()))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
