package api

import (
	"crypto/subtle"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/datviz/datviz-app/internal/ratelimit"
)

// RequireToken rejects requests without the bearer token: 401 when the
// header is missing, 403 when the token does not match.
func RequireToken(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				writeError(w, r, http.StatusUnauthorized, "Authorization token is required.")
				return
			}
			got := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
			if token == "" || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				log.Warn().Str("req_id", middleware.GetReqID(r.Context())).Msg("[api] invalid authorization token")
				writeError(w, r, http.StatusForbidden, "Invalid authorization token.")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// limitByIP applies rule to the client address.
func (h *Handler) limitByIP(rule ratelimit.Rule) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if h.limited(w, r, clientIP(r), rule) {
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// limited reports whether identifier is over rule, in which case a 429 with
// Retry-After has been written. Limiter errors fail open.
func (h *Handler) limited(w http.ResponseWriter, r *http.Request, identifier string, rule ratelimit.Rule) bool {
	if h.deps.Limiter == nil || identifier == "" {
		return false
	}
	ok, err := h.deps.Limiter.Allow(r.Context(), identifier, rule)
	if err != nil || ok {
		return false
	}
	log.Info().Str("rule", rule.Key).Str("id", identifier).Msg("[api] rate limited")
	if ra := h.deps.Limiter.RetryAfter(r.Context(), identifier, rule); ra > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(ra.Seconds()))))
	}
	writeError(w, r, http.StatusTooManyRequests, msgTooMany)
	return true
}

// clientIP is the peer address of the request. RemoteAddr is only rewritten
// from forwarding headers when the server is configured to trust a proxy.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
