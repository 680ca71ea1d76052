// Package session manages browser sessions. Each session is a Redis hash
// holding the flags the page guard reads: whether the user is authenticated
// and whether they are a new or existing user. The session ID travels in a
// cookie.
package session

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// CookieName is the cookie carrying the session ID.
const CookieName = "datviz_session"

type ctxKey struct{}

// WithID returns a copy of ctx carrying the session ID.
func WithID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// IDFromContext returns the session ID stored by Middleware, or "".
func IDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

// Middleware ensures every request has a session. A request without a
// cookie gets a fresh session ID, a cookie and an empty Redis hash. A known
// session has its TTL extended; one that expired in Redis is recreated
// empty under the same ID. Redis failures are logged and the request
// continues.
func Middleware(store *Store, secure bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := ""
			if c, err := r.Cookie(CookieName); err == nil && validID(c.Value) {
				id = c.Value
				alive, err := store.RefreshTTL(r.Context(), id)
				if err != nil {
					log.Warn().Err(err).Str("session", id).Msg("[session] refresh failed")
				} else if !alive {
					if err := store.Create(r.Context(), id); err != nil {
						log.Warn().Err(err).Str("session", id).Msg("[session] recreate failed")
					}
				}
			}
			if id == "" {
				id = uuid.NewString()
				if err := store.Create(r.Context(), id); err != nil {
					log.Warn().Err(err).Str("session", id).Msg("[session] create failed")
				}
				http.SetCookie(w, &http.Cookie{
					Name:     CookieName,
					Value:    id,
					Path:     "/",
					MaxAge:   int(SessionTTL / time.Second),
					HttpOnly: true,
					Secure:   secure,
					SameSite: http.SameSiteLaxMode,
				})
			}
			next.ServeHTTP(w, r.WithContext(WithID(r.Context(), id)))
		})
	}
}

func validID(v string) bool {
	_, err := uuid.Parse(v)
	return err == nil
}
