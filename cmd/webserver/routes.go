package main

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/datviz/datviz-app/internal/background"
	"github.com/datviz/datviz-app/internal/metrics"
)

// routes holds the handlers mounted by newRouter. Session may be nil.
// TrustProxy takes the client address from X-Forwarded-For / X-Real-IP and
// must only be set behind a proxy that overwrites those headers.
type routes struct {
	Pages   http.Handler
	API     http.Handler
	Stream  http.Handler
	Health  http.HandlerFunc
	Session func(http.Handler) http.Handler

	TrustProxy              bool
	StillWidth, StillHeight int
}

func newRouter(rt routes) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	if rt.TrustProxy {
		r.Use(middleware.RealIP)
	}
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", rt.Health)
	r.Handle("/metrics", metrics.Handler())
	r.Handle("/ws/background", rt.Stream)
	r.Handle("/background.png", background.StillHandler(rt.StillWidth, rt.StillHeight))

	r.Group(func(r chi.Router) {
		if rt.Session != nil {
			r.Use(rt.Session)
		}
		r.Mount("/api", rt.API)
		r.Handle("/*", rt.Pages)
	})
	return r
}

// requestLogger logs one line per request. For WebSocket upgrades the line
// is written once the connection is hijacked.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		log.Info().
			Str("req_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("took", time.Since(start)).
			Msg("[http] request")
	})
}
