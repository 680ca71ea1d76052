// Package api implements the DatViz JSON API: user onboarding, CSV upload
// analysis, prompt-to-graph generation and prompt history.
package api

import (
	"context"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/datviz/datviz-app/internal/history"
	"github.com/datviz/datviz-app/internal/insights"
	"github.com/datviz/datviz-app/internal/ratelimit"
	"github.com/datviz/datviz-app/internal/users"
)

// UserStore is the subset of users.Store the handlers need.
type UserStore interface {
	FindByIP(ctx context.Context, ip string) (*users.User, error)
	FindByUUID(ctx context.Context, uuid string) (*users.User, error)
	Register(ctx context.Context, email, ip string) (*users.User, bool, error)
	Deduct(ctx context.Context, uuid string, amount int) (int, error)
}

// SessionWriter records onboarding state in the caller's browser session.
type SessionWriter interface {
	MarkStatus(ctx context.Context, sessionID, status, userUUID string) error
	MarkAuthenticated(ctx context.Context, sessionID, status, userUUID string) error
	Clear(ctx context.Context, sessionID string) error
}

// Limiter throttles requests per identifier.
type Limiter interface {
	Allow(ctx context.Context, identifier string, rule ratelimit.Rule) (bool, error)
	RetryAfter(ctx context.Context, identifier string, rule ratelimit.Rule) time.Duration
}

// Publisher emits domain events.
type Publisher interface {
	PublishEvent(subject string, event any) error
}

// IPResolver reports the server's public IP.
type IPResolver interface {
	PublicIP(ctx context.Context) (string, bool)
}

// Config holds the handler settings.
type Config struct {
	AuthToken      string
	MaxUploadBytes int64
}

// Deps are the collaborators of the API. Sessions, Limiter, Publisher and
// IP may be nil; the related behavior is then skipped.
type Deps struct {
	Users     UserStore
	Analyzer  insights.Analyzer
	History   *history.Buffer
	Sessions  SessionWriter
	Limiter   Limiter
	Publisher Publisher
	IP        IPResolver
}

// Handler serves the /api routes.
type Handler struct {
	cfg  Config
	deps Deps
}

// New creates a Handler. A nil History gets a fresh buffer.
func New(cfg Config, deps Deps) *Handler {
	if deps.History == nil {
		deps.History = history.NewBuffer()
	}
	return &Handler{cfg: cfg, deps: deps}
}

// Routes returns the API router, to be mounted under /api.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(RequireToken(h.cfg.AuthToken))

	r.With(h.limitByIP(ratelimit.RuleRegister)).Post("/user/check", h.checkUser)
	r.With(h.limitByIP(ratelimit.RuleRegister)).Post("/user/register", h.registerUser)
	r.Post("/user/logout", h.logoutUser)
	r.Post("/upload", h.upload)
	r.Post("/generate_graph", h.generateGraph)
	r.Get("/history", h.getHistory)
	r.Get("/ip", h.publicIP)
	return r
}
