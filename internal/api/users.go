package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/datviz/datviz-app/internal/messaging"
	"github.com/datviz/datviz-app/internal/router"
	"github.com/datviz/datviz-app/internal/session"
	"github.com/datviz/datviz-app/internal/users"
)

type checkRequest struct {
	PublicIP string `json:"public_ip"`
}

type registerRequest struct {
	Email    string `json:"email"`
	PublicIP string `json:"public_ip"`
}

type userResponse struct {
	Status           string `json:"status"`
	UUID             string `json:"uuid,omitempty"`
	AvailableCredits *int   `json:"available_credits,omitempty"`
}

// checkUser reports whether a user registered from the given public IP.
func (h *Handler) checkUser(w http.ResponseWriter, r *http.Request) {
	var req checkRequest
	_ = decodeJSON(r, &req)
	ip := strings.TrimSpace(req.PublicIP)
	if ip == "" {
		writeError(w, r, http.StatusBadRequest, "Public IP is required.")
		return
	}

	u, err := h.deps.Users.FindByIP(r.Context(), ip)
	switch {
	case errors.Is(err, users.ErrNotFound):
		h.markStatus(r, router.StatusNew, "")
		writeJSON(w, r, http.StatusOK, userResponse{Status: router.StatusNew})
	case err != nil:
		log.Error().Err(err).Msg("[api] check user failed")
		writeError(w, r, http.StatusInternalServerError, "Failed to check user status.")
	default:
		h.markStatus(r, router.StatusExisting, u.UUID)
		writeJSON(w, r, http.StatusOK, userResponse{Status: router.StatusExisting, UUID: u.UUID})
	}
}

// registerUser returns the user matching the email or IP, creating one with
// the free credit grant when none exists.
func (h *Handler) registerUser(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	_ = decodeJSON(r, &req)
	email, ip := strings.TrimSpace(req.Email), strings.TrimSpace(req.PublicIP)
	if email == "" || ip == "" {
		writeError(w, r, http.StatusBadRequest, "Email and public IP are required.")
		return
	}

	u, created, err := h.deps.Users.Register(r.Context(), email, ip)
	if err != nil {
		log.Error().Err(err).Msg("[api] register user failed")
		writeError(w, r, http.StatusInternalServerError, "Failed to register user.")
		return
	}

	status, code := router.StatusExisting, http.StatusOK
	if created {
		status, code = router.StatusNew, http.StatusCreated
	}
	log.Info().Str("uuid", u.UUID).Str("status", status).Int("credits", u.AvailableCredits).Msg("[api] user registered")

	if h.deps.Sessions != nil {
		if id := session.IDFromContext(r.Context()); id != "" {
			if err := h.deps.Sessions.MarkAuthenticated(r.Context(), id, status, u.UUID); err != nil {
				log.Warn().Err(err).Str("session", id).Msg("[api] mark session authenticated failed")
			}
		}
	}
	h.publish(messaging.SubjectUserRegistered, messaging.UserRegistered{
		UserUUID: u.UUID,
		Status:   status,
		Created:  created,
		At:       time.Now().Unix(),
	})

	credits := u.AvailableCredits
	writeJSON(w, r, code, userResponse{Status: status, UUID: u.UUID, AvailableCredits: &credits})
}

// logoutUser drops the onboarding flags from the caller's session, so the
// guarded views redirect to the landing page again.
func (h *Handler) logoutUser(w http.ResponseWriter, r *http.Request) {
	if h.deps.Sessions != nil {
		if id := session.IDFromContext(r.Context()); id != "" {
			if err := h.deps.Sessions.Clear(r.Context(), id); err != nil {
				log.Error().Err(err).Str("session", id).Msg("[api] clear session failed")
				writeError(w, r, http.StatusInternalServerError, "Failed to log out.")
				return
			}
		}
	}
	writeJSON(w, r, http.StatusOK, userResponse{Status: "Logged out"})
}

func (h *Handler) markStatus(r *http.Request, status, userUUID string) {
	if h.deps.Sessions == nil {
		return
	}
	id := session.IDFromContext(r.Context())
	if id == "" {
		return
	}
	if err := h.deps.Sessions.MarkStatus(r.Context(), id, status, userUUID); err != nil {
		log.Warn().Err(err).Str("session", id).Msg("[api] mark session status failed")
	}
}

func (h *Handler) publish(subject string, event any) {
	if h.deps.Publisher == nil {
		return
	}
	if err := h.deps.Publisher.PublishEvent(subject, event); err != nil {
		log.Warn().Err(err).Str("subject", subject).Msg("[api] publish event failed")
	}
}
