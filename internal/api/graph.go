package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/datviz/datviz-app/internal/history"
	"github.com/datviz/datviz-app/internal/insights"
	"github.com/datviz/datviz-app/internal/messaging"
	"github.com/datviz/datviz-app/internal/metrics"
	"github.com/datviz/datviz-app/internal/ratelimit"
	"github.com/datviz/datviz-app/internal/users"
)

type graphFile struct {
	FileName string           `json:"file_name"`
	Data     []map[string]any `json:"data"`
}

type graphRequest struct {
	UUID         string      `json:"uuid"`
	Prompt       string      `json:"prompt"`
	Files        []graphFile `json:"files"`
	CustomColors []string    `json:"custom_colors"`
}

type graphErrorResponse struct {
	Status      string   `json:"status"`
	Message     string   `json:"message"`
	Suggestions []string `json:"suggestions"`
}

type graphResponse struct {
	Status           string           `json:"status"`
	UUID             string           `json:"uuid"`
	Graphs           []insights.Graph `json:"graphs"`
	AvailableCredits int              `json:"available_credits"`
}

const msgVague = "The prompt was vague or invalid. Please try one of the suggested prompts."

// generateGraph turns a prompt over the uploaded rows into decorated Plotly
// graphs and charges the prompt credits on success.
func (h *Handler) generateGraph(w http.ResponseWriter, r *http.Request) {
	var req graphRequest
	_ = decodeJSON(r, &req)
	req.UUID, req.Prompt = strings.TrimSpace(req.UUID), strings.TrimSpace(req.Prompt)
	if req.UUID == "" || req.Prompt == "" || len(req.Files) == 0 {
		writeError(w, r, http.StatusBadRequest, "UUID, prompt, and files are required.")
		return
	}
	if h.limited(w, r, req.UUID, ratelimit.RuleGraph) {
		return
	}
	if res := insights.Screen(req.Prompt); res.Rejected {
		log.Warn().Str("uuid", req.UUID).Str("reason", res.Reason).Str("term", res.Term).Msg("[api] graph: prompt rejected")
		writeError(w, r, http.StatusBadRequest, "The prompt contains content that cannot be processed.")
		return
	}

	ctx := r.Context()
	u, err := h.deps.Users.FindByUUID(ctx, req.UUID)
	if errors.Is(err, users.ErrNotFound) {
		writeError(w, r, http.StatusNotFound, msgUserNotFound)
		return
	}
	if err != nil {
		log.Error().Err(err).Str("uuid", req.UUID).Msg("[api] graph: load user failed")
		writeError(w, r, http.StatusInternalServerError, "Failed to generate graph.")
		return
	}

	var rows []map[string]any
	for _, f := range req.Files {
		rows = append(rows, f.Data...)
	}

	result, err := h.deps.Analyzer.GenerateGraphs(ctx, req.Prompt, rows)
	if err != nil {
		log.Error().Err(err).Str("uuid", req.UUID).Msg("[api] graph: analyzer failed")
		writeError(w, r, http.StatusInternalServerError, "Failed to generate graph.")
		return
	}
	if u.AvailableCredits < result.Credits {
		log.Warn().Str("uuid", req.UUID).Int("available", u.AvailableCredits).Int("required", result.Credits).
			Msg("[api] graph: insufficient credits")
		writeError(w, r, http.StatusPaymentRequired, msgInsufficient)
		return
	}

	if result.Status == insights.StatusError {
		suggestions := result.Suggestions
		if len(suggestions) == 0 {
			suggestions = insights.DefaultSuggestions
		}
		h.deps.History.Add(req.UUID, history.Exchange{Prompt: req.Prompt, Status: insights.StatusError, Ts: time.Now().Unix()})
		writeJSON(w, r, http.StatusOK, graphErrorResponse{Status: insights.StatusError, Message: msgVague, Suggestions: suggestions})
		return
	}
	if len(result.Graphs) == 0 {
		writeError(w, r, http.StatusInternalServerError, "No graphs generated from the provided prompt.")
		return
	}

	graphs, err := insights.ParseGraphs(result.Graphs, req.CustomColors)
	if err != nil {
		log.Warn().Err(err).Str("uuid", req.UUID).Msg("[api] graph: parse graphs failed")
		writeError(w, r, http.StatusInternalServerError, "Failed to parse one or more generated graphs.")
		return
	}

	remaining, err := h.deps.Users.Deduct(ctx, req.UUID, result.Credits)
	if errors.Is(err, users.ErrInsufficientCredits) {
		writeError(w, r, http.StatusPaymentRequired, msgInsufficient)
		return
	}
	if err != nil {
		log.Error().Err(err).Str("uuid", req.UUID).Msg("[api] graph: deduct credits failed")
		writeError(w, r, http.StatusInternalServerError, "Failed to generate graph.")
		return
	}

	titles := make([]string, len(graphs))
	for i, g := range graphs {
		titles[i] = g.Title
	}
	now := time.Now().Unix()
	h.deps.History.Add(req.UUID, history.Exchange{
		Prompt:  req.Prompt,
		Status:  insights.StatusSuccess,
		Titles:  titles,
		Credits: result.Credits,
		Ts:      now,
	})
	if result.Credits > 0 {
		metrics.CreditsDeducted.Add(float64(result.Credits))
		h.publish(messaging.SubjectCreditsDeducted, messaging.CreditsDeducted{
			UserUUID: req.UUID, Amount: result.Credits, Remaining: remaining, Reason: "graph", At: now,
		})
	}
	log.Info().Str("uuid", req.UUID).Int("graphs", len(graphs)).Int("remaining", remaining).Msg("[api] graph: generated")

	writeJSON(w, r, http.StatusOK, graphResponse{
		Status:           insights.StatusSuccess,
		UUID:             req.UUID,
		Graphs:           graphs,
		AvailableCredits: remaining,
	})
}

type historyResponse struct {
	UUID      string             `json:"uuid"`
	Exchanges []history.Exchange `json:"exchanges"`
}

// getHistory returns the caller's most recent prompt exchanges.
func (h *Handler) getHistory(w http.ResponseWriter, r *http.Request) {
	uuid := strings.TrimSpace(r.URL.Query().Get("uuid"))
	if uuid == "" {
		writeError(w, r, http.StatusBadRequest, "UUID is required.")
		return
	}
	writeJSON(w, r, http.StatusOK, historyResponse{UUID: uuid, Exchanges: h.deps.History.Get(uuid)})
}

type ipResponse struct {
	IP *string `json:"ip"`
}

// publicIP reports the server's public IP, or null when the lookup fails.
func (h *Handler) publicIP(w http.ResponseWriter, r *http.Request) {
	var resp ipResponse
	if h.deps.IP != nil {
		if ip, ok := h.deps.IP.PublicIP(r.Context()); ok {
			resp.IP = &ip
		}
	}
	writeJSON(w, r, http.StatusOK, resp)
}
