package api

import (
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/datviz/datviz-app/internal/insights"
	"github.com/datviz/datviz-app/internal/messaging"
	"github.com/datviz/datviz-app/internal/metrics"
	"github.com/datviz/datviz-app/internal/ratelimit"
	"github.com/datviz/datviz-app/internal/tabular"
	"github.com/datviz/datviz-app/internal/users"
)

const (
	msgTooLarge       = "Total file size exceeds 500MB. Please upload files smaller than 500MB in total."
	msgInsufficient   = "Insufficient credits. Subscribe to our Pro Version!"
	msgUserNotFound   = "User not found."
	msgTooMany        = "Too many requests. Please try again later."
	multipartMemory   = 32 << 20
	multipartOverhead = 1 << 20
)

type fileResult struct {
	FileName          string              `json:"file_name"`
	Statistics        *tabular.Statistics `json:"statistics,omitempty"`
	Data              []map[string]any    `json:"data,omitempty"`
	Insights          string              `json:"insights,omitempty"`
	PromptSuggestions []string            `json:"prompt_suggestions,omitempty"`
	Error             string              `json:"error,omitempty"`
}

type uploadResponse struct {
	Message          string       `json:"message"`
	UUID             string       `json:"uuid"`
	Files            []fileResult `json:"files"`
	AvailableCredits int          `json:"available_credits"`
}

// upload parses each CSV file, computes its statistics and asks the analyzer
// for insights. The credits of all files are charged in one deduction.
func (h *Handler) upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxUploadBytes+multipartOverhead)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeError(w, r, http.StatusBadRequest, msgTooLarge)
			return
		}
		if !errors.Is(err, http.ErrNotMultipart) {
			writeError(w, r, http.StatusBadRequest, "Malformed upload request.")
			return
		}
	}
	if r.MultipartForm != nil {
		defer r.MultipartForm.RemoveAll()
	}

	uuid := strings.TrimSpace(r.FormValue("uuid"))
	if uuid == "" {
		writeError(w, r, http.StatusBadRequest, "UUID is required.")
		return
	}
	if h.limited(w, r, uuid, ratelimit.RuleUpload) {
		return
	}

	var files []*multipart.FileHeader
	if r.MultipartForm != nil {
		files = r.MultipartForm.File["files"]
	}
	if files == nil {
		writeError(w, r, http.StatusBadRequest, "No files part in the request.")
		return
	}
	if len(files) == 0 {
		writeError(w, r, http.StatusBadRequest, "No files selected for processing.")
		return
	}
	var total int64
	for _, fh := range files {
		total += fh.Size
	}
	if total > h.cfg.MaxUploadBytes {
		writeError(w, r, http.StatusBadRequest, msgTooLarge)
		return
	}

	ctx := r.Context()
	u, err := h.deps.Users.FindByUUID(ctx, uuid)
	if errors.Is(err, users.ErrNotFound) {
		writeError(w, r, http.StatusNotFound, msgUserNotFound)
		return
	}
	if err != nil {
		log.Error().Err(err).Str("uuid", uuid).Msg("[api] upload: load user failed")
		writeError(w, r, http.StatusInternalServerError, "Failed to process the upload.")
		return
	}

	var (
		results []fileResult
		used    int
		failed  int
		names   []string
	)
	for _, fh := range files {
		if fh.Filename == "" {
			log.Warn().Str("uuid", uuid).Msg("[api] upload: skipped file with no name")
			continue
		}
		if err := tabular.ValidateFilename(fh.Filename); err != nil {
			log.Warn().Str("uuid", uuid).Str("file", fh.Filename).Msg("[api] upload: skipped non-csv file")
			continue
		}

		res, credits, err := h.analyzeFile(r, fh)
		if err != nil {
			log.Error().Err(err).Str("uuid", uuid).Str("file", fh.Filename).Msg("[api] upload: file failed")
			results = append(results, fileResult{
				FileName: fh.Filename,
				Error:    fmt.Sprintf("Failed to process the file: %v", err),
			})
			failed++
			continue
		}
		if u.AvailableCredits-used < credits {
			log.Warn().Str("uuid", uuid).Int("available", u.AvailableCredits-used).Int("required", credits).
				Msg("[api] upload: insufficient credits")
			writeError(w, r, http.StatusPaymentRequired, msgInsufficient)
			return
		}
		used += credits
		names = append(names, fh.Filename)
		results = append(results, *res)
	}

	if len(results) == 0 {
		writeError(w, r, http.StatusBadRequest, "No valid files were uploaded or processed.")
		return
	}

	remaining, err := h.deps.Users.Deduct(ctx, uuid, used)
	if errors.Is(err, users.ErrInsufficientCredits) {
		writeError(w, r, http.StatusPaymentRequired, msgInsufficient)
		return
	}
	if err != nil {
		log.Error().Err(err).Str("uuid", uuid).Msg("[api] upload: deduct credits failed")
		writeError(w, r, http.StatusInternalServerError, "Failed to process the upload.")
		return
	}
	log.Info().Str("uuid", uuid).Int("used", used).Int("remaining", remaining).Msg("[api] upload: credits deducted")

	now := time.Now().Unix()
	if used > 0 {
		metrics.CreditsDeducted.Add(float64(used))
		h.publish(messaging.SubjectCreditsDeducted, messaging.CreditsDeducted{
			UserUUID: uuid, Amount: used, Remaining: remaining, Reason: "upload", At: now,
		})
	}
	h.publish(messaging.SubjectUploadProcessed, messaging.UploadProcessed{
		UserUUID: uuid, Files: names, Failed: failed, Credits: used, At: now,
	})

	writeJSON(w, r, http.StatusOK, uploadResponse{
		Message:          "Files processed successfully in memory",
		UUID:             uuid,
		Files:            results,
		AvailableCredits: remaining,
	})
}

// analyzeFile parses one upload and summarizes it. A malformed analyzer
// reply still yields the statistics, with no charge.
func (h *Handler) analyzeFile(r *http.Request, fh *multipart.FileHeader) (*fileResult, int, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	tbl, err := tabular.Parse(f)
	if err != nil {
		return nil, 0, err
	}
	stats := tabular.Stats(tbl)
	records := tbl.Records()

	res := &fileResult{
		FileName:          fh.Filename,
		Statistics:        &stats,
		Data:              records,
		Insights:          insights.NoInsights,
		PromptSuggestions: []string{},
	}

	summary, err := h.deps.Analyzer.Summarize(r.Context(), fh.Filename, tbl.Head(insights.PreviewRows))
	if errors.Is(err, insights.ErrMalformed) {
		res.Insights = "No insights available due to analyzer response format issue."
		return res, 0, nil
	}
	if err != nil {
		return nil, 0, err
	}
	res.Insights = summary.Insights
	res.PromptSuggestions = summary.Suggestions
	return res, summary.Credits, nil
}
