// internal/handler/campaign_handler.go
package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/unclebandit/certificate-service/internal/controller"
	"github.com/unclebandit/certificate-service/internal/logging"
	"github.com/unclebandit/certificate-service/internal/service"
)

// CampaignHandler serves the read side of campaigns and runs.
type CampaignHandler struct {
	Campaigns    *service.CampaignService
	Runs         *service.RunService
	Certificates *service.CertificateService
}

// GetCampaignHandlerWithStats returns a campaign with its email log counts.
func (h *CampaignHandler) GetCampaignHandlerWithStats(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id")
	if !ok {
		return
	}

	details, err := h.Campaigns.GetCampaignDetailsWithStats(r.Context(), id)
	if err != nil {
		fail(w, r, "failed to fetch campaign", err)
		return
	}
	respond(w, details)
}

// GetCampaignStatsHandler returns only the counts of a campaign.
func (h *CampaignHandler) GetCampaignStatsHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id")
	if !ok {
		return
	}

	details, err := h.Campaigns.GetCampaignDetailsWithStats(r.Context(), id)
	if err != nil {
		fail(w, r, "failed to fetch campaign stats", err)
		return
	}
	respond(w, map[string]any{
		"campaign_id":  details.ID,
		"status":       details.Status,
		"total_emails": details.TotalEmails,
		"emails_sent":  details.EmailsSent,
		"stats":        details.Stats,
	})
}

// GetRunProgressHandler reports how far a run's generation has got.
func (h *CampaignHandler) GetRunProgressHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id")
	if !ok {
		return
	}

	progress, err := h.Runs.Progress(r.Context(), id)
	if err != nil {
		fail(w, r, "failed to fetch run progress", err)
		return
	}
	respond(w, progress)
}

// VerifyHandler resolves a public verification link.
func (h *CampaignHandler) VerifyHandler(w http.ResponseWriter, r *http.Request) {
	runID, ok := parseID(w, r, "runId")
	if !ok {
		return
	}
	ordinal, err := strconv.Atoi(chi.URLParam(r, "ordinal"))
	if err != nil || ordinal < 1 {
		http.Error(w, "invalid ordinal", http.StatusBadRequest)
		return
	}

	cert, err := h.Certificates.Verify(r.Context(), runID, ordinal)
	if err != nil {
		fail(w, r, "certificate not verified", err)
		return
	}
	respond(w, map[string]any{
		"valid":          true,
		"certificate_id": cert.ID,
		"run_id":         runID,
		"subject_name":   cert.SubjectName,
		"issued_at":      cert.CreatedAt,
		"verified_at":    cert.VerifiedAt,
	})
}

func parseID(w http.ResponseWriter, r *http.Request, key string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, key))
	if err != nil {
		http.Error(w, "invalid "+key, http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}

func fail(w http.ResponseWriter, r *http.Request, msg string, err error) {
	status := controller.HTTPStatus(err)
	if status == http.StatusInternalServerError {
		logging.FromContext(r.Context()).Error(msg, "path", r.URL.Path, "error", err)
		http.Error(w, msg, status)
		return
	}
	http.Error(w, msg+": "+err.Error(), status)
}

func respond(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
