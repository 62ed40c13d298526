// internal/controller/campaign_controller.go
package controller

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/unclebandit/certificate-service/internal/model"
	"github.com/unclebandit/certificate-service/internal/service"
)

type CampaignController struct {
	CampaignService *service.CampaignService
}

type createCampaignRequest struct {
	OwnerGroupID *uuid.UUID `json:"owner_group_id"`
	RunID        uuid.UUID  `json:"run_id" validate:"required"`
	Name         string     `json:"name" validate:"required,max=200"`
	Subject      string     `json:"subject" validate:"required,max=500"`
	Body         string     `json:"body" validate:"required_without=HTMLBody"`
	HTMLBody     *string    `json:"html_body"`
}

type updateCampaignRequest struct {
	Name     *string `json:"name" validate:"omitempty,max=200"`
	Subject  *string `json:"subject" validate:"omitempty,max=500"`
	Body     *string `json:"body"`
	HTMLBody *string `json:"html_body"`
}

type previewCampaignRequest struct {
	CertificateID uuid.UUID `json:"certificate_id" validate:"required"`
}

// Routes registers the command endpoints. Read endpoints with stats are
// added by the handler package.
func (c *CampaignController) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", c.CreateCampaign)
	r.Get("/", c.ListCampaigns)
	r.Patch("/{id}", c.UpdateCampaign)
	r.Delete("/{id}", c.DeleteCampaign)
	r.Post("/{id}/send", c.SendCampaign)
	r.Post("/{id}/preview", c.PersonalizedPreview)
	return r
}

// PersonalizedPreview renders the campaign for one certificate without sending.
func (c *CampaignController) PersonalizedPreview(w http.ResponseWriter, r *http.Request) {
	campaignID, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var body previewCampaignRequest
	if err := decode(r, &body); err != nil {
		writeError(w, r, err)
		return
	}

	rendered, err := c.CampaignService.RenderPreview(r.Context(), campaignID, body.CertificateID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"campaign_id":      campaignID,
		"certificate_id":   body.CertificateID,
		"rendered_message": rendered,
	})
}

func (c *CampaignController) CreateCampaign(w http.ResponseWriter, r *http.Request) {
	var body createCampaignRequest
	if err := decode(r, &body); err != nil {
		writeError(w, r, err)
		return
	}

	campaign, err := c.CampaignService.CreateCampaign(r.Context(), service.CreateCampaignInput{
		OwnerGroupID: body.OwnerGroupID,
		RunID:        body.RunID,
		Name:         body.Name,
		Subject:      body.Subject,
		Body:         body.Body,
		HTMLBody:     body.HTMLBody,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, campaign)
}

func (c *CampaignController) ListCampaigns(w http.ResponseWriter, r *http.Request) {
	page, err := pageFrom(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	runID, err := queryID(r, "run_id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	status := model.CampaignStatus(r.URL.Query().Get("status"))

	campaigns, pagination, err := c.CampaignService.ListCampaigns(r.Context(), page, runID, status)
	if err != nil {
		writeError(w, r, err)
		return
	}
	// pagination already carries total_count, total_pages, page and page_size
	writeJSON(w, http.StatusOK, listResponse(campaigns, pagination))
}

func (c *CampaignController) UpdateCampaign(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var body updateCampaignRequest
	if err := decode(r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	campaign, err := c.CampaignService.UpdateCampaign(r.Context(), id, service.UpdateCampaignInput{
		Name:     body.Name,
		Subject:  body.Subject,
		Body:     body.Body,
		HTMLBody: body.HTMLBody,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, campaign)
}

func (c *CampaignController) DeleteCampaign(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := c.CampaignService.DeleteCampaign(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SendCampaign dispatches the campaign inline, or queues it for a worker
// when ?async=true.
func (c *CampaignController) SendCampaign(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}

	if async(r) {
		campaign, err := c.CampaignService.SendCampaignAsync(r.Context(), id)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]any{
			"campaign_id":  campaign.ID,
			"total_emails": campaign.TotalEmails,
			"status":       "queued",
		})
		return
	}

	result, err := c.CampaignService.SendCampaign(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
