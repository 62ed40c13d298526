package controller

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/unclebandit/certificate-service/internal/model"
	"github.com/unclebandit/certificate-service/internal/service"
)

type RunController struct {
	RunService         *service.RunService
	CertificateService *service.CertificateService
}

type createRunRequest struct {
	OwnerGroupID uuid.UUID `json:"owner_group_id" validate:"required"`
	Name         string    `json:"name" validate:"max=200"`
	DatasetID    uuid.UUID `json:"dataset_id" validate:"required"`
	TemplateID   uuid.UUID `json:"template_id" validate:"required"`
	NameColumn   string    `json:"name_column" validate:"required"`
	EmailColumn  string    `json:"email_column" validate:"required"`
}

func (c *RunController) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", c.CreateRun)
	r.Get("/", c.ListRuns)
	r.Get("/{id}", c.GetRun)
	r.Patch("/{id}", c.RenameRun)
	r.Delete("/{id}", c.DeleteRun)
	r.Post("/{id}/execute", c.ExecuteRun)
	r.Get("/{id}/certificates", c.ListRunCertificates)
	return r
}

func (c *RunController) CreateRun(w http.ResponseWriter, r *http.Request) {
	var body createRunRequest
	if err := decode(r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	run, err := c.RunService.CreateRun(r.Context(), service.CreateRunInput{
		OwnerGroupID: body.OwnerGroupID,
		Name:         body.Name,
		DatasetID:    body.DatasetID,
		TemplateID:   body.TemplateID,
		NameColumn:   body.NameColumn,
		EmailColumn:  body.EmailColumn,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, run)
}

func (c *RunController) ListRuns(w http.ResponseWriter, r *http.Request) {
	page, err := pageFrom(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	runs, pagination, err := c.RunService.ListRuns(r.Context(), page)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse(runs, pagination))
}

func (c *RunController) GetRun(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	run, err := c.RunService.GetRun(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (c *RunController) RenameRun(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var body renameRequest
	if err := decode(r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	run, err := c.RunService.RenameRun(r.Context(), id, body.Name)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// DeleteRun responds with the number of rows removed by the cascade.
func (c *RunController) DeleteRun(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	res, err := c.RunService.DeleteRun(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ExecuteRun generates the run's certificates, or queues the run when
// ?async=true and answers 202.
func (c *RunController) ExecuteRun(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}

	if async(r) {
		run, err := c.RunService.ExecuteAsync(r.Context(), id)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]any{
			"run_id": run.ID,
			"status": "queued",
		})
		return
	}

	summary, err := c.RunService.Execute(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (c *RunController) ListRunCertificates(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	page, err := pageFrom(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if _, err := c.RunService.GetRun(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	status := model.CertificateStatus(r.URL.Query().Get("status"))
	certs, pagination, err := c.CertificateService.ListCertificates(r.Context(), page, &id, status)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse(certs, pagination))
}
