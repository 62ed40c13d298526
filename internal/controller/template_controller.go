package controller

import (
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/unclebandit/certificate-service/internal/render"
	"github.com/unclebandit/certificate-service/internal/service"
)

type TemplateController struct {
	TemplateService *service.TemplateService
}

type createTemplateRequest struct {
	OwnerGroupID uuid.UUID `json:"owner_group_id" validate:"required"`
	Name         string    `json:"name" validate:"required,max=200"`
	Document     string    `json:"document" validate:"required"`
}

type updateTemplateRequest struct {
	Name     *string `json:"name" validate:"omitempty,max=200"`
	Document *string `json:"document"`
}

type previewTemplateRequest struct {
	Fields map[string]string `json:"fields" validate:"required"`
}

func (c *TemplateController) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", c.CreateTemplate)
	r.Get("/", c.ListTemplates)
	r.Get("/{id}", c.GetTemplate)
	r.Patch("/{id}", c.UpdateTemplate)
	r.Delete("/{id}", c.DeleteTemplate)
	r.Post("/{id}/preview", c.Preview)
	return r
}

func (c *TemplateController) CreateTemplate(w http.ResponseWriter, r *http.Request) {
	var body createTemplateRequest
	if err := decode(r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	t, err := c.TemplateService.CreateTemplate(r.Context(), body.OwnerGroupID, body.Name, body.Document)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

func (c *TemplateController) ListTemplates(w http.ResponseWriter, r *http.Request) {
	page, err := pageFrom(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	templates, pagination, err := c.TemplateService.ListTemplates(r.Context(), page)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse(templates, pagination))
}

func (c *TemplateController) GetTemplate(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	t, err := c.TemplateService.GetTemplate(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (c *TemplateController) UpdateTemplate(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var body updateTemplateRequest
	if err := decode(r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	t, err := c.TemplateService.UpdateTemplate(r.Context(), id, service.UpdateTemplateInput{
		Name:     body.Name,
		Document: body.Document,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (c *TemplateController) DeleteTemplate(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := c.TemplateService.DeleteTemplate(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Preview renders the template against sample fields. JSON objects are
// unordered, so fields are applied in key order.
func (c *TemplateController) Preview(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var body previewTemplateRequest
	if err := decode(r, &body); err != nil {
		writeError(w, r, err)
		return
	}

	keys := make([]string, 0, len(body.Fields))
	for k := range body.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fields := make(render.Fields, 0, len(keys))
	for _, k := range keys {
		fields.Set(k, body.Fields[k])
	}

	rendered, err := c.TemplateService.Preview(r.Context(), id, fields)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"template_id": id,
		"rendered":    rendered,
	})
}
