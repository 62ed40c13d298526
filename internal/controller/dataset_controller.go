package controller

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/unclebandit/certificate-service/internal/service"
)

type DatasetController struct {
	DatasetService *service.DatasetService
}

type createDatasetRequest struct {
	OwnerGroupID uuid.UUID `json:"owner_group_id" validate:"required"`
	Name         string    `json:"name" validate:"required,max=200"`
	// Content is the raw upload: a header line, then one row per line.
	Content string `json:"content" validate:"required"`
}

type renameRequest struct {
	Name string `json:"name" validate:"required,max=200"`
}

func (c *DatasetController) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", c.CreateDataset)
	r.Get("/", c.ListDatasets)
	r.Get("/{id}", c.GetDataset)
	r.Patch("/{id}", c.RenameDataset)
	r.Delete("/{id}", c.DeleteDataset)
	r.Post("/{id}/migrate-legacy", c.MigrateLegacy)
	return r
}

func (c *DatasetController) CreateDataset(w http.ResponseWriter, r *http.Request) {
	var body createDatasetRequest
	if err := decode(r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	d, err := c.DatasetService.CreateDataset(r.Context(), body.OwnerGroupID, body.Name, body.Content)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

func (c *DatasetController) ListDatasets(w http.ResponseWriter, r *http.Request) {
	page, err := pageFrom(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	datasets, pagination, err := c.DatasetService.ListDatasets(r.Context(), page)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse(datasets, pagination))
}

func (c *DatasetController) GetDataset(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	d, err := c.DatasetService.GetDataset(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (c *DatasetController) RenameDataset(w http.ResponseWriter, r *http.Request) {
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
	d, err := c.DatasetService.RenameDataset(r.Context(), id, body.Name)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (c *DatasetController) DeleteDataset(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := c.DatasetService.DeleteDataset(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// MigrateLegacy rewrites a legacy-encoded dataset in place.
func (c *DatasetController) MigrateLegacy(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	res, err := c.DatasetService.MigrateLegacy(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
