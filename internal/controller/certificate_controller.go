package controller

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/unclebandit/certificate-service/internal/model"
	"github.com/unclebandit/certificate-service/internal/service"
)

type CertificateController struct {
	CertificateService *service.CertificateService
}

type updateCertificateRequest struct {
	SubjectName         *string `json:"subject_name" validate:"omitempty,max=300"`
	EmailRecipient      *string `json:"email_recipient" validate:"omitempty,email"`
	RenderedDocumentRef *string `json:"rendered_document_ref"`
	Status              *string `json:"status" validate:"omitempty,oneof=completed revoked"`
}

func (c *CertificateController) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", c.ListCertificates)
	r.Get("/{id}", c.GetCertificate)
	r.Patch("/{id}", c.UpdateCertificate)
	r.Delete("/{id}", c.DeleteCertificate)
	return r
}

func (c *CertificateController) ListCertificates(w http.ResponseWriter, r *http.Request) {
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
	status := model.CertificateStatus(r.URL.Query().Get("status"))
	certs, pagination, err := c.CertificateService.ListCertificates(r.Context(), page, runID, status)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse(certs, pagination))
}

func (c *CertificateController) GetCertificate(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	cert, err := c.CertificateService.GetCertificate(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cert)
}

func (c *CertificateController) UpdateCertificate(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var body updateCertificateRequest
	if err := decode(r, &body); err != nil {
		writeError(w, r, err)
		return
	}

	in := service.UpdateCertificateInput{
		SubjectName:         body.SubjectName,
		EmailRecipient:      body.EmailRecipient,
		RenderedDocumentRef: body.RenderedDocumentRef,
	}
	if body.Status != nil {
		status := model.CertificateStatus(*body.Status)
		in.Status = &status
	}
	cert, err := c.CertificateService.UpdateCertificate(r.Context(), id, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cert)
}

func (c *CertificateController) DeleteCertificate(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := c.CertificateService.DeleteCertificate(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
