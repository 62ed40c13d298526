package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/unclebandit/certificate-service/internal/controller"
	"github.com/unclebandit/certificate-service/internal/metrics"
	"github.com/unclebandit/certificate-service/internal/service"
)

// Services are the dependencies of the HTTP surface.
type Services struct {
	Datasets     *service.DatasetService
	Templates    *service.TemplateService
	Runs         *service.RunService
	Certificates *service.CertificateService
	Campaigns    *service.CampaignService
}

// NewRouter assembles every route with the shared middleware stack.
func NewRouter(s Services) http.Handler {
	datasets := &controller.DatasetController{DatasetService: s.Datasets}
	templates := &controller.TemplateController{TemplateService: s.Templates}
	runs := &controller.RunController{RunService: s.Runs, CertificateService: s.Certificates}
	certificates := &controller.CertificateController{CertificateService: s.Certificates}
	campaigns := &controller.CampaignController{CampaignService: s.Campaigns}
	read := &CampaignHandler{Campaigns: s.Campaigns, Runs: s.Runs, Certificates: s.Certificates}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(10 * time.Minute))
	r.Use(metrics.Middleware)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Mount("/datasets", datasets.Routes())
	r.Mount("/templates", templates.Routes())
	r.Mount("/certificates", certificates.Routes())

	runRoutes := runs.Routes()
	runRoutes.Get("/{id}/progress", read.GetRunProgressHandler)
	r.Mount("/runs", runRoutes)

	campaignRoutes := campaigns.Routes()
	campaignRoutes.Get("/{id}", read.GetCampaignHandlerWithStats)
	campaignRoutes.Get("/{id}/stats", read.GetCampaignStatsHandler)
	r.Mount("/campaigns", campaignRoutes)

	r.Get("/verify/{runId}/{ordinal}", read.VerifyHandler)
	return r
}
